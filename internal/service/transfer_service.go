package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/mute-meter-api/internal/dto"
	"github.com/noah-isme/mute-meter-api/internal/models"
	"github.com/noah-isme/mute-meter-api/internal/repository"
	appErrors "github.com/noah-isme/mute-meter-api/pkg/errors"
	"github.com/noah-isme/mute-meter-api/pkg/export"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatJSON = "json"
	FormatPDF  = "pdf"
)

// ExportFormats lists the download formats in menu order.
var ExportFormats = []string{FormatCSV, FormatXLSX, FormatJSON, FormatPDF}

const previewLimit = 100

type meterTransferRepository interface {
	List(ctx context.Context, scope models.AccessScope) ([]models.MeterRecord, error)
	FindByReferenceNos(ctx context.Context, referenceNos []string) ([]models.MeterRecord, error)
	ExistingReferenceNos(ctx context.Context, referenceNos []string) (map[string]struct{}, error)
	InsertBatch(ctx context.Context, records []models.MeterRecord) (int, error)
	DeleteExact(ctx context.Context, referenceNos []string) (int, error)
}

type csvCodec interface {
	Render(data export.Dataset) ([]byte, error)
	Read(r io.Reader) (export.Dataset, error)
}

type xlsxCodec interface {
	Render(data export.Dataset, sheet string) ([]byte, error)
	Read(r io.Reader) (export.Dataset, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// TransferService handles bulk import, export and reviewed deletes of meter records.
type TransferService struct {
	repo      meterTransferRepository
	analytics *AnalyticsService
	sessions  *SessionService
	audit     auditRecorder
	cache     *CacheService
	metrics   *MetricsService
	csv       csvCodec
	xlsx      xlsxCodec
	pdf       pdfRenderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewTransferService constructs a TransferService.
func NewTransferService(repo meterTransferRepository, analytics *AnalyticsService, sessions *SessionService, audit auditRecorder, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *TransferService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferService{
		repo:      repo,
		analytics: analytics,
		sessions:  sessions,
		audit:     audit,
		cache:     cache,
		metrics:   metrics,
		csv:       export.NewCSVExporter(),
		xlsx:      export.NewXLSXExporter(),
		pdf:       export.NewPDFExporter(),
		logger:    logger,
		now:       time.Now,
	}
}

// Preview returns the first rows of the actor's export.
func (s *TransferService) Preview(ctx context.Context, actor Actor, filter models.MeterFilter) (*dto.ExportPreview, error) {
	records, err := s.analytics.Visible(ctx, actor, filter)
	if err != nil {
		return nil, err
	}
	preview := &dto.ExportPreview{Total: len(records), Formats: ExportFormats}
	if len(records) > previewLimit {
		records = records[:previewLimit]
	}
	preview.Records = records
	return preview, nil
}

// Export renders every record visible to the actor in the requested format.
func (s *TransferService) Export(ctx context.Context, actor Actor, filter models.MeterFilter, format string) (*dto.ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatCSV
	}
	records, err := s.analytics.Visible(ctx, actor, filter)
	if err != nil {
		return nil, err
	}
	file, err := s.Render(records, format)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordExport(format)
	return file, nil
}

// Render encodes records without touching storage.
func (s *TransferService) Render(records []models.MeterRecord, format string) (*dto.ExportFile, error) {
	stamp := s.now().UTC().Format("20060102_150405")
	base := "meter_data_" + stamp
	var (
		payload []byte
		err     error
		file    = &dto.ExportFile{}
	)
	switch format {
	case FormatCSV:
		payload, err = s.csv.Render(MeterDataset(records))
		file.Filename, file.ContentType = base+".csv", "text/csv; charset=utf-8"
	case FormatXLSX:
		payload, err = s.xlsx.Render(MeterDataset(records), "Meter Data")
		file.Filename, file.ContentType = base+".xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatJSON:
		if records == nil {
			records = []models.MeterRecord{}
		}
		payload, err = json.MarshalIndent(records, "", "  ")
		file.Filename, file.ContentType = base+".json", "application/json"
	case FormatPDF:
		payload, err = s.pdf.Render(MeterDataset(records), "Meter Data")
		file.Filename, file.ContentType = base+".pdf", "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	file.Payload = payload
	return file, nil
}

// ImportFile parses an uploaded CSV or XLSX file and imports its rows.
// Missing required columns reject the whole file.
func (s *TransferService) ImportFile(ctx context.Context, actor Actor, filename string, r io.Reader) (*dto.ImportReport, error) {
	var (
		data export.Dataset
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		data, err = s.csv.Read(r)
	case ".xlsx":
		data, err = s.xlsx.Read(r)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "upload a .csv or .xlsx file")
	}
	if err != nil {
		if errors.Is(err, export.ErrNoHeader) {
			return nil, appErrors.Clone(appErrors.ErrSchema, "file has no header row")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unable to read uploaded file")
	}

	if missing := MissingColumns(data); len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrSchema, "missing required columns: "+strings.Join(missing, ", "))
	}

	records := make([]models.MeterRecord, 0, len(data.Rows))
	for i, row := range data.Rows {
		record, err := DecodeMeterRow(row)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("row %d: %v", i+2, err))
		}
		records = append(records, record)
	}
	return s.Import(ctx, actor, records)
}

// Import inserts records whose trimmed reference number is not already stored.
// Blank references and repeats within the batch count as skipped; the first occurrence wins.
func (s *TransferService) Import(ctx context.Context, actor Actor, records []models.MeterRecord) (*dto.ImportReport, error) {
	report := &dto.ImportReport{}
	seen := make(map[string]struct{}, len(records))
	candidates := make([]models.MeterRecord, 0, len(records))
	refs := make([]string, 0, len(records))
	for _, record := range records {
		record.ReferenceNo = models.NormalizeReferenceNo(record.ReferenceNo)
		if record.ReferenceNo == "" {
			report.Skipped++
			continue
		}
		if _, dup := seen[record.ReferenceNo]; dup {
			report.Skipped++
			continue
		}
		seen[record.ReferenceNo] = struct{}{}
		candidates = append(candidates, record)
		refs = append(refs, record.ReferenceNo)
	}

	existing, err := s.repo.ExistingReferenceNos(ctx, refs)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to check existing meters")
	}
	fresh := make([]models.MeterRecord, 0, len(candidates))
	for _, record := range candidates {
		if _, ok := existing[record.ReferenceNo]; ok {
			report.Skipped++
			continue
		}
		fresh = append(fresh, record)
	}

	inserted, err := s.repo.InsertBatch(ctx, fresh)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to import meters")
	}
	report.Imported = inserted
	report.Skipped += len(fresh) - inserted

	s.metrics.RecordImport(report.Imported, report.Skipped)
	payload, _ := json.Marshal(report)
	s.recordAudit(ctx, actor, models.AuditActionMeterImport, nil, payload)
	if report.Imported > 0 {
		s.invalidateAnalytics(ctx)
	}
	s.logger.Info("meter import finished", zap.Int("imported", report.Imported), zap.Int("skipped", report.Skipped), zap.String("actor", actor.Email))
	return report, nil
}

// ReviewDelete stages a delete in the session. Explicit references must all exist;
// a filter stages every record it currently selects.
func (s *TransferService) ReviewDelete(ctx context.Context, sessionID string, actor Actor, req dto.DeleteReviewRequest) (*dto.DeleteReviewResponse, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators can delete records")
	}

	var (
		records []models.MeterRecord
		err     error
	)
	switch {
	case req.Filter != nil && len(req.ReferenceNos) > 0:
		return nil, appErrors.Clone(appErrors.ErrValidation, "send reference numbers or a filter, not both")
	case req.Filter != nil:
		records, err = s.analytics.Visible(ctx, actor, *req.Filter)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no records match the filter")
		}
	default:
		records, err = s.existingRecords(ctx, uniqueRefs(req.ReferenceNos))
		if err != nil {
			return nil, err
		}
	}

	refs := make([]string, 0, len(records))
	for _, r := range records {
		refs = append(refs, r.ReferenceNo)
	}
	review := &models.DeleteReview{ID: uuid.NewString(), ReferenceNos: refs, CreatedAt: s.now().UTC()}
	if _, err := s.sessions.Update(ctx, sessionID, func(state *models.SessionState) error {
		state.PendingDelete = review
		return nil
	}); err != nil {
		return nil, err
	}

	listed := records
	if len(listed) > previewLimit {
		listed = listed[:previewLimit]
	}
	return &dto.DeleteReviewResponse{ReviewID: review.ID, Count: len(refs), Records: listed}, nil
}

// existingRecords loads refs in one query, keeping their order, and rejects unknown ones.
func (s *TransferService) existingRecords(ctx context.Context, refs []string) ([]models.MeterRecord, error) {
	if len(refs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one reference number is required")
	}
	found, err := s.repo.FindByReferenceNos(ctx, refs)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to load meters")
	}
	byRef := make(map[string]models.MeterRecord, len(found))
	for _, r := range found {
		byRef[r.ReferenceNo] = r
	}
	records := make([]models.MeterRecord, 0, len(refs))
	var missing []string
	for _, ref := range refs {
		record, ok := byRef[ref]
		if !ok {
			missing = append(missing, ref)
			continue
		}
		records = append(records, record)
	}
	if len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown reference numbers: "+strings.Join(missing, ", "))
	}
	return records, nil
}

// ConfirmDelete removes exactly the reviewed records, or nothing.
func (s *TransferService) ConfirmDelete(ctx context.Context, state *models.SessionState, actor Actor, req dto.DeleteConfirmRequest) (*dto.DeleteResult, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators can delete records")
	}
	if !req.Confirm {
		return nil, appErrors.Clone(appErrors.ErrValidation, "deletion must be explicitly confirmed")
	}
	review := state.PendingDelete
	if review == nil || review.ID != req.ReviewID {
		return nil, appErrors.Clone(appErrors.ErrConflict, "no matching delete review; review the records again")
	}

	deleted, err := s.repo.DeleteExact(ctx, review.ReferenceNos)
	if err != nil {
		if errors.Is(err, repository.ErrRowCountMismatch) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "records changed since review; nothing was deleted")
		}
		return nil, appErrors.Storage(err, "failed to delete meters")
	}

	if _, err := s.sessions.Update(ctx, state.ID, func(st *models.SessionState) error {
		if st.PendingDelete != nil && st.PendingDelete.ID == review.ID {
			st.PendingDelete = nil
		}
		return nil
	}); err != nil {
		s.logger.Warn("failed to clear delete review", zap.Error(err))
	}

	s.metrics.RecordDelete(deleted)
	oldValues, _ := json.Marshal(map[string]interface{}{"reference_nos": review.ReferenceNos})
	newValues, _ := json.Marshal(map[string]interface{}{"deleted": deleted})
	s.recordAudit(ctx, actor, models.AuditActionMeterDelete, oldValues, newValues)
	s.invalidateAnalytics(ctx)
	return &dto.DeleteResult{Deleted: deleted}, nil
}

// CancelDelete drops a pending review.
func (s *TransferService) CancelDelete(ctx context.Context, sessionID string) error {
	_, err := s.sessions.Update(ctx, sessionID, func(state *models.SessionState) error {
		state.PendingDelete = nil
		return nil
	})
	return err
}

func (s *TransferService) recordAudit(ctx context.Context, actor Actor, action string, oldValues, newValues []byte) {
	if s.audit == nil {
		return
	}
	var actorID *string
	if actor.UserID != "" {
		actorID = &actor.UserID
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:    actorID,
		Action:    action,
		Resource:  models.AuditResourceMeter,
		OldValues: oldValues,
		NewValues: newValues,
		IPAddress: actor.IP,
		UserAgent: actor.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record transfer audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *TransferService) invalidateAnalytics(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, "*"); err != nil {
		s.logger.Warn("failed to invalidate analytics cache", zap.Error(err))
	}
}

func uniqueRefs(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	refs := make([]string, 0, len(raw))
	for _, r := range raw {
		ref := models.NormalizeReferenceNo(r)
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	return refs
}
