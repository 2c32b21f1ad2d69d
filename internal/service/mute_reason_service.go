package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/mute-meter-api/internal/models"
	appErrors "github.com/noah-isme/mute-meter-api/pkg/errors"
)

type muteReasonRepository interface {
	FindByReferenceNo(ctx context.Context, referenceNo string) (*models.MeterRecord, error)
	SetMuteReasonIfUnset(ctx context.Context, referenceNo, reason string) (bool, error)
	OverrideMuteReason(ctx context.Context, referenceNo string, reason *string) (*string, error)
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ParseMuteReason builds the reason an actor of the given role may write.
// Users are limited to the catalog; administrators may use free text, and blank clears.
func ParseMuteReason(raw string, role models.UserRole) (models.MuteReason, error) {
	if reason, ok := models.CatalogReason(raw); ok {
		return reason, nil
	}
	if role == models.RoleAdmin {
		return models.FreeTextReason(raw), nil
	}
	if models.FreeTextReason(raw).Clears() {
		return models.MuteReason{}, appErrors.Clone(appErrors.ErrValidation, "select a mute reason")
	}
	return models.MuteReason{}, appErrors.Clone(appErrors.ErrValidation, "mute reason must be one of the listed reasons")
}

// MuteReasonService mediates every write to a meter's annotation.
type MuteReasonService struct {
	repo    muteReasonRepository
	audit   auditRecorder
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
}

// NewMuteReasonService constructs a MuteReasonService.
func NewMuteReasonService(repo muteReasonRepository, audit auditRecorder, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *MuteReasonService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MuteReasonService{repo: repo, audit: audit, cache: cache, metrics: metrics, logger: logger}
}

// Lookup loads a meter the actor may see; records outside the scope read as missing.
func (s *MuteReasonService) Lookup(ctx context.Context, actor Actor, referenceNo string) (*models.MeterRecord, error) {
	referenceNo = models.NormalizeReferenceNo(referenceNo)
	if referenceNo == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reference number is required")
	}
	record, err := s.repo.FindByReferenceNo(ctx, referenceNo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no customer found with reference number "+referenceNo)
		}
		return nil, appErrors.Storage(err, "failed to load meter")
	}
	if !actor.CanSee(*record) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no customer found with reference number "+referenceNo)
	}
	return record, nil
}

// Submit writes a reason on behalf of actor. Users may only set an unset
// annotation; administrators overwrite or clear it.
func (s *MuteReasonService) Submit(ctx context.Context, actor Actor, referenceNo, raw string) (*models.MeterRecord, error) {
	reason, err := ParseMuteReason(raw, actor.Role)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() {
		return s.override(ctx, actor, referenceNo, reason)
	}
	return s.setOnce(ctx, actor, referenceNo, reason)
}

func (s *MuteReasonService) setOnce(ctx context.Context, actor Actor, referenceNo string, reason models.MuteReason) (*models.MeterRecord, error) {
	record, err := s.Lookup(ctx, actor, referenceNo)
	if err != nil {
		return nil, err
	}
	if record.MuteState() == models.MuteStateSet {
		s.metrics.RecordMuteSubmission("rejected")
		return record, appErrors.Clone(appErrors.ErrMuteReasonSet, "mute reason already set to "+record.CurrentMuteReason())
	}

	applied, err := s.repo.SetMuteReasonIfUnset(ctx, record.ReferenceNo, reason.Text())
	if err != nil {
		s.metrics.RecordMuteSubmission("error")
		return nil, appErrors.Storage(err, "failed to save mute reason")
	}
	if !applied {
		current, err := s.repo.FindByReferenceNo(ctx, record.ReferenceNo)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "no customer found with reference number "+record.ReferenceNo)
			}
			return nil, appErrors.Storage(err, "failed to reload meter")
		}
		s.metrics.RecordMuteSubmission("rejected")
		return current, appErrors.Clone(appErrors.ErrMuteReasonSet, "mute reason already set to "+current.CurrentMuteReason())
	}

	s.metrics.RecordMuteSubmission("applied")
	record.MuteReason = reason.Value()
	s.recordAudit(ctx, actor, models.AuditActionMuteReasonSubmit, record.ReferenceNo, nil, reason.Value())
	s.invalidateAnalytics(ctx)
	return record, nil
}

func (s *MuteReasonService) override(ctx context.Context, actor Actor, referenceNo string, reason models.MuteReason) (*models.MeterRecord, error) {
	referenceNo = models.NormalizeReferenceNo(referenceNo)
	if referenceNo == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reference number is required")
	}
	previous, err := s.repo.OverrideMuteReason(ctx, referenceNo, reason.Value())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no customer found with reference number "+referenceNo)
		}
		s.metrics.RecordMuteSubmission("error")
		return nil, appErrors.Storage(err, "failed to save mute reason")
	}
	s.metrics.RecordMuteSubmission("overridden")
	s.recordAudit(ctx, actor, models.AuditActionMuteReasonOverride, referenceNo, previous, reason.Value())
	s.invalidateAnalytics(ctx)

	record, err := s.repo.FindByReferenceNo(ctx, referenceNo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no customer found with reference number "+referenceNo)
		}
		return nil, appErrors.Storage(err, "failed to reload meter")
	}
	return record, nil
}

func (s *MuteReasonService) recordAudit(ctx context.Context, actor Actor, action, referenceNo string, previous, next *string) {
	if s.audit == nil {
		return
	}
	oldValues, _ := json.Marshal(map[string]interface{}{"mute_reason": previous})
	newValues, _ := json.Marshal(map[string]interface{}{"mute_reason": next})
	var actorID *string
	if actor.UserID != "" {
		actorID = &actor.UserID
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     actorID,
		Action:     action,
		Resource:   models.AuditResourceMeter,
		ResourceID: &referenceNo,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record mute reason audit log", zap.String("reference_no", referenceNo), zap.Error(err))
	}
}

func (s *MuteReasonService) invalidateAnalytics(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, "*"); err != nil {
		s.logger.Warn("failed to invalidate analytics cache", zap.Error(err))
	}
}
