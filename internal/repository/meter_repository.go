package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/mute-meter-api/internal/models"
)

const meterColumns = `reference_no, name, circle, division, sub_division, feeder, latitude, longitude, sanction_load, transformer_capacity, installation_date, tariff, model, mute_reason`

// ErrRowCountMismatch is returned when a bulk delete would not remove exactly the reviewed rows.
var ErrRowCountMismatch = errors.New("affected row count does not match request")

// MeterRepository provides access to meter_data.
type MeterRepository struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewMeterRepository constructs a meter repository.
func NewMeterRepository(db *sqlx.DB, timeout time.Duration) *MeterRepository {
	return &MeterRepository{db: db, timeout: timeout}
}

// FindByReferenceNo returns a single meter.
func (r *MeterRepository) FindByReferenceNo(ctx context.Context, referenceNo string) (*models.MeterRecord, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + meterColumns + ` FROM meter_data WHERE reference_no = $1 LIMIT 1`
	var record models.MeterRecord
	if err := r.db.GetContext(ctx, &record, query, referenceNo); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find meter: %w", err)
	}
	return &record, nil
}

// FindByReferenceNos returns the stored meters among referenceNos, ordered by reference.
func (r *MeterRepository) FindByReferenceNos(ctx context.Context, referenceNos []string) ([]models.MeterRecord, error) {
	if len(referenceNos) == 0 {
		return nil, nil
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + meterColumns + ` FROM meter_data WHERE reference_no = ANY($1) ORDER BY reference_no`
	var records []models.MeterRecord
	if err := r.db.SelectContext(ctx, &records, query, pq.Array(referenceNos)); err != nil {
		return nil, fmt.Errorf("find meters: %w", err)
	}
	return records, nil
}

// List returns meters narrowed by every set scope dimension, ordered by reference.
// The WHERE clause only trims the result set; service.FilterByScope is the
// authoritative access check and is applied to whatever List returns.
func (r *MeterRepository) List(ctx context.Context, scope models.AccessScope) ([]models.MeterRecord, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	scope = scope.Normalize()
	var conditions []string
	var args []interface{}
	add := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("circle", scope.Circle)
	add("division", scope.Division)
	add("sub_division", scope.SubDivision)
	add("feeder", scope.Feeder)

	query := `SELECT ` + meterColumns + ` FROM meter_data`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY reference_no"

	var records []models.MeterRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list meters: %w", err)
	}
	return records, nil
}

// SetMuteReasonIfUnset writes reason only while the stored annotation is null or blank.
// It reports whether a row was updated.
func (r *MeterRepository) SetMuteReasonIfUnset(ctx context.Context, referenceNo, reason string) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	const query = `UPDATE meter_data SET mute_reason = $2 WHERE reference_no = $1 AND (mute_reason IS NULL OR TRIM(mute_reason) = '')`
	res, err := r.db.ExecContext(ctx, query, referenceNo, reason)
	if err != nil {
		return false, fmt.Errorf("set mute reason: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set mute reason rows: %w", err)
	}
	return affected == 1, nil
}

// OverrideMuteReason replaces the annotation unconditionally and returns the previous value.
func (r *MeterRepository) OverrideMuteReason(ctx context.Context, referenceNo string, reason *string) (*string, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin override tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var previous sql.NullString
	if err := tx.GetContext(ctx, &previous, `SELECT mute_reason FROM meter_data WHERE reference_no = $1 FOR UPDATE`, referenceNo); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock meter: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE meter_data SET mute_reason = $2 WHERE reference_no = $1`, referenceNo, reason); err != nil {
		return nil, fmt.Errorf("override mute reason: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit override: %w", err)
	}
	if !previous.Valid {
		return nil, nil
	}
	return &previous.String, nil
}

// ExistingReferenceNos returns which of the given references are already stored.
func (r *MeterRepository) ExistingReferenceNos(ctx context.Context, referenceNos []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(referenceNos) == 0 {
		return existing, nil
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var found []string
	if err := r.db.SelectContext(ctx, &found, `SELECT reference_no FROM meter_data WHERE reference_no = ANY($1)`, pq.Array(referenceNos)); err != nil {
		return nil, fmt.Errorf("lookup existing meters: %w", err)
	}
	for _, ref := range found {
		existing[ref] = struct{}{}
	}
	return existing, nil
}

// InsertBatch inserts records in one transaction, skipping references that already exist.
// It returns the number of rows inserted.
func (r *MeterRepository) InsertBatch(ctx context.Context, records []models.MeterRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `INSERT INTO meter_data (` + meterColumns + `) VALUES (:reference_no, :name, :circle, :division, :sub_division, :feeder, :latitude, :longitude, :sanction_load, :transformer_capacity, :installation_date, :tariff, :model, :mute_reason) ON CONFLICT (reference_no) DO NOTHING`
	inserted := 0
	for i := range records {
		res, err := tx.NamedExecContext(ctx, query, &records[i])
		if err != nil {
			return 0, fmt.Errorf("insert meter %s: %w", records[i].ReferenceNo, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert meter rows: %w", err)
		}
		inserted += int(affected)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return inserted, nil
}

// DeleteExact removes exactly the given references or nothing at all.
func (r *MeterRepository) DeleteExact(ctx context.Context, referenceNos []string) (int, error) {
	if len(referenceNos) == 0 {
		return 0, nil
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM meter_data WHERE reference_no = ANY($1)`, pq.Array(referenceNos))
	if err != nil {
		return 0, fmt.Errorf("delete meters: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete meters rows: %w", err)
	}
	if int(affected) != len(referenceNos) {
		return 0, ErrRowCountMismatch
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}
	return int(affected), nil
}
