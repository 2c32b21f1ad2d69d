package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mute-meter-api/internal/models"
)

var meterRowColumns = []string{"reference_no", "name", "circle", "division", "sub_division", "feeder", "latitude", "longitude", "sanction_load", "transformer_capacity", "installation_date", "tariff", "model", "mute_reason"}

func strPtr(v string) *string { return &v }

func TestMeterListAppliesScope(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMeterRepository(db, time.Second)

	rows := sqlmock.NewRows(meterRowColumns).
		AddRow("R-1", "Alpha", "Sukkur", "Rohri", "Rohri-1", "F-1", 27.7, 68.8, 5.0, 25.0, time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC), "A-1", "M1", nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM meter_data WHERE circle = $1 AND feeder = $2 ORDER BY reference_no")).
		WithArgs("Sukkur", "F-1").
		WillReturnRows(rows)

	records, err := repo.List(context.Background(), models.AccessScope{Circle: strPtr("Sukkur"), Division: strPtr("All"), Feeder: strPtr(" F-1 ")})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "R-1", records[0].ReferenceNo)
	assert.Equal(t, models.MuteStateUnset, records[0].MuteState())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMeterListUnrestricted(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMeterRepository(db, time.Second)

	mock.ExpectQuery(regexp.QuoteMeta("FROM meter_data ORDER BY reference_no")).
		WillReturnRows(sqlmock.NewRows(meterRowColumns))

	records, err := repo.List(context.Background(), models.AccessScope{})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetMuteReasonIfUnset(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMeterRepository(db, time.Second)

	query := regexp.QuoteMeta("UPDATE meter_data SET mute_reason = $2 WHERE reference_no = $1 AND (mute_reason IS NULL OR TRIM(mute_reason) = '')")
	mock.ExpectExec(query).WithArgs("R-1", "Meter Burnt").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("R-1", "Wash Out").WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := repo.SetMuteReasonIfUnset(context.Background(), "R-1", "Meter Burnt")
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.SetMuteReasonIfUnset(context.Background(), "R-1", "Wash Out")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOverrideMuteReasonReturnsPrevious(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMeterRepository(db, time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT mute_reason FROM meter_data WHERE reference_no = $1 FOR UPDATE")).
		WithArgs("R-1").
		WillReturnRows(sqlmock.NewRows([]string{"mute_reason"}).AddRow("Meter Burnt"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE meter_data SET mute_reason = $2 WHERE reference_no = $1")).
		WithArgs("R-1", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	previous, err := repo.OverrideMuteReason(context.Background(), "R-1", nil)
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, "Meter Burnt", *previous)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOverrideMuteReasonMissingMeter(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMeterRepository(db, time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("missing").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.OverrideMuteReason(context.Background(), "missing", strPtr("Wash Out"))
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatchCountsInsertedRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMeterRepository(db, time.Second)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO meter_data .* ON CONFLICT \\(reference_no\\) DO NOTHING").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO meter_data").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	inserted, err := repo.InsertBatch(context.Background(), []models.MeterRecord{{ReferenceNo: "R-1"}, {ReferenceNo: "R-2"}})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExactRollsBackOnMismatch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMeterRepository(db, time.Second)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM meter_data WHERE reference_no = ANY($1)")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	_, err := repo.DeleteExact(context.Background(), []string{"R-1", "R-2"})
	assert.ErrorIs(t, err, ErrRowCountMismatch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExactCommits(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMeterRepository(db, time.Second)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM meter_data").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	deleted, err := repo.DeleteExact(context.Background(), []string{"R-1", "R-2"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExistingReferenceNos(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMeterRepository(db, time.Second)

	mock.ExpectQuery("SELECT reference_no FROM meter_data WHERE reference_no = ANY").
		WillReturnRows(sqlmock.NewRows([]string{"reference_no"}).AddRow("R-2"))

	existing, err := repo.ExistingReferenceNos(context.Background(), []string{"R-1", "R-2"})
	require.NoError(t, err)
	_, ok := existing["R-2"]
	assert.True(t, ok)
	assert.Len(t, existing, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByReferenceNosSingleQuery(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMeterRepository(db, time.Second)

	rows := sqlmock.NewRows(meterRowColumns).
		AddRow("R-1", "Alpha", "Sukkur", "Rohri", "Rohri-1", "F-1", nil, nil, nil, nil, nil, "", "", "Meter Burnt").
		AddRow("R-3", "Gamma", "Sukkur", "Rohri", "Rohri-1", "F-2", nil, nil, nil, nil, nil, "", "", nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM meter_data WHERE reference_no = ANY($1) ORDER BY reference_no")).
		WillReturnRows(rows)

	records, err := repo.FindByReferenceNos(context.Background(), []string{"R-1", "R-2", "R-3"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "R-1", records[0].ReferenceNo)
	assert.Equal(t, models.MuteStateSet, records[0].MuteState())
	assert.Equal(t, "R-3", records[1].ReferenceNo)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByReferenceNosEmpty(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMeterRepository(db, time.Second)

	records, err := repo.FindByReferenceNos(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}
