package service

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mute-meter-api/internal/models"
	"github.com/noah-isme/mute-meter-api/pkg/export"
)

func TestDecodeMeterRow(t *testing.T) {
	record, err := DecodeMeterRow(map[string]string{
		"reference_no":      " 12345.0 ",
		"name":              "Ali",
		"circle":            "Sukkur",
		"latitude":          "27.7",
		"longitude":         "nan",
		"sanction_load":     "",
		"installation_date": "2021-03-04 00:00:00",
		"mute_reason":       "  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "12345", record.ReferenceNo)
	require.NotNil(t, record.Latitude)
	assert.Equal(t, 27.7, *record.Latitude)
	assert.Nil(t, record.Longitude)
	assert.Nil(t, record.SanctionLoad)
	assert.Nil(t, record.MuteReason)
	require.NotNil(t, record.InstallationDate)
	assert.Equal(t, time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC), *record.InstallationDate)
}

func TestDecodeMeterRowKeepsAlphanumericReference(t *testing.T) {
	record, err := DecodeMeterRow(map[string]string{"reference_no": "AB-7.0"})
	require.NoError(t, err)
	assert.Equal(t, "AB-7.0", record.ReferenceNo)
}

func TestDecodeMeterRowRejectsBadValues(t *testing.T) {
	_, err := DecodeMeterRow(map[string]string{"reference_no": "1", "latitude": "north"})
	assert.ErrorContains(t, err, "latitude")

	_, err = DecodeMeterRow(map[string]string{"reference_no": "1", "installation_date": "someday"})
	assert.ErrorContains(t, err, "installation_date")
}

func TestMeterDatasetRendersNullsAsEmpty(t *testing.T) {
	lat := 24.5
	data := MeterDataset([]models.MeterRecord{{ReferenceNo: "1", Latitude: &lat}})

	assert.Equal(t, MeterColumns, data.Headers)
	require.Len(t, data.Rows, 1)
	assert.Equal(t, "24.5", data.Rows[0]["latitude"])
	assert.Equal(t, "", data.Rows[0]["longitude"])
	assert.Equal(t, "", data.Rows[0]["mute_reason"])
	assert.Equal(t, "", data.Rows[0]["installation_date"])
}

func TestMissingColumns(t *testing.T) {
	data := export.Dataset{Headers: []string{"reference_no", "name", "circle", "division", "sub_division", "feeder", "latitude"}}
	assert.Equal(t, []string{"longitude", "mute_reason"}, MissingColumns(data))
	assert.Empty(t, MissingColumns(MeterDataset(nil)))
}

func TestMeterDatasetDateIgnoresDriverZone(t *testing.T) {
	stored := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	scanned := stored.In(time.FixedZone("PET", -5*60*60))
	data := MeterDataset([]models.MeterRecord{{ReferenceNo: "1", InstallationDate: &scanned}})
	require.Len(t, data.Rows, 1)
	assert.Equal(t, "2024-01-02", data.Rows[0]["installation_date"])

	rendered, err := export.NewCSVExporter().Render(data)
	require.NoError(t, err)
	parsed, err := export.NewCSVExporter().Read(bytes.NewReader(rendered))
	require.NoError(t, err)
	require.Len(t, parsed.Rows, 1)

	record, err := DecodeMeterRow(parsed.Rows[0])
	require.NoError(t, err)
	require.NotNil(t, record.InstallationDate)
	assert.True(t, stored.Equal(*record.InstallationDate), "round trip gave %s", record.InstallationDate)
}
