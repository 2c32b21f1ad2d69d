package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/mute-meter-api/internal/models"
	"github.com/noah-isme/mute-meter-api/pkg/export"
)

// MeterColumns is the column order of every export.
var MeterColumns = []string{
	"reference_no", "name", "circle", "division", "sub_division", "feeder",
	"latitude", "longitude", "sanction_load", "transformer_capacity",
	"installation_date", "tariff", "model", "mute_reason",
}

// RequiredImportColumns must be present in an uploaded file.
var RequiredImportColumns = []string{
	"reference_no", "name", "circle", "division", "sub_division", "feeder",
	"latitude", "longitude", "mute_reason",
}

// dateLayout renders installation dates; stored dates are midnight UTC whatever the
// driver's session zone.
const dateLayout = "2006-01-02"

var importDateLayouts = []string{dateLayout, "2006-01-02 15:04:05", time.RFC3339, "2006/01/02", "01-02-06", "02/01/2006"}

// MeterDataset converts records into an export dataset. Nulls render as empty cells.
func MeterDataset(records []models.MeterRecord) export.Dataset {
	rows := make([]map[string]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, meterRow(r))
	}
	return export.Dataset{Headers: MeterColumns, Rows: rows}
}

func meterRow(r models.MeterRecord) map[string]string {
	row := map[string]string{
		"reference_no":         r.ReferenceNo,
		"name":                 r.Name,
		"circle":               r.Circle,
		"division":             r.Division,
		"sub_division":         r.SubDivision,
		"feeder":               r.Feeder,
		"latitude":             formatFloat(r.Latitude),
		"longitude":            formatFloat(r.Longitude),
		"sanction_load":        formatFloat(r.SanctionLoad),
		"transformer_capacity": formatFloat(r.TransformerCapacity),
		"tariff":               r.Tariff,
		"model":                r.Model,
		"mute_reason":          "",
	}
	if r.InstallationDate != nil {
		row["installation_date"] = r.InstallationDate.UTC().Format(dateLayout)
	} else {
		row["installation_date"] = ""
	}
	if r.MuteReason != nil {
		row["mute_reason"] = *r.MuteReason
	}
	return row
}

// MissingColumns returns required columns absent from the dataset.
func MissingColumns(data export.Dataset) []string {
	var missing []string
	for _, column := range RequiredImportColumns {
		if !data.HasColumn(column) {
			missing = append(missing, column)
		}
	}
	return missing
}

// DecodeMeterRow parses one normalized row. Blank cells become nulls.
func DecodeMeterRow(row map[string]string) (models.MeterRecord, error) {
	record := models.MeterRecord{
		ReferenceNo: normalizeReferenceCell(row["reference_no"]),
		Name:        strings.TrimSpace(row["name"]),
		Circle:      strings.TrimSpace(row["circle"]),
		Division:    strings.TrimSpace(row["division"]),
		SubDivision: strings.TrimSpace(row["sub_division"]),
		Feeder:      strings.TrimSpace(row["feeder"]),
		Tariff:      strings.TrimSpace(row["tariff"]),
		Model:       strings.TrimSpace(row["model"]),
	}

	var err error
	if record.Latitude, err = parseFloat(row, "latitude"); err != nil {
		return record, err
	}
	if record.Longitude, err = parseFloat(row, "longitude"); err != nil {
		return record, err
	}
	if record.SanctionLoad, err = parseFloat(row, "sanction_load"); err != nil {
		return record, err
	}
	if record.TransformerCapacity, err = parseFloat(row, "transformer_capacity"); err != nil {
		return record, err
	}
	if raw := strings.TrimSpace(row["installation_date"]); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			return record, err
		}
		record.InstallationDate = &parsed
	}
	if reason := strings.TrimSpace(row["mute_reason"]); reason != "" && !strings.EqualFold(reason, "nan") {
		record.MuteReason = &reason
	}
	return record, nil
}

// normalizeReferenceCell trims the key and drops the ".0" spreadsheets append to numeric ids.
func normalizeReferenceCell(raw string) string {
	ref := models.NormalizeReferenceNo(raw)
	if strings.HasSuffix(ref, ".0") {
		if _, err := strconv.ParseInt(strings.TrimSuffix(ref, ".0"), 10, 64); err == nil {
			return strings.TrimSuffix(ref, ".0")
		}
	}
	return ref
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func parseFloat(row map[string]string, column string) (*float64, error) {
	raw := strings.TrimSpace(row[column])
	if raw == "" || strings.EqualFold(raw, "nan") {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %q is not a number", column, raw)
	}
	return &v, nil
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range importDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("installation_date: %q is not a date", raw)
}
