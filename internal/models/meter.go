package models

import (
	"strings"
	"time"
)

// MeterRecord is one row of meter_data, keyed by ReferenceNo.
type MeterRecord struct {
	ReferenceNo         string     `db:"reference_no" json:"reference_no"`
	Name                string     `db:"name" json:"name"`
	Circle              string     `db:"circle" json:"circle"`
	Division            string     `db:"division" json:"division"`
	SubDivision         string     `db:"sub_division" json:"sub_division"`
	Feeder              string     `db:"feeder" json:"feeder"`
	Latitude            *float64   `db:"latitude" json:"latitude"`
	Longitude           *float64   `db:"longitude" json:"longitude"`
	SanctionLoad        *float64   `db:"sanction_load" json:"sanction_load"`
	TransformerCapacity *float64   `db:"transformer_capacity" json:"transformer_capacity"`
	InstallationDate    *time.Time `db:"installation_date" json:"installation_date"`
	Tariff              string     `db:"tariff" json:"tariff"`
	Model               string     `db:"model" json:"model"`
	MuteReason          *string    `db:"mute_reason" json:"mute_reason"`
}

// MuteState is the annotation state of a meter.
type MuteState string

const (
	MuteStateUnset MuteState = "UNSET"
	MuteStateSet   MuteState = "SET"
)

// CurrentMuteReason returns the trimmed annotation, empty when unset.
func (m MeterRecord) CurrentMuteReason() string {
	if m.MuteReason == nil {
		return ""
	}
	return strings.TrimSpace(*m.MuteReason)
}

// MuteState reports UNSET for null or blank annotations.
func (m MeterRecord) MuteState() MuteState {
	if m.CurrentMuteReason() == "" {
		return MuteStateUnset
	}
	return MuteStateSet
}

// HasCoordinates reports whether the record can be placed on a map.
func (m MeterRecord) HasCoordinates() bool {
	return m.Latitude != nil && m.Longitude != nil
}

// NormalizeReferenceNo trims the natural key used for lookups and import deduplication.
func NormalizeReferenceNo(raw string) string {
	return strings.TrimSpace(raw)
}

// MeterFilter is the drill-down selection a caller applies on top of its access scope.
// Blank or "All" selections do not filter.
type MeterFilter struct {
	Circle      string `form:"circle" json:"circle,omitempty"`
	Division    string `form:"division" json:"division,omitempty"`
	SubDivision string `form:"sub_division" json:"sub_division,omitempty"`
	Feeder      string `form:"feeder" json:"feeder,omitempty"`
}

// AsScope converts the selection into a scope value so the same predicate applies.
func (f MeterFilter) AsScope() AccessScope {
	return AccessScope{
		Circle:      scopeValue(f.Circle),
		Division:    scopeValue(f.Division),
		SubDivision: scopeValue(f.SubDivision),
		Feeder:      scopeValue(f.Feeder),
	}
}
