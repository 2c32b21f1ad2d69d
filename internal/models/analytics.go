package models

import "time"

// CountEntry is one bar of a categorical distribution.
type CountEntry struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// SumEntry aggregates a numeric column per label.
type SumEntry struct {
	Label string  `json:"label"`
	Total float64 `json:"total"`
}

// HistogramBin is one bucket of a numeric histogram; Upper is inclusive on the last bin.
type HistogramBin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// MuteMapPoint places a muted meter on the map.
type MuteMapPoint struct {
	ReferenceNo string  `json:"reference_no"`
	Name        string  `json:"name"`
	Feeder      string  `json:"feeder"`
	Division    string  `json:"division"`
	MuteReason  string  `json:"mute_reason"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// MuteAnalytics summarises annotated meters visible to the caller.
type MuteAnalytics struct {
	TotalVisible int            `json:"total_visible"`
	TotalMuted   int            `json:"total_muted"`
	Reasons      []CountEntry   `json:"reasons"`
	MapPoints    []MuteMapPoint `json:"map_points"`
	GeneratedAt  time.Time      `json:"generated_at"`
}

// TariffInsights summarises tariff and load characteristics.
type TariffInsights struct {
	TotalRecords       int            `json:"total_records"`
	Tariffs            []CountEntry   `json:"tariffs"`
	SanctionLoad       []HistogramBin `json:"sanction_load"`
	CapacityByDivision []SumEntry     `json:"capacity_by_division"`
	Models             []CountEntry   `json:"models"`
	InstallationTrend  []CountEntry   `json:"installation_trend"`
	GeneratedAt        time.Time      `json:"generated_at"`
}

// FilterOptions lists the drill-down values available within the caller's scope.
type FilterOptions struct {
	Circles      []string `json:"circles"`
	Divisions    []string `json:"divisions"`
	SubDivisions []string `json:"sub_divisions"`
	Feeders      []string `json:"feeders"`
}

// WelcomeSummary is shown on the landing page.
type WelcomeSummary struct {
	Email         string   `json:"email"`
	Role          UserRole `json:"role"`
	TotalMeters   int      `json:"total_meters"`
	MutedMeters   int      `json:"muted_meters"`
	UnmutedMeters int      `json:"unmuted_meters"`
}
