package models

import "strings"

// MuteReasonCatalog lists the reasons field users may choose from.
var MuteReasonCatalog = []string{
	"Cable Jumper Loose", "Extra Phase Wire Loop", "GPRS Meter Bypass",
	"Meter Washout", "Network Error", "Offline Due To Load Sheading",
	"Screen Opened Slow", "SIM Card Faulty", "Structure Fallen Down",
	"T/B Lock Heatup Slow", "Units Pending", "Running Direct", "Transformer Not At Site",
	"No Communication", "D-FUSE Cut Off", "Service Drop Disconnected", "MDI Supply Fail",
	"Display Opened", "Not In Use", "Not Found", "Pending Units",
	"Supply Cut Off Due To Non-Payment", "MCO Not Take Up", "T/F Not At Site",
	"Transformer Faulty", "T/F Burnt", "11KV Line Disconnected", "Wash Out",
	"Meter Line Disconnected", "Meter Burnt", "LT Line Disconnected", "HT Line Disconnect",
	"No Meter At Site",
}

var catalogIndex = func() map[string]string {
	idx := make(map[string]string, len(MuteReasonCatalog))
	for _, reason := range MuteReasonCatalog {
		idx[strings.ToLower(reason)] = reason
	}
	return idx
}()

// MuteReasonKind tags how a reason was constructed.
type MuteReasonKind int

const (
	MuteReasonCatalogKind MuteReasonKind = iota + 1
	MuteReasonFreeTextKind
)

// MuteReason is either a catalog entry or administrator free text.
// A blank free-text reason clears the annotation.
type MuteReason struct {
	kind MuteReasonKind
	text string
}

// CatalogReason resolves raw against the catalog, ignoring case and surrounding spaces.
func CatalogReason(raw string) (MuteReason, bool) {
	canonical, ok := catalogIndex[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return MuteReason{}, false
	}
	return MuteReason{kind: MuteReasonCatalogKind, text: canonical}, true
}

// FreeTextReason builds an unrestricted reason.
func FreeTextReason(raw string) MuteReason {
	return MuteReason{kind: MuteReasonFreeTextKind, text: strings.TrimSpace(raw)}
}

// Kind returns the variant tag.
func (r MuteReason) Kind() MuteReasonKind {
	return r.kind
}

// Text returns the stored text.
func (r MuteReason) Text() string {
	return r.text
}

// Clears reports whether applying the reason unsets the annotation.
func (r MuteReason) Clears() bool {
	return r.text == ""
}

// Value is the column value to persist; nil clears.
func (r MuteReason) Value() *string {
	if r.Clears() {
		return nil
	}
	text := r.text
	return &text
}
