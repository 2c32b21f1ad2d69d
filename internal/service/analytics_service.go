package service

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mute-meter-api/internal/models"
	appErrors "github.com/noah-isme/mute-meter-api/pkg/errors"
)

// sanctionLoadBins is the histogram resolution for sanction load.
const sanctionLoadBins = 20

type meterLister interface {
	List(ctx context.Context, scope models.AccessScope) ([]models.MeterRecord, error)
}

// AnalyticsService computes dashboard views over the records visible to a caller.
type AnalyticsService struct {
	repo    meterLister
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(repo meterLister, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{repo: repo, cache: cache, metrics: metrics, logger: logger, now: time.Now}
}

// Visible loads the records the actor may see, narrowed by the view filter.
func (s *AnalyticsService) Visible(ctx context.Context, actor Actor, filter models.MeterFilter) ([]models.MeterRecord, error) {
	scope := models.AccessScope{}
	if !actor.IsAdmin() {
		scope = actor.Scope
	}
	start := time.Now()
	records, err := s.repo.List(ctx, scope)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to load meters")
	}
	s.metrics.ObserveDBQuery("meters_list", time.Since(start))
	return VisibleRecords(records, actor, filter), nil
}

// Welcome counts the records visible to the actor.
func (s *AnalyticsService) Welcome(ctx context.Context, actor Actor) (*models.WelcomeSummary, error) {
	records, err := s.Visible(ctx, actor, models.MeterFilter{})
	if err != nil {
		return nil, err
	}
	summary := &models.WelcomeSummary{Email: actor.Email, Role: actor.Role, TotalMeters: len(records)}
	for _, r := range records {
		if r.MuteState() == models.MuteStateSet {
			summary.MutedMeters++
		}
	}
	summary.UnmutedMeters = summary.TotalMeters - summary.MutedMeters
	return summary, nil
}

// MuteAnalytics returns reason counts and map points. The boolean reports a cache hit.
func (s *AnalyticsService) MuteAnalytics(ctx context.Context, actor Actor, filter models.MeterFilter) (*models.MuteAnalytics, bool, error) {
	key := analyticsCacheKey("mute", actor, filter)
	var cached models.MuteAnalytics
	if hit := s.fromCache(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	records, err := s.Visible(ctx, actor, filter)
	if err != nil {
		return nil, false, err
	}

	result := &models.MuteAnalytics{TotalVisible: len(records), MapPoints: []models.MuteMapPoint{}, GeneratedAt: s.now().UTC()}
	counts := map[string]int{}
	for _, r := range records {
		reason := r.CurrentMuteReason()
		if reason == "" {
			continue
		}
		result.TotalMuted++
		counts[reason]++
		if r.HasCoordinates() && validCoordinate(*r.Latitude, *r.Longitude) {
			result.MapPoints = append(result.MapPoints, models.MuteMapPoint{
				ReferenceNo: r.ReferenceNo,
				Name:        r.Name,
				Feeder:      r.Feeder,
				Division:    r.Division,
				MuteReason:  reason,
				Latitude:    *r.Latitude,
				Longitude:   *r.Longitude,
			})
		}
	}
	result.Reasons = sortedCounts(counts)

	s.toCache(ctx, key, result)
	return result, false, nil
}

// TariffInsights returns tariff, load, capacity, model and installation views.
func (s *AnalyticsService) TariffInsights(ctx context.Context, actor Actor, filter models.MeterFilter) (*models.TariffInsights, bool, error) {
	key := analyticsCacheKey("tariff", actor, filter)
	var cached models.TariffInsights
	if hit := s.fromCache(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	records, err := s.Visible(ctx, actor, filter)
	if err != nil {
		return nil, false, err
	}

	tariffs := map[string]int{}
	meterModels := map[string]int{}
	capacity := map[string]float64{}
	installs := map[string]int{}
	var loads []float64
	for _, r := range records {
		if t := strings.TrimSpace(r.Tariff); t != "" {
			tariffs[t]++
		}
		if m := strings.TrimSpace(r.Model); m != "" {
			meterModels[m]++
		}
		if r.TransformerCapacity != nil {
			capacity[r.Division] += *r.TransformerCapacity
		}
		if r.SanctionLoad != nil {
			loads = append(loads, *r.SanctionLoad)
		}
		if r.InstallationDate != nil {
			installs[r.InstallationDate.Format("2006-01")]++
		}
	}

	trend := make([]models.CountEntry, 0, len(installs))
	for month, count := range installs {
		trend = append(trend, models.CountEntry{Label: month, Count: count})
	}
	sort.Slice(trend, func(i, j int) bool { return trend[i].Label < trend[j].Label })

	sums := make([]models.SumEntry, 0, len(capacity))
	for division, total := range capacity {
		sums = append(sums, models.SumEntry{Label: division, Total: total})
	}
	sort.Slice(sums, func(i, j int) bool {
		if sums[i].Total == sums[j].Total {
			return sums[i].Label < sums[j].Label
		}
		return sums[i].Total > sums[j].Total
	})

	result := &models.TariffInsights{
		TotalRecords:       len(records),
		Tariffs:            sortedCounts(tariffs),
		SanctionLoad:       histogram(loads, sanctionLoadBins),
		CapacityByDivision: sums,
		Models:             sortedCounts(meterModels),
		InstallationTrend:  trend,
		GeneratedAt:        s.now().UTC(),
	}

	s.toCache(ctx, key, result)
	return result, false, nil
}

// FilterOptions returns cascading drill-down choices; each level is narrowed by the levels above it.
func (s *AnalyticsService) FilterOptions(ctx context.Context, actor Actor, filter models.MeterFilter) (*models.FilterOptions, error) {
	records, err := s.Visible(ctx, actor, models.MeterFilter{})
	if err != nil {
		return nil, err
	}
	opts := &models.FilterOptions{
		Circles: distinct(records, func(r models.MeterRecord) string { return r.Circle }),
	}
	records = FilterByScope(records, models.MeterFilter{Circle: filter.Circle}.AsScope(), false)
	opts.Divisions = distinct(records, func(r models.MeterRecord) string { return r.Division })
	records = FilterByScope(records, models.MeterFilter{Division: filter.Division}.AsScope(), false)
	opts.SubDivisions = distinct(records, func(r models.MeterRecord) string { return r.SubDivision })
	records = FilterByScope(records, models.MeterFilter{SubDivision: filter.SubDivision}.AsScope(), false)
	opts.Feeders = distinct(records, func(r models.MeterRecord) string { return r.Feeder })
	return opts, nil
}

func (s *AnalyticsService) fromCache(ctx context.Context, key string, dest interface{}) bool {
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.logger.Warn("analytics cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return hit
}

func (s *AnalyticsService) toCache(ctx context.Context, key string, value interface{}) {
	if err := s.cache.Set(ctx, key, value, 0); err != nil {
		s.logger.Warn("analytics cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func analyticsCacheKey(view string, actor Actor, filter models.MeterFilter) string {
	parts := []string{view, string(actor.Role)}
	scope := actor.Scope.Normalize()
	if actor.IsAdmin() {
		scope = models.AccessScope{}
	}
	for _, v := range []*string{scope.Circle, scope.Division, scope.SubDivision, scope.Feeder} {
		parts = append(parts, valueOrAll(v))
	}
	selection := filter.AsScope()
	for _, v := range []*string{selection.Circle, selection.Division, selection.SubDivision, selection.Feeder} {
		parts = append(parts, valueOrAll(v))
	}
	return strings.Join(parts, ":")
}

func valueOrAll(v *string) string {
	if v == nil {
		return "all"
	}
	return strings.ReplaceAll(*v, ":", "_")
}

func validCoordinate(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180 && !(lat == 0 && lng == 0)
}

func sortedCounts(counts map[string]int) []models.CountEntry {
	entries := make([]models.CountEntry, 0, len(counts))
	for label, count := range counts {
		entries = append(entries, models.CountEntry{Label: label, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count == entries[j].Count {
			return entries[i].Label < entries[j].Label
		}
		return entries[i].Count > entries[j].Count
	})
	return entries
}

func distinct(records []models.MeterRecord, field func(models.MeterRecord) string) []string {
	seen := map[string]struct{}{}
	values := []string{}
	for _, r := range records {
		v := strings.TrimSpace(field(r))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// histogram splits values into equal-width bins over [min, max]; the last bin is closed.
func histogram(values []float64, bins int) []models.HistogramBin {
	if len(values) == 0 || bins <= 0 {
		return []models.HistogramBin{}
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		return []models.HistogramBin{{Lower: lo, Upper: hi, Count: len(values)}}
	}
	width := (hi - lo) / float64(bins)
	result := make([]models.HistogramBin, bins)
	for i := range result {
		result[i].Lower = lo + float64(i)*width
		result[i].Upper = lo + float64(i+1)*width
	}
	result[bins-1].Upper = hi
	for _, v := range values {
		idx := int((v - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		result[idx].Count++
	}
	return result
}
