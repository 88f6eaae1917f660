// Package forecastadapt turns a raw, possibly gappy irradiance+power
// forecast from an external collaborator into a ForecastSeries on the
// scheduler's uniform hourly bucket grid, ready for the validator and
// the dispatch engine.
package forecastadapt

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/devskill-org/suryadrishti/model"
	"github.com/devskill-org/suryadrishti/solargeo"
)

// RawPoint is one sample of an external forecast, as handed to the
// adapter before grid alignment. Timestamp is always interpreted as
// UTC regardless of how the collaborator encoded it.
type RawPoint struct {
	Timestamp time.Time
	GHIWm2    float64
	PowerKW   float64
	P10KW     float64
	P50KW     float64
	P90KW     float64
	StdKW     float64
}

// CloudCoverageFunc resolves the forecast cloud-coverage percentage
// (0..100) for an instant, widening the p10/p90 spread when available.
// Modeled on the teacher's fetchCloudCoverage hook so a caller can wire
// a live meteo client or a stub in tests.
type CloudCoverageFunc func(instant time.Time) (*float64, error)

// Config holds the tunables named in §4.3's conversion and repair
// steps. Every factor is exported so a caller can override defaults
// per-site without touching adapter logic.
type Config struct {
	MaxSyntheticFraction float64 // fraction of daytime buckets allowed to be synthesized
	SystemFactor         float64
	TemperatureFactor    float64
	PollutionFactor      float64
	SoilingFactor        float64
	CloudWidening        CloudCoverageFunc
}

// Efficiency returns the composite GHI->power loss factor, the product
// of the four named factors (≈0.74 at defaults).
func (c Config) Efficiency() float64 {
	return c.SystemFactor * c.TemperatureFactor * c.PollutionFactor * c.SoilingFactor
}

// DefaultConfig returns the factors named verbatim in §4.3 step 6.
func DefaultConfig() Config {
	return Config{
		MaxSyntheticFraction: 0.25,
		SystemFactor:         0.85,
		TemperatureFactor:    0.95,
		PollutionFactor:      0.95,
		SoilingFactor:        0.97,
	}
}

// Adapt resamples raw onto horizonHours hourly buckets starting at the
// first IST hour boundary at or after referenceInstant, using DefaultConfig.
func Adapt(raw []RawPoint, loc model.Location, referenceInstant time.Time, horizonHours int, capacityKW float64) (model.ForecastSeries, error) {
	return AdaptWithConfig(raw, loc, referenceInstant, horizonHours, capacityKW, DefaultConfig())
}

// AdaptWithConfig is Adapt with caller-supplied conversion factors.
func AdaptWithConfig(raw []RawPoint, loc model.Location, referenceInstant time.Time, horizonHours int, capacityKW float64, cfg Config) (model.ForecastSeries, error) {
	if horizonHours <= 0 {
		return model.ForecastSeries{}, &UnusableForecastError{Reason: "horizon_hours must be positive"}
	}
	if len(raw) == 0 {
		return model.ForecastSeries{}, &UnusableForecastError{Reason: "no raw forecast points supplied"}
	}

	normalized := normalize(raw)
	gridStart := solargeo.NextHourBoundaryIST(referenceInstant)

	points := make([]model.ForecastPoint, horizonHours)
	synthesizedDaytime := 0
	daytimeTotal := 0

	for i := 0; i < horizonHours; i++ {
		bucketStart := gridStart.Add(time.Duration(i) * time.Hour)
		elevation := solargeo.ElevationDeg(loc, bucketStart)
		clearSky := solargeo.ClearSkyGHIWm2(loc, bucketStart)
		isDaytime := solargeo.IsDaytime(loc, bucketStart)

		point := model.ForecastPoint{
			Timestamp:         bucketStart,
			SolarElevationDeg: elevation,
			GHIClearSkyWm2:    clearSky,
			IsDaytime:         isDaytime,
		}
		if isDaytime {
			daytimeTotal++
		}

		if src, ok := nearestWithin(normalized, bucketStart, time.Hour); ok {
			point.GHIWm2 = src.GHIWm2
			point.PowerKW = src.PowerKW
			point.P10KW = src.P10KW
			point.P50KW = src.P50KW
			point.P90KW = src.P90KW
			point.StdKW = src.StdKW
		} else if isDaytime {
			// Substitutes the clear-sky value directly rather than
			// interpolating between neighboring matched points; see
			// DESIGN.md's forecastadapt entry.
			point.GHIWm2 = clearSky
			synthesizedDaytime++
		}
		// Night buckets with no source point are left at zero, which
		// step 3 (nighttime clamping) would produce anyway.

		points[i] = point
	}

	if daytimeTotal > 0 && float64(synthesizedDaytime)/float64(daytimeTotal) > cfg.MaxSyntheticFraction {
		return model.ForecastSeries{}, &UnusableForecastError{
			Reason: fmt.Sprintf("%d of %d daytime buckets (%.0f%%) had to be synthesized, exceeding the %.0f%% limit",
				synthesizedDaytime, daytimeTotal, 100*float64(synthesizedDaytime)/float64(daytimeTotal), 100*cfg.MaxSyntheticFraction),
		}
	}

	clampNighttime(points)
	repairDaytimeZeros(points)
	applyRealisticBounds(points, cfg)
	convertAndPreserveQuantiles(points, capacityKW, cfg)

	if cfg.CloudWidening != nil {
		widenWithCloudCoverage(points, cfg.CloudWidening)
	}

	return model.ForecastSeries{Points: points, HorizonHours: horizonHours}, nil
}

// normalize sorts raw points by timestamp and resolves duplicate
// timestamps with last-write-wins, matching §4.3 step 1.
func normalize(raw []RawPoint) []RawPoint {
	ordered := make([]RawPoint, len(raw))
	copy(ordered, raw)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	deduped := make([]RawPoint, 0, len(ordered))
	for _, p := range ordered {
		if n := len(deduped); n > 0 && deduped[n-1].Timestamp.Equal(p.Timestamp) {
			deduped[n-1] = p // last write wins
			continue
		}
		deduped = append(deduped, p)
	}
	return deduped
}

// nearestWithin finds the raw point closest to target, within window,
// assuming src is sorted ascending by Timestamp.
func nearestWithin(src []RawPoint, target time.Time, window time.Duration) (RawPoint, bool) {
	best := -1
	bestDelta := window
	for i, p := range src {
		delta := p.Timestamp.Sub(target)
		if delta < 0 {
			delta = -delta
		}
		if delta <= bestDelta {
			bestDelta = delta
			best = i
		}
	}
	if best < 0 {
		return RawPoint{}, false
	}
	return src[best], true
}

// clampNighttime implements §4.3 step 3: every non-daytime bucket is
// forced to zero across ghi, power, and the quantile fields.
func clampNighttime(points []model.ForecastPoint) {
	for i := range points {
		if points[i].IsDaytime {
			continue
		}
		points[i].GHIWm2 = 0
		points[i].PowerKW = 0
		points[i].P10KW = 0
		points[i].P50KW = 0
		points[i].P90KW = 0
		points[i].StdKW = 0
	}
}

// repairDaytimeZeros implements §4.3 step 4: a daytime bucket reporting
// zero irradiance while other daytime buckets are nonzero gets a
// clear-sky-scaled fallback, using the median ratio observed elsewhere
// in the series.
func repairDaytimeZeros(points []model.ForecastPoint) {
	var ratios []float64
	for _, p := range points {
		if p.IsDaytime && p.GHIWm2 > 0 && p.GHIClearSkyWm2 > 0 {
			ratios = append(ratios, p.GHIWm2/p.GHIClearSkyWm2)
		}
	}
	if len(ratios) == 0 {
		return
	}
	medianRatio := median(ratios)

	for i := range points {
		p := &points[i]
		if p.IsDaytime && p.GHIWm2 == 0 && p.GHIClearSkyWm2 > 0 {
			p.GHIWm2 = p.GHIClearSkyWm2 * medianRatio
		}
	}
}

func median(xs []float64) float64 {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// applyRealisticBounds implements §4.3 step 5.
func applyRealisticBounds(points []model.ForecastPoint, cfg Config) {
	for i := range points {
		p := &points[i]
		if p.GHIWm2 > 1000 {
			p.GHIWm2 = 1000
		}
		if p.GHIClearSkyWm2 > 0 && p.GHIWm2 > 1.10*p.GHIClearSkyWm2 {
			p.GHIWm2 = 1.10 * p.GHIClearSkyWm2
		}
		if p.SolarElevationDeg < 5 && p.SolarElevationDeg > 0 {
			p.GHIWm2 *= p.SolarElevationDeg / 5
		} else if p.SolarElevationDeg <= 0 {
			p.GHIWm2 = 0
		}
	}
}

// convertAndPreserveQuantiles implements §4.3 steps 6 and 7: GHI is
// converted to power via the composite loss factor, and the p10/p50/p90
// quantiles are rescaled by the same per-bucket adjustment ratio that
// was applied to ghi, then isotonically clipped.
func convertAndPreserveQuantiles(points []model.ForecastPoint, capacityKW float64, cfg Config) {
	eta := cfg.Efficiency()
	for i := range points {
		p := &points[i]
		p.PowerKW = (p.GHIWm2 / 1000) * capacityKW * eta

		if p.P50KW > 0 {
			ratio := p.PowerKW / p.P50KW
			p.P10KW *= ratio
			p.P50KW *= ratio
			p.P90KW *= ratio
		} else {
			p.P50KW = p.PowerKW
		}

		if p.P10KW > p.P50KW {
			p.P10KW = p.P50KW
		}
		if p.P90KW < p.P50KW {
			p.P90KW = p.P50KW
		}
	}
}

// widenWithCloudCoverage consults cloudFn for each daytime bucket and
// widens the p10/p90 spread around p50 in proportion to forecast cloud
// coverage, reflecting the additional uncertainty cloudy conditions
// introduce into an otherwise deterministic clear-sky-derived forecast.
func widenWithCloudCoverage(points []model.ForecastPoint, cloudFn CloudCoverageFunc) {
	for i := range points {
		p := &points[i]
		if !p.IsDaytime {
			continue
		}
		pct, err := cloudFn(p.Timestamp)
		if err != nil || pct == nil {
			continue
		}
		widen := 1 + (*pct/100)*0.5
		lowerSpread := (p.P50KW - p.P10KW) * widen
		upperSpread := (p.P90KW - p.P50KW) * widen
		p.P10KW = math.Max(0, p.P50KW-lowerSpread)
		p.P90KW = p.P50KW + upperSpread
	}
}
