// Package validator applies physical-plausibility checks to an incoming
// irradiance+power forecast and reduces them to a verdict the dispatch
// engine consults in advisory mode (§4.2).
package validator

import (
	"fmt"
	"math"

	"github.com/devskill-org/suryadrishti/model"
	"github.com/devskill-org/suryadrishti/solargeo"
)

// Thresholds holds every numeric bound used by the rule table, broken out
// so a caller (or a future config-driven revision) can override them
// without touching the check logic.
type Thresholds struct {
	GHIIssueWm2             float64
	GHIWarnWm2               float64
	PeakCapacityFactorIssue  float64
	PeakCapacityFactorWarn   float64
	AvgCapacityFactorWarn    float64
	ClearSkyRatioIssueHigh   float64
	ClearSkyRatioWarnHigh    float64
	ClearSkyRatioWarnLow     float64
	ElevationConsistencyMult float64
	ConversionEfficiency     float64
	ConversionToleranceAbs   float64
}

// DefaultThresholds returns the thresholds named verbatim in §4.2's rule
// table.
func DefaultThresholds() Thresholds {
	return Thresholds{
		GHIIssueWm2:              1000,
		GHIWarnWm2:                900,
		PeakCapacityFactorIssue:   0.85,
		PeakCapacityFactorWarn:    0.75,
		AvgCapacityFactorWarn:     0.40,
		ClearSkyRatioIssueHigh:    1.15,
		ClearSkyRatioWarnHigh:     1.10,
		ClearSkyRatioWarnLow:      0.30,
		ElevationConsistencyMult:  1.2,
		ConversionEfficiency:      0.77,
		ConversionToleranceAbs:    0.15,
	}
}

// Validate runs the §4.2 rule set against series for a fixed location and
// nominal plant capacity, returning a structured verdict.
func Validate(series model.ForecastSeries, loc model.Location, capacityKW float64) (model.ValidationVerdict, error) {
	return ValidateWithThresholds(series, loc, capacityKW, DefaultThresholds())
}

// ValidateWithThresholds is Validate with caller-supplied thresholds.
func ValidateWithThresholds(series model.ForecastSeries, loc model.Location, capacityKW float64, th Thresholds) (model.ValidationVerdict, error) {
	if err := checkStructurallyValid(series); err != nil {
		return model.ValidationVerdict{}, err
	}

	var v model.ValidationVerdict

	record := func(bucket *[]string, label string) {
		*bucket = append(*bucket, label)
	}

	// Check 1: max GHI.
	maxGHI := 0.0
	for _, p := range series.Points {
		if p.GHIWm2 > maxGHI {
			maxGHI = p.GHIWm2
		}
	}
	switch {
	case maxGHI > th.GHIIssueWm2:
		record(&v.Issues, fmt.Sprintf("max GHI %.1f W/m2 exceeds %.0f W/m2", maxGHI, th.GHIIssueWm2))
		v.Causes = append(v.Causes, "GHI exceeds 1000 W/m2 physical ceiling")
	case maxGHI > th.GHIWarnWm2:
		record(&v.Warnings, fmt.Sprintf("max GHI %.1f W/m2 exceeds warn threshold %.0f W/m2", maxGHI, th.GHIWarnWm2))
	default:
		record(&v.Passed, "max GHI within bounds")
	}

	// Check 2: peak capacity factor.
	maxPower := 0.0
	for _, p := range series.Points {
		if p.PowerKW > maxPower {
			maxPower = p.PowerKW
		}
	}
	peakCF := 0.0
	if capacityKW > 0 {
		peakCF = maxPower / capacityKW
	}
	switch {
	case peakCF > th.PeakCapacityFactorIssue:
		record(&v.Issues, fmt.Sprintf("peak capacity factor %.2f exceeds %.2f", peakCF, th.PeakCapacityFactorIssue))
		v.Causes = append(v.Causes, "capacity factor exceeds 0.85")
	case peakCF > th.PeakCapacityFactorWarn:
		record(&v.Warnings, fmt.Sprintf("peak capacity factor %.2f exceeds warn threshold %.2f", peakCF, th.PeakCapacityFactorWarn))
	default:
		record(&v.Passed, "peak capacity factor within bounds")
	}

	// Check 3: average capacity factor.
	avgCF := averageCapacityFactor(series, capacityKW)
	if avgCF > th.AvgCapacityFactorWarn {
		record(&v.Warnings, fmt.Sprintf("average capacity factor %.2f exceeds warn threshold %.2f", avgCF, th.AvgCapacityFactorWarn))
	} else {
		record(&v.Passed, "average capacity factor within bounds")
	}

	// Check 4: average clear-sky ratio over daytime buckets.
	ratio, ok := averageClearSkyRatio(series)
	if ok {
		switch {
		case ratio > th.ClearSkyRatioIssueHigh:
			record(&v.Issues, fmt.Sprintf("average clear-sky ratio %.2f exceeds %.2f", ratio, th.ClearSkyRatioIssueHigh))
			v.Causes = append(v.Causes, "GHI implausibly exceeds clear-sky reference")
		case ratio > th.ClearSkyRatioWarnHigh:
			record(&v.Warnings, fmt.Sprintf("average clear-sky ratio %.2f exceeds warn threshold %.2f", ratio, th.ClearSkyRatioWarnHigh))
		case ratio < th.ClearSkyRatioWarnLow:
			record(&v.Warnings, fmt.Sprintf("average clear-sky ratio %.2f below warn threshold %.2f", ratio, th.ClearSkyRatioWarnLow))
		default:
			record(&v.Passed, "average clear-sky ratio within bounds")
		}
	} else {
		record(&v.Passed, "no daytime buckets to evaluate clear-sky ratio")
	}

	// Check 5: elevation consistency at the argmax-elevation bucket.
	if idx, ok := argmaxElevation(series); ok {
		p := series.Points[idx]
		expected := math.Sin(p.SolarElevationDeg*math.Pi/180) * p.GHIClearSkyWm2
		if expected > 0 && p.GHIWm2 > th.ElevationConsistencyMult*expected {
			record(&v.Warnings, fmt.Sprintf("GHI at peak elevation (%.1f) exceeds %.1fx expected (%.1f)", p.GHIWm2, th.ElevationConsistencyMult, expected))
		} else {
			record(&v.Passed, "elevation consistency within bounds")
		}
	}

	// Check 6: daytime-detection consistency.
	daytimeIssue := false
	for _, p := range series.Points {
		localHour := solargeo.LocalTimeIST(p.Timestamp).Hour()
		physicallyDaytime := p.SolarElevationDeg >= 0 && localHour >= 6 && localHour < 19
		if physicallyDaytime && !p.IsDaytime {
			daytimeIssue = true
			break
		}
	}
	if daytimeIssue {
		record(&v.Issues, "is_daytime false while elevation and local time indicate daytime")
		v.Causes = append(v.Causes, "daytime-detection inconsistency")
	} else {
		record(&v.Passed, "daytime detection consistent")
	}

	// Check 7: power-GHI conversion efficiency at daytime peak.
	if idx, ok := argmaxPowerDaytime(series); ok {
		p := series.Points[idx]
		if p.GHIWm2 > 0 && capacityKW > 0 {
			efficiency := p.PowerKW / ((p.GHIWm2 / 1000) * capacityKW)
			if math.Abs(efficiency-th.ConversionEfficiency) > th.ConversionToleranceAbs {
				record(&v.Warnings, fmt.Sprintf("power/GHI conversion efficiency %.2f deviates from expected %.2f", efficiency, th.ConversionEfficiency))
			} else {
				record(&v.Passed, "power/GHI conversion efficiency within bounds")
			}
		}
	}

	reduceVerdict(&v)
	v.Recommendations = recommendationsFor(v)
	return v, nil
}

func recommendationsFor(v model.ValidationVerdict) []string {
	if len(v.Issues) == 0 && len(v.Warnings) == 0 {
		return nil
	}
	recs := make([]string, 0, 2)
	if len(v.Issues) > 0 {
		recs = append(recs, "do not dispatch against this forecast without operator review; rerun against clear-sky bounds")
	}
	if len(v.Warnings) > 0 {
		recs = append(recs, "treat the schedule produced from this forecast as advisory and monitor realized generation")
	}
	return recs
}

func checkStructurallyValid(series model.ForecastSeries) error {
	if len(series.Points) == 0 {
		return &MalformedForecastError{Reason: "forecast series is empty"}
	}
	var prev *model.ForecastPoint
	anyNonNegativeElevation := false
	for i := range series.Points {
		p := series.Points[i]
		if p.Timestamp.IsZero() {
			return &MalformedForecastError{Reason: fmt.Sprintf("point %d has no timestamp", i)}
		}
		if prev != nil && !p.Timestamp.After(prev.Timestamp) {
			return &MalformedForecastError{Reason: "timestamps are not strictly increasing"}
		}
		if p.SolarElevationDeg >= 0 {
			anyNonNegativeElevation = true
		}
		prev = &series.Points[i]
	}
	if !anyNonNegativeElevation {
		return &MalformedForecastError{Reason: "elevation never reaches or exceeds zero across the series"}
	}
	return nil
}

func averageCapacityFactor(series model.ForecastSeries, capacityKW float64) float64 {
	if capacityKW <= 0 || len(series.Points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range series.Points {
		sum += p.PowerKW / capacityKW
	}
	return sum / float64(len(series.Points))
}

func averageClearSkyRatio(series model.ForecastSeries) (float64, bool) {
	var sum float64
	var n int
	for _, p := range series.Points {
		if !p.IsDaytime || p.GHIClearSkyWm2 <= 0 {
			continue
		}
		sum += p.GHIWm2 / p.GHIClearSkyWm2
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func argmaxElevation(series model.ForecastSeries) (int, bool) {
	best := -1
	bestElev := math.Inf(-1)
	for i, p := range series.Points {
		if p.SolarElevationDeg > bestElev {
			bestElev = p.SolarElevationDeg
			best = i
		}
	}
	return best, best >= 0
}

func argmaxPowerDaytime(series model.ForecastSeries) (int, bool) {
	best := -1
	bestPower := math.Inf(-1)
	for i, p := range series.Points {
		if !p.IsDaytime {
			continue
		}
		if p.PowerKW > bestPower {
			bestPower = p.PowerKW
			best = i
		}
	}
	return best, best >= 0
}

// reduceVerdict applies the §4.2 verdict-reduction table based on the
// number of issues/warnings already recorded.
func reduceVerdict(v *model.ValidationVerdict) {
	switch {
	case len(v.Issues) > 0:
		v.Verdict = model.VerdictIncorrect
		v.Severity = model.SeverityCritical
		v.Summary = fmt.Sprintf("forecast failed %d plausibility check(s)", len(v.Issues))
	case len(v.Warnings) >= 2:
		v.Verdict = model.VerdictOptimistic
		v.Severity = model.SeverityMedium
		v.Summary = fmt.Sprintf("forecast raised %d warning(s)", len(v.Warnings))
	case len(v.Warnings) == 1:
		v.Verdict = model.VerdictMostlyRealistic
		v.Severity = model.SeverityLow
		v.Summary = "forecast raised one warning"
	default:
		v.Verdict = model.VerdictRealistic
		v.Severity = model.SeverityNone
		v.Summary = "forecast passed all plausibility checks"
	}
}
