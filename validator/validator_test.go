package validator

import (
	"testing"
	"time"

	"github.com/devskill-org/suryadrishti/model"
)

var delhi = model.Location{Latitude: 28.4595, Longitude: 77.0266}

func daytimePoint(hour int, ghi, clearSky, power float64) model.ForecastPoint {
	ts := time.Date(2025, 6, 15, hour, 0, 0, 0, time.FixedZone("IST", 5*3600+30*60))
	return model.ForecastPoint{
		Timestamp:         ts,
		GHIWm2:            ghi,
		GHIClearSkyWm2:    clearSky,
		SolarElevationDeg: 45,
		IsDaytime:         true,
		PowerKW:           power,
	}
}

func TestValidateRealisticForecast(t *testing.T) {
	series := model.ForecastSeries{HorizonHours: 3, Points: []model.ForecastPoint{
		daytimePoint(9, 400, 600, 15.4),
		daytimePoint(12, 672, 850, 25.9),
		daytimePoint(15, 300, 500, 11.6),
	}}

	v, err := Validate(series, delhi, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Verdict != model.VerdictRealistic && v.Verdict != model.VerdictMostlyRealistic {
		t.Fatalf("expected a realistic-ish verdict, got %s (warnings=%v issues=%v)", v.Verdict, v.Warnings, v.Issues)
	}
}

// A forecast with peak GHI above the 1000 W/m2 ceiling and a peak power
// that pushes the capacity factor past 0.85 on a 50kW system must be
// flagged incorrect, critical, citing both checks.
func TestValidateS4IncorrectVerdict(t *testing.T) {
	series := model.ForecastSeries{HorizonHours: 1, Points: []model.ForecastPoint{
		daytimePoint(12, 1050, 850, 44),
	}}

	v, err := Validate(series, delhi, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Verdict != model.VerdictIncorrect {
		t.Fatalf("expected incorrect verdict, got %s", v.Verdict)
	}
	if v.Severity != model.SeverityCritical {
		t.Fatalf("expected critical severity, got %s", v.Severity)
	}
	if len(v.Issues) < 2 {
		t.Fatalf("expected at least two issues (GHI + capacity factor), got %v", v.Issues)
	}
}

func TestValidateEmptySeriesIsMalformed(t *testing.T) {
	_, err := Validate(model.ForecastSeries{}, delhi, 50)
	if err == nil {
		t.Fatalf("expected malformed forecast error for empty series")
	}
	if _, ok := err.(*MalformedForecastError); !ok {
		t.Fatalf("expected *MalformedForecastError, got %T", err)
	}
}

func TestValidateDaytimeDetectionInconsistency(t *testing.T) {
	ts := time.Date(2025, 6, 15, 12, 0, 0, 0, time.FixedZone("IST", 5*3600+30*60))
	series := model.ForecastSeries{HorizonHours: 1, Points: []model.ForecastPoint{
		{
			Timestamp:         ts,
			GHIWm2:            400,
			GHIClearSkyWm2:    600,
			SolarElevationDeg: 45,
			IsDaytime:         false, // inconsistent: elevation and local time say daytime
			PowerKW:           15,
		},
	}}

	v, err := Validate(series, delhi, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Verdict != model.VerdictIncorrect {
		t.Fatalf("expected incorrect verdict for daytime-detection inconsistency, got %s", v.Verdict)
	}
}

func TestValidateTwoWarningsYieldsOptimistic(t *testing.T) {
	// Average clear-sky ratio just over the warn threshold, and peak
	// capacity factor just over its warn threshold, with nothing
	// crossing an issue threshold.
	series := model.ForecastSeries{HorizonHours: 1, Points: []model.ForecastPoint{
		daytimePoint(12, 665, 600, 40), // ratio ~1.11 -> warn; CF 0.80 -> warn
	}}

	v, err := Validate(series, delhi, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v.Warnings) < 2 {
		t.Fatalf("expected at least two warnings, got %v", v.Warnings)
	}
	if v.Verdict != model.VerdictOptimistic {
		t.Fatalf("expected optimistic verdict, got %s", v.Verdict)
	}
}
