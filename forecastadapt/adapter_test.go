package forecastadapt

import (
	"testing"
	"time"

	"github.com/devskill-org/suryadrishti/model"
)

var delhi = model.Location{Latitude: 28.6139, Longitude: 77.2090}

func utc(y int, m time.Month, d, h, minute int) time.Time {
	return time.Date(y, m, d, h, minute, 0, 0, time.UTC)
}

func TestAdaptGridAlignmentAndNighttimeClamping(t *testing.T) {
	// 2025-06-15 is midsummer in Delhi; noon IST is well inside the
	// daytime window and midnight IST is well outside it.
	ref := utc(2025, 6, 15, 0, 0) // 05:30 IST
	raw := []RawPoint{
		{Timestamp: utc(2025, 6, 15, 6, 30), GHIWm2: 650, PowerKW: 25, P10KW: 20, P50KW: 25, P90KW: 30},
	}

	series, err := Adapt(raw, delhi, ref, 24, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(series.Points) != 24 {
		t.Fatalf("expected 24 buckets, got %d", len(series.Points))
	}

	for _, p := range series.Points {
		if !p.IsDaytime {
			if p.GHIWm2 != 0 || p.PowerKW != 0 {
				t.Fatalf("expected nighttime bucket at %v to be clamped to zero, got ghi=%.1f power=%.1f", p.Timestamp, p.GHIWm2, p.PowerKW)
			}
		}
	}
}

func TestAdaptRejectsEmptyRaw(t *testing.T) {
	_, err := Adapt(nil, delhi, utc(2025, 6, 15, 0, 0), 24, 50)
	if err == nil {
		t.Fatalf("expected error for empty raw forecast")
	}
	if _, ok := err.(*UnusableForecastError); !ok {
		t.Fatalf("expected *UnusableForecastError, got %T", err)
	}
}

func TestAdaptCapsGHIAt1000(t *testing.T) {
	ref := utc(2025, 6, 15, 5, 0)
	raw := make([]RawPoint, 0, 24)
	for h := 0; h < 24; h++ {
		raw = append(raw, RawPoint{Timestamp: ref.Add(time.Duration(h) * time.Hour), GHIWm2: 1400, PowerKW: 48, P10KW: 44, P50KW: 48, P90KW: 52})
	}

	series, err := Adapt(raw, delhi, ref, 24, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range series.Points {
		if p.GHIWm2 > 1000 {
			t.Fatalf("ghi %.1f exceeds the 1000 W/m2 ceiling", p.GHIWm2)
		}
	}
}

func TestAdaptPreservesQuantileOrdering(t *testing.T) {
	ref := utc(2025, 6, 15, 5, 0)
	raw := []RawPoint{
		// p10 > p50 on purpose, to exercise the isotonic clip.
		{Timestamp: ref.Add(7 * time.Hour), GHIWm2: 500, PowerKW: 20, P10KW: 30, P50KW: 20, P90KW: 10},
	}

	series, err := Adapt(raw, delhi, ref, 24, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range series.Points {
		if p.P10KW > p.P50KW || p.P90KW < p.P50KW {
			t.Fatalf("quantile ordering violated at %v: p10=%.2f p50=%.2f p90=%.2f", p.Timestamp, p.P10KW, p.P50KW, p.P90KW)
		}
	}
}

func TestAdaptFailsWhenTooManyDaytimeBucketsSynthesized(t *testing.T) {
	ref := utc(2025, 6, 15, 5, 0)
	// A single raw point leaves every other daytime bucket in a
	// 48-hour horizon to be synthesized, well past the 25% ceiling.
	raw := []RawPoint{
		{Timestamp: ref.Add(7 * time.Hour), GHIWm2: 500, PowerKW: 20, P10KW: 18, P50KW: 20, P90KW: 22},
	}

	_, err := Adapt(raw, delhi, ref, 48, 50)
	if err == nil {
		t.Fatalf("expected UnusableForecastError from excessive synthesis")
	}
	if _, ok := err.(*UnusableForecastError); !ok {
		t.Fatalf("expected *UnusableForecastError, got %T", err)
	}
}

func TestAdaptWidensSpreadWithCloudCoverage(t *testing.T) {
	ref := utc(2025, 6, 15, 5, 0)
	raw := make([]RawPoint, 0, 24)
	for h := 0; h < 24; h++ {
		raw = append(raw, RawPoint{Timestamp: ref.Add(time.Duration(h) * time.Hour), GHIWm2: 500, PowerKW: 19, P10KW: 17, P50KW: 19, P90KW: 21})
	}

	cfg := DefaultConfig()
	heavyCloud := 80.0
	cfg.CloudWidening = func(time.Time) (*float64, error) { return &heavyCloud, nil }

	withCloud, err := AdaptWithConfig(raw, delhi, ref, 24, 50, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	without, err := Adapt(raw, delhi, ref, 24, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range withCloud.Points {
		a, b := withCloud.Points[i], without.Points[i]
		if !a.IsDaytime {
			continue
		}
		spreadWith := a.P90KW - a.P10KW
		spreadWithout := b.P90KW - b.P10KW
		if spreadWith < spreadWithout {
			t.Fatalf("expected cloud-widened spread >= baseline at %v, got %.2f < %.2f", a.Timestamp, spreadWith, spreadWithout)
		}
	}
}
