package alerts

import (
	"testing"
	"time"

	"github.com/devskill-org/suryadrishti/dispatch"
	"github.com/devskill-org/suryadrishti/model"
)

func dayAt(hour int) time.Time {
	return time.Date(2025, 6, 15, hour, 0, 0, 0, time.UTC)
}

func TestEvaluatePowerDropImminentMirrorsS2(t *testing.T) {
	forecast := model.ForecastSeries{Points: []model.ForecastPoint{
		{Timestamp: dayAt(10), PowerKW: 30, IsDaytime: true},
		{Timestamp: dayAt(11), PowerKW: 12, IsDaytime: true},
	}}
	result := Evaluate("mg-2", forecast, model.ValidationVerdict{Verdict: model.VerdictRealistic}, model.Schedule{}, nil, model.Metrics{}, 0.2)

	found := false
	for _, a := range result {
		if a.Kind == model.AlertPowerDropImminent && a.BucketStart.Equal(dayAt(10)) {
			found = true
			if a.Severity != model.SeverityWarning {
				t.Fatalf("expected warning severity, got %v", a.Severity)
			}
		}
	}
	if !found {
		t.Fatalf("expected power_drop_imminent at t=10, got %+v", result)
	}
}

func TestEvaluateForecastImplausibleSeverityByVerdict(t *testing.T) {
	schedule := model.Schedule{Buckets: []model.Bucket{{StartTime: dayAt(0)}}}

	optimistic := Evaluate("mg-1", model.ForecastSeries{}, model.ValidationVerdict{Verdict: model.VerdictOptimistic}, schedule, nil, model.Metrics{}, 0.2)
	incorrect := Evaluate("mg-1", model.ForecastSeries{}, model.ValidationVerdict{Verdict: model.VerdictIncorrect}, schedule, nil, model.Metrics{}, 0.2)
	realistic := Evaluate("mg-1", model.ForecastSeries{}, model.ValidationVerdict{Verdict: model.VerdictRealistic}, schedule, nil, model.Metrics{}, 0.2)

	assertHasKindSeverity(t, optimistic, model.AlertForecastImplausible, model.SeverityWarning)
	assertHasKindSeverity(t, incorrect, model.AlertForecastImplausible, model.SeverityCritical)
	for _, a := range realistic {
		if a.Kind == model.AlertForecastImplausible {
			t.Fatalf("expected no forecast_implausible alert for a realistic verdict")
		}
	}
}

func TestEvaluateSOCCriticalAndEssentialUnserved(t *testing.T) {
	schedule := model.Schedule{Buckets: []model.Bucket{
		{Index: 0, StartTime: dayAt(3), SOCEnd: 0.21, EssentialUnserved: true},
		{Index: 1, StartTime: dayAt(4), SOCEnd: 0.5},
	}}
	result := Evaluate("mg-1", model.ForecastSeries{}, model.ValidationVerdict{Verdict: model.VerdictRealistic}, schedule, nil, model.Metrics{}, 0.2)

	assertHasKindSeverity(t, result, model.AlertSOCCritical, model.SeverityCritical)
	assertHasKindSeverity(t, result, model.AlertEssentialUnserved, model.SeverityCritical)
}

func TestEvaluateIrrigationDeferredAndBatteryCycleAnomaly(t *testing.T) {
	schedule := model.Schedule{Buckets: []model.Bucket{{StartTime: dayAt(10)}}}
	deferred := []dispatch.IrrigationDeferral{
		{DeviceID: "pump-1", DeviceName: "irrigation pump", BucketIndex: 10, BucketStart: dayAt(10)},
	}
	metrics := model.Metrics{BatteryCycleEfficiency: 0.55}

	result := Evaluate("mg-2", model.ForecastSeries{}, model.ValidationVerdict{Verdict: model.VerdictRealistic}, schedule, deferred, metrics, 0.2)

	assertHasKindSeverity(t, result, model.AlertIrrigationDeferred, model.SeverityWarning)
	assertHasKindSeverity(t, result, model.AlertBatteryCycleAnomaly, model.SeverityInfo)
}

func TestEvaluateIsIdempotentOnIdenticalInputs(t *testing.T) {
	schedule := model.Schedule{Buckets: []model.Bucket{{Index: 0, StartTime: dayAt(3), SOCEnd: 0.21}}}
	first := Evaluate("mg-1", model.ForecastSeries{}, model.ValidationVerdict{Verdict: model.VerdictRealistic}, schedule, nil, model.Metrics{}, 0.2)
	second := Evaluate("mg-1", model.ForecastSeries{}, model.ValidationVerdict{Verdict: model.VerdictRealistic}, schedule, nil, model.Metrics{}, 0.2)

	if len(first) != len(second) {
		t.Fatalf("expected identical alert counts across runs")
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("expected stable alert IDs: %q vs %q", first[i].ID, second[i].ID)
		}
	}
}

func assertHasKindSeverity(t *testing.T, alerts []model.Alert, kind model.AlertKind, severity model.Severity) {
	t.Helper()
	for _, a := range alerts {
		if a.Kind == kind {
			if a.Severity != severity {
				t.Fatalf("expected %s severity %v, got %v", kind, severity, a.Severity)
			}
			return
		}
	}
	t.Fatalf("expected an alert of kind %s, got %+v", kind, alerts)
}
