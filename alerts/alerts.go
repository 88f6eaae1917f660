// Package alerts scans a forecast and its resulting schedule for the
// operational conditions named in §4.7 and emits alert records.
// Alerts are idempotent on (microgrid_id, kind, bucket_start): the same
// inputs always produce the same alert set, keyed the same way, so a
// re-run can be upserted without duplication.
package alerts

import (
	"fmt"
	"time"

	"github.com/devskill-org/suryadrishti/dispatch"
	"github.com/devskill-org/suryadrishti/model"
)

// powerDropFraction, batteryCycleAnomalyCeiling and socCriticalMargin
// are the constants named in §4.7's rule table.
const (
	powerDropFraction          = 0.20
	batteryCycleAnomalyCeiling = 0.70
	socCriticalMargin          = 0.02
)

// Evaluate runs the full §4.7 rule set. forecast supplies the lookahead
// window for power_drop_imminent; verdict is the validator's output for
// this same forecast (evaluated separately, in advisory mode); deferred
// is the dispatch engine's irrigation-deferral list; metrics is the
// schedule's computed audit figures; minSOC is the configured
// battery_min_soc the soc_critical rule is relative to.
func Evaluate(microgridID string, forecast model.ForecastSeries, verdict model.ValidationVerdict, schedule model.Schedule, deferred []dispatch.IrrigationDeferral, metrics model.Metrics, minSOC float64) []model.Alert {
	var out []model.Alert

	out = append(out, powerDropAlerts(microgridID, forecast)...)
	out = append(out, forecastImplausibleAlert(microgridID, verdict, schedule))
	out = append(out, SOCCriticalAlerts(microgridID, schedule, minSOC)...)
	out = append(out, essentialUnservedAlerts(microgridID, schedule)...)
	out = append(out, irrigationDeferredAlerts(microgridID, deferred)...)
	out = append(out, batteryCycleAnomalyAlert(microgridID, schedule, metrics))

	result := make([]model.Alert, 0, len(out))
	for _, a := range out {
		if a.Kind != "" {
			result = append(result, a)
		}
	}
	return result
}

func powerDropAlerts(microgridID string, forecast model.ForecastSeries) []model.Alert {
	var out []model.Alert
	for i, p := range forecast.Points {
		if !p.IsDaytime || p.PowerKW <= 0 || i+1 >= len(forecast.Points) {
			continue
		}
		next := forecast.Points[i+1].PowerKW
		drop := p.PowerKW - next
		if drop <= 0 || drop < powerDropFraction*p.PowerKW {
			continue
		}
		out = append(out, newAlert(microgridID, model.AlertPowerDropImminent, model.SeverityWarning,
			fmt.Sprintf("forecast power expected to drop from %.1f kW to %.1f kW within the next hour", p.PowerKW, next),
			p.Timestamp))
	}
	return out
}

func forecastImplausibleAlert(microgridID string, verdict model.ValidationVerdict, schedule model.Schedule) model.Alert {
	var severity model.Severity
	switch verdict.Verdict {
	case model.VerdictOptimistic:
		severity = model.SeverityWarning
	case model.VerdictIncorrect:
		severity = model.SeverityCritical
	default:
		return model.Alert{}
	}
	bucketStart := scheduleStart(schedule)
	return newAlert(microgridID, model.AlertForecastImplausible, severity,
		fmt.Sprintf("forecast validator verdict: %s — %s", verdict.Verdict, verdict.Summary), bucketStart)
}

// SOCCriticalAlerts implements the soc_critical rule: any
// bucket.soc_end <= min_soc + 0.02.
func SOCCriticalAlerts(microgridID string, schedule model.Schedule, minSOC float64) []model.Alert {
	var out []model.Alert
	for _, b := range schedule.Buckets {
		if b.SOCEnd <= minSOC+socCriticalMargin {
			out = append(out, newAlert(microgridID, model.AlertSOCCritical, model.SeverityCritical,
				fmt.Sprintf("battery SOC %.3f at or below min_soc+0.02 (%.3f)", b.SOCEnd, minSOC+socCriticalMargin),
				b.StartTime))
		}
	}
	return out
}

func essentialUnservedAlerts(microgridID string, schedule model.Schedule) []model.Alert {
	var out []model.Alert
	for _, b := range schedule.Buckets {
		if b.EssentialUnserved {
			out = append(out, newAlert(microgridID, model.AlertEssentialUnserved, model.SeverityCritical,
				fmt.Sprintf("essential load could not be fully served in bucket %d", b.Index), b.StartTime))
		}
	}
	return out
}

func irrigationDeferredAlerts(microgridID string, deferred []dispatch.IrrigationDeferral) []model.Alert {
	var out []model.Alert
	for _, d := range deferred {
		out = append(out, newAlert(microgridID, model.AlertIrrigationDeferred, model.SeverityWarning,
			fmt.Sprintf("irrigation pump %s deferred ahead of an anticipated forecast drop", d.DeviceName), d.BucketStart))
	}
	return out
}

func batteryCycleAnomalyAlert(microgridID string, schedule model.Schedule, metrics model.Metrics) model.Alert {
	if metrics.BatteryCycleEfficiency <= 0 || metrics.BatteryCycleEfficiency >= batteryCycleAnomalyCeiling {
		return model.Alert{}
	}
	return newAlert(microgridID, model.AlertBatteryCycleAnomaly, model.SeverityInfo,
		fmt.Sprintf("battery cycle efficiency %.2f below %.2f", metrics.BatteryCycleEfficiency, batteryCycleAnomalyCeiling),
		scheduleStart(schedule))
}

func scheduleStart(schedule model.Schedule) time.Time {
	if len(schedule.Buckets) == 0 {
		return time.Time{}
	}
	return schedule.Buckets[0].StartTime
}

// newAlert builds an Alert with a deterministic ID derived from
// (microgrid_id, kind, bucket_start), the same triple the idempotency
// rule keys on, so re-running the pipeline on identical inputs always
// produces the same alert identity.
func newAlert(microgridID string, kind model.AlertKind, severity model.Severity, message string, bucketStart time.Time) model.Alert {
	return model.Alert{
		ID:          fmt.Sprintf("%s:%s:%d", microgridID, kind, bucketStart.Unix()),
		MicrogridID: microgridID,
		Severity:    severity,
		Kind:        kind,
		Message:     message,
		BucketStart: bucketStart,
	}
}
