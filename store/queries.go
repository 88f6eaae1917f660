package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/devskill-org/suryadrishti/model"
)

// These queries serve the HTTP/API layer's read side (§6: "several
// read-only queries exposed to the HTTP/API layer"), distinct from the
// engine's own persistence interface above — nothing in dispatch,
// metrics, or alerts calls these.

// LatestSchedule returns the most recently created schedule for a
// microgrid along with its database ID, for the server package to
// render or push over a websocket.
func (r *Repository) LatestSchedule(ctx context.Context, microgridID string) (string, model.Schedule, error) {
	var scheduleID string
	var schedule model.Schedule
	var warnings string
	schedule.MicrogridID = microgridID

	row := r.db.QueryRowContext(ctx, `
		SELECT id, date, solar_utilization_percent, estimated_cost_savings,
			battery_cycle_efficiency, grid_import_reduction_percent,
			grid_export_energy_kwh, grid_export_revenue, carbon_footprint_reduction_kg,
			capacity_factor_peak_percent, capacity_factor_average_percent,
			warnings, created_at
		FROM schedules WHERE microgrid_id = $1
		ORDER BY created_at DESC LIMIT 1
	`, microgridID)
	err := row.Scan(&scheduleID, &schedule.Date,
		&schedule.Metrics.SolarUtilizationPercent, &schedule.Metrics.EstimatedCostSavings,
		&schedule.Metrics.BatteryCycleEfficiency, &schedule.Metrics.GridImportReductionPercent,
		&schedule.Metrics.GridExportEnergyKWh, &schedule.Metrics.GridExportRevenue,
		&schedule.Metrics.CarbonFootprintReductionKg,
		&schedule.Metrics.CapacityFactor.PeakPercent, &schedule.Metrics.CapacityFactor.AveragePercent,
		&warnings, &schedule.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return "", model.Schedule{}, fmt.Errorf("store: no schedule found for microgrid %q", microgridID)
	}
	if err != nil {
		return "", model.Schedule{}, fmt.Errorf("store: failed to load latest schedule: %w", err)
	}
	if warnings != "" {
		schedule.Warnings = strings.Split(warnings, "\n")
	}

	buckets, err := r.loadBuckets(ctx, scheduleID)
	if err != nil {
		return "", model.Schedule{}, err
	}
	schedule.Buckets = buckets
	return scheduleID, schedule, nil
}

func (r *Repository) loadBuckets(ctx context.Context, scheduleID string) ([]model.Bucket, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT index, start_time, duration_hours, solar_kw, load_kw,
			battery_charge_kw, battery_discharge_kw, grid_import_kw, grid_export_kw,
			generator_kw, soc_end, essential_unserved, soc_clipped
		FROM schedule_buckets WHERE schedule_id = $1 ORDER BY index
	`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("store: failed to query schedule buckets: %w", err)
	}
	defer rows.Close()

	var buckets []model.Bucket
	for rows.Next() {
		var b model.Bucket
		if err := rows.Scan(&b.Index, &b.StartTime, &b.DurationHours, &b.SolarKW, &b.LoadKW,
			&b.BatteryChargeKW, &b.BatteryDischargeKW, &b.GridImportKW, &b.GridExportKW,
			&b.GeneratorKW, &b.SOCEnd, &b.EssentialUnserved, &b.SOCClipped); err != nil {
			return nil, fmt.Errorf("store: failed to scan schedule bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: error iterating schedule buckets: %w", err)
	}
	return buckets, nil
}

// AlertsForSchedule returns the alerts tied to a given schedule ID, in
// the order they were created.
func (r *Repository) AlertsForSchedule(ctx context.Context, scheduleID string) ([]model.Alert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, microgrid_id, severity, kind, message, bucket_start, created_at
		FROM alerts WHERE schedule_id = $1 ORDER BY created_at
	`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("store: failed to query alerts: %w", err)
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		var severity, kind string
		if err := rows.Scan(&a.ID, &a.MicrogridID, &severity, &kind, &a.Message, &a.BucketStart, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: failed to scan alert: %w", err)
		}
		a.Severity = parseSeverity(severity)
		a.Kind = model.AlertKind(kind)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: error iterating alerts: %w", err)
	}
	return out, nil
}

func parseSeverity(s string) model.Severity {
	switch s {
	case "info":
		return model.SeverityInfo
	case "low":
		return model.SeverityLow
	case "medium":
		return model.SeverityMedium
	case "warning":
		return model.SeverityWarning
	case "critical":
		return model.SeverityCritical
	default:
		return model.SeverityNone
	}
}
