// Package store implements the repository capability set §6 names as
// the engine's persistence boundary: configuration and device lookup,
// the latest sensor reading for seeding InitialSOC, schedule and alert
// writes, and a per-microgrid advisory lock serializing the
// [fetch inputs → engine run → write schedule] sequence for a given
// microgrid. Built against Postgres, the same database the teacher's
// scheduler persisted MPC decisions to.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/devskill-org/suryadrishti/model"
)

// Repository is a Postgres-backed implementation of the engine's
// persistence interface.
type Repository struct {
	db *sql.DB
}

// Open connects to Postgres at dsn and verifies the connection.
func Open(dsn string) (*Repository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to connect: %w", err)
	}
	return &Repository{db: db}, nil
}

// NewRepository wraps an already-open database handle, for callers
// that manage the connection pool themselves (and for tests against
// sqlmock or a test container).
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Close releases the underlying connection pool.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping verifies the database connection is alive, for the server
// package's readiness probe.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// LoadConfig loads the system configuration for a microgrid.
func (r *Repository) LoadConfig(ctx context.Context, microgridID string) (model.SystemConfiguration, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT battery_capacity_kwh, battery_max_charge_kw, battery_max_discharge_kw,
			battery_min_soc, battery_max_soc, battery_efficiency,
			grid_peak_rate_per_kwh, grid_off_peak_rate_per_kwh,
			grid_peak_hour_start, grid_peak_hour_end,
			grid_export_rate_per_kwh, grid_export_enabled, grid_available,
			generator_fuel_cost_per_l, generator_fuel_consumption_l_per_kwh,
			generator_min_runtime_min, generator_max_power_kw,
			optimization_mode, safety_margin_critical
		FROM microgrid_configs WHERE microgrid_id = $1
	`, microgridID)

	var cfg model.SystemConfiguration
	var mode string
	err := row.Scan(
		&cfg.BatteryCapacityKWh, &cfg.BatteryMaxChargeKW, &cfg.BatteryMaxDischargeKW,
		&cfg.BatteryMinSOC, &cfg.BatteryMaxSOC, &cfg.BatteryEfficiency,
		&cfg.GridPeakRatePerKWh, &cfg.GridOffPeakRatePerKWh,
		&cfg.GridPeakHours.Start, &cfg.GridPeakHours.End,
		&cfg.GridExportRatePerKWh, &cfg.GridExportEnabled, &cfg.GridAvailable,
		&cfg.GeneratorFuelCostPerL, &cfg.GeneratorFuelConsumLKWh,
		&cfg.GeneratorMinRuntimeMin, &cfg.GeneratorMaxPowerKW,
		&mode, &cfg.SafetyMarginCritical,
	)
	if err == sql.ErrNoRows {
		return model.SystemConfiguration{}, fmt.Errorf("store: no configuration found for microgrid %q", microgridID)
	}
	if err != nil {
		return model.SystemConfiguration{}, fmt.Errorf("store: failed to load configuration: %w", err)
	}
	cfg.OptimizationMode = parseOptimizationMode(mode)
	return cfg, nil
}

// LoadProfile loads a microgrid's fixed site data: its location and
// nominal installed solar capacity.
func (r *Repository) LoadProfile(ctx context.Context, microgridID string) (model.MicrogridProfile, error) {
	var p model.MicrogridProfile
	err := r.db.QueryRowContext(ctx, `
		SELECT latitude, longitude, solar_capacity_kw
		FROM microgrid_configs WHERE microgrid_id = $1
	`, microgridID).Scan(&p.Location.Latitude, &p.Location.Longitude, &p.SolarCapacityKW)
	if err == sql.ErrNoRows {
		return model.MicrogridProfile{}, fmt.Errorf("store: no profile found for microgrid %q", microgridID)
	}
	if err != nil {
		return model.MicrogridProfile{}, fmt.Errorf("store: failed to load profile: %w", err)
	}
	return p, nil
}

// LoadDevices loads a microgrid's device fleet, optionally restricted
// to active devices only.
func (r *Repository) LoadDevices(ctx context.Context, microgridID string, activeOnly bool) ([]model.Device, error) {
	query := `
		SELECT id, name, power_kw, device_type, min_runtime_minutes, priority,
			preferred_hour_start, preferred_hour_end, is_active, irrigation_flag
		FROM devices WHERE microgrid_id = $1`
	if activeOnly {
		query += ` AND is_active = true`
	}

	rows, err := r.db.QueryContext(ctx, query, microgridID)
	if err != nil {
		return nil, fmt.Errorf("store: failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []model.Device
	for rows.Next() {
		var d model.Device
		var deviceType string
		var prefStart, prefEnd sql.NullInt64

		if err := rows.Scan(&d.ID, &d.Name, &d.PowerKW, &deviceType, &d.MinRuntimeMinutes, &d.Priority,
			&prefStart, &prefEnd, &d.IsActive, &d.IrrigationFlag); err != nil {
			return nil, fmt.Errorf("store: failed to scan device: %w", err)
		}
		d.Type = parseDeviceType(deviceType)
		if prefStart.Valid && prefEnd.Valid {
			d.PreferredHours = &model.PreferredHours{Start: int(prefStart.Int64), End: int(prefEnd.Int64)}
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: error iterating devices: %w", err)
	}
	return devices, nil
}

// LoadLatestSensor returns the most recent battery SOC reading for a
// microgrid, used to seed the dispatch engine's InitialSOC.
func (r *Repository) LoadLatestSensor(ctx context.Context, microgridID string) (float64, error) {
	var soc float64
	err := r.db.QueryRowContext(ctx, `
		SELECT battery_soc FROM sensor_readings
		WHERE microgrid_id = $1 ORDER BY recorded_at DESC LIMIT 1
	`, microgridID).Scan(&soc)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("store: no sensor reading found for microgrid %q", microgridID)
	}
	if err != nil {
		return 0, fmt.Errorf("store: failed to load latest sensor reading: %w", err)
	}
	return soc, nil
}

// SaveSchedule writes a completed Schedule and its buckets/device
// allocations inside a single transaction, returning the persisted
// schedule's ID so AppendAlerts can reference it.
func (r *Repository) SaveSchedule(ctx context.Context, schedule model.Schedule) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("store: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var scheduleID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO schedules (
			microgrid_id, date, solar_utilization_percent, estimated_cost_savings,
			battery_cycle_efficiency, grid_import_reduction_percent,
			grid_export_energy_kwh, grid_export_revenue, carbon_footprint_reduction_kg,
			capacity_factor_peak_percent, capacity_factor_average_percent,
			warnings, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (microgrid_id, date) DO UPDATE SET
			solar_utilization_percent = EXCLUDED.solar_utilization_percent,
			estimated_cost_savings = EXCLUDED.estimated_cost_savings,
			battery_cycle_efficiency = EXCLUDED.battery_cycle_efficiency,
			grid_import_reduction_percent = EXCLUDED.grid_import_reduction_percent,
			grid_export_energy_kwh = EXCLUDED.grid_export_energy_kwh,
			grid_export_revenue = EXCLUDED.grid_export_revenue,
			carbon_footprint_reduction_kg = EXCLUDED.carbon_footprint_reduction_kg,
			capacity_factor_peak_percent = EXCLUDED.capacity_factor_peak_percent,
			capacity_factor_average_percent = EXCLUDED.capacity_factor_average_percent,
			warnings = EXCLUDED.warnings,
			created_at = EXCLUDED.created_at
		RETURNING id
	`,
		schedule.MicrogridID, schedule.Date,
		schedule.Metrics.SolarUtilizationPercent, schedule.Metrics.EstimatedCostSavings,
		schedule.Metrics.BatteryCycleEfficiency, schedule.Metrics.GridImportReductionPercent,
		schedule.Metrics.GridExportEnergyKWh, schedule.Metrics.GridExportRevenue,
		schedule.Metrics.CarbonFootprintReductionKg,
		schedule.Metrics.CapacityFactor.PeakPercent, schedule.Metrics.CapacityFactor.AveragePercent,
		warningsToText(schedule.Warnings), schedule.CreatedAt,
	).Scan(&scheduleID)
	if err != nil {
		return "", fmt.Errorf("store: failed to upsert schedule: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_buckets WHERE schedule_id = $1`, scheduleID); err != nil {
		return "", fmt.Errorf("store: failed to clear existing buckets: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO schedule_buckets (
			schedule_id, index, start_time, duration_hours, solar_kw, load_kw,
			battery_charge_kw, battery_discharge_kw, grid_import_kw, grid_export_kw,
			generator_kw, soc_end, essential_unserved, soc_clipped
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`)
	if err != nil {
		return "", fmt.Errorf("store: failed to prepare bucket insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range schedule.Buckets {
		if _, err := stmt.ExecContext(ctx, scheduleID, b.Index, b.StartTime, b.DurationHours,
			b.SolarKW, b.LoadKW, b.BatteryChargeKW, b.BatteryDischargeKW,
			b.GridImportKW, b.GridExportKW, b.GeneratorKW, b.SOCEnd,
			b.EssentialUnserved, b.SOCClipped); err != nil {
			return "", fmt.Errorf("store: failed to insert bucket %d: %w", b.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("store: failed to commit schedule: %w", err)
	}
	return scheduleID, nil
}

// AppendAlerts writes alerts tied to a previously saved schedule,
// upserting on (microgrid_id, kind, bucket_start) so a re-run is
// idempotent.
func (r *Repository) AppendAlerts(ctx context.Context, scheduleID string, alerts []model.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO alerts (id, schedule_id, microgrid_id, severity, kind, message, bucket_start, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (microgrid_id, kind, bucket_start) DO UPDATE SET
			severity = EXCLUDED.severity,
			message = EXCLUDED.message,
			schedule_id = EXCLUDED.schedule_id
	`)
	if err != nil {
		return fmt.Errorf("store: failed to prepare alert insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range alerts {
		if _, err := stmt.ExecContext(ctx, a.ID, scheduleID, a.MicrogridID, a.Severity.String(),
			string(a.Kind), a.Message, a.BucketStart, a.CreatedAt); err != nil {
			return fmt.Errorf("store: failed to insert alert %q: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

// WithLock runs fn while holding a per-microgrid Postgres advisory
// lock, serializing the [fetch inputs → engine run → write schedule]
// sequence for that microgrid across concurrent requests (§5).
func (r *Repository) WithLock(ctx context.Context, microgridID string, fn func(ctx context.Context) error) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("store: failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock(hashtext($1))`, microgridID); err != nil {
		return fmt.Errorf("store: failed to acquire advisory lock for %q: %w", microgridID, err)
	}
	defer conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, microgridID)

	return fn(ctx)
}

func warningsToText(warnings []string) string {
	out := ""
	for i, w := range warnings {
		if i > 0 {
			out += "\n"
		}
		out += w
	}
	return out
}

func parseOptimizationMode(s string) model.OptimizationMode {
	switch s {
	case "self-consumption":
		return model.ModeSelfConsumption
	case "backup":
		return model.ModeBackup
	default:
		return model.ModeCost
	}
}

func parseDeviceType(s string) model.DeviceType {
	switch s {
	case "flexible":
		return model.DeviceFlexible
	case "optional":
		return model.DeviceOptional
	default:
		return model.DeviceEssential
	}
}
