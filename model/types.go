// Package model defines the statically typed data model shared by every
// stage of the dispatch pipeline: forecast points, devices, configuration,
// schedule buckets, and the records the engine hands back to callers.
//
// Values here are plain data; no package-level mutable state, and nothing
// here performs I/O. This mirrors the teacher's preference for passing
// configuration and repository handles explicitly rather than relying on
// process-wide singletons.
package model

import (
	"fmt"
	"time"

	"github.com/devskill-org/suryadrishti/solargeo"
)

// Location is a fixed geographic point a microgrid operates at. The
// scheduler's canonical display zone is always Asia/Kolkata.
type Location = solargeo.Location

// MicrogridProfile is the static, rarely-changing site data the
// forecast adapter and validator need alongside SystemConfiguration:
// where the site is, and how much nominal PV capacity it has.
// Persisted with the microgrid, not with a day's schedule.
type MicrogridProfile struct {
	Location        Location
	SolarCapacityKW float64
}

// ForecastPoint is one instant of an irradiance+power forecast.
type ForecastPoint struct {
	Timestamp         time.Time
	GHIWm2            float64
	GHIClearSkyWm2    float64
	SolarElevationDeg float64
	IsDaytime         bool
	PowerKW           float64
	P10KW             float64
	P50KW             float64
	P90KW             float64
	StdKW             float64
}

// ForecastSeries is an ordered, uniformly spaced sequence of forecast
// points on the scheduler's hourly bucket grid.
type ForecastSeries struct {
	Points       []ForecastPoint
	HorizonHours int
}

// DeviceType classifies how aggressively a device may be deferred or
// skipped during allocation.
type DeviceType int

const (
	DeviceEssential DeviceType = iota
	DeviceFlexible
	DeviceOptional
)

func (t DeviceType) String() string {
	switch t {
	case DeviceEssential:
		return "essential"
	case DeviceFlexible:
		return "flexible"
	case DeviceOptional:
		return "optional"
	default:
		return "unknown"
	}
}

// IsValid reports whether t is one of the enumerated device types.
func (t DeviceType) IsValid() bool {
	switch t {
	case DeviceEssential, DeviceFlexible, DeviceOptional:
		return true
	default:
		return false
	}
}

// PreferredHours is a local-hour window that includes Start and excludes
// End; both are hours in [0,23]. Start may exceed End to express a window
// that wraps past midnight (e.g. Start=22, End=6 covers hours 22..5).
type PreferredHours struct {
	Start int
	End   int
}

// Contains reports whether hour h (0..23) falls within the window,
// handling the midnight-wrapping case.
func (p PreferredHours) Contains(h int) bool {
	if p.Start <= p.End {
		return h >= p.Start && h < p.End
	}
	// Wraps past midnight, e.g. Start=22, End=6.
	return h >= p.Start || h < p.End
}

// Device is a controllable load in the microgrid's fleet.
type Device struct {
	ID                string
	Name              string
	PowerKW           float64
	Type              DeviceType
	MinRuntimeMinutes int
	Priority          int // 1 (highest) .. 5 (lowest)
	PreferredHours    *PreferredHours
	IsActive          bool
	IrrigationFlag    bool
}

// MinRuntimeBuckets returns ceil(MinRuntimeMinutes/60), the soft
// minimum-runtime hint in whole hourly buckets.
func (d Device) MinRuntimeBuckets() int {
	if d.MinRuntimeMinutes <= 0 {
		return 0
	}
	return (d.MinRuntimeMinutes + 59) / 60
}

// OptimizationMode selects the dispatch engine's objective bias (§4.5.5).
type OptimizationMode int

const (
	ModeCost OptimizationMode = iota
	ModeSelfConsumption
	ModeBackup
)

func (m OptimizationMode) String() string {
	switch m {
	case ModeCost:
		return "cost"
	case ModeSelfConsumption:
		return "self-consumption"
	case ModeBackup:
		return "backup"
	default:
		return "unknown"
	}
}

func (m OptimizationMode) IsValid() bool {
	switch m {
	case ModeCost, ModeSelfConsumption, ModeBackup:
		return true
	default:
		return false
	}
}

// HourRange is a local-hour window used for grid peak-rate hours.
type HourRange struct {
	Start int
	End   int
}

// Contains reports whether hour h falls within the range, honoring
// midnight wrap the same way PreferredHours does.
func (r HourRange) Contains(h int) bool {
	if r.Start <= r.End {
		return h >= r.Start && h < r.End
	}
	return h >= r.Start || h < r.End
}

// SystemConfiguration holds the per-microgrid battery, grid, generator,
// and optimization settings (§3).
type SystemConfiguration struct {
	BatteryCapacityKWh      float64
	BatteryMaxChargeKW      float64
	BatteryMaxDischargeKW   float64
	BatteryMinSOC           float64
	BatteryMaxSOC           float64
	BatteryEfficiency       float64
	GridPeakRatePerKWh      float64
	GridOffPeakRatePerKWh   float64
	GridPeakHours           HourRange
	GridExportRatePerKWh    float64
	GridExportEnabled       bool
	GridAvailable           bool // resolves the spec's grid-availability Open Question
	GeneratorFuelCostPerL   float64
	GeneratorFuelConsumLKWh float64
	GeneratorMinRuntimeMin  int
	GeneratorMaxPowerKW     float64
	OptimizationMode        OptimizationMode
	SafetyMarginCritical    float64 // fraction of [min_soc,max_soc] reserved for essential loads
}

// Validate checks the invariants named in §3's Data Model table.
func (c SystemConfiguration) Validate() error {
	switch {
	case c.BatteryCapacityKWh <= 0:
		return fmt.Errorf("battery_capacity_kwh must be > 0, got %f", c.BatteryCapacityKWh)
	case c.BatteryMaxChargeKW <= 0:
		return fmt.Errorf("battery_max_charge_kw must be > 0, got %f", c.BatteryMaxChargeKW)
	case c.BatteryMaxDischargeKW <= 0:
		return fmt.Errorf("battery_max_discharge_kw must be > 0, got %f", c.BatteryMaxDischargeKW)
	case c.BatteryMinSOC < 0 || c.BatteryMinSOC > 1:
		return fmt.Errorf("battery_min_soc must be in [0,1], got %f", c.BatteryMinSOC)
	case c.BatteryMaxSOC < 0 || c.BatteryMaxSOC > 1:
		return fmt.Errorf("battery_max_soc must be in [0,1], got %f", c.BatteryMaxSOC)
	case c.BatteryMaxSOC <= c.BatteryMinSOC:
		return fmt.Errorf("battery_max_soc (%f) must exceed battery_min_soc (%f)", c.BatteryMaxSOC, c.BatteryMinSOC)
	case c.BatteryEfficiency <= 0 || c.BatteryEfficiency > 1:
		return fmt.Errorf("battery_efficiency must be in (0,1], got %f", c.BatteryEfficiency)
	case c.GeneratorFuelConsumLKWh <= 0:
		return fmt.Errorf("generator_fuel_consumption_l_per_kwh must be > 0, got %f", c.GeneratorFuelConsumLKWh)
	case c.SafetyMarginCritical < 0 || c.SafetyMarginCritical >= 1:
		return fmt.Errorf("safety_margin_critical_loads must be in [0,1), got %f", c.SafetyMarginCritical)
	case !c.OptimizationMode.IsValid():
		return fmt.Errorf("invalid optimization_mode: %d", c.OptimizationMode)
	}
	return nil
}

// PowerSource is the nominal attributed source of an active device's
// power within a bucket (§4.5.4).
type PowerSource int

const (
	SourceSolar PowerSource = iota
	SourceBattery
	SourceGrid
	SourceGenerator
)

func (s PowerSource) String() string {
	switch s {
	case SourceSolar:
		return "solar"
	case SourceBattery:
		return "battery"
	case SourceGrid:
		return "grid"
	case SourceGenerator:
		return "generator"
	default:
		return "unknown"
	}
}

// DeviceAllocation records one device's activation within a bucket.
type DeviceAllocation struct {
	ID          string
	Name        string
	PowerKW     float64
	PowerSource PowerSource
}

// Bucket is one hourly time slot of a Schedule.
type Bucket struct {
	Index             int
	StartTime         time.Time
	DurationHours     float64
	SolarKW           float64
	LoadKW            float64
	BatteryChargeKW   float64
	BatteryDischargeKW float64
	GridImportKW      float64
	GridExportKW      float64
	GeneratorKW       float64
	SOCEnd            float64
	ActiveDevices     []DeviceAllocation

	// EssentialUnserved marks that the essential-load floor could not be
	// met even after exhausting grid and generator headroom (§4.5.6).
	EssentialUnserved bool
	// SOCClipped marks that the battery state update required clamping
	// (§4.5.3), recorded as a warning rather than an error.
	SOCClipped bool
}

// CapacityFactorReport is the peak/average capacity-factor pair reported
// by the metrics stage.
type CapacityFactorReport struct {
	PeakPercent    float64
	AveragePercent float64
}

// Metrics holds the derived optimization and audit figures for a
// completed Schedule (§4.6).
type Metrics struct {
	SolarUtilizationPercent      float64
	EstimatedCostSavings         float64
	BatteryCycleEfficiency       float64
	GridImportReductionPercent   float64
	GridExportEnergyKWh          float64
	GridExportRevenue            float64
	CarbonFootprintReductionKg   float64
	CapacityFactor               CapacityFactorReport
}

// Schedule is a complete, validated dispatch plan for one microgrid-day.
type Schedule struct {
	MicrogridID string
	Date        string // YYYY-MM-DD, IST
	Buckets     []Bucket
	Metrics     Metrics
	Warnings    []string
	CreatedAt   time.Time
}

// Severity is an alert or validation-issue severity level.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityInfo
	SeverityLow
	SeverityMedium
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityInfo:
		return "info"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// AlertKind enumerates the rule set §4.7 may emit.
type AlertKind string

const (
	AlertPowerDropImminent   AlertKind = "power_drop_imminent"
	AlertForecastImplausible AlertKind = "forecast_implausible"
	AlertSOCCritical         AlertKind = "soc_critical"
	AlertEssentialUnserved   AlertKind = "essential_unserved"
	AlertIrrigationDeferred  AlertKind = "irrigation_deferred"
	AlertBatteryCycleAnomaly AlertKind = "battery_cycle_anomaly"
)

// Alert is one operational notification raised against a schedule.
type Alert struct {
	ID             string
	MicrogridID    string
	Severity       Severity
	Kind           AlertKind
	Message        string
	BucketStart    time.Time
	CreatedAt      time.Time
	AcknowledgedAt *time.Time
}

// Verdict is the overall plausibility verdict for a forecast (§4.2).
type Verdict string

const (
	VerdictRealistic       Verdict = "realistic"
	VerdictMostlyRealistic Verdict = "mostly realistic"
	VerdictOptimistic      Verdict = "optimistic"
	VerdictIncorrect       Verdict = "incorrect"
)

// ValidationVerdict is the structured result of the forecast validator.
type ValidationVerdict struct {
	Verdict         Verdict
	Severity        Severity
	Summary         string
	Passed          []string
	Warnings        []string
	Issues          []string
	Causes          []string
	Recommendations []string
}
