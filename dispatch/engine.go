// Package dispatch implements the greedy, priority-based allocation
// engine that turns a forecast, a device fleet, and a system
// configuration into an hourly Schedule. The engine is pure: it holds
// no state across calls to Run and performs no I/O. Concurrent calls
// for different microgrids share nothing and need no locking; callers
// serialize repeated calls for the *same* microgrid (see the service
// package's advisory-lock wiring).
package dispatch

import (
	"fmt"
	"math"
	"time"

	"github.com/devskill-org/suryadrishti/devicepolicy"
	"github.com/devskill-org/suryadrishti/dispatch/battplan"
	"github.com/devskill-org/suryadrishti/model"
	"github.com/devskill-org/suryadrishti/solargeo"
)

const balanceToleranceKW = 0.01

// RateFunc resolves the grid import rate for a local hour, overriding
// SystemConfiguration's static peak/off-peak split. Wired from a
// dynamic day-ahead price feed one layer up (see the service
// package); nil means fall back to the static configuration.
type RateFunc func(hour int) float64

// GridAvailableFunc reports whether the grid can be relied on for
// import/export in a given local hour, overriding
// SystemConfiguration.GridAvailable's single static flag for that
// bucket. Wired from the same dynamic price feed as RateFunc: an hour
// with no usable price is treated as unavailable. nil means every
// hour defers entirely to the static configuration.
type GridAvailableFunc func(hour int) bool

// Request bundles everything one scheduling run needs. Devices need
// not be pre-sorted; Run orders them itself via devicepolicy.
type Request struct {
	MicrogridID     string
	Date            string
	Forecast        model.ForecastSeries
	Devices         []model.Device
	Config          model.SystemConfiguration
	InitialSOC      float64
	RateAt          RateFunc
	GridAvailableAt GridAvailableFunc
}

// IrrigationDeferral records a bucket where an irrigation pump was
// held back by §4.5.2 step 5, for the alerts stage to act on.
type IrrigationDeferral struct {
	DeviceID    string
	DeviceName  string
	BucketIndex int
	BucketStart time.Time
}

// Result is everything a single engine run produces.
type Result struct {
	Schedule            model.Schedule
	DeferredIrrigation  []IrrigationDeferral
	InfeasibleBuckets    []int // buckets where essential load could not be served
}

// generatorState tracks the generator's running commitment across
// buckets: once started it must run for at least its configured
// minimum runtime.
type generatorState struct {
	bucketsRemaining int
}

// Run allocates a full horizon in chronological order, implementing
// §4.5.1 through §4.5.6.
func Run(req Request) (Result, error) {
	if err := req.Config.Validate(); err != nil {
		return Result{}, &InvalidConfigurationError{Err: err}
	}

	horizon := len(req.Forecast.Points)
	eligible := make([]model.Device, 0, len(req.Devices))
	for _, d := range req.Devices {
		if !devicepolicy.IneligibleForHorizon(d, horizon) {
			eligible = append(eligible, d)
		}
	}
	ordered := devicepolicy.Order(eligible)
	soc := clamp(req.InitialSOC, req.Config.BatteryMinSOC, req.Config.BatteryMaxSOC)

	var plan []battplan.Decision
	if req.Config.OptimizationMode == model.ModeCost {
		plan = referencePlan(req)
	}

	buckets := make([]model.Bucket, len(req.Forecast.Points))
	var warnings []string
	var deferred []IrrigationDeferral
	var infeasible []int
	gen := generatorState{}

	for i, point := range req.Forecast.Points {
		hour := localHour(point.Timestamp)
		bucket := model.Bucket{
			Index:         i,
			StartTime:     point.Timestamp,
			DurationHours: 1,
			SolarKW:       point.PowerKW,
		}

		preferChargeNow := false
		if plan != nil && i < len(plan) {
			preferChargeNow = plan[i].ChargeKW > 0
		}

		active, pumpsDeferred := allocateBucket(&bucket, req, ordered, hour, i, point, &soc, &gen, preferChargeNow)
		bucket.ActiveDevices = active

		if bucket.EssentialUnserved {
			infeasible = append(infeasible, i)
			warnings = append(warnings, bucketWarning(i, "essential load unserved"))
		}
		if bucket.SOCClipped {
			warnings = append(warnings, bucketWarning(i, "battery state-of-charge update required clipping"))
		}
		deferred = append(deferred, pumpsDeferred...)

		buckets[i] = bucket
	}

	schedule := model.Schedule{
		MicrogridID: req.MicrogridID,
		Date:        req.Date,
		Buckets:     buckets,
		Warnings:    warnings,
	}

	return Result{Schedule: schedule, DeferredIrrigation: deferred, InfeasibleBuckets: infeasible}, nil
}

func referencePlan(req Request) []battplan.Decision {
	slots := make([]battplan.Slot, len(req.Forecast.Points))
	for i, p := range req.Forecast.Points {
		hour := localHour(p.Timestamp)
		slots[i] = battplan.Slot{
			Hour:       hour,
			ImportRate: rateAt(req, hour),
			ExportRate: req.Config.GridExportRatePerKWh,
			SolarKW:    p.PowerKW,
			LoadKW:     essentialLoad(req.Devices, hour),
		}
	}
	planner := battplan.NewPlanner(battplan.Config{
		BatteryCapacityKWh:    req.Config.BatteryCapacityKWh,
		BatteryMaxChargeKW:    req.Config.BatteryMaxChargeKW,
		BatteryMaxDischargeKW: req.Config.BatteryMaxDischargeKW,
		BatteryMinSOC:         req.Config.BatteryMinSOC,
		BatteryMaxSOC:         req.Config.BatteryMaxSOC,
		BatteryEfficiency:     req.Config.BatteryEfficiency,
		DegradationCostPerKWh: 0.01,
		MaxGridImportKW:       math.Max(req.Config.BatteryMaxDischargeKW*4, 50),
		MaxGridExportKW:       math.Max(req.Config.BatteryMaxChargeKW*4, 50),
	}, req.InitialSOC)
	return planner.Plan(slots)
}

func essentialLoad(devices []model.Device, hour int) float64 {
	var sum float64
	for _, d := range devices {
		if d.Type == model.DeviceEssential && devicepolicy.Eligible(d, hour) {
			sum += d.PowerKW
		}
	}
	return sum
}

func rateAt(req Request, hour int) float64 {
	if req.RateAt != nil {
		return req.RateAt(hour)
	}
	if req.Config.GridPeakHours.Contains(hour) {
		return req.Config.GridPeakRatePerKWh
	}
	return req.Config.GridOffPeakRatePerKWh
}

// gridAvailable resolves per-bucket grid availability: the static
// configuration flag gates every hour, and GridAvailableAt (when
// wired) can additionally withdraw availability for an hour the price
// feed couldn't confirm.
func gridAvailable(req Request, hour int) bool {
	if !req.Config.GridAvailable {
		return false
	}
	if req.GridAvailableAt != nil {
		return req.GridAvailableAt(hour)
	}
	return true
}

func localHour(t time.Time) int {
	return solargeo.LocalTimeIST(t).Hour()
}

func bucketWarning(index int, msg string) string {
	return fmt.Sprintf("bucket %d: %s", index, msg)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
