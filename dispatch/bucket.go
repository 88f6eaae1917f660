package dispatch

import (
	"math"

	"github.com/devskill-org/suryadrishti/devicepolicy"
	"github.com/devskill-org/suryadrishti/model"
)

// allocateBucket runs §4.5.2's eight-step greedy allocation for one
// bucket, mutating bucket in place and advancing soc to the bucket's
// closing value. It returns the active-device list (sources attributed
// per §4.5.4, once totals are final) and any irrigation deferrals
// raised this bucket.
func allocateBucket(
	bucket *model.Bucket,
	req Request,
	ordered []model.Device,
	hour, bucketIndex int,
	point model.ForecastPoint,
	soc *float64,
	gen *generatorState,
	preferChargeNow bool,
) ([]model.DeviceAllocation, []IrrigationDeferral) {
	cfg := req.Config
	socStart := *soc
	availableSolar := point.PowerKW

	marginFloor := cfg.BatteryMinSOC + cfg.SafetyMarginCritical*(cfg.BatteryMaxSOC-cfg.BatteryMinSOC)
	batteryDischargeCap := math.Max(0, math.Min(cfg.BatteryMaxDischargeKW, (socStart-marginFloor)*cfg.BatteryCapacityKWh*cfg.BatteryEfficiency))

	var active []model.DeviceAllocation
	var deferred []IrrigationDeferral
	var loadKW float64

	essentials, flexibles, optionals := partitionByType(ordered, hour)

	// Steps 1-2: commit and serve essential load.
	var essentialNeed float64
	for _, d := range essentials {
		essentialNeed += d.PowerKW
		active = append(active, model.DeviceAllocation{ID: d.ID, Name: d.Name, PowerKW: d.PowerKW})
	}
	loadKW += essentialNeed

	solarForEssential := math.Min(essentialNeed, availableSolar)
	availableSolar -= solarForEssential
	remaining := essentialNeed - solarForEssential

	battForEssential := math.Min(remaining, batteryDischargeCap)
	batteryDischargeCap -= battForEssential
	remaining -= battForEssential
	bucket.BatteryDischargeKW += battForEssential

	gridUp := gridAvailable(req, hour)
	generatorCommitted := gen.bucketsRemaining > 0
	var gridForEssential, genForEssential float64
	if remaining > 0 {
		backupNeedsGenerator := cfg.OptimizationMode == model.ModeBackup && socStart <= cfg.BatteryMinSOC+1e-9
		useGenerator := generatorCommitted || !gridUp || backupNeedsGenerator
		if useGenerator {
			genForEssential = math.Min(remaining, cfg.GeneratorMaxPowerKW)
			remaining -= genForEssential
			if remaining > 0 && gridUp {
				gridForEssential = remaining
				remaining = 0
			}
		} else {
			gridForEssential = remaining
			remaining = 0
		}
	}
	bucket.GridImportKW += gridForEssential
	bucket.GeneratorKW += genForEssential

	if genForEssential > 0 && !generatorCommitted {
		gen.bucketsRemaining = minRuntimeBucketsFromMinutes(cfg.GeneratorMinRuntimeMin)
	}
	if gen.bucketsRemaining > 0 {
		gen.bucketsRemaining--
	}

	if remaining > balanceToleranceKW {
		bucket.EssentialUnserved = true
	}

	// Backup mode biases steps 3-4 against battery discharge, reserving
	// what headroom remains for essential load and terminal SOC.
	flexBatteryCap := batteryDischargeCap
	if cfg.OptimizationMode == model.ModeBackup {
		flexBatteryCap = 0
	}

	// Steps 3-5: flexible devices, with irrigation-pump deferral
	// intercepting admission for flagged devices.
	for _, d := range flexibles {
		if devicepolicy.IsIrrigationPump(d) {
			if deferral, hold := evaluateIrrigationDeferral(d, point, req, bucketIndex, socStart); hold {
				deferred = append(deferred, deferral)
				continue
			}
		}
		if admitted, source := admitFlexible(d, &availableSolar, &flexBatteryCap); admitted {
			_ = source
			loadKW += d.PowerKW
			active = append(active, model.DeviceAllocation{ID: d.ID, Name: d.Name, PowerKW: d.PowerKW})
			if source == model.SourceBattery {
				bucket.BatteryDischargeKW += d.PowerKW
			}
		}
	}

	// Step 4: optional devices, admitted only from solar surplus or
	// battery headroom above the midpoint SOC.
	midpointSOC := (cfg.BatteryMinSOC + cfg.BatteryMaxSOC) / 2
	for _, d := range optionals {
		if devicepolicy.IsIrrigationPump(d) {
			if deferral, hold := evaluateIrrigationDeferral(d, point, req, bucketIndex, socStart); hold {
				deferred = append(deferred, deferral)
				continue
			}
		}
		if availableSolar >= d.PowerKW {
			availableSolar -= d.PowerKW
			loadKW += d.PowerKW
			active = append(active, model.DeviceAllocation{ID: d.ID, Name: d.Name, PowerKW: d.PowerKW})
		} else if socStart > midpointSOC && flexBatteryCap >= d.PowerKW {
			flexBatteryCap -= d.PowerKW
			bucket.BatteryDischargeKW += d.PowerKW
			loadKW += d.PowerKW
			active = append(active, model.DeviceAllocation{ID: d.ID, Name: d.Name, PowerKW: d.PowerKW})
		}
	}

	// Steps 6-7: battery charging and grid export. Cost mode exports
	// surplus ahead of charging unless the battplan reference plan charges
	// in this hour (preferChargeNow); self-consumption reorders to charge
	// first; backup never exports.
	chargeCap := math.Max(0, (cfg.BatteryMaxSOC-socStart)/cfg.BatteryEfficiency*cfg.BatteryCapacityKWh)
	chargeFromSurplus := func() float64 {
		amount := math.Min(availableSolar, math.Min(cfg.BatteryMaxChargeKW, chargeCap))
		if amount <= 0 {
			return 0
		}
		availableSolar -= amount
		bucket.BatteryChargeKW += amount
		return amount
	}
	exportSurplus := func() float64 {
		if !cfg.GridExportEnabled || availableSolar <= 0 {
			return 0
		}
		amount := availableSolar
		availableSolar = 0
		bucket.GridExportKW += amount
		return amount
	}

	switch cfg.OptimizationMode {
	case model.ModeBackup:
		chargeFromSurplus()
	case model.ModeSelfConsumption:
		chargeFromSurplus()
		exportSurplus()
	default: // cost
		if preferChargeNow {
			chargeFromSurplus()
			exportSurplus()
		} else {
			exportSurplus()
			chargeFromSurplus()
		}
	}

	// Resolve rounding artifacts: charge and discharge cannot coexist.
	if bucket.BatteryChargeKW > 0 && bucket.BatteryDischargeKW > 0 {
		if bucket.BatteryChargeKW >= bucket.BatteryDischargeKW {
			bucket.BatteryDischargeKW = 0
		} else {
			bucket.BatteryChargeKW = 0
		}
	}

	bucket.LoadKW = loadKW

	energyIn := bucket.BatteryChargeKW * bucket.DurationHours * cfg.BatteryEfficiency
	energyOut := bucket.BatteryDischargeKW * bucket.DurationHours / cfg.BatteryEfficiency
	rawSOC := socStart + (energyIn-energyOut)/cfg.BatteryCapacityKWh
	clipped := clamp(rawSOC, cfg.BatteryMinSOC, cfg.BatteryMaxSOC)
	if math.Abs(clipped-rawSOC) > 1e-9 {
		bucket.SOCClipped = true
	}
	*soc = clipped
	bucket.SOCEnd = clipped

	attributeSources(bucket, active)

	return active, deferred
}

func partitionByType(ordered []model.Device, hour int) (essentials, flexibles, optionals []model.Device) {
	for _, d := range ordered {
		if !devicepolicy.Eligible(d, hour) {
			continue
		}
		switch d.Type {
		case model.DeviceEssential:
			essentials = append(essentials, d)
		case model.DeviceFlexible:
			flexibles = append(flexibles, d)
		case model.DeviceOptional:
			optionals = append(optionals, d)
		}
	}
	return
}

// admitFlexible implements step 3's admission test: prefer solar
// surplus, falling back to battery headroom already bounded by the
// essential-load safety margin.
func admitFlexible(d model.Device, availableSolar, batteryDischargeCap *float64) (bool, model.PowerSource) {
	if *availableSolar >= d.PowerKW {
		*availableSolar -= d.PowerKW
		return true, model.SourceSolar
	}
	if *batteryDischargeCap >= d.PowerKW {
		*batteryDischargeCap -= d.PowerKW
		return true, model.SourceBattery
	}
	return false, model.SourceSolar
}

// evaluateIrrigationDeferral implements step 5. The window is the
// current bucket and its immediate successor; a pump is deferred when
// the upcoming minimum is a significant drop from the current level,
// since that is the condition the scenario this rule protects against
// (a cloud-driven drop right after the pump would have started) is
// built on.
func evaluateIrrigationDeferral(d model.Device, point model.ForecastPoint, req Request, bucketIndex int, socStart float64) (IrrigationDeferral, bool) {
	current := point.PowerKW
	if current <= 0 || bucketIndex+1 >= len(req.Forecast.Points) {
		return IrrigationDeferral{}, false
	}
	next := req.Forecast.Points[bucketIndex+1].PowerKW
	minWindow := math.Min(current, next)
	drop := current - minWindow
	if drop <= 0 {
		return IrrigationDeferral{}, false
	}

	projectedSOCEnd := socStart // bucket's own SOC outcome isn't known yet; use the opening value as the best available estimate
	hold := (drop > 0.25*current && projectedSOCEnd < 0.40) || (drop > 0.40*current)
	if !hold {
		return IrrigationDeferral{}, false
	}
	return IrrigationDeferral{
		DeviceID:    d.ID,
		DeviceName:  d.Name,
		BucketIndex: bucketIndex,
		BucketStart: point.Timestamp,
	}, true
}

// attributeSources implements §4.5.4: every active device in a bucket
// shares one nominal source, chosen from the bucket's final totals.
func attributeSources(bucket *model.Bucket, active []model.DeviceAllocation) {
	var source model.PowerSource
	switch {
	case bucket.SolarKW >= bucket.LoadKW:
		source = model.SourceSolar
	case bucket.BatteryDischargeKW > 0:
		source = model.SourceBattery
	case bucket.GridImportKW > 0:
		source = model.SourceGrid
	default:
		source = model.SourceGenerator
	}
	for i := range active {
		active[i].PowerSource = source
	}
}

func minRuntimeBucketsFromMinutes(minutes int) int {
	if minutes <= 0 {
		return 0
	}
	return (minutes + 59) / 60
}
