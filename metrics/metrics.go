// Package metrics derives the audit figures §4.6 asks for from a
// completed Schedule: solar utilization, cost savings, battery cycle
// efficiency, grid import reduction, export revenue, and carbon
// reduction, all measured against an all-grid counterfactual baseline.
package metrics

import (
	"fmt"

	"github.com/devskill-org/suryadrishti/model"
)

// carbonKgPerGridKWh and carbonKgPerGeneratorKWh are the emission
// factors named in §4.6's carbon-reduction formula.
const (
	carbonKgPerGridKWh      = 0.5
	carbonKgPerGeneratorKWh = 2.7
)

// RateFunc resolves the grid import rate for a local hour; nil falls
// back to the configuration's static peak/off-peak split, same as the
// dispatch engine's RateFunc.
type RateFunc func(hour int) float64

// Compute derives a Metrics value plus any audit warnings for a
// completed schedule. capacityKW is the plant's nameplate capacity,
// used for the peak/average capacity-factor figures; localHour
// resolves a bucket's start time to the local hour of day used for
// peak/off-peak rate lookups.
func Compute(schedule model.Schedule, cfg model.SystemConfiguration, capacityKW float64, rateAt RateFunc, localHour func(b model.Bucket) int) (model.Metrics, []string) {
	var (
		solarServed, solarTotal           float64
		baselineGridEnergy, actualGridEnergy float64
		baselineCost, actualCost          float64
		energyIn, energyOut               float64
		exportEnergy, exportRevenue       float64
		generatorEnergy                   float64
		peakPower, sumPower               float64
	)

	for _, b := range schedule.Buckets {
		hour := localHour(b)
		rate := resolveRate(cfg, rateAt, hour)

		servedByGrid := b.LoadKW + b.BatteryChargeKW + b.GridExportKW
		solarServed += min(b.SolarKW, servedByGrid) * b.DurationHours
		solarTotal += b.SolarKW * b.DurationHours

		loadEnergy := b.LoadKW * b.DurationHours
		baselineGridEnergy += loadEnergy
		baselineCost += loadEnergy * rate

		actualGridEnergy += b.GridImportKW * b.DurationHours
		actualCost += b.GridImportKW * b.DurationHours * rate
		actualCost -= b.GridExportKW * b.DurationHours * cfg.GridExportRatePerKWh
		actualCost += b.GeneratorKW * b.DurationHours * cfg.GeneratorFuelCostPerL * cfg.GeneratorFuelConsumLKWh

		energyIn += b.BatteryChargeKW * b.DurationHours
		energyOut += b.BatteryDischargeKW * b.DurationHours

		exportEnergy += b.GridExportKW * b.DurationHours
		exportRevenue += b.GridExportKW * b.DurationHours * cfg.GridExportRatePerKWh

		generatorEnergy += b.GeneratorKW * b.DurationHours

		if b.SolarKW > peakPower {
			peakPower = b.SolarKW
		}
		sumPower += b.SolarKW
	}

	m := model.Metrics{
		EstimatedCostSavings: baselineCost - actualCost,
		GridExportEnergyKWh:  exportEnergy,
		GridExportRevenue:    exportRevenue,
	}

	if solarTotal > 0 {
		m.SolarUtilizationPercent = 100 * solarServed / solarTotal
	}
	if energyIn > 0 {
		m.BatteryCycleEfficiency = energyOut / energyIn
	}
	if baselineGridEnergy > 0 {
		m.GridImportReductionPercent = 100 * (baselineGridEnergy - actualGridEnergy) / baselineGridEnergy
	}
	m.CarbonFootprintReductionKg = carbonKgPerGridKWh*(baselineGridEnergy-actualGridEnergy) - carbonKgPerGeneratorKWh*generatorEnergy

	if capacityKW > 0 {
		m.CapacityFactor.PeakPercent = 100 * peakPower / capacityKW
		if len(schedule.Buckets) > 0 {
			m.CapacityFactor.AveragePercent = 100 * (sumPower / float64(len(schedule.Buckets))) / capacityKW
		}
	}

	var warnings []string
	if m.CapacityFactor.PeakPercent > 85 {
		warnings = append(warnings, fmt.Sprintf("peak capacity factor %.1f%% exceeds 85%%", m.CapacityFactor.PeakPercent))
	}
	if peakPower > 0 && capacityKW > 0 {
		peakGHIEquivalent := peakPower / capacityKW * 1000
		if peakGHIEquivalent > 900 {
			warnings = append(warnings, fmt.Sprintf("peak GHI-equivalent %.0f W/m2 exceeds 900 W/m2", peakGHIEquivalent))
		}
	}

	return m, warnings
}

func resolveRate(cfg model.SystemConfiguration, rateAt RateFunc, hour int) float64 {
	if rateAt != nil {
		return rateAt(hour)
	}
	if cfg.GridPeakHours.Contains(hour) {
		return cfg.GridPeakRatePerKWh
	}
	return cfg.GridOffPeakRatePerKWh
}
