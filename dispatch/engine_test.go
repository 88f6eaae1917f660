package dispatch

import (
	"math"
	"testing"
	"time"

	"github.com/devskill-org/suryadrishti/model"
	"github.com/devskill-org/suryadrishti/solargeo"
)

func dayAt(hour int) time.Time {
	return time.Date(2025, 6, 15, hour, 0, 0, 0, solargeo.IST)
}

// solarCurve produces a 24-point half-sine daytime curve peaking near
// noon, matching S1's "peak ~33kW at 12:00, night zero" shape.
func solarCurve(peakKW float64) model.ForecastSeries {
	points := make([]model.ForecastPoint, 24)
	for h := 0; h < 24; h++ {
		var kw float64
		if h >= 6 && h < 19 {
			kw = peakKW * math.Sin(math.Pi*float64(h-6)/13)
			if kw < 0 {
				kw = 0
			}
		}
		points[h] = model.ForecastPoint{Timestamp: dayAt(h), PowerKW: kw, IsDaytime: h >= 6 && h < 19}
	}
	return model.ForecastSeries{Points: points, HorizonHours: 24}
}

func s1Config() model.SystemConfiguration {
	return model.SystemConfiguration{
		BatteryCapacityKWh:      50,
		BatteryMaxChargeKW:      20,
		BatteryMaxDischargeKW:   20,
		BatteryMinSOC:           0.2,
		BatteryMaxSOC:           0.95,
		BatteryEfficiency:       0.95,
		GridPeakRatePerKWh:      10.0,
		GridOffPeakRatePerKWh:   5.0,
		GridPeakHours:           model.HourRange{Start: 8, End: 20},
		GridExportRatePerKWh:    4.0,
		GridExportEnabled:       true,
		GridAvailable:           true,
		GeneratorFuelCostPerL:   1.5,
		GeneratorFuelConsumLKWh: 0.4,
		GeneratorMinRuntimeMin:  30,
		GeneratorMaxPowerKW:     10,
		OptimizationMode:        model.ModeCost,
		SafetyMarginCritical:    0.05,
	}
}

func s1Devices() []model.Device {
	return []model.Device{
		{ID: "ess-1", Name: "critical load", PowerKW: 5, Type: model.DeviceEssential, Priority: 1, IsActive: true},
		{ID: "pump-1", Name: "irrigation pump", PowerKW: 3, Type: model.DeviceFlexible, Priority: 2, IsActive: true,
			IrrigationFlag: true, MinRuntimeMinutes: 60, PreferredHours: &model.PreferredHours{Start: 10, End: 14}},
		{ID: "opt-1", Name: "optional load", PowerKW: 2, Type: model.DeviceOptional, Priority: 3, IsActive: true,
			PreferredHours: &model.PreferredHours{Start: 11, End: 15}},
	}
}

func TestRunS1SurplusDayNoInfeasibility(t *testing.T) {
	req := Request{
		MicrogridID: "mg-1",
		Date:        "2025-06-15",
		Forecast:    solarCurve(33),
		Devices:     s1Devices(),
		Config:      s1Config(),
		InitialSOC:  0.5,
	}

	result, err := Run(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, b := range result.Schedule.Buckets {
		if b.EssentialUnserved {
			t.Fatalf("bucket %d: essential load unexpectedly unserved on a surplus day", b.Index)
		}
	}

	var exportKWh float64
	pumpScheduledInWindow := false
	for _, b := range result.Schedule.Buckets {
		exportKWh += b.GridExportKW * b.DurationHours
		hour := solargeo.LocalTimeIST(b.StartTime).Hour()
		if hour >= 10 && hour < 14 {
			for _, d := range b.ActiveDevices {
				if d.ID == "pump-1" {
					pumpScheduledInWindow = true
				}
			}
		}
	}
	if exportKWh < 40 {
		t.Fatalf("expected grid_export_energy_kwh >= 40, got %.2f", exportKWh)
	}
	if !pumpScheduledInWindow {
		t.Fatalf("expected irrigation pump to be scheduled within its preferred window at least once")
	}
}

func TestRunPowerBalanceInvariant(t *testing.T) {
	req := Request{
		MicrogridID: "mg-1",
		Date:        "2025-06-15",
		Forecast:    solarCurve(33),
		Devices:     s1Devices(),
		Config:      s1Config(),
		InitialSOC:  0.5,
	}
	result, err := Run(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, b := range result.Schedule.Buckets {
		supply := b.SolarKW + b.BatteryDischargeKW + b.GridImportKW + b.GeneratorKW
		demand := b.LoadKW + b.BatteryChargeKW + b.GridExportKW
		if math.Abs(supply-demand) > balanceToleranceKW {
			t.Fatalf("bucket %d: power balance violated, supply=%.4f demand=%.4f", b.Index, supply, demand)
		}
		if b.BatteryChargeKW > 0 && b.BatteryDischargeKW > 0 {
			t.Fatalf("bucket %d: charge and discharge both nonzero", b.Index)
		}
	}
}

func TestRunS2IrrigationDeferredOnForecastDrop(t *testing.T) {
	points := make([]model.ForecastPoint, 12)
	for h := 0; h < 12; h++ {
		kw := 20.0
		if h == 10 {
			kw = 30
		} else if h == 11 {
			kw = 12
		}
		points[h] = model.ForecastPoint{Timestamp: dayAt(h), PowerKW: kw, IsDaytime: true}
	}
	forecast := model.ForecastSeries{Points: points, HorizonHours: 12}

	devices := []model.Device{
		{ID: "pump-1", Name: "irrigation pump", PowerKW: 3, Type: model.DeviceFlexible, Priority: 1,
			IsActive: true, IrrigationFlag: true, MinRuntimeMinutes: 60},
	}

	req := Request{
		MicrogridID: "mg-2",
		Date:        "2025-06-15",
		Forecast:    forecast,
		Devices:     devices,
		Config:      s1Config(),
		InitialSOC:  0.35,
	}

	result, err := Run(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, def := range result.DeferredIrrigation {
		if def.BucketIndex == 10 && def.DeviceID == "pump-1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected pump-1 to be deferred at bucket 10, got %+v", result.DeferredIrrigation)
	}
}

func TestRunS3InfeasibleEssentialStillReturnsSchedule(t *testing.T) {
	points := make([]model.ForecastPoint, 6)
	for h := range points {
		points[h] = model.ForecastPoint{Timestamp: dayAt(h), PowerKW: 0}
	}
	forecast := model.ForecastSeries{Points: points, HorizonHours: 6}

	cfg := s1Config()
	cfg.GeneratorMaxPowerKW = 0
	cfg.GridAvailable = false
	cfg.BatteryMinSOC = 0.2
	cfg.BatteryMaxSOC = 0.9

	devices := []model.Device{
		{ID: "ess-1", Name: "critical load", PowerKW: 20, Type: model.DeviceEssential, Priority: 1, IsActive: true},
	}

	req := Request{
		MicrogridID: "mg-3",
		Date:        "2025-06-15",
		Forecast:    forecast,
		Devices:     devices,
		Config:      cfg,
		InitialSOC:  0.20,
	}

	result, err := Run(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.InfeasibleBuckets) == 0 {
		t.Fatalf("expected at least one infeasible bucket")
	}
	if len(result.Schedule.Buckets) != 6 {
		t.Fatalf("expected a complete schedule to still be returned, got %d buckets", len(result.Schedule.Buckets))
	}
}

func TestRunS5Idempotence(t *testing.T) {
	req := Request{
		MicrogridID: "mg-1",
		Date:        "2025-06-15",
		Forecast:    solarCurve(33),
		Devices:     s1Devices(),
		Config:      s1Config(),
		InitialSOC:  0.5,
	}

	first, err := Run(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Run(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(first.Schedule.Buckets) != len(second.Schedule.Buckets) {
		t.Fatalf("bucket count differs between runs")
	}
	for i := range first.Schedule.Buckets {
		a, b := first.Schedule.Buckets[i], second.Schedule.Buckets[i]
		if a.SolarKW != b.SolarKW || a.LoadKW != b.LoadKW || a.BatteryChargeKW != b.BatteryChargeKW ||
			a.BatteryDischargeKW != b.BatteryDischargeKW || a.GridImportKW != b.GridImportKW ||
			a.GridExportKW != b.GridExportKW || a.GeneratorKW != b.GeneratorKW || a.SOCEnd != b.SOCEnd {
			t.Fatalf("bucket %d differs between identical runs: %+v vs %+v", i, a, b)
		}
	}
}

func TestRunS6SelfConsumptionChargesMoreAndExportsLess(t *testing.T) {
	costReq := Request{
		MicrogridID: "mg-1",
		Date:        "2025-06-15",
		Forecast:    solarCurve(33),
		Devices:     s1Devices(),
		Config:      s1Config(),
		InitialSOC:  0.5,
	}
	selfConsumeCfg := s1Config()
	selfConsumeCfg.OptimizationMode = model.ModeSelfConsumption
	selfReq := costReq
	selfReq.Config = selfConsumeCfg

	costResult, err := Run(costReq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	selfResult, err := Run(selfReq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	maxSOCBucketCost := firstBucketAtMaxSOC(costResult.Schedule.Buckets, selfConsumeCfg.BatteryMaxSOC)
	maxSOCBucketSelf := firstBucketAtMaxSOC(selfResult.Schedule.Buckets, selfConsumeCfg.BatteryMaxSOC)

	if maxSOCBucketSelf < 0 {
		t.Fatalf("expected self-consumption mode to reach max_soc at some point")
	}
	if maxSOCBucketCost >= 0 && maxSOCBucketSelf > maxSOCBucketCost {
		t.Fatalf("expected self-consumption to reach max_soc no later than cost mode: self=%d cost=%d", maxSOCBucketSelf, maxSOCBucketCost)
	}

	var costExport, selfExport float64
	for _, b := range costResult.Schedule.Buckets {
		costExport += b.GridExportKW
	}
	for _, b := range selfResult.Schedule.Buckets {
		selfExport += b.GridExportKW
	}
	if selfExport > costExport {
		t.Fatalf("expected self-consumption grid_export_energy_kwh (%.2f) <= cost mode's (%.2f)", selfExport, costExport)
	}
}

func firstBucketAtMaxSOC(buckets []model.Bucket, maxSOC float64) int {
	for _, b := range buckets {
		if b.SOCEnd >= maxSOC-1e-6 {
			return b.Index
		}
	}
	return -1
}

// TestRunGridAvailableAtOverridesStaticFlagPerBucket verifies that a
// per-bucket GridAvailableAt withdrawing availability for one hour
// (as if a live price feed had no quote for it) forces the generator
// to cover essential load in that hour even though grid_available is
// statically true and the generator would otherwise sit idle.
func TestRunGridAvailableAtOverridesStaticFlagPerBucket(t *testing.T) {
	points := make([]model.ForecastPoint, 6)
	for h := range points {
		points[h] = model.ForecastPoint{Timestamp: dayAt(h), PowerKW: 0}
	}
	forecast := model.ForecastSeries{Points: points, HorizonHours: 6}

	cfg := s1Config()
	cfg.BatteryMinSOC = 0.2
	cfg.BatteryMaxSOC = 0.9

	devices := []model.Device{
		{ID: "ess-1", Name: "critical load", PowerKW: 5, Type: model.DeviceEssential, Priority: 1, IsActive: true},
	}

	unavailableHour := 3
	req := Request{
		MicrogridID: "mg-grid-avail",
		Date:        "2025-06-15",
		Forecast:    forecast,
		Devices:     devices,
		Config:      cfg,
		InitialSOC:  0.20,
		GridAvailableAt: func(hour int) bool {
			return hour != unavailableHour
		},
	}

	result, err := Run(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bucket := result.Schedule.Buckets[unavailableHour]
	if bucket.GridImportKW > 0 {
		t.Fatalf("expected no grid import in the hour GridAvailableAt marked unavailable, got %.2f kW", bucket.GridImportKW)
	}
	if bucket.GeneratorKW <= 0 {
		t.Fatalf("expected the generator to cover essential load once GridAvailableAt withdrew the grid, got %.2f kW", bucket.GeneratorKW)
	}

	other := result.Schedule.Buckets[unavailableHour+1]
	if other.GridImportKW <= 0 {
		t.Fatalf("expected grid import to resume in a bucket GridAvailableAt left available, got %.2f kW", other.GridImportKW)
	}
}
