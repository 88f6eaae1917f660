// Package battplan computes a macro battery/grid reference trajectory
// for a full scheduling horizon via dynamic programming over
// discretized state of charge. The dispatch engine's greedy,
// priority-based allocator (package dispatch) runs the actual
// per-bucket, per-device decisions; it consults the plan produced here
// only as a cost-mode bias — whether the plan charges the battery in
// that hour — not as a binding schedule.
package battplan

import "math"

// Config mirrors the battery/grid limits the planner optimizes against.
// Its battery fields correspond to model.SystemConfiguration's;
// DegradationCostPerKWh, MaxGridImportKW and MaxGridExportKW have no
// counterpart there and are supplied by the caller. It is kept separate
// so this package has no dependency on the dispatch data model.
type Config struct {
	BatteryCapacityKWh   float64
	BatteryMaxChargeKW   float64
	BatteryMaxDischargeKW float64
	BatteryMinSOC        float64
	BatteryMaxSOC        float64
	BatteryEfficiency    float64
	DegradationCostPerKWh float64
	MaxGridImportKW      float64
	MaxGridExportKW      float64
}

// Slot is one hour of the forecast the planner optimizes over.
type Slot struct {
	Hour        int
	ImportRate  float64 // currency/kWh
	ExportRate  float64 // currency/kWh
	SolarKW     float64
	LoadKW      float64
}

// Decision is the planner's suggested action for one slot.
type Decision struct {
	Hour        int
	ChargeKW    float64
	DischargeKW float64
	ImportKW    float64
	ExportKW    float64
	SOCEnd      float64
	Profit      float64
}

// Planner runs the DP battery/grid trajectory solver over a horizon.
type Planner struct {
	Config     Config
	CurrentSOC float64
}

// NewPlanner constructs a Planner seeded with the microgrid's current
// state of charge.
func NewPlanner(cfg Config, currentSOC float64) *Planner {
	return &Planner{Config: cfg, CurrentSOC: currentSOC}
}

// Plan finds the profit-maximizing battery/grid trajectory across
// forecast using dynamic programming over a discretized SOC axis, the
// same technique the teacher's MPC controller used for live control —
// here repurposed as an advisory reference the greedy engine may lean
// on rather than a controller with direct actuation authority.
func (p *Planner) Plan(forecast []Slot) []Decision {
	if len(forecast) == 0 {
		return nil
	}

	socSteps := 200
	socStep := (p.Config.BatteryMaxSOC - p.Config.BatteryMinSOC) / float64(socSteps)

	type dpState struct {
		profit   float64
		decision Decision
		prevSOC  int
	}

	dp := make([][]dpState, len(forecast)+1)
	for i := range dp {
		dp[i] = make([]dpState, socSteps+1)
		for j := range dp[i] {
			dp[i][j].profit = math.Inf(-1)
		}
	}

	startIdx := p.socToIndex(p.CurrentSOC, socStep)
	dp[0][startIdx].profit = 0

	for t := range forecast {
		slot := forecast[t]
		for socIdx := 0; socIdx <= socSteps; socIdx++ {
			if math.IsInf(dp[t][socIdx].profit, -1) {
				continue
			}
			currentSOC := p.indexToSOC(socIdx, socStep)

			for _, dec := range p.feasibleDecisions(currentSOC, slot) {
				newSOC := p.nextSOC(currentSOC, dec.ChargeKW, dec.DischargeKW)
				newIdx := p.socToIndex(newSOC, socStep)
				if newIdx < 0 || newIdx > socSteps {
					continue
				}

				profit := p.profit(dec, slot)
				total := dp[t][socIdx].profit + profit
				if total > dp[t+1][newIdx].profit {
					dec.SOCEnd = newSOC
					dec.Profit = profit
					dec.Hour = slot.Hour
					dp[t+1][newIdx] = dpState{profit: total, decision: dec, prevSOC: socIdx}
				}
			}
		}
	}

	bestFinal, bestProfit := 0, math.Inf(-1)
	for socIdx := 0; socIdx <= socSteps; socIdx++ {
		if dp[len(forecast)][socIdx].profit > bestProfit {
			bestProfit = dp[len(forecast)][socIdx].profit
			bestFinal = socIdx
		}
	}

	path := make([]Decision, len(forecast))
	idx := bestFinal
	for t := len(forecast) - 1; t >= 0; t-- {
		path[t] = dp[t+1][idx].decision
		idx = dp[t+1][idx].prevSOC
	}
	return path
}

func (p *Planner) feasibleDecisions(currentSOC float64, slot Slot) []Decision {
	decisions := []Decision{{}} // idle

	const steps = 5
	for i := 1; i <= steps; i++ {
		charge := float64(i) * p.Config.BatteryMaxChargeKW / steps
		if p.canCharge(currentSOC, charge) {
			decisions = append(decisions, Decision{ChargeKW: charge})
		}
	}
	for i := 1; i <= steps; i++ {
		discharge := float64(i) * p.Config.BatteryMaxDischargeKW / steps
		if p.canDischarge(currentSOC, discharge) {
			decisions = append(decisions, Decision{DischargeKW: discharge})
		}
	}

	out := make([]Decision, 0, len(decisions))
	for _, dec := range decisions {
		netLoad := slot.LoadKW + dec.ChargeKW/p.Config.BatteryEfficiency
		netSupply := slot.SolarKW + dec.DischargeKW*p.Config.BatteryEfficiency
		balance := netSupply - netLoad
		if balance > 0 {
			dec.ExportKW = math.Min(balance, p.Config.MaxGridExportKW)
		} else {
			dec.ImportKW = math.Min(-balance, p.Config.MaxGridImportKW)
		}
		if p.feasible(dec) {
			out = append(out, dec)
		}
	}
	return out
}

func (p *Planner) profit(dec Decision, slot Slot) float64 {
	revenue := dec.ExportKW * slot.ExportRate
	cost := dec.ImportKW * slot.ImportRate
	degradation := (dec.ChargeKW + dec.DischargeKW) * p.Config.DegradationCostPerKWh
	return revenue - cost - degradation
}

func (p *Planner) canCharge(soc, charge float64) bool {
	return soc+charge/p.Config.BatteryCapacityKWh <= p.Config.BatteryMaxSOC
}

func (p *Planner) canDischarge(soc, discharge float64) bool {
	return soc-discharge/p.Config.BatteryCapacityKWh >= p.Config.BatteryMinSOC
}

func (p *Planner) nextSOC(soc, charge, discharge float64) float64 {
	change := (charge*p.Config.BatteryEfficiency - discharge) / p.Config.BatteryCapacityKWh
	return math.Max(p.Config.BatteryMinSOC, math.Min(p.Config.BatteryMaxSOC, soc+change))
}

func (p *Planner) socToIndex(soc, socStep float64) int {
	return int(math.Round((soc - p.Config.BatteryMinSOC) / socStep))
}

func (p *Planner) indexToSOC(index int, socStep float64) float64 {
	return p.Config.BatteryMinSOC + float64(index)*socStep
}

func (p *Planner) feasible(dec Decision) bool {
	return dec.ChargeKW <= p.Config.BatteryMaxChargeKW &&
		dec.DischargeKW <= p.Config.BatteryMaxDischargeKW &&
		dec.ImportKW <= p.Config.MaxGridImportKW &&
		dec.ExportKW <= p.Config.MaxGridExportKW
}
