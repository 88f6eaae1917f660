package service

import (
	"context"
	"log"
	"time"
)

// PeriodicRunner repeatedly dispatches one microgrid on a fixed
// interval until its context is cancelled, logging each run's outcome.
// The cmd entry point starts one per configured microgrid.
type PeriodicRunner struct {
	engine       *Engine
	microgridID  string
	horizonHours int
	interval     time.Duration
	logger       *log.Logger
}

// NewPeriodicRunner builds a runner for one microgrid.
func NewPeriodicRunner(engine *Engine, microgridID string, horizonHours int, interval time.Duration, logger *log.Logger) *PeriodicRunner {
	if logger == nil {
		logger = log.Default()
	}
	return &PeriodicRunner{
		engine:       engine,
		microgridID:  microgridID,
		horizonHours: horizonHours,
		interval:     interval,
		logger:       logger,
	}
}

// Run blocks, dispatching the microgrid immediately and then every
// interval, until ctx is cancelled.
func (p *PeriodicRunner) Run(ctx context.Context) {
	p.runOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.runOnce(ctx)
		case <-ctx.Done():
			p.logger.Printf("[%s] periodic dispatch stopped: %v", p.microgridID, ctx.Err())
			return
		}
	}
}

func (p *PeriodicRunner) runOnce(ctx context.Context) {
	result, err := p.engine.Run(ctx, RunRequest{
		MicrogridID:  p.microgridID,
		HorizonHours: p.horizonHours,
		Date:         time.Now().Format("2006-01-02"),
	})
	if err != nil {
		p.logger.Printf("[%s] dispatch run failed: %v", p.microgridID, err)
		return
	}
	p.logger.Printf("[%s] dispatch run complete: schedule %s, %d alert(s), verdict %s",
		p.microgridID, result.ScheduleID, len(result.Alerts), result.Verdict.Verdict)
}
