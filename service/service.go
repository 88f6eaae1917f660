package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/devskill-org/suryadrishti/alerts"
	"github.com/devskill-org/suryadrishti/devicepolicy"
	"github.com/devskill-org/suryadrishti/dispatch"
	"github.com/devskill-org/suryadrishti/forecastadapt"
	"github.com/devskill-org/suryadrishti/metrics"
	"github.com/devskill-org/suryadrishti/model"
	"github.com/devskill-org/suryadrishti/solargeo"
	"github.com/devskill-org/suryadrishti/store"
	"github.com/devskill-org/suryadrishti/validator"
)

// Engine is the service-level orchestrator: it wires the repository,
// the forecast and rate collaborators, and the pure leaf packages into
// the single synchronous run() entry point §6 describes. The
// repository's advisory lock (§5) serializes Run calls for the *same*
// microgrid, but different microgrids run concurrently against the
// same Engine — cmd/suryadrishti starts one goroutine per configured
// microgrid sharing one Engine, and the server package's run endpoint
// can invoke it concurrently still. lastGoodForecast is the only
// mutable state Engine carries across calls, so it is guarded by
// forecastMu rather than relying on the per-microgrid lock, which does
// nothing to protect a map keyed across different microgrid IDs.
type Engine struct {
	Repo     *store.Repository
	Forecast ForecastSource
	Rates    *RateSource
	Logger   *log.Logger

	AllowStaleForecast bool
	ForecastTimeout    time.Duration

	// forecastMu guards lastGoodForecast.
	forecastMu sync.RWMutex
	// lastGoodForecast caches the most recently adapted series per
	// microgrid, consulted only when AllowStaleForecast is set and a
	// live fetch fails (§5 cancellation-and-timeouts policy).
	lastGoodForecast map[string]model.ForecastSeries
}

// NewEngine wires an Engine from its collaborators. logger defaults to
// log.Default() when nil, matching the teacher's own scheduler
// constructor.
func NewEngine(repo *store.Repository, forecast ForecastSource, rates *RateSource, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		Repo:             repo,
		Forecast:         forecast,
		Rates:            rates,
		Logger:           logger,
		ForecastTimeout:  45 * time.Second,
		lastGoodForecast: make(map[string]model.ForecastSeries),
	}
}

// RunRequest bundles the §6 entry point's parameters.
type RunRequest struct {
	MicrogridID        string
	HorizonHours       int
	Date               string // YYYY-MM-DD, IST
	ForecastSourceHint string // "cached" permits the stale-forecast fallback for this call regardless of AllowStaleForecast; any other value is ignored
}

// RunResult is what the caller (an HTTP handler, a scheduled job) gets
// back: the persisted schedule, its alerts, and the advisory verdict
// that gated it.
type RunResult struct {
	ScheduleID string
	Schedule   model.Schedule
	Alerts     []model.Alert
	Verdict    model.ValidationVerdict
}

// Run executes one full [fetch inputs → run engine → write schedule]
// cycle for a microgrid, holding that microgrid's advisory lock for
// the duration (§5's ordering guarantee).
func (e *Engine) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	var result RunResult
	err := e.Repo.WithLock(ctx, req.MicrogridID, func(ctx context.Context) error {
		r, err := e.run(ctx, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

func (e *Engine) run(ctx context.Context, req RunRequest) (RunResult, error) {
	profile, err := e.Repo.LoadProfile(ctx, req.MicrogridID)
	if err != nil {
		return RunResult{}, fmt.Errorf("service: failed to load profile: %w", err)
	}
	cfg, err := e.Repo.LoadConfig(ctx, req.MicrogridID)
	if err != nil {
		return RunResult{}, fmt.Errorf("service: failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return RunResult{}, &ConfigurationInvalidError{Err: err}
	}
	devices, err := e.Repo.LoadDevices(ctx, req.MicrogridID, true)
	if err != nil {
		return RunResult{}, fmt.Errorf("service: failed to load devices: %w", err)
	}
	initialSOC, err := e.Repo.LoadLatestSensor(ctx, req.MicrogridID)
	if err != nil {
		return RunResult{}, fmt.Errorf("service: failed to load latest sensor reading: %w", err)
	}

	referenceInstant := time.Now()
	series, err := e.fetchAndAdaptForecast(ctx, req, profile, referenceInstant)
	if err != nil {
		return RunResult{}, err
	}

	verdict, err := validator.Validate(series, profile.Location, profile.SolarCapacityKW)
	if err != nil {
		return RunResult{}, &MalformedForecastError{Err: err}
	}
	if verdict.Verdict == model.VerdictIncorrect {
		e.Logger.Printf("forecast validator flagged microgrid %s as incorrect: %s", req.MicrogridID, verdict.Summary)
	}

	resolution, err := e.Rates.Resolve(ctx, cfg)
	if err != nil {
		e.Logger.Printf("rate fetch failed for microgrid %s, falling back to static rates: %v", req.MicrogridID, err)
		resolution = nil
	}
	var rateAt func(hour int) float64
	var gridAvailableAt func(hour int) bool
	if resolution != nil {
		rateAt = resolution.RateAt
		gridAvailableAt = resolution.Available
	}

	dispatchResult, err := dispatch.Run(dispatch.Request{
		MicrogridID:     req.MicrogridID,
		Date:            req.Date,
		Forecast:        series,
		Devices:         devicepolicy.Order(devices),
		Config:          cfg,
		InitialSOC:      initialSOC,
		RateAt:          dispatch.RateFunc(rateAt),
		GridAvailableAt: dispatch.GridAvailableFunc(gridAvailableAt),
	})
	if err != nil {
		return RunResult{}, fmt.Errorf("service: dispatch run failed: %w", err)
	}

	schedule := dispatchResult.Schedule
	schedule.CreatedAt = time.Now().UTC()

	computed, audit := metrics.Compute(schedule, cfg, profile.SolarCapacityKW, metrics.RateFunc(rateAt), localHour)
	schedule.Metrics = computed
	schedule.Warnings = append(schedule.Warnings, audit...)

	alertList := alerts.Evaluate(req.MicrogridID, series, verdict, schedule, dispatchResult.DeferredIrrigation, computed, cfg.BatteryMinSOC)

	scheduleID, err := e.Repo.SaveSchedule(ctx, schedule)
	if err != nil {
		return RunResult{}, fmt.Errorf("service: failed to save schedule: %w", err)
	}
	if err := e.Repo.AppendAlerts(ctx, scheduleID, alertList); err != nil {
		return RunResult{}, fmt.Errorf("service: failed to append alerts: %w", err)
	}

	if len(dispatchResult.InfeasibleBuckets) > 0 {
		e.Logger.Printf("microgrid %s: %d bucket(s) could not serve essential load", req.MicrogridID, len(dispatchResult.InfeasibleBuckets))
	}

	e.cacheForecast(req.MicrogridID, series)
	return RunResult{ScheduleID: scheduleID, Schedule: schedule, Alerts: alertList, Verdict: verdict}, nil
}

func (e *Engine) fetchAndAdaptForecast(ctx context.Context, req RunRequest, profile model.MicrogridProfile, referenceInstant time.Time) (model.ForecastSeries, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.ForecastTimeout)
	defer cancel()

	raw, cloudFn, err := e.Forecast.Fetch(fetchCtx, profile.Location, referenceInstant, req.HorizonHours)
	if err != nil {
		allowStale := e.AllowStaleForecast || req.ForecastSourceHint == "cached"
		if allowStale {
			if cached, ok := e.cachedForecast(req.MicrogridID); ok {
				e.Logger.Printf("forecast fetch failed for microgrid %s, falling back to cached series: %v", req.MicrogridID, err)
				return cached, nil
			}
		}
		return model.ForecastSeries{}, &UpstreamUnavailableError{Err: err}
	}

	forecastCfg := forecastadapt.DefaultConfig()
	forecastCfg.CloudWidening = cloudFn

	series, err := forecastadapt.AdaptWithConfig(raw, profile.Location, referenceInstant, req.HorizonHours, profile.SolarCapacityKW, forecastCfg)
	if err != nil {
		return model.ForecastSeries{}, fmt.Errorf("service: forecast unusable: %w", err)
	}
	return series, nil
}

func (e *Engine) cachedForecast(microgridID string) (model.ForecastSeries, bool) {
	e.forecastMu.RLock()
	defer e.forecastMu.RUnlock()
	series, ok := e.lastGoodForecast[microgridID]
	return series, ok
}

func (e *Engine) cacheForecast(microgridID string, series model.ForecastSeries) {
	e.forecastMu.Lock()
	defer e.forecastMu.Unlock()
	e.lastGoodForecast[microgridID] = series
}

func localHour(b model.Bucket) int {
	return solargeo.LocalTimeIST(b.StartTime).Hour()
}
