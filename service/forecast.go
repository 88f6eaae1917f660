package service

import (
	"context"
	"fmt"
	"time"

	"github.com/devskill-org/suryadrishti/forecastadapt"
	"github.com/devskill-org/suryadrishti/meteo"
	"github.com/devskill-org/suryadrishti/model"
	"github.com/devskill-org/suryadrishti/solargeo"
)

// ForecastSource is the engine's forecast-consumer collaborator (§6):
// it owns all I/O and must respect ctx's deadline. The engine itself
// never fetches or blocks.
type ForecastSource interface {
	Fetch(ctx context.Context, loc model.Location, referenceInstant time.Time, horizonHours int) ([]forecastadapt.RawPoint, forecastadapt.CloudCoverageFunc, error)
}

// MeteoForecastSource derives an hourly GHI series from the MET Norway
// location-forecast API: clear-sky irradiance attenuated by forecast
// cloud coverage. The pack carries no dedicated solar-irradiance
// forecasting client, so this is the closest available collaborator —
// the same role meteo.Client plays for the teacher's PV-aware
// scheduling, generalized from a single current reading to an hourly
// series over the horizon.
type MeteoForecastSource struct {
	client *meteo.Client
}

// NewMeteoForecastSource builds a forecast source against the public
// MET Norway API, identifying itself with userAgent as that API
// requires.
func NewMeteoForecastSource(userAgent string) *MeteoForecastSource {
	return &MeteoForecastSource{client: meteo.NewClient(userAgent)}
}

func (s *MeteoForecastSource) Fetch(ctx context.Context, loc model.Location, referenceInstant time.Time, horizonHours int) ([]forecastadapt.RawPoint, forecastadapt.CloudCoverageFunc, error) {
	type result struct {
		forecast *meteo.METJSONForecast
		err      error
	}
	done := make(chan result, 1)
	go func() {
		forecast, err := s.client.GetCompact(meteo.QueryParams{
			Location: meteo.Location{Latitude: loc.Latitude, Longitude: loc.Longitude},
		})
		done <- result{forecast, err}
	}()

	select {
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("service: forecast fetch timed out: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, nil, fmt.Errorf("service: forecast fetch failed: %w", r.err)
		}
		points := buildRawPoints(r.forecast, loc, referenceInstant, horizonHours)
		cloudFn := func(instant time.Time) (*float64, error) {
			step := r.forecast.GetWeatherAtTime(instant)
			if step == nil {
				return nil, nil
			}
			return step.GetCloudCoverage(), nil
		}
		return points, cloudFn, nil
	}
}

// buildRawPoints turns a MET Norway forecast document into the raw GHI
// series forecastadapt.Adapt expects, attenuating each bucket's
// clear-sky irradiance by its forecast cloud fraction. Power, and the
// p10/p50/p90 spread, are left for the adapter to derive from GHI.
func buildRawPoints(forecast *meteo.METJSONForecast, loc model.Location, referenceInstant time.Time, horizonHours int) []forecastadapt.RawPoint {
	gridStart := solargeo.NextHourBoundaryIST(referenceInstant)
	points := make([]forecastadapt.RawPoint, horizonHours)

	for i := 0; i < horizonHours; i++ {
		bucketStart := gridStart.Add(time.Duration(i) * time.Hour)
		clearSky := solargeo.ClearSkyGHIWm2(loc, bucketStart)

		ghi := clearSky
		if step := forecast.GetWeatherAtTime(bucketStart); step != nil {
			if cloud := step.GetCloudCoverage(); cloud != nil {
				attenuation := 1 - (*cloud/100)*0.75
				if attenuation < 0.1 {
					attenuation = 0.1
				}
				ghi = clearSky * attenuation
			}
		}
		points[i] = forecastadapt.RawPoint{Timestamp: bucketStart, GHIWm2: ghi}
	}
	return points
}
