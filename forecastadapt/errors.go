package forecastadapt

import "fmt"

// UnusableForecastError reports that a raw forecast could not be turned
// into a usable ForecastSeries: too many buckets had to be synthesized,
// or the source data does not cover the requested horizon.
type UnusableForecastError struct {
	Reason string
}

func (e *UnusableForecastError) Error() string {
	return fmt.Sprintf("unusable forecast: %s", e.Reason)
}
