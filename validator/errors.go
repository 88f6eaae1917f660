package validator

import "fmt"

// MalformedForecastError reports that a forecast series failed a
// structural precondition (missing timestamps, empty series, or an
// elevation profile that never goes positive) before any plausibility
// check could run.
type MalformedForecastError struct {
	Reason string
}

func (e *MalformedForecastError) Error() string {
	return fmt.Sprintf("malformed forecast: %s", e.Reason)
}
