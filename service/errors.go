package service

import "fmt"

// ConfigurationInvalidError wraps a SystemConfiguration.Validate
// failure discovered before any forecast is fetched, distinguishing a
// bad stored configuration from an upstream or forecast problem (§7).
type ConfigurationInvalidError struct {
	Err error
}

func (e *ConfigurationInvalidError) Error() string {
	return fmt.Sprintf("invalid system configuration: %v", e.Err)
}

func (e *ConfigurationInvalidError) Unwrap() error {
	return e.Err
}

// UpstreamUnavailableError wraps a forecast-fetch failure that had no
// cached fallback to use instead.
type UpstreamUnavailableError struct {
	Err error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("forecast upstream unavailable: %v", e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error {
	return e.Err
}

// MalformedForecastError wraps a validator.Validate failure — the
// forecast series itself could not be checked, as opposed to being
// checked and flagged incorrect.
type MalformedForecastError struct {
	Err error
}

func (e *MalformedForecastError) Error() string {
	return fmt.Sprintf("forecast series malformed: %v", e.Err)
}

func (e *MalformedForecastError) Unwrap() error {
	return e.Err
}
