// Package service wires the leaf packages — forecastadapt, validator,
// devicepolicy, dispatch, metrics, alerts — and the store and server
// packages into the single synchronous entry point §6 describes:
// run(microgrid_id, horizon_hours, date, forecast_source_hint) →
// ScheduleRecord.
package service

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Config is the service's process-level configuration: where the
// database lives, how to reach the forecast and price collaborators,
// and the operational timeouts named in §5.
type Config struct {
	PostgresConnString string `json:"postgres_conn_string"`

	ForecastUserAgent     string        `json:"forecast_user_agent"`
	ForecastFetchTimeout  time.Duration `json:"forecast_fetch_timeout"`
	AllowStaleForecast    bool          `json:"allow_stale_forecast"`

	EntsoeSecurityToken string        `json:"entsoe_security_token"`
	EntsoeURLFormat     string        `json:"entsoe_url_format"`
	EntsoeLocation      string        `json:"entsoe_location"` // IANA zone name, e.g. "Europe/Riga"
	EntsoeFetchTimeout  time.Duration `json:"entsoe_fetch_timeout"`

	HTTPPort int `json:"http_port"` // 0 disables the server package

	// MicrogridIDs lists the sites the periodic dispatch loop runs for;
	// a process with no periodic work (server-only, or a one-shot CLI
	// invocation) leaves this empty.
	MicrogridIDs []string      `json:"microgrid_ids"`
	HorizonHours int           `json:"horizon_hours"`
	RunInterval  time.Duration `json:"run_interval"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

// DefaultConfig mirrors the teacher's conservative defaults: short
// timeouts, stale data disallowed unless explicitly opted into.
func DefaultConfig() *Config {
	return &Config{
		ForecastUserAgent:    "suryadrishti/1.0 (ops@example.com)",
		ForecastFetchTimeout: 45 * time.Second,
		AllowStaleForecast:   false,
		EntsoeURLFormat:      "https://web-api.tp.entsoe.eu/api?documentType=A44&out_Domain=10YIN-NLDC----8&in_Domain=10YIN-NLDC----8&periodStart=%s&periodEnd=%s&securityToken=%s",
		EntsoeLocation:       "Asia/Kolkata",
		EntsoeFetchTimeout:   30 * time.Second,
		HTTPPort:             0,
		HorizonHours:         24,
		RunInterval:          15 * time.Minute,
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

// LoadConfig loads configuration from a JSON file, starting from
// DefaultConfig so an omitted field keeps its default.
func LoadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("service: failed to open config file: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	config := DefaultConfig()
	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("service: failed to decode config JSON: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("service: invalid configuration: %w", err)
	}
	return config, nil
}

// Validate checks the fields this package relies on directly; the
// per-microgrid SystemConfiguration's own invariants are checked by
// model.SystemConfiguration.Validate at run time.
func (c *Config) Validate() error {
	if c.PostgresConnString == "" {
		return fmt.Errorf("postgres_conn_string cannot be empty")
	}
	if c.ForecastUserAgent == "" {
		return fmt.Errorf("forecast_user_agent cannot be empty")
	}
	if c.ForecastFetchTimeout <= 0 {
		return fmt.Errorf("forecast_fetch_timeout must be greater than 0, got: %s", c.ForecastFetchTimeout)
	}
	if c.EntsoeLocation == "" {
		return fmt.Errorf("entsoe_location cannot be empty")
	}
	if _, err := time.LoadLocation(c.EntsoeLocation); err != nil {
		return fmt.Errorf("invalid entsoe_location: %w", err)
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 0 and 65535, got: %d", c.HTTPPort)
	}
	if len(c.MicrogridIDs) > 0 {
		if c.HorizonHours < 1 || c.HorizonHours > 48 {
			return fmt.Errorf("horizon_hours must be between 1 and 48, got: %d", c.HorizonHours)
		}
		if c.RunInterval <= 0 {
			return fmt.Errorf("run_interval must be greater than 0, got: %s", c.RunInterval)
		}
	}
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level: %s, must be one of: debug, info, warn, error", c.LogLevel)
	}
	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("invalid log_format: %s, must be one of: text, json", c.LogFormat)
	}
	return nil
}

// MarshalJSON renders durations as strings, the same alias-struct
// approach the teacher uses for its own Config.
func (c *Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	return json.Marshal(&struct {
		*Alias
		ForecastFetchTimeout string `json:"forecast_fetch_timeout"`
		EntsoeFetchTimeout   string `json:"entsoe_fetch_timeout"`
		RunInterval          string `json:"run_interval"`
	}{
		Alias:                (*Alias)(c),
		ForecastFetchTimeout: c.ForecastFetchTimeout.String(),
		EntsoeFetchTimeout:   c.EntsoeFetchTimeout.String(),
		RunInterval:          c.RunInterval.String(),
	})
}

// UnmarshalJSON parses duration fields given as Go duration strings.
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		*Alias
		ForecastFetchTimeout string `json:"forecast_fetch_timeout"`
		EntsoeFetchTimeout   string `json:"entsoe_fetch_timeout"`
		RunInterval          string `json:"run_interval"`
	}{Alias: (*Alias)(c)}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	var err error
	if aux.ForecastFetchTimeout != "" {
		if c.ForecastFetchTimeout, err = time.ParseDuration(aux.ForecastFetchTimeout); err != nil {
			return fmt.Errorf("invalid forecast_fetch_timeout: %w", err)
		}
	}
	if aux.EntsoeFetchTimeout != "" {
		if c.EntsoeFetchTimeout, err = time.ParseDuration(aux.EntsoeFetchTimeout); err != nil {
			return fmt.Errorf("invalid entsoe_fetch_timeout: %w", err)
		}
	}
	if aux.RunInterval != "" {
		if c.RunInterval, err = time.ParseDuration(aux.RunInterval); err != nil {
			return fmt.Errorf("invalid run_interval: %w", err)
		}
	}
	return nil
}

// String renders the configuration as indented JSON, secrets included —
// callers writing this to a log must redact EntsoeSecurityToken
// themselves, matching the teacher's own Config.String.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
