package service

import (
	"context"
	"fmt"
	"time"

	"github.com/devskill-org/suryadrishti/entsoe"
	"github.com/devskill-org/suryadrishti/model"
)

// RateSource resolves a live day-ahead import rate per local hour,
// overriding SystemConfiguration's static peak/off-peak split for
// both the dispatch engine (dispatch.RateFunc) and the metrics stage
// (metrics.RateFunc) — both declared as the same func(hour int) float64
// shape so one resolved function serves both.
type RateSource struct {
	securityToken string
	urlFormat     string
	location      *time.Location
	timeout       time.Duration
}

// NewEntsoeRateSource builds a RateSource against the ENTSO-E
// transparency platform, the teacher's own day-ahead price feed.
func NewEntsoeRateSource(securityToken, urlFormat string, location *time.Location, timeout time.Duration) *RateSource {
	return &RateSource{securityToken: securityToken, urlFormat: urlFormat, location: location, timeout: timeout}
}

// Resolution is what one successful Resolve call produces: a rate
// function keyed by local hour-of-day, and an availability function
// that reports whether that hour had a usable price at all. Both are
// always non-nil together.
type Resolution struct {
	RateAt    func(hour int) float64
	Available func(hour int) bool
}

// Resolve downloads the current publication market document and
// returns a Resolution keyed by local hour-of-day. A bucket's local
// hour only disambiguates within one calendar day, so a multi-day
// horizon reuses the same day's price curve for every recurrence of an
// hour — an accepted approximation inherent in the hour-only RateFunc
// shape the dispatch and metrics stages already expose.
//
// A nil, nil return (no error) means no live rate is configured; the
// caller falls back entirely to SystemConfiguration's static
// peak/off-peak split and grid_available flag. When a Resolution is
// returned, RateAt falls back to cfg's static rate for any hour the
// downloaded document has no price for, and Available reports false
// for that same hour — an hour the dynamic feed can't price is
// treated as grid-unavailable for that bucket, regardless of the
// static grid_available flag (which Available never overrides toward
// true; dispatch.gridAvailable still ANDs the two together).
func (s *RateSource) Resolve(ctx context.Context, cfg model.SystemConfiguration) (*Resolution, error) {
	if s == nil || s.securityToken == "" || s.urlFormat == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		doc *entsoe.PublicationMarketData
		err error
	}
	done := make(chan result, 1)
	go func() {
		doc, err := entsoe.DownloadPublicationMarketData(ctx, s.securityToken, s.urlFormat, s.location)
		done <- result{doc, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("service: rate fetch timed out: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("service: rate fetch failed: %w", r.err)
		}
		doc := r.doc
		loc := s.location
		priceAt := func(hour int) (float64, bool) {
			now := time.Now().In(loc)
			at := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, loc)
			return doc.LookupAveragePriceInHourByTime(at)
		}
		return &Resolution{
			RateAt: func(hour int) float64 {
				if price, found := priceAt(hour); found {
					return price
				}
				if cfg.GridPeakHours.Contains(hour) {
					return cfg.GridPeakRatePerKWh
				}
				return cfg.GridOffPeakRatePerKWh
			},
			Available: func(hour int) bool {
				_, found := priceAt(hour)
				return found
			},
		}, nil
	}
}
