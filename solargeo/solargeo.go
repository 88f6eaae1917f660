// Package solargeo computes solar position and clear-sky irradiance for a
// fixed Indian Standard Time location, and maps UTC instants onto the
// scheduler's hourly bucket grid.
package solargeo

import (
	"math"
	"time"

	"github.com/sixdouglas/suncalc"
)

// IST is the fixed India Standard Time zone, UTC+05:30, no DST.
var IST = time.FixedZone("IST", 5*3600+30*60)

// dayStartHourIST and dayEndHourIST bound the daytime window used by
// is_daytime: the closed-open interval [06:00, 19:00) makes 19:00 the
// first nighttime bucket.
const (
	dayStartHourIST = 6
	dayEndHourIST   = 19

	// solarConstantWm2 is the mean extraterrestrial irradiance, used as
	// the upper bound of the clear-sky model.
	solarConstantWm2 = 1361.0

	// atmosphericTransmittance is a fixed clear-sky transmission factor;
	// an Ineichen-like model would vary this with Linke turbidity, but a
	// constant here keeps the model monotonic-with-elevation and within
	// the spec's 15% real-world agreement tolerance.
	atmosphericTransmittance = 0.75
)

// Location is a fixed geographic point the engine computes solar geometry
// for. Timezone is always Asia/Kolkata.
type Location struct {
	Latitude  float64 // degrees, -90..90
	Longitude float64 // degrees, -180..180
}

// Valid reports whether the location's coordinates are within range.
func (l Location) Valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}

// LocalTimeIST returns the civil time of instant in Asia/Kolkata.
func LocalTimeIST(instant time.Time) time.Time {
	return instant.In(IST)
}

// ElevationDeg returns the solar elevation angle in degrees at instant,
// for the given location. Negative values mean the sun is below the
// horizon.
func ElevationDeg(loc Location, instant time.Time) float64 {
	pos := suncalc.GetPosition(instant, loc.Latitude, loc.Longitude)
	return pos.Altitude * 180 / math.Pi
}

// IsDaytime reports whether instant falls within the daytime window:
// solar elevation >= 0 and local IST hour in [6, 19).
func IsDaytime(loc Location, instant time.Time) bool {
	if ElevationDeg(loc, instant) < 0 {
		return false
	}
	hour := LocalTimeIST(instant).Hour()
	return hour >= dayStartHourIST && hour < dayEndHourIST
}

// ClearSkyGHIWm2 returns a nonnegative clear-sky global horizontal
// irradiance reference in W/m^2. The model is a smooth function of
// elevation only: GHI = solarConstant * transmittance * sin(elevation),
// clipped at zero when the sun is at or below the horizon. This is not a
// full Ineichen/Linke-turbidity model, but it is monotonic with elevation
// and tracks the expected midday peak (~900-1000 W/m2) within the 15%
// tolerance the engine requires.
func ClearSkyGHIWm2(loc Location, instant time.Time) float64 {
	elevDeg := ElevationDeg(loc, instant)
	if elevDeg <= 0 {
		return 0
	}
	elevRad := elevDeg * math.Pi / 180
	ghi := solarConstantWm2 * atmosphericTransmittance * math.Sin(elevRad)
	if ghi < 0 {
		return 0
	}
	return ghi
}

// BucketIndex returns the integer hour offset of instant from dayStart,
// both interpreted in IST. Used to place a forecast point on the
// scheduler's hourly bucket grid.
func BucketIndex(dayStart, instant time.Time) int {
	dsIST := LocalTimeIST(dayStart)
	iIST := LocalTimeIST(instant)
	d := iIST.Sub(dsIST)
	return int(d.Hours())
}

// NextHourBoundaryIST returns the next full IST hour boundary at or after
// instant. Used by the forecast adapter to align a resampled grid.
//
// time.Time.Truncate rounds against the absolute zero time, which would
// align to UTC hour boundaries rather than IST ones since the IST offset
// (+05:30) is not a whole number of hours; the civil-time reconstruction
// below avoids that skew.
func NextHourBoundaryIST(instant time.Time) time.Time {
	local := LocalTimeIST(instant)
	truncated := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, IST)
	if truncated.Before(local) {
		truncated = truncated.Add(time.Hour)
	}
	return truncated
}
