package solargeo

import (
	"testing"
	"time"
)

var newDelhi = Location{Latitude: 28.6139, Longitude: 77.2090}

func TestIsDaytimeNoonIsDaytime(t *testing.T) {
	// 2025-06-15 12:00 IST is well within the daytime window and the sun
	// is high for a location near the Tropic of Cancer in June.
	noonIST := time.Date(2025, 6, 15, 12, 0, 0, 0, IST)
	if !IsDaytime(newDelhi, noonIST) {
		t.Fatalf("expected noon IST to be daytime")
	}
}

func TestIsDaytimeMidnightIsNight(t *testing.T) {
	midnightIST := time.Date(2025, 6, 15, 0, 30, 0, 0, IST)
	if IsDaytime(newDelhi, midnightIST) {
		t.Fatalf("expected midnight IST to be nighttime")
	}
}

func TestIsDaytimeBoundaryAt19IsNight(t *testing.T) {
	// The window is closed-open [06:00, 19:00): 19:00 itself must be
	// treated as the first nighttime bucket regardless of elevation.
	at19 := time.Date(2025, 6, 15, 19, 0, 0, 0, IST)
	if IsDaytime(newDelhi, at19) {
		t.Fatalf("expected 19:00 IST to be treated as nighttime")
	}
}

func TestClearSkyGHIZeroBelowHorizon(t *testing.T) {
	night := time.Date(2025, 1, 15, 2, 0, 0, 0, IST)
	if got := ClearSkyGHIWm2(newDelhi, night); got != 0 {
		t.Fatalf("expected zero clear-sky GHI at night, got %f", got)
	}
}

func TestClearSkyGHIMonotonicWithElevation(t *testing.T) {
	morning := time.Date(2025, 6, 15, 8, 0, 0, 0, IST)
	noon := time.Date(2025, 6, 15, 12, 30, 0, 0, IST)

	ghiMorning := ClearSkyGHIWm2(newDelhi, morning)
	ghiNoon := ClearSkyGHIWm2(newDelhi, noon)

	if ElevationDeg(newDelhi, noon) <= ElevationDeg(newDelhi, morning) {
		t.Fatalf("test fixture assumption broken: noon elevation should exceed morning")
	}
	if ghiNoon <= ghiMorning {
		t.Fatalf("expected clear-sky GHI to increase with elevation: morning=%f noon=%f", ghiMorning, ghiNoon)
	}
	if ghiNoon > 1200 {
		t.Fatalf("clear-sky GHI implausibly high: %f", ghiNoon)
	}
}

func TestBucketIndex(t *testing.T) {
	dayStart := time.Date(2025, 6, 15, 0, 0, 0, 0, IST)
	instant := time.Date(2025, 6, 15, 14, 0, 0, 0, IST)

	if got := BucketIndex(dayStart, instant); got != 14 {
		t.Fatalf("expected bucket index 14, got %d", got)
	}
}

func TestNextHourBoundaryISTAlreadyAligned(t *testing.T) {
	aligned := time.Date(2025, 6, 15, 9, 0, 0, 0, IST)
	if got := NextHourBoundaryIST(aligned); !got.Equal(aligned) {
		t.Fatalf("expected already-aligned time to be returned unchanged, got %v", got)
	}
}

func TestNextHourBoundaryISTRoundsUp(t *testing.T) {
	mid := time.Date(2025, 6, 15, 9, 15, 0, 0, IST)
	want := time.Date(2025, 6, 15, 10, 0, 0, 0, IST)
	if got := NextHourBoundaryIST(mid); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestLocationValid(t *testing.T) {
	if !newDelhi.Valid() {
		t.Fatalf("expected New Delhi location to be valid")
	}
	bad := Location{Latitude: 95, Longitude: 0}
	if bad.Valid() {
		t.Fatalf("expected out-of-range latitude to be invalid")
	}
}
