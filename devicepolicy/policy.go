// Package devicepolicy orders and filters a microgrid's device fleet
// for the dispatch engine. It is stateless: every function is a pure
// query over a Device value, producing orderings and predicates that
// the engine consults bucket by bucket.
package devicepolicy

import (
	"sort"

	"github.com/devskill-org/suryadrishti/model"
)

// typeWeight ranks device types so essential loads sort ahead of
// flexible ones, which sort ahead of optional ones.
func typeWeight(t model.DeviceType) int {
	switch t {
	case model.DeviceEssential:
		return 0
	case model.DeviceFlexible:
		return 1
	case model.DeviceOptional:
		return 2
	default:
		return 3
	}
}

// Order returns a new slice sorted for scheduling: priority ascending
// (1 first), then type weight (essential, flexible, optional), then
// power_kw ascending as a tie-breaker so small essential loads commit
// before large flexible ones.
func Order(devices []model.Device) []model.Device {
	ordered := make([]model.Device, len(devices))
	copy(ordered, devices)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if wa, wb := typeWeight(a.Type), typeWeight(b.Type); wa != wb {
			return wa < wb
		}
		return a.PowerKW < b.PowerKW
	})
	return ordered
}

// Eligible reports whether device may run at local hour h (0..23): it
// must be active, and either carry no preferred-hours window or have h
// fall inside that window (with midnight wrap-around support).
func Eligible(device model.Device, h int) bool {
	if !device.IsActive {
		return false
	}
	if device.PreferredHours == nil {
		return true
	}
	return device.PreferredHours.Contains(h)
}

// MinRuntimeBuckets returns the soft minimum-runtime hint in whole
// hourly buckets, ceil(min_runtime_minutes/60). A device whose minimum
// runtime exceeds the scheduling horizon is the caller's concern to
// detect (see IneligibleForHorizon); this function only performs the
// unit conversion named in §4.4.
func MinRuntimeBuckets(device model.Device) int {
	return device.MinRuntimeBuckets()
}

// IneligibleForHorizon reports whether device's minimum runtime cannot
// possibly fit within a horizon of horizonBuckets hourly buckets, in
// which case the device is ineligible for the entire run rather than
// being given a partial, unfulfillable commitment.
func IneligibleForHorizon(device model.Device, horizonBuckets int) bool {
	return MinRuntimeBuckets(device) > horizonBuckets
}

// IsIrrigationPump reports whether device should be treated by the
// irrigation-pump deferral rule (§4.5.2 step 5). The explicit flag is
// authoritative; device naming is never consulted by the engine.
func IsIrrigationPump(device model.Device) bool {
	return device.IrrigationFlag
}
