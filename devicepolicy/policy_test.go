package devicepolicy

import (
	"testing"

	"github.com/devskill-org/suryadrishti/model"
)

func TestOrderPriorityThenTypeThenPower(t *testing.T) {
	devices := []model.Device{
		{ID: "d1", Priority: 2, Type: model.DeviceFlexible, PowerKW: 5, IsActive: true},
		{ID: "d2", Priority: 1, Type: model.DeviceOptional, PowerKW: 2, IsActive: true},
		{ID: "d3", Priority: 1, Type: model.DeviceEssential, PowerKW: 10, IsActive: true},
		{ID: "d4", Priority: 1, Type: model.DeviceEssential, PowerKW: 3, IsActive: true},
	}

	ordered := Order(devices)
	want := []string{"d4", "d3", "d2", "d1"}
	for i, id := range want {
		if ordered[i].ID != id {
			t.Fatalf("position %d: want %s, got %s", i, id, ordered[i].ID)
		}
	}
}

func TestOrderDoesNotMutateInput(t *testing.T) {
	devices := []model.Device{
		{ID: "a", Priority: 2},
		{ID: "b", Priority: 1},
	}
	_ = Order(devices)
	if devices[0].ID != "a" || devices[1].ID != "b" {
		t.Fatalf("Order mutated its input slice")
	}
}

func TestEligibleInactiveDeviceIsNeverEligible(t *testing.T) {
	d := model.Device{IsActive: false}
	for h := 0; h < 24; h++ {
		if Eligible(d, h) {
			t.Fatalf("inactive device reported eligible at hour %d", h)
		}
	}
}

func TestEligibleNoPreferredHoursAlwaysEligible(t *testing.T) {
	d := model.Device{IsActive: true}
	for h := 0; h < 24; h++ {
		if !Eligible(d, h) {
			t.Fatalf("device with no preferred-hours window should be eligible at hour %d", h)
		}
	}
}

func TestEligibleWraparoundWindow(t *testing.T) {
	d := model.Device{IsActive: true, PreferredHours: &model.PreferredHours{Start: 22, End: 6}}
	for _, h := range []int{22, 23, 0, 3, 5} {
		if !Eligible(d, h) {
			t.Fatalf("expected hour %d to be within wraparound window", h)
		}
	}
	for _, h := range []int{6, 7, 12, 21} {
		if Eligible(d, h) {
			t.Fatalf("expected hour %d to be outside wraparound window", h)
		}
	}
}

func TestMinRuntimeBucketsRoundsUp(t *testing.T) {
	cases := []struct {
		minutes int
		want    int
	}{
		{0, 0},
		{1, 1},
		{60, 1},
		{61, 2},
		{150, 3},
	}
	for _, c := range cases {
		d := model.Device{MinRuntimeMinutes: c.minutes}
		if got := MinRuntimeBuckets(d); got != c.want {
			t.Fatalf("MinRuntimeBuckets(%d min) = %d, want %d", c.minutes, got, c.want)
		}
	}
}

func TestIneligibleForHorizon(t *testing.T) {
	d := model.Device{MinRuntimeMinutes: 180} // 3 buckets
	if IneligibleForHorizon(d, 4) {
		t.Fatalf("device should fit within a 4-bucket horizon")
	}
	if !IneligibleForHorizon(d, 2) {
		t.Fatalf("device should not fit within a 2-bucket horizon")
	}
}

func TestIsIrrigationPumpHonorsFlagOnly(t *testing.T) {
	pump := model.Device{Name: "irrigation pump 1", IrrigationFlag: true}
	notFlagged := model.Device{Name: "irrigation pump 2", IrrigationFlag: false}
	if !IsIrrigationPump(pump) {
		t.Fatalf("expected flagged device to be treated as irrigation pump")
	}
	if IsIrrigationPump(notFlagged) {
		t.Fatalf("device name alone must not make it an irrigation pump")
	}
}
