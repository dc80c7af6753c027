package throttle

import (
	"testing"
	"time"

	"riderSync/models"
)

// metersToLatDegrees converts a northward displacement to degrees of
// latitude on the 6371km sphere (1 degree ~ 111195 m).
func metersToLatDegrees(m float64) float64 { return m / 111194.9 }

func sampleAt(t0 time.Time, lat, lng float64, dt time.Duration) models.LocationSample {
	return models.LocationSample{Lat: lat, Lng: lng, CapturedAt: t0.Add(dt)}
}

func TestFirstSampleAlwaysSendable(t *testing.T) {
	th := New(DefaultMinInterval, DefaultMinDistanceMeters)
	if !th.ShouldSend(models.LocationSample{Lat: 1, Lng: 2, CapturedAt: time.Now()}) {
		t.Fatalf("first sample must be sendable")
	}
}

func TestDistanceBoundary(t *testing.T) {
	t0 := time.Now()
	th := New(5*time.Second, 10)
	first := sampleAt(t0, 0, 0, 0)
	th.RecordSent(first)

	near := sampleAt(t0, metersToLatDegrees(9.9), 0, 5*time.Second)
	if th.ShouldSend(near) {
		t.Fatalf("9.9m displacement must not be sendable at a 10m floor")
	}
	far := sampleAt(t0, metersToLatDegrees(10.1), 0, 5*time.Second)
	if !th.ShouldSend(far) {
		t.Fatalf("10.1m displacement must be sendable at a 10m floor")
	}
}

func TestTimeBoundary(t *testing.T) {
	t0 := time.Now()
	th := New(5*time.Second, 10)
	th.RecordSent(sampleAt(t0, 0, 0, 0))

	moved := metersToLatDegrees(50)
	early := sampleAt(t0, moved, 0, 4900*time.Millisecond)
	if th.ShouldSend(early) {
		t.Fatalf("4.9s elapsed must not be sendable at a 5s floor even 50m away")
	}
	late := sampleAt(t0, moved, 0, 5100*time.Millisecond)
	if !th.ShouldSend(late) {
		t.Fatalf("5.1s elapsed and 50m away must be sendable")
	}
}

func TestBothThresholdsRequired(t *testing.T) {
	t0 := time.Now()
	th := New(5*time.Second, 10)
	th.RecordSent(sampleAt(t0, 0, 0, 0))

	// Plenty of time, no displacement: a stationary courier stays quiet.
	if th.ShouldSend(sampleAt(t0, 0, 0, time.Hour)) {
		t.Fatalf("time alone must not be sufficient")
	}
	// Plenty of displacement, no time: sensor burst while moving fast.
	if th.ShouldSend(sampleAt(t0, metersToLatDegrees(500), 0, time.Second)) {
		t.Fatalf("distance alone must not be sufficient")
	}
}

func TestFailedSendDoesNotSuppress(t *testing.T) {
	t0 := time.Now()
	th := New(5*time.Second, 10)
	first := sampleAt(t0, 0, 0, 0)
	if !th.ShouldSend(first) {
		t.Fatalf("first sample must be sendable")
	}
	// Transmission failed: RecordSent is never called, so the same
	// position remains sendable on the next tick.
	again := sampleAt(t0, 0, 0, 100*time.Millisecond)
	if !th.ShouldSend(again) {
		t.Fatalf("without RecordSent the next sample must stay sendable")
	}

	th.RecordSent(first)
	if th.ShouldSend(again) {
		t.Fatalf("after RecordSent the thresholds must apply")
	}
}

func TestLastSentIsACopy(t *testing.T) {
	th := New(0, 0)
	s := models.LocationSample{Lat: 3, Lng: 4, CapturedAt: time.Now()}
	th.RecordSent(s)
	got, ok := th.LastSent()
	if !ok || got.Lat != 3 || got.Lng != 4 {
		t.Fatalf("LastSent = %+v, %v", got, ok)
	}
	got.Lat = 99
	again, _ := th.LastSent()
	if again.Lat != 3 {
		t.Fatalf("LastSent must hand out copies")
	}
}
