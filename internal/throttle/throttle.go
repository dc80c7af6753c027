// Package throttle suppresses redundant location reports. A stationary
// courier produces near-zero traffic; a moving one reports roughly once per
// threshold distance, floored by a minimum interval so high-frequency sensor
// ticks while turning in place cannot burst.
package throttle

import (
	"sync"
	"time"

	"riderSync/internal/geo"
	"riderSync/models"
)

const (
	// DefaultMinInterval is the minimum time between transmitted samples.
	DefaultMinInterval = 5 * time.Second
	// DefaultMinDistanceMeters is the minimum displacement between
	// transmitted samples.
	DefaultMinDistanceMeters = 10.0
)

// Throttle owns the single last transmitted sample. It keeps no history.
type Throttle struct {
	minInterval time.Duration
	minDistance float64

	mu       sync.Mutex
	lastSent *models.LocationSample
}

// New returns a throttle with the given thresholds. Non-positive values
// fall back to the defaults.
func New(minInterval time.Duration, minDistanceMeters float64) *Throttle {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	if minDistanceMeters <= 0 {
		minDistanceMeters = DefaultMinDistanceMeters
	}
	return &Throttle{minInterval: minInterval, minDistance: minDistanceMeters}
}

// ShouldSend reports whether the sample is worth transmitting.
// The first sample is always sendable. Afterwards BOTH thresholds must
// pass, measured against the last sample that was actually sent: elapsed
// capture time >= the interval floor AND great-circle displacement >= the
// distance floor. Time alone or distance alone is insufficient.
func (t *Throttle) ShouldSend(s models.LocationSample) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastSent == nil {
		return true
	}
	if s.CapturedAt.Sub(t.lastSent.CapturedAt) < t.minInterval {
		return false
	}
	return geo.MovedAtLeast(t.lastSent.Lat, t.lastSent.Lng, s.Lat, s.Lng, t.minDistance)
}

// RecordSent registers a sample as transmitted. Call it only after the
// server acknowledged the report; a failed send must not suppress the next
// legitimate sample.
func (t *Throttle) RecordSent(s models.LocationSample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := s
	t.lastSent = &c
}

// LastSent returns a copy of the last transmitted sample, if any.
func (t *Throttle) LastSent() (models.LocationSample, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastSent == nil {
		return models.LocationSample{}, false
	}
	return *t.lastSent, true
}
