package models

import "time"

// LocationSample is one raw position reading from the device sensor.
// Heading and speed are nullable because not every sensor reports them.
type LocationSample struct {
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	HeadingDegrees *float64  `json:"heading,omitempty"`
	SpeedKmh       *float64  `json:"speed_kmh,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
}
