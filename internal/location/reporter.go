// Package location forwards raw position samples upstream. Samples flow
// one way: sensor channel -> throttle -> POST. Nothing here feeds back into
// order state.
package location

import (
	"context"
	"log/slog"

	"riderSync/internal/throttle"
	"riderSync/models"
)

// Sender transmits one sample to the backend.
type Sender interface {
	ReportLocation(ctx context.Context, s models.LocationSample) error
}

// Reporter filters a stream of sensor samples through the throttle and
// posts the survivors. Send failures are logged and dropped; the throttle
// is advanced only on acknowledged sends, so a failure never suppresses
// the next legitimate sample.
type Reporter struct {
	th     *throttle.Throttle
	sender Sender
	log    *slog.Logger
}

// NewReporter builds a reporter.
func NewReporter(th *throttle.Throttle, sender Sender, log *slog.Logger) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{th: th, sender: sender, log: log}
}

// Run consumes samples until the channel closes or ctx is cancelled.
// A closed channel is how the sensor layer signals "no more positions"
// (permission denied, sensor gone); that is a quiet exit, not an error.
func (r *Reporter) Run(ctx context.Context, samples <-chan models.LocationSample) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-samples:
			if !ok {
				r.log.Info("location sampling ended")
				return
			}
			if !r.th.ShouldSend(s) {
				continue
			}
			if err := r.sender.ReportLocation(ctx, s); err != nil {
				r.log.Warn("location report failed", "error", err)
				continue
			}
			r.th.RecordSent(s)
		}
	}
}
