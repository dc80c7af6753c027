// Package backoff holds the retry policy shared by both data channels:
// how long to wait before the next attempt, and whether a failure is worth
// retrying at all. Each call site owns its own Controller instance so the
// stream reconnect counter and the poll retry counter never interfere.
package backoff

import (
	"errors"
	"net/http"
	"time"
)

// Class splits failures into the two fates the engine knows.
type Class int

const (
	// Transient failures (timeouts, network unreachable, 5xx) are retried
	// with backoff while the previous snapshot stays visible.
	Transient Class = iota
	// Terminal failures (rejected credentials) stop the whole engine and
	// hand control back to the auth collaborator.
	Terminal
)

// ErrCredentialRejected marks an authentication failure reported by either
// channel. Wrap it with %w so Classify can recognize it.
var ErrCredentialRejected = errors.New("credential rejected")

// Controller computes capped exponential delays.
type Controller struct {
	Base time.Duration
	Cap  time.Duration
}

// New returns a controller with the engine defaults: 1s, 2s, 4s, 4s, ...
func New() *Controller {
	return &Controller{Base: time.Second, Cap: 4 * time.Second}
}

// NextDelay returns the delay before retry number attempt (starting at 0).
// The delay doubles per attempt and never exceeds Cap.
func (c *Controller) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Cap the exponent so the shift cannot overflow.
	if attempt > 30 {
		attempt = 30
	}
	d := c.Base * time.Duration(int64(1)<<uint(attempt))
	if d > c.Cap || d <= 0 {
		d = c.Cap
	}
	return d
}

// statusCoder is implemented by transport errors that carry an
// HTTP status code (see rest.StatusError).
type statusCoder interface {
	StatusCode() int
}

// Classify decides whether an error is worth retrying.
// HTTP 401/403 and credential-marked stream errors are Terminal;
// everything else (timeouts, refused connections, 5xx, parse noise
// that escaped the channel boundary) is Transient.
func Classify(err error) Class {
	if err == nil {
		return Transient
	}
	if errors.Is(err, ErrCredentialRejected) {
		return Terminal
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		switch sc.StatusCode() {
		case http.StatusUnauthorized, http.StatusForbidden:
			return Terminal
		}
	}
	return Transient
}
