// Package poll issues the periodic order snapshot fetches. Polling runs
// independently of the push stream so a dead stream never blocks order
// visibility; it is the boring channel that is always right eventually.
package poll

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"riderSync/internal/backoff"
	"riderSync/models"
)

// FetchFunc retrieves one complete order snapshot.
type FetchFunc func(ctx context.Context) (models.Snapshot, error)

// Config wires a Scheduler to its collaborators.
type Config struct {
	InitialDelay time.Duration
	Interval     time.Duration
	Backoff      *backoff.Controller
	Logger       *slog.Logger

	Fetch FetchFunc
	// OnResult receives every successful snapshot.
	OnResult func(models.Snapshot)
	// OnError receives every failed fetch. The scheduler keeps running;
	// the previous good snapshot stays displayed.
	OnError func(error)
}

// Scheduler runs one fetch after a short initial delay, then one per fixed
// interval, indefinitely, until stopped. At most one fetch is in flight; a
// tick or ForceRefresh arriving while one is outstanding is dropped, never
// queued. Consecutive failures shorten the wait to the backoff delay so a
// blip recovers faster than a full interval.
type Scheduler struct {
	cfg Config

	inFlight atomic.Bool
	failures atomic.Int32
	kick     chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewScheduler builds a scheduler with defaults filled in.
func NewScheduler(cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.InitialDelay < 0 {
		cfg.InitialDelay = 0
	}
	if cfg.Backoff == nil {
		cfg.Backoff = backoff.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{cfg: cfg, kick: make(chan struct{}, 1)}
}

// Start launches the polling loop. A second Start while running is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.loop(ctx, done)
}

// Stop halts the loop and cancels any in-flight fetch. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

// ForceRefresh short-circuits the wait and fetches immediately, unless a
// fetch is already outstanding, in which case the request is dropped.
func (s *Scheduler) ForceRefresh() {
	if s.inFlight.Load() {
		return
	}
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	wait := s.cfg.InitialDelay
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-s.kick:
			// Drain the pending tick so a forced fetch does not double up.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		s.fetchOnce(ctx)

		next := s.cfg.Interval
		if n := s.failures.Load(); n > 0 {
			// Failed fetches retry on the backoff schedule, capped well
			// below the regular interval.
			if d := s.cfg.Backoff.NextDelay(int(n) - 1); d < next {
				next = d
			}
		}
		timer.Reset(next)
	}
}

func (s *Scheduler) fetchOnce(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer s.inFlight.Store(false)

	snap, err := s.cfg.Fetch(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.failures.Add(1)
		s.cfg.Logger.Warn("order fetch failed", "error", err)
		if s.cfg.OnError != nil {
			s.cfg.OnError(err)
		}
		return
	}
	s.failures.Store(0)
	s.cfg.OnResult(snap)
}
