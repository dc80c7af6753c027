// Package engine composes the sync machinery: cache bootstrap, the polling
// channel, the push channel and the reconciliation path between them. The
// Coordinator is the only thing the UI layer talks to.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"riderSync/internal/backoff"
	"riderSync/internal/poll"
	"riderSync/internal/reconcile"
	"riderSync/models"
)

// API is the request/response surface the coordinator consumes
// (implemented by rest.Client).
type API interface {
	FetchOrders(ctx context.Context) (models.Snapshot, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) (*models.Order, error)
}

// Cache persists the last accepted snapshot
// (implemented by repository.SnapshotRepository).
type Cache interface {
	Save(ctx context.Context, courierID string, snap models.Snapshot) error
	Load(ctx context.Context, courierID string) (*models.CachedSnapshot, error)
}

// Streamer is the push channel (implemented by stream.Manager).
type Streamer interface {
	Connect()
	Disconnect()
}

// Config wires a Coordinator.
type Config struct {
	CourierID string
	API       API
	Cache     Cache

	// NewStream builds the push channel around the coordinator's intake
	// callbacks. Nil disables the stream; polling alone still works.
	NewStream func(onSnapshot func(models.Snapshot), onAuthError func(error)) Streamer

	PollInterval     time.Duration
	PollInitialDelay time.Duration
	// StreamStartDelay postpones the stream dial past startup so a page
	// reload does not open a connection storm.
	StreamStartDelay time.Duration

	// OnChange receives every accepted snapshot. Always a fresh
	// allocation; never invoked twice for equal state.
	OnChange func(models.Snapshot)
	// OnLogout is invoked exactly once when a terminal auth failure
	// stops the engine. The cache is left intact for a quick re-login.
	OnLogout func()

	Logger *slog.Logger
}

type eventKind int

const (
	evSnapshot eventKind = iota
	evPatch
	evError
)

type event struct {
	kind   eventKind
	snap   models.Snapshot
	patch  *models.Order
	err    error
	source string
}

// Coordinator owns the single serialized update path. All incoming data
// (stream frames, poll results, local patches, failures) funnels through
// one mailbox goroutine, so reconciliation is never concurrent with itself.
type Coordinator struct {
	cfg    Config
	log    *slog.Logger
	poller *poll.Scheduler
	stream Streamer

	events      chan event
	stopCh      chan struct{}
	loopDone    chan struct{}
	stopOnce    stdsync.Once
	logoutOnce  stdsync.Once
	streamTimer *time.Timer

	mu      stdsync.Mutex
	started bool
	stopped bool
	current models.Snapshot
	lastErr error
}

// New builds a Coordinator. Call Start to bring the channels up.
func New(cfg Config) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.PollInitialDelay <= 0 {
		cfg.PollInitialDelay = time.Second
	}
	if cfg.StreamStartDelay <= 0 {
		cfg.StreamStartDelay = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := &Coordinator{
		cfg:      cfg,
		log:      cfg.Logger,
		events:   make(chan event, 64),
		stopCh:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	c.poller = poll.NewScheduler(poll.Config{
		InitialDelay: cfg.PollInitialDelay,
		Interval:     cfg.PollInterval,
		Logger:       cfg.Logger,
		Fetch:        cfg.API.FetchOrders,
		OnResult: func(snap models.Snapshot) {
			c.enqueue(event{kind: evSnapshot, snap: snap, source: "poll"})
		},
		OnError: func(err error) {
			c.enqueue(event{kind: evError, err: err, source: "poll"})
		},
	})
	if cfg.NewStream != nil {
		c.stream = cfg.NewStream(
			func(snap models.Snapshot) {
				c.enqueue(event{kind: evSnapshot, snap: snap, source: "stream"})
			},
			func(err error) {
				c.enqueue(event{kind: evError, err: err, source: "stream"})
			},
		)
	}
	return c
}

// Start bootstraps from the local cache, then brings both channels up.
// The cached snapshot (if unexpired) is published synchronously before any
// network round-trip resolves, so the UI never renders empty on reload.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	if cached, err := c.cfg.Cache.Load(ctx, c.cfg.CourierID); err != nil {
		c.log.Warn("cache bootstrap failed", "error", err)
	} else if cached != nil {
		next := cached.Orders.Clone()
		c.setCurrent(next)
		c.publish(next)
		c.log.Info("published cached snapshot", "orders", len(next), "captured_at", cached.CapturedAt)
	}

	go c.loop()
	c.poller.Start()
	if c.stream != nil {
		c.streamTimer = time.AfterFunc(c.cfg.StreamStartDelay, c.stream.Connect)
	}
}

// Stop tears the engine down: both channels lose their in-flight work and
// no background goroutine survives. Idempotent.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	started := c.started
	c.stopped = true
	c.mu.Unlock()
	c.stopOnce.Do(func() { close(c.stopCh) })
	if !started {
		return
	}
	c.shutdownChannels()
	<-c.loopDone
}

// ForceRefresh short-circuits the poll wait; used by callers that want a
// prompt server round-trip without a local mutation.
func (c *Coordinator) ForceRefresh() {
	c.poller.ForceRefresh()
}

// MarkStatus requests a rider-initiated status transition. The allowed
// moves are validated locally first; the optimistic patch lands in the
// snapshot immediately and a forced poll confirms against the server
// within one cycle.
func (c *Coordinator) MarkStatus(ctx context.Context, orderID string, to models.OrderStatus) error {
	c.mu.Lock()
	stopped := c.stopped
	var from *models.Order
	for i := range c.current {
		if c.current[i].ID == orderID {
			o := c.current[i].Clone()
			from = &o
			break
		}
	}
	c.mu.Unlock()

	if stopped {
		return fmt.Errorf("engine is stopped")
	}
	if from == nil {
		return fmt.Errorf("unknown order %q", orderID)
	}
	if !models.CanTransition(from.Status, to) {
		return fmt.Errorf("transition %s -> %s is not rider-initiated", from.Status, to)
	}

	optimistic := *from
	optimistic.Status = to
	optimistic.UpdatedAt = time.Now().UTC()
	c.enqueue(event{kind: evPatch, patch: &optimistic, source: "local"})

	updated, err := c.cfg.API.UpdateOrderStatus(ctx, orderID, to)
	if err != nil {
		// The optimistic patch stays visible; the next poll cycle is the
		// authority and will roll it back if the server rejected it.
		c.enqueue(event{kind: evError, err: err, source: "mutation"})
		return err
	}
	c.enqueue(event{kind: evPatch, patch: updated, source: "server"})
	c.poller.ForceRefresh()
	return nil
}

// Snapshot returns a copy of the current order list.
func (c *Coordinator) Snapshot() models.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Clone()
}

// LastError returns the most recent channel failure, cleared by the next
// accepted update. The UI may surface it as a stale-data indicator; the
// last good snapshot remains the system of record either way.
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Stale reports whether the displayed snapshot outlived the last failure.
func (c *Coordinator) Stale() bool { return c.LastError() != nil }

func (c *Coordinator) loop() {
	defer close(c.loopDone)
	for {
		select {
		case <-c.stopCh:
			return
		case ev := <-c.events:
			switch ev.kind {
			case evSnapshot:
				c.apply(ev.snap, ev.source)
			case evPatch:
				c.applyPatch(ev.patch, ev.source)
			case evError:
				if backoff.Classify(ev.err) == backoff.Terminal {
					c.terminal(ev.err, ev.source)
					return
				}
				c.setError(ev.err)
				c.log.Warn("transient channel failure", "source", ev.source, "error", ev.err)
			}
		}
	}
}

// apply runs one snapshot through reconciliation. Whichever channel's data
// arrives here later wins for that tick; there is deliberately no
// updatedAt arbitration across channel origins (a slow poll response can
// briefly overwrite a fresher stream update and the next cycle corrects
// it).
func (c *Coordinator) apply(snap models.Snapshot, source string) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	next, changed := reconcile.Reconcile(current, snap)
	c.setError(nil)
	if !changed {
		return
	}
	c.setCurrent(next)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := c.cfg.Cache.Save(ctx, c.cfg.CourierID, next); err != nil {
		c.log.Warn("cache save failed", "error", err)
	}
	cancel()

	c.publish(next)
	c.log.Info("snapshot accepted", "source", source, "orders", len(next))
}

// applyPatch splices one order into the current list and reconciles the
// result, so a local mutation repaints without waiting for the server.
func (c *Coordinator) applyPatch(o *models.Order, source string) {
	if o == nil {
		return
	}
	c.mu.Lock()
	incoming := c.current.Clone()
	c.mu.Unlock()

	found := false
	for i := range incoming {
		if incoming[i].ID == o.ID {
			incoming[i] = o.Clone()
			found = true
			break
		}
	}
	if !found {
		incoming = append(incoming, o.Clone())
	}
	c.apply(incoming, source)
}

// terminal stops everything: both channels go down, the cache stays put
// for a quick re-login, and the auth collaborator takes over exactly once.
func (c *Coordinator) terminal(err error, source string) {
	c.log.Error("terminal failure, stopping engine", "source", source, "error", err)
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	c.setError(err)
	c.shutdownChannels()
	c.logoutOnce.Do(func() {
		if c.cfg.OnLogout != nil {
			c.cfg.OnLogout()
		}
	})
}

func (c *Coordinator) shutdownChannels() {
	if c.streamTimer != nil {
		c.streamTimer.Stop()
	}
	c.poller.Stop()
	if c.stream != nil {
		c.stream.Disconnect()
	}
}

// enqueue never blocks: both channel callbacks run on their own goroutines
// and must stay responsive to teardown even when the mailbox is saturated.
// A dropped snapshot is repaired by the next poll tick.
func (c *Coordinator) enqueue(ev event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("mailbox full, event dropped", "source", ev.source)
	}
}

func (c *Coordinator) setCurrent(s models.Snapshot) {
	c.mu.Lock()
	c.current = s
	c.mu.Unlock()
}

func (c *Coordinator) setError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func (c *Coordinator) publish(s models.Snapshot) {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange(s)
	}
}
