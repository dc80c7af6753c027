// Package stream maintains the long-lived push channel for order updates.
// The channel is a convenience accelerator, never the sole source of truth:
// its failure must never block order visibility, so reconnection is
// deliberately endless while the session stays valid and only a rejected
// credential stops it.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"riderSync/internal/auth"
	"riderSync/internal/backoff"
	"riderSync/models"
)

// DefaultReadTimeout is the idle watchdog ceiling: a connection that
// carries no bytes (not even a ping) for this long is torn down and
// redialed, which also bounds how fast Disconnect is observed.
const DefaultReadTimeout = 15 * time.Second

// Config wires a Manager to its collaborators.
type Config struct {
	URL         string
	Session     *auth.Session
	ReadTimeout time.Duration
	Backoff     *backoff.Controller
	Logger      *slog.Logger

	// OnSnapshot receives every parsed order snapshot.
	OnSnapshot func(models.Snapshot)
	// OnAuthError is invoked once when the server names a rejected
	// credential; the manager hard-stops instead of reconnecting.
	OnAuthError func(error)
}

// Manager owns one push connection at a time plus its ConnectionState.
type Manager struct {
	cfg   Config
	httpc *http.Client

	mu          sync.Mutex
	state       models.ConnectionState
	running     bool
	hardStopped bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewManager builds a manager. The HTTP client carries no global timeout:
// the connection is meant to live for hours; the watchdog bounds idleness.
func NewManager(cfg Config) *Manager {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Backoff == nil {
		cfg.Backoff = backoff.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		cfg: cfg,
		// No client-level timeout: the body is read for hours. Headers
		// still have to arrive within the watchdog ceiling.
		httpc: &http.Client{Transport: &http.Transport{ResponseHeaderTimeout: cfg.ReadTimeout}},
		state: models.ConnectionState{Phase: models.ConnectionIdle},
	}
}

// Connect starts the channel. Calling it while a connection is running is
// a no-op; a previous hard stop is cleared so a re-authenticated session
// can dial again.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.hardStopped = false
	m.state = models.ConnectionState{Phase: models.ConnectionConnecting}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go m.run(ctx, done)
}

// Disconnect tears down the in-flight read and waits for the reader to
// exit. Idempotent; safe to call without a prior Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done
}

// State returns a copy of the connection state.
func (m *Manager) State() models.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer m.setPhase(models.ConnectionClosed)

	for {
		if ctx.Err() != nil {
			return
		}
		m.setPhase(models.ConnectionConnecting)
		connID := uuid.NewString()
		err := m.readOnce(ctx, connID)

		m.mu.Lock()
		stopped := m.hardStopped || !m.running
		m.state.Attempt++
		attempt := m.state.Attempt
		m.mu.Unlock()
		if stopped || ctx.Err() != nil {
			return
		}

		delay := m.cfg.Backoff.NextDelay(attempt - 1)
		m.cfg.Logger.Warn("stream ended, reconnecting",
			"conn_id", connID, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// readOnce dials the stream and consumes frames until it ends.
// A nil return means a clean server close; both outcomes reconnect.
func (m *Manager) readOnce(ctx context.Context, connID string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", m.cfg.Session.BearerHeader())
	req.Header.Set("X-Courier-ID", m.cfg.Session.CourierID)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := m.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		m.hardStop(fmt.Errorf("stream rejected with status %d: %w", resp.StatusCode, backoff.ErrCredentialRejected))
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected stream status %d", resp.StatusCode)
	}

	m.setPhase(models.ConnectionOpen)
	m.cfg.Logger.Info("stream open", "conn_id", connID)

	// Idle watchdog: any line (data or ping) pushes the deadline out;
	// silence beyond the ceiling cancels the read.
	watchdog := time.AfterFunc(m.cfg.ReadTimeout, cancel)
	defer watchdog.Stop()

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var p frameParser
	for sc.Scan() {
		watchdog.Reset(m.cfg.ReadTimeout)
		f, ok := p.feed(sc.Text())
		if !ok {
			continue
		}
		m.resetAttempt()
		switch f.Type {
		case EventPing:
			// Heartbeat; the watchdog reset above is its whole job.
		case EventError:
			if isCredentialError(f.Data) {
				m.hardStop(fmt.Errorf("stream error event %q: %w", f.Data, backoff.ErrCredentialRejected))
				return nil
			}
			m.cfg.Logger.Warn("stream error event", "conn_id", connID, "data", string(f.Data))
		case EventOrdersUpdate:
			var snap models.Snapshot
			if err := json.Unmarshal(f.Data, &snap); err != nil {
				// One malformed frame never costs the channel.
				m.cfg.Logger.Warn("malformed snapshot frame dropped", "conn_id", connID, "error", err)
				continue
			}
			m.cfg.OnSnapshot(snap)
		default:
			m.cfg.Logger.Debug("unknown stream event dropped", "conn_id", connID, "event", f.Type)
		}
	}
	return sc.Err()
}

// hardStop records the terminal condition and notifies once. The run loop
// observes the flag and exits without scheduling a reconnect.
func (m *Manager) hardStop(err error) {
	m.mu.Lock()
	already := m.hardStopped
	m.hardStopped = true
	m.running = false
	m.mu.Unlock()
	if !already && m.cfg.OnAuthError != nil {
		m.cfg.OnAuthError(err)
	}
}

func (m *Manager) setPhase(p models.ConnectionPhase) {
	m.mu.Lock()
	m.state.Phase = p
	m.mu.Unlock()
}

func (m *Manager) resetAttempt() {
	m.mu.Lock()
	m.state.Attempt = 0
	m.mu.Unlock()
}
