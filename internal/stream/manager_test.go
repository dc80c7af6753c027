package stream

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"riderSync/internal/auth"
	"riderSync/internal/backoff"
	"riderSync/models"
)

func testSession(t *testing.T) *auth.Session {
	t.Helper()
	s, err := auth.NewSession("opaque-token", "c-1")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	return s
}

func fastBackoff() *backoff.Controller {
	return &backoff.Controller{Base: 10 * time.Millisecond, Cap: 20 * time.Millisecond}
}

// collect drains snapshots into a channel so tests can await them.
func collector(buf int) (func(models.Snapshot), chan models.Snapshot) {
	ch := make(chan models.Snapshot, buf)
	return func(s models.Snapshot) { ch <- s }, ch
}

func awaitSnapshot(t *testing.T, ch chan models.Snapshot) models.Snapshot {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
		return nil
	}
}

func TestManager_ReceivesSnapshot(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		if r.Header.Get("Authorization") != "Bearer opaque-token" {
			t.Errorf("missing bearer header")
		}
		if r.Header.Get("X-Courier-ID") != "c-1" {
			t.Errorf("missing courier header")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: pedidos-update\n")
		fmt.Fprint(w, `data: [{"id":"o-1","status":"ready"}]`+"\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	onSnap, snaps := collector(4)
	m := NewManager(Config{
		URL:        srv.URL,
		Session:    testSession(t),
		Backoff:    fastBackoff(),
		OnSnapshot: onSnap,
	})
	m.Connect()
	defer m.Disconnect()

	snap := awaitSnapshot(t, snaps)
	if len(snap) != 1 || snap[0].ID != "o-1" || snap[0].Status != models.OrderStatusReady {
		t.Fatalf("snapshot = %+v", snap)
	}
	if got := m.State().Phase; got != models.ConnectionOpen {
		t.Fatalf("phase = %s, want open", got)
	}
	if m.State().Attempt != 0 {
		t.Fatalf("attempt counter must reset on message receipt")
	}
}

func TestManager_MalformedFrameSurvives(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		// One syntactically invalid payload, then a valid update.
		fmt.Fprint(w, "event: pedidos-update\ndata: {not json!\n\n")
		fmt.Fprint(w, "event: pedidos-update\ndata: [{\"id\":\"ok\"}]\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	onSnap, snaps := collector(4)
	m := NewManager(Config{URL: srv.URL, Session: testSession(t), Backoff: fastBackoff(), OnSnapshot: onSnap})
	m.Connect()
	defer m.Disconnect()

	snap := awaitSnapshot(t, snaps)
	if len(snap) != 1 || snap[0].ID != "ok" {
		t.Fatalf("valid frame after malformed one must still arrive, got %+v", snap)
	}
	time.Sleep(100 * time.Millisecond)
	if n := dials.Load(); n != 1 {
		t.Fatalf("malformed frame must not cost the connection, dials = %d", n)
	}
}

func TestManager_ReconnectsAfterServerClose(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := dials.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "event: pedidos-update\ndata: [{\"id\":\"conn-%d\"}]\n\n", n)
		w.(http.Flusher).Flush()
		if n == 1 {
			return // clean close; the manager should redial
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	onSnap, snaps := collector(4)
	m := NewManager(Config{URL: srv.URL, Session: testSession(t), Backoff: fastBackoff(), OnSnapshot: onSnap})
	m.Connect()
	defer m.Disconnect()

	first := awaitSnapshot(t, snaps)
	second := awaitSnapshot(t, snaps)
	if first[0].ID != "conn-1" || second[0].ID != "conn-2" {
		t.Fatalf("expected snapshots from two connections, got %s then %s", first[0].ID, second[0].ID)
	}
	if dials.Load() < 2 {
		t.Fatalf("server close must trigger a reconnect")
	}
}

func TestManager_AuthErrorEventHardStops(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: error\ndata: {\"message\":\"Token expirado\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	authErrs := make(chan error, 4)
	m := NewManager(Config{
		URL:         srv.URL,
		Session:     testSession(t),
		Backoff:     fastBackoff(),
		OnSnapshot:  func(models.Snapshot) {},
		OnAuthError: func(err error) { authErrs <- err },
	})
	m.Connect()

	select {
	case err := <-authErrs:
		if backoff.Classify(err) != backoff.Terminal {
			t.Fatalf("auth error must classify terminal: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for auth error")
	}

	time.Sleep(150 * time.Millisecond)
	if n := dials.Load(); n != 1 {
		t.Fatalf("hard stop must not reconnect, dials = %d", n)
	}
	if len(authErrs) != 0 {
		t.Fatalf("auth error hook must fire exactly once")
	}
}

func TestManager_UnauthorizedStatusHardStops(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	authErrs := make(chan error, 4)
	m := NewManager(Config{
		URL:         srv.URL,
		Session:     testSession(t),
		Backoff:     fastBackoff(),
		OnSnapshot:  func(models.Snapshot) {},
		OnAuthError: func(err error) { authErrs <- err },
	})
	m.Connect()

	select {
	case err := <-authErrs:
		if backoff.Classify(err) != backoff.Terminal {
			t.Fatalf("401 must classify terminal: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for auth error")
	}
	time.Sleep(150 * time.Millisecond)
	if n := dials.Load(); n != 1 {
		t.Fatalf("401 must not be retried, dials = %d", n)
	}
}

func TestManager_SecondConnectIsNoOp(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: pedidos-update\ndata: []\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	onSnap, snaps := collector(4)
	m := NewManager(Config{URL: srv.URL, Session: testSession(t), Backoff: fastBackoff(), OnSnapshot: onSnap})
	m.Connect()
	m.Connect()
	defer m.Disconnect()

	awaitSnapshot(t, snaps)
	time.Sleep(100 * time.Millisecond)
	if n := dials.Load(); n != 1 {
		t.Fatalf("second Connect must be a no-op, dials = %d", n)
	}
}

func TestManager_DisconnectIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: ping\ndata: {}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	m := NewManager(Config{URL: srv.URL, Session: testSession(t), Backoff: fastBackoff(), OnSnapshot: func(models.Snapshot) {}})
	m.Disconnect() // before any Connect: no-op
	m.Connect()
	time.Sleep(50 * time.Millisecond)
	m.Disconnect()
	m.Disconnect()
	if got := m.State().Phase; got != models.ConnectionClosed {
		t.Fatalf("phase after disconnect = %s, want closed", got)
	}
}
