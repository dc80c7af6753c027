package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"riderSync/internal/auth"
	"riderSync/internal/backoff"
	"riderSync/internal/config"
	"riderSync/internal/db"
	"riderSync/internal/engine"
	"riderSync/internal/location"
	"riderSync/internal/rest"
	"riderSync/internal/stream"
	"riderSync/internal/throttle"
	"riderSync/models"
	"riderSync/repository"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	log.Printf("Configuration loaded: %v", cfg)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	session, err := auth.NewSession(cfg.API.Token, cfg.API.CourierID)
	if err != nil {
		log.Fatalf("build session: %v", err)
	}

	// Open local cache DB
	d, err := db.Open(cfg.Cache.Path)
	if err != nil {
		log.Fatalf("open cache db: %v", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Printf("close cache db: %v", err)
		}
	}()

	snapshots := repository.NewSnapshotRepository(d)
	api := rest.NewClient(cfg.API.BaseURL, session)

	eng := engine.New(engine.Config{
		CourierID: session.CourierID,
		API:       api,
		Cache:     snapshots,
		NewStream: func(onSnapshot func(models.Snapshot), onAuthError func(error)) engine.Streamer {
			return stream.NewManager(stream.Config{
				URL:         cfg.API.StreamURL,
				Session:     session,
				ReadTimeout: cfg.Sync.ReadTimeout,
				Backoff:     backoff.New(),
				Logger:      logger,
				OnSnapshot:  onSnapshot,
				OnAuthError: onAuthError,
			})
		},
		PollInterval:     cfg.Sync.PollInterval,
		PollInitialDelay: cfg.Sync.PollInitialDelay,
		StreamStartDelay: cfg.Sync.StreamStartDelay,
		OnChange: func(snap models.Snapshot) {
			log.Printf("orders updated: %d order(s)", len(snap))
		},
		OnLogout: func() {
			log.Printf("session rejected by server, shutting down")
			// Nudge the signal path so the process exits cleanly.
			_ = syscall.Kill(syscall.Getpid(), syscall.SIGTERM)
		},
		Logger: logger,
	})
	eng.Start(context.Background())
	defer eng.Stop()

	// Location samples arrive as JSON lines on stdin, one object per
	// line, and go through the throttle before hitting the network.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	samples := make(chan models.LocationSample, 16)
	go readSamples(ctx, samples)

	reporter := location.NewReporter(
		throttle.New(cfg.Location.MinInterval, cfg.Location.MinDistanceMeters),
		api,
		logger,
	)
	reporterDone := make(chan struct{})
	go func() {
		defer close(reporterDone)
		reporter.Run(ctx, samples)
	}()

	// Wait for signal
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	cancel()
	select {
	case <-reporterDone:
	case <-time.After(5 * time.Second):
		log.Printf("location reporter did not stop in time")
	}
}

// readSamples decodes location samples from stdin until EOF or cancel.
// Bad lines are skipped; the sender upstream may be a flaky GPS shim.
func readSamples(ctx context.Context, out chan<- models.LocationSample) {
	defer close(out)
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		var s models.LocationSample
		if err := json.Unmarshal(sc.Bytes(), &s); err != nil {
			log.Printf("skip malformed location sample: %v", err)
			continue
		}
		if s.CapturedAt.IsZero() {
			s.CapturedAt = time.Now().UTC()
		}
		select {
		case out <- s:
		case <-ctx.Done():
			return
		}
	}
	if err := sc.Err(); err != nil {
		log.Printf("stdin closed: %v", err)
	}
}
