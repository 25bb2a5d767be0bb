package launcher

import (
	"context"
	"sync"
	"time"
)

// Sweeper periodically reclaims unreferenced artifacts and closes sessions
// whose tokens have expired.
type Sweeper struct {
	store    *ArtifactStore
	identity *Identity // optional
	interval time.Duration
	grace    time.Duration
	logger   Logger

	mu     sync.Mutex // serializes RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a Sweeper. identity may be nil.
func NewSweeper(store *ArtifactStore, identity *Identity, interval, grace time.Duration, logger Logger) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{
		store:    store,
		identity: identity,
		interval: interval,
		grace:    grace,
		logger:   logger,
	}
}

// Start runs the sweeper in the background until Stop or ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
	s.logger.Info("sweeper started", "interval", s.interval.String(), "grace", s.grace.String())
}

// Stop stops the background loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// RunOnce performs one sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (*SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result, err := s.store.Sweep(ctx, s.grace)
	if err != nil {
		return nil, err
	}

	if s.identity != nil {
		if _, err := s.identity.ExpireSessions(ctx); err != nil {
			s.logger.Error("expiring sessions", "error", err)
		}
	}

	sweepRunsTotal.Inc()
	sweepDeletedTotal.Add(float64(result.Deleted))
	sweepDurationSeconds.Observe(time.Since(start).Seconds())
	s.logger.Info("sweep finished",
		"candidates", result.Candidates,
		"deleted", result.Deleted,
		"skipped", result.Skipped,
		"errors", result.Errors,
	)
	return result, nil
}
