package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"valutatrade/internal/core/domain"
	"valutatrade/internal/core/ports"

	"github.com/rs/zerolog"
)

// RateScheduler periodically calls RefreshAll for each configured source kind.
// It only refreshes; nothing is ever expired.
type RateScheduler struct {
	cache    ports.RateCache
	kinds    []domain.SourceKind
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRateScheduler creates a stopped scheduler.
func NewRateScheduler(cache ports.RateCache, kinds []domain.SourceKind, interval time.Duration, log zerolog.Logger) *RateScheduler {
	return &RateScheduler{
		cache:    cache,
		kinds:    kinds,
		interval: interval,
		log:      log,
	}
}

// RunOnce refreshes every kind once. A failing kind does not stop the others;
// the returned error joins all failures.
func (s *RateScheduler) RunOnce(ctx context.Context) error {
	var errs []error
	for _, kind := range s.kinds {
		rates, err := s.cache.RefreshAll(ctx, kind)
		if err != nil {
			s.log.Warn().Err(err).Str("source", string(kind)).Msg("scheduled refresh failed")
			errs = append(errs, err)
			continue
		}
		s.log.Debug().Str("source", string(kind)).Int("rates", len(rates)).Msg("scheduled refresh done")
	}
	return errors.Join(errs...)
}

// Start runs an immediate refresh and then one every interval until Stop is
// called or ctx is done. Starting a running scheduler is a no-op.
func (s *RateScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)
	s.log.Info().Dur("interval", s.interval).Msg("rate scheduler started")
}

// Stop cancels the loop and waits for an in-flight refresh to finish.
func (s *RateScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info().Msg("rate scheduler stopped")
}

func (s *RateScheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	_ = s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.RunOnce(ctx)
		}
	}
}
