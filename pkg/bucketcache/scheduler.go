package bucketcache

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/calvinalkan/bucketcache/pkg/logger"
)

// Start launches the background sweeper.
//
// Possible errors: [ErrStarted], [ErrStopped].
func (s *Store) Start() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	switch s.state {
	case stateRunning:
		return ErrStarted
	case stateStopped:
		return ErrStopped
	case stateIdle:
	}

	ctx, cancel := context.WithCancel(context.Background())

	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = stateRunning

	go s.schedule(ctx, s.done)

	s.logger.Info("sweeper started")

	return nil
}

// Stop signals the sweeper to exit and waits for it. Once Stop returns nil
// no sweep is running and none will start. With DisposeOnStop set, every
// table is then cleared, once.
//
// Stop is idempotent. If ctx ends before the sweeper exits, Stop returns the
// context error and the sweeper finishes its current cycle in the
// background; a later Stop waits for it again.
func (s *Store) Stop(ctx context.Context) error {
	s.lifeMu.Lock()

	if s.state == stateRunning {
		s.cancel()
	}

	s.state = stateStopped
	done := s.done

	s.lifeMu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("bucketcache: waiting for sweeper: %w", ctx.Err())
		}
	}

	s.stopOnce.Do(func() {
		if s.cfg.Load().DisposeOnStop {
			for _, tbl := range s.snapshotTables() {
				tbl.Clear()
			}
		}

		s.logger.Info("stopped")
	})

	return nil
}

// Running reports whether the sweeper is active.
func (s *Store) Running() bool {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	return s.state == stateRunning
}

func (s *Store) schedule(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(s.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		s.runCycle(ctx)

		timer.Reset(s.nextInterval())
	}
}

// runCycle is one guarded sweep cycle. Failures are logged and counted; the
// loop keeps going.
func (s *Store) runCycle(ctx context.Context) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.faults.Add(1)
			s.logger.Error("sweep cycle panicked", slog.Any("panic", r))
		}
	}()

	stats, err := s.SweepNow(ctx)
	if err != nil && ctx.Err() == nil {
		s.faults.Add(1)
		s.logger.Warn("sweep cycle failed", logger.Error(err))
	}

	s.logger.Debug("sweep cycle",
		slog.Int("tables", len(stats.Tables)),
		slog.Int64("records", stats.Total.Records),
		slog.Int64("removed_total", stats.Total.SweepRemoved),
		slog.Duration("took", time.Since(start)),
	)
}

// nextInterval is the base sweep interval plus uniform jitter.
func (s *Store) nextInterval() time.Duration {
	cfg := s.cfg.Load()

	base := time.Duration(cfg.SweepInterval)
	jitter := time.Duration(cfg.SweepJitter)

	if jitter <= 0 {
		return base
	}

	return base + rand.N(jitter)
}
