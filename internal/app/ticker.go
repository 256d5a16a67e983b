package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/YTstyo/Dis-karm/internal/karma"
)

// LeaderGate decides whether this instance may run the sweep. Implemented
// by the Redis leader elector; nil means single-instance deployment.
type LeaderGate interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// CooldownEvictor drops expired cooldown entries. Only the in-memory store
// needs this; Redis entries expire on their own.
type CooldownEvictor interface {
	EvictExpired() int
}

// CleanupTicker drives the retention sweep on a fixed interval and evicts
// stale cooldown entries opportunistically on the same beat.
type CleanupTicker struct {
	cleaner  *karma.Cleaner
	interval time.Duration
	clock    clockwork.Clock
	leader   LeaderGate
	evictor  CooldownEvictor
}

func NewCleanupTicker(cleaner *karma.Cleaner, interval time.Duration, clock clockwork.Clock, leader LeaderGate, evictor CooldownEvictor) *CleanupTicker {
	return &CleanupTicker{
		cleaner:  cleaner,
		interval: interval,
		clock:    clock,
		leader:   leader,
		evictor:  evictor,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (t *CleanupTicker) Run(ctx context.Context) {
	ticker := t.clock.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.sweep(ctx)
		}
	}
}

func (t *CleanupTicker) sweep(ctx context.Context) {
	if t.evictor != nil {
		if evicted := t.evictor.EvictExpired(); evicted > 0 {
			slog.Debug("evicted expired cooldown entries", "count", evicted)
		}
	}

	if t.leader != nil {
		acquired, err := t.leader.TryAcquire(ctx)
		if err != nil {
			slog.Warn("leader election failed, skipping cleanup", "error", err)
			return
		}
		if !acquired {
			slog.Debug("not the cleanup leader, skipping sweep")
			return
		}
		defer func() {
			if err := t.leader.Release(ctx); err != nil {
				slog.Warn("failed to release cleanup leadership", "error", err)
			}
		}()
	}

	if _, err := t.cleaner.RunCleanup(ctx, t.clock.Now()); err != nil {
		if errors.Is(err, karma.ErrCleanupRunning) {
			slog.Debug("cleanup already in progress, skipping")
			return
		}
		slog.Error("history cleanup failed", "error", err)
	}
}
