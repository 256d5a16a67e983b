package karma

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedHistory(t *testing.T, h *harness) {
	t.Helper()
	ctx := context.Background()

	// Two old transactions and one fresh one against the same member.
	_, err := h.engine.Give(ctx, "community-1", "alice", "bob", 5, "old")
	require.NoError(t, err)
	_, err = h.engine.Give(ctx, "community-1", "carol", "bob", 3, "old")
	require.NoError(t, err)

	h.clock.Advance(40 * 24 * time.Hour)
	_, err = h.engine.Give(ctx, "community-1", "dave", "bob", 2, "fresh")
	require.NoError(t, err)
}

func TestCleaner_PurgesOnlyExpiredHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedHistory(t, h)

	cleaner := NewCleaner(h.store, 30*24*time.Hour, nil)
	deleted, err := cleaner.RunCleanup(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	history, err := h.store.RecentHistory(ctx, "community-1", "bob", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "fresh", history[0].Reason)
}

func TestCleaner_TotalsSurviveCleanup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedHistory(t, h)

	cleaner := NewCleaner(h.store, 30*24*time.Hour, nil)
	_, err := cleaner.RunCleanup(ctx, h.clock.Now())
	require.NoError(t, err)

	total, err := h.store.GetTotal(ctx, "community-1", "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(10), total, "purging audit rows must never change the running total")

	board, err := h.store.Leaderboard(ctx, "community-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, int64(10), board[0].Total)
}

func TestCleaner_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedHistory(t, h)

	cleaner := NewCleaner(h.store, 30*24*time.Hour, nil)
	now := h.clock.Now()

	deleted, err := cleaner.RunCleanup(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	deleted, err = cleaner.RunCleanup(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, deleted, "a second sweep with the same clock must be a no-op")
}

func TestCleaner_RefusesOverlap(t *testing.T) {
	clock := clockwork.NewFakeClock()
	block := make(chan struct{})
	store := &blockingLedger{
		MemoryStore: NewMemoryStore(func(int64) int { return 0 }),
		gate:        block,
		entered:     make(chan struct{}),
	}
	cleaner := NewCleaner(store, time.Hour, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := cleaner.RunCleanup(context.Background(), clock.Now())
		assert.NoError(t, err)
	}()

	store.waitUntilBlocked()
	_, err := cleaner.RunCleanup(context.Background(), clock.Now())
	assert.ErrorIs(t, err, ErrCleanupRunning)

	close(block)
	wg.Wait()
}

// blockingLedger parks PurgeHistoryOlderThan until its gate closes.
type blockingLedger struct {
	*MemoryStore
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (b *blockingLedger) PurgeHistoryOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.gate
	return b.MemoryStore.PurgeHistoryOlderThan(ctx, cutoff)
}

func (b *blockingLedger) waitUntilBlocked() {
	<-b.entered
}
