package karma

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/YTstyo/Dis-karm/internal/domain"
	"github.com/YTstyo/Dis-karm/internal/metrics"
)

// ErrCleanupRunning is returned when a sweep is requested while another is
// still in flight in this process.
var ErrCleanupRunning = fmt.Errorf("cleanup already running")

// Cleaner deletes transaction history older than the retention window.
// Totals, cooldowns, and board configuration are never touched: current
// state and audit retention are independent invariant domains.
type Cleaner struct {
	ledger    domain.LedgerStore
	retention time.Duration
	metrics   *metrics.TransactionMetrics

	mu sync.Mutex
}

func NewCleaner(ledger domain.LedgerStore, retention time.Duration, m *metrics.TransactionMetrics) *Cleaner {
	return &Cleaner{ledger: ledger, retention: retention, metrics: m}
}

// RunCleanup purges history rows with timestamp < now - retention and
// returns the number deleted. Idempotent: a second run with the same now
// deletes nothing. Refuses to overlap itself.
func (c *Cleaner) RunCleanup(ctx context.Context, now time.Time) (int64, error) {
	if !c.mu.TryLock() {
		return 0, ErrCleanupRunning
	}
	defer c.mu.Unlock()

	cutoff := now.Add(-c.retention)
	deleted, err := c.ledger.PurgeHistoryOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge history: %w", err)
	}

	if c.metrics != nil {
		c.metrics.CleanupDeleted.Add(float64(deleted))
	}
	slog.Info("history cleanup finished", "cutoff", cutoff, "rows_deleted", deleted)
	return deleted, nil
}
