package karma

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemoryCooldowns tracks cooldown entries in process memory. Entries are
// evicted lazily on check; EvictExpired exists for the opportunistic sweep
// driven by the scheduler collaborator.
type MemoryCooldowns struct {
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]time.Time // key -> earliest next allowed
}

func NewMemoryCooldowns(clock clockwork.Clock) *MemoryCooldowns {
	return &MemoryCooldowns{clock: clock, entries: make(map[string]time.Time)}
}

func (c *MemoryCooldowns) Check(_ context.Context, communityID, giverID, receiverID string) (time.Duration, bool, error) {
	key := compositeKey(communityID, giverID, receiverID)

	c.mu.Lock()
	defer c.mu.Unlock()

	next, ok := c.entries[key]
	if !ok {
		return 0, false, nil
	}
	remaining := next.Sub(c.clock.Now())
	if remaining <= 0 {
		delete(c.entries, key)
		return 0, false, nil
	}
	return remaining, true, nil
}

func (c *MemoryCooldowns) Reserve(_ context.Context, communityID, giverID, receiverID string, window time.Duration) error {
	key := compositeKey(communityID, giverID, receiverID)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = c.clock.Now().Add(window)
	return nil
}

func (c *MemoryCooldowns) Release(_ context.Context, communityID, giverID, receiverID string) error {
	key := compositeKey(communityID, giverID, receiverID)

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

// EvictExpired drops entries whose window has elapsed and returns the count.
func (c *MemoryCooldowns) EvictExpired() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, next := range c.entries {
		if !next.After(now) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}
