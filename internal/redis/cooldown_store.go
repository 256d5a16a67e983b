package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CooldownStore implements domain.CooldownStore on Redis so cooldown windows
// hold across service instances. Entries expire on their own via TTL; no
// explicit eviction is needed.
//
// The store fails open: when Redis is unreachable, transfers proceed without
// throttling rather than blocking ledger writes on the ephemeral store.
type CooldownStore struct {
	rdb *redis.Client
}

func NewCooldownStore(rdb *redis.Client) *CooldownStore {
	return &CooldownStore{rdb: rdb}
}

func cooldownKey(communityID, giverID, receiverID string) string {
	return fmt.Sprintf("cooldown:%s:%s:%s", communityID, giverID, receiverID)
}

func (s *CooldownStore) Check(ctx context.Context, communityID, giverID, receiverID string) (time.Duration, bool, error) {
	remaining, err := s.rdb.PTTL(ctx, cooldownKey(communityID, giverID, receiverID)).Result()
	if err != nil {
		slog.Warn("cooldown check failed, allowing transfer", "error", err)
		return 0, false, nil
	}
	// PTTL returns a negative duration when the key does not exist or has
	// no expiry.
	if remaining <= 0 {
		return 0, false, nil
	}
	return remaining, true, nil
}

func (s *CooldownStore) Reserve(ctx context.Context, communityID, giverID, receiverID string, window time.Duration) error {
	if window <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, cooldownKey(communityID, giverID, receiverID), 1, window).Err(); err != nil {
		slog.Warn("cooldown reserve failed, transfer proceeds unthrottled", "error", err)
	}
	return nil
}

func (s *CooldownStore) Release(ctx context.Context, communityID, giverID, receiverID string) error {
	if err := s.rdb.Del(ctx, cooldownKey(communityID, giverID, receiverID)).Err(); err != nil {
		return fmt.Errorf("failed to release cooldown: %w", err)
	}
	return nil
}
