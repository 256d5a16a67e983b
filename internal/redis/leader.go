package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LeaderElector implements Redis-based leader election using SETNX with TTL.
// Used to ensure only one instance runs the retention sweep at a time.
type LeaderElector struct {
	rdb        *redis.Client
	instanceID string
	lockKey    string
	lockTTL    time.Duration
}

// NewLeaderElector creates a leader election coordinator.
// instanceID should be unique per instance (e.g., hostname-PID).
func NewLeaderElector(rdb *redis.Client, instanceID string) *LeaderElector {
	return &LeaderElector{
		rdb:        rdb,
		instanceID: instanceID,
		lockKey:    "cleanup:leader",
		lockTTL:    30 * time.Second,
	}
}

// TryAcquire attempts to become the leader.
// Returns true if this instance acquired leadership.
func (l *LeaderElector) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.lockKey, l.instanceID, l.lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire leader lock: %w", err)
	}
	return ok, nil
}

// Renew extends the leader lease. Returns an error if leadership was lost.
func (l *LeaderElector) Renew(ctx context.Context) error {
	currentLeader, err := l.rdb.Get(ctx, l.lockKey).Result()
	if err == redis.Nil {
		return fmt.Errorf("leader lock lost")
	}
	if err != nil {
		return fmt.Errorf("failed to check leader: %w", err)
	}

	if currentLeader != l.instanceID {
		return fmt.Errorf("leader lock stolen by %s", currentLeader)
	}

	ok, err := l.rdb.Expire(ctx, l.lockKey, l.lockTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to renew leader lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("leader lock lost during renewal")
	}

	return nil
}

// Release voluntarily gives up leadership on graceful shutdown. Deletes the
// lock only if this instance still holds it.
func (l *LeaderElector) Release(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	if err := l.rdb.Eval(ctx, script, []string{l.lockKey}, l.instanceID).Err(); err != nil {
		return fmt.Errorf("failed to release leader lock: %w", err)
	}
	return nil
}
