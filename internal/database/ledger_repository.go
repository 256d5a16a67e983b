package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/YTstyo/Dis-karm/internal/domain"
)

// maxWriteAttempts bounds the internal retry on transient write conflicts
// (serialization failures, deadlocks). Exhausted retries surface to the
// caller as an internal error with the transaction guaranteed not applied.
const maxWriteAttempts = 3

// LedgerRepo implements domain.LedgerStore backed by PostgreSQL. The total
// update and its history row commit in one transaction, so no failure path
// can leave them inconsistent.
type LedgerRepo struct {
	pool    *pgxpool.Pool
	levelOf domain.LevelFunc
}

func NewLedgerRepo(pool *pgxpool.Pool, levelOf domain.LevelFunc) *LedgerRepo {
	return &LedgerRepo{pool: pool, levelOf: levelOf}
}

func (r *LedgerRepo) ApplyDelta(ctx context.Context, in domain.ApplyInput) (*domain.ApplyResult, error) {
	return r.mutate(ctx, func(tx pgx.Tx) (*domain.ApplyResult, error) {
		oldTotal, err := lockMemberTotal(ctx, tx, in.CommunityID, in.ReceiverID)
		if err != nil {
			return nil, err
		}

		newTotal := oldTotal + in.Delta
		if in.Clamp && newTotal < in.Floor {
			newTotal = in.Floor
		}

		if err := upsertMemberTotal(ctx, tx, in.CommunityID, in.ReceiverID, newTotal, r.levelOf(newTotal), in.Now); err != nil {
			return nil, err
		}

		// Record the effective delta so the audit trail sums to the total
		// even when the floor clamp truncated a removal.
		txID, err := insertTransaction(ctx, tx, in.CommunityID, &in.GiverID, in.ReceiverID, in.Kind, newTotal-oldTotal, in.Reason, in.Now)
		if err != nil {
			return nil, err
		}

		return &domain.ApplyResult{TransactionID: txID, OldTotal: oldTotal, NewTotal: newTotal}, nil
	})
}

func (r *LedgerRepo) SetTotal(ctx context.Context, communityID, receiverID string, value int64, reason string, now time.Time) (*domain.ApplyResult, error) {
	return r.mutate(ctx, func(tx pgx.Tx) (*domain.ApplyResult, error) {
		oldTotal, err := lockMemberTotal(ctx, tx, communityID, receiverID)
		if err != nil {
			return nil, err
		}

		if err := upsertMemberTotal(ctx, tx, communityID, receiverID, value, r.levelOf(value), now); err != nil {
			return nil, err
		}

		txID, err := insertTransaction(ctx, tx, communityID, nil, receiverID, domain.KindSet, value-oldTotal, reason, now)
		if err != nil {
			return nil, err
		}

		return &domain.ApplyResult{TransactionID: txID, OldTotal: oldTotal, NewTotal: value}, nil
	})
}

func (r *LedgerRepo) GetTotal(ctx context.Context, communityID, memberID string) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT total FROM member_karma
		WHERE community_id = $1 AND member_id = $2`,
		communityID, memberID,
	).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get total: %w", err)
	}
	return total, nil
}

func (r *LedgerRepo) RecentHistory(ctx context.Context, communityID, memberID string, limit int) ([]domain.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, community_id, giver_id, receiver_id, kind, delta, reason, created_at
		FROM karma_transactions
		WHERE community_id = $1 AND receiver_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`,
		communityID, memberID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.ID, &tx.CommunityID, &tx.GiverID, &tx.ReceiverID, &tx.Kind, &tx.Delta, &tx.Reason, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		history = append(history, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history rows: %w", err)
	}
	return history, nil
}

func (r *LedgerRepo) Leaderboard(ctx context.Context, communityID string, limit, offset int) ([]domain.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT member_id, total, level,
		       RANK() OVER (ORDER BY total DESC) AS rank
		FROM member_karma
		WHERE community_id = $1
		ORDER BY total DESC, created_at ASC, member_id ASC
		LIMIT $2 OFFSET $3`,
		communityID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.MemberID, &e.Total, &e.Level, &e.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read leaderboard rows: %w", err)
	}
	return entries, nil
}

// PurgeHistoryOlderThan deletes audit rows past the retention horizon. It
// never touches member_karma: totals are authoritative and independent of
// history retention.
func (r *LedgerRepo) PurgeHistoryOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM karma_transactions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge history: %w", err)
	}
	return tag.RowsAffected(), nil
}

// mutate runs fn in a transaction, retrying a bounded number of times on
// transient conflicts.
func (r *LedgerRepo) mutate(ctx context.Context, fn func(tx pgx.Tx) (*domain.ApplyResult, error)) (*domain.ApplyResult, error) {
	var lastErr error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		result, err := r.mutateOnce(ctx, fn)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isTransient(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("write conflict persisted after %d attempts: %w", maxWriteAttempts, lastErr)
}

func (r *LedgerRepo) mutateOnce(ctx context.Context, fn func(tx pgx.Tx) (*domain.ApplyResult, error)) (*domain.ApplyResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	result, err := fn(tx)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}

// isTransient reports whether the error is a serialization failure or
// deadlock worth retrying.
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func lockMemberTotal(ctx context.Context, tx pgx.Tx, communityID, memberID string) (int64, error) {
	var total int64
	err := tx.QueryRow(ctx, `
		SELECT total FROM member_karma
		WHERE community_id = $1 AND member_id = $2
		FOR UPDATE`,
		communityID, memberID,
	).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock member row: %w", err)
	}
	return total, nil
}

func upsertMemberTotal(ctx context.Context, tx pgx.Tx, communityID, memberID string, total int64, level int, now time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO member_karma (community_id, member_id, total, level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (community_id, member_id) DO UPDATE SET
			total = EXCLUDED.total,
			level = EXCLUDED.level,
			updated_at = EXCLUDED.updated_at`,
		communityID, memberID, total, level, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert member total: %w", err)
	}
	return nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, communityID string, giverID *string, receiverID string, kind domain.TransactionKind, delta int64, reason string, now time.Time) (uuid.UUID, error) {
	id := uuid.New()
	_, err := tx.Exec(ctx, `
		INSERT INTO karma_transactions (id, community_id, giver_id, receiver_id, kind, delta, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, communityID, giverID, receiverID, kind, delta, reason, now,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return id, nil
}
