package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/YTstyo/Dis-karm/internal/domain"
)

// BoardRepo implements domain.BoardStore backed by PostgreSQL.
type BoardRepo struct {
	pool *pgxpool.Pool
}

func NewBoardRepo(pool *pgxpool.Pool) *BoardRepo {
	return &BoardRepo{pool: pool}
}

func (r *BoardRepo) UpsertBoard(ctx context.Context, board domain.KudoBoard) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO kudo_boards (community_id, channel_id, min_karma, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (community_id, channel_id) DO UPDATE SET
			min_karma = EXCLUDED.min_karma,
			updated_at = EXCLUDED.updated_at`,
		board.CommunityID, board.ChannelID, board.MinKarma, board.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert kudo board: %w", err)
	}
	return nil
}

func (r *BoardRepo) ListBoards(ctx context.Context, communityID string) ([]domain.KudoBoard, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT community_id, channel_id, min_karma, created_at, updated_at
		FROM kudo_boards
		WHERE community_id = $1
		ORDER BY channel_id`,
		communityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query kudo boards: %w", err)
	}
	defer rows.Close()

	var boards []domain.KudoBoard
	for rows.Next() {
		var b domain.KudoBoard
		if err := rows.Scan(&b.CommunityID, &b.ChannelID, &b.MinKarma, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan kudo board: %w", err)
		}
		boards = append(boards, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read kudo board rows: %w", err)
	}
	return boards, nil
}

func (r *BoardRepo) HasFired(ctx context.Context, communityID, channelID, memberID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT TRUE FROM kudo_board_posts
		WHERE community_id = $1 AND channel_id = $2 AND member_id = $3`,
		communityID, channelID, memberID,
	).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check kudo marker: %w", err)
	}
	return exists, nil
}

func (r *BoardRepo) MarkFired(ctx context.Context, communityID, channelID, memberID string, total int64, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO kudo_board_posts (community_id, channel_id, member_id, total, posted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (community_id, channel_id, member_id) DO UPDATE SET
			total = EXCLUDED.total,
			posted_at = EXCLUDED.posted_at`,
		communityID, channelID, memberID, total, now,
	)
	if err != nil {
		return fmt.Errorf("failed to record kudo marker: %w", err)
	}
	return nil
}
