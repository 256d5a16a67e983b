package karma

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/YTstyo/Dis-karm/internal/domain"
)

// BoardPolicy controls when a board threshold fires again after its first
// crossing.
type BoardPolicy struct {
	// RefireOnRecross allows a fresh post when a member drops below a
	// threshold and later crosses it again.
	RefireOnRecross bool
	// RepeatPosts fires on every qualifying transaction at-or-above the
	// threshold, not just on crossing.
	RepeatPosts bool
}

// Boards decides which configured recognition channels a transaction just
// qualified for. Posting the message itself is the notification
// collaborator's job.
type Boards struct {
	store  domain.BoardStore
	policy BoardPolicy
}

func NewBoards(store domain.BoardStore, policy BoardPolicy) *Boards {
	return &Boards{store: store, policy: policy}
}

// Configure upserts a board keyed by channel. Authorization happens in the
// engine before this is reached.
func (b *Boards) Configure(ctx context.Context, communityID, channelID string, minKarma int64, now time.Time) error {
	if minKarma < 1 {
		return domain.Validationf("minimum karma must be at least 1, got %d", minKarma)
	}
	board := domain.KudoBoard{
		CommunityID: communityID,
		ChannelID:   channelID,
		MinKarma:    minKarma,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := b.store.UpsertBoard(ctx, board); err != nil {
		return fmt.Errorf("upsert kudo board: %w", err)
	}
	return nil
}

// Evaluate returns one kudo event per board whose threshold the transaction
// satisfies. Crossing is judged on the post-transaction total: was below,
// now at-or-above.
func (b *Boards) Evaluate(ctx context.Context, communityID, memberID string, oldTotal, newTotal int64, now time.Time) ([]domain.KudoEvent, error) {
	boards, err := b.store.ListBoards(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("list kudo boards: %w", err)
	}

	var events []domain.KudoEvent
	for _, board := range boards {
		fire, err := b.shouldFire(ctx, board, memberID, oldTotal, newTotal)
		if err != nil {
			return nil, err
		}
		if !fire {
			continue
		}
		if err := b.store.MarkFired(ctx, communityID, board.ChannelID, memberID, newTotal, now); err != nil {
			// The event itself still goes out; a lost marker only risks an
			// extra post under the no-refire policy.
			slog.Warn("failed to record kudo marker",
				"community_id", communityID, "channel_id", board.ChannelID, "member_id", memberID, "error", err)
		}
		events = append(events, domain.KudoEvent{
			CommunityID: communityID,
			ChannelID:   board.ChannelID,
			MemberID:    memberID,
			Total:       newTotal,
		})
	}
	return events, nil
}

func (b *Boards) shouldFire(ctx context.Context, board domain.KudoBoard, memberID string, oldTotal, newTotal int64) (bool, error) {
	if newTotal < board.MinKarma {
		return false, nil
	}
	if b.policy.RepeatPosts {
		return true, nil
	}
	crossed := oldTotal < board.MinKarma
	if !crossed {
		return false, nil
	}
	if b.policy.RefireOnRecross {
		return true, nil
	}
	fired, err := b.store.HasFired(ctx, board.CommunityID, board.ChannelID, memberID)
	if err != nil {
		return false, fmt.Errorf("check kudo marker: %w", err)
	}
	return !fired, nil
}
