package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// --- Model types ---

// TransactionKind distinguishes how a ledger entry came to be. A "set" entry
// marks an admin override: its delta is the signed difference from the prior
// total, so the audit trail stays interpretable.
type TransactionKind string

const (
	KindGive   TransactionKind = "give"
	KindRemove TransactionKind = "remove"
	KindSet    TransactionKind = "set"
)

// MemberKarma is the authoritative running total for one (community, member)
// pair. Total is the source of truth; history is an audit trail whose
// retention never affects it.
type MemberKarma struct {
	CommunityID string    `db:"community_id"`
	MemberID    string    `db:"member_id"`
	Total       int64     `db:"total"`
	Level       int       `db:"level"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Transaction is an immutable audit record. GiverID is nil for admin sets.
type Transaction struct {
	ID          uuid.UUID       `db:"id"`
	CommunityID string          `db:"community_id"`
	GiverID     *string         `db:"giver_id"`
	ReceiverID  string          `db:"receiver_id"`
	Kind        TransactionKind `db:"kind"`
	Delta       int64           `db:"delta"`
	Reason      string          `db:"reason"`
	CreatedAt   time.Time       `db:"created_at"`
}

// KudoBoard designates a recognition channel with a karma threshold.
type KudoBoard struct {
	CommunityID string    `db:"community_id"`
	ChannelID   string    `db:"channel_id"`
	MinKarma    int64     `db:"min_karma"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// LeaderboardEntry is one row of a ranked community view. Rank uses
// competition ranking: equal totals share a rank and the following
// rank is skipped ([50,50,30] ranks as [1,1,3]).
type LeaderboardEntry struct {
	MemberID string `json:"member_id"`
	Total    int64  `json:"total"`
	Rank     int    `json:"rank"`
	Level    int    `json:"level"`
}

// --- Operation inputs and results ---

// ApplyInput carries one give/remove mutation into the ledger store. Floor
// and Clamp encode the negative-total policy so the store can apply it
// inside its transaction.
type ApplyInput struct {
	CommunityID string
	GiverID     string
	ReceiverID  string
	Kind        TransactionKind
	Delta       int64
	Reason      string
	Floor       int64
	Clamp       bool
	Now         time.Time
}

// ApplyResult reports a successful ledger mutation. OldTotal is the total
// immediately before the write; kudo crossing is evaluated against the pair.
type ApplyResult struct {
	TransactionID uuid.UUID
	OldTotal      int64
	NewTotal      int64
}

// Outcome is the success result of an engine operation, consumed by the
// command-routing collaborator.
type Outcome struct {
	TransactionID uuid.UUID    `json:"transaction_id"`
	NewTotal      int64        `json:"new_total"`
	Level         int          `json:"level"`
	Emoji         string       `json:"emoji"`
	LeveledUp     bool         `json:"leveled_up"`
	Kudos         []KudoEvent  `json:"kudos,omitempty"`
	LevelUp       *LevelUpEvent `json:"level_up,omitempty"`
}

// --- Outbound events ---

type LevelUpEvent struct {
	CommunityID string `json:"community_id"`
	MemberID    string `json:"member_id"`
	NewLevel    int    `json:"new_level"`
	Emoji       string `json:"emoji"`
}

type KudoEvent struct {
	CommunityID string `json:"community_id"`
	ChannelID   string `json:"channel_id"`
	MemberID    string `json:"member_id"`
	Total       int64  `json:"total"`
}

// --- Interfaces ---

// LevelFunc derives a level from a karma total. Must be pure and total.
type LevelFunc func(total int64) int

// LedgerStore is the durable record of totals and their audit history.
// ApplyDelta and SetTotal are atomic: the total update and its history row
// commit together or not at all.
type LedgerStore interface {
	ApplyDelta(ctx context.Context, in ApplyInput) (*ApplyResult, error)
	SetTotal(ctx context.Context, communityID, receiverID string, value int64, reason string, now time.Time) (*ApplyResult, error)
	GetTotal(ctx context.Context, communityID, memberID string) (int64, error)
	RecentHistory(ctx context.Context, communityID, memberID string, limit int) ([]Transaction, error)
	Leaderboard(ctx context.Context, communityID string, limit, offset int) ([]LeaderboardEntry, error)
	PurgeHistoryOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CooldownStore tracks the earliest next allowed transfer per
// (community, giver, receiver). Entries are ephemeral; losing them only
// relaxes throttling, never blocks ledger writes.
type CooldownStore interface {
	// Check returns the remaining wait and true while the pair cools down.
	Check(ctx context.Context, communityID, giverID, receiverID string) (time.Duration, bool, error)
	// Reserve starts a cooldown window for the pair.
	Reserve(ctx context.Context, communityID, giverID, receiverID string, window time.Duration) error
	// Release rolls back a reservation after a failed ledger write.
	Release(ctx context.Context, communityID, giverID, receiverID string) error
}

// BoardStore persists kudo board configuration and which thresholds have
// already fired per (channel, member).
type BoardStore interface {
	UpsertBoard(ctx context.Context, board KudoBoard) error
	ListBoards(ctx context.Context, communityID string) ([]KudoBoard, error)
	// HasFired reports whether the (channel, member) pair has ever triggered
	// a kudo post.
	HasFired(ctx context.Context, communityID, channelID, memberID string) (bool, error)
	MarkFired(ctx context.Context, communityID, channelID, memberID string, total int64, now time.Time) error
}

// EventPublisher delivers outbound events to the notification collaborator.
type EventPublisher interface {
	PublishLevelUp(ctx context.Context, event LevelUpEvent) error
	PublishKudo(ctx context.Context, event KudoEvent) error
}

// MemberDirectory answers whether an ID names a known community member.
// Implemented by the chat-platform collaborator; a nil directory means the
// caller is trusted to have resolved members already.
type MemberDirectory interface {
	IsMember(ctx context.Context, communityID, memberID string) (bool, error)
}
