package karma

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/YTstyo/Dis-karm/internal/domain"
)

type memberKey struct {
	CommunityID string
	MemberID    string
}

type boardKey struct {
	CommunityID string
	ChannelID   string
}

type firedKey struct {
	CommunityID string
	ChannelID   string
	MemberID    string
}

type memberRecord struct {
	Total     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MemoryStore is an in-memory LedgerStore and BoardStore with the same
// semantics as the Postgres repositories: total and history commit together
// under one lock, and reads observe a consistent snapshot. Used by unit
// tests and by development mode without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	levelOf domain.LevelFunc
	members map[memberKey]*memberRecord
	history []domain.Transaction
	boards  map[boardKey]domain.KudoBoard
	fired   map[firedKey]int64
}

func NewMemoryStore(levelOf domain.LevelFunc) *MemoryStore {
	return &MemoryStore{
		levelOf: levelOf,
		members: make(map[memberKey]*memberRecord),
		boards:  make(map[boardKey]domain.KudoBoard),
		fired:   make(map[firedKey]int64),
	}
}

// --- LedgerStore ---

func (s *MemoryStore) ApplyDelta(_ context.Context, in domain.ApplyInput) (*domain.ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.getOrCreate(in.CommunityID, in.ReceiverID, in.Now)
	oldTotal := rec.Total
	newTotal := oldTotal + in.Delta
	if in.Clamp && newTotal < in.Floor {
		newTotal = in.Floor
	}
	rec.Total = newTotal
	rec.UpdatedAt = in.Now

	giver := in.GiverID
	tx := domain.Transaction{
		ID:          uuid.New(),
		CommunityID: in.CommunityID,
		GiverID:     &giver,
		ReceiverID:  in.ReceiverID,
		Kind:        in.Kind,
		Delta:       newTotal - oldTotal,
		Reason:      in.Reason,
		CreatedAt:   in.Now,
	}
	s.history = append(s.history, tx)

	return &domain.ApplyResult{TransactionID: tx.ID, OldTotal: oldTotal, NewTotal: newTotal}, nil
}

func (s *MemoryStore) SetTotal(_ context.Context, communityID, receiverID string, value int64, reason string, now time.Time) (*domain.ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.getOrCreate(communityID, receiverID, now)
	oldTotal := rec.Total
	rec.Total = value
	rec.UpdatedAt = now

	tx := domain.Transaction{
		ID:          uuid.New(),
		CommunityID: communityID,
		GiverID:     nil,
		ReceiverID:  receiverID,
		Kind:        domain.KindSet,
		Delta:       value - oldTotal,
		Reason:      reason,
		CreatedAt:   now,
	}
	s.history = append(s.history, tx)

	return &domain.ApplyResult{TransactionID: tx.ID, OldTotal: oldTotal, NewTotal: value}, nil
}

func (s *MemoryStore) GetTotal(_ context.Context, communityID, memberID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.members[memberKey{communityID, memberID}]
	if !ok {
		return 0, nil
	}
	return rec.Total, nil
}

func (s *MemoryStore) RecentHistory(_ context.Context, communityID, memberID string, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Transaction
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		tx := s.history[i]
		if tx.CommunityID == communityID && tx.ReceiverID == memberID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *MemoryStore) Leaderboard(_ context.Context, communityID string, limit, offset int) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type row struct {
		memberID  string
		total     int64
		createdAt time.Time
	}
	var rows []row
	for key, rec := range s.members {
		if key.CommunityID == communityID {
			rows = append(rows, row{key.MemberID, rec.Total, rec.CreatedAt})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].total != rows[j].total {
			return rows[i].total > rows[j].total
		}
		if !rows[i].createdAt.Equal(rows[j].createdAt) {
			return rows[i].createdAt.Before(rows[j].createdAt)
		}
		return rows[i].memberID < rows[j].memberID
	})

	entries := make([]domain.LeaderboardEntry, 0, limit)
	rank := 0
	for i, r := range rows {
		if i == 0 || r.total != rows[i-1].total {
			rank = i + 1
		}
		if i < offset {
			continue
		}
		if len(entries) == limit {
			break
		}
		entries = append(entries, domain.LeaderboardEntry{
			MemberID: r.memberID,
			Total:    r.total,
			Rank:     rank,
			Level:    s.levelOf(r.total),
		})
	}
	return entries, nil
}

func (s *MemoryStore) PurgeHistoryOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.history[:0]
	var deleted int64
	for _, tx := range s.history {
		if tx.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, tx)
	}
	s.history = kept
	return deleted, nil
}

func (s *MemoryStore) getOrCreate(communityID, memberID string, now time.Time) *memberRecord {
	key := memberKey{communityID, memberID}
	rec, ok := s.members[key]
	if !ok {
		rec = &memberRecord{CreatedAt: now, UpdatedAt: now}
		s.members[key] = rec
	}
	return rec
}

// --- BoardStore ---

func (s *MemoryStore) UpsertBoard(_ context.Context, board domain.KudoBoard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := boardKey{board.CommunityID, board.ChannelID}
	if existing, ok := s.boards[key]; ok {
		board.CreatedAt = existing.CreatedAt
	}
	s.boards[key] = board
	return nil
}

func (s *MemoryStore) ListBoards(_ context.Context, communityID string) ([]domain.KudoBoard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.KudoBoard
	for key, board := range s.boards {
		if key.CommunityID == communityID {
			out = append(out, board)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out, nil
}

func (s *MemoryStore) HasFired(_ context.Context, communityID, channelID, memberID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.fired[firedKey{communityID, channelID, memberID}]
	return ok, nil
}

func (s *MemoryStore) MarkFired(_ context.Context, communityID, channelID, memberID string, total int64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fired[firedKey{communityID, channelID, memberID}] = total
	return nil
}
