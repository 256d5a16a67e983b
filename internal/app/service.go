// Package app wires the karma engine, query paths, and periodic jobs into
// the service facade consumed by the HTTP layer.
package app

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/YTstyo/Dis-karm/internal/domain"
	"github.com/YTstyo/Dis-karm/internal/karma"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 25
	DefaultHistoryLimit     = 5
	MaxHistoryLimit         = 25
)

// MemberStatus is the read model behind the karma check command.
type MemberStatus struct {
	CommunityID string               `json:"community_id"`
	MemberID    string               `json:"member_id"`
	Total       int64                `json:"total"`
	Level       int                  `json:"level"`
	Emoji       string               `json:"emoji"`
	History     []domain.Transaction `json:"history"`
}

// Service is the application facade. Mutations go through the engine; reads
// go straight to the ledger store.
type Service struct {
	engine *karma.Engine
	ledger domain.LedgerStore

	// Coalesces identical concurrent leaderboard queries; chat communities
	// tend to ask for the same page in bursts.
	leaderboards singleflight.Group
}

func NewService(engine *karma.Engine, ledger domain.LedgerStore) *Service {
	return &Service{engine: engine, ledger: ledger}
}

func (s *Service) Give(ctx context.Context, communityID, giverID, receiverID string, amount int64, reason string) (*domain.Outcome, error) {
	return s.engine.Give(ctx, communityID, giverID, receiverID, amount, reason)
}

func (s *Service) Remove(ctx context.Context, communityID, giverID, receiverID string, amount int64, reason string) (*domain.Outcome, error) {
	return s.engine.Remove(ctx, communityID, giverID, receiverID, amount, reason)
}

func (s *Service) AdminSet(ctx context.Context, actorID, communityID, receiverID string, value int64, reason string) (*domain.Outcome, error) {
	return s.engine.AdminSet(ctx, actorID, communityID, receiverID, value, reason)
}

func (s *Service) ConfigureBoard(ctx context.Context, actorID, communityID, channelID string, minKarma int64) error {
	return s.engine.ConfigureBoard(ctx, actorID, communityID, channelID, minKarma)
}

// CheckKarma returns a member's total, level, emoji, and recent history.
// Members without any transactions read as total 0, level 0.
func (s *Service) CheckKarma(ctx context.Context, communityID, memberID string) (*MemberStatus, error) {
	if communityID == "" || memberID == "" {
		return nil, domain.Validationf("community and member are required")
	}

	total, err := s.ledger.GetTotal(ctx, communityID, memberID)
	if err != nil {
		return nil, fmt.Errorf("get total: %w", err)
	}
	history, err := s.ledger.RecentHistory(ctx, communityID, memberID, DefaultHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("recent history: %w", err)
	}

	levels := s.engine.Levels()
	level := levels.Level(total)
	return &MemberStatus{
		CommunityID: communityID,
		MemberID:    memberID,
		Total:       total,
		Level:       level,
		Emoji:       levels.Emoji(level),
		History:     history,
	}, nil
}

// History returns a member's transactions newest first.
func (s *Service) History(ctx context.Context, communityID, memberID string, limit int) ([]domain.Transaction, error) {
	if communityID == "" || memberID == "" {
		return nil, domain.Validationf("community and member are required")
	}
	limit = clampLimit(limit, DefaultHistoryLimit, MaxHistoryLimit)
	return s.ledger.RecentHistory(ctx, communityID, memberID, limit)
}

// Leaderboard returns the ranked community view. Concurrent identical
// queries share one store read.
func (s *Service) Leaderboard(ctx context.Context, communityID string, limit, offset int) ([]domain.LeaderboardEntry, error) {
	if communityID == "" {
		return nil, domain.Validationf("community is required")
	}
	limit = clampLimit(limit, DefaultLeaderboardLimit, MaxLeaderboardLimit)
	if offset < 0 {
		offset = 0
	}

	key := communityID + ":" + strconv.Itoa(limit) + ":" + strconv.Itoa(offset)
	result, err, _ := s.leaderboards.Do(key, func() (any, error) {
		return s.ledger.Leaderboard(ctx, communityID, limit, offset)
	})
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return result.([]domain.LeaderboardEntry), nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
