package karma

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/YTstyo/Dis-karm/internal/domain"
	"github.com/YTstyo/Dis-karm/internal/metrics"
)

const maxReasonLength = 500

// EngineConfig carries the business policy resolved at startup.
type EngineConfig struct {
	Cooldown          time.Duration
	PerTransactionCap int64
	KarmaFloor        int64
	AllowNegative     bool
	Owners            map[string]struct{}
}

// Engine orchestrates give/remove/set requests: validates, consults the
// cooldown store, writes the ledger, derives levels, and emits kudo and
// level-up events. Mutations on the same (community, member) pair are
// serialized by a keyed lock; unrelated members proceed concurrently.
type Engine struct {
	ledger    domain.LedgerStore
	cooldowns domain.CooldownStore
	boards    *Boards
	levels    *Levels
	publisher domain.EventPublisher
	directory domain.MemberDirectory
	clock     clockwork.Clock
	cfg       EngineConfig
	metrics   *metrics.TransactionMetrics

	memberLocks keyedMutex
	pairLocks   keyedMutex
}

func NewEngine(
	ledger domain.LedgerStore,
	cooldowns domain.CooldownStore,
	boards *Boards,
	levels *Levels,
	publisher domain.EventPublisher,
	directory domain.MemberDirectory,
	clock clockwork.Clock,
	cfg EngineConfig,
	m *metrics.TransactionMetrics,
) *Engine {
	return &Engine{
		ledger:    ledger,
		cooldowns: cooldowns,
		boards:    boards,
		levels:    levels,
		publisher: publisher,
		directory: directory,
		clock:     clock,
		cfg:       cfg,
		metrics:   m,
	}
}

// Give awards amount karma from giver to receiver.
func (e *Engine) Give(ctx context.Context, communityID, giverID, receiverID string, amount int64, reason string) (*domain.Outcome, error) {
	return e.transfer(ctx, domain.KindGive, communityID, giverID, receiverID, amount, reason)
}

// Remove revokes amount karma from receiver, clamped at the configured floor
// unless negative totals are allowed.
func (e *Engine) Remove(ctx context.Context, communityID, giverID, receiverID string, amount int64, reason string) (*domain.Outcome, error) {
	return e.transfer(ctx, domain.KindRemove, communityID, giverID, receiverID, amount, reason)
}

func (e *Engine) transfer(ctx context.Context, kind domain.TransactionKind, communityID, giverID, receiverID string, amount int64, reason string) (outcome *domain.Outcome, err error) {
	defer e.observe(kind, &err)()

	if err := e.validateTransfer(communityID, giverID, receiverID, amount, reason); err != nil {
		return nil, err
	}
	if err := e.checkDirectory(ctx, communityID, receiverID); err != nil {
		return nil, err
	}

	// Cooldown check and reservation are linearized per
	// (community, giver, receiver) so two concurrent gives cannot both pass.
	pairKey := compositeKey(communityID, giverID, receiverID)
	unlockPair := e.pairLocks.Lock(pairKey)
	remaining, cooling, err := e.cooldowns.Check(ctx, communityID, giverID, receiverID)
	if err != nil {
		unlockPair()
		return nil, fmt.Errorf("cooldown check: %w", err)
	}
	if cooling {
		unlockPair()
		e.countCooldownRejection()
		return nil, &domain.CooldownError{RetryAfter: remaining}
	}
	if err := e.cooldowns.Reserve(ctx, communityID, giverID, receiverID, e.cfg.Cooldown); err != nil {
		unlockPair()
		return nil, fmt.Errorf("cooldown reserve: %w", err)
	}
	unlockPair()

	delta := amount
	if kind == domain.KindRemove {
		delta = -amount
	}

	now := e.clock.Now()
	unlockMember := e.memberLocks.Lock(compositeKey(communityID, receiverID))
	result, err := e.ledger.ApplyDelta(ctx, domain.ApplyInput{
		CommunityID: communityID,
		GiverID:     giverID,
		ReceiverID:  receiverID,
		Kind:        kind,
		Delta:       delta,
		Reason:      reason,
		Floor:       e.cfg.KarmaFloor,
		Clamp:       !e.cfg.AllowNegative,
		Now:         now,
	})
	unlockMember()
	if err != nil {
		// Roll back the reservation so an internal failure never locks the
		// giver out of a retry.
		if relErr := e.cooldowns.Release(ctx, communityID, giverID, receiverID); relErr != nil {
			slog.Warn("failed to release cooldown reservation",
				"community_id", communityID, "giver_id", giverID, "receiver_id", receiverID, "error", relErr)
		}
		return nil, fmt.Errorf("apply %s: %w", kind, err)
	}

	return e.buildOutcome(ctx, communityID, receiverID, result, now), nil
}

// AdminSet overrides a member's total. Bypasses cooldown entirely; the actor
// must be in the configured owner set even though the command router also
// gates admin commands.
func (e *Engine) AdminSet(ctx context.Context, actorID, communityID, receiverID string, value int64, reason string) (outcome *domain.Outcome, err error) {
	defer e.observe(domain.KindSet, &err)()

	if communityID == "" || receiverID == "" {
		return nil, domain.Validationf("community and receiver are required")
	}
	if len(reason) > maxReasonLength {
		return nil, domain.Validationf("reason exceeds %d characters", maxReasonLength)
	}
	if !e.isOwner(actorID) {
		return nil, &domain.AuthorizationError{Msg: "only owners can set karma directly"}
	}
	if err := e.checkDirectory(ctx, communityID, receiverID); err != nil {
		return nil, err
	}

	if !e.cfg.AllowNegative && value < e.cfg.KarmaFloor {
		value = e.cfg.KarmaFloor
	}
	if reason == "" {
		reason = "Admin adjustment"
	}

	now := e.clock.Now()
	unlockMember := e.memberLocks.Lock(compositeKey(communityID, receiverID))
	result, err := e.ledger.SetTotal(ctx, communityID, receiverID, value, reason, now)
	unlockMember()
	if err != nil {
		return nil, fmt.Errorf("set total: %w", err)
	}

	return e.buildOutcome(ctx, communityID, receiverID, result, now), nil
}

// ConfigureBoard registers or updates a kudo board channel. Admin-only.
func (e *Engine) ConfigureBoard(ctx context.Context, actorID, communityID, channelID string, minKarma int64) error {
	if communityID == "" || channelID == "" {
		return domain.Validationf("community and channel are required")
	}
	if !e.isOwner(actorID) {
		return &domain.AuthorizationError{Msg: "only owners can configure kudo boards"}
	}
	return e.boards.Configure(ctx, communityID, channelID, minKarma, e.clock.Now())
}

// Levels exposes the pure level calculator for read paths.
func (e *Engine) Levels() *Levels { return e.levels }

func (e *Engine) buildOutcome(ctx context.Context, communityID, receiverID string, result *domain.ApplyResult, now time.Time) *domain.Outcome {
	level := e.levels.Level(result.NewTotal)
	outcome := &domain.Outcome{
		TransactionID: result.TransactionID,
		NewTotal:      result.NewTotal,
		Level:         level,
		Emoji:         e.levels.Emoji(level),
		LeveledUp:     e.levels.DidLevelUp(result.OldTotal, result.NewTotal),
	}

	if outcome.LeveledUp {
		event := domain.LevelUpEvent{
			CommunityID: communityID,
			MemberID:    receiverID,
			NewLevel:    level,
			Emoji:       outcome.Emoji,
		}
		outcome.LevelUp = &event
		if err := e.publisher.PublishLevelUp(ctx, event); err != nil {
			slog.Warn("failed to publish level-up event",
				"community_id", communityID, "member_id", receiverID, "error", err)
		}
	}

	kudos, err := e.boards.Evaluate(ctx, communityID, receiverID, result.OldTotal, result.NewTotal, now)
	if err != nil {
		// The transaction is already committed; a board read failure only
		// costs the recognition post.
		slog.Warn("kudo board evaluation failed",
			"community_id", communityID, "member_id", receiverID, "error", err)
		return outcome
	}
	for _, kudo := range kudos {
		if err := e.publisher.PublishKudo(ctx, kudo); err != nil {
			slog.Warn("failed to publish kudo event",
				"community_id", communityID, "channel_id", kudo.ChannelID, "member_id", receiverID, "error", err)
		}
	}
	outcome.Kudos = kudos
	return outcome
}

func (e *Engine) validateTransfer(communityID, giverID, receiverID string, amount int64, reason string) error {
	if communityID == "" {
		return domain.Validationf("community is required")
	}
	if giverID == "" || receiverID == "" {
		return domain.Validationf("giver and receiver are required")
	}
	if giverID == receiverID {
		return domain.Validationf("you cannot give or remove your own karma")
	}
	if amount <= 0 {
		return domain.Validationf("amount must be positive, got %d", amount)
	}
	if amount > e.cfg.PerTransactionCap {
		return domain.Validationf("amount exceeds the per-transaction cap of %d", e.cfg.PerTransactionCap)
	}
	if len(reason) > maxReasonLength {
		return domain.Validationf("reason exceeds %d characters", maxReasonLength)
	}
	return nil
}

func (e *Engine) checkDirectory(ctx context.Context, communityID, receiverID string) error {
	if e.directory == nil {
		return nil
	}
	ok, err := e.directory.IsMember(ctx, communityID, receiverID)
	if err != nil {
		return fmt.Errorf("member lookup: %w", err)
	}
	if !ok {
		return domain.Validationf("receiver is not a member of this community")
	}
	return nil
}

func (e *Engine) isOwner(actorID string) bool {
	_, ok := e.cfg.Owners[actorID]
	return ok
}

// observe times the operation and counts its result. Returns the stop
// function so it composes with defer at the top of each operation.
func (e *Engine) observe(kind domain.TransactionKind, errp *error) func() {
	if e.metrics == nil {
		return func() {}
	}
	start := e.clock.Now()
	return func() {
		e.metrics.ProcessingDuration.Observe(e.clock.Since(start).Seconds())
		e.metrics.TransactionsTotal.WithLabelValues(string(kind), resultLabel(*errp)).Inc()
	}
}

func (e *Engine) countCooldownRejection() {
	if e.metrics != nil {
		e.metrics.CooldownRejections.Inc()
	}
}

func resultLabel(err error) string {
	switch err.(type) {
	case nil:
		return "applied"
	case *domain.ValidationError:
		return "rejected_validation"
	case *domain.CooldownError:
		return "rejected_cooldown"
	case *domain.AuthorizationError:
		return "rejected_authorization"
	default:
		return "internal_error"
	}
}

func compositeKey(parts ...string) string {
	key := parts[0]
	for _, p := range parts[1:] {
		key += "\x00" + p
	}
	return key
}
