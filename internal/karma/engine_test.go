package karma

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YTstyo/Dis-karm/internal/domain"
)

// --- Test doubles ---

type capturePublisher struct {
	mu       sync.Mutex
	levelUps []domain.LevelUpEvent
	kudos    []domain.KudoEvent
}

func (p *capturePublisher) PublishLevelUp(_ context.Context, event domain.LevelUpEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levelUps = append(p.levelUps, event)
	return nil
}

func (p *capturePublisher) PublishKudo(_ context.Context, event domain.KudoEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kudos = append(p.kudos, event)
	return nil
}

func (p *capturePublisher) LevelUps() []domain.LevelUpEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.LevelUpEvent(nil), p.levelUps...)
}

func (p *capturePublisher) Kudos() []domain.KudoEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.KudoEvent(nil), p.kudos...)
}

// failingLedger wraps a MemoryStore and fails ApplyDelta on demand.
type failingLedger struct {
	*MemoryStore
	failApply bool
}

func (f *failingLedger) ApplyDelta(ctx context.Context, in domain.ApplyInput) (*domain.ApplyResult, error) {
	if f.failApply {
		return nil, errors.New("ledger unavailable")
	}
	return f.MemoryStore.ApplyDelta(ctx, in)
}

type staticDirectory struct {
	members map[string]bool
}

func (d *staticDirectory) IsMember(_ context.Context, _, memberID string) (bool, error) {
	return d.members[memberID], nil
}

type harness struct {
	clock     *clockwork.FakeClock
	store     *MemoryStore
	cooldowns *MemoryCooldowns
	publisher *capturePublisher
	engine    *Engine
}

func newHarness(t *testing.T, mutate ...func(*EngineConfig)) *harness {
	t.Helper()

	clock := clockwork.NewFakeClock()
	levels, err := NewLevels(50, mustParseLadder(t, DefaultEmojiLadder))
	require.NoError(t, err)

	store := NewMemoryStore(levels.Level)
	cooldowns := NewMemoryCooldowns(clock)
	publisher := &capturePublisher{}

	cfg := EngineConfig{
		Cooldown:          60 * time.Second,
		PerTransactionCap: 10,
		KarmaFloor:        0,
		AllowNegative:     false,
		Owners:            map[string]struct{}{"owner-1": {}},
	}
	for _, m := range mutate {
		m(&cfg)
	}

	boards := NewBoards(store, BoardPolicy{RefireOnRecross: true})
	engine := NewEngine(store, cooldowns, boards, levels, publisher, nil, clock, cfg, nil)

	return &harness{clock: clock, store: store, cooldowns: cooldowns, publisher: publisher, engine: engine}
}

// --- Transfers ---

func TestEngine_GiveIncrementsTotal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	outcome, err := h.engine.Give(ctx, "community-1", "alice", "bob", 5, "helped with the migration")
	require.NoError(t, err)

	assert.Equal(t, int64(5), outcome.NewTotal)
	assert.Equal(t, 0, outcome.Level)
	assert.Equal(t, "⭐", outcome.Emoji)
	assert.False(t, outcome.LeveledUp)

	total, err := h.store.GetTotal(ctx, "community-1", "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)

	history, err := h.store.RecentHistory(ctx, "community-1", "bob", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.KindGive, history[0].Kind)
	assert.Equal(t, int64(5), history[0].Delta)
	require.NotNil(t, history[0].GiverID)
	assert.Equal(t, "alice", *history[0].GiverID)
}

func TestEngine_RemoveClampsAtFloor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Give(ctx, "community-1", "alice", "bob", 3, "")
	require.NoError(t, err)

	outcome, err := h.engine.Remove(ctx, "community-1", "carol", "bob", 10, "spam")
	require.NoError(t, err)
	assert.Equal(t, int64(0), outcome.NewTotal)

	// The recorded delta is the effective change, so history sums to the total.
	history, err := h.store.RecentHistory(ctx, "community-1", "bob", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(-3), history[0].Delta)

	var sum int64
	for _, tx := range history {
		sum += tx.Delta
	}
	assert.Equal(t, outcome.NewTotal, sum)
}

func TestEngine_RemoveGoesNegativeWhenAllowed(t *testing.T) {
	h := newHarness(t, func(cfg *EngineConfig) { cfg.AllowNegative = true })
	ctx := context.Background()

	outcome, err := h.engine.Remove(ctx, "community-1", "alice", "bob", 7, "")
	require.NoError(t, err)
	assert.Equal(t, int64(-7), outcome.NewTotal)
	assert.Equal(t, 0, outcome.Level, "negative totals stay at level zero")
}

func TestEngine_ValidationRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		giver    string
		receiver string
		amount   int64
		reason   string
	}{
		{"self give", "alice", "alice", 1, ""},
		{"zero amount", "alice", "bob", 0, ""},
		{"negative amount", "alice", "bob", -5, ""},
		{"amount above cap", "alice", "bob", 11, ""},
		{"missing receiver", "alice", "", 1, ""},
		{"missing giver", "", "bob", 1, ""},
		{"oversized reason", "alice", "bob", 1, strings.Repeat("x", maxReasonLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.Give(ctx, "community-1", tt.giver, tt.receiver, tt.amount, tt.reason)
			var vErr *domain.ValidationError
			require.ErrorAs(t, err, &vErr)
		})
	}

	// Rejected transfers never touch totals or cooldowns.
	total, err := h.store.GetTotal(ctx, "community-1", "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	_, err = h.engine.Give(ctx, "community-1", "alice", "bob", 1, "")
	assert.NoError(t, err, "a valid transfer right after rejections must pass")
}

func TestEngine_CooldownEnforced(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Give(ctx, "community-1", "alice", "bob", 1, "")
	require.NoError(t, err)

	_, err = h.engine.Give(ctx, "community-1", "alice", "bob", 1, "")
	var cdErr *domain.CooldownError
	require.ErrorAs(t, err, &cdErr)
	assert.Greater(t, cdErr.RetryAfter, time.Duration(0))

	// A different receiver is a different pair and is not throttled.
	_, err = h.engine.Give(ctx, "community-1", "alice", "carol", 1, "")
	assert.NoError(t, err)

	// Remove shares the same pair window as give.
	_, err = h.engine.Remove(ctx, "community-1", "alice", "bob", 1, "")
	require.ErrorAs(t, err, &cdErr)

	h.clock.Advance(61 * time.Second)
	_, err = h.engine.Give(ctx, "community-1", "alice", "bob", 1, "")
	assert.NoError(t, err, "transfer must succeed once the window elapses")
}

func TestEngine_CooldownReleasedOnLedgerFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	levels, err := NewLevels(50, mustParseLadder(t, DefaultEmojiLadder))
	require.NoError(t, err)

	ledger := &failingLedger{MemoryStore: NewMemoryStore(levels.Level), failApply: true}
	cooldowns := NewMemoryCooldowns(clock)
	boards := NewBoards(ledger.MemoryStore, BoardPolicy{})
	engine := NewEngine(ledger, cooldowns, boards, levels, &capturePublisher{}, nil, clock, EngineConfig{
		Cooldown:          60 * time.Second,
		PerTransactionCap: 10,
	}, nil)

	ctx := context.Background()
	_, err = engine.Give(ctx, "community-1", "alice", "bob", 1, "")
	require.Error(t, err)

	// The reservation must have been rolled back: the retry reaches the
	// ledger instead of being rejected for cooling down.
	ledger.failApply = false
	_, err = engine.Give(ctx, "community-1", "alice", "bob", 1, "")
	assert.NoError(t, err)
}

func TestEngine_ConcurrentGivesConserveTotal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const givers = 50
	var wg sync.WaitGroup
	for i := 0; i < givers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.engine.Give(ctx, "community-1", fmt.Sprintf("giver-%d", i), "bob", 1, "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	total, err := h.store.GetTotal(ctx, "community-1", "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(givers), total)

	history, err := h.store.RecentHistory(ctx, "community-1", "bob", givers)
	require.NoError(t, err)
	assert.Len(t, history, givers)
}

func TestEngine_ConcurrentSamePairOnlyOnePasses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const attempts = 20
	var wg sync.WaitGroup
	var applied, throttled int64
	var mu sync.Mutex

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.Give(ctx, "community-1", "alice", "bob", 1, "")
			mu.Lock()
			defer mu.Unlock()
			var cdErr *domain.CooldownError
			switch {
			case err == nil:
				applied++
			case errors.As(err, &cdErr):
				throttled++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), applied, "exactly one transfer may slip through the window")
	assert.Equal(t, int64(attempts-1), throttled)
}

func TestEngine_MemberDirectoryRejectsUnknownReceiver(t *testing.T) {
	clock := clockwork.NewFakeClock()
	levels, err := NewLevels(50, mustParseLadder(t, DefaultEmojiLadder))
	require.NoError(t, err)

	store := NewMemoryStore(levels.Level)
	directory := &staticDirectory{members: map[string]bool{"bob": true}}
	engine := NewEngine(store, NewMemoryCooldowns(clock), NewBoards(store, BoardPolicy{}), levels,
		&capturePublisher{}, directory, clock, EngineConfig{Cooldown: time.Minute, PerTransactionCap: 10}, nil)

	ctx := context.Background()
	_, err = engine.Give(ctx, "community-1", "alice", "ghost", 1, "")
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)

	_, err = engine.Give(ctx, "community-1", "alice", "bob", 1, "")
	assert.NoError(t, err)
}

// --- Level-ups ---

func TestEngine_LevelUpEventOnBoundary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.AdminSet(ctx, "owner-1", "community-1", "bob", 49, "")
	require.NoError(t, err)

	outcome, err := h.engine.Give(ctx, "community-1", "alice", "bob", 1, "")
	require.NoError(t, err)
	assert.True(t, outcome.LeveledUp)
	assert.Equal(t, 1, outcome.Level)
	require.NotNil(t, outcome.LevelUp)
	assert.Equal(t, 1, outcome.LevelUp.NewLevel)

	levelUps := h.publisher.LevelUps()
	require.Len(t, levelUps, 1)
	assert.Equal(t, "bob", levelUps[0].MemberID)

	// Staying inside the tier does not fire again.
	outcome, err = h.engine.Give(ctx, "community-1", "carol", "bob", 1, "")
	require.NoError(t, err)
	assert.False(t, outcome.LeveledUp)
	assert.Len(t, h.publisher.LevelUps(), 1)
}

// --- Admin set ---

func TestEngine_AdminSetRequiresOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.AdminSet(ctx, "alice", "community-1", "bob", 100, "")
	var authErr *domain.AuthorizationError
	require.ErrorAs(t, err, &authErr)

	total, err := h.store.GetTotal(ctx, "community-1", "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestEngine_AdminSetResetsBaseline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Give(ctx, "community-1", "alice", "bob", 8, "")
	require.NoError(t, err)

	outcome, err := h.engine.AdminSet(ctx, "owner-1", "community-1", "bob", 120, "season reset")
	require.NoError(t, err)
	assert.Equal(t, int64(120), outcome.NewTotal)
	assert.Equal(t, 2, outcome.Level)

	// Subsequent transfers build on the new baseline.
	outcome, err = h.engine.Give(ctx, "community-1", "carol", "bob", 5, "")
	require.NoError(t, err)
	assert.Equal(t, int64(125), outcome.NewTotal)

	// The override is audited as a signed diff without a giver.
	history, err := h.store.RecentHistory(ctx, "community-1", "bob", 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	setTx := history[1]
	assert.Equal(t, domain.KindSet, setTx.Kind)
	assert.Equal(t, int64(112), setTx.Delta)
	assert.Nil(t, setTx.GiverID)
	assert.Equal(t, "season reset", setTx.Reason)
}

func TestEngine_AdminSetBypassesCooldown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.engine.AdminSet(ctx, "owner-1", "community-1", "bob", int64(i*10), "")
		require.NoError(t, err)
	}
}

func TestEngine_AdminSetClampsBelowFloor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	outcome, err := h.engine.AdminSet(ctx, "owner-1", "community-1", "bob", -50, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), outcome.NewTotal)
}

func TestEngine_AdminSetDefaultReason(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.AdminSet(ctx, "owner-1", "community-1", "bob", 10, "")
	require.NoError(t, err)

	history, err := h.store.RecentHistory(ctx, "community-1", "bob", 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Admin adjustment", history[0].Reason)
}

// --- Boards through the engine ---

func TestEngine_ConfigureBoardRequiresOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.engine.ConfigureBoard(ctx, "alice", "community-1", "channel-1", 10)
	var authErr *domain.AuthorizationError
	require.ErrorAs(t, err, &authErr)

	require.NoError(t, h.engine.ConfigureBoard(ctx, "owner-1", "community-1", "channel-1", 10))
}

func TestEngine_KudoFiresOnceOnCrossing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.engine.ConfigureBoard(ctx, "owner-1", "community-1", "shoutouts", 10))

	_, err := h.engine.Give(ctx, "community-1", "alice", "bob", 8, "")
	require.NoError(t, err)
	assert.Empty(t, h.publisher.Kudos())

	outcome, err := h.engine.Give(ctx, "community-1", "carol", "bob", 5, "")
	require.NoError(t, err)
	require.Len(t, outcome.Kudos, 1)
	assert.Equal(t, "shoutouts", outcome.Kudos[0].ChannelID)
	assert.Equal(t, int64(13), outcome.Kudos[0].Total)

	// Further gives above the threshold stay quiet.
	_, err = h.engine.Give(ctx, "community-1", "dave", "bob", 3, "")
	require.NoError(t, err)
	assert.Len(t, h.publisher.Kudos(), 1)
}
