package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/YTstyo/Dis-karm/internal/domain"
	"github.com/YTstyo/Dis-karm/internal/metrics"
)

const (
	levelUpChannel = "karma:events:levelup"
	kudoChannel    = "karma:events:kudo"
)

// Publisher implements domain.EventPublisher over Redis pub/sub. The
// notification collaborator subscribes to the event channels and renders
// chat messages from the JSON payloads.
type Publisher struct {
	rdb     *redis.Client
	metrics *metrics.TransactionMetrics
}

func NewPublisher(rdb *redis.Client, m *metrics.TransactionMetrics) *Publisher {
	return &Publisher{rdb: rdb, metrics: m}
}

func (p *Publisher) PublishLevelUp(ctx context.Context, event domain.LevelUpEvent) error {
	if err := p.publish(ctx, levelUpChannel, event); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.EventsPublished.WithLabelValues("level_up").Inc()
	}
	return nil
}

func (p *Publisher) PublishKudo(ctx context.Context, event domain.KudoEvent) error {
	if err := p.publish(ctx, kudoChannel, event); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.EventsPublished.WithLabelValues("kudo").Inc()
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, channel string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}
