package app

import (
	"context"
	"log/slog"

	"github.com/YTstyo/Dis-karm/internal/domain"
)

// LogPublisher writes outbound events to the log. Used in development mode
// when no Redis is configured; the notification collaborator is absent then
// anyway.
type LogPublisher struct{}

func (LogPublisher) PublishLevelUp(_ context.Context, event domain.LevelUpEvent) error {
	slog.Info("level up",
		"community_id", event.CommunityID, "member_id", event.MemberID,
		"new_level", event.NewLevel, "emoji", event.Emoji)
	return nil
}

func (LogPublisher) PublishKudo(_ context.Context, event domain.KudoEvent) error {
	slog.Info("kudo posted",
		"community_id", event.CommunityID, "channel_id", event.ChannelID,
		"member_id", event.MemberID, "total", event.Total)
	return nil
}
