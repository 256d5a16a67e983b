package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"

	"github.com/YTstyo/Dis-karm/internal/karma"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	APIKey      string `env:"API_KEY"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	CooldownSeconds   int    `env:"COOLDOWN_SECONDS" default:"60"`
	LevelInterval     int64  `env:"LEVEL_INTERVAL" default:"50"`
	RetentionDays     int    `env:"RETENTION_DAYS" default:"30"`
	KarmaFloor        int64  `env:"KARMA_FLOOR" default:"0"`
	AllowNegative     bool   `env:"ALLOW_NEGATIVE_TOTALS" default:"false"`
	PerTransactionCap int64  `env:"PER_TRANSACTION_CAP" default:"10"`
	OwnerIDs          string `env:"OWNER_IDS"`
	LevelEmojiMap     string `env:"LEVEL_EMOJI_MAP"`

	KudoRefireOnRecross bool `env:"KUDO_REFIRE_ON_RECROSS" default:"true"`
	KudoRepeatPosts     bool `env:"KUDO_REPEAT_POSTS" default:"false"`

	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" default:"24h"`

	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND" default:"20"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" default:"40"`

	// Parsed during Load.
	owners      map[string]struct{}
	emojiLadder []karma.EmojiThreshold
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := cfg.parseAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) parseAndValidate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}
	if c.CooldownSeconds < 0 {
		return fmt.Errorf("COOLDOWN_SECONDS must not be negative, got %d", c.CooldownSeconds)
	}
	if c.LevelInterval <= 0 {
		return fmt.Errorf("LEVEL_INTERVAL must be positive, got %d", c.LevelInterval)
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("RETENTION_DAYS must be positive, got %d", c.RetentionDays)
	}
	if c.PerTransactionCap <= 0 {
		return fmt.Errorf("PER_TRANSACTION_CAP must be positive, got %d", c.PerTransactionCap)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must be positive, got %s", c.CleanupInterval)
	}

	c.owners = make(map[string]struct{})
	for _, id := range strings.Split(c.OwnerIDs, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			c.owners[id] = struct{}{}
		}
	}

	ladderSpec := c.LevelEmojiMap
	if ladderSpec == "" {
		ladderSpec = karma.DefaultEmojiLadder
	}
	ladder, err := karma.ParseEmojiLadder(ladderSpec)
	if err != nil {
		return fmt.Errorf("LEVEL_EMOJI_MAP: %w", err)
	}
	c.emojiLadder = ladder

	return nil
}

// Owners returns the configured admin/owner member IDs.
func (c *Config) Owners() map[string]struct{} { return c.owners }

// EmojiLadder returns the parsed level-threshold to symbol mapping.
func (c *Config) EmojiLadder() []karma.EmojiThreshold { return c.emojiLadder }

// Cooldown returns the transfer cooldown window.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// RetentionWindow returns the history retention horizon.
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
