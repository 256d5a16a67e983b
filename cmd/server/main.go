package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/YTstyo/Dis-karm/internal/app"
	"github.com/YTstyo/Dis-karm/internal/config"
	"github.com/YTstyo/Dis-karm/internal/database"
	"github.com/YTstyo/Dis-karm/internal/domain"
	"github.com/YTstyo/Dis-karm/internal/karma"
	"github.com/YTstyo/Dis-karm/internal/logging"
	"github.com/YTstyo/Dis-karm/internal/metrics"
	"github.com/YTstyo/Dis-karm/internal/redis"
	"github.com/YTstyo/Dis-karm/internal/server"
)

func main() {
	clock := clockwork.NewRealClock()

	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized.
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	levels, err := karma.NewLevels(cfg.LevelInterval, cfg.EmojiLadder())
	if err != nil {
		slog.Error("Invalid level configuration", "error", err)
		os.Exit(1)
	}

	registry := metrics.NewRegistry()
	txMetrics := metrics.NewTransactionMetrics(registry)

	var healthChecks []server.HealthCheck

	// Stores: Postgres when configured, in-memory otherwise (development).
	var (
		ledger domain.LedgerStore
		boards domain.BoardStore
	)
	if cfg.DatabaseURL != "" {
		pool := setupDB(cfg)
		defer pool.Close()
		ledger = database.NewLedgerRepo(pool, levels.Level)
		boards = database.NewBoardRepo(pool)
		healthChecks = append(healthChecks, server.HealthCheck{
			Name:  "postgres",
			Check: func(ctx context.Context) error { return pool.Ping(ctx) },
		})
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory stores (data is lost on restart)")
		mem := karma.NewMemoryStore(levels.Level)
		ledger = mem
		boards = mem
	}

	var (
		cooldowns domain.CooldownStore
		publisher domain.EventPublisher
		leader    app.LeaderGate
		evictor   app.CooldownEvictor
	)
	if cfg.RedisURL != "" {
		redisClient := setupRedis(cfg)
		defer func() { _ = redisClient.Close() }()
		cooldowns = redis.NewCooldownStore(redisClient)
		publisher = redis.NewPublisher(redisClient, txMetrics)
		leader = redis.NewLeaderElector(redisClient, instanceID())
		healthChecks = append(healthChecks, server.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	} else {
		slog.Warn("REDIS_URL not set, using in-process cooldowns and log-only events")
		memCooldowns := karma.NewMemoryCooldowns(clock)
		cooldowns = memCooldowns
		evictor = memCooldowns
		publisher = app.LogPublisher{}
	}

	boardManager := karma.NewBoards(boards, karma.BoardPolicy{
		RefireOnRecross: cfg.KudoRefireOnRecross,
		RepeatPosts:     cfg.KudoRepeatPosts,
	})

	engine := karma.NewEngine(ledger, cooldowns, boardManager, levels, publisher, nil, clock, karma.EngineConfig{
		Cooldown:          cfg.Cooldown(),
		PerTransactionCap: cfg.PerTransactionCap,
		KarmaFloor:        cfg.KarmaFloor,
		AllowNegative:     cfg.AllowNegative,
		Owners:            cfg.Owners(),
	}, txMetrics)

	svc := app.NewService(engine, ledger)

	cleaner := karma.NewCleaner(ledger, cfg.RetentionWindow(), txMetrics)
	ticker := app.NewCleanupTicker(cleaner, cfg.CleanupInterval, clock, leader, evictor)
	tickerCtx, stopTicker := context.WithCancel(context.Background())
	go ticker.Run(tickerCtx)

	srv := server.NewServer(cfg, svc, registry, healthChecks)

	done := runGracefulShutdown(srv, stopTicker)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func instanceID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

func runGracefulShutdown(srv *server.Server, stopTicker context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		stopTicker()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}
