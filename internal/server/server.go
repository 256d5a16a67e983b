// Package server exposes the karma core over HTTP for the command-routing
// collaborator (the chat bot process).
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/YTstyo/Dis-karm/internal/app"
	"github.com/YTstyo/Dis-karm/internal/config"
	"github.com/YTstyo/Dis-karm/internal/domain"
	"github.com/YTstyo/Dis-karm/internal/metrics"
)

// karmaService is the subset of app.Service operations the handlers need.
type karmaService interface {
	Give(ctx context.Context, communityID, giverID, receiverID string, amount int64, reason string) (*domain.Outcome, error)
	Remove(ctx context.Context, communityID, giverID, receiverID string, amount int64, reason string) (*domain.Outcome, error)
	AdminSet(ctx context.Context, actorID, communityID, receiverID string, value int64, reason string) (*domain.Outcome, error)
	ConfigureBoard(ctx context.Context, actorID, communityID, channelID string, minKarma int64) error
	CheckKarma(ctx context.Context, communityID, memberID string) (*app.MemberStatus, error)
	History(ctx context.Context, communityID, memberID string, limit int) ([]domain.Transaction, error)
	Leaderboard(ctx context.Context, communityID string, limit, offset int) ([]domain.LeaderboardEntry, error)
}

// HealthCheck names a readiness dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app          karmaService
	healthChecks []HealthCheck

	registry    *prometheus.Registry
	httpMetrics *metrics.HTTPMetrics
	startTime   time.Time
}

func NewServer(cfg *config.Config, svc karmaService, registry *prometheus.Registry, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		app:          svc,
		healthChecks: healthChecks,
		registry:     registry,
		httpMetrics:  metrics.NewHTTPMetrics(registry),
		startTime:    time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
