package server

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/YTstyo/Dis-karm/internal/apperrors"
	"github.com/YTstyo/Dis-karm/internal/metrics"
)

func (s *Server) registerRoutes() {
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(s.httpMetrics.Middleware())
	s.echo.Use(apperrors.Middleware(apperrors.NewErrorCounter(s.registry)))
	s.echo.Use(newRateLimiter(s.config.RateLimitPerSecond, s.config.RateLimitBurst))

	s.registerHealthRoutes()
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler(s.registry)))

	api := s.echo.Group("/api", s.requireAPIKey)
	api.POST("/karma/give", s.handleGive)
	api.POST("/karma/remove", s.handleRemove)
	api.POST("/karma/set", s.handleAdminSet)
	api.GET("/karma/:community/:member", s.handleCheckKarma)
	api.GET("/karma/:community/:member/history", s.handleHistory)
	api.GET("/leaderboard/:community", s.handleLeaderboard)
	api.POST("/boards", s.handleConfigureBoard)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.Info("Request", attrs...)
			return nil
		},
	})
}
