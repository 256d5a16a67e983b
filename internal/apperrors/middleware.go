package apperrors

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Middleware returns an Echo middleware that converts handler errors into
// the taxonomy's JSON responses and records them on the given counter
// (labelled by error type). Echo's own HTTPErrors (e.g. 404 routing) pass
// through unchanged.
func Middleware(errorsTotal *prometheus.CounterVec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			structuredErr := AsStructuredError(err)
			if errorsTotal != nil {
				errorsTotal.WithLabelValues(string(structuredErr.Type)).Inc()
			}
			logError(c, structuredErr)

			if structuredErr.Type == TypeCooldown {
				c.Response().Header().Set("Retry-After",
					fmt.Sprintf("%d", int(structuredErr.RetryAfter.Seconds()+0.5)))
			}

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

// NewErrorCounter creates and registers the request error counter.
func NewErrorCounter(reg prometheus.Registerer) *prometheus.CounterVec {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "diskarm",
		Subsystem: "http",
		Name:      "errors_total",
		Help:      "Total HTTP errors by error type.",
	}, []string{"type"})
	reg.MustRegister(counter)
	return counter
}

func logError(c echo.Context, err *Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}
	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	switch err.Type {
	case TypeValidation, TypeNotFound:
		slog.Info("request rejected", attrs...)
	case TypeCooldown:
		// Expected throttling, not an error condition.
		slog.Info("cooldown rejection", attrs...)
	case TypeAuthorization:
		// Security relevant: somebody reached an admin operation without
		// being in the owner set.
		slog.Warn("authorization rejection", attrs...)
	default:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.Error("internal error", attrs...)
	}
}
