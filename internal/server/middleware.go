package server

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// requireAPIKey authenticates the command-routing collaborator. A single
// static key suffices: the API is private infrastructure, not a public
// surface, and member-level authorization happens inside the engine.
func (s *Server) requireAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.config.APIKey)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid API key")
		}
		return next(c)
	}
}
