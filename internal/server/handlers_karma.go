package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/YTstyo/Dis-karm/internal/apperrors"
)

type transferRequest struct {
	Community string `json:"community"`
	Giver     string `json:"giver"`
	Receiver  string `json:"receiver"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
}

type setRequest struct {
	Actor     string `json:"actor"`
	Community string `json:"community"`
	Receiver  string `json:"receiver"`
	Value     int64  `json:"value"`
	Reason    string `json:"reason"`
}

type boardRequest struct {
	Actor     string `json:"actor"`
	Community string `json:"community"`
	Channel   string `json:"channel"`
	MinKarma  int64  `json:"min_karma"`
}

func (s *Server) handleGive(c echo.Context) error {
	var req transferRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	outcome, err := s.app.Give(c.Request().Context(), req.Community, req.Giver, req.Receiver, req.Amount, req.Reason)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, outcome)
}

func (s *Server) handleRemove(c echo.Context) error {
	var req transferRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	outcome, err := s.app.Remove(c.Request().Context(), req.Community, req.Giver, req.Receiver, req.Amount, req.Reason)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, outcome)
}

func (s *Server) handleAdminSet(c echo.Context) error {
	var req setRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	outcome, err := s.app.AdminSet(c.Request().Context(), req.Actor, req.Community, req.Receiver, req.Value, req.Reason)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, outcome)
}

func (s *Server) handleCheckKarma(c echo.Context) error {
	status, err := s.app.CheckKarma(c.Request().Context(), c.Param("community"), c.Param("member"))
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, status)
}

func (s *Server) handleHistory(c echo.Context) error {
	limit := queryInt(c, "limit", 0)
	history, err := s.app.History(c.Request().Context(), c.Param("community"), c.Param("member"), limit)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, map[string]any{"history": history})
}

func (s *Server) handleLeaderboard(c echo.Context) error {
	limit := queryInt(c, "limit", 0)
	offset := queryInt(c, "offset", 0)

	entries, err := s.app.Leaderboard(c.Request().Context(), c.Param("community"), limit, offset)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, map[string]any{"leaderboard": entries})
}

func (s *Server) handleConfigureBoard(c echo.Context) error {
	var req boardRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	if err := s.app.ConfigureBoard(c.Request().Context(), req.Actor, req.Community, req.Channel, req.MinKarma); err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(c echo.Context, status int, payload any) error {
	if err := c.JSON(status, payload); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func queryInt(c echo.Context, name string, def int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
