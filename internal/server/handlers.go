package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/domain"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/platform/correlation"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/version"
)

func correlationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := correlation.WithID(c.Request().Context(), correlation.NewID())
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// --- DTOs ---

type sessionResponse struct {
	ID                     uuid.UUID  `json:"id"`
	OwnerID                uuid.UUID  `json:"owner_id"`
	ProgramID              uuid.UUID  `json:"program_id"`
	Name                   string     `json:"name"`
	StartTime              time.Time  `json:"start_time"`
	LastFocusedExerciseRef *uuid.UUID `json:"last_focused_exercise_ref,omitempty"`
	IsActive               bool       `json:"is_active"`
	CompletedAt            *time.Time `json:"completed_at,omitempty"`
}

func toSessionResponse(s *domain.Session) *sessionResponse {
	if s == nil {
		return nil
	}
	return &sessionResponse{
		ID:                     s.ID,
		OwnerID:                s.OwnerID,
		ProgramID:              s.ProgramID,
		Name:                   s.Name,
		StartTime:              s.StartTime,
		LastFocusedExerciseRef: s.LastFocusedExerciseRef,
		IsActive:               s.IsActive,
		CompletedAt:            s.CompletedAt,
	}
}

type ownerRequest struct {
	OwnerID uuid.UUID `json:"owner_id"`
}

type startSessionRequest struct {
	OwnerID uuid.UUID `json:"owner_id"`
	Program struct {
		ID        uuid.UUID `json:"id"`
		Name      string    `json:"name"`
		Exercises []struct {
			ExerciseID uuid.UUID `json:"exercise_id"`
			Name       string    `json:"name"`
			Section    string    `json:"section"`
			Position   int       `json:"position"`
		} `json:"exercises"`
	} `json:"program"`
}

type setFocusRequest struct {
	OwnerID uuid.UUID  `json:"owner_id"`
	Ref     *uuid.UUID `json:"ref"`
	Section string     `json:"section"`
}

type animationLockRequest struct {
	OwnerID uuid.UUID `json:"owner_id"`
	Locked  bool      `json:"locked"`
}

// --- Handlers ---

func (s *Server) handleAttach(c echo.Context) error {
	var req ownerRequest
	if err := c.Bind(&req); err != nil || req.OwnerID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "owner_id is required")
	}

	sess, err := s.app.Attach(c.Request().Context(), req.OwnerID)
	if err != nil {
		slog.ErrorContext(c.Request().Context(), "Attach failed", "owner_id", req.OwnerID.String(), "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load session")
	}

	return c.JSON(http.StatusOK, map[string]any{"session": toSessionResponse(sess)})
}

func (s *Server) handleDetach(c echo.Context) error {
	var req ownerRequest
	if err := c.Bind(&req); err != nil || req.OwnerID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "owner_id is required")
	}
	s.app.Detach(req.OwnerID)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleStartSession(c echo.Context) error {
	var req startSessionRequest
	if err := c.Bind(&req); err != nil || req.OwnerID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "owner_id is required")
	}

	program := domain.Program{ID: req.Program.ID, Name: req.Program.Name}
	for _, e := range req.Program.Exercises {
		program.Exercises = append(program.Exercises, domain.ProgramExercise{
			ExerciseID: e.ExerciseID,
			Name:       e.Name,
			Section:    domain.Section(e.Section),
			Position:   e.Position,
		})
	}

	sess, err := s.app.StartSession(c.Request().Context(), req.OwnerID, program)
	if errors.Is(err, domain.ErrNotAttached) {
		return echo.NewHTTPError(http.StatusConflict, "owner is not attached")
	}
	if err != nil {
		slog.ErrorContext(c.Request().Context(), "StartSession failed", "owner_id", req.OwnerID.String(), "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start session")
	}

	return c.JSON(http.StatusCreated, toSessionResponse(sess))
}

func (s *Server) handleEndSession(c echo.Context) error {
	var req ownerRequest
	if err := c.Bind(&req); err != nil || req.OwnerID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "owner_id is required")
	}

	res, err := s.app.EndSession(c.Request().Context(), req.OwnerID)
	if errors.Is(err, domain.ErrNotAttached) {
		return echo.NewHTTPError(http.StatusConflict, "owner is not attached")
	}
	if errors.Is(err, domain.ErrNoActiveSession) {
		return echo.NewHTTPError(http.StatusNotFound, "no active session")
	}
	if err != nil {
		slog.ErrorContext(c.Request().Context(), "EndSession failed", "owner_id", req.OwnerID.String(), "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to end session")
	}

	return c.JSON(http.StatusOK, map[string]bool{"saved": res.Saved})
}

func (s *Server) handleSetFocus(c echo.Context) error {
	var req setFocusRequest
	if err := c.Bind(&req); err != nil || req.OwnerID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "owner_id is required")
	}

	err := s.app.SetFocus(req.OwnerID, req.Ref, domain.Section(req.Section), domain.SourceUser)
	if errors.Is(err, domain.ErrNotAttached) {
		return echo.NewHTTPError(http.StatusConflict, "owner is not attached")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to set focus")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSetAnimationLock(c echo.Context) error {
	var req animationLockRequest
	if err := c.Bind(&req); err != nil || req.OwnerID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "owner_id is required")
	}

	err := s.app.SetAnimationLocked(req.OwnerID, req.Locked)
	if errors.Is(err, domain.ErrNotAttached) {
		return echo.NewHTTPError(http.StatusConflict, "owner is not attached")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to set animation lock")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleState(c echo.Context) error {
	ownerID, err := uuid.Parse(c.Param("ownerID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid owner id")
	}

	state, err := s.app.State(ownerID)
	if errors.Is(err, domain.ErrNotAttached) {
		return echo.NewHTTPError(http.StatusNotFound, "owner is not attached")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read state")
	}
	return c.JSON(http.StatusOK, state)
}

func (s *Server) handleWebSocket(c echo.Context) error {
	ownerID, err := uuid.Parse(c.Param("ownerID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid owner id")
	}

	if _, err := s.app.Attach(c.Request().Context(), ownerID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to attach")
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	if err := s.hub.Register(ownerID, conn); err != nil {
		_ = conn.Close()
		return nil
	}

	// Push the current state so a fresh client renders immediately.
	if state, err := s.app.State(ownerID); err == nil {
		if data, err := json.Marshal(state); err == nil {
			s.hub.Broadcast(ownerID, data)
		}
	}

	// Read loop: clients send nothing meaningful; this detects disconnect.
	go func() {
		defer s.hub.Unregister(ownerID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	return nil
}

func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "build": version.Get()})
}

func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "database unavailable"})
	}
	if err := s.redis.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "redis unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
