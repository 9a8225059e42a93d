// Package session owns the single "active session" concept for an owner:
// discovery on attach, race-safe creation, completion or discard, and the
// fire-and-forget focus-ref write path.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/domain"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/metrics"
	"golang.org/x/sync/singleflight"
)

type Manager struct {
	sessions  domain.SessionRepository
	sets      domain.SetRepository
	publisher domain.ChangePublisher
	images    domain.ImageGenerator // nil disables summary images
	clock     clockwork.Clock

	startGroup singleflight.Group
	bgWg       sync.WaitGroup
}

func NewManager(sessions domain.SessionRepository, sets domain.SetRepository, publisher domain.ChangePublisher, images domain.ImageGenerator, clock clockwork.Clock) *Manager {
	return &Manager{
		sessions:  sessions,
		sets:      sets,
		publisher: publisher,
		images:    images,
		clock:     clock,
	}
}

// Discover returns the owner's active session, or nil when none exists.
// Fetch errors are returned for the caller to surface; the stored focus ref
// is resolved through the set join when it points at a set row.
func (m *Manager) Discover(ctx context.Context, ownerID uuid.UUID) (*domain.Session, error) {
	s, err := m.sessions.GetActiveByOwner(ctx, ownerID)
	if errors.Is(err, domain.ErrNoActiveSession) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if s.LastFocusedExerciseRef != nil {
		exerciseID, err := m.sessions.ResolveFocusRef(ctx, *s.LastFocusedExerciseRef)
		switch {
		case err == nil:
			s.LastFocusedExerciseRef = &exerciseID
		case errors.Is(err, domain.ErrExerciseNotFound):
			// Keep the raw ref; restoration retries once section data loads.
		default:
			slog.Warn("Failed to resolve stored focus ref", "session_id", s.ID.String(), "error", err)
		}
	}
	return s, nil
}

// Start creates a new active session from a program. Optimistic-before-write:
// any existing active session is closed best-effort first; losing the insert
// race to another device is not an error, the winner's session is adopted.
// Concurrent calls for one owner are collapsed in-process.
func (m *Manager) Start(ctx context.Context, ownerID uuid.UUID, program domain.Program) (*domain.Session, error) {
	v, err, _ := m.startGroup.Do(ownerID.String(), func() (any, error) {
		return m.start(ctx, ownerID, program)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Session), nil
}

func (m *Manager) start(ctx context.Context, ownerID uuid.UUID, program domain.Program) (*domain.Session, error) {
	if err := m.sessions.DeactivateAllForOwner(ctx, ownerID); err != nil {
		slog.Warn("Best-effort deactivate of previous session failed", "owner_id", ownerID.String(), "error", err)
	}

	s := &domain.Session{
		OwnerID:   ownerID,
		ProgramID: program.ID,
		Name:      program.Name,
		StartTime: m.clock.Now(),
		IsActive:  true,
	}

	err := m.sessions.Insert(ctx, s)
	if errors.Is(err, domain.ErrSessionConflict) {
		// Another tab/device won the race; use its session.
		metrics.StartConflictsRecoveredTotal.Inc()
		existing, ferr := m.sessions.GetActiveByOwner(ctx, ownerID)
		if ferr != nil {
			return nil, fmt.Errorf("failed to adopt racing session: %w", ferr)
		}
		slog.Info("Adopted existing active session after insert conflict",
			"owner_id", ownerID.String(), "session_id", existing.ID.String())
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	m.publish(ctx, ownerID, domain.ChangeEvent{
		Kind:     domain.EventInsert,
		EntityID: s.ID,
		Row:      domain.RowFromSession(s),
	})

	if _, err := m.sets.SnapshotProgram(ctx, s.ID, program.Exercises); err != nil {
		return nil, fmt.Errorf("failed to snapshot program: %w", err)
	}

	if first := program.FirstExercise(); first != nil {
		if err := m.sessions.SetLastFocused(ctx, s.ID, first.ExerciseID); err != nil {
			return nil, fmt.Errorf("failed to write initial focus: %w", err)
		}
		ref := first.ExerciseID
		s.LastFocusedExerciseRef = &ref
		m.publish(ctx, ownerID, domain.ChangeEvent{
			Kind:     domain.EventUpdate,
			EntityID: s.ID,
			Row:      domain.RowFromSession(s),
		})
	}

	return s, nil
}

// End completes or discards a session. With zero completed sets the row is
// deleted (Saved=false); otherwise it is marked inactive with completion
// time and duration (Saved=true) and the summary image render is kicked off
// fire-and-forget.
func (m *Manager) End(ctx context.Context, s *domain.Session, elapsedSeconds int) (domain.EndResult, error) {
	timer := m.clock.Now()
	defer func() {
		metrics.SessionEndDurationSeconds.Observe(m.clock.Since(timer).Seconds())
	}()

	completed, err := m.sets.CountCompleted(ctx, s.ID)
	if err != nil {
		return domain.EndResult{}, fmt.Errorf("failed to count completed sets: %w", err)
	}

	if completed == 0 {
		if err := m.sessions.Delete(ctx, s.ID); err != nil {
			return domain.EndResult{}, err
		}
		m.publish(ctx, s.OwnerID, domain.ChangeEvent{
			Kind:     domain.EventDelete,
			EntityID: s.ID,
		})
		return domain.EndResult{Saved: false}, nil
	}

	completedAt := m.clock.Now()
	if err := m.sessions.Complete(ctx, s.ID, completedAt, elapsedSeconds); err != nil {
		return domain.EndResult{}, err
	}

	s.IsActive = false
	s.CompletedAt = &completedAt
	s.DurationSeconds = &elapsedSeconds
	m.publish(ctx, s.OwnerID, domain.ChangeEvent{
		Kind:     domain.EventUpdate,
		EntityID: s.ID,
		Row:      domain.RowFromSession(s),
	})

	if m.images != nil {
		sessionID := s.ID
		m.bgWg.Add(1)
		go func() {
			defer m.bgWg.Done()
			url, err := m.images.Generate(context.Background(), sessionID, domain.SessionMetrics{
				CompletedSets:   completed,
				DurationSeconds: elapsedSeconds,
			})
			if err != nil {
				slog.Warn("Summary image generation failed", "session_id", sessionID.String(), "error", err)
				return
			}
			slog.Info("Summary image generated", "session_id", sessionID.String(), "url", url)
		}()
	}

	return domain.EndResult{Saved: true}, nil
}

// UpdateLastFocused persists the focus ref onto the session row and echoes
// the change through the feed. Called from the async write queue; errors
// propagate there to be logged, never to the UI.
func (m *Manager) UpdateLastFocused(ctx context.Context, s *domain.Session, ref uuid.UUID) error {
	if err := m.sessions.SetLastFocused(ctx, s.ID, ref); err != nil {
		return err
	}

	row := *domain.RowFromSession(s)
	row.LastFocusedExerciseRef = &ref
	m.publish(ctx, s.OwnerID, domain.ChangeEvent{
		Kind:     domain.EventUpdate,
		EntityID: s.ID,
		Row:      &row,
	})
	return nil
}

// Wait blocks until background work (summary images) finishes. Used during
// shutdown and in tests.
func (m *Manager) Wait() {
	m.bgWg.Wait()
}

func (m *Manager) publish(ctx context.Context, ownerID uuid.UUID, event domain.ChangeEvent) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, ownerID, event); err != nil {
		slog.Warn("Failed to publish change event", "owner_id", ownerID.String(), "kind", string(event.Kind), "error", err)
	}
}
