package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionRepository is the backing-store contract for session rows.
type SessionRepository interface {
	// GetActiveByOwner returns the owner's active session, or
	// ErrNoActiveSession.
	GetActiveByOwner(ctx context.Context, ownerID uuid.UUID) (*Session, error)
	// Insert creates a new session row. Returns ErrSessionConflict when an
	// active session already exists for the owner.
	Insert(ctx context.Context, s *Session) error
	// DeactivateAllForOwner marks every active session of the owner
	// inactive. Idempotent.
	DeactivateAllForOwner(ctx context.Context, ownerID uuid.UUID) error
	// SetLastFocused writes the last-focused exercise ref onto the session.
	SetLastFocused(ctx context.Context, sessionID, ref uuid.UUID) error
	// Complete marks the session inactive with completion time and duration.
	Complete(ctx context.Context, sessionID uuid.UUID, completedAt time.Time, durationSeconds int) error
	// Delete removes the session row and its snapshotted sets.
	Delete(ctx context.Context, sessionID uuid.UUID) error
	// ResolveFocusRef maps a stored focus ref to an exercise id. Refs may
	// point at a set row rather than an exercise directly; the join resolves
	// either. Returns ErrExerciseNotFound when the ref matches nothing.
	ResolveFocusRef(ctx context.Context, ref uuid.UUID) (uuid.UUID, error)
}

// SetRepository stores the session-scoped exercise snapshots.
type SetRepository interface {
	SnapshotProgram(ctx context.Context, sessionID uuid.UUID, exercises []ProgramExercise) ([]SessionSet, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]SessionSet, error)
	CountCompleted(ctx context.Context, sessionID uuid.UUID) (int, error)
}

// ChangePublisher pushes change-feed events for a session row. Every write
// to the sessions table is echoed through here so other attached clients
// (and this one) observe it.
type ChangePublisher interface {
	Publish(ctx context.Context, ownerID uuid.UUID, event ChangeEvent) error
}

// ImageGenerator renders a workout summary image. Called fire-and-forget on
// session completion; failures never affect the session result.
type ImageGenerator interface {
	Generate(ctx context.Context, sessionID uuid.UUID, metrics SessionMetrics) (string, error)
}
