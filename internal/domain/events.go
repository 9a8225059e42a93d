package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind classifies a change-feed notification.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// SessionRow is the wire snapshot of a session row carried by change-feed
// events. Events are full snapshots, not diffs, so out-of-order or duplicate
// delivery never corrupts downstream state.
type SessionRow struct {
	ID                     uuid.UUID  `json:"id"`
	OwnerID                uuid.UUID  `json:"owner_id"`
	ProgramID              uuid.UUID  `json:"program_id"`
	Name                   string     `json:"name"`
	StartTime              time.Time  `json:"start_time"`
	LastFocusedExerciseRef *uuid.UUID `json:"last_focused_exercise_ref,omitempty"`
	IsActive               bool       `json:"is_active"`
	CompletedAt            *time.Time `json:"completed_at,omitempty"`
}

// ChangeEvent is a normalized change-feed notification for one session row.
// Row is nil for deletes.
type ChangeEvent struct {
	Kind     EventKind
	EntityID uuid.UUID
	Row      *SessionRow
}

// RowFromSession converts a session into its wire snapshot.
func RowFromSession(s *Session) *SessionRow {
	return &SessionRow{
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

// SessionFromRow converts a wire snapshot back into a session.
func SessionFromRow(r *SessionRow) *Session {
	return &Session{
		ID:                     r.ID,
		OwnerID:                r.OwnerID,
		ProgramID:              r.ProgramID,
		Name:                   r.Name,
		StartTime:              r.StartTime,
		LastFocusedExerciseRef: r.LastFocusedExerciseRef,
		IsActive:               r.IsActive,
		CompletedAt:            r.CompletedAt,
	}
}
