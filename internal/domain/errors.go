package domain

import "errors"

var (
	// ErrSessionConflict is returned on session insert when another active
	// session already exists for the owner (unique-violation on the partial
	// index). Callers recover by fetching the existing session.
	ErrSessionConflict = errors.New("active session already exists")

	ErrSessionNotFound  = errors.New("session not found")
	ErrNoActiveSession  = errors.New("no active session")
	ErrExerciseNotFound = errors.New("exercise not found")
	ErrNotAttached      = errors.New("owner not attached")
)
