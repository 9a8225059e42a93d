package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/domain"
)

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

const sessionColumns = `id, owner_id, program_id, name, start_time, last_focused_exercise_ref, is_active, completed_at, duration_seconds`

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(
		&s.ID, &s.OwnerID, &s.ProgramID, &s.Name, &s.StartTime,
		&s.LastFocusedExerciseRef, &s.IsActive, &s.CompletedAt, &s.DurationSeconds,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepo) GetActiveByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE owner_id = $1 AND is_active
	`, ownerID)

	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNoActiveSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return s, nil
}

func (r *SessionRepo) Insert(ctx context.Context, s *domain.Session) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO sessions (owner_id, program_id, name, start_time, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id
	`, s.OwnerID, s.ProgramID, s.Name, s.StartTime).Scan(&s.ID)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return domain.ErrSessionConflict
	}
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	s.IsActive = true
	return nil
}

func (r *SessionRepo) DeactivateAllForOwner(ctx context.Context, ownerID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sessions SET is_active = FALSE
		WHERE owner_id = $1 AND is_active
	`, ownerID)
	if err != nil {
		return fmt.Errorf("failed to deactivate sessions: %w", err)
	}
	return nil
}

func (r *SessionRepo) SetLastFocused(ctx context.Context, sessionID, ref uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions SET last_focused_exercise_ref = $2
		WHERE id = $1
	`, sessionID, ref)
	if err != nil {
		return fmt.Errorf("failed to set last focused exercise: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepo) Complete(ctx context.Context, sessionID uuid.UUID, completedAt time.Time, durationSeconds int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET is_active = FALSE, completed_at = $2, duration_seconds = $3
		WHERE id = $1
	`, sessionID, completedAt, durationSeconds)
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepo) Delete(ctx context.Context, sessionID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// ResolveFocusRef maps a stored focus ref to an exercise id. Older clients
// stored the id of a set row instead of the exercise itself; the join
// resolves either form.
func (r *SessionRepo) ResolveFocusRef(ctx context.Context, ref uuid.UUID) (uuid.UUID, error) {
	var exerciseID uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT exercise_id FROM session_sets WHERE id = $1
	`, ref).Scan(&exerciseID)
	if errors.Is(err, pgx.ErrNoRows) {
		// Ref is not a set id; treat it as an exercise id if any set knows it.
		err = r.pool.QueryRow(ctx, `
			SELECT exercise_id FROM session_sets WHERE exercise_id = $1 LIMIT 1
		`, ref).Scan(&exerciseID)
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, domain.ErrExerciseNotFound
		}
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to resolve focus ref: %w", err)
	}
	return exerciseID, nil
}
