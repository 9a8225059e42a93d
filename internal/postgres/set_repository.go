package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/domain"
)

type SetRepo struct {
	pool *pgxpool.Pool
}

func NewSetRepo(pool *pgxpool.Pool) *SetRepo {
	return &SetRepo{pool: pool}
}

// SnapshotProgram copies the program's exercises into session-scoped set
// rows so later program edits do not rewrite this session's history.
func (r *SetRepo) SnapshotProgram(ctx context.Context, sessionID uuid.UUID, exercises []domain.ProgramExercise) ([]domain.SessionSet, error) {
	batch := &pgx.Batch{}
	sets := make([]domain.SessionSet, 0, len(exercises))

	for _, e := range exercises {
		set := domain.SessionSet{
			ID:         uuid.New(),
			SessionID:  sessionID,
			ExerciseID: e.ExerciseID,
			Name:       e.Name,
			Section:    e.Section,
			Position:   e.Position,
			Status:     domain.SetPending,
		}
		sets = append(sets, set)
		batch.Queue(`
			INSERT INTO session_sets (id, session_id, exercise_id, name, section, position, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, set.ID, set.SessionID, set.ExerciseID, set.Name, set.Section, set.Position, set.Status)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range exercises {
		if _, err := results.Exec(); err != nil {
			return nil, fmt.Errorf("failed to snapshot program exercises: %w", err)
		}
	}
	return sets, nil
}

func (r *SetRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.SessionSet, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, exercise_id, name, section, position, status
		FROM session_sets
		WHERE session_id = $1
		ORDER BY section, position
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session sets: %w", err)
	}
	defer rows.Close()

	var sets []domain.SessionSet
	for rows.Next() {
		var s domain.SessionSet
		if err := rows.Scan(&s.ID, &s.SessionID, &s.ExerciseID, &s.Name, &s.Section, &s.Position, &s.Status); err != nil {
			return nil, fmt.Errorf("failed to scan session set: %w", err)
		}
		sets = append(sets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session sets: %w", err)
	}
	return sets, nil
}

func (r *SetRepo) CountCompleted(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM session_sets
		WHERE session_id = $1 AND status = $2
	`, sessionID, domain.SetComplete).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed sets: %w", err)
	}
	return count, nil
}
