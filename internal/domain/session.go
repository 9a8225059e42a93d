package domain

import (
	"time"

	"github.com/google/uuid"
)

// Section is the part of a workout an exercise belongs to. Sections order
// the initial focus when a session starts: warmup before training before
// cooldown.
type Section string

const (
	SectionWarmup   Section = "warmup"
	SectionTraining Section = "training"
	SectionCooldown Section = "cooldown"
)

// SectionPriority returns the ordering rank of a section. Unknown sections
// sort last.
func SectionPriority(s Section) int {
	switch s {
	case SectionWarmup:
		return 0
	case SectionTraining:
		return 1
	case SectionCooldown:
		return 2
	default:
		return 3
	}
}

// Session is one in-progress (or just-ended) workout. At most one session
// per owner has IsActive set; the database enforces this with a partial
// unique index.
type Session struct {
	ID                     uuid.UUID
	OwnerID                uuid.UUID
	ProgramID              uuid.UUID
	Name                   string
	StartTime              time.Time
	LastFocusedExerciseRef *uuid.UUID
	IsActive               bool
	CompletedAt            *time.Time
	DurationSeconds        *int
}

// SetStatus tracks progress on a single snapshotted set.
type SetStatus string

const (
	SetPending  SetStatus = "pending"
	SetComplete SetStatus = "complete"
	SetSkipped  SetStatus = "skipped"
)

// SessionSet is a session-scoped snapshot of one program exercise. Sets are
// created when a session starts so later edits to the program do not rewrite
// history.
type SessionSet struct {
	ID         uuid.UUID
	SessionID  uuid.UUID
	ExerciseID uuid.UUID
	Name       string
	Section    Section
	Position   int
	Status     SetStatus
}

// Program is the routine a session is started from.
type Program struct {
	ID        uuid.UUID
	Name      string
	Exercises []ProgramExercise
}

// ProgramExercise is one exercise declared in a program.
type ProgramExercise struct {
	ExerciseID uuid.UUID
	Name       string
	Section    Section
	Position   int
}

// FirstExercise returns the exercise a freshly started session should focus:
// lowest section priority first, declared order as tie-break. Returns nil
// for an empty program.
func (p Program) FirstExercise() *ProgramExercise {
	var first *ProgramExercise
	for i := range p.Exercises {
		e := &p.Exercises[i]
		if first == nil {
			first = e
			continue
		}
		if SectionPriority(e.Section) < SectionPriority(first.Section) ||
			(SectionPriority(e.Section) == SectionPriority(first.Section) && e.Position < first.Position) {
			first = e
		}
	}
	return first
}

// EndResult reports how a session ended: Saved is false when the session had
// no completed sets and was deleted instead of kept.
type EndResult struct {
	Saved bool
}

// SessionMetrics are the numbers handed to the summary image renderer.
type SessionMetrics struct {
	CompletedSets   int
	DurationSeconds int
}
