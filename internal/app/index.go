package app

import (
	"sync"

	"github.com/google/uuid"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/domain"
)

// SetIndex is an in-memory section/exercise lookup built from a session's
// snapshotted sets. The focus machine resolves refs against it; it is
// replaced wholesale as section data loads.
type SetIndex struct {
	mu         sync.RWMutex
	byExercise map[uuid.UUID]indexEntry
	bySet      map[uuid.UUID]indexEntry
}

type indexEntry struct {
	exercise domain.Exercise
	section  domain.Section
}

func NewSetIndex() *SetIndex {
	return &SetIndex{
		byExercise: make(map[uuid.UUID]indexEntry),
		bySet:      make(map[uuid.UUID]indexEntry),
	}
}

// Replace swaps the index contents for the given sets.
func (i *SetIndex) Replace(sets []domain.SessionSet) {
	byExercise := make(map[uuid.UUID]indexEntry, len(sets))
	bySet := make(map[uuid.UUID]indexEntry, len(sets))
	for _, s := range sets {
		entry := indexEntry{
			exercise: domain.Exercise{ID: s.ExerciseID, Name: s.Name, Section: s.Section},
			section:  s.Section,
		}
		byExercise[s.ExerciseID] = entry
		bySet[s.ID] = entry
	}

	i.mu.Lock()
	i.byExercise = byExercise
	i.bySet = bySet
	i.mu.Unlock()
}

// Resolve maps a ref to its exercise and section. Refs may be exercise ids
// or set ids; both forms resolve.
func (i *SetIndex) Resolve(ref uuid.UUID) (*domain.Exercise, domain.Section, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if entry, ok := i.byExercise[ref]; ok {
		ex := entry.exercise
		return &ex, entry.section, true
	}
	if entry, ok := i.bySet[ref]; ok {
		ex := entry.exercise
		return &ex, entry.section, true
	}
	return nil, "", false
}
