package domain

import (
	"github.com/google/uuid"
)

// FocusSource tags where a focus-change request originated. The state
// machine treats each source differently: user input always wins locally,
// sync events are echo-suppressed and idle-gated, restore is the one-time
// reapplication of the persisted value at attach time.
type FocusSource string

const (
	SourceUser    FocusSource = "user"
	SourceSync    FocusSource = "sync"
	SourceRestore FocusSource = "restore"
)

// Exercise is the renderable object a focus ref resolves to.
type Exercise struct {
	ID      uuid.UUID
	Name    string
	Section Section
}

// ResolvedFocus is a focus ref together with its resolution against the
// section index. Resolved is false while the referenced exercise has not
// been loaded yet; the ref is kept as a placeholder until section data
// arrives.
type ResolvedFocus struct {
	Ref      uuid.UUID
	Exercise *Exercise
	Section  Section
	Resolved bool
}

// SectionIndex resolves focus refs to exercises. It is owned by the routine
// loader and updated as section data arrives; the focus machine only reads
// from it.
type SectionIndex interface {
	Resolve(ref uuid.UUID) (*Exercise, Section, bool)
}
