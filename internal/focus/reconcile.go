package focus

import (
	"time"

	"github.com/google/uuid"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/domain"
)

// State is the two-register view of focus synchronization: Active is what
// the UI renders as expanded (local-optimistic), Persisted is the last ref
// acknowledged by the backing store (remote-acknowledged). The two drift
// apart between a local action and its echo.
type State struct {
	Active           *domain.ResolvedFocus
	Persisted        *uuid.UUID
	LastUserActionAt time.Time
	LastWrittenRef   *uuid.UUID
	IsRestoring      bool
}

// Request is an intent to change focus, tagged with its source.
type Request struct {
	Ref     *uuid.UUID
	Section domain.Section
	Source  domain.FocusSource
}

// Outcome reports what a reconciliation did, for the caller to act on.
type Outcome struct {
	// Write holds the ref to persist fire-and-forget, nil when no write is due.
	Write *uuid.UUID
	// EchoSuppressed is set when a sync event was this client's own write
	// echoing back.
	EchoSuppressed bool
	// IdleDeferred is set when a remote change was withheld because the
	// local user acted within the idle window.
	IdleDeferred bool
	// Changed is set when observable state (Active, Persisted, IsRestoring)
	// moved.
	Changed bool
}

// Resolver maps a focus ref to its exercise and section.
type Resolver func(ref uuid.UUID) (*domain.Exercise, domain.Section, bool)

// Reconcile computes the next focus state for a request. It is pure: the
// clock and index lookups are passed in, so the idle-window and
// echo-suppression heuristics are testable without timers or UI.
func Reconcile(cur State, req Request, resolve Resolver, now time.Time, idleWindow time.Duration) (State, Outcome) {
	next := cur
	var out Outcome

	// Echo suppression runs before the idempotence check: an echo for the
	// ref the UI already shows must still move Persisted forward.
	if req.Source == domain.SourceSync && req.Ref != nil &&
		cur.LastWrittenRef != nil && *req.Ref == *cur.LastWrittenRef {
		next.Persisted = req.Ref
		// Cleared immediately on match, as the source system does. A second
		// remote write of the same ref from another client right after the
		// echo is a narrow race this does not harden against.
		next.LastWrittenRef = nil
		out.EchoSuppressed = true
		out.Changed = !refsEqual(cur.Persisted, req.Ref)
		return next, out
	}

	// Idempotence: a request for the ref already focused is a no-op.
	if req.Ref != nil && cur.Active != nil && *req.Ref == cur.Active.Ref {
		return next, out
	}
	if req.Ref == nil && cur.Active == nil {
		return next, out
	}

	// Explicit clear. A user backing out of focus also forgets the
	// persisted register so a later sync does not resurrect it.
	if req.Ref == nil {
		next.Active = nil
		if req.Source == domain.SourceUser {
			next.Persisted = nil
		}
		out.Changed = true
		return next, out
	}

	resolved := resolveFocus(*req.Ref, req.Section, resolve)

	switch req.Source {
	case domain.SourceUser:
		next.Active = resolved
		next.LastUserActionAt = now
		next.LastWrittenRef = req.Ref
		out.Write = req.Ref
		out.Changed = true

	case domain.SourceSync:
		next.Persisted = req.Ref
		out.Changed = !refsEqual(cur.Persisted, req.Ref)
		if now.Sub(cur.LastUserActionAt) >= idleWindow {
			next.Active = resolved
			out.Changed = true
		} else {
			// Remote change loses while the local user is interacting; it
			// stays in Persisted and will not be replayed.
			out.IdleDeferred = true
		}

	case domain.SourceRestore:
		next.Active = resolved
		next.Persisted = req.Ref
		next.IsRestoring = !resolved.Resolved
		out.Changed = true
	}

	return next, out
}

// resolveFocus resolves a ref against the index, falling back to an
// unresolved placeholder carrying the requested section.
func resolveFocus(ref uuid.UUID, section domain.Section, resolve Resolver) *domain.ResolvedFocus {
	if resolve != nil {
		if ex, sec, ok := resolve(ref); ok {
			return &domain.ResolvedFocus{Ref: ref, Exercise: ex, Section: sec, Resolved: true}
		}
	}
	return &domain.ResolvedFocus{Ref: ref, Section: section, Resolved: false}
}

func refsEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
