// Package focus owns the per-owner focus synchronization state machine:
// the UI-visible focus register, the store-acknowledged register, and the
// heuristics (echo suppression, idle gating) that keep a shared live
// session from yanking focus away from an interacting user.
package focus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/domain"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/metrics"
)

// DefaultIdleWindow covers a remote echo round-trip but is short enough
// that a genuinely idle viewer still sees the other party's focus promptly.
const DefaultIdleWindow = 2 * time.Second

// Writer issues fire-and-forget focus writes to the backing store.
type Writer interface {
	EnqueueWrite(ref uuid.UUID)
}

// Snapshot is the observable focus state pushed to connected clients.
type Snapshot struct {
	ActiveFocus    *domain.ResolvedFocus `json:"active_focus,omitempty"`
	PersistedFocus *uuid.UUID            `json:"persisted_focus,omitempty"`
	IsRestoring    bool                  `json:"is_restoring"`
}

// Machine serializes focus-change requests for one owner. Requests arriving
// while the animation lock is held are deferred (depth one, last-write-wins)
// and replayed on unlock.
type Machine struct {
	clock      clockwork.Clock
	idleWindow time.Duration
	index      domain.SectionIndex
	writer     Writer

	mu       sync.Mutex
	state    State
	lock     animLock
	onChange func(Snapshot)
}

func NewMachine(index domain.SectionIndex, writer Writer, clock clockwork.Clock, idleWindow time.Duration) *Machine {
	if idleWindow <= 0 {
		idleWindow = DefaultIdleWindow
	}
	return &Machine{
		clock:      clock,
		idleWindow: idleWindow,
		index:      index,
		writer:     writer,
	}
}

// SetOnChange registers the observer notified after every observable state
// change. Must be called before the machine receives requests.
func (m *Machine) SetOnChange(fn func(Snapshot)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// SetFocus processes one focus-change request. Within a single machine,
// requests are handled in call order.
func (m *Machine) SetFocus(ref *uuid.UUID, section domain.Section, source domain.FocusSource) {
	req := Request{Ref: ref, Section: section, Source: source}

	m.mu.Lock()
	if m.lock.held {
		// A request repeating the current focus would be a no-op; dropping it
		// here keeps it from clobbering a distinct deferred request.
		if !m.duplicateLocked(req) {
			m.lock.enqueue(req)
		}
		m.mu.Unlock()
		return
	}
	notify, snap := m.applyLocked(req)
	m.mu.Unlock()

	if notify {
		m.notify(snap)
	}
}

// SetLocked toggles the animation lock. Unlocking replays the deferred
// request, if any, exactly once.
func (m *Machine) SetLocked(locked bool) {
	m.mu.Lock()
	if locked {
		m.lock.lock()
		m.mu.Unlock()
		return
	}
	pending := m.lock.unlock()
	var notify bool
	var snap Snapshot
	if pending != nil {
		notify, snap = m.applyLocked(*pending)
	}
	m.mu.Unlock()

	if notify {
		m.notify(snap)
	}
}

// OnSectionDataChanged re-resolves a placeholder focus after section data
// loads. Restoration is abandoned silently if the ref never resolves.
func (m *Machine) OnSectionDataChanged() {
	m.mu.Lock()
	active := m.state.Active
	if active == nil || active.Resolved {
		m.mu.Unlock()
		return
	}
	ex, sec, ok := m.resolve(active.Ref)
	if !ok {
		m.mu.Unlock()
		return
	}
	m.state.Active = &domain.ResolvedFocus{Ref: active.Ref, Exercise: ex, Section: sec, Resolved: true}
	m.state.IsRestoring = false
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(snap)
}

// Snapshot returns the current observable state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Reset clears all focus state. Called when the session ends or ownership
// changes.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.state = State{}
	m.lock = animLock{}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(snap)
}

// duplicateLocked reports whether req repeats the active focus. Own-write
// echoes are never duplicates: they still have to move the persisted
// register and clear the written-ref marker.
func (m *Machine) duplicateLocked(req Request) bool {
	if req.Source == domain.SourceSync && refsEqual(req.Ref, m.state.LastWrittenRef) && req.Ref != nil {
		return false
	}
	if req.Ref == nil {
		return m.state.Active == nil
	}
	return m.state.Active != nil && *req.Ref == m.state.Active.Ref
}

func (m *Machine) applyLocked(req Request) (bool, Snapshot) {
	next, out := Reconcile(m.state, req, m.resolve, m.clock.Now(), m.idleWindow)
	m.state = next

	switch {
	case out.EchoSuppressed:
		metrics.EchoesSuppressedTotal.Inc()
		slog.Debug("Focus echo suppressed", "ref", refString(req.Ref))
	case out.IdleDeferred:
		metrics.IdleDeferredSyncsTotal.Inc()
		slog.Debug("Remote focus deferred, user recently active", "ref", refString(req.Ref))
	}

	if out.Write != nil && m.writer != nil {
		m.writer.EnqueueWrite(*out.Write)
	}

	return out.Changed && m.onChange != nil, m.snapshotLocked()
}

func (m *Machine) resolve(ref uuid.UUID) (*domain.Exercise, domain.Section, bool) {
	if m.index == nil {
		return nil, "", false
	}
	return m.index.Resolve(ref)
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{
		ActiveFocus:    m.state.Active,
		PersistedFocus: m.state.Persisted,
		IsRestoring:    m.state.IsRestoring,
	}
}

func (m *Machine) notify(snap Snapshot) {
	m.mu.Lock()
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

func refString(ref *uuid.UUID) string {
	if ref == nil {
		return "<nil>"
	}
	return ref.String()
}
