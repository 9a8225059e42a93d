// Package app composes the session lifecycle manager, the focus state
// machine, and the change-feed listener into one engine per attached owner.
// It is the only package that references more than one core component.
package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/domain"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/feed"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/focus"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/metrics"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/platform/retry"
	worksession "github.com/lassorfeasley/swiper.fit-sub002/internal/session"
)

// Options tune the per-owner engine.
type Options struct {
	IdleWindow   time.Duration
	TickInterval time.Duration
	// WritePolicy governs focus write retries. Zero value means no retries,
	// matching the fire-and-forget design.
	WritePolicy retry.Policy
}

// StateSnapshot is the observable state streamed to connected clients.
type StateSnapshot struct {
	Focus           focus.Snapshot `json:"focus"`
	ElapsedSeconds  int            `json:"elapsed_seconds"`
	IsSessionActive bool           `json:"is_session_active"`
	SessionID       *uuid.UUID     `json:"session_id,omitempty"`
}

// attachment is one owner's live engine: their session, focus machine,
// section index, feed subscription, and elapsed ticker.
type attachment struct {
	ownerID uuid.UUID
	ctx     context.Context
	cancel  context.CancelFunc

	index   *SetIndex
	machine *focus.Machine
	writer  *focus.AsyncWriter

	mu       sync.Mutex
	current  *domain.Session
	elapsed  int
	ticker   *worksession.ElapsedTicker
	stopFeed func()
}

// Service coordinates engines for all attached owners.
type Service struct {
	manager  *worksession.Manager
	sets     domain.SetRepository
	listener *feed.Listener
	clock    clockwork.Clock
	opts     Options

	mu          sync.Mutex
	attachments map[uuid.UUID]*attachment
	onState     func(ownerID uuid.UUID, state StateSnapshot)
}

func NewService(manager *worksession.Manager, sets domain.SetRepository, listener *feed.Listener, clock clockwork.Clock, opts Options) *Service {
	if opts.IdleWindow <= 0 {
		opts.IdleWindow = focus.DefaultIdleWindow
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	return &Service{
		manager:     manager,
		sets:        sets,
		listener:    listener,
		clock:       clock,
		opts:        opts,
		attachments: make(map[uuid.UUID]*attachment),
	}
}

// SetOnState registers the observer pushed on every state change. Must be
// set before owners attach.
func (s *Service) SetOnState(fn func(ownerID uuid.UUID, state StateSnapshot)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

// Attach brings an owner online: discovers their active session, restores
// the persisted focus, and starts listening to their change feed. Attach is
// idempotent; a second call returns the current session.
func (s *Service) Attach(ctx context.Context, ownerID uuid.UUID) (*domain.Session, error) {
	s.mu.Lock()
	if att, ok := s.attachments[ownerID]; ok {
		s.mu.Unlock()
		att.mu.Lock()
		defer att.mu.Unlock()
		return att.current, nil
	}
	s.mu.Unlock()

	discovered, err := s.manager.Discover(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	attCtx, cancel := context.WithCancel(context.Background())
	att := &attachment{
		ownerID: ownerID,
		ctx:     attCtx,
		cancel:  cancel,
		index:   NewSetIndex(),
	}

	att.writer = focus.NewAsyncWriter(s.writeFunc(att), s.opts.WritePolicy)
	att.machine = focus.NewMachine(att.index, att.writer, s.clock, s.opts.IdleWindow)
	att.machine.SetOnChange(func(focus.Snapshot) { s.pushState(att) })

	s.mu.Lock()
	if existing, ok := s.attachments[ownerID]; ok {
		// Lost an attach race; use the winner.
		s.mu.Unlock()
		cancel()
		existing.mu.Lock()
		defer existing.mu.Unlock()
		return existing.current, nil
	}
	s.attachments[ownerID] = att
	s.mu.Unlock()
	metrics.AttachedOwners.Inc()

	att.stopFeed = s.listener.Subscribe(attCtx, ownerID, func(ev domain.ChangeEvent) {
		s.handleEvent(att, ev)
	})

	if discovered != nil {
		att.mu.Lock()
		att.current = discovered
		att.mu.Unlock()

		s.refreshIndex(ctx, att, discovered.ID)
		s.restartTicker(att)
		if discovered.LastFocusedExerciseRef != nil {
			att.machine.SetFocus(discovered.LastFocusedExerciseRef, "", domain.SourceRestore)
		}
	}

	return discovered, nil
}

// Detach takes an owner offline: the feed subscription and ticker stop,
// in-flight focus writes are not aborted.
func (s *Service) Detach(ownerID uuid.UUID) {
	s.mu.Lock()
	att, ok := s.attachments[ownerID]
	if ok {
		delete(s.attachments, ownerID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	metrics.AttachedOwners.Dec()
	s.stopTicker(att)
	if att.stopFeed != nil {
		att.stopFeed()
	}
	att.cancel()
}

// StartSession starts a new workout from a program for an attached owner.
func (s *Service) StartSession(ctx context.Context, ownerID uuid.UUID, program domain.Program) (*domain.Session, error) {
	att, err := s.attachment(ownerID)
	if err != nil {
		return nil, err
	}

	sess, err := s.manager.Start(ctx, ownerID, program)
	if err != nil {
		return nil, err
	}

	att.mu.Lock()
	att.current = sess
	att.elapsed = 0
	att.mu.Unlock()

	s.refreshIndex(ctx, att, sess.ID)
	s.restartTicker(att)
	if sess.LastFocusedExerciseRef != nil {
		att.machine.SetFocus(sess.LastFocusedExerciseRef, "", domain.SourceRestore)
	}
	s.pushState(att)

	return sess, nil
}

// EndSession completes or discards the owner's active session. Lifecycle
// failures propagate so the UI can report them.
func (s *Service) EndSession(ctx context.Context, ownerID uuid.UUID) (domain.EndResult, error) {
	att, err := s.attachment(ownerID)
	if err != nil {
		return domain.EndResult{}, err
	}

	att.mu.Lock()
	cur := att.current
	elapsed := att.elapsed
	att.mu.Unlock()
	if cur == nil {
		return domain.EndResult{}, domain.ErrNoActiveSession
	}

	res, err := s.manager.End(ctx, cur, elapsed)
	if err != nil {
		return domain.EndResult{}, err
	}

	att.mu.Lock()
	att.current = nil
	att.elapsed = 0
	att.mu.Unlock()

	s.stopTicker(att)
	att.machine.Reset()

	return res, nil
}

// SetFocus routes a focus-change request into the owner's state machine.
func (s *Service) SetFocus(ownerID uuid.UUID, ref *uuid.UUID, section domain.Section, source domain.FocusSource) error {
	att, err := s.attachment(ownerID)
	if err != nil {
		return err
	}
	att.machine.SetFocus(ref, section, source)
	return nil
}

// SetAnimationLocked toggles the owner's animation lock.
func (s *Service) SetAnimationLocked(ownerID uuid.UUID, locked bool) error {
	att, err := s.attachment(ownerID)
	if err != nil {
		return err
	}
	att.machine.SetLocked(locked)
	return nil
}

// State returns the owner's current observable state.
func (s *Service) State(ownerID uuid.UUID) (StateSnapshot, error) {
	att, err := s.attachment(ownerID)
	if err != nil {
		return StateSnapshot{}, err
	}
	return s.snapshot(att), nil
}

// Shutdown detaches every owner and waits for background work.
func (s *Service) Shutdown() {
	s.mu.Lock()
	owners := make([]uuid.UUID, 0, len(s.attachments))
	for id := range s.attachments {
		owners = append(owners, id)
	}
	s.mu.Unlock()

	for _, id := range owners {
		s.Detach(id)
	}
	s.manager.Wait()
}

func (s *Service) attachment(ownerID uuid.UUID) (*attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	att, ok := s.attachments[ownerID]
	if !ok {
		return nil, domain.ErrNotAttached
	}
	return att, nil
}

// writeFunc builds the backing-store write for the owner's focus queue.
func (s *Service) writeFunc(att *attachment) focus.WriteFunc {
	return func(ctx context.Context, ref uuid.UUID) error {
		att.mu.Lock()
		cur := att.current
		att.mu.Unlock()
		if cur == nil {
			return domain.ErrNoActiveSession
		}
		return s.manager.UpdateLastFocused(ctx, cur, ref)
	}
}

// handleEvent routes one change-feed event. Events are full snapshots;
// everything dedupes by comparing against current state before acting, so
// duplicate or out-of-order delivery is harmless.
func (s *Service) handleEvent(att *attachment, ev domain.ChangeEvent) {
	switch ev.Kind {
	case domain.EventDelete:
		att.mu.Lock()
		cur := att.current
		if cur == nil || cur.ID != ev.EntityID {
			att.mu.Unlock()
			return
		}
		att.current = nil
		att.elapsed = 0
		att.mu.Unlock()

		s.stopTicker(att)
		att.machine.Reset()

	case domain.EventInsert, domain.EventUpdate:
		row := ev.Row
		if row == nil {
			return
		}

		att.mu.Lock()
		cur := att.current
		if cur != nil && cur.ID == row.ID {
			prevRef := cur.LastFocusedExerciseRef
			att.current = domain.SessionFromRow(row)
			att.mu.Unlock()

			if !row.IsActive {
				// Ended remotely.
				s.stopTicker(att)
				att.machine.Reset()
				return
			}
			if row.LastFocusedExerciseRef != nil && !refsEqual(prevRef, row.LastFocusedExerciseRef) {
				att.machine.SetFocus(row.LastFocusedExerciseRef, "", domain.SourceSync)
			}
			return
		}

		if !row.IsActive {
			// Snapshot of a session we are not tracking; nothing to do.
			att.mu.Unlock()
			return
		}

		// Another device started (or we learned of) an active session.
		att.current = domain.SessionFromRow(row)
		att.elapsed = 0
		att.mu.Unlock()

		slog.Info("Adopted active session from change feed",
			"owner_id", att.ownerID.String(), "session_id", row.ID.String())
		s.refreshIndex(att.ctx, att, row.ID)
		s.restartTicker(att)
		if row.LastFocusedExerciseRef != nil {
			att.machine.SetFocus(row.LastFocusedExerciseRef, "", domain.SourceSync)
		}
		s.pushState(att)
	}
}

// refreshIndex reloads the session's snapshotted sets into the owner's
// section index and lets the machine retry a pending restoration.
func (s *Service) refreshIndex(ctx context.Context, att *attachment, sessionID uuid.UUID) {
	sets, err := s.sets.ListBySession(ctx, sessionID)
	if err != nil {
		slog.Warn("Failed to load session sets for index", "session_id", sessionID.String(), "error", err)
		return
	}
	att.index.Replace(sets)
	att.machine.OnSectionDataChanged()
}

func (s *Service) restartTicker(att *attachment) {
	s.stopTicker(att)

	att.mu.Lock()
	cur := att.current
	if cur == nil || !cur.IsActive {
		att.mu.Unlock()
		return
	}
	ticker := worksession.NewElapsedTicker(s.clock, s.opts.TickInterval)
	att.ticker = ticker
	start := cur.StartTime
	att.mu.Unlock()

	go ticker.Run(att.ctx, start, func(elapsed int) {
		att.mu.Lock()
		att.elapsed = elapsed
		att.mu.Unlock()
		s.pushState(att)
	})
}

func (s *Service) stopTicker(att *attachment) {
	att.mu.Lock()
	ticker := att.ticker
	att.ticker = nil
	att.mu.Unlock()
	if ticker != nil {
		ticker.Stop()
	}
}

func (s *Service) snapshot(att *attachment) StateSnapshot {
	att.mu.Lock()
	cur := att.current
	elapsed := att.elapsed
	att.mu.Unlock()

	snap := StateSnapshot{
		Focus:          att.machine.Snapshot(),
		ElapsedSeconds: elapsed,
	}
	if cur != nil {
		id := cur.ID
		snap.SessionID = &id
		snap.IsSessionActive = cur.IsActive
	}
	return snap
}

func (s *Service) pushState(att *attachment) {
	s.mu.Lock()
	fn := s.onState
	s.mu.Unlock()
	if fn == nil {
		return
	}
	fn(att.ownerID, s.snapshot(att))
}

func refsEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
