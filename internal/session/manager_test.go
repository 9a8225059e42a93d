package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSessionRepo struct {
	getActiveFunc       func(ctx context.Context, ownerID uuid.UUID) (*domain.Session, error)
	insertFunc          func(ctx context.Context, s *domain.Session) error
	deactivateFunc      func(ctx context.Context, ownerID uuid.UUID) error
	setLastFocusedFunc  func(ctx context.Context, sessionID, ref uuid.UUID) error
	completeFunc        func(ctx context.Context, sessionID uuid.UUID, completedAt time.Time, durationSeconds int) error
	deleteFunc          func(ctx context.Context, sessionID uuid.UUID) error
	resolveFocusRefFunc func(ctx context.Context, ref uuid.UUID) (uuid.UUID, error)
}

func (m *mockSessionRepo) GetActiveByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Session, error) {
	if m.getActiveFunc == nil {
		return nil, domain.ErrNoActiveSession
	}
	return m.getActiveFunc(ctx, ownerID)
}

func (m *mockSessionRepo) Insert(ctx context.Context, s *domain.Session) error {
	if m.insertFunc == nil {
		s.ID = uuid.New()
		return nil
	}
	return m.insertFunc(ctx, s)
}

func (m *mockSessionRepo) DeactivateAllForOwner(ctx context.Context, ownerID uuid.UUID) error {
	if m.deactivateFunc == nil {
		return nil
	}
	return m.deactivateFunc(ctx, ownerID)
}

func (m *mockSessionRepo) SetLastFocused(ctx context.Context, sessionID, ref uuid.UUID) error {
	if m.setLastFocusedFunc == nil {
		return nil
	}
	return m.setLastFocusedFunc(ctx, sessionID, ref)
}

func (m *mockSessionRepo) Complete(ctx context.Context, sessionID uuid.UUID, completedAt time.Time, durationSeconds int) error {
	if m.completeFunc == nil {
		return nil
	}
	return m.completeFunc(ctx, sessionID, completedAt, durationSeconds)
}

func (m *mockSessionRepo) Delete(ctx context.Context, sessionID uuid.UUID) error {
	if m.deleteFunc == nil {
		return nil
	}
	return m.deleteFunc(ctx, sessionID)
}

func (m *mockSessionRepo) ResolveFocusRef(ctx context.Context, ref uuid.UUID) (uuid.UUID, error) {
	if m.resolveFocusRefFunc == nil {
		return ref, nil
	}
	return m.resolveFocusRefFunc(ctx, ref)
}

type mockSetRepo struct {
	snapshotFunc       func(ctx context.Context, sessionID uuid.UUID, exercises []domain.ProgramExercise) ([]domain.SessionSet, error)
	listFunc           func(ctx context.Context, sessionID uuid.UUID) ([]domain.SessionSet, error)
	countCompletedFunc func(ctx context.Context, sessionID uuid.UUID) (int, error)
}

func (m *mockSetRepo) SnapshotProgram(ctx context.Context, sessionID uuid.UUID, exercises []domain.ProgramExercise) ([]domain.SessionSet, error) {
	if m.snapshotFunc == nil {
		return nil, nil
	}
	return m.snapshotFunc(ctx, sessionID, exercises)
}

func (m *mockSetRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.SessionSet, error) {
	if m.listFunc == nil {
		return nil, nil
	}
	return m.listFunc(ctx, sessionID)
}

func (m *mockSetRepo) CountCompleted(ctx context.Context, sessionID uuid.UUID) (int, error) {
	if m.countCompletedFunc == nil {
		return 0, nil
	}
	return m.countCompletedFunc(ctx, sessionID)
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
}

func (p *capturingPublisher) Publish(_ context.Context, _ uuid.UUID, event domain.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) kinds() []domain.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]domain.EventKind, 0, len(p.events))
	for _, e := range p.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

type mockImageGenerator struct {
	generateFunc func(ctx context.Context, sessionID uuid.UUID, metrics domain.SessionMetrics) (string, error)
}

func (m *mockImageGenerator) Generate(ctx context.Context, sessionID uuid.UUID, metrics domain.SessionMetrics) (string, error) {
	return m.generateFunc(ctx, sessionID, metrics)
}

func testProgram() domain.Program {
	return domain.Program{
		ID:   uuid.New(),
		Name: "Push Day",
		Exercises: []domain.ProgramExercise{
			{ExerciseID: uuid.New(), Name: "Bench Press", Section: domain.SectionTraining, Position: 0},
			{ExerciseID: uuid.New(), Name: "Arm Circles", Section: domain.SectionWarmup, Position: 0},
			{ExerciseID: uuid.New(), Name: "Stretch", Section: domain.SectionCooldown, Position: 0},
		},
	}
}

func TestDiscoverNoActiveSession(t *testing.T) {
	m := NewManager(&mockSessionRepo{}, &mockSetRepo{}, nil, nil, clockwork.NewFakeClock())

	s, err := m.Discover(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestDiscoverResolvesStoredFocusRef(t *testing.T) {
	ownerID := uuid.New()
	setRef := uuid.New()
	exerciseID := uuid.New()

	sessions := &mockSessionRepo{
		getActiveFunc: func(context.Context, uuid.UUID) (*domain.Session, error) {
			return &domain.Session{ID: uuid.New(), OwnerID: ownerID, IsActive: true, LastFocusedExerciseRef: &setRef}, nil
		},
		resolveFocusRefFunc: func(_ context.Context, ref uuid.UUID) (uuid.UUID, error) {
			assert.Equal(t, setRef, ref)
			return exerciseID, nil
		},
	}
	m := NewManager(sessions, &mockSetRepo{}, nil, nil, clockwork.NewFakeClock())

	s, err := m.Discover(context.Background(), ownerID)
	require.NoError(t, err)
	require.NotNil(t, s.LastFocusedExerciseRef)
	assert.Equal(t, exerciseID, *s.LastFocusedExerciseRef)
}

func TestDiscoverKeepsUnresolvableRef(t *testing.T) {
	staleRef := uuid.New()
	sessions := &mockSessionRepo{
		getActiveFunc: func(context.Context, uuid.UUID) (*domain.Session, error) {
			return &domain.Session{ID: uuid.New(), IsActive: true, LastFocusedExerciseRef: &staleRef}, nil
		},
		resolveFocusRefFunc: func(context.Context, uuid.UUID) (uuid.UUID, error) {
			return uuid.Nil, domain.ErrExerciseNotFound
		},
	}
	m := NewManager(sessions, &mockSetRepo{}, nil, nil, clockwork.NewFakeClock())

	s, err := m.Discover(context.Background(), uuid.New())
	require.NoError(t, err)
	require.NotNil(t, s.LastFocusedExerciseRef)
	assert.Equal(t, staleRef, *s.LastFocusedExerciseRef, "raw ref kept for later restoration")
}

func TestStartFocusesFirstExerciseBySection(t *testing.T) {
	program := testProgram()
	warmupID := program.Exercises[1].ExerciseID

	var focused []uuid.UUID
	sessions := &mockSessionRepo{
		setLastFocusedFunc: func(_ context.Context, _ uuid.UUID, ref uuid.UUID) error {
			focused = append(focused, ref)
			return nil
		},
	}
	publisher := &capturingPublisher{}
	m := NewManager(sessions, &mockSetRepo{}, publisher, nil, clockwork.NewFakeClock())

	s, err := m.Start(context.Background(), uuid.New(), program)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.True(t, s.IsActive)
	require.NotNil(t, s.LastFocusedExerciseRef)
	assert.Equal(t, warmupID, *s.LastFocusedExerciseRef, "warmup outranks training for initial focus")
	assert.Equal(t, []uuid.UUID{warmupID}, focused)
	assert.Equal(t, []domain.EventKind{domain.EventInsert, domain.EventUpdate}, publisher.kinds())
}

func TestStartAdoptsRacingSession(t *testing.T) {
	// Scenario: two devices start simultaneously. The loser of the insert
	// race must end up on the winner's session, not an error.
	ownerID := uuid.New()
	winner := &domain.Session{ID: uuid.New(), OwnerID: ownerID, IsActive: true}

	sessions := &mockSessionRepo{
		insertFunc: func(context.Context, *domain.Session) error {
			return domain.ErrSessionConflict
		},
		getActiveFunc: func(context.Context, uuid.UUID) (*domain.Session, error) {
			return winner, nil
		},
	}
	publisher := &capturingPublisher{}
	m := NewManager(sessions, &mockSetRepo{}, publisher, nil, clockwork.NewFakeClock())

	s, err := m.Start(context.Background(), ownerID, testProgram())
	require.NoError(t, err)
	assert.Equal(t, winner.ID, s.ID)
	assert.Empty(t, publisher.kinds(), "the loser publishes nothing")
}

func TestStartDeactivateFailureIsBestEffort(t *testing.T) {
	sessions := &mockSessionRepo{
		deactivateFunc: func(context.Context, uuid.UUID) error {
			return errors.New("timeout")
		},
	}
	m := NewManager(sessions, &mockSetRepo{}, nil, nil, clockwork.NewFakeClock())

	s, err := m.Start(context.Background(), uuid.New(), testProgram())
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestStartCollapsesConcurrentCallsForOwner(t *testing.T) {
	ownerID := uuid.New()

	var mu sync.Mutex
	inserts := 0
	started := make(chan struct{})
	release := make(chan struct{})

	sessions := &mockSessionRepo{
		insertFunc: func(_ context.Context, s *domain.Session) error {
			mu.Lock()
			inserts++
			first := inserts == 1
			mu.Unlock()
			if first {
				close(started)
				<-release
			}
			s.ID = uuid.New()
			return nil
		},
	}
	m := NewManager(sessions, &mockSetRepo{}, nil, nil, clockwork.NewFakeClock())

	program := testProgram()
	results := make(chan *domain.Session, 2)
	start := func() {
		s, err := m.Start(context.Background(), ownerID, program)
		require.NoError(t, err)
		results <- s
	}

	go start()
	<-started
	// First call is parked inside Insert; the second joins its flight.
	go start()
	time.Sleep(50 * time.Millisecond)
	close(release)

	first := <-results
	second := <-results
	assert.Equal(t, first.ID, second.ID, "concurrent starts share one session")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, inserts)
}

func TestEndWithNoCompletedSetsDiscards(t *testing.T) {
	// Scenario: start a session, complete zero sets, end it. The row is
	// deleted, not kept as an empty workout.
	deleted := false
	sessions := &mockSessionRepo{
		deleteFunc: func(context.Context, uuid.UUID) error {
			deleted = true
			return nil
		},
		completeFunc: func(context.Context, uuid.UUID, time.Time, int) error {
			t.Fatal("discarded session must not be completed")
			return nil
		},
	}
	publisher := &capturingPublisher{}
	m := NewManager(sessions, &mockSetRepo{}, publisher, nil, clockwork.NewFakeClock())

	res, err := m.End(context.Background(), &domain.Session{ID: uuid.New(), IsActive: true}, 42)
	require.NoError(t, err)
	assert.False(t, res.Saved)
	assert.True(t, deleted)
	assert.Equal(t, []domain.EventKind{domain.EventDelete}, publisher.kinds())
}

func TestEndWithCompletedSetsSaves(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var gotDuration int
	sessions := &mockSessionRepo{
		completeFunc: func(_ context.Context, _ uuid.UUID, completedAt time.Time, durationSeconds int) error {
			assert.Equal(t, clock.Now(), completedAt)
			gotDuration = durationSeconds
			return nil
		},
		deleteFunc: func(context.Context, uuid.UUID) error {
			t.Fatal("saved session must not be deleted")
			return nil
		},
	}
	sets := &mockSetRepo{
		countCompletedFunc: func(context.Context, uuid.UUID) (int, error) { return 7, nil },
	}
	publisher := &capturingPublisher{}
	m := NewManager(sessions, sets, publisher, nil, clock)

	s := &domain.Session{ID: uuid.New(), IsActive: true}
	res, err := m.End(context.Background(), s, 1800)
	require.NoError(t, err)
	assert.True(t, res.Saved)
	assert.Equal(t, 1800, gotDuration)
	assert.False(t, s.IsActive)
	require.NotNil(t, s.CompletedAt)
	assert.Equal(t, []domain.EventKind{domain.EventUpdate}, publisher.kinds())
}

func TestEndKicksOffSummaryImage(t *testing.T) {
	sessionID := uuid.New()
	var mu sync.Mutex
	var gotMetrics domain.SessionMetrics

	images := &mockImageGenerator{
		generateFunc: func(_ context.Context, id uuid.UUID, metrics domain.SessionMetrics) (string, error) {
			assert.Equal(t, sessionID, id)
			mu.Lock()
			gotMetrics = metrics
			mu.Unlock()
			return "https://img.example/summary.png", nil
		},
	}
	sets := &mockSetRepo{
		countCompletedFunc: func(context.Context, uuid.UUID) (int, error) { return 3, nil },
	}
	m := NewManager(&mockSessionRepo{}, sets, nil, images, clockwork.NewFakeClock())

	res, err := m.End(context.Background(), &domain.Session{ID: sessionID, IsActive: true}, 900)
	require.NoError(t, err)
	assert.True(t, res.Saved)

	m.Wait()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, domain.SessionMetrics{CompletedSets: 3, DurationSeconds: 900}, gotMetrics)
}

func TestEndSurvivesImageFailure(t *testing.T) {
	images := &mockImageGenerator{
		generateFunc: func(context.Context, uuid.UUID, domain.SessionMetrics) (string, error) {
			return "", errors.New("renderer down")
		},
	}
	sets := &mockSetRepo{
		countCompletedFunc: func(context.Context, uuid.UUID) (int, error) { return 1, nil },
	}
	m := NewManager(&mockSessionRepo{}, sets, nil, images, clockwork.NewFakeClock())

	res, err := m.End(context.Background(), &domain.Session{ID: uuid.New(), IsActive: true}, 60)
	require.NoError(t, err)
	assert.True(t, res.Saved)
	m.Wait()
}

func TestUpdateLastFocusedPublishesNewRef(t *testing.T) {
	ref := uuid.New()
	publisher := &capturingPublisher{}
	m := NewManager(&mockSessionRepo{}, &mockSetRepo{}, publisher, nil, clockwork.NewFakeClock())

	s := &domain.Session{ID: uuid.New(), OwnerID: uuid.New(), IsActive: true}
	require.NoError(t, m.UpdateLastFocused(context.Background(), s, ref))

	require.Len(t, publisher.events, 1)
	event := publisher.events[0]
	assert.Equal(t, domain.EventUpdate, event.Kind)
	require.NotNil(t, event.Row)
	require.NotNil(t, event.Row.LastFocusedExerciseRef)
	assert.Equal(t, ref, *event.Row.LastFocusedExerciseRef)
}
