package focus

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu   sync.Mutex
	refs []uuid.UUID
}

func (w *recordingWriter) EnqueueWrite(ref uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.refs = append(w.refs, ref)
}

func (w *recordingWriter) written() []uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]uuid.UUID(nil), w.refs...)
}

type mapIndex struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*domain.Exercise
}

func newMapIndex(ids ...uuid.UUID) *mapIndex {
	idx := &mapIndex{entries: map[uuid.UUID]*domain.Exercise{}}
	idx.add(ids...)
	return idx
}

func (i *mapIndex) add(ids ...uuid.UUID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, id := range ids {
		i.entries[id] = &domain.Exercise{ID: id, Name: "exercise", Section: domain.SectionTraining}
	}
}

func (i *mapIndex) Resolve(ref uuid.UUID) (*domain.Exercise, domain.Section, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	ex, ok := i.entries[ref]
	if !ok {
		return nil, "", false
	}
	return ex, ex.Section, true
}

func newTestMachine(t *testing.T, ids ...uuid.UUID) (*Machine, *recordingWriter, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	writer := &recordingWriter{}
	m := NewMachine(newMapIndex(ids...), writer, clock, DefaultIdleWindow)
	return m, writer, clock
}

func TestMachineRepeatedFocusWritesOnce(t *testing.T) {
	ref := uuid.New()
	m, writer, _ := newTestMachine(t, ref)

	for i := 0; i < 5; i++ {
		m.SetFocus(&ref, domain.SectionTraining, domain.SourceUser)
	}

	assert.Equal(t, []uuid.UUID{ref}, writer.written())
}

func TestMachineAnimationLockDefersAndReplaysLast(t *testing.T) {
	e1, e2, e3 := uuid.New(), uuid.New(), uuid.New()
	m, writer, _ := newTestMachine(t, e1, e2, e3)

	m.SetLocked(true)
	m.SetFocus(&e1, domain.SectionTraining, domain.SourceUser)
	m.SetFocus(&e2, domain.SectionTraining, domain.SourceUser)
	m.SetFocus(&e3, domain.SectionTraining, domain.SourceUser)

	assert.Nil(t, m.Snapshot().ActiveFocus, "nothing applied while locked")
	assert.Empty(t, writer.written())

	m.SetLocked(false)

	snap := m.Snapshot()
	require.NotNil(t, snap.ActiveFocus)
	assert.Equal(t, e3, snap.ActiveFocus.Ref, "only the latest deferred request replays")
	assert.Equal(t, []uuid.UUID{e3}, writer.written())
}

func TestMachineLockedRepeatOfActiveFocusKeepsPending(t *testing.T) {
	e1, e2 := uuid.New(), uuid.New()
	m, writer, _ := newTestMachine(t, e1, e2)

	m.SetFocus(&e1, domain.SectionTraining, domain.SourceUser)

	m.SetLocked(true)
	m.SetFocus(&e2, domain.SectionTraining, domain.SourceUser)
	// Repeating the active focus must not displace the deferred e2.
	m.SetFocus(&e1, domain.SectionTraining, domain.SourceUser)
	m.SetLocked(false)

	snap := m.Snapshot()
	require.NotNil(t, snap.ActiveFocus)
	assert.Equal(t, e2, snap.ActiveFocus.Ref)
	assert.Equal(t, []uuid.UUID{e1, e2}, writer.written())
}

func TestMachineLockedEchoIsNotDroppedAsDuplicate(t *testing.T) {
	ref := uuid.New()
	m, _, _ := newTestMachine(t, ref)

	m.SetFocus(&ref, domain.SectionTraining, domain.SourceUser)

	m.SetLocked(true)
	// The store acknowledging our own write repeats the active ref but still
	// has to advance the persisted register.
	m.SetFocus(&ref, "", domain.SourceSync)
	m.SetLocked(false)

	snap := m.Snapshot()
	require.NotNil(t, snap.PersistedFocus)
	assert.Equal(t, ref, *snap.PersistedFocus)
}

func TestMachineUnlockWithoutPendingIsQuiet(t *testing.T) {
	m, writer, _ := newTestMachine(t)

	var notified int
	m.SetOnChange(func(Snapshot) { notified++ })

	m.SetLocked(true)
	m.SetLocked(false)

	assert.Zero(t, notified)
	assert.Empty(t, writer.written())
}

func TestMachineRestoreResolvesAfterSectionDataLoads(t *testing.T) {
	ref := uuid.New()
	index := newMapIndex()
	clock := clockwork.NewFakeClock()
	writer := &recordingWriter{}
	m := NewMachine(index, writer, clock, DefaultIdleWindow)

	m.SetFocus(&ref, "", domain.SourceRestore)

	snap := m.Snapshot()
	require.NotNil(t, snap.ActiveFocus)
	assert.False(t, snap.ActiveFocus.Resolved)
	assert.True(t, snap.IsRestoring)

	// Section data arrives without the ref: restoration stays pending.
	m.OnSectionDataChanged()
	assert.True(t, m.Snapshot().IsRestoring)

	index.add(ref)
	m.OnSectionDataChanged()

	snap = m.Snapshot()
	require.NotNil(t, snap.ActiveFocus)
	assert.True(t, snap.ActiveFocus.Resolved)
	assert.False(t, snap.IsRestoring)
	assert.Empty(t, writer.written(), "restore resolution is read-only")
}

func TestMachineSyncRespectsIdleWindow(t *testing.T) {
	local, remote := uuid.New(), uuid.New()
	m, _, clock := newTestMachine(t, local, remote)

	m.SetFocus(&local, domain.SectionTraining, domain.SourceUser)

	clock.Advance(500 * time.Millisecond)
	m.SetFocus(&remote, "", domain.SourceSync)

	snap := m.Snapshot()
	require.NotNil(t, snap.ActiveFocus)
	assert.Equal(t, local, snap.ActiveFocus.Ref)
	require.NotNil(t, snap.PersistedFocus)
	assert.Equal(t, remote, *snap.PersistedFocus)

	clock.Advance(2 * time.Second)
	m.SetFocus(&remote, "", domain.SourceSync)

	snap = m.Snapshot()
	require.NotNil(t, snap.ActiveFocus)
	assert.Equal(t, remote, snap.ActiveFocus.Ref)
}

func TestMachineResetClearsStateAndLock(t *testing.T) {
	ref := uuid.New()
	m, writer, _ := newTestMachine(t, ref)

	m.SetFocus(&ref, domain.SectionTraining, domain.SourceUser)
	m.SetLocked(true)
	m.SetFocus(&ref, domain.SectionTraining, domain.SourceUser)

	m.Reset()

	snap := m.Snapshot()
	assert.Nil(t, snap.ActiveFocus)
	assert.Nil(t, snap.PersistedFocus)
	assert.False(t, snap.IsRestoring)

	// The lock was dropped with the rest of the state.
	other := uuid.New()
	m.SetFocus(&other, domain.SectionTraining, domain.SourceUser)
	assert.Len(t, writer.written(), 2)
}

func TestMachineNotifiesOnChangeOnly(t *testing.T) {
	ref := uuid.New()
	m, _, _ := newTestMachine(t, ref)

	var snaps []Snapshot
	m.SetOnChange(func(s Snapshot) { snaps = append(snaps, s) })

	m.SetFocus(&ref, domain.SectionTraining, domain.SourceUser)
	m.SetFocus(&ref, domain.SectionTraining, domain.SourceUser)

	require.Len(t, snaps, 1)
	require.NotNil(t, snaps[0].ActiveFocus)
	assert.Equal(t, ref, snaps[0].ActiveFocus.Ref)
}
