package validation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pidreview/pkg/models"
)

type fakeSessionStore struct {
	mu      sync.Mutex
	loadErr error
	snap    *Snapshot
	saves   int
}

func (f *fakeSessionStore) SaveSession(_ context.Context, _ Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	return nil
}

func (f *fakeSessionStore) LoadSession(_ context.Context, _ string) (*Snapshot, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.snap, nil
}

func (f *fakeSessionStore) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

func managerFixtureSymbols() []models.DetectedSymbol {
	return []models.DetectedSymbol{{
		ID:                 "sym-1",
		DrawingID:          "dwg-1",
		SymbolClass:        models.ClassPumpCentrifugal,
		BBox:               models.BBox{X: 100, Y: 150, Width: 60, Height: 80},
		Confidence:         0.95,
		VerificationStatus: models.StatusPending,
	}}
}

func TestManagerOpenCreatesWhenNothingPersisted(t *testing.T) {
	store := &fakeSessionStore{loadErr: ErrSessionNotFound}
	m := NewManager(store, Policy{}, time.Hour)
	defer m.Close()

	session, err := m.Open(context.Background(), "dwg-1", "reviewer-1", managerFixtureSymbols(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.SessionInProgress, session.Meta().State)

	got, ok := m.Get("dwg-1")
	require.True(t, ok)
	assert.Same(t, session, got)
}

func TestManagerOpenPropagatesStoreFailure(t *testing.T) {
	loadErr := errors.New("disk I/O error: database is locked")
	store := &fakeSessionStore{loadErr: loadErr}
	m := NewManager(store, Policy{}, time.Hour)
	defer m.Close()

	// A store that cannot answer is not the same as a store with no
	// session: starting fresh here would shadow the persisted history.
	session, err := m.Open(context.Background(), "dwg-1", "reviewer-1", managerFixtureSymbols(), nil, nil)
	require.ErrorIs(t, err, loadErr)
	assert.Nil(t, session)

	_, ok := m.Get("dwg-1")
	assert.False(t, ok)
}

func TestManagerOpenRejectsCorruptHistory(t *testing.T) {
	store := &fakeSessionStore{loadErr: newSessionError("LoadSession", ErrCorruptHistory, "edit log gap at seq 3")}
	m := NewManager(store, Policy{}, time.Hour)
	defer m.Close()

	_, err := m.Open(context.Background(), "dwg-1", "reviewer-1", managerFixtureSymbols(), nil, nil)
	assert.ErrorIs(t, err, ErrCorruptHistory)
}

func TestManagerOpenResumesPersistedSession(t *testing.T) {
	persisted := NewSession("dwg-1", "reviewer-1", managerFixtureSymbols(), nil, nil, Policy{})
	require.NoError(t, persisted.Open())
	require.NoError(t, persisted.Apply(models.EditAction{
		Type: models.ActionVerify, EntityType: models.EntitySymbol, EntityID: "sym-1",
	}))
	snap := persisted.SnapshotState()

	store := &fakeSessionStore{snap: &snap}
	m := NewManager(store, Policy{}, time.Hour)
	defer m.Close()

	session, err := m.Open(context.Background(), "dwg-1", "other-reviewer", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, persisted.Meta().ID, session.Meta().ID)
	sym, ok := session.Symbol("sym-1")
	require.True(t, ok)
	assert.Equal(t, models.StatusVerified, sym.VerificationStatus)
}

func TestManagerCloseWaitsForFinalSave(t *testing.T) {
	store := &fakeSessionStore{loadErr: ErrSessionNotFound}
	m := NewManager(store, Policy{}, time.Hour)

	_, err := m.Open(context.Background(), "dwg-1", "reviewer-1", managerFixtureSymbols(), nil, nil)
	require.NoError(t, err)

	// Close must not return before the auto-saver has flushed.
	m.Close()
	assert.GreaterOrEqual(t, store.saveCount(), 1)
}
