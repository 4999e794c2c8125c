package validation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pidreview/internal/logger"
	"pidreview/pkg/models"
)

// SessionStore is the persistence surface the manager needs: save
// snapshots (with the stale-version guard) and load them back.
// LoadSession reports a missing session with ErrSessionNotFound.
type SessionStore interface {
	Saver
	LoadSession(ctx context.Context, drawingID string) (*Snapshot, error)
}

// Manager owns the live validation sessions, one per drawing, each with
// its own auto-saver goroutine.
type Manager struct {
	store    SessionStore
	policy   Policy
	interval time.Duration
	log      zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*managedSession
}

type managedSession struct {
	session *Session
	saver   *AutoSaver
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewManager creates a session manager. interval is the auto-save
// period for every managed session.
func NewManager(store SessionStore, policy Policy, interval time.Duration) *Manager {
	return &Manager{
		store:    store,
		policy:   policy,
		interval: interval,
		log:      logger.WithComponent("session-manager"),
		sessions: make(map[string]*managedSession),
	}
}

// Open returns the live session for a drawing, resuming a persisted one
// or creating a fresh session over the given entity state. A completed
// persisted session is reopened for re-validation.
func (m *Manager) Open(ctx context.Context, drawingID, userID string, symbols []models.DetectedSymbol, texts []models.ExtractedText, lines []models.LineEntity) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if managed, ok := m.sessions[drawingID]; ok {
		sess := managed.session
		if sess.Meta().State == models.SessionCompleted {
			if err := sess.Reopen(); err != nil {
				return nil, err
			}
		}
		return sess, nil
	}

	var session *Session
	snap, err := m.store.LoadSession(ctx, drawingID)
	switch {
	case err == nil:
		session = RestoreSession(*snap, m.policy)
		if session.Meta().State == models.SessionCompleted {
			if err := session.Reopen(); err != nil {
				return nil, err
			}
		} else if session.Meta().State == models.SessionPending {
			if err := session.Open(); err != nil {
				return nil, err
			}
		}
		m.log.Info().Str("drawing_id", drawingID).Str("session_id", session.Meta().ID).Msg("Resumed persisted validation session")
	case errors.Is(err, ErrSessionNotFound):
		session = NewSession(drawingID, userID, symbols, texts, lines, m.policy)
		if err := session.Open(); err != nil {
			return nil, err
		}
		m.log.Info().Str("drawing_id", drawingID).Str("session_id", session.Meta().ID).Msg("Created new validation session")
	default:
		// Shadowing a persisted session that merely failed to load would
		// leave the reviewer editing state that can never save past the
		// stored row. Corrupt history is fatal for the same reason.
		return nil, err
	}

	saver := NewAutoSaver(session, m.store, m.interval)
	saverCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		saver.Run(saverCtx)
		close(done)
	}()

	m.sessions[drawingID] = &managedSession{
		session: session,
		saver:   saver,
		cancel:  cancel,
		done:    done,
	}
	return session, nil
}

// Get returns the live session for a drawing, if any.
func (m *Manager) Get(drawingID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	managed, ok := m.sessions[drawingID]
	if !ok {
		return nil, false
	}
	return managed.session, true
}

// FindSymbol locates the live session holding a symbol id. Used by the
// symbol-addressed API endpoints.
func (m *Manager) FindSymbol(symbolID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, managed := range m.sessions {
		if _, ok := managed.session.Symbol(symbolID); ok {
			return managed.session, true
		}
	}
	return nil, false
}

// Close stops every auto-saver and waits until each has performed its
// final save, so an orderly shutdown loses nothing.
func (m *Manager) Close() {
	m.mu.Lock()
	stopped := make([]*managedSession, 0, len(m.sessions))
	for drawingID, managed := range m.sessions {
		managed.cancel()
		stopped = append(stopped, managed)
		delete(m.sessions, drawingID)
	}
	m.mu.Unlock()

	for _, managed := range stopped {
		<-managed.done
	}
}
