package validation

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"pidreview/internal/logger"
	"pidreview/pkg/models"
)

// Auto-save retry tuning. Retries back off exponentially and give up
// after maxSaveAttempts; the append-only edit log stays in memory, so a
// later trigger retries from the full current state.
const (
	saveBackoffBase = time.Second
	maxSaveAttempts = 3
)

// SaveWarning is the non-fatal outcome of a failed auto-save attempt,
// surfaced to callers without blocking edits.
type SaveWarning struct {
	SessionID string
	Attempts  int
	Err       error
	At        time.Time
}

// AutoSaver persists a session after every accepted edit and on a fixed
// interval while the session is in progress. Saves run on the saver's
// own goroutine; a failed save is retried with backoff and reported as
// a warning, never as a blocked edit.
type AutoSaver struct {
	session  *Session
	store    Saver
	interval time.Duration

	trigger  chan struct{}
	warnings chan SaveWarning
	log      zerolog.Logger
}

// NewAutoSaver wires an auto-saver to a session and registers itself as
// the session's change trigger.
func NewAutoSaver(session *Session, store Saver, interval time.Duration) *AutoSaver {
	a := &AutoSaver{
		session:  session,
		store:    store,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		warnings: make(chan SaveWarning, 16),
		log:      logger.WithComponent("autosave"),
	}
	session.SetOnChange(a.Trigger)
	return a
}

// Trigger requests a save without blocking. Coalesces with any save
// request already queued.
func (a *AutoSaver) Trigger() {
	select {
	case a.trigger <- struct{}{}:
	default:
	}
}

// Warnings exposes non-fatal save failures to the caller.
func (a *AutoSaver) Warnings() <-chan SaveWarning {
	return a.warnings
}

// Run drives the auto-save loop until the context is cancelled. A final
// save is attempted on shutdown so an orderly stop loses nothing.
func (a *AutoSaver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.save(context.Background())
			return
		case <-a.trigger:
			a.save(ctx)
		case <-ticker.C:
			if a.session.Meta().State == models.SessionInProgress {
				a.save(ctx)
			}
		}
	}
}

// save persists the current snapshot with bounded backoff retry. Stale
// version conflicts are not retried: the in-memory session has moved on
// and the next trigger will save the newer state.
func (a *AutoSaver) save(ctx context.Context) {
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		attempts = attempt
		snap := a.session.SnapshotState()
		err := a.store.SaveSession(ctx, snap)
		if err == nil {
			a.log.Debug().
				Str("session_id", snap.Session.ID).
				Int64("version", snap.Session.Version).
				Msg("Session auto-saved")
			return
		}
		lastErr = err
		if errors.Is(err, ErrStaleSession) || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(saveBackoffBase << (attempt - 1)):
		}
	}

	warning := SaveWarning{
		SessionID: a.session.Meta().ID,
		Attempts:  attempts,
		Err:       lastErr,
		At:        time.Now(),
	}
	a.log.Warn().
		Err(lastErr).
		Str("session_id", warning.SessionID).
		Msg("Auto-save failed; edits continue to accumulate in memory")
	select {
	case a.warnings <- warning:
	default:
	}
}
