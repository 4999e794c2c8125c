// Package validation owns the stateful human review session over one
// drawing's extraction results: the session lifecycle, the append-only
// edit log with undo/redo, the optimistic-concurrency save path, and
// the checklist gating completion.
//
// Apply, Undo and Redo are synchronous in-memory transitions and never
// touch I/O. Save is the only operation that persists anything; the
// auto-saver runs it off the edit path so a slow or failing store never
// blocks further edits.
package validation

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pidreview/internal/logger"
	"pidreview/pkg/models"
)

// MinUndoDepth is the number of undoable steps a session must retain.
// Older entries lose undo capability but stay in the audit log.
const MinUndoDepth = 20

// Policy holds the organization rules the session enforces.
type Policy struct {
	// RequireFullVerification gates completion on a checklist with zero
	// pending items. When false, completion is always allowed but the
	// counts are still recorded.
	RequireFullVerification bool
}

// Snapshot is the persistent image of a session: entity state plus the
// full edit log, tagged with the version the writer last observed.
type Snapshot struct {
	Session models.ValidationSession
	Symbols []models.DetectedSymbol
	Texts   []models.ExtractedText
	Lines   []models.LineEntity
}

// Saver persists session snapshots. A save carrying a stale version
// must fail with ErrStaleSession rather than overwrite.
type Saver interface {
	SaveSession(ctx context.Context, snap Snapshot) error
}

// Session is the validation session aggregate. All mutation goes
// through Apply/Undo/Redo under the session mutex; readers get copies.
type Session struct {
	mu sync.Mutex

	meta    models.ValidationSession
	symbols map[string]*models.DetectedSymbol
	texts   map[string]*models.ExtractedText
	lines   map[string]*models.LineEntity

	history   []models.EditAction
	cursor    int // next redo slot; history[:cursor] is the undo stack
	undoFloor int // entries below this index are audit-only

	checklist models.ChecklistProgress // recorded at completion
	policy    Policy
	onChange  func() // auto-save trigger, called after every mutation
	log       zerolog.Logger
}

// NewSession creates a pending session over the given drawing state.
func NewSession(drawingID, userID string, symbols []models.DetectedSymbol, texts []models.ExtractedText, lines []models.LineEntity, policy Policy) *Session {
	s := &Session{
		meta: models.ValidationSession{
			ID:        uuid.NewString(),
			DrawingID: drawingID,
			UserID:    userID,
			State:     models.SessionPending,
			CreatedAt: time.Now(),
		},
		symbols: make(map[string]*models.DetectedSymbol, len(symbols)),
		texts:   make(map[string]*models.ExtractedText, len(texts)),
		lines:   make(map[string]*models.LineEntity, len(lines)),
		policy:  policy,
		log:     logger.WithComponent("session"),
	}
	for i := range symbols {
		sym := symbols[i]
		s.symbols[sym.ID] = &sym
	}
	for i := range texts {
		t := texts[i]
		s.texts[t.ID] = &t
	}
	for i := range lines {
		l := lines[i]
		s.lines[l.ID] = &l
	}
	return s
}

// RestoreSession rebuilds a session aggregate from a persisted
// snapshot, including its edit history and undo cursor.
func RestoreSession(snap Snapshot, policy Policy) *Session {
	s := NewSession(snap.Session.DrawingID, snap.Session.UserID, snap.Symbols, snap.Texts, snap.Lines, policy)
	s.meta = snap.Session
	s.history = append([]models.EditAction(nil), snap.Session.EditHistory...)
	s.meta.EditHistory = nil

	s.cursor = snap.Session.UndoCursor
	if s.cursor < 0 || s.cursor > len(s.history) {
		s.cursor = len(s.history)
	}
	s.undoFloor = s.cursor - MinUndoDepth
	if s.undoFloor < 0 {
		s.undoFloor = 0
	}
	return s
}

// SetOnChange registers the auto-save trigger. Must be called before
// the session is opened for editing.
func (s *Session) SetOnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Open transitions the session from pending to in-progress.
func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta.State != models.SessionPending {
		return newSessionError("Open", ErrInvalidTransition, "session is "+string(s.meta.State))
	}
	s.meta.State = models.SessionInProgress
	s.log.Info().Str("session_id", s.meta.ID).Str("drawing_id", s.meta.DrawingID).Msg("Validation session opened")
	return nil
}

// Reopen returns a completed session to in-progress for re-validation.
func (s *Session) Reopen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta.State != models.SessionCompleted {
		return newSessionError("Reopen", ErrInvalidTransition, "session is "+string(s.meta.State))
	}
	s.meta.State = models.SessionInProgress
	s.meta.Version++
	s.log.Info().Str("session_id", s.meta.ID).Msg("Completed session reopened for re-validation")
	return nil
}

// Apply validates and executes one edit action, records it with its
// inverse snapshot, truncates any redo tail, and bumps the version.
func (s *Session) Apply(action models.EditAction) error {
	const op = "Apply"

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.meta.State != models.SessionInProgress {
		return newSessionError(op, ErrInvalidTransition, "session is "+string(s.meta.State))
	}
	if action.EntityID == "" {
		return newSessionError(op, ErrInvalidAction, "missing entity id")
	}

	prev, exists := s.snapshotEntity(action.EntityType, action.EntityID)

	switch action.Type {
	case models.ActionAdd:
		if exists {
			return newEntityError(op, ErrEntityExists, action.EntityID)
		}
		if len(action.NewValue) == 0 {
			return newSessionError(op, ErrInvalidAction, "add action carries no new value")
		}
		if err := s.restoreEntity(action.EntityType, action.EntityID, action.NewValue); err != nil {
			return err
		}

	case models.ActionDelete:
		if !exists {
			return newEntityError(op, ErrEntityNotFound, action.EntityID)
		}
		s.removeEntity(action.EntityType, action.EntityID)
		action.NewValue = nil

	case models.ActionModify:
		if !exists {
			return newEntityError(op, ErrEntityNotFound, action.EntityID)
		}
		if len(action.NewValue) == 0 {
			return newSessionError(op, ErrInvalidAction, "modify action carries no new value")
		}
		if err := s.restoreEntity(action.EntityType, action.EntityID, action.NewValue); err != nil {
			return err
		}

	case models.ActionVerify, models.ActionFlag, models.ActionUnflag:
		if !exists {
			return newEntityError(op, ErrEntityNotFound, action.EntityID)
		}
		s.setStatus(action.EntityType, action.EntityID, statusFor(action.Type))
		next, _ := s.snapshotEntity(action.EntityType, action.EntityID)
		action.NewValue = next

	default:
		return newSessionError(op, ErrInvalidAction, "unknown action type: "+string(action.Type))
	}

	action.ID = uuid.NewString()
	action.PreviousValue = prev
	action.SessionID = s.meta.ID
	action.Seq = s.cursor
	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now()
	}
	if action.UserID == "" {
		action.UserID = s.meta.UserID
	}

	// A new action after undo invalidates the redo tail.
	s.history = append(s.history[:s.cursor], action)
	s.cursor = len(s.history)
	if s.cursor-s.undoFloor > MinUndoDepth {
		s.undoFloor = s.cursor - MinUndoDepth
	}
	s.meta.UndoCursor = s.cursor
	s.meta.Version++

	s.log.Debug().
		Str("session_id", s.meta.ID).
		Str("action", string(action.Type)).
		Str("entity_type", string(action.EntityType)).
		Str("entity_id", action.EntityID).
		Int64("version", s.meta.Version).
		Msg("Edit action applied")

	s.notifyChange()
	return nil
}

// Undo reverts the most recent undoable action. No-op at the bottom of
// the undo window; the action stays in the history so redo remains
// possible.
func (s *Session) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor <= s.undoFloor {
		return false
	}
	entry := s.history[s.cursor-1]
	s.applySnapshot(entry.EntityType, entry.EntityID, entry.PreviousValue)
	s.cursor--
	s.meta.UndoCursor = s.cursor
	s.meta.Version++

	s.log.Debug().
		Str("session_id", s.meta.ID).
		Str("action", string(entry.Type)).
		Str("entity_id", entry.EntityID).
		Msg("Edit action undone")

	s.notifyChange()
	return true
}

// Redo reapplies the next undone action, if any.
func (s *Session) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor >= len(s.history) {
		return false
	}
	entry := s.history[s.cursor]
	s.applySnapshot(entry.EntityType, entry.EntityID, entry.NewValue)
	s.cursor++
	s.meta.UndoCursor = s.cursor
	s.meta.Version++

	s.log.Debug().
		Str("session_id", s.meta.ID).
		Str("action", string(entry.Type)).
		Str("entity_id", entry.EntityID).
		Msg("Edit action redone")

	s.notifyChange()
	return true
}

// Complete transitions the session to completed. When the policy
// requires full verification, any pending checklist item blocks the
// transition with ErrValidationIncomplete.
func (s *Session) Complete() (models.ChecklistProgress, error) {
	const op = "Complete"

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.meta.State != models.SessionInProgress {
		return models.ChecklistProgress{}, newSessionError(op, ErrInvalidTransition, "session is "+string(s.meta.State))
	}

	progress := s.checklistLocked()
	if s.policy.RequireFullVerification && !progress.Complete() {
		return progress, newSessionError(op, ErrValidationIncomplete,
			"checklist has pending items")
	}

	s.checklist = progress
	s.meta.State = models.SessionCompleted
	s.meta.Version++

	s.log.Info().
		Str("session_id", s.meta.ID).
		Int("verified", progress.Overall.Verified).
		Int("flagged", progress.Overall.Flagged).
		Int("pending", progress.Overall.Pending).
		Msg("Validation session completed")

	s.notifyChange()
	return progress, nil
}

// Checklist recomputes verification progress from current entity state.
func (s *Session) Checklist() models.ChecklistProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checklistLocked()
}

// Meta returns a copy of the session head record.
func (s *Session) Meta() models.ValidationSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// Version returns the current optimistic-concurrency token.
func (s *Session) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.Version
}

// Symbol returns a copy of the symbol with the given id.
func (s *Session) Symbol(id string) (models.DetectedSymbol, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sym, ok := s.symbols[id]
	if !ok {
		return models.DetectedSymbol{}, false
	}
	return *sym, true
}

// Text returns a copy of the text token with the given id. A dangling
// weak reference to a deleted symbol reads as unlinked.
func (s *Session) Text(id string) (models.ExtractedText, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.texts[id]
	if !ok {
		return models.ExtractedText{}, false
	}
	out := *t
	if out.LinkedSymbolID != nil {
		if _, live := s.symbols[*out.LinkedSymbolID]; !live {
			out.LinkedSymbolID = nil
		}
	}
	return out, true
}

// SnapshotState captures the session for persistence.
func (s *Session) SnapshotState() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Session: s.meta}
	snap.Session.EditHistory = append([]models.EditAction(nil), s.history...)
	for _, sym := range s.symbols {
		snap.Symbols = append(snap.Symbols, *sym)
	}
	for _, t := range s.texts {
		snap.Texts = append(snap.Texts, *t)
	}
	for _, l := range s.lines {
		snap.Lines = append(snap.Lines, *l)
	}
	return snap
}

// checklistLocked recomputes progress from current entity state.
// Callers hold the mutex.
func (s *Session) checklistLocked() models.ChecklistProgress {
	symbols := make([]models.DetectedSymbol, 0, len(s.symbols))
	for _, sym := range s.symbols {
		symbols = append(symbols, *sym)
	}
	texts := make([]models.ExtractedText, 0, len(s.texts))
	for _, t := range s.texts {
		texts = append(texts, *t)
	}
	lines := make([]models.LineEntity, 0, len(s.lines))
	for _, l := range s.lines {
		lines = append(lines, *l)
	}
	return ComputeChecklist(symbols, texts, lines)
}

func bucketFor(p *models.ChecklistProgress, cat models.Category) *models.ProgressCounts {
	switch cat {
	case models.CategoryEquipment:
		return &p.Equipment
	case models.CategoryInstrument:
		return &p.Instruments
	case models.CategoryValve:
		return &p.Valves
	default:
		return &p.Lines
	}
}

func statusFor(t models.ActionType) models.VerificationStatus {
	switch t {
	case models.ActionVerify:
		return models.StatusVerified
	case models.ActionFlag:
		return models.StatusFlagged
	default:
		return models.StatusPending
	}
}

func (s *Session) notifyChange() {
	if s.onChange != nil {
		s.onChange()
	}
}

// snapshotEntity serializes the current state of an entity, reporting
// whether it exists. A nil snapshot means "absent".
func (s *Session) snapshotEntity(et models.EntityType, id string) (json.RawMessage, bool) {
	var v any
	switch et {
	case models.EntitySymbol:
		sym, ok := s.symbols[id]
		if !ok {
			return nil, false
		}
		v = sym
	case models.EntityText:
		t, ok := s.texts[id]
		if !ok {
			return nil, false
		}
		v = t
	case models.EntityLine:
		l, ok := s.lines[id]
		if !ok {
			return nil, false
		}
		v = l
	default:
		return nil, false
	}
	raw, err := json.Marshal(v)
	if err != nil {
		// Entities are plain data; marshal cannot fail in practice.
		s.log.Error().Err(err).Str("entity_id", id).Msg("Failed to snapshot entity")
		return nil, true
	}
	return raw, true
}

// applySnapshot restores an entity to a recorded snapshot; a nil
// snapshot removes it. Used by undo and redo.
func (s *Session) applySnapshot(et models.EntityType, id string, snap json.RawMessage) {
	if len(snap) == 0 {
		s.removeEntity(et, id)
		return
	}
	if err := s.restoreEntity(et, id, snap); err != nil {
		s.log.Error().Err(err).Str("entity_id", id).Msg("Failed to restore entity snapshot")
	}
}

func (s *Session) restoreEntity(et models.EntityType, id string, raw json.RawMessage) error {
	const op = "restoreEntity"
	switch et {
	case models.EntitySymbol:
		var sym models.DetectedSymbol
		if err := json.Unmarshal(raw, &sym); err != nil {
			return newSessionError(op, ErrInvalidAction, "bad symbol payload: "+err.Error())
		}
		sym.ID = id
		s.symbols[id] = &sym
	case models.EntityText:
		var t models.ExtractedText
		if err := json.Unmarshal(raw, &t); err != nil {
			return newSessionError(op, ErrInvalidAction, "bad text payload: "+err.Error())
		}
		t.ID = id
		s.texts[id] = &t
	case models.EntityLine:
		var l models.LineEntity
		if err := json.Unmarshal(raw, &l); err != nil {
			return newSessionError(op, ErrInvalidAction, "bad line payload: "+err.Error())
		}
		l.ID = id
		s.lines[id] = &l
	default:
		return newSessionError(op, ErrInvalidAction, "unknown entity type: "+string(et))
	}
	return nil
}

func (s *Session) removeEntity(et models.EntityType, id string) {
	switch et {
	case models.EntitySymbol:
		delete(s.symbols, id)
	case models.EntityText:
		delete(s.texts, id)
	case models.EntityLine:
		delete(s.lines, id)
	}
}

func (s *Session) setStatus(et models.EntityType, id string, status models.VerificationStatus) {
	now := time.Now()
	switch et {
	case models.EntitySymbol:
		s.symbols[id].VerificationStatus = status
		s.symbols[id].UpdatedAt = now
	case models.EntityText:
		s.texts[id].VerificationStatus = status
		s.texts[id].UpdatedAt = now
	case models.EntityLine:
		s.lines[id].VerificationStatus = status
		s.lines[id].UpdatedAt = now
	}
}
