package models

import (
	"encoding/json"
	"time"
)

// ActionType is the kind of edit a user performed.
type ActionType string

const (
	ActionAdd    ActionType = "add"
	ActionDelete ActionType = "delete"
	ActionModify ActionType = "modify"
	ActionVerify ActionType = "verify"
	ActionFlag   ActionType = "flag"
	ActionUnflag ActionType = "unflag"
)

// EntityType names the kind of record an edit action targets.
type EntityType string

const (
	EntitySymbol EntityType = "symbol"
	EntityText   EntityType = "text"
	EntityLine   EntityType = "line"
)

// EditAction is one immutable entry of a session's edit log and the unit
// of undo/redo. PreviousValue and NewValue hold JSON snapshots of the
// target entity before and after the action.
type EditAction struct {
	ID            string          `json:"id" gorm:"primaryKey"`
	SessionID     string          `json:"session_id" gorm:"index"`
	Seq           int             `json:"seq" gorm:"index"`
	Type          ActionType      `json:"type"`
	EntityType    EntityType      `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	PreviousValue json.RawMessage `json:"previous_value,omitempty" gorm:"type:text"`
	NewValue      json.RawMessage `json:"new_value,omitempty" gorm:"type:text"`
	Timestamp     time.Time       `json:"timestamp"`
	UserID        string          `json:"user_id"`
}

// SessionState is the lifecycle state of a validation session.
type SessionState string

const (
	SessionPending    SessionState = "pending"
	SessionInProgress SessionState = "in_progress"
	SessionCompleted  SessionState = "completed"
)

// ValidationSession is the persistent head of a review session over one
// drawing. Version is the optimistic-concurrency token: every accepted
// mutation increments it, and a save carrying a stale version is
// rejected rather than merged.
type ValidationSession struct {
	ID          string       `json:"id" gorm:"primaryKey"`
	DrawingID   string       `json:"drawing_id" gorm:"uniqueIndex"`
	UserID      string       `json:"user_id"`
	State       SessionState `json:"state"`
	Version     int64        `json:"version"`
	UndoCursor  int          `json:"undo_cursor"`
	LastSavedAt time.Time    `json:"last_saved_at"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`

	EditHistory []EditAction `json:"edit_history,omitempty" gorm:"foreignKey:SessionID;references:ID"`
}

// ProgressCounts is one row of checklist progress.
type ProgressCounts struct {
	Total    int `json:"total"`
	Verified int `json:"verified"`
	Flagged  int `json:"flagged"`
	Pending  int `json:"pending"`
}

// Add folds a single verification status into the counts.
func (p *ProgressCounts) Add(status VerificationStatus) {
	p.Total++
	switch status {
	case StatusVerified:
		p.Verified++
	case StatusFlagged:
		p.Flagged++
	default:
		p.Pending++
	}
}

// ChecklistProgress is the derived verification-progress view gating
// session completion. It is recomputed from entity state on every query
// and never stored.
type ChecklistProgress struct {
	Overall     ProgressCounts `json:"overall"`
	Equipment   ProgressCounts `json:"equipment"`
	Instruments ProgressCounts `json:"instruments"`
	Valves      ProgressCounts `json:"valves"`
	Lines       ProgressCounts `json:"lines"`
}

// Complete reports whether every counted item has been reviewed.
func (c ChecklistProgress) Complete() bool {
	return c.Overall.Pending == 0
}
