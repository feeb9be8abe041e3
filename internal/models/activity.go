package models

import (
	"encoding/json"
	"time"
)

// Activity types recorded for doubt mutations.
const (
	ActivityDoubtCreated   = "doubt_created"
	ActivityDoubtUpdated   = "doubt_updated"
	ActivityStatusChanged  = "status_changed"
	ActivityAutoAssigned   = "auto_assigned"
	ActivityEducatorSet    = "educator_assigned"
	ActivityResponseAdded  = "response_added"
	ActivityDoubtRated     = "doubt_rated"
	ActivityAIResponse     = "ai_response_generated"
)

// DoubtActivityLog is one append-only audit entry for a doubt mutation.
// UserID is nil for automatic actions such as auto-assignment.
type DoubtActivityLog struct {
	ID           string          `db:"id" json:"id"`
	DoubtID      string          `db:"doubt_id" json:"doubt_id"`
	UserID       *string         `db:"user_id" json:"user_id,omitempty"`
	ActivityType string          `db:"activity_type" json:"activity_type"`
	Description  string          `db:"description" json:"description"`
	OldValues    json.RawMessage `db:"old_values" json:"old_values,omitempty"`
	NewValues    json.RawMessage `db:"new_values" json:"new_values,omitempty"`
	Metadata     json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}
