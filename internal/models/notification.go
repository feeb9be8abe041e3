package models

import (
	"encoding/json"
	"time"
)

// NotificationType enumerates the doubt lifecycle events that fan out.
type NotificationType string

const (
	NotificationDoubtCreated    NotificationType = "doubt_created"
	NotificationDoubtAssigned   NotificationType = "doubt_assigned"
	NotificationDoubtInProgress NotificationType = "doubt_in_progress"
	NotificationDoubtResolved   NotificationType = "doubt_resolved"
	NotificationDoubtClosed     NotificationType = "doubt_closed"
	NotificationResponseAdded   NotificationType = "response_added"
	NotificationDoubtRated      NotificationType = "doubt_rated"
	NotificationPriorityChanged NotificationType = "priority_changed"
)

// NotificationPriority orders notifications for display.
type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "low"
	NotificationPriorityNormal NotificationPriority = "normal"
	NotificationPriorityHigh   NotificationPriority = "high"
)

// DoubtNotification is a persisted fan-out record for a single recipient.
type DoubtNotification struct {
	ID        string               `db:"id" json:"id"`
	DoubtID   *string              `db:"doubt_id" json:"doubt_id,omitempty"`
	UserID    string               `db:"user_id" json:"user_id"`
	Type      NotificationType     `db:"notification_type" json:"notification_type"`
	Title     string               `db:"title" json:"title"`
	Message   string               `db:"message" json:"message"`
	Metadata  json.RawMessage      `db:"metadata" json:"metadata,omitempty"`
	Priority  NotificationPriority `db:"priority" json:"priority"`
	IsRead    bool                 `db:"is_read" json:"is_read"`
	ReadAt    *time.Time           `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time            `db:"created_at" json:"created_at"`
}
