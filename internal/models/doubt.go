package models

import (
	"time"

	"github.com/lib/pq"
)

// DoubtType classifies the nature of a student question.
type DoubtType string

const (
	DoubtTypeConcept  DoubtType = "concept"
	DoubtTypeProblem  DoubtType = "problem"
	DoubtTypeHomework DoubtType = "homework"
	DoubtTypeExamPrep DoubtType = "exam_prep"
	DoubtTypeOther    DoubtType = "other"
)

// DoubtPriority orders doubts for educator attention.
type DoubtPriority string

const (
	DoubtPriorityLow    DoubtPriority = "low"
	DoubtPriorityMedium DoubtPriority = "medium"
	DoubtPriorityHigh   DoubtPriority = "high"
	DoubtPriorityUrgent DoubtPriority = "urgent"
)

// DoubtStatus tracks the resolution lifecycle. Transitions only move
// forward: open -> assigned -> in_progress -> resolved -> closed.
type DoubtStatus string

const (
	DoubtStatusOpen       DoubtStatus = "open"
	DoubtStatusAssigned   DoubtStatus = "assigned"
	DoubtStatusInProgress DoubtStatus = "in_progress"
	DoubtStatusResolved   DoubtStatus = "resolved"
	DoubtStatusClosed     DoubtStatus = "closed"
)

// rank orders statuses along the lifecycle.
func (s DoubtStatus) rank() int {
	switch s {
	case DoubtStatusOpen:
		return 0
	case DoubtStatusAssigned:
		return 1
	case DoubtStatusInProgress:
		return 2
	case DoubtStatusResolved:
		return 3
	case DoubtStatusClosed:
		return 4
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving to the target status is a legal
// forward transition. Closed is terminal; resolved may only advance to closed.
func (s DoubtStatus) CanTransitionTo(target DoubtStatus) bool {
	from, to := s.rank(), target.rank()
	if from < 0 || to < 0 {
		return false
	}
	if s == DoubtStatusClosed {
		return false
	}
	if target == DoubtStatusClosed {
		return s == DoubtStatusResolved
	}
	return to > from
}

// Doubt is a single question raised by a student.
type Doubt struct {
	ID                   string         `db:"id" json:"id"`
	Title                string         `db:"title" json:"title"`
	Description          string         `db:"description" json:"description"`
	Subject              string         `db:"subject" json:"subject"`
	Type                 DoubtType      `db:"type" json:"type"`
	Priority             DoubtPriority  `db:"priority" json:"priority"`
	DifficultyLevel      int            `db:"difficulty_level" json:"difficulty_level"`
	Tags                 pq.StringArray `db:"tags" json:"tags"`
	Attachments          pq.StringArray `db:"attachments" json:"attachments"`
	Status               DoubtStatus    `db:"status" json:"status"`
	StudentID            string         `db:"student_id" json:"student_id"`
	AssignedEducatorID   *string        `db:"assigned_educator_id" json:"assigned_educator_id,omitempty"`
	AIAssisted           bool           `db:"ai_assisted" json:"ai_assisted"`
	EstimatedTimeMinutes *int           `db:"estimated_time_minutes" json:"estimated_time_minutes,omitempty"`
	CreatedAt            time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at" json:"updated_at"`
	ResolvedAt           *time.Time     `db:"resolved_at" json:"resolved_at,omitempty"`
	ClosedAt             *time.Time     `db:"closed_at" json:"closed_at,omitempty"`
}

// ResponseAuthorType identifies who wrote a doubt response.
type ResponseAuthorType string

const (
	AuthorTypeStudent          ResponseAuthorType = "student"
	AuthorTypeEducator         ResponseAuthorType = "educator"
	AuthorTypeAdmin            ResponseAuthorType = "admin"
	AuthorTypeOperationManager ResponseAuthorType = "operation_manager"
	AuthorTypeAI               ResponseAuthorType = "ai"
)

// AuthorTypeForRole maps a principal role to the stored author type.
func AuthorTypeForRole(role UserRole) ResponseAuthorType {
	switch role {
	case RoleStudent:
		return AuthorTypeStudent
	case RoleEducator:
		return AuthorTypeEducator
	case RoleAdmin:
		return AuthorTypeAdmin
	case RoleOperationManager:
		return AuthorTypeOperationManager
	default:
		return ResponseAuthorType("")
	}
}

// DoubtResponse is a reply within a doubt thread. Responses are immutable
// once created.
type DoubtResponse struct {
	ID                string             `db:"id" json:"id"`
	DoubtID           string             `db:"doubt_id" json:"doubt_id"`
	AuthorID          *string            `db:"author_id" json:"author_id,omitempty"`
	AuthorType        ResponseAuthorType `db:"author_type" json:"author_type"`
	Content           string             `db:"content" json:"content"`
	Attachments       pq.StringArray     `db:"attachments" json:"attachments"`
	ParentResponseID  *string            `db:"parent_response_id" json:"parent_response_id,omitempty"`
	AIGenerated       bool               `db:"ai_generated" json:"ai_generated"`
	AIModel           *string            `db:"ai_model" json:"ai_model,omitempty"`
	AIConfidenceScore *float64           `db:"ai_confidence_score" json:"ai_confidence_score,omitempty"`
	CreatedAt         time.Time          `db:"created_at" json:"created_at"`
}

// DoubtRating is a student's evaluation of a resolved doubt. At most one
// rating exists per (doubt_id, student_id).
type DoubtRating struct {
	ID                    string    `db:"id" json:"id"`
	DoubtID               string    `db:"doubt_id" json:"doubt_id"`
	StudentID             string    `db:"student_id" json:"student_id"`
	Rating                int       `db:"rating" json:"rating"`
	Feedback              *string   `db:"feedback" json:"feedback,omitempty"`
	ResponseQualityRating *int      `db:"response_quality_rating" json:"response_quality_rating,omitempty"`
	ResponseSpeedRating   *int      `db:"response_speed_rating" json:"response_speed_rating,omitempty"`
	EducatorRating        *int      `db:"educator_rating" json:"educator_rating,omitempty"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

// DoubtDetail bundles a doubt with its thread for detail responses.
type DoubtDetail struct {
	Doubt     Doubt           `json:"doubt"`
	Responses []DoubtResponse `json:"responses"`
	Rating    *DoubtRating    `json:"rating,omitempty"`
}

// DoubtFilter captures list filtering criteria. Visibility scoping fields
// (ScopeStudentID etc.) are set by the access policy, never by the client.
type DoubtFilter struct {
	Status     *DoubtStatus
	Subject    string
	Priority   *DoubtPriority
	StudentID  string
	EducatorID string
	Search     string

	ScopeStudentID  string
	ScopeEducatorID string
	ScopeStudentIDs []string

	Page     int
	PageSize int
}
