package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/clatprep/clat-prep-api/internal/models"
)

const doubtColumns = `id, title, description, subject, type, priority, difficulty_level, tags, attachments, status, student_id, assigned_educator_id, ai_assisted, estimated_time_minutes, created_at, updated_at, resolved_at, closed_at`

// DoubtRepository manages persistence for doubts.
type DoubtRepository struct {
	db *sqlx.DB
}

// NewDoubtRepository constructs a new repository.
func NewDoubtRepository(db *sqlx.DB) *DoubtRepository {
	return &DoubtRepository{db: db}
}

// List returns doubts per provided filter, ordered by created_at descending.
func (r *DoubtRepository) List(ctx context.Context, filter models.DoubtFilter) ([]models.Doubt, int, error) {
	base := "FROM doubts"
	where := []string{"1=1"}
	args := []interface{}{}

	if filter.ScopeStudentID != "" {
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.ScopeStudentID)
	}
	if filter.ScopeEducatorID != "" {
		where = append(where, fmt.Sprintf("(assigned_educator_id = $%d OR EXISTS (SELECT 1 FROM doubt_responses dr WHERE dr.doubt_id = doubts.id AND dr.author_id = $%d))", len(args)+1, len(args)+1))
		args = append(args, filter.ScopeEducatorID)
	}
	if filter.ScopeStudentIDs != nil {
		where = append(where, fmt.Sprintf("student_id = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(filter.ScopeStudentIDs))
	}
	if filter.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(*filter.Status))
	}
	if filter.Subject != "" {
		where = append(where, fmt.Sprintf("subject ILIKE $%d", len(args)+1))
		args = append(args, filter.Subject)
	}
	if filter.Priority != nil {
		where = append(where, fmt.Sprintf("priority = $%d", len(args)+1))
		args = append(args, string(*filter.Priority))
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.EducatorID != "" {
		where = append(where, fmt.Sprintf("assigned_educator_id = $%d", len(args)+1))
		args = append(args, filter.EducatorID)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, pattern)
	}

	whereClause := strings.Join(where, " AND ")
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d", doubtColumns, base, whereClause, size, offset)
	var doubts []models.Doubt
	if err := r.db.SelectContext(ctx, &doubts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list doubts: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count doubts: %w", err)
	}
	return doubts, total, nil
}

// FindByID fetches a single doubt.
func (r *DoubtRepository) FindByID(ctx context.Context, id string) (*models.Doubt, error) {
	query := fmt.Sprintf("SELECT %s FROM doubts WHERE id = $1", doubtColumns)
	var doubt models.Doubt
	if err := r.db.GetContext(ctx, &doubt, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find doubt %s: %w", id, err)
	}
	return &doubt, nil
}

// Create inserts a new doubt.
func (r *DoubtRepository) Create(ctx context.Context, doubt *models.Doubt) error {
	if doubt.ID == "" {
		doubt.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if doubt.CreatedAt.IsZero() {
		doubt.CreatedAt = now
	}
	doubt.UpdatedAt = now
	if doubt.Tags == nil {
		doubt.Tags = pq.StringArray{}
	}
	if doubt.Attachments == nil {
		doubt.Attachments = pq.StringArray{}
	}
	query := `INSERT INTO doubts (id, title, description, subject, type, priority, difficulty_level, tags, attachments, status, student_id, assigned_educator_id, ai_assisted, estimated_time_minutes, created_at, updated_at)
VALUES (:id, :title, :description, :subject, :type, :priority, :difficulty_level, :tags, :attachments, :status, :student_id, :assigned_educator_id, :ai_assisted, :estimated_time_minutes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doubt); err != nil {
		return fmt.Errorf("create doubt: %w", err)
	}
	return nil
}

// Update persists general-field changes (priority, tags, attachments,
// estimated time). Status and assignment go through the conditional updates
// below.
func (r *DoubtRepository) Update(ctx context.Context, doubt *models.Doubt) error {
	doubt.UpdatedAt = time.Now().UTC()
	query := `UPDATE doubts SET priority = :priority, tags = :tags, attachments = :attachments, estimated_time_minutes = :estimated_time_minutes, updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, doubt); err != nil {
		return fmt.Errorf("update doubt: %w", err)
	}
	return nil
}

// TransitionStatus applies a compare-and-set status change: the update only
// lands when the current status is one of the expected prior states. Returns
// false when the guard did not match (lost race or illegal transition).
func (r *DoubtRepository) TransitionStatus(ctx context.Context, id string, from []models.DoubtStatus, to models.DoubtStatus) (bool, error) {
	now := time.Now().UTC()
	prior := make([]string, len(from))
	for i, s := range from {
		prior[i] = string(s)
	}

	set := []string{"status = $1", "updated_at = $2"}
	args := []interface{}{string(to), now}
	switch to {
	case models.DoubtStatusResolved:
		set = append(set, fmt.Sprintf("resolved_at = $%d", len(args)+1))
		args = append(args, now)
	case models.DoubtStatusClosed:
		set = append(set, fmt.Sprintf("closed_at = $%d", len(args)+1))
		args = append(args, now)
	}

	query := fmt.Sprintf("UPDATE doubts SET %s WHERE id = $%d AND status = ANY($%d)",
		strings.Join(set, ", "), len(args)+1, len(args)+2)
	args = append(args, id, pq.Array(prior))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition doubt %s to %s: %w", id, to, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition doubt %s rows affected: %w", id, err)
	}
	return affected > 0, nil
}

// AssignEducator sets the assignee and moves open -> assigned atomically.
// Returns false when the doubt was already assigned or has moved on.
func (r *DoubtRepository) AssignEducator(ctx context.Context, doubtID, educatorID string) (bool, error) {
	query := `UPDATE doubts SET assigned_educator_id = $1, status = $2, updated_at = $3
WHERE id = $4 AND status = $5 AND assigned_educator_id IS NULL`
	res, err := r.db.ExecContext(ctx, query, educatorID, string(models.DoubtStatusAssigned), time.Now().UTC(), doubtID, string(models.DoubtStatusOpen))
	if err != nil {
		return false, fmt.Errorf("assign educator to doubt %s: %w", doubtID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("assign educator rows affected: %w", err)
	}
	return affected > 0, nil
}

// ReassignEducator overrides the assignee without touching status. Staff-only
// at the policy layer.
func (r *DoubtRepository) ReassignEducator(ctx context.Context, doubtID, educatorID string) error {
	query := `UPDATE doubts SET assigned_educator_id = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, educatorID, time.Now().UTC(), doubtID); err != nil {
		return fmt.Errorf("reassign educator on doubt %s: %w", doubtID, err)
	}
	return nil
}

// MarkAIAssisted flags the doubt as having an attached AI response.
func (r *DoubtRepository) MarkAIAssisted(ctx context.Context, doubtID string) error {
	query := `UPDATE doubts SET ai_assisted = TRUE, updated_at = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), doubtID); err != nil {
		return fmt.Errorf("mark doubt %s ai assisted: %w", doubtID, err)
	}
	return nil
}
