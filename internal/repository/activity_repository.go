package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clatprep/clat-prep-api/internal/models"
)

// ActivityRepository appends audit entries for doubt mutations. The trail is
// write-only within this subsystem; reporting reads it elsewhere.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs a new repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create appends one activity entry.
func (r *ActivityRepository) Create(ctx context.Context, entry *models.DoubtActivityLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO doubt_activity_logs (id, doubt_id, user_id, activity_type, description, old_values, new_values, metadata, created_at)
VALUES (:id, :doubt_id, :user_id, :activity_type, :description, :old_values, :new_values, :metadata, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create activity log: %w", err)
	}
	return nil
}
