package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// RelationshipRepository answers parent-child link questions. Links are
// managed outside this subsystem; reads only.
type RelationshipRepository struct {
	db *sqlx.DB
}

// NewRelationshipRepository constructs a new repository.
func NewRelationshipRepository(db *sqlx.DB) *RelationshipRepository {
	return &RelationshipRepository{db: db}
}

// HasActiveLink reports whether an active parent-child relationship exists.
func (r *RelationshipRepository) HasActiveLink(ctx context.Context, parentID, studentID string) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one, "SELECT 1 FROM parent_student_links WHERE parent_id = $1 AND student_id = $2 AND is_active = TRUE LIMIT 1", parentID, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check parent link %s -> %s: %w", parentID, studentID, err)
	}
	return one == 1, nil
}

// ListChildren returns the student ids actively linked to a parent. An empty
// slice (no children) is a normal outcome, not an error.
func (r *RelationshipRepository) ListChildren(ctx context.Context, parentID string) ([]string, error) {
	var children []string
	if err := r.db.SelectContext(ctx, &children, "SELECT student_id FROM parent_student_links WHERE parent_id = $1 AND is_active = TRUE", parentID); err != nil {
		return nil, fmt.Errorf("list children for parent %s: %w", parentID, err)
	}
	return children, nil
}
