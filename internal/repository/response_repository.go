package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/clatprep/clat-prep-api/internal/models"
)

const responseColumns = `id, doubt_id, author_id, author_type, content, attachments, parent_response_id, ai_generated, ai_model, ai_confidence_score, created_at`

// ResponseRepository manages persistence for doubt responses.
type ResponseRepository struct {
	db *sqlx.DB
}

// NewResponseRepository constructs a new repository.
func NewResponseRepository(db *sqlx.DB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

// Create inserts a new response. Responses are immutable; there is no update.
func (r *ResponseRepository) Create(ctx context.Context, resp *models.DoubtResponse) error {
	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = time.Now().UTC()
	}
	if resp.Attachments == nil {
		resp.Attachments = pq.StringArray{}
	}
	query := `INSERT INTO doubt_responses (id, doubt_id, author_id, author_type, content, attachments, parent_response_id, ai_generated, ai_model, ai_confidence_score, created_at)
VALUES (:id, :doubt_id, :author_id, :author_type, :content, :attachments, :parent_response_id, :ai_generated, :ai_model, :ai_confidence_score, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, resp); err != nil {
		return fmt.Errorf("create doubt response: %w", err)
	}
	return nil
}

// ListByDoubt returns the full thread ordered by creation time ascending,
// with the insertion id breaking timestamp ties.
func (r *ResponseRepository) ListByDoubt(ctx context.Context, doubtID string) ([]models.DoubtResponse, error) {
	query := fmt.Sprintf("SELECT %s FROM doubt_responses WHERE doubt_id = $1 ORDER BY created_at ASC, id ASC", responseColumns)
	var responses []models.DoubtResponse
	if err := r.db.SelectContext(ctx, &responses, query, doubtID); err != nil {
		return nil, fmt.Errorf("list responses for doubt %s: %w", doubtID, err)
	}
	return responses, nil
}

// ExistsByID reports whether a response id belongs to the given doubt. Used
// to validate threaded reply parents.
func (r *ResponseRepository) ExistsByID(ctx context.Context, doubtID, responseID string) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one, "SELECT 1 FROM doubt_responses WHERE id = $1 AND doubt_id = $2 LIMIT 1", responseID, doubtID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check response %s: %w", responseID, err)
	}
	return one == 1, nil
}
