package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clatprep/clat-prep-api/internal/models"
)

const ratingColumns = `id, doubt_id, student_id, rating, feedback, response_quality_rating, response_speed_rating, educator_rating, created_at, updated_at`

// RatingRepository manages persistence for doubt ratings.
type RatingRepository struct {
	db *sqlx.DB
}

// NewRatingRepository constructs a new repository.
func NewRatingRepository(db *sqlx.DB) *RatingRepository {
	return &RatingRepository{db: db}
}

// Upsert inserts the rating or, when the student already rated this doubt,
// overwrites the previous values. The (doubt_id, student_id) unique key is
// the arbiter.
func (r *RatingRepository) Upsert(ctx context.Context, rating *models.DoubtRating) error {
	if rating.ID == "" {
		rating.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rating.CreatedAt.IsZero() {
		rating.CreatedAt = now
	}
	rating.UpdatedAt = now
	query := `INSERT INTO doubt_ratings (id, doubt_id, student_id, rating, feedback, response_quality_rating, response_speed_rating, educator_rating, created_at, updated_at)
VALUES (:id, :doubt_id, :student_id, :rating, :feedback, :response_quality_rating, :response_speed_rating, :educator_rating, :created_at, :updated_at)
ON CONFLICT (doubt_id, student_id) DO UPDATE SET
    rating = EXCLUDED.rating,
    feedback = EXCLUDED.feedback,
    response_quality_rating = EXCLUDED.response_quality_rating,
    response_speed_rating = EXCLUDED.response_speed_rating,
    educator_rating = EXCLUDED.educator_rating,
    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, rating); err != nil {
		return fmt.Errorf("upsert doubt rating: %w", err)
	}
	return nil
}

// FindByDoubtAndStudent returns the rating for a doubt by a given student,
// or nil when none exists.
func (r *RatingRepository) FindByDoubtAndStudent(ctx context.Context, doubtID, studentID string) (*models.DoubtRating, error) {
	query := fmt.Sprintf("SELECT %s FROM doubt_ratings WHERE doubt_id = $1 AND student_id = $2", ratingColumns)
	var rating models.DoubtRating
	if err := r.db.GetContext(ctx, &rating, query, doubtID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find rating for doubt %s: %w", doubtID, err)
	}
	return &rating, nil
}
