package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/clatprep/clat-prep-api/internal/models"
)

// SpecializationRepository reads educator specializations for auto-assignment.
// This subsystem never mutates them.
type SpecializationRepository struct {
	db *sqlx.DB
}

// NewSpecializationRepository constructs a new repository.
func NewSpecializationRepository(db *sqlx.DB) *SpecializationRepository {
	return &SpecializationRepository{db: db}
}

// RankEducators scores active educators for a subject: specialization match
// weighted by proficiency, penalised by current open assigned-doubt load and
// boosted by recent responses. Results are best candidate first.
func (r *SpecializationRepository) RankEducators(ctx context.Context, subject string, limit int) ([]models.EducatorCandidate, error) {
	if limit <= 0 {
		limit = 5
	}
	query := fmt.Sprintf(`SELECT es.educator_id,
    es.proficiency_level,
    COALESCE(load.open_count, 0) AS open_doubt_count,
    es.proficiency_level * 2 + COALESCE(recent.response_count, 0) - COALESCE(load.open_count, 0) AS score
FROM educator_specializations es
LEFT JOIN (
    SELECT assigned_educator_id, COUNT(*) AS open_count
    FROM doubts
    WHERE status IN ('assigned', 'in_progress') AND assigned_educator_id IS NOT NULL
    GROUP BY assigned_educator_id
) load ON load.assigned_educator_id = es.educator_id
LEFT JOIN (
    SELECT author_id, COUNT(*) AS response_count
    FROM doubt_responses
    WHERE created_at > NOW() - INTERVAL '7 days' AND author_type = 'educator'
    GROUP BY author_id
) recent ON recent.author_id = es.educator_id
WHERE es.is_active = TRUE AND es.subject ILIKE $1
ORDER BY score DESC, es.proficiency_level DESC, open_doubt_count ASC
LIMIT %d`, limit)

	var candidates []models.EducatorCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, subject); err != nil {
		return nil, fmt.Errorf("rank educators for subject %q: %w", subject, err)
	}
	return candidates, nil
}
