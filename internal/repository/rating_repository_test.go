package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clatprep/clat-prep-api/internal/models"
)

func TestRatingUpsertUsesConflictTarget(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRatingRepository(db)

	mock.ExpectExec("(?s)INSERT INTO doubt_ratings .*ON CONFLICT \\(doubt_id, student_id\\) DO UPDATE SET").
		WillReturnResult(sqlmock.NewResult(1, 1))

	rating := &models.DoubtRating{DoubtID: "doubt-1", StudentID: "stu-1", Rating: 4}
	require.NoError(t, repo.Upsert(context.Background(), rating))
	assert.NotEmpty(t, rating.ID)
	assert.False(t, rating.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRatingFindByDoubtAndStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRatingRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "doubt_id", "student_id", "rating", "feedback", "response_quality_rating", "response_speed_rating", "educator_rating", "created_at", "updated_at"}).
		AddRow("rating-1", "doubt-1", "stu-1", 5, "great", nil, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, doubt_id, student_id, rating, feedback, response_quality_rating, response_speed_rating, educator_rating, created_at, updated_at FROM doubt_ratings WHERE doubt_id = $1 AND student_id = $2")).
		WithArgs("doubt-1", "stu-1").
		WillReturnRows(rows)

	rating, err := repo.FindByDoubtAndStudent(context.Background(), "doubt-1", "stu-1")
	require.NoError(t, err)
	require.NotNil(t, rating)
	assert.Equal(t, 5, rating.Rating)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRatingFindMissingReturnsNil(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRatingRepository(db)

	mock.ExpectQuery("SELECT .* FROM doubt_ratings").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rating, err := repo.FindByDoubtAndStudent(context.Background(), "doubt-1", "stu-1")
	require.NoError(t, err, "absence of a rating is not an error")
	assert.Nil(t, rating)
	assert.NoError(t, mock.ExpectationsWereMet())
}
