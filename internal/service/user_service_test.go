package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clatprep/clat-prep-api/internal/models"
	appErrors "github.com/clatprep/clat-prep-api/pkg/errors"
)

type stubUserRepo struct {
	user *models.User
	err  error
}

func (s *stubUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.user, nil
}

func TestProfileReturnsCallerInfo(t *testing.T) {
	svc := NewUserService(&stubUserRepo{user: &models.User{
		ID: "stu-1", Email: "student@example.com", FullName: "A Student", Role: models.RoleStudent, Active: true,
	}}, nil)

	info, err := svc.Profile(context.Background(), &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent})
	require.NoError(t, err)
	assert.Equal(t, "student@example.com", info.Email)
	assert.Equal(t, models.RoleStudent, info.Role)
}

func TestProfileMissingAccountIsUnauthorized(t *testing.T) {
	svc := NewUserService(&stubUserRepo{err: sql.ErrNoRows}, nil)

	_, err := svc.Profile(context.Background(), &models.JWTClaims{UserID: "ghost"})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestProfileInactiveAccountIsUnauthorized(t *testing.T) {
	svc := NewUserService(&stubUserRepo{user: &models.User{ID: "stu-1", Active: false}}, nil)

	_, err := svc.Profile(context.Background(), &models.JWTClaims{UserID: "stu-1"})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestProfileNilClaims(t *testing.T) {
	svc := NewUserService(&stubUserRepo{}, nil)
	_, err := svc.Profile(context.Background(), nil)
	require.Error(t, err)
}
