package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clatprep/clat-prep-api/internal/models"
	appErrors "github.com/clatprep/clat-prep-api/pkg/errors"
)

func newTestAuthService(secret string) *AuthService {
	return NewAuthService(zap.NewNop(), AuthConfig{
		AccessTokenSecret: secret,
		AccessTokenExpiry: time.Minute,
		Issuer:            "clat-prep-api",
	})
}

func TestIssueAndValidateToken(t *testing.T) {
	svc := newTestAuthService("test-secret")
	user := &models.User{ID: "stu-1", Email: "a@b.c", FullName: "A Student", Role: models.RoleStudent}

	token, expiresAt, err := svc.IssueToken(user)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, "a@b.c", claims.Email)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	issuer := newTestAuthService("secret-one")
	verifier := newTestAuthService("secret-two")
	token, _, err := issuer.IssueToken(&models.User{ID: "stu-1", Role: models.RoleStudent})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenExpired(t *testing.T) {
	svc := newTestAuthService("test-secret")
	claims := &models.JWTClaims{
		UserID: "stu-1",
		Role:   models.RoleStudent,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(signed)
	require.Error(t, err)
}

func TestValidateTokenWrongAlgorithm(t *testing.T) {
	svc := newTestAuthService("test-secret")
	token := jwt.NewWithClaims(jwt.SigningMethodNone, &models.JWTClaims{UserID: "stu-1"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.ValidateToken(signed)
	require.Error(t, err)
}

func TestValidateTokenGarbage(t *testing.T) {
	svc := newTestAuthService("test-secret")
	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
}
