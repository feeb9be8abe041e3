package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/clatprep/clat-prep-api/internal/models"
	appErrors "github.com/clatprep/clat-prep-api/pkg/errors"
	"github.com/clatprep/clat-prep-api/pkg/response"
)

// RequireRoles blocks callers whose role is not in the allowed set. Resource
// level rules (ownership, assignment, parent links) live in the service
// access policy; this only gates whole route groups.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
