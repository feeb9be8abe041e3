package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clatprep/clat-prep-api/internal/models"
	"github.com/clatprep/clat-prep-api/pkg/response"
)

type userService interface {
	Profile(ctx context.Context, claims *models.JWTClaims) (*models.UserInfo, error)
}

// UserHandler exposes the caller's own profile.
type UserHandler struct {
	users userService
}

// NewUserHandler constructs UserHandler.
func NewUserHandler(users userService) *UserHandler {
	return &UserHandler{users: users}
}

// Me godoc
// @Summary Get the authenticated caller's profile
// @Tags Users
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me [get]
func (h *UserHandler) Me(c *gin.Context) {
	info, err := h.users.Profile(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, info, nil)
}
