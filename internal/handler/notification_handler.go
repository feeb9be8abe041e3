package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clatprep/clat-prep-api/internal/models"
	appErrors "github.com/clatprep/clat-prep-api/pkg/errors"
	"github.com/clatprep/clat-prep-api/pkg/response"
)

type notificationService interface {
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]models.DoubtNotification, int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, ids []string, userID string) (int64, error)
}

// NotificationHandler exposes the caller's notification feed.
type NotificationHandler struct {
	notifications notificationService
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(notifications notificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List godoc
// @Summary List the caller's notifications, newest first
// @Tags Notifications
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	items, total, err := h.notifications.ListForUser(c.Request.Context(), claims.UserID, limit, (page-1)*limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, models.NewPagination(page, limit, total))
}

// UnreadCount godoc
// @Summary Count the caller's unread notifications
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/unread-count [get]
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	claims := claimsFromContext(c)
	count, err := h.notifications.UnreadCount(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"unread_count": count}, nil)
}

type markReadRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

// MarkRead godoc
// @Summary Mark the caller's notifications as read
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body markReadRequest true "Notification IDs"
// @Success 200 {object} response.Envelope
// @Router /notifications/mark-read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	updated, err := h.notifications.MarkRead(c.Request.Context(), req.IDs, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": updated}, nil)
}
