package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/clatprep/clat-prep-api/internal/models"
	"github.com/clatprep/clat-prep-api/internal/service"
	appErrors "github.com/clatprep/clat-prep-api/pkg/errors"
	"github.com/clatprep/clat-prep-api/pkg/response"
)

type doubtService interface {
	Create(ctx context.Context, claims *models.JWTClaims, req service.CreateDoubtRequest) (*models.Doubt, error)
	List(ctx context.Context, claims *models.JWTClaims, req service.ListDoubtsRequest) ([]models.Doubt, *models.Pagination, error)
	Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.DoubtDetail, error)
	Update(ctx context.Context, claims *models.JWTClaims, id string, req service.UpdateDoubtRequest) (*models.Doubt, error)
	AddResponse(ctx context.Context, claims *models.JWTClaims, doubtID string, req service.AddResponseRequest) (*models.DoubtResponse, error)
	Rate(ctx context.Context, claims *models.JWTClaims, doubtID string, req service.RateDoubtRequest) (*models.DoubtRating, error)
}

// DoubtHandler exposes doubt lifecycle endpoints.
type DoubtHandler struct {
	doubts doubtService
}

// NewDoubtHandler constructs DoubtHandler.
func NewDoubtHandler(doubts doubtService) *DoubtHandler {
	return &DoubtHandler{doubts: doubts}
}

// Create godoc
// @Summary Raise a new doubt
// @Tags Doubts
// @Accept json
// @Produce json
// @Param payload body service.CreateDoubtRequest true "Doubt payload"
// @Success 201 {object} response.Envelope
// @Router /doubts [post]
func (h *DoubtHandler) Create(c *gin.Context) {
	var req service.CreateDoubtRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	doubt, err := h.doubts.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doubt)
}

// List godoc
// @Summary List doubts visible to the caller
// @Tags Doubts
// @Produce json
// @Param status query string false "Filter by status"
// @Param subject query string false "Filter by subject"
// @Param priority query string false "Filter by priority"
// @Param student_id query string false "Filter by student (staff and educators)"
// @Param educator_id query string false "Filter by assigned educator (staff and educators)"
// @Param search query string false "Search in title and description"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /doubts [get]
func (h *DoubtHandler) List(c *gin.Context) {
	req := service.ListDoubtsRequest{
		Status:     c.Query("status"),
		Subject:    strings.TrimSpace(c.Query("subject")),
		Priority:   c.Query("priority"),
		StudentID:  c.Query("student_id"),
		EducatorID: c.Query("educator_id"),
		Search:     strings.TrimSpace(c.Query("search")),
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		req.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		req.Limit = limit
	}

	doubts, pagination, err := h.doubts.List(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doubts, pagination)
}

// Get godoc
// @Summary Get doubt detail with responses and rating
// @Tags Doubts
// @Produce json
// @Param id path string true "Doubt ID"
// @Success 200 {object} response.Envelope
// @Router /doubts/{id} [get]
func (h *DoubtHandler) Get(c *gin.Context) {
	detail, err := h.doubts.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Update godoc
// @Summary Update doubt fields or transition its status
// @Tags Doubts
// @Accept json
// @Produce json
// @Param id path string true "Doubt ID"
// @Param payload body service.UpdateDoubtRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Router /doubts/{id} [patch]
func (h *DoubtHandler) Update(c *gin.Context) {
	var req service.UpdateDoubtRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	doubt, err := h.doubts.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doubt, nil)
}

// AddResponse godoc
// @Summary Post a response on the doubt thread
// @Tags Doubts
// @Accept json
// @Produce json
// @Param id path string true "Doubt ID"
// @Param payload body service.AddResponseRequest true "Response payload"
// @Success 201 {object} response.Envelope
// @Router /doubts/{id}/responses [post]
func (h *DoubtHandler) AddResponse(c *gin.Context) {
	var req service.AddResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	resp, err := h.doubts.AddResponse(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resp)
}

// Rate godoc
// @Summary Rate a resolved doubt
// @Tags Doubts
// @Accept json
// @Produce json
// @Param id path string true "Doubt ID"
// @Param payload body service.RateDoubtRequest true "Rating payload"
// @Success 200 {object} response.Envelope
// @Router /doubts/{id}/rating [post]
func (h *DoubtHandler) Rate(c *gin.Context) {
	var req service.RateDoubtRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	rating, err := h.doubts.Rate(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rating, nil)
}
