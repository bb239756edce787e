package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
	"github.com/noah-isme/lms-gradebook-api/internal/service"
	"github.com/noah-isme/lms-gradebook-api/pkg/response"
)

type gradeConfigService interface {
	GetScale(ctx context.Context, courseID string) (*models.GradeScale, error)
	UpsertScale(ctx context.Context, courseID string, req service.GradeScaleRequest) (*models.GradeScale, error)
	ListCategories(ctx context.Context, courseID string) (*service.CategoryList, error)
	CreateCategory(ctx context.Context, courseID string, req service.GradeCategoryRequest) (*models.GradeCategory, error)
	UpdateCategory(ctx context.Context, courseID, id string, req service.GradeCategoryRequest) (*models.GradeCategory, error)
	DeleteCategory(ctx context.Context, courseID, id string) error
}

// GradeConfigHandler exposes a course's grade scale and weighted categories.
type GradeConfigHandler struct {
	configs gradeConfigService
}

// NewGradeConfigHandler constructs handler.
func NewGradeConfigHandler(configs gradeConfigService) *GradeConfigHandler {
	return &GradeConfigHandler{configs: configs}
}

// GetScale godoc
// @Summary Get grade scale
// @Description Returns the stored scale or the 90/80/70/60 default
// @Tags Grade Configuration
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/grade-scale [get]
func (h *GradeConfigHandler) GetScale(c *gin.Context) {
	scale, err := h.configs.GetScale(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, scale, nil)
}

// UpsertScale godoc
// @Summary Create or replace grade scale
// @Tags Grade Configuration
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param payload body service.GradeScaleRequest true "Scale thresholds"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses/{courseId}/grade-scale [put]
func (h *GradeConfigHandler) UpsertScale(c *gin.Context) {
	var req service.GradeScaleRequest
	if !bindJSON(c, &req) {
		return
	}
	scale, err := h.configs.UpsertScale(c.Request.Context(), c.Param("courseId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, scale, nil)
}

// ListCategories godoc
// @Summary List grade categories
// @Tags Grade Configuration
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/grade-categories [get]
func (h *GradeConfigHandler) ListCategories(c *gin.Context) {
	list, err := h.configs.ListCategories(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, nil)
}

// CreateCategory godoc
// @Summary Create grade category
// @Tags Grade Configuration
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param payload body service.GradeCategoryRequest true "Category"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{courseId}/grade-categories [post]
func (h *GradeConfigHandler) CreateCategory(c *gin.Context) {
	var req service.GradeCategoryRequest
	if !bindJSON(c, &req) {
		return
	}
	category, err := h.configs.CreateCategory(c.Request.Context(), c.Param("courseId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, category)
}

// UpdateCategory godoc
// @Summary Update grade category
// @Tags Grade Configuration
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param categoryId path string true "Category ID"
// @Param payload body service.GradeCategoryRequest true "Category"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/grade-categories/{categoryId} [put]
func (h *GradeConfigHandler) UpdateCategory(c *gin.Context) {
	var req service.GradeCategoryRequest
	if !bindJSON(c, &req) {
		return
	}
	category, err := h.configs.UpdateCategory(c.Request.Context(), c.Param("courseId"), c.Param("categoryId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, category, nil)
}

// DeleteCategory godoc
// @Summary Delete grade category
// @Tags Grade Configuration
// @Param courseId path string true "Course ID"
// @Param categoryId path string true "Category ID"
// @Success 204
// @Router /courses/{courseId}/grade-categories/{categoryId} [delete]
func (h *GradeConfigHandler) DeleteCategory(c *gin.Context) {
	if err := h.configs.DeleteCategory(c.Request.Context(), c.Param("courseId"), c.Param("categoryId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
