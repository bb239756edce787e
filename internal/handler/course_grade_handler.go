package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
	"github.com/noah-isme/lms-gradebook-api/internal/service"
	"github.com/noah-isme/lms-gradebook-api/pkg/response"
)

type courseGradeService interface {
	Calculate(ctx context.Context, enrollmentID string) (*models.CourseGrade, error)
	Override(ctx context.Context, enrollmentID string, req service.OverrideGradeRequest, actorID string) (*models.CourseGrade, error)
	RemoveOverride(ctx context.Context, enrollmentID, actorID string) (*models.CourseGrade, error)
	History(ctx context.Context, enrollmentID string) ([]models.GradeHistory, error)
}

// CourseGradeHandler manages a single enrollment's course grade.
type CourseGradeHandler struct {
	grades courseGradeService
}

// NewCourseGradeHandler constructs handler.
func NewCourseGradeHandler(grades courseGradeService) *CourseGradeHandler {
	return &CourseGradeHandler{grades: grades}
}

// Calculate godoc
// @Summary Recalculate an enrollment's course grade
// @Tags Course Grades
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/grade/calculate [post]
func (h *CourseGradeHandler) Calculate(c *gin.Context) {
	grade, err := h.grades.Calculate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// Override godoc
// @Summary Override an enrollment's course grade
// @Tags Course Grades
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.OverrideGradeRequest true "Override"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/grade/override [post]
func (h *CourseGradeHandler) Override(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req service.OverrideGradeRequest
	if !bindJSON(c, &req) {
		return
	}
	grade, err := h.grades.Override(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// RemoveOverride godoc
// @Summary Remove a grade override
// @Tags Course Grades
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /enrollments/{id}/grade/override [delete]
func (h *CourseGradeHandler) RemoveOverride(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	grade, err := h.grades.RemoveOverride(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// History godoc
// @Summary Grade change history
// @Tags Course Grades
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/grade/history [get]
func (h *CourseGradeHandler) History(c *gin.Context) {
	history, err := h.grades.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}
