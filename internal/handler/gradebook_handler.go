package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-gradebook-api/internal/middleware"
	"github.com/noah-isme/lms-gradebook-api/internal/models"
	"github.com/noah-isme/lms-gradebook-api/internal/service"
	appErrors "github.com/noah-isme/lms-gradebook-api/pkg/errors"
	"github.com/noah-isme/lms-gradebook-api/pkg/response"
)

type gradebookService interface {
	CachedGradebook(ctx context.Context, courseID string) (*models.Gradebook, bool, error)
	StudentReport(ctx context.Context, courseID, studentID string) (*models.StudentGradeReport, error)
}

type gradebookExporter interface {
	ExportGradebook(ctx context.Context, courseID string, format service.ExportFormat) (*service.ExportFile, error)
}

type courseRecalculator interface {
	Run(ctx context.Context, courseID string, opts service.RecalculateOptions) (*service.RecalculationResult, error)
	Enqueue(courseID string, opts service.RecalculateOptions) (*service.RecalculationTicket, error)
}

// RecalculateRequest is the body of the course-wide recalculation endpoint.
type RecalculateRequest struct {
	NotifyStudents bool `json:"notify_students"`
	Async          bool `json:"async"`
}

// GradebookHandler serves course-level grade views.
type GradebookHandler struct {
	gradebooks gradebookService
	exports    gradebookExporter
	recalc     courseRecalculator
}

// NewGradebookHandler constructs the handler.
func NewGradebookHandler(gradebooks gradebookService, exports gradebookExporter, recalc courseRecalculator) *GradebookHandler {
	return &GradebookHandler{gradebooks: gradebooks, exports: exports, recalc: recalc}
}

// Gradebook godoc
// @Summary Course gradebook
// @Description Every enrolled student's course grade with class statistics
// @Tags Gradebook
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /courses/{courseId}/gradebook [get]
func (h *GradebookHandler) Gradebook(c *gin.Context) {
	book, cacheHit, err := h.gradebooks.CachedGradebook(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, book, nil, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Export gradebook
// @Tags Gradebook
// @Produce text/csv
// @Produce application/pdf
// @Param courseId path string true "Course ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /courses/{courseId}/gradebook/export [get]
func (h *GradebookHandler) Export(c *gin.Context) {
	file, err := h.exports.ExportGradebook(c.Request.Context(), c.Param("courseId"), service.ExportFormat(c.DefaultQuery("format", string(service.ExportFormatCSV))))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// Recalculate godoc
// @Summary Recalculate all course grades
// @Description Recalculates every non-overridden grade. With async=true the work is queued.
// @Tags Gradebook
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param payload body RecalculateRequest false "Options"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /courses/{courseId}/grades/recalculate [post]
func (h *GradebookHandler) Recalculate(c *gin.Context) {
	var req RecalculateRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	courseID := c.Param("courseId")
	opts := service.RecalculateOptions{NotifyStudents: req.NotifyStudents}
	if req.Async {
		ticket, err := h.recalc.Enqueue(courseID, opts)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusAccepted, ticket, nil)
		return
	}
	result, err := h.recalc.Run(c.Request.Context(), courseID, opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// MyGrades godoc
// @Summary Caller's own grade report
// @Tags Gradebook
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/grades/me [get]
func (h *GradebookHandler) MyGrades(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	if claims.Role != models.RoleStudent {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "only students have a personal grade report"))
		return
	}
	h.writeReport(c, claims.UserID)
}

// StudentGrades godoc
// @Summary Student grade report
// @Tags Gradebook
// @Produce json
// @Param courseId path string true "Course ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/students/{studentId}/grades [get]
func (h *GradebookHandler) StudentGrades(c *gin.Context) {
	h.writeReport(c, c.Param("studentId"))
}

func (h *GradebookHandler) writeReport(c *gin.Context, studentID string) {
	report, err := h.gradebooks.StudentReport(c.Request.Context(), c.Param("courseId"), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
