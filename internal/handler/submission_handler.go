package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
	"github.com/noah-isme/lms-gradebook-api/internal/service"
	"github.com/noah-isme/lms-gradebook-api/pkg/response"
)

type submissionService interface {
	Submit(ctx context.Context, assignmentID, studentID string, req service.SubmitAssignmentRequest) (*models.Submission, error)
	Grade(ctx context.Context, submissionID string, req service.GradeSubmissionRequest, graderID string) (*models.Submission, error)
}

// SubmissionHandler handles assignment submissions.
type SubmissionHandler struct {
	submissions submissionService
}

// NewSubmissionHandler constructs handler.
func NewSubmissionHandler(submissions submissionService) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions}
}

// Submit godoc
// @Summary Submit an assignment
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body service.SubmitAssignmentRequest true "Submission"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assignments/{id}/submissions [post]
func (h *SubmissionHandler) Submit(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req service.SubmitAssignmentRequest
	if !bindJSON(c, &req) {
		return
	}
	submission, err := h.submissions.Submit(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Grade godoc
// @Summary Grade a submission
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body service.GradeSubmissionRequest true "Score"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /submissions/{id}/grade [post]
func (h *SubmissionHandler) Grade(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req service.GradeSubmissionRequest
	if !bindJSON(c, &req) {
		return
	}
	submission, err := h.submissions.Grade(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}
