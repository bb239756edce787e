package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
	"github.com/noah-isme/lms-gradebook-api/internal/service"
	"github.com/noah-isme/lms-gradebook-api/pkg/response"
)

type quizService interface {
	StartAttempt(ctx context.Context, quizID, studentID string) (*models.AttemptView, error)
	GetAttempt(ctx context.Context, attemptID, studentID string) (*models.AttemptView, error)
	SaveResponses(ctx context.Context, attemptID, studentID string, req service.SaveResponsesRequest) (*models.AttemptView, error)
	Submit(ctx context.Context, attemptID, studentID string) (*models.AttemptView, error)
}

// QuizHandler drives quiz attempts for the calling student.
type QuizHandler struct {
	quizzes quizService
}

// NewQuizHandler constructs handler.
func NewQuizHandler(quizzes quizService) *QuizHandler {
	return &QuizHandler{quizzes: quizzes}
}

// StartAttempt godoc
// @Summary Start a quiz attempt
// @Tags Quizzes
// @Produce json
// @Param id path string true "Quiz ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /quizzes/{id}/attempts [post]
func (h *QuizHandler) StartAttempt(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	view, err := h.quizzes.StartAttempt(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// GetAttempt godoc
// @Summary Get a quiz attempt
// @Tags Quizzes
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} response.Envelope
// @Router /quiz-attempts/{id} [get]
func (h *QuizHandler) GetAttempt(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	view, err := h.quizzes.GetAttempt(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// SaveResponses godoc
// @Summary Save answers for an in-progress attempt
// @Tags Quizzes
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Param payload body service.SaveResponsesRequest true "Answers"
// @Success 200 {object} response.Envelope
// @Router /quiz-attempts/{id}/responses [put]
func (h *QuizHandler) SaveResponses(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req service.SaveResponsesRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.quizzes.SaveResponses(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Submit godoc
// @Summary Submit and auto-grade an attempt
// @Tags Quizzes
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} response.Envelope
// @Router /quiz-attempts/{id}/submit [post]
func (h *QuizHandler) Submit(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	view, err := h.quizzes.Submit(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}
