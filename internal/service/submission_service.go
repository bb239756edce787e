package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/lms-gradebook-api/pkg/errors"
)

type assignmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
}

type submissionStore interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	SaveText(ctx context.Context, submission *models.Submission) error
	Grade(ctx context.Context, submission *models.Submission) error
}

type enrollmentGradeCalculator interface {
	Calculate(ctx context.Context, enrollmentID string) (*models.CourseGrade, error)
}

// SubmitAssignmentRequest is a student's text submission.
type SubmitAssignmentRequest struct {
	SubmissionText string `json:"submission_text" validate:"required"`
}

// GradeSubmissionRequest is an instructor's score for a submission.
type GradeSubmissionRequest struct {
	Score    *int   `json:"score" validate:"required"`
	Feedback string `json:"feedback" validate:"max=5000"`
}

// SubmissionService handles the submit and grade lifecycle of assignments.
type SubmissionService struct {
	assignments assignmentReader
	submissions submissionStore
	enrollments enrollmentReader
	grades      enrollmentGradeCalculator
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewSubmissionService constructs the service. grades may be nil to skip
// recalculating the course grade after grading.
func NewSubmissionService(assignments assignmentReader, submissions submissionStore, enrollments enrollmentReader, grades enrollmentGradeCalculator, validate *validator.Validate, logger *zap.Logger) *SubmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		assignments: assignments,
		submissions: submissions,
		enrollments: enrollments,
		grades:      grades,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Submit creates or replaces the student's submission text.
func (s *SubmissionService) Submit(ctx context.Context, assignmentID, studentID string, req SubmitAssignmentRequest) (*models.Submission, error) {
	req.SubmissionText = strings.TrimSpace(req.SubmissionText)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}
	assignment, err := s.assignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	enrollment, err := s.enrollments.FindByStudentAndCourse(ctx, studentID, assignment.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "student is not enrolled in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusEnrolled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment is not active")
	}
	if assignment.IsOverdue(s.now()) && !assignment.AllowLateSubmission {
		return nil, appErrors.Clone(appErrors.ErrSubmissionClosed, "the due date has passed")
	}

	submission := &models.Submission{
		AssignmentID:   assignmentID,
		StudentID:      studentID,
		SubmissionText: req.SubmissionText,
	}
	if err := s.submissions.SaveText(ctx, submission); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrSubmissionClosed, "submission has already been graded")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save submission")
	}
	return submission, nil
}

// Grade scores a submission and refreshes the student's course grade.
func (s *SubmissionService) Grade(ctx context.Context, submissionID string, req GradeSubmissionRequest, graderID string) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	submission, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	assignment, err := s.assignment(ctx, submission.AssignmentID)
	if err != nil {
		return nil, err
	}
	if *req.Score < 0 || *req.Score > assignment.TotalPoints {
		return nil, appErrors.Clone(appErrors.ErrScoreOutOfRange, "score must be between 0 and the assignment total points")
	}

	now := s.now()
	grader := graderID
	score := *req.Score
	submission.Score = &score
	submission.Feedback = strings.TrimSpace(req.Feedback)
	submission.Graded = true
	submission.GradedBy = &grader
	submission.GradedAt = &now
	if err := s.submissions.Grade(ctx, submission); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grade submission")
	}

	s.refreshCourseGrade(ctx, submission.StudentID, assignment.CourseID)
	return submission, nil
}

func (s *SubmissionService) refreshCourseGrade(ctx context.Context, studentID, courseID string) {
	if s.grades == nil {
		return
	}
	enrollment, err := s.enrollments.FindByStudentAndCourse(ctx, studentID, courseID)
	if err != nil {
		s.logger.Warn("skip grade refresh", zap.String("student_id", studentID), zap.String("course_id", courseID), zap.Error(err))
		return
	}
	if _, err := s.grades.Calculate(ctx, enrollment.ID); err != nil {
		s.logger.Warn("grade refresh failed", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
	}
}

func (s *SubmissionService) assignment(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.assignments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}
