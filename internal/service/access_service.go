package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/lms-gradebook-api/pkg/errors"
)

type submissionFinder interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
}

// AccessService resolves which course a resource belongs to and whether the
// caller may manage it.
type AccessService struct {
	courses     courseReader
	enrollments enrollmentReader
	assignments assignmentReader
	submissions submissionFinder
}

// NewAccessService constructs AccessService.
func NewAccessService(courses courseReader, enrollments enrollmentReader, assignments assignmentReader, submissions submissionFinder) *AccessService {
	return &AccessService{courses: courses, enrollments: enrollments, assignments: assignments, submissions: submissions}
}

// EnsureInstructor allows admins and the course's own instructor.
func (s *AccessService) EnsureInstructor(ctx context.Context, courseID string, claims *models.JWTClaims) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return notFoundOrInternal(err, "course not found", "failed to load course")
	}
	if claims.IsAdmin() {
		return nil
	}
	if claims.Role != models.RoleInstructor || course.InstructorID != claims.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the course instructor can perform this action")
	}
	return nil
}

// CourseOfEnrollment returns the course ID of an enrollment.
func (s *AccessService) CourseOfEnrollment(ctx context.Context, enrollmentID string) (string, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		return "", notFoundOrInternal(err, "enrollment not found", "failed to load enrollment")
	}
	return enrollment.CourseID, nil
}

// CourseOfAssignment returns the course ID of an assignment.
func (s *AccessService) CourseOfAssignment(ctx context.Context, assignmentID string) (string, error) {
	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		return "", notFoundOrInternal(err, "assignment not found", "failed to load assignment")
	}
	return assignment.CourseID, nil
}

// CourseOfSubmission returns the course ID of a submission.
func (s *AccessService) CourseOfSubmission(ctx context.Context, submissionID string) (string, error) {
	submission, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		return "", notFoundOrInternal(err, "submission not found", "failed to load submission")
	}
	return s.CourseOfAssignment(ctx, submission.AssignmentID)
}

func notFoundOrInternal(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}
