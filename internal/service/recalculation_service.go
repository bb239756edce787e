package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/lms-gradebook-api/pkg/errors"
	"github.com/noah-isme/lms-gradebook-api/pkg/jobs"
)

const recalculationJobType = "course_grade_recalculation"

type courseRecalculator interface {
	RecalculateCourse(ctx context.Context, courseID string, opts RecalculateOptions) (*RecalculationResult, error)
}

type jobQueue interface {
	Enqueue(job jobs.Job) error
}

// RecalculationPayload is carried by queued recalculation jobs.
type RecalculationPayload struct {
	CourseID string
	Options  RecalculateOptions
}

// RecalculationTicket acknowledges an asynchronous recalculation.
type RecalculationTicket struct {
	JobID    string `json:"job_id"`
	CourseID string `json:"course_id"`
	Status   string `json:"status"`
}

// RecalculationService runs course recalculations inline or on the background queue.
type RecalculationService struct {
	grades  courseRecalculator
	queue   jobQueue
	metrics *MetricsService
	logger  *zap.Logger

	notifyByDefault bool
}

// NewRecalculationService constructs the service. The queue is attached with
// SetQueue once it is built around Handle.
func NewRecalculationService(grades courseRecalculator, metrics *MetricsService, logger *zap.Logger) *RecalculationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecalculationService{grades: grades, metrics: metrics, logger: logger}
}

// SetQueue attaches the background queue.
func (s *RecalculationService) SetQueue(queue jobQueue) {
	s.queue = queue
}

// NotifyByDefault makes every recalculation notify students even when the
// request does not ask for it.
func (s *RecalculationService) NotifyByDefault(notify bool) {
	s.notifyByDefault = notify
}

func (s *RecalculationService) options(opts RecalculateOptions) RecalculateOptions {
	opts.NotifyStudents = opts.NotifyStudents || s.notifyByDefault
	return opts
}

// Run recalculates synchronously.
func (s *RecalculationService) Run(ctx context.Context, courseID string, opts RecalculateOptions) (*RecalculationResult, error) {
	return s.grades.RecalculateCourse(ctx, courseID, s.options(opts))
}

// Enqueue schedules a recalculation. A course with a pending job is rejected with CONFLICT.
func (s *RecalculationService) Enqueue(courseID string, opts RecalculateOptions) (*RecalculationTicket, error) {
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "background recalculation is not available")
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Key:     "course:" + courseID,
		Type:    recalculationJobType,
		Payload: RecalculationPayload{CourseID: courseID, Options: s.options(opts)},
	}
	if err := s.queue.Enqueue(job); err != nil {
		if errors.Is(err, jobs.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a recalculation for this course is already queued")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue recalculation")
	}
	s.metrics.ObserveRecalculationJob("queued")
	return &RecalculationTicket{JobID: job.ID, CourseID: courseID, Status: "queued"}, nil
}

// Handle processes a queued recalculation job.
func (s *RecalculationService) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(RecalculationPayload)
	if !ok {
		s.metrics.ObserveRecalculationJob("invalid")
		s.logger.Error("unexpected recalculation payload", zap.String("job_id", job.ID))
		return nil
	}
	result, err := s.grades.RecalculateCourse(ctx, payload.CourseID, payload.Options)
	if err != nil {
		s.metrics.ObserveRecalculationJob("failed")
		return fmt.Errorf("recalculate course %s: %w", payload.CourseID, err)
	}
	s.metrics.ObserveRecalculationJob("completed")
	s.logger.Info("background recalculation finished",
		zap.String("job_id", job.ID),
		zap.String("course_id", payload.CourseID),
		zap.Int("recalculated", result.Recalculated),
		zap.Int("skipped", result.Skipped),
		zap.Int("attempt", job.Attempt),
	)
	return nil
}
