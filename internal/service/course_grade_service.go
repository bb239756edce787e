package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/lms-gradebook-api/pkg/errors"
)

type courseGradeStore interface {
	FindByEnrollment(ctx context.Context, enrollmentID string) (*models.CourseGrade, error)
	ListByCourse(ctx context.Context, courseID string) (map[string]models.CourseGrade, error)
	SaveCalculated(ctx context.Context, grade *models.CourseGrade, history *models.GradeHistory) error
	SaveOverride(ctx context.Context, grade *models.CourseGrade, history *models.GradeHistory) error
	ListHistory(ctx context.Context, courseGradeID string) ([]models.GradeHistory, error)
}

type gradedSubmissionReader interface {
	ListGraded(ctx context.Context, studentID, courseID string) ([]models.GradedSubmission, error)
}

type gradingConfigReader interface {
	ListCategories(ctx context.Context, courseID string) ([]models.GradeCategory, error)
	FindScale(ctx context.Context, courseID string) (*models.GradeScale, error)
}

type enrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.EnrollmentDetail, error)
	ListByCourse(ctx context.Context, courseID string, status models.EnrollmentStatus) ([]models.EnrollmentDetail, error)
}

type gradeNotifier interface {
	NotifyGradeUpdates(ctx context.Context, courseID string, studentIDs []string) error
}

// OverrideGradeRequest sets an instructor grade that takes display precedence.
type OverrideGradeRequest struct {
	Percentage *float64 `json:"override_percentage" validate:"omitempty,gte=0,lte=100"`
	Letter     string   `json:"override_letter" validate:"omitempty,max=3"`
	Reason     string   `json:"override_reason" validate:"required,max=2000"`
}

// RecalculateOptions tunes a course-wide recalculation.
type RecalculateOptions struct {
	NotifyStudents bool `json:"notify_students"`
}

// RecalculationFailure records an enrollment that could not be recalculated.
type RecalculationFailure struct {
	EnrollmentID string `json:"enrollment_id"`
	Reason       string `json:"reason"`
}

// RecalculationResult summarises a course-wide recalculation.
type RecalculationResult struct {
	CourseID     string                 `json:"course_id"`
	Recalculated int                    `json:"recalculated"`
	Skipped      int                    `json:"skipped"`
	Notified     int                    `json:"notified"`
	Failures     []RecalculationFailure `json:"failures,omitempty"`
}

// CourseGradeService computes, overrides and audits course grades.
type CourseGradeService struct {
	grades      courseGradeStore
	submissions gradedSubmissionReader
	configs     gradingConfigReader
	enrollments enrollmentReader
	notifier    gradeNotifier
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	tracer      trace.Tracer
	locks       *keyedMutex
	now         func() time.Time
}

// NewCourseGradeService constructs CourseGradeService. notifier, cache and metrics may be nil.
func NewCourseGradeService(grades courseGradeStore, submissions gradedSubmissionReader, configs gradingConfigReader, enrollments enrollmentReader, notifier gradeNotifier, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *CourseGradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseGradeService{
		grades:      grades,
		submissions: submissions,
		configs:     configs,
		enrollments: enrollments,
		notifier:    notifier,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		tracer:      otel.Tracer("github.com/noah-isme/lms-gradebook-api/internal/service/course_grade"),
		locks:       newKeyedMutex(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Calculate recomputes the calculated fields of an enrollment's grade. Overrides
// are never consulted or cleared.
func (s *CourseGradeService) Calculate(ctx context.Context, enrollmentID string) (*models.CourseGrade, error) {
	enrollment, err := s.loadEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	return s.calculate(ctx, &enrollment.Enrollment)
}

// GetOrCalculate returns the stored grade, calculating it first when it does
// not exist yet or has no percentage.
func (s *CourseGradeService) GetOrCalculate(ctx context.Context, enrollment *models.Enrollment) (*models.CourseGrade, error) {
	grade, err := s.grades.FindByEnrollment(ctx, enrollment.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course grade")
	}
	if grade != nil && grade.Percentage != nil {
		return grade, nil
	}
	return s.calculate(ctx, enrollment)
}

// Get returns an enrollment's grade, calculating it on first access.
func (s *CourseGradeService) Get(ctx context.Context, enrollmentID string) (*models.CourseGrade, error) {
	enrollment, err := s.loadEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	return s.GetOrCalculate(ctx, &enrollment.Enrollment)
}

func (s *CourseGradeService) calculate(ctx context.Context, enrollment *models.Enrollment) (*models.CourseGrade, error) {
	ctx, span := s.tracer.Start(ctx, "grades.calculate")
	span.SetAttributes(
		attribute.String("grades.enrollment_id", enrollment.ID),
		attribute.String("grades.course_id", enrollment.CourseID),
	)
	defer span.End()

	unlock := s.locks.Lock(enrollment.ID)
	defer unlock()

	start := time.Now()
	fail := func(err error, status, message string) (*models.CourseGrade, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
	}

	existing, err := s.grades.FindByEnrollment(ctx, enrollment.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fail(err, "grade_lookup_failed", "failed to load course grade")
	}
	submissions, err := s.submissions.ListGraded(ctx, enrollment.StudentID, enrollment.CourseID)
	if err != nil {
		return fail(err, "submission_lookup_failed", "failed to load graded submissions")
	}
	categories, err := s.configs.ListCategories(ctx, enrollment.CourseID)
	if err != nil {
		return fail(err, "category_lookup_failed", "failed to load grade categories")
	}
	scale, err := s.configs.FindScale(ctx, enrollment.CourseID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fail(err, "scale_lookup_failed", "failed to load grade scale")
		}
		scale = nil
	}

	result := ComputePercentage(submissions, categories)
	if result.WeightFallback {
		s.logger.Warn("category weights do not total 100, using simple average",
			zap.String("course_id", enrollment.CourseID),
			zap.Int("categories", len(categories)),
		)
	}
	letter := resolveLetter(scale, result.Percentage)

	grade := &models.CourseGrade{EnrollmentID: enrollment.ID}
	var history *models.GradeHistory
	if existing != nil {
		copied := *existing
		grade = &copied
		if !samePercentage(existing.Percentage, result.Percentage) || existing.LetterGrade != letter {
			history = &models.GradeHistory{
				ChangeType:    models.GradeChangeCalculated,
				OldPercentage: existing.Percentage,
				NewPercentage: result.Percentage,
				OldLetter:     existing.LetterGrade,
				NewLetter:     letter,
				Reason:        fmt.Sprintf("recalculated using %s average", result.Method),
			}
		}
	} else if result.Percentage != nil {
		history = &models.GradeHistory{
			ChangeType:    models.GradeChangeCalculated,
			NewPercentage: result.Percentage,
			OldLetter:     models.NoGrade,
			NewLetter:     letter,
			Reason:        fmt.Sprintf("initial calculation using %s average", result.Method),
		}
	}

	grade.Percentage = result.Percentage
	grade.LetterGrade = letter
	grade.LastCalculated = s.now()
	if history != nil {
		history.Timestamp = grade.LastCalculated
	}

	if err := s.grades.SaveCalculated(ctx, grade, history); err != nil {
		return fail(err, "grade_save_failed", "failed to save course grade")
	}

	span.SetAttributes(attribute.String("grades.method", string(result.Method)))
	s.metrics.ObserveGradeCalculation(result.Method, time.Since(start))
	s.cache.InvalidateCourse(ctx, enrollment.CourseID)
	return grade, nil
}

// Override applies an instructor override and records the transition.
func (s *CourseGradeService) Override(ctx context.Context, enrollmentID string, req OverrideGradeRequest, actorID string) (*models.CourseGrade, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	req.Letter = strings.ToUpper(strings.TrimSpace(req.Letter))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid override payload")
	}
	if req.Percentage == nil && req.Letter == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "override requires a percentage or a letter grade")
	}

	enrollment, err := s.loadEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	grade, err := s.GetOrCalculate(ctx, &enrollment.Enrollment)
	if err != nil {
		return nil, err
	}

	now := s.now()
	actor := actorID
	history := &models.GradeHistory{
		ChangedBy:     &actor,
		ChangeType:    models.GradeChangeOverride,
		OldPercentage: grade.DisplayPercentage(),
		NewPercentage: req.Percentage,
		OldLetter:     grade.DisplayLetter(),
		NewLetter:     req.Letter,
		Reason:        req.Reason,
		Timestamp:     now,
	}

	grade.IsOverridden = true
	grade.OverridePercentage = req.Percentage
	grade.OverrideLetter = req.Letter
	grade.OverrideReason = req.Reason
	grade.OverriddenBy = &actor
	grade.OverriddenAt = &now

	if err := s.grades.SaveOverride(ctx, grade, history); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save grade override")
	}
	s.logger.Info("grade overridden",
		zap.String("enrollment_id", enrollmentID),
		zap.String("actor_id", actorID),
	)
	s.metrics.ObserveOverride("applied")
	s.cache.InvalidateCourse(ctx, enrollment.CourseID)
	return grade, nil
}

// RemoveOverride clears an override, records the reversal and recalculates.
func (s *CourseGradeService) RemoveOverride(ctx context.Context, enrollmentID, actorID string) (*models.CourseGrade, error) {
	enrollment, err := s.loadEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	grade, err := s.grades.FindByEnrollment(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course grade")
	}
	if !grade.IsOverridden {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "grade is not overridden")
	}

	actor := actorID
	history := &models.GradeHistory{
		ChangedBy:     &actor,
		ChangeType:    models.GradeChangeRemoved,
		OldPercentage: grade.DisplayPercentage(),
		NewPercentage: grade.Percentage,
		OldLetter:     grade.DisplayLetter(),
		NewLetter:     grade.LetterGrade,
		Reason:        "Override removed",
		Timestamp:     s.now(),
	}

	grade.IsOverridden = false
	grade.OverridePercentage = nil
	grade.OverrideLetter = ""
	grade.OverrideReason = ""
	grade.OverriddenBy = nil
	grade.OverriddenAt = nil

	if err := s.grades.SaveOverride(ctx, grade, history); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove grade override")
	}
	s.metrics.ObserveOverride("removed")

	return s.calculate(ctx, &enrollment.Enrollment)
}

// History returns the audit trail of an enrollment's grade, newest first.
func (s *CourseGradeService) History(ctx context.Context, enrollmentID string) ([]models.GradeHistory, error) {
	if _, err := s.loadEnrollment(ctx, enrollmentID); err != nil {
		return nil, err
	}
	grade, err := s.grades.FindByEnrollment(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []models.GradeHistory{}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course grade")
	}
	history, err := s.grades.ListHistory(ctx, grade.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade history")
	}
	return history, nil
}

// RecalculateCourse recalculates every enrolled student in sequence, leaving
// overridden grades untouched. A failing enrollment is reported and the loop continues.
func (s *CourseGradeService) RecalculateCourse(ctx context.Context, courseID string, opts RecalculateOptions) (*RecalculationResult, error) {
	ctx, span := s.tracer.Start(ctx, "grades.recalculate_course")
	span.SetAttributes(attribute.String("grades.course_id", courseID))
	defer span.End()

	enrollments, err := s.enrollments.ListByCourse(ctx, courseID, models.EnrollmentStatusEnrolled)
	if err != nil {
		span.RecordError(err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	existing, err := s.grades.ListByCourse(ctx, courseID)
	if err != nil {
		span.RecordError(err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course grades")
	}

	result := &RecalculationResult{CourseID: courseID}
	var recalculated []string
	for i := range enrollments {
		enrollment := enrollments[i].Enrollment
		if grade, ok := existing[enrollment.ID]; ok && grade.IsOverridden {
			result.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, err := s.calculate(ctx, &enrollment); err != nil {
			s.logger.Warn("recalculation failed", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
			result.Failures = append(result.Failures, RecalculationFailure{EnrollmentID: enrollment.ID, Reason: err.Error()})
			continue
		}
		result.Recalculated++
		recalculated = append(recalculated, enrollment.StudentID)
	}

	if opts.NotifyStudents && s.notifier != nil && len(recalculated) > 0 {
		if err := s.notifier.NotifyGradeUpdates(ctx, courseID, recalculated); err != nil {
			s.logger.Warn("grade notifications failed", zap.String("course_id", courseID), zap.Error(err))
		} else {
			result.Notified = len(recalculated)
		}
	}

	span.SetAttributes(
		attribute.Int("grades.recalculated", result.Recalculated),
		attribute.Int("grades.skipped", result.Skipped),
	)
	s.logger.Info("course grades recalculated",
		zap.String("course_id", courseID),
		zap.Int("recalculated", result.Recalculated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", len(result.Failures)),
	)
	return result, nil
}

func (s *CourseGradeService) loadEnrollment(ctx context.Context, enrollmentID string) (*models.EnrollmentDetail, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}
