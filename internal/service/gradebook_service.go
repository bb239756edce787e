package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/lms-gradebook-api/pkg/errors"
)

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type assignmentLister interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error)
}

type studentSubmissionLister interface {
	ListByStudentAndCourse(ctx context.Context, studentID, courseID string) ([]models.Submission, error)
	ListGraded(ctx context.Context, studentID, courseID string) ([]models.GradedSubmission, error)
}

type gradeProvider interface {
	GetOrCalculate(ctx context.Context, enrollment *models.Enrollment) (*models.CourseGrade, error)
}

type courseGradeLister interface {
	ListByCourse(ctx context.Context, courseID string) (map[string]models.CourseGrade, error)
}

// GradebookService assembles course-wide and per-student grade views.
type GradebookService struct {
	courses     courseReader
	enrollments enrollmentReader
	grades      courseGradeLister
	calculator  gradeProvider
	configs     gradingConfigReader
	assignments assignmentLister
	submissions studentSubmissionLister
	cache       *CacheService
	cacheTTL    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewGradebookService wires the gradebook service. cache may be nil.
func NewGradebookService(courses courseReader, enrollments enrollmentReader, grades courseGradeLister, calculator gradeProvider, configs gradingConfigReader, assignments assignmentLister, submissions studentSubmissionLister, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *GradebookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradebookService{
		courses:     courses,
		enrollments: enrollments,
		grades:      grades,
		calculator:  calculator,
		configs:     configs,
		assignments: assignments,
		submissions: submissions,
		cache:       cache,
		cacheTTL:    cacheTTL,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Gradebook returns every enrolled student's grade with class statistics.
// Missing or empty grades are calculated on the way.
func (s *GradebookService) Gradebook(ctx context.Context, courseID string) (*models.Gradebook, error) {
	book, _, err := s.CachedGradebook(ctx, courseID)
	return book, err
}

// CachedGradebook is Gradebook that also reports whether the cache served it.
func (s *GradebookService) CachedGradebook(ctx context.Context, courseID string) (*models.Gradebook, bool, error) {
	key := gradebookCacheKey(courseID)
	var cached models.Gradebook
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, true, nil
	}
	book, err := s.buildGradebook(ctx, courseID)
	if err != nil {
		return nil, false, err
	}
	_ = s.cache.Set(ctx, key, book, s.cacheTTL)
	return book, false, nil
}

func (s *GradebookService) buildGradebook(ctx context.Context, courseID string) (*models.Gradebook, error) {
	if _, err := s.course(ctx, courseID); err != nil {
		return nil, err
	}
	enrollments, err := s.enrollments.ListByCourse(ctx, courseID, models.EnrollmentStatusEnrolled)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	existing, err := s.grades.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course grades")
	}
	categories, err := s.configs.ListCategories(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grade categories")
	}

	rows := make([]models.GradebookRow, 0, len(enrollments))
	for i := range enrollments {
		enrollment := enrollments[i]
		grade, ok := existing[enrollment.ID]
		if !ok || grade.Percentage == nil {
			calculated, err := s.calculator.GetOrCalculate(ctx, &enrollment.Enrollment)
			if err != nil {
				return nil, err
			}
			grade = *calculated
		}
		rows = append(rows, gradebookRow(enrollment, grade))
	}

	var totalWeight float64
	for _, category := range categories {
		totalWeight += category.Weight
	}

	return &models.Gradebook{
		CourseID:    courseID,
		Rows:        rows,
		Categories:  categories,
		TotalWeight: totalWeight,
		Stats:       gradebookStats(rows),
		GeneratedAt: s.now(),
	}, nil
}

// StudentReport returns one student's grade, assignments and category averages.
func (s *GradebookService) StudentReport(ctx context.Context, courseID, studentID string) (*models.StudentGradeReport, error) {
	enrollment, err := s.enrollments.FindByStudentAndCourse(ctx, studentID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	grade, err := s.calculator.GetOrCalculate(ctx, &enrollment.Enrollment)
	if err != nil {
		return nil, err
	}
	assignments, err := s.assignments.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	submissions, err := s.submissions.ListByStudentAndCourse(ctx, studentID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	graded, err := s.submissions.ListGraded(ctx, studentID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list graded submissions")
	}
	categories, err := s.configs.ListCategories(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grade categories")
	}

	byAssignment := make(map[string]models.Submission, len(submissions))
	for _, submission := range submissions {
		byAssignment[submission.AssignmentID] = submission
	}

	items := make([]models.AssignmentSubmission, 0, len(assignments))
	for _, assignment := range assignments {
		item := models.AssignmentSubmission{Assignment: assignment}
		if submission, ok := byAssignment[assignment.ID]; ok {
			sub := submission
			item.Submission = &sub
			if sub.Graded && sub.Score != nil && assignment.TotalPoints > 0 {
				pct := roundPercentage(float64(*sub.Score) / float64(assignment.TotalPoints) * 100)
				item.Percentage = &pct
			}
		}
		items = append(items, item)
	}

	return &models.StudentGradeReport{
		Enrollment:    enrollment.Enrollment,
		Grade:         grade,
		Assignments:   items,
		CategoryStats: plainCategoryAverages(graded, categories),
	}, nil
}

func (s *GradebookService) course(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func gradebookRow(enrollment models.EnrollmentDetail, grade models.CourseGrade) models.GradebookRow {
	row := models.GradebookRow{
		EnrollmentID: enrollment.ID,
		StudentID:    enrollment.StudentID,
		StudentName:  enrollment.StudentName,
		StudentEmail: enrollment.StudentEmail,
		Percentage:   grade.DisplayPercentage(),
		LetterGrade:  grade.DisplayLetter(),
		IsOverridden: grade.IsOverridden,
	}
	if !grade.LastCalculated.IsZero() {
		last := grade.LastCalculated
		row.LastCalculated = &last
	}
	return row
}

func gradebookStats(rows []models.GradebookRow) models.GradebookStats {
	var stats models.GradebookStats
	var sum float64
	highest, lowest := math.Inf(-1), math.Inf(1)
	for _, row := range rows {
		if row.Percentage == nil {
			continue
		}
		pct := *row.Percentage
		stats.Count++
		sum += pct
		highest = math.Max(highest, pct)
		lowest = math.Min(lowest, pct)
	}
	if stats.Count == 0 {
		return stats
	}
	avg := roundPercentage(sum / float64(stats.Count))
	stats.Average = &avg
	stats.Highest = &highest
	stats.Lowest = &lowest
	return stats
}
