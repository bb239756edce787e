package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
)

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

type fakeCourseGradeStore struct {
	mu      sync.Mutex
	grades  map[string]*models.CourseGrade
	history []models.GradeHistory
	saveErr error
	seq     int
}

func newFakeCourseGradeStore() *fakeCourseGradeStore {
	return &fakeCourseGradeStore{grades: make(map[string]*models.CourseGrade)}
}

func (f *fakeCourseGradeStore) FindByEnrollment(ctx context.Context, enrollmentID string) (*models.CourseGrade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	grade, ok := f.grades[enrollmentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *grade
	return &copied, nil
}

func (f *fakeCourseGradeStore) ListByCourse(ctx context.Context, courseID string) (map[string]models.CourseGrade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make(map[string]models.CourseGrade, len(f.grades))
	for id, grade := range f.grades {
		result[id] = *grade
	}
	return result, nil
}

func (f *fakeCourseGradeStore) SaveCalculated(ctx context.Context, grade *models.CourseGrade, history *models.GradeHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	stored, ok := f.grades[grade.EnrollmentID]
	if !ok {
		f.seq++
		grade.ID = fmt.Sprintf("grade-%d", f.seq)
		copied := *grade
		stored = &copied
		f.grades[grade.EnrollmentID] = stored
	}
	grade.ID = stored.ID
	stored.Percentage = grade.Percentage
	stored.LetterGrade = grade.LetterGrade
	stored.LastCalculated = grade.LastCalculated
	f.appendHistory(stored.ID, history)
	return nil
}

func (f *fakeCourseGradeStore) SaveOverride(ctx context.Context, grade *models.CourseGrade, history *models.GradeHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	copied := *grade
	f.grades[grade.EnrollmentID] = &copied
	f.appendHistory(grade.ID, history)
	return nil
}

func (f *fakeCourseGradeStore) appendHistory(gradeID string, history *models.GradeHistory) {
	if history == nil {
		return
	}
	history.CourseGradeID = gradeID
	history.ID = fmt.Sprintf("history-%d", len(f.history)+1)
	f.history = append(f.history, *history)
}

func (f *fakeCourseGradeStore) ListHistory(ctx context.Context, courseGradeID string) ([]models.GradeHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.GradeHistory
	for i := len(f.history) - 1; i >= 0; i-- {
		if f.history[i].CourseGradeID == courseGradeID {
			result = append(result, f.history[i])
		}
	}
	return result, nil
}

type fakeSubmissions struct {
	mu      sync.Mutex
	graded  map[string][]models.GradedSubmission
	byID    map[string]*models.Submission
	list    []models.Submission
	writes  []*models.Submission
	saveErr error
}

func newFakeSubmissions() *fakeSubmissions {
	return &fakeSubmissions{graded: make(map[string][]models.GradedSubmission), byID: make(map[string]*models.Submission)}
}

func (f *fakeSubmissions) add(studentID, courseID string, assignmentType models.AssignmentType, score, total int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := studentID + "/" + courseID
	f.graded[key] = append(f.graded[key], models.GradedSubmission{
		SubmissionID:   fmt.Sprintf("sub-%d", len(f.graded[key])+1),
		AssignmentID:   fmt.Sprintf("asg-%s-%d", assignmentType, len(f.graded[key])+1),
		AssignmentType: assignmentType,
		TotalPoints:    total,
		Score:          intPtr(score),
	})
}

func (f *fakeSubmissions) ListGraded(ctx context.Context, studentID, courseID string) ([]models.GradedSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.GradedSubmission(nil), f.graded[studentID+"/"+courseID]...), nil
}

func (f *fakeSubmissions) ListByStudentAndCourse(ctx context.Context, studentID, courseID string) ([]models.Submission, error) {
	return f.list, nil
}

func (f *fakeSubmissions) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *sub
	return &copied, nil
}

func (f *fakeSubmissions) SaveText(ctx context.Context, submission *models.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	for _, existing := range f.byID {
		if existing.AssignmentID == submission.AssignmentID && existing.StudentID == submission.StudentID {
			if existing.Graded {
				return sql.ErrNoRows
			}
			existing.SubmissionText = submission.SubmissionText
			*submission = *existing
			return nil
		}
	}
	submission.ID = fmt.Sprintf("submission-%d", len(f.byID)+1)
	copied := *submission
	f.byID[submission.ID] = &copied
	return nil
}

func (f *fakeSubmissions) Grade(ctx context.Context, submission *models.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *submission
	f.byID[submission.ID] = &copied
	f.writes = append(f.writes, &copied)
	return nil
}

type fakeGradingConfig struct {
	categories map[string][]models.GradeCategory
	scales     map[string]*models.GradeScale
	existsErr  error
}

func newFakeGradingConfig() *fakeGradingConfig {
	return &fakeGradingConfig{categories: make(map[string][]models.GradeCategory), scales: make(map[string]*models.GradeScale)}
}

func (f *fakeGradingConfig) ListCategories(ctx context.Context, courseID string) ([]models.GradeCategory, error) {
	categories := append([]models.GradeCategory(nil), f.categories[courseID]...)
	sort.SliceStable(categories, func(i, j int) bool { return categories[i].Weight > categories[j].Weight })
	return categories, nil
}

func (f *fakeGradingConfig) FindCategory(ctx context.Context, id string) (*models.GradeCategory, error) {
	for _, categories := range f.categories {
		for i := range categories {
			if categories[i].ID == id {
				copied := categories[i]
				return &copied, nil
			}
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeGradingConfig) CategoryExists(ctx context.Context, courseID string, assignmentType models.AssignmentType, excludeID string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	for _, category := range f.categories[courseID] {
		if category.AssignmentType == assignmentType && category.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeGradingConfig) CreateCategory(ctx context.Context, category *models.GradeCategory) error {
	category.ID = fmt.Sprintf("cat-%d", len(f.categories[category.CourseID])+1)
	f.categories[category.CourseID] = append(f.categories[category.CourseID], *category)
	return nil
}

func (f *fakeGradingConfig) UpdateCategory(ctx context.Context, category *models.GradeCategory) error {
	categories := f.categories[category.CourseID]
	for i := range categories {
		if categories[i].ID == category.ID {
			categories[i] = *category
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeGradingConfig) DeleteCategory(ctx context.Context, id string) error {
	for courseID, categories := range f.categories {
		for i := range categories {
			if categories[i].ID == id {
				f.categories[courseID] = append(categories[:i], categories[i+1:]...)
				return nil
			}
		}
	}
	return sql.ErrNoRows
}

func (f *fakeGradingConfig) FindScale(ctx context.Context, courseID string) (*models.GradeScale, error) {
	scale, ok := f.scales[courseID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *scale
	return &copied, nil
}

func (f *fakeGradingConfig) UpsertScale(ctx context.Context, scale *models.GradeScale) error {
	copied := *scale
	f.scales[scale.CourseID] = &copied
	return nil
}

type fakeEnrollments struct {
	items []models.EnrollmentDetail
}

func (f *fakeEnrollments) add(id, studentID, courseID string) models.EnrollmentDetail {
	detail := models.EnrollmentDetail{
		Enrollment: models.Enrollment{
			ID:        id,
			StudentID: studentID,
			CourseID:  courseID,
			Status:    models.EnrollmentStatusEnrolled,
		},
		StudentName:  "Student " + studentID,
		StudentEmail: studentID + "@example.edu",
	}
	f.items = append(f.items, detail)
	return detail
}

func (f *fakeEnrollments) FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	for i := range f.items {
		if f.items[i].ID == id {
			copied := f.items[i]
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeEnrollments) FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.EnrollmentDetail, error) {
	for i := range f.items {
		if f.items[i].StudentID == studentID && f.items[i].CourseID == courseID {
			copied := f.items[i]
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeEnrollments) ListByCourse(ctx context.Context, courseID string, status models.EnrollmentStatus) ([]models.EnrollmentDetail, error) {
	var result []models.EnrollmentDetail
	for _, item := range f.items {
		if item.CourseID == courseID && (status == "" || item.Status == status) {
			result = append(result, item)
		}
	}
	return result, nil
}

type fakeCourses struct {
	courses map[string]models.Course
}

func (f *fakeCourses) FindByID(ctx context.Context, id string) (*models.Course, error) {
	course, ok := f.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &course, nil
}

type fakeAssignments struct {
	items map[string]models.Assignment
}

func (f *fakeAssignments) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &assignment, nil
}

func (f *fakeAssignments) ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error) {
	var result []models.Assignment
	for _, assignment := range f.items {
		if assignment.CourseID == courseID {
			result = append(result, assignment)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

type fakeNotifier struct {
	courseID   string
	studentIDs []string
	err        error
}

func (f *fakeNotifier) NotifyGradeUpdates(ctx context.Context, courseID string, studentIDs []string) error {
	f.courseID = courseID
	f.studentIDs = append([]string(nil), studentIDs...)
	return f.err
}

type fakeGradeCalculator struct {
	calls []string
}

func (f *fakeGradeCalculator) Calculate(ctx context.Context, enrollmentID string) (*models.CourseGrade, error) {
	f.calls = append(f.calls, enrollmentID)
	return &models.CourseGrade{EnrollmentID: enrollmentID}, nil
}
