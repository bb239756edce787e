package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
)

const enrollmentDetailSelect = `SELECT e.id, e.student_id, e.course_id, e.status, e.enrolled_at, e.completed_at,
        u.username AS student_username, u.full_name AS student_name, u.email AS student_email
        FROM enrollments e
        JOIN users u ON u.id = e.student_id`

// EnrollmentRepository reads course enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns an enrollment with student details or sql.ErrNoRows.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + " WHERE e.id = $1"
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByStudentAndCourse returns the student's enrollment in a course or sql.ErrNoRows.
func (r *EnrollmentRepository) FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + " WHERE e.student_id = $1 AND e.course_id = $2"
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, studentID, courseID); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListByCourse returns enrollments in a course with the given status, ordered by student name.
func (r *EnrollmentRepository) ListByCourse(ctx context.Context, courseID string, status models.EnrollmentStatus) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + " WHERE e.course_id = $1 AND e.status = $2 ORDER BY u.full_name, u.username"
	var details []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &details, query, courseID, status); err != nil {
		return nil, fmt.Errorf("list course enrollments: %w", err)
	}
	return details, nil
}
