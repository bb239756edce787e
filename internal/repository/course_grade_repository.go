package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
	"github.com/noah-isme/lms-gradebook-api/pkg/database"
)

const courseGradeColumns = `cg.id, cg.enrollment_id, cg.percentage, cg.letter_grade, cg.is_overridden, cg.override_percentage,
        cg.override_letter, cg.override_reason, cg.overridden_by, cg.overridden_at, cg.last_calculated, cg.created_at`

// CourseGradeRepository persists course grades and their append-only history.
type CourseGradeRepository struct {
	db *sqlx.DB
}

// NewCourseGradeRepository constructs the repository.
func NewCourseGradeRepository(db *sqlx.DB) *CourseGradeRepository {
	return &CourseGradeRepository{db: db}
}

// FindByEnrollment returns the enrollment's grade or sql.ErrNoRows.
func (r *CourseGradeRepository) FindByEnrollment(ctx context.Context, enrollmentID string) (*models.CourseGrade, error) {
	query := "SELECT " + courseGradeColumns + " FROM course_grades cg WHERE cg.enrollment_id = $1"
	var grade models.CourseGrade
	if err := r.db.GetContext(ctx, &grade, query, enrollmentID); err != nil {
		return nil, err
	}
	return &grade, nil
}

// ListByCourse returns existing grades for a course keyed by enrollment id.
func (r *CourseGradeRepository) ListByCourse(ctx context.Context, courseID string) (map[string]models.CourseGrade, error) {
	query := "SELECT " + courseGradeColumns + ` FROM course_grades cg
        JOIN enrollments e ON e.id = cg.enrollment_id
        WHERE e.course_id = $1`
	var grades []models.CourseGrade
	if err := r.db.SelectContext(ctx, &grades, query, courseID); err != nil {
		return nil, fmt.Errorf("list course grades: %w", err)
	}
	result := make(map[string]models.CourseGrade, len(grades))
	for _, grade := range grades {
		result[grade.EnrollmentID] = grade
	}
	return result, nil
}

// SaveCalculated upserts the calculated fields only, leaving any override
// untouched, and appends history when provided. Both writes share a transaction.
func (r *CourseGradeRepository) SaveCalculated(ctx context.Context, grade *models.CourseGrade, history *models.GradeHistory) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	if grade.LastCalculated.IsZero() {
		grade.LastCalculated = time.Now().UTC()
	}
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = grade.LastCalculated
	}

	const upsert = `INSERT INTO course_grades (id, enrollment_id, percentage, letter_grade, is_overridden, override_letter, override_reason, last_calculated, created_at)
        VALUES ($1, $2, $3, $4, FALSE, '', '', $5, $6)
        ON CONFLICT (enrollment_id)
        DO UPDATE SET percentage = EXCLUDED.percentage, letter_grade = EXCLUDED.letter_grade, last_calculated = EXCLUDED.last_calculated
        RETURNING id`

	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var id string
		if err := tx.QueryRowxContext(ctx, upsert,
			grade.ID, grade.EnrollmentID, grade.Percentage, grade.LetterGrade, grade.LastCalculated, grade.CreatedAt,
		).Scan(&id); err != nil {
			return fmt.Errorf("upsert course grade: %w", err)
		}
		grade.ID = id
		if history == nil {
			return nil
		}
		history.CourseGradeID = id
		return insertGradeHistory(ctx, tx, history)
	})
}

// SaveOverride writes the override fields of an existing grade together with
// the history row describing the transition.
func (r *CourseGradeRepository) SaveOverride(ctx context.Context, grade *models.CourseGrade, history *models.GradeHistory) error {
	const update = `UPDATE course_grades
        SET is_overridden = :is_overridden, override_percentage = :override_percentage, override_letter = :override_letter,
            override_reason = :override_reason, overridden_by = :overridden_by, overridden_at = :overridden_at
        WHERE id = :id`

	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, update, grade); err != nil {
			return fmt.Errorf("update grade override: %w", err)
		}
		history.CourseGradeID = grade.ID
		return insertGradeHistory(ctx, tx, history)
	})
}

// ListHistory returns the grade's history, newest first.
func (r *CourseGradeRepository) ListHistory(ctx context.Context, courseGradeID string) ([]models.GradeHistory, error) {
	const query = `SELECT id, course_grade_id, changed_by, change_type, old_percentage, new_percentage, old_letter, new_letter, reason, timestamp
        FROM grade_history WHERE course_grade_id = $1 ORDER BY timestamp DESC`
	var history []models.GradeHistory
	if err := r.db.SelectContext(ctx, &history, query, courseGradeID); err != nil {
		return nil, fmt.Errorf("list grade history: %w", err)
	}
	return history, nil
}

func insertGradeHistory(ctx context.Context, exec sqlx.ExtContext, history *models.GradeHistory) error {
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	if history.Timestamp.IsZero() {
		history.Timestamp = time.Now().UTC()
	}
	const query = `INSERT INTO grade_history (id, course_grade_id, changed_by, change_type, old_percentage, new_percentage, old_letter, new_letter, reason, timestamp)
        VALUES (:id, :course_grade_id, :changed_by, :change_type, :old_percentage, :new_percentage, :old_letter, :new_letter, :reason, :timestamp)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, history); err != nil {
		return fmt.Errorf("insert grade history: %w", err)
	}
	return nil
}
