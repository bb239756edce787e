package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
)

const submissionColumns = `id, assignment_id, student_id, submission_text, submitted_at, updated_at, graded, score, feedback, graded_by, graded_at`

// SubmissionRepository persists assignment submissions.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// FindByID returns a submission or sql.ErrNoRows.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE id = $1"
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// FindByAssignmentAndStudent returns the student's submission or sql.ErrNoRows.
func (r *SubmissionRepository) FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE assignment_id = $1 AND student_id = $2"
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, assignmentID, studentID); err != nil {
		return nil, err
	}
	return &submission, nil
}

// ListGraded returns graded submissions of a student in a course joined with
// their assignment's type and total points.
func (r *SubmissionRepository) ListGraded(ctx context.Context, studentID, courseID string) ([]models.GradedSubmission, error) {
	const query = `SELECT s.id AS submission_id, a.id AS assignment_id, a.assignment_type, a.total_points, s.score
        FROM submissions s
        JOIN assignments a ON a.id = s.assignment_id
        WHERE s.student_id = $1 AND a.course_id = $2 AND s.graded = TRUE
        ORDER BY a.due_date, a.id`
	var graded []models.GradedSubmission
	if err := r.db.SelectContext(ctx, &graded, query, studentID, courseID); err != nil {
		return nil, fmt.Errorf("list graded submissions: %w", err)
	}
	return graded, nil
}

// ListByStudentAndCourse returns every submission of a student in a course.
func (r *SubmissionRepository) ListByStudentAndCourse(ctx context.Context, studentID, courseID string) ([]models.Submission, error) {
	const query = `SELECT s.id, s.assignment_id, s.student_id, s.submission_text, s.submitted_at, s.updated_at,
        s.graded, s.score, s.feedback, s.graded_by, s.graded_at
        FROM submissions s
        JOIN assignments a ON a.id = s.assignment_id
        WHERE s.student_id = $1 AND a.course_id = $2`
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, studentID, courseID); err != nil {
		return nil, fmt.Errorf("list student submissions: %w", err)
	}
	return submissions, nil
}

// SaveText creates the submission or replaces the text of an ungraded one.
// It returns sql.ErrNoRows when the existing submission is already graded.
func (r *SubmissionRepository) SaveText(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	submission.SubmittedAt = now
	submission.UpdatedAt = now

	const query = `INSERT INTO submissions (id, assignment_id, student_id, submission_text, submitted_at, updated_at, graded, feedback)
        VALUES ($1, $2, $3, $4, $5, $6, FALSE, '')
        ON CONFLICT (assignment_id, student_id)
        DO UPDATE SET submission_text = EXCLUDED.submission_text, updated_at = EXCLUDED.updated_at
        WHERE submissions.graded = FALSE
        RETURNING ` + submissionColumns
	return r.db.GetContext(ctx, submission, query,
		submission.ID, submission.AssignmentID, submission.StudentID, submission.SubmissionText, now, now)
}

// Grade stores an instructor's score and feedback.
func (r *SubmissionRepository) Grade(ctx context.Context, submission *models.Submission) error {
	submission.UpdatedAt = time.Now().UTC()
	const query = `UPDATE submissions
        SET score = :score, feedback = :feedback, graded = :graded, graded_by = :graded_by, graded_at = :graded_at, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("grade submission: %w", err)
	}
	return nil
}

// upsertGradedSubmission writes an auto-graded submission keyed by
// (assignment, student), keeping any existing submission text.
func upsertGradedSubmission(ctx context.Context, exec sqlx.ExtContext, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now().UTC()
	}
	submission.UpdatedAt = submission.SubmittedAt

	const query = `INSERT INTO submissions (id, assignment_id, student_id, submission_text, submitted_at, updated_at, graded, score, feedback, graded_by, graded_at)
        VALUES (:id, :assignment_id, :student_id, :submission_text, :submitted_at, :updated_at, :graded, :score, :feedback, :graded_by, :graded_at)
        ON CONFLICT (assignment_id, student_id)
        DO UPDATE SET graded = EXCLUDED.graded, score = EXCLUDED.score, feedback = EXCLUDED.feedback,
            graded_by = EXCLUDED.graded_by, graded_at = EXCLUDED.graded_at, updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, submission); err != nil {
		return fmt.Errorf("upsert graded submission: %w", err)
	}
	return nil
}
