package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
	"github.com/noah-isme/lms-gradebook-api/pkg/database"
	appErrors "github.com/noah-isme/lms-gradebook-api/pkg/errors"
)

const quizAttemptColumns = `id, quiz_id, student_id, attempt_number, started_at, submitted_at, score, total_points, passed`

// QuizRepository persists quizzes, attempts and responses.
type QuizRepository struct {
	db *sqlx.DB
}

// NewQuizRepository constructs the repository.
func NewQuizRepository(db *sqlx.DB) *QuizRepository {
	return &QuizRepository{db: db}
}

// FindByID returns a quiz or sql.ErrNoRows.
func (r *QuizRepository) FindByID(ctx context.Context, id string) (*models.Quiz, error) {
	const query = `SELECT id, assignment_id, time_limit, allow_multiple_attempts, max_attempts, show_correct_answers,
        randomize_questions, pass_percentage, created_at
        FROM quizzes WHERE id = $1`
	var quiz models.Quiz
	if err := r.db.GetContext(ctx, &quiz, query, id); err != nil {
		return nil, err
	}
	return &quiz, nil
}

// ListQuestions returns the quiz's questions in order with their choices attached.
func (r *QuizRepository) ListQuestions(ctx context.Context, quizID string) ([]models.Question, error) {
	const questionQuery = `SELECT id, quiz_id, question_text, question_type, points, order_index
        FROM questions WHERE quiz_id = $1 ORDER BY order_index, id`
	var questions []models.Question
	if err := r.db.SelectContext(ctx, &questions, questionQuery, quizID); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return questions, nil
	}

	ids := make([]string, len(questions))
	index := make(map[string]int, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
		index[q.ID] = i
	}
	choiceQuery, args, err := sqlx.In(`SELECT id, question_id, choice_text, is_correct, order_index
        FROM question_choices WHERE question_id IN (?) ORDER BY order_index, id`, ids)
	if err != nil {
		return nil, fmt.Errorf("build choice query: %w", err)
	}
	var choices []models.QuestionChoice
	if err := r.db.SelectContext(ctx, &choices, r.db.Rebind(choiceQuery), args...); err != nil {
		return nil, fmt.Errorf("list question choices: %w", err)
	}
	for _, choice := range choices {
		if i, ok := index[choice.QuestionID]; ok {
			questions[i].Choices = append(questions[i].Choices, choice)
		}
	}
	return questions, nil
}

// FindAttempt returns an attempt or sql.ErrNoRows.
func (r *QuizRepository) FindAttempt(ctx context.Context, id string) (*models.QuizAttempt, error) {
	query := "SELECT " + quizAttemptColumns + " FROM quiz_attempts WHERE id = $1"
	var attempt models.QuizAttempt
	if err := r.db.GetContext(ctx, &attempt, query, id); err != nil {
		return nil, err
	}
	return &attempt, nil
}

// LastAttemptNumber returns the highest attempt number of a student on a quiz, or 0.
func (r *QuizRepository) LastAttemptNumber(ctx context.Context, quizID, studentID string) (int, error) {
	const query = `SELECT COALESCE(MAX(attempt_number), 0) FROM quiz_attempts WHERE quiz_id = $1 AND student_id = $2`
	var last int
	if err := r.db.GetContext(ctx, &last, query, quizID, studentID); err != nil {
		return 0, fmt.Errorf("last attempt number: %w", err)
	}
	return last, nil
}

// CreateAttempt inserts a new attempt. (quiz_id, student_id, attempt_number) is unique.
func (r *QuizRepository) CreateAttempt(ctx context.Context, attempt *models.QuizAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.StartedAt.IsZero() {
		attempt.StartedAt = time.Now().UTC()
	}
	const query = `INSERT INTO quiz_attempts (id, quiz_id, student_id, attempt_number, started_at, passed)
        VALUES (:id, :quiz_id, :student_id, :attempt_number, :started_at, FALSE)`
	if _, err := r.db.NamedExecContext(ctx, query, attempt); err != nil {
		return fmt.Errorf("create quiz attempt: %w", err)
	}
	return nil
}

// UpsertResponse records or replaces the answer to one question.
func (r *QuizRepository) UpsertResponse(ctx context.Context, response *models.QuizResponse) error {
	if response.ID == "" {
		response.ID = uuid.NewString()
	}
	const query = `INSERT INTO quiz_responses (id, attempt_id, question_id, answer_text, is_correct, points_earned)
        VALUES (:id, :attempt_id, :question_id, :answer_text, FALSE, 0)
        ON CONFLICT (attempt_id, question_id)
        DO UPDATE SET answer_text = EXCLUDED.answer_text`
	if _, err := r.db.NamedExecContext(ctx, query, response); err != nil {
		return fmt.Errorf("upsert quiz response: %w", err)
	}
	return nil
}

// ListResponses returns the attempt's responses.
func (r *QuizRepository) ListResponses(ctx context.Context, attemptID string) ([]models.QuizResponse, error) {
	const query = `SELECT id, attempt_id, question_id, answer_text, is_correct, points_earned
        FROM quiz_responses WHERE attempt_id = $1 ORDER BY id`
	var responses []models.QuizResponse
	if err := r.db.SelectContext(ctx, &responses, query, attemptID); err != nil {
		return nil, fmt.Errorf("list quiz responses: %w", err)
	}
	return responses, nil
}

// SaveGradedAttempt persists the scored responses, the attempt result and the
// materialized submission in a single transaction. It returns
// appErrors.ErrAttemptSubmitted when the attempt was already submitted.
func (r *QuizRepository) SaveGradedAttempt(ctx context.Context, attempt *models.QuizAttempt, responses []models.QuizResponse, submission *models.Submission) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const attemptQuery = `UPDATE quiz_attempts
            SET submitted_at = :submitted_at, score = :score, total_points = :total_points, passed = :passed
            WHERE id = :id AND submitted_at IS NULL`
		result, err := tx.NamedExecContext(ctx, attemptQuery, attempt)
		if err != nil {
			return fmt.Errorf("update quiz attempt: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("update quiz attempt: %w", err)
		}
		if affected == 0 {
			return appErrors.ErrAttemptSubmitted
		}

		const responseQuery = `UPDATE quiz_responses SET is_correct = :is_correct, points_earned = :points_earned WHERE id = :id`
		for i := range responses {
			if _, err := tx.NamedExecContext(ctx, responseQuery, responses[i]); err != nil {
				return fmt.Errorf("update quiz response: %w", err)
			}
		}

		return upsertGradedSubmission(ctx, tx, submission)
	})
}
