package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
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

type quizStore interface {
	FindByID(ctx context.Context, id string) (*models.Quiz, error)
	ListQuestions(ctx context.Context, quizID string) ([]models.Question, error)
	FindAttempt(ctx context.Context, id string) (*models.QuizAttempt, error)
	LastAttemptNumber(ctx context.Context, quizID, studentID string) (int, error)
	CreateAttempt(ctx context.Context, attempt *models.QuizAttempt) error
	UpsertResponse(ctx context.Context, response *models.QuizResponse) error
	ListResponses(ctx context.Context, attemptID string) ([]models.QuizResponse, error)
	SaveGradedAttempt(ctx context.Context, attempt *models.QuizAttempt, responses []models.QuizResponse, submission *models.Submission) error
}

// QuizAnswer is one answer in a response batch.
type QuizAnswer struct {
	QuestionID string `json:"question_id" validate:"required"`
	AnswerText string `json:"answer_text" validate:"max=5000"`
}

// SaveResponsesRequest records answers for an in-progress attempt.
type SaveResponsesRequest struct {
	Answers []QuizAnswer `json:"answers" validate:"required,min=1,dive"`
}

// QuizService runs quiz attempts from start to auto-grading.
type QuizService struct {
	quizzes     quizStore
	assignments assignmentReader
	enrollments enrollmentReader
	grades      enrollmentGradeCalculator
	graders     map[models.QuestionType]questionGrader
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewQuizService constructs the quiz service. grades and metrics may be nil.
func NewQuizService(quizzes quizStore, assignments assignmentReader, enrollments enrollmentReader, grades enrollmentGradeCalculator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *QuizService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuizService{
		quizzes:     quizzes,
		assignments: assignments,
		enrollments: enrollments,
		grades:      grades,
		graders:     defaultQuestionGraders,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		tracer:      otel.Tracer("github.com/noah-isme/lms-gradebook-api/internal/service/quiz"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// StartAttempt opens the next attempt for an enrolled student.
func (s *QuizService) StartAttempt(ctx context.Context, quizID, studentID string) (*models.AttemptView, error) {
	quiz, err := s.quiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	assignment, err := s.assignments.FindByID(ctx, quiz.AssignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quiz assignment")
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

	last, err := s.quizzes.LastAttemptNumber(ctx, quizID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count attempts")
	}
	if last >= quiz.AttemptLimit() {
		return nil, appErrors.Clone(appErrors.ErrAttemptLimit, fmt.Sprintf("maximum of %d attempts reached", quiz.AttemptLimit()))
	}

	attempt := &models.QuizAttempt{
		QuizID:        quizID,
		StudentID:     studentID,
		AttemptNumber: last + 1,
		StartedAt:     s.now(),
	}
	if err := s.quizzes.CreateAttempt(ctx, attempt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start attempt")
	}

	questions, err := s.quizzes.ListQuestions(ctx, quizID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load questions")
	}
	if quiz.RandomizeQuestions {
		rand.Shuffle(len(questions), func(i, j int) { questions[i], questions[j] = questions[j], questions[i] })
	}
	return buildAttemptView(quiz, attempt, questions, nil), nil
}

// SaveResponses upserts answers while the attempt is in progress and within its time limit.
func (s *QuizService) SaveResponses(ctx context.Context, attemptID, studentID string, req SaveResponsesRequest) (*models.AttemptView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid response payload")
	}
	attempt, err := s.ownedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if attempt.Status() != models.AttemptStatusInProgress {
		return nil, appErrors.Clone(appErrors.ErrAttemptClosed, "attempt has already been submitted")
	}
	quiz, err := s.quiz(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}
	if quiz.TimeLimitMinutes != nil && *quiz.TimeLimitMinutes > 0 {
		deadline := attempt.StartedAt.Add(time.Duration(*quiz.TimeLimitMinutes) * time.Minute)
		if s.now().After(deadline) {
			return nil, appErrors.Clone(appErrors.ErrAttemptClosed, "time limit exceeded")
		}
	}

	questions, err := s.quizzes.ListQuestions(ctx, quiz.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load questions")
	}
	known := make(map[string]struct{}, len(questions))
	for _, question := range questions {
		known[question.ID] = struct{}{}
	}
	for _, answer := range req.Answers {
		if _, ok := known[answer.QuestionID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %s does not belong to this quiz", answer.QuestionID))
		}
	}

	for _, answer := range req.Answers {
		response := &models.QuizResponse{AttemptID: attempt.ID, QuestionID: answer.QuestionID, AnswerText: answer.AnswerText}
		if err := s.quizzes.UpsertResponse(ctx, response); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save response")
		}
	}
	return s.view(ctx, quiz, attempt)
}

// Submit closes an in-progress attempt and grades it.
func (s *QuizService) Submit(ctx context.Context, attemptID, studentID string) (*models.AttemptView, error) {
	attempt, err := s.ownedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if attempt.Status() != models.AttemptStatusInProgress {
		return nil, appErrors.Clone(appErrors.ErrAttemptClosed, "attempt has already been submitted")
	}
	return s.Grade(ctx, attempt)
}

// Grade scores the attempt from its current responses, stores the result and
// upserts the quiz assignment's submission. Only the first grade of an attempt
// is stored; a concurrent submit gets ATTEMPT_CLOSED.
func (s *QuizService) Grade(ctx context.Context, attempt *models.QuizAttempt) (*models.AttemptView, error) {
	ctx, span := s.tracer.Start(ctx, "quiz.grade_attempt")
	span.SetAttributes(
		attribute.String("quiz.attempt_id", attempt.ID),
		attribute.Int("quiz.attempt_number", attempt.AttemptNumber),
	)
	defer span.End()

	quiz, err := s.quiz(ctx, attempt.QuizID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	questions, err := s.quizzes.ListQuestions(ctx, quiz.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "question_lookup_failed")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load questions")
	}
	responses, err := s.quizzes.ListResponses(ctx, attempt.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "response_lookup_failed")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load responses")
	}

	result := scoreAttempt(s.graders, questions, responses, quiz.PassPercentage)

	now := s.now()
	score, total := result.Score, result.TotalPoints
	attempt.SubmittedAt = &now
	attempt.Score = &score
	attempt.TotalPoints = &total
	attempt.Passed = result.Passed

	outcome := "FAILED"
	if result.Passed {
		outcome = "PASSED"
	}
	submission := &models.Submission{
		AssignmentID: quiz.AssignmentID,
		StudentID:    attempt.StudentID,
		SubmittedAt:  now,
		Graded:       true,
		Score:        &score,
		Feedback:     fmt.Sprintf("Auto-graded quiz attempt #%d: %s (%d/%d points)", attempt.AttemptNumber, outcome, score, total),
		GradedAt:     &now,
	}

	if err := s.quizzes.SaveGradedAttempt(ctx, attempt, result.Responses, submission); err != nil {
		span.RecordError(err)
		if errors.Is(err, appErrors.ErrAttemptSubmitted) {
			span.SetStatus(codes.Error, "attempt_closed")
			return nil, appErrors.Clone(appErrors.ErrAttemptClosed, "attempt has already been submitted")
		}
		span.SetStatus(codes.Error, "save_failed")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save graded attempt")
	}
	span.SetAttributes(
		attribute.Int("quiz.score", score),
		attribute.Int("quiz.total_points", total),
		attribute.Bool("quiz.passed", result.Passed),
	)
	s.metrics.ObserveQuizGraded(result.Passed)
	s.logger.Info("quiz attempt graded",
		zap.String("attempt_id", attempt.ID),
		zap.Int("score", score),
		zap.Int("total_points", total),
		zap.Bool("passed", result.Passed),
	)

	s.refreshCourseGrade(ctx, quiz.AssignmentID, attempt.StudentID)
	return buildAttemptView(quiz, attempt, questions, result.Responses), nil
}

// GetAttempt returns the student's attempt with answers.
func (s *QuizService) GetAttempt(ctx context.Context, attemptID, studentID string) (*models.AttemptView, error) {
	attempt, err := s.ownedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	quiz, err := s.quiz(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, quiz, attempt)
}

func (s *QuizService) view(ctx context.Context, quiz *models.Quiz, attempt *models.QuizAttempt) (*models.AttemptView, error) {
	questions, err := s.quizzes.ListQuestions(ctx, quiz.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load questions")
	}
	responses, err := s.quizzes.ListResponses(ctx, attempt.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load responses")
	}
	return buildAttemptView(quiz, attempt, questions, responses), nil
}

func (s *QuizService) refreshCourseGrade(ctx context.Context, assignmentID, studentID string) {
	if s.grades == nil {
		return
	}
	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		s.logger.Warn("skip grade refresh", zap.String("assignment_id", assignmentID), zap.Error(err))
		return
	}
	enrollment, err := s.enrollments.FindByStudentAndCourse(ctx, studentID, assignment.CourseID)
	if err != nil {
		s.logger.Warn("skip grade refresh", zap.String("student_id", studentID), zap.Error(err))
		return
	}
	if _, err := s.grades.Calculate(ctx, enrollment.ID); err != nil {
		s.logger.Warn("grade refresh failed", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
	}
}

func (s *QuizService) quiz(ctx context.Context, id string) (*models.Quiz, error) {
	quiz, err := s.quizzes.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "quiz not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quiz")
	}
	return quiz, nil
}

func (s *QuizService) ownedAttempt(ctx context.Context, attemptID, studentID string) (*models.QuizAttempt, error) {
	attempt, err := s.quizzes.FindAttempt(ctx, attemptID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "quiz attempt not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quiz attempt")
	}
	if attempt.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "attempt belongs to another student")
	}
	return attempt, nil
}

// buildAttemptView hides correctness unless the attempt is graded and the quiz
// reveals answers.
func buildAttemptView(quiz *models.Quiz, attempt *models.QuizAttempt, questions []models.Question, responses []models.QuizResponse) *models.AttemptView {
	revealed := attempt.Status() == models.AttemptStatusGraded && quiz.ShowCorrectAnswers
	view := &models.AttemptView{
		Attempt:   *attempt,
		Status:    attempt.Status(),
		Questions: make([]models.Question, 0, len(questions)),
		Responses: make([]models.QuizResponse, 0, len(responses)),
		Revealed:  revealed,
	}
	for _, question := range questions {
		if !revealed {
			choices := make([]models.QuestionChoice, 0, len(question.Choices))
			if question.QuestionType != models.QuestionTypeShortAnswer {
				for _, choice := range question.Choices {
					choice.IsCorrect = false
					choices = append(choices, choice)
				}
			}
			question.Choices = choices
		}
		view.Questions = append(view.Questions, question)
	}
	for _, response := range responses {
		if !revealed {
			response.IsCorrect = false
			response.PointsEarned = 0
		}
		view.Responses = append(view.Responses, response)
	}
	return view
}
