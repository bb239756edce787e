package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/lms-gradebook-api/pkg/errors"
)

type fakeQuizStore struct {
	quizzes    map[string]models.Quiz
	questions  map[string][]models.Question
	attempts   map[string]*models.QuizAttempt
	responses  map[string]map[string]*models.QuizResponse
	submission *models.Submission
}

func newFakeQuizStore() *fakeQuizStore {
	return &fakeQuizStore{
		quizzes:   map[string]models.Quiz{},
		questions: map[string][]models.Question{},
		attempts:  map[string]*models.QuizAttempt{},
		responses: map[string]map[string]*models.QuizResponse{},
	}
}

func (f *fakeQuizStore) FindByID(ctx context.Context, id string) (*models.Quiz, error) {
	quiz, ok := f.quizzes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &quiz, nil
}

func (f *fakeQuizStore) ListQuestions(ctx context.Context, quizID string) ([]models.Question, error) {
	return append([]models.Question(nil), f.questions[quizID]...), nil
}

func (f *fakeQuizStore) FindAttempt(ctx context.Context, id string) (*models.QuizAttempt, error) {
	attempt, ok := f.attempts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *attempt
	return &copied, nil
}

func (f *fakeQuizStore) LastAttemptNumber(ctx context.Context, quizID, studentID string) (int, error) {
	last := 0
	for _, attempt := range f.attempts {
		if attempt.QuizID == quizID && attempt.StudentID == studentID && attempt.AttemptNumber > last {
			last = attempt.AttemptNumber
		}
	}
	return last, nil
}

func (f *fakeQuizStore) CreateAttempt(ctx context.Context, attempt *models.QuizAttempt) error {
	attempt.ID = fmt.Sprintf("attempt-%d", len(f.attempts)+1)
	copied := *attempt
	f.attempts[attempt.ID] = &copied
	return nil
}

func (f *fakeQuizStore) UpsertResponse(ctx context.Context, response *models.QuizResponse) error {
	if f.responses[response.AttemptID] == nil {
		f.responses[response.AttemptID] = map[string]*models.QuizResponse{}
	}
	if existing, ok := f.responses[response.AttemptID][response.QuestionID]; ok {
		existing.AnswerText = response.AnswerText
		return nil
	}
	response.ID = fmt.Sprintf("response-%s-%s", response.AttemptID, response.QuestionID)
	copied := *response
	f.responses[response.AttemptID][response.QuestionID] = &copied
	return nil
}

func (f *fakeQuizStore) ListResponses(ctx context.Context, attemptID string) ([]models.QuizResponse, error) {
	var result []models.QuizResponse
	for _, question := range f.questions["q1"] {
		if response, ok := f.responses[attemptID][question.ID]; ok {
			result = append(result, *response)
		}
	}
	return result, nil
}

func (f *fakeQuizStore) SaveGradedAttempt(ctx context.Context, attempt *models.QuizAttempt, responses []models.QuizResponse, submission *models.Submission) error {
	if stored, ok := f.attempts[attempt.ID]; ok && stored.SubmittedAt != nil {
		return appErrors.ErrAttemptSubmitted
	}
	copied := *attempt
	f.attempts[attempt.ID] = &copied
	for _, response := range responses {
		r := response
		f.responses[attempt.ID][response.QuestionID] = &r
	}
	f.submission = submission
	return nil
}

type quizFixture struct {
	store  *fakeQuizStore
	grades *fakeGradeCalculator
	svc    *QuizService
	now    time.Time
}

func newQuizFixture(quiz models.Quiz) *quizFixture {
	store := newFakeQuizStore()
	quiz.ID = "q1"
	quiz.AssignmentID = "a1"
	store.quizzes["q1"] = quiz
	store.questions["q1"] = []models.Question{
		{ID: "mc1", QuizID: "q1", QuestionType: models.QuestionTypeMultipleChoice, Points: 10, Order: 1, Choices: []models.QuestionChoice{
			{ID: "mc1-a", ChoiceText: "Paris", IsCorrect: true},
			{ID: "mc1-b", ChoiceText: "Rome"},
		}},
		{ID: "mc2", QuizID: "q1", QuestionType: models.QuestionTypeMultipleChoice, Points: 10, Order: 2, Choices: []models.QuestionChoice{
			{ID: "mc2-a", ChoiceText: "4", IsCorrect: true},
			{ID: "mc2-b", ChoiceText: "5"},
		}},
		{ID: "sa1", QuizID: "q1", QuestionType: models.QuestionTypeShortAnswer, Points: 5, Order: 3, Choices: []models.QuestionChoice{
			{ID: "sa1-a", ChoiceText: "Photosynthesis", IsCorrect: true},
		}},
	}
	assignments := &fakeAssignments{items: map[string]models.Assignment{
		"a1": {ID: "a1", CourseID: "c1", AssignmentType: models.AssignmentTypeQuiz, TotalPoints: 25},
	}}
	enrollments := &fakeEnrollments{}
	enrollments.add("e1", "s1", "c1")
	grades := &fakeGradeCalculator{}

	f := &quizFixture{store: store, grades: grades, now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	f.svc = NewQuizService(store, assignments, enrollments, grades, nil, nil, nil)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func TestQuizGradingRoundTrip(t *testing.T) {
	f := newQuizFixture(models.Quiz{PassPercentage: 50})
	ctx := context.Background()

	view, err := f.svc.StartAttempt(ctx, "q1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, view.Attempt.AttemptNumber)
	assert.Equal(t, models.AttemptStatusInProgress, view.Status)
	for _, question := range view.Questions {
		for _, choice := range question.Choices {
			assert.False(t, choice.IsCorrect, "correct answers are hidden during the attempt")
		}
	}

	_, err = f.svc.SaveResponses(ctx, view.Attempt.ID, "s1", SaveResponsesRequest{Answers: []QuizAnswer{
		{QuestionID: "mc1", AnswerText: "mc1-a"},
		{QuestionID: "mc2", AnswerText: "5"},
	}})
	require.NoError(t, err)

	graded, err := f.svc.Submit(ctx, view.Attempt.ID, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.AttemptStatusGraded, graded.Status)
	assert.Equal(t, 10, *graded.Attempt.Score)
	assert.Equal(t, 20, *graded.Attempt.TotalPoints)
	assert.True(t, graded.Attempt.Passed)
	assert.False(t, graded.Revealed)

	require.NotNil(t, f.store.submission)
	assert.Equal(t, "a1", f.store.submission.AssignmentID)
	assert.True(t, f.store.submission.Graded)
	assert.Equal(t, 10, *f.store.submission.Score)
	assert.Equal(t, "Auto-graded quiz attempt #1: PASSED (10/20 points)", f.store.submission.Feedback)
	assert.Equal(t, []string{"e1"}, f.grades.calls)
}

func TestQuizFailsBelowPassPercentage(t *testing.T) {
	f := newQuizFixture(models.Quiz{PassPercentage: 60, ShowCorrectAnswers: true})
	ctx := context.Background()

	view, err := f.svc.StartAttempt(ctx, "q1", "s1")
	require.NoError(t, err)
	_, err = f.svc.SaveResponses(ctx, view.Attempt.ID, "s1", SaveResponsesRequest{Answers: []QuizAnswer{
		{QuestionID: "mc1", AnswerText: "Paris"},
		{QuestionID: "mc2", AnswerText: "mc2-b"},
	}})
	require.NoError(t, err)

	graded, err := f.svc.Submit(ctx, view.Attempt.ID, "s1")
	require.NoError(t, err)
	assert.False(t, graded.Attempt.Passed)
	assert.True(t, graded.Revealed)
	assert.Contains(t, f.store.submission.Feedback, "FAILED")

	correct := 0
	for _, response := range graded.Responses {
		if response.IsCorrect {
			correct++
			assert.Equal(t, 10, response.PointsEarned)
		}
	}
	assert.Equal(t, 1, correct)
}

func TestQuizShortAnswerIgnoresCaseAndWhitespace(t *testing.T) {
	f := newQuizFixture(models.Quiz{PassPercentage: 100})
	ctx := context.Background()

	view, err := f.svc.StartAttempt(ctx, "q1", "s1")
	require.NoError(t, err)
	_, err = f.svc.SaveResponses(ctx, view.Attempt.ID, "s1", SaveResponsesRequest{Answers: []QuizAnswer{
		{QuestionID: "sa1", AnswerText: "  photoSYNTHESIS "},
	}})
	require.NoError(t, err)

	graded, err := f.svc.Submit(ctx, view.Attempt.ID, "s1")
	require.NoError(t, err)
	assert.Equal(t, 5, *graded.Attempt.Score)
	assert.Equal(t, 5, *graded.Attempt.TotalPoints)
	assert.True(t, graded.Attempt.Passed)
}

func TestQuizWithoutResponsesNeverPasses(t *testing.T) {
	f := newQuizFixture(models.Quiz{PassPercentage: 0})
	ctx := context.Background()

	view, err := f.svc.StartAttempt(ctx, "q1", "s1")
	require.NoError(t, err)
	graded, err := f.svc.Submit(ctx, view.Attempt.ID, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, *graded.Attempt.TotalPoints)
	assert.False(t, graded.Attempt.Passed)
}

func TestQuizAttemptLimits(t *testing.T) {
	f := newQuizFixture(models.Quiz{PassPercentage: 50})
	ctx := context.Background()

	_, err := f.svc.StartAttempt(ctx, "q1", "s1")
	require.NoError(t, err)
	_, err = f.svc.StartAttempt(ctx, "q1", "s1")
	requireAppCode(t, err, appErrors.ErrAttemptLimit.Code)

	multi := newQuizFixture(models.Quiz{PassPercentage: 50, AllowMultipleAttempts: true, MaxAttempts: 2})
	first, err := multi.svc.StartAttempt(ctx, "q1", "s1")
	require.NoError(t, err)
	second, err := multi.svc.StartAttempt(ctx, "q1", "s1")
	require.NoError(t, err)
	assert.Equal(t, first.Attempt.AttemptNumber+1, second.Attempt.AttemptNumber)
	_, err = multi.svc.StartAttempt(ctx, "q1", "s1")
	requireAppCode(t, err, appErrors.ErrAttemptLimit.Code)
}

func TestQuizRequiresEnrollment(t *testing.T) {
	f := newQuizFixture(models.Quiz{})
	_, err := f.svc.StartAttempt(context.Background(), "q1", "stranger")
	requireAppCode(t, err, appErrors.ErrForbidden.Code)
}

func TestQuizResponsesRejectedAfterSubmit(t *testing.T) {
	f := newQuizFixture(models.Quiz{})
	ctx := context.Background()

	view, err := f.svc.StartAttempt(ctx, "q1", "s1")
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, view.Attempt.ID, "s1")
	require.NoError(t, err)

	_, err = f.svc.SaveResponses(ctx, view.Attempt.ID, "s1", SaveResponsesRequest{Answers: []QuizAnswer{{QuestionID: "mc1", AnswerText: "Paris"}}})
	requireAppCode(t, err, appErrors.ErrAttemptClosed.Code)
	_, err = f.svc.Submit(ctx, view.Attempt.ID, "s1")
	requireAppCode(t, err, appErrors.ErrAttemptClosed.Code)
}

func TestQuizConcurrentSubmitGradesOnce(t *testing.T) {
	f := newQuizFixture(models.Quiz{})
	ctx := context.Background()

	view, err := f.svc.StartAttempt(ctx, "q1", "s1")
	require.NoError(t, err)
	_, err = f.svc.SaveResponses(ctx, view.Attempt.ID, "s1", SaveResponsesRequest{Answers: []QuizAnswer{{QuestionID: "mc1", AnswerText: "Paris"}}})
	require.NoError(t, err)

	// Both requests loaded the attempt while it was still in progress.
	stale, err := f.store.FindAttempt(ctx, view.Attempt.ID)
	require.NoError(t, err)
	first, err := f.svc.Submit(ctx, view.Attempt.ID, "s1")
	require.NoError(t, err)

	_, err = f.svc.Grade(ctx, stale)
	requireAppCode(t, err, appErrors.ErrAttemptClosed.Code)

	stored, err := f.store.FindAttempt(ctx, view.Attempt.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Score)
	assert.Equal(t, *first.Attempt.Score, *stored.Score)
}

func TestQuizResponsesRespectTimeLimit(t *testing.T) {
	limit := 30
	f := newQuizFixture(models.Quiz{TimeLimitMinutes: &limit})
	ctx := context.Background()

	view, err := f.svc.StartAttempt(ctx, "q1", "s1")
	require.NoError(t, err)
	f.now = f.now.Add(31 * time.Minute)

	_, err = f.svc.SaveResponses(ctx, view.Attempt.ID, "s1", SaveResponsesRequest{Answers: []QuizAnswer{{QuestionID: "mc1", AnswerText: "Paris"}}})
	requireAppCode(t, err, appErrors.ErrAttemptClosed.Code)
}

func TestQuizResponsesValidateOwnershipAndQuestions(t *testing.T) {
	f := newQuizFixture(models.Quiz{})
	ctx := context.Background()

	view, err := f.svc.StartAttempt(ctx, "q1", "s1")
	require.NoError(t, err)

	_, err = f.svc.SaveResponses(ctx, view.Attempt.ID, "s2", SaveResponsesRequest{Answers: []QuizAnswer{{QuestionID: "mc1", AnswerText: "Paris"}}})
	requireAppCode(t, err, appErrors.ErrForbidden.Code)

	_, err = f.svc.SaveResponses(ctx, view.Attempt.ID, "s1", SaveResponsesRequest{Answers: []QuizAnswer{{QuestionID: "other", AnswerText: "x"}}})
	requireAppCode(t, err, appErrors.ErrValidation.Code)

	_, err = f.svc.GetAttempt(ctx, "missing", "s1")
	requireAppCode(t, err, appErrors.ErrNotFound.Code)
}

func TestScoreAttemptSkipsForeignQuestions(t *testing.T) {
	questions := []models.Question{{ID: "tf", QuestionType: models.QuestionTypeTrueFalse, Points: 3, Choices: []models.QuestionChoice{
		{ID: "t", ChoiceText: "True", IsCorrect: true},
		{ID: "f", ChoiceText: "False"},
	}}}
	result := scoreAttempt(defaultQuestionGraders, questions, []models.QuizResponse{
		{ID: "r1", QuestionID: "tf", AnswerText: "True"},
		{ID: "r2", QuestionID: "elsewhere", AnswerText: "True"},
	}, 50)

	assert.Equal(t, 3, result.Score)
	assert.Equal(t, 3, result.TotalPoints)
	assert.True(t, result.Passed)
	require.Len(t, result.Responses, 1)
	assert.True(t, result.Responses[0].IsCorrect)
}
