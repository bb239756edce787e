package service

import (
	"strings"

	"github.com/noah-isme/lms-gradebook-api/internal/models"
)

// questionGrader decides whether an answer to a question is correct.
type questionGrader interface {
	Correct(question models.Question, answer string) bool
}

// choiceGrader matches a selected choice, given either as its ID or its exact text.
type choiceGrader struct{}

func (choiceGrader) Correct(question models.Question, answer string) bool {
	for _, choice := range question.Choices {
		if !choice.IsCorrect {
			continue
		}
		if answer == choice.ID || answer == choice.ChoiceText {
			return true
		}
	}
	return false
}

// shortAnswerGrader compares against the first choice, ignoring case and
// surrounding whitespace.
type shortAnswerGrader struct{}

func (shortAnswerGrader) Correct(question models.Question, answer string) bool {
	if len(question.Choices) == 0 {
		return false
	}
	expected := strings.TrimSpace(question.Choices[0].ChoiceText)
	return strings.EqualFold(strings.TrimSpace(answer), expected)
}

var defaultQuestionGraders = map[models.QuestionType]questionGrader{
	models.QuestionTypeMultipleChoice: choiceGrader{},
	models.QuestionTypeTrueFalse:      choiceGrader{},
	models.QuestionTypeShortAnswer:    shortAnswerGrader{},
}

// AttemptScore is the outcome of grading one attempt.
type AttemptScore struct {
	Score       int
	TotalPoints int
	Passed      bool
	Responses   []models.QuizResponse
}

// scoreAttempt grades each recorded response. Only answered questions count
// toward the total, and unknown question types or unmatched answers earn zero.
func scoreAttempt(graders map[models.QuestionType]questionGrader, questions []models.Question, responses []models.QuizResponse, passPercentage float64) AttemptScore {
	byID := make(map[string]models.Question, len(questions))
	for _, question := range questions {
		byID[question.ID] = question
	}

	result := AttemptScore{Responses: make([]models.QuizResponse, 0, len(responses))}
	for _, response := range responses {
		question, ok := byID[response.QuestionID]
		if !ok {
			continue
		}
		response.IsCorrect = false
		response.PointsEarned = 0
		if grader, ok := graders[question.QuestionType]; ok && grader.Correct(question, response.AnswerText) {
			response.IsCorrect = true
			response.PointsEarned = question.Points
		}
		result.Score += response.PointsEarned
		result.TotalPoints += question.Points
		result.Responses = append(result.Responses, response)
	}

	if result.TotalPoints > 0 {
		result.Passed = float64(result.Score)/float64(result.TotalPoints)*100 >= passPercentage
	}
	return result
}
