package models

import "time"

// QuestionType selects the scoring rule applied to a response.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeTrueFalse      QuestionType = "TRUE_FALSE"
	QuestionTypeShortAnswer    QuestionType = "SHORT_ANSWER"
)

// Quiz extends a QUIZ assignment with attempt rules.
type Quiz struct {
	ID                    string    `db:"id" json:"id"`
	AssignmentID          string    `db:"assignment_id" json:"assignment_id"`
	TimeLimitMinutes      *int      `db:"time_limit" json:"time_limit,omitempty"`
	AllowMultipleAttempts bool      `db:"allow_multiple_attempts" json:"allow_multiple_attempts"`
	MaxAttempts           int       `db:"max_attempts" json:"max_attempts"`
	ShowCorrectAnswers    bool      `db:"show_correct_answers" json:"show_correct_answers"`
	RandomizeQuestions    bool      `db:"randomize_questions" json:"randomize_questions"`
	PassPercentage        float64   `db:"pass_percentage" json:"pass_percentage"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
}

// AttemptLimit is the number of attempts a student may start.
func (q Quiz) AttemptLimit() int {
	if !q.AllowMultipleAttempts {
		return 1
	}
	if q.MaxAttempts < 1 {
		return 1
	}
	return q.MaxAttempts
}

// Question belongs to a quiz. For SHORT_ANSWER the first choice holds the answer.
type Question struct {
	ID           string           `db:"id" json:"id"`
	QuizID       string           `db:"quiz_id" json:"quiz_id"`
	QuestionText string           `db:"question_text" json:"question_text"`
	QuestionType QuestionType     `db:"question_type" json:"question_type"`
	Points       int              `db:"points" json:"points"`
	Order        int              `db:"order_index" json:"order"`
	Choices      []QuestionChoice `db:"-" json:"choices"`
}

// QuestionChoice is an answer option.
type QuestionChoice struct {
	ID         string `db:"id" json:"id"`
	QuestionID string `db:"question_id" json:"question_id"`
	ChoiceText string `db:"choice_text" json:"choice_text"`
	IsCorrect  bool   `db:"is_correct" json:"is_correct"`
	Order      int    `db:"order_index" json:"order"`
}

// AttemptStatus is derived from submitted_at.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusGraded     AttemptStatus = "GRADED"
)

// QuizAttempt is one sitting of a quiz by a student.
type QuizAttempt struct {
	ID            string     `db:"id" json:"id"`
	QuizID        string     `db:"quiz_id" json:"quiz_id"`
	StudentID     string     `db:"student_id" json:"student_id"`
	AttemptNumber int        `db:"attempt_number" json:"attempt_number"`
	StartedAt     time.Time  `db:"started_at" json:"started_at"`
	SubmittedAt   *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	Score         *int       `db:"score" json:"score,omitempty"`
	TotalPoints   *int       `db:"total_points" json:"total_points,omitempty"`
	Passed        bool       `db:"passed" json:"passed"`
}

// Status reports the attempt's lifecycle state.
func (a QuizAttempt) Status() AttemptStatus {
	if a.SubmittedAt == nil {
		return AttemptStatusInProgress
	}
	return AttemptStatusGraded
}

// QuizResponse is a student's answer to one question in an attempt.
type QuizResponse struct {
	ID           string `db:"id" json:"id"`
	AttemptID    string `db:"attempt_id" json:"attempt_id"`
	QuestionID   string `db:"question_id" json:"question_id"`
	AnswerText   string `db:"answer_text" json:"answer_text"`
	IsCorrect    bool   `db:"is_correct" json:"is_correct"`
	PointsEarned int    `db:"points_earned" json:"points_earned"`
}

// AttemptView is an attempt with its responses; correctness is stripped
// unless the quiz reveals answers after grading.
type AttemptView struct {
	Attempt   QuizAttempt    `json:"attempt"`
	Status    AttemptStatus  `json:"status"`
	Questions []Question     `json:"questions,omitempty"`
	Responses []QuizResponse `json:"responses"`
	Revealed  bool           `json:"revealed"`
}
