package models

import "time"

// AssignmentType categorises assignments and binds them to grade categories.
type AssignmentType string

const (
	AssignmentTypeHomework AssignmentType = "HOMEWORK"
	AssignmentTypeQuiz     AssignmentType = "QUIZ"
	AssignmentTypeProject  AssignmentType = "PROJECT"
	AssignmentTypeExam     AssignmentType = "EXAM"
	AssignmentTypeEssay    AssignmentType = "ESSAY"
)

// AssignmentTypes lists every supported assignment type.
var AssignmentTypes = []AssignmentType{
	AssignmentTypeHomework,
	AssignmentTypeQuiz,
	AssignmentTypeProject,
	AssignmentTypeExam,
	AssignmentTypeEssay,
}

// Valid reports whether t is a known assignment type.
func (t AssignmentType) Valid() bool {
	for _, known := range AssignmentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Assignment is a gradable unit of work in a course.
type Assignment struct {
	ID                  string         `db:"id" json:"id"`
	CourseID            string         `db:"course_id" json:"course_id"`
	Title               string         `db:"title" json:"title"`
	Description         string         `db:"description" json:"description"`
	AssignmentType      AssignmentType `db:"assignment_type" json:"assignment_type"`
	TotalPoints         int            `db:"total_points" json:"total_points"`
	DueDate             time.Time      `db:"due_date" json:"due_date"`
	AllowLateSubmission bool           `db:"allow_late_submission" json:"allow_late_submission"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`
}

// IsOverdue reports whether the due date has passed at now.
func (a Assignment) IsOverdue(now time.Time) bool {
	return now.After(a.DueDate)
}

// Submission is a student's attempt at an assignment. At most one exists per
// (assignment, student).
type Submission struct {
	ID             string     `db:"id" json:"id"`
	AssignmentID   string     `db:"assignment_id" json:"assignment_id"`
	StudentID      string     `db:"student_id" json:"student_id"`
	SubmissionText string     `db:"submission_text" json:"submission_text"`
	SubmittedAt    time.Time  `db:"submitted_at" json:"submitted_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
	Graded         bool       `db:"graded" json:"graded"`
	Score          *int       `db:"score" json:"score,omitempty"`
	Feedback       string     `db:"feedback" json:"feedback"`
	GradedBy       *string    `db:"graded_by" json:"graded_by,omitempty"`
	GradedAt       *time.Time `db:"graded_at" json:"graded_at,omitempty"`
}

// GradedSubmission is the calculation input: a graded submission joined with
// its assignment's type and total points.
type GradedSubmission struct {
	SubmissionID   string         `db:"submission_id" json:"submission_id"`
	AssignmentID   string         `db:"assignment_id" json:"assignment_id"`
	AssignmentType AssignmentType `db:"assignment_type" json:"assignment_type"`
	TotalPoints    int            `db:"total_points" json:"total_points"`
	Score          *int           `db:"score" json:"score"`
}

// Percentage returns score/total_points*100. ok is false when the submission
// has no score or the assignment has no points and must be excluded.
func (g GradedSubmission) Percentage() (float64, bool) {
	if g.Score == nil || g.TotalPoints <= 0 {
		return 0, false
	}
	return float64(*g.Score) / float64(g.TotalPoints) * 100, true
}

// AssignmentSubmission pairs an assignment with the student's submission, if any.
type AssignmentSubmission struct {
	Assignment Assignment  `json:"assignment"`
	Submission *Submission `json:"submission,omitempty"`
	Percentage *float64    `json:"percentage,omitempty"`
}
