package models

import (
	"fmt"
	"time"
)

// NoGrade is rendered wherever a letter or percentage is absent.
const NoGrade = "N/A"

// Default scale thresholds used when a course has no configured scale.
const (
	DefaultAMin = 90.0
	DefaultBMin = 80.0
	DefaultCMin = 70.0
	DefaultDMin = 60.0
)

// GradeCategory weights all assignments of one type within a course.
type GradeCategory struct {
	ID             string         `db:"id" json:"id"`
	CourseID       string         `db:"course_id" json:"course_id"`
	Name           string         `db:"name" json:"name"`
	AssignmentType AssignmentType `db:"assignment_type" json:"assignment_type"`
	Weight         float64        `db:"weight" json:"weight"`
	DropLowest     int            `db:"drop_lowest" json:"drop_lowest"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// GradeScale converts a course percentage to a letter grade.
type GradeScale struct {
	ID           string    `db:"id" json:"id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	AMin         float64   `db:"a_min" json:"a_min"`
	BMin         float64   `db:"b_min" json:"b_min"`
	CMin         float64   `db:"c_min" json:"c_min"`
	DMin         float64   `db:"d_min" json:"d_min"`
	UsePlusMinus bool      `db:"use_plus_minus" json:"use_plus_minus"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultGradeScale returns the 90/80/70/60 scale without +/- used for new courses.
func DefaultGradeScale(courseID string) GradeScale {
	return GradeScale{
		CourseID: courseID,
		AMin:     DefaultAMin,
		BMin:     DefaultBMin,
		CMin:     DefaultCMin,
		DMin:     DefaultDMin,
	}
}

// Ordered reports whether the thresholds satisfy 0 <= d < c < b < a <= 100.
func (s GradeScale) Ordered() bool {
	return s.DMin >= 0 && s.DMin < s.CMin && s.CMin < s.BMin && s.BMin < s.AMin && s.AMin <= 100
}

// LetterGrade maps a percentage to a letter. Thresholds are assumed ordered;
// callers validate with Ordered before persisting a scale.
func (s GradeScale) LetterGrade(percentage *float64) string {
	if percentage == nil {
		return NoGrade
	}
	pct := *percentage

	var base string
	var low, high float64
	switch {
	case pct >= s.AMin:
		base = "A"
	case pct >= s.BMin:
		base, low, high = "B", s.BMin, s.AMin
	case pct >= s.CMin:
		base, low, high = "C", s.CMin, s.BMin
	case pct >= s.DMin:
		base, low, high = "D", s.DMin, s.CMin
	default:
		return "F"
	}

	if !s.UsePlusMinus {
		return base
	}

	// A uses absolute cutoffs; B through D split their own band.
	if base == "A" {
		switch {
		case pct >= 97:
			return "A+"
		case pct < 93:
			return "A-"
		default:
			return "A"
		}
	}

	span := high - low
	switch {
	case pct >= low+0.7*span:
		return base + "+"
	case pct < low+0.3*span:
		return base + "-"
	default:
		return base
	}
}

// FallbackLetterGrade applies the fixed 90/80/70/60 ladder used when a course
// has no grade scale.
func FallbackLetterGrade(percentage *float64) string {
	scale := DefaultGradeScale("")
	return scale.LetterGrade(percentage)
}

// CourseGrade is the stored grade for one enrollment. Calculated fields stay
// intact while an override is active.
type CourseGrade struct {
	ID                 string     `db:"id" json:"id"`
	EnrollmentID       string     `db:"enrollment_id" json:"enrollment_id"`
	Percentage         *float64   `db:"percentage" json:"percentage"`
	LetterGrade        string     `db:"letter_grade" json:"letter_grade"`
	IsOverridden       bool       `db:"is_overridden" json:"is_overridden"`
	OverridePercentage *float64   `db:"override_percentage" json:"override_percentage,omitempty"`
	OverrideLetter     string     `db:"override_letter" json:"override_letter,omitempty"`
	OverrideReason     string     `db:"override_reason" json:"override_reason,omitempty"`
	OverriddenBy       *string    `db:"overridden_by" json:"overridden_by,omitempty"`
	OverriddenAt       *time.Time `db:"overridden_at" json:"overridden_at,omitempty"`
	LastCalculated     time.Time  `db:"last_calculated" json:"last_calculated"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}

// DisplayPercentage prefers the override percentage when one is active.
func (g CourseGrade) DisplayPercentage() *float64 {
	if g.IsOverridden && g.OverridePercentage != nil {
		return g.OverridePercentage
	}
	return g.Percentage
}

// DisplayLetter prefers the override letter when one is active.
func (g CourseGrade) DisplayLetter() string {
	if g.IsOverridden && g.OverrideLetter != "" {
		return g.OverrideLetter
	}
	return g.LetterGrade
}

// DisplayGrade formats the display values as "B (85.00%)", or N/A without a percentage.
func (g CourseGrade) DisplayGrade() string {
	pct := g.DisplayPercentage()
	if pct == nil {
		return NoGrade
	}
	return fmt.Sprintf("%s (%.2f%%)", g.DisplayLetter(), *pct)
}

// GradeChangeType classifies GradeHistory rows.
type GradeChangeType string

const (
	GradeChangeCalculated GradeChangeType = "CALCULATED"
	GradeChangeOverride   GradeChangeType = "OVERRIDE"
	GradeChangeRemoved    GradeChangeType = "REMOVED"
)

// GradeHistory is an append-only audit row.
type GradeHistory struct {
	ID            string          `db:"id" json:"id"`
	CourseGradeID string          `db:"course_grade_id" json:"course_grade_id"`
	ChangedBy     *string         `db:"changed_by" json:"changed_by,omitempty"`
	ChangeType    GradeChangeType `db:"change_type" json:"change_type"`
	OldPercentage *float64        `db:"old_percentage" json:"old_percentage,omitempty"`
	NewPercentage *float64        `db:"new_percentage" json:"new_percentage,omitempty"`
	OldLetter     string          `db:"old_letter" json:"old_letter"`
	NewLetter     string          `db:"new_letter" json:"new_letter"`
	Reason        string          `db:"reason" json:"reason"`
	Timestamp     time.Time       `db:"timestamp" json:"timestamp"`
}

// GradebookRow is one student line in the instructor gradebook.
type GradebookRow struct {
	EnrollmentID   string     `json:"enrollment_id"`
	StudentID      string     `json:"student_id"`
	StudentName    string     `json:"student_name"`
	StudentEmail   string     `json:"student_email"`
	Percentage     *float64   `json:"percentage"`
	LetterGrade    string     `json:"letter_grade"`
	IsOverridden   bool       `json:"is_overridden"`
	LastCalculated *time.Time `json:"last_calculated,omitempty"`
}

// GradebookStats summarises display percentages across the class.
type GradebookStats struct {
	Count   int      `json:"count"`
	Average *float64 `json:"average"`
	Highest *float64 `json:"highest"`
	Lowest  *float64 `json:"lowest"`
}

// Gradebook is the course-wide grade listing.
type Gradebook struct {
	CourseID    string          `json:"course_id"`
	Rows        []GradebookRow  `json:"rows"`
	Categories  []GradeCategory `json:"categories"`
	TotalWeight float64         `json:"total_weight"`
	Stats       GradebookStats  `json:"stats"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// CategoryAverage is a plain per-category average without drop-lowest.
type CategoryAverage struct {
	Category GradeCategory `json:"category"`
	Average  *float64      `json:"average"`
	Count    int           `json:"count"`
}

// StudentGradeReport is a student's view of one course.
type StudentGradeReport struct {
	Enrollment    Enrollment             `json:"enrollment"`
	Grade         *CourseGrade           `json:"grade"`
	Assignments   []AssignmentSubmission `json:"assignments"`
	CategoryStats []CategoryAverage      `json:"category_stats"`
}
