package model

import (
	"time"

	"github.com/google/uuid"
)

// AnswerStatus is the palette status of one question within an attempt.
// The absence of an Answer row means the question was never visited.
type AnswerStatus string

const (
	AnswerStatusNotAnswered    AnswerStatus = "NOT_ANSWERED"
	AnswerStatusAnswered       AnswerStatus = "ANSWERED"
	AnswerStatusMarked         AnswerStatus = "MARKED"
	AnswerStatusAnsweredMarked AnswerStatus = "ANSWERED_MARKED"
)

// Marked reports whether the status carries a review mark.
func (s AnswerStatus) Marked() bool {
	return s == AnswerStatusMarked || s == AnswerStatusAnsweredMarked
}

// DeriveAnswerStatus maps a value's presence and the review flag to a
// palette status.
func DeriveAnswerStatus(hasValue, marked bool) AnswerStatus {
	switch {
	case hasValue && marked:
		return AnswerStatusAnsweredMarked
	case hasValue:
		return AnswerStatusAnswered
	case marked:
		return AnswerStatusMarked
	default:
		return AnswerStatusNotAnswered
	}
}

// Attempt is one student's single run at one exam. At most one attempt
// exists per (exam, student) pair. Once Submitted flips to true the row
// is immutable.
type Attempt struct {
	ID             uuid.UUID  `json:"id"`
	ExamID         uuid.UUID  `json:"exam_id"`
	StudentID      int        `json:"student_id"`
	StartedAt      time.Time  `json:"started_at"`
	Submitted      bool       `json:"submitted"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	TotalScore     *float64   `json:"total_score,omitempty"`
	Percentage     *float64   `json:"percentage,omitempty"`
	Passed         *bool      `json:"passed,omitempty"`
	ViolationCount int        `json:"violation_count"`
}

// Terminal reports whether the attempt reached its terminal state.
func (a *Attempt) Terminal() bool { return a.Submitted }

// Answer is a student's stored response to one question within an attempt.
// One row per (attempt, question); saves overwrite, clears keep the row
// with an empty value.
type Answer struct {
	AttemptID       uuid.UUID    `json:"attempt_id"`
	QuestionID      uuid.UUID    `json:"question_id"`
	SelectedOptions []string     `json:"selected_options,omitempty"`
	NumericValue    *float64     `json:"numeric_value,omitempty"`
	Status          AnswerStatus `json:"status"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Empty reports whether the answer carries no value (cleared or visited only).
func (a *Answer) Empty() bool {
	return len(a.SelectedOptions) == 0 && a.NumericValue == nil
}

// AttemptResult is the grading outcome written exactly once at submission.
type AttemptResult struct {
	TotalScore  float64
	Percentage  float64
	Passed      bool
	SubmittedAt time.Time
}

// AttemptSummary is the graded summary returned to the student.
type AttemptSummary struct {
	AttemptID      uuid.UUID `json:"attempt_id"`
	TotalScore     float64   `json:"total_score"`
	TotalMarks     float64   `json:"total_marks"`
	Percentage     float64   `json:"percentage"`
	Passed         bool      `json:"passed"`
	SubmittedAt    time.Time `json:"submitted_at"`
	ViolationCount int       `json:"violation_count"`
}

// AttemptProgress is one row of the proctoring dashboard: a student's
// live progress through an exam.
type AttemptProgress struct {
	AttemptID      uuid.UUID  `json:"attempt_id"`
	StudentID      int        `json:"student_id"`
	StudentName    string     `json:"student_name"`
	StartedAt      time.Time  `json:"started_at"`
	Submitted      bool       `json:"submitted"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	AnsweredCount  int64      `json:"answered_count"`
	ViolationCount int        `json:"violation_count"`
}

// SaveAnswerRequest is the payload for saving one answer.
// Exactly one of SelectedOptions / NumericValue may be set; both empty
// clears the response.
type SaveAnswerRequest struct {
	SelectedOptions []string `json:"selected_options" binding:"omitempty,max=26"`
	NumericValue    *float64 `json:"numeric_value" binding:"omitempty"`
	MarkedForReview bool     `json:"marked_for_review"`
}
