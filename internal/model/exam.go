package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusClosed    ExamStatus = "CLOSED"
)

// QuestionType enumerates the auto-gradable question types.
type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "SINGLE_CHOICE"
	QuestionTypeMultiChoice  QuestionType = "MULTI_CHOICE"
	QuestionTypeNumeric      QuestionType = "NUMERIC"
	QuestionTypeTrueFalse    QuestionType = "TRUE_FALSE"
)

// ChoiceType reports whether the question expects option selections.
func (t QuestionType) ChoiceType() bool {
	return t == QuestionTypeSingleChoice || t == QuestionTypeMultiChoice || t == QuestionTypeTrueFalse
}

// Option is one selectable choice of a choice-type question.
// Correct is stripped before anything is sent to a student.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question represents a single exam question as stored.
type Question struct {
	ID            uuid.UUID    `json:"id"`
	ExamID        uuid.UUID    `json:"exam_id"`
	QuestionText  string       `json:"question_text"`
	QuestionType  QuestionType `json:"question_type"`
	Marks         float64      `json:"marks"`
	NegativeMarks float64      `json:"negative_marks"`
	OrderNum      int          `json:"order_num"`
	Options       []Option     `json:"options,omitempty"`
	AcceptedValue *float64     `json:"accepted_value,omitempty"`
	Tolerance     float64      `json:"tolerance,omitempty"`
}

// HasOption reports whether the given option ID belongs to the question.
func (q *Question) HasOption(id string) bool {
	for i := range q.Options {
		if q.Options[i].ID == id {
			return true
		}
	}
	return false
}

// CorrectOptionIDs returns the set of option IDs flagged correct.
func (q *Question) CorrectOptionIDs() map[string]struct{} {
	out := make(map[string]struct{}, 1)
	for i := range q.Options {
		if q.Options[i].Correct {
			out[q.Options[i].ID] = struct{}{}
		}
	}
	return out
}

// Exam represents an exam as read by the session engine. The engine never
// writes exams; authoring lives elsewhere.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Status          ExamStatus `json:"status"`
	DurationMinutes int        `json:"duration_minutes"`
	TotalMarks      float64    `json:"total_marks"`
	PassingMarks    float64    `json:"passing_marks"` // percentage threshold
	ScheduledStart  *time.Time `json:"scheduled_start,omitempty"`
	EndsAt          *time.Time `json:"ends_at,omitempty"` // hard end of the exam window
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Questions       []Question `json:"questions,omitempty"`
}

// Duration returns the allotted attempt duration.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// QuestionByID finds a question of this exam, or nil.
func (e *Exam) QuestionByID(id uuid.UUID) *Question {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return &e.Questions[i]
		}
	}
	return nil
}

// OptionForStudent is an option without its correctness flag.
type OptionForStudent struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuestionForStudent is a question sanitized for the student-facing paper:
// no correctness flags, no accepted value, no tolerance.
type QuestionForStudent struct {
	ID            uuid.UUID          `json:"id"`
	QuestionText  string             `json:"question_text"`
	QuestionType  QuestionType       `json:"question_type"`
	Marks         float64            `json:"marks"`
	NegativeMarks float64            `json:"negative_marks"`
	OrderNum      int                `json:"order_num"`
	Options       []OptionForStudent `json:"options,omitempty"`
}

// ExamPaper is the student-facing exam payload, cached in Redis.
type ExamPaper struct {
	ExamID          uuid.UUID            `json:"exam_id"`
	Title           string               `json:"title"`
	DurationMinutes int                  `json:"duration_minutes"`
	TotalMarks      float64              `json:"total_marks"`
	PassingMarks    float64              `json:"passing_marks"`
	Questions       []QuestionForStudent `json:"questions"`
}

// NewExamPaper builds the sanitized paper from a full exam.
func NewExamPaper(e *Exam) *ExamPaper {
	paper := &ExamPaper{
		ExamID:          e.ID,
		Title:           e.Title,
		DurationMinutes: e.DurationMinutes,
		TotalMarks:      e.TotalMarks,
		PassingMarks:    e.PassingMarks,
		Questions:       make([]QuestionForStudent, 0, len(e.Questions)),
	}
	for i := range e.Questions {
		q := &e.Questions[i]
		sq := QuestionForStudent{
			ID:            q.ID,
			QuestionText:  q.QuestionText,
			QuestionType:  q.QuestionType,
			Marks:         q.Marks,
			NegativeMarks: q.NegativeMarks,
			OrderNum:      q.OrderNum,
		}
		for _, opt := range q.Options {
			sq.Options = append(sq.Options, OptionForStudent{ID: opt.ID, Text: opt.Text})
		}
		paper.Questions = append(paper.Questions, sq)
	}
	return paper
}
