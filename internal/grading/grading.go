// Package grading scores submitted answers. Every function here is pure:
// it reads questions and answers and returns marks, touching no storage.
package grading

import (
	"math"

	"github.com/google/uuid"
	"github.com/veducate/examgate-backend/internal/model"
)

// Outcome is the grading result for a single question.
type Outcome struct {
	Answered bool    `json:"answered"`
	Correct  bool    `json:"correct"`
	Awarded  float64 `json:"awarded"`
}

// Score grades one question against one answer.
//
// A nil or empty answer is blank: no reward, no penalty. A non-empty
// incorrect answer costs the question's negative marks. Multi-choice is
// exact-set-match, all-or-nothing. Numeric answers are correct within
// |submitted − accepted| ≤ tolerance; a zero tolerance means exact match.
func Score(q *model.Question, ans *model.Answer) Outcome {
	if ans == nil || ans.Empty() {
		return Outcome{}
	}

	out := Outcome{Answered: true}
	switch q.QuestionType {
	case model.QuestionTypeSingleChoice, model.QuestionTypeTrueFalse:
		out.Correct = scoreSingle(q, ans.SelectedOptions)
	case model.QuestionTypeMultiChoice:
		out.Correct = scoreMulti(q, ans.SelectedOptions)
	case model.QuestionTypeNumeric:
		out.Correct = scoreNumeric(q, ans.NumericValue)
	}

	if out.Correct {
		out.Awarded = q.Marks
	} else {
		out.Awarded = -q.NegativeMarks
	}
	return out
}

func scoreSingle(q *model.Question, selected []string) bool {
	if len(selected) != 1 {
		return false
	}
	correct := q.CorrectOptionIDs()
	_, ok := correct[selected[0]]
	return ok && len(correct) == 1
}

func scoreMulti(q *model.Question, selected []string) bool {
	correct := q.CorrectOptionIDs()
	if len(selected) != len(correct) {
		return false
	}
	for _, id := range selected {
		if _, ok := correct[id]; !ok {
			return false
		}
	}
	return true
}

func scoreNumeric(q *model.Question, value *float64) bool {
	if value == nil || q.AcceptedValue == nil {
		return false
	}
	return math.Abs(*value-*q.AcceptedValue) <= q.Tolerance
}

// Percentage converts a raw total into a rounded percentage of max.
func Percentage(total, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return math.Round(total / max * 100)
}

// Summary is the aggregate grading result of one attempt. TotalScore is
// deliberately unclamped: negative marking can drive it below zero.
type Summary struct {
	TotalScore float64 `json:"total_score"`
	TotalMarks float64 `json:"total_marks"`
	Percentage float64 `json:"percentage"`
	Passed     bool    `json:"passed"`
}

// GradeAttempt scores every question of the exam against the stored
// answers and aggregates the result. Questions without an answer row
// contribute zero.
func GradeAttempt(exam *model.Exam, answers map[uuid.UUID]model.Answer) Summary {
	var total float64
	for i := range exam.Questions {
		q := &exam.Questions[i]
		var ans *model.Answer
		if a, ok := answers[q.ID]; ok {
			ans = &a
		}
		total += Score(q, ans).Awarded
	}

	pct := Percentage(total, exam.TotalMarks)
	return Summary{
		TotalScore: total,
		TotalMarks: exam.TotalMarks,
		Percentage: pct,
		Passed:     pct >= exam.PassingMarks,
	}
}
