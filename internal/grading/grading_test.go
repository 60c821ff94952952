package grading

import (
	"testing"

	"github.com/google/uuid"
	"github.com/veducate/examgate-backend/internal/model"
)

func floatPtr(v float64) *float64 { return &v }

func singleChoiceQuestion(marks, negative float64) *model.Question {
	return &model.Question{
		ID:            uuid.New(),
		QuestionType:  model.QuestionTypeSingleChoice,
		Marks:         marks,
		NegativeMarks: negative,
		Options: []model.Option{
			{ID: "A", Text: "first"},
			{ID: "B", Text: "second", Correct: true},
			{ID: "C", Text: "third"},
		},
	}
}

func TestScore_SingleChoice(t *testing.T) {
	q := singleChoiceQuestion(5, 2)

	tests := []struct {
		name     string
		selected []string
		answered bool
		correct  bool
		awarded  float64
	}{
		{name: "correct selection", selected: []string{"B"}, answered: true, correct: true, awarded: 5},
		{name: "wrong selection penalized", selected: []string{"A"}, answered: true, correct: false, awarded: -2},
		{name: "blank is free", selected: nil, answered: false, correct: false, awarded: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var ans *model.Answer
			if tc.selected != nil {
				ans = &model.Answer{QuestionID: q.ID, SelectedOptions: tc.selected}
			}
			got := Score(q, ans)
			if got.Answered != tc.answered || got.Correct != tc.correct || got.Awarded != tc.awarded {
				t.Fatalf("Score() = %+v, want answered=%v correct=%v awarded=%v",
					got, tc.answered, tc.correct, tc.awarded)
			}
		})
	}
}

func TestScore_TrueFalse(t *testing.T) {
	q := &model.Question{
		ID:           uuid.New(),
		QuestionType: model.QuestionTypeTrueFalse,
		Marks:        1,
		Options: []model.Option{
			{ID: "true", Correct: true},
			{ID: "false"},
		},
	}

	if got := Score(q, &model.Answer{SelectedOptions: []string{"true"}}); !got.Correct || got.Awarded != 1 {
		t.Fatalf("true answer: got %+v", got)
	}
	if got := Score(q, &model.Answer{SelectedOptions: []string{"false"}}); got.Correct || got.Awarded != 0 {
		t.Fatalf("false answer with no negative marks: got %+v", got)
	}
}

func TestScore_MultiChoiceExactSet(t *testing.T) {
	q := &model.Question{
		ID:            uuid.New(),
		QuestionType:  model.QuestionTypeMultiChoice,
		Marks:         4,
		NegativeMarks: 1,
		Options: []model.Option{
			{ID: "A", Correct: true},
			{ID: "B"},
			{ID: "C", Correct: true},
			{ID: "D"},
		},
	}

	tests := []struct {
		name     string
		selected []string
		awarded  float64
	}{
		{name: "exact set any order", selected: []string{"C", "A"}, awarded: 4},
		{name: "partial gets no credit", selected: []string{"A"}, awarded: -1},
		{name: "superset gets no credit", selected: []string{"A", "C", "B"}, awarded: -1},
		{name: "disjoint wrong", selected: []string{"B", "D"}, awarded: -1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Score(q, &model.Answer{SelectedOptions: tc.selected})
			if got.Awarded != tc.awarded {
				t.Fatalf("awarded = %v, want %v", got.Awarded, tc.awarded)
			}
		})
	}

	if got := Score(q, &model.Answer{}); got.Answered || got.Awarded != 0 {
		t.Fatalf("empty multi selection must be blank, got %+v", got)
	}
}

func TestScore_NumericTolerance(t *testing.T) {
	q := &model.Question{
		ID:            uuid.New(),
		QuestionType:  model.QuestionTypeNumeric,
		Marks:         3,
		NegativeMarks: 1,
		AcceptedValue: floatPtr(10),
		Tolerance:     0.5,
	}

	tests := []struct {
		name    string
		value   float64
		correct bool
	}{
		{name: "inside tolerance", value: 10.4, correct: true},
		{name: "exact boundary", value: 10.5, correct: true},
		{name: "outside tolerance", value: 10.6, correct: false},
		{name: "below inside", value: 9.6, correct: true},
		{name: "exact value", value: 10, correct: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Score(q, &model.Answer{NumericValue: floatPtr(tc.value)})
			if got.Correct != tc.correct {
				t.Fatalf("value %v: correct = %v, want %v", tc.value, got.Correct, tc.correct)
			}
		})
	}
}

func TestScore_NumericExactWhenNoTolerance(t *testing.T) {
	q := &model.Question{
		QuestionType:  model.QuestionTypeNumeric,
		Marks:         2,
		AcceptedValue: floatPtr(7),
	}

	if got := Score(q, &model.Answer{NumericValue: floatPtr(7)}); !got.Correct {
		t.Fatalf("exact match must be correct, got %+v", got)
	}
	if got := Score(q, &model.Answer{NumericValue: floatPtr(7.0001)}); got.Correct {
		t.Fatalf("near miss with zero tolerance must be incorrect, got %+v", got)
	}
}

func TestPercentage(t *testing.T) {
	if got := Percentage(7.5, 10); got != 75 {
		t.Fatalf("Percentage(7.5, 10) = %v, want 75", got)
	}
	if got := Percentage(1, 3); got != 33 {
		t.Fatalf("Percentage(1, 3) = %v, want 33 (rounded)", got)
	}
	if got := Percentage(5, 0); got != 0 {
		t.Fatalf("Percentage with zero max = %v, want 0", got)
	}
}

func TestGradeAttempt_EndToEnd(t *testing.T) {
	q1 := singleChoiceQuestion(5, 0)
	q2 := singleChoiceQuestion(5, 0)
	exam := &model.Exam{
		ID:           uuid.New(),
		TotalMarks:   10,
		PassingMarks: 40,
		Questions:    []model.Question{*q1, *q2},
	}

	answers := map[uuid.UUID]model.Answer{
		q1.ID: {QuestionID: q1.ID, SelectedOptions: []string{"B"}},
		q2.ID: {QuestionID: q2.ID, SelectedOptions: []string{"B"}},
	}

	sum := GradeAttempt(exam, answers)
	if sum.TotalScore != 10 || sum.Percentage != 100 || !sum.Passed {
		t.Fatalf("both correct: got %+v", sum)
	}
}

func TestGradeAttempt_NegativeTotalNotClamped(t *testing.T) {
	q1 := singleChoiceQuestion(5, 2)
	q2 := singleChoiceQuestion(5, 2)
	exam := &model.Exam{
		ID:           uuid.New(),
		TotalMarks:   10,
		PassingMarks: 40,
		Questions:    []model.Question{*q1, *q2},
	}

	answers := map[uuid.UUID]model.Answer{
		q1.ID: {QuestionID: q1.ID, SelectedOptions: []string{"A"}},
		q2.ID: {QuestionID: q2.ID, SelectedOptions: []string{"C"}},
	}

	sum := GradeAttempt(exam, answers)
	if sum.TotalScore != -4 {
		t.Fatalf("total = %v, want -4 (unclamped)", sum.TotalScore)
	}
	if sum.Passed {
		t.Fatal("negative total must not pass")
	}
}

func TestGradeAttempt_UnansweredContributesZero(t *testing.T) {
	q1 := singleChoiceQuestion(5, 2)
	q2 := singleChoiceQuestion(5, 2)
	exam := &model.Exam{
		ID:           uuid.New(),
		TotalMarks:   10,
		PassingMarks: 40,
		Questions:    []model.Question{*q1, *q2},
	}

	// q2 has a row but the value was cleared; still no penalty.
	answers := map[uuid.UUID]model.Answer{
		q1.ID: {QuestionID: q1.ID, SelectedOptions: []string{"B"}},
		q2.ID: {QuestionID: q2.ID, Status: model.AnswerStatusNotAnswered},
	}

	sum := GradeAttempt(exam, answers)
	if sum.TotalScore != 5 {
		t.Fatalf("total = %v, want 5", sum.TotalScore)
	}
	if sum.Percentage != 50 || !sum.Passed {
		t.Fatalf("summary = %+v, want 50%% and passed", sum)
	}
}
