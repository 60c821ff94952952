package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/veducate/examgate-backend/internal/model"
)

type fakeExamReader struct {
	mu    sync.Mutex
	exams map[uuid.UUID]*model.Exam
}

func newFakeExamReader(exams ...*model.Exam) *fakeExamReader {
	r := &fakeExamReader{exams: make(map[uuid.UUID]*model.Exam)}
	for _, e := range exams {
		r.exams[e.ID] = e
	}
	return r
}

func (r *fakeExamReader) GetExamWithQuestions(_ context.Context, examID uuid.UUID) (*model.Exam, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.exams[examID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return e, nil
}

type answerKey struct {
	attempt  uuid.UUID
	question uuid.UUID
}

type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*model.Attempt
	answers  map[answerKey]model.Answer
	now      func() time.Time
}

func newFakeAttemptStore(now func() time.Time) *fakeAttemptStore {
	return &fakeAttemptStore{
		attempts: make(map[uuid.UUID]*model.Attempt),
		answers:  make(map[answerKey]model.Answer),
		now:      now,
	}
}

func (s *fakeAttemptStore) GetOrCreate(_ context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.ExamID == examID && a.StudentID == studentID {
			cp := *a
			return &cp, nil
		}
	}
	a := &model.Attempt{
		ID:        uuid.New(),
		ExamID:    examID,
		StudentID: studentID,
		StartedAt: s.now(),
	}
	s.attempts[a.ID] = a
	cp := *a
	return &cp, nil
}

func (s *fakeAttemptStore) GetByID(_ context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (s *fakeAttemptStore) GetByExamAndStudent(_ context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.ExamID == examID && a.StudentID == studentID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *fakeAttemptStore) UpsertAnswer(_ context.Context, a *model.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := answerKey{a.AttemptID, a.QuestionID}
	// Clearing a value keeps an existing review mark, same as the SQL upsert.
	if prev, ok := s.answers[key]; ok &&
		a.Status == model.AnswerStatusNotAnswered && prev.Status.Marked() {
		a.Status = model.AnswerStatusMarked
	}
	s.answers[key] = *a
	return nil
}

func (s *fakeAttemptStore) MarkVisited(_ context.Context, attemptID, questionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := answerKey{attemptID, questionID}
	if _, ok := s.answers[key]; ok {
		return nil
	}
	s.answers[key] = model.Answer{
		AttemptID:  attemptID,
		QuestionID: questionID,
		Status:     model.AnswerStatusNotAnswered,
		UpdatedAt:  s.now(),
	}
	return nil
}

func (s *fakeAttemptStore) ListAnswers(_ context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Answer
	for key, a := range s.answers {
		if key.attempt == attemptID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeAttemptStore) Finalize(_ context.Context, attemptID uuid.UUID, res model.AttemptResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if a.Submitted {
		return false, nil
	}
	a.Submitted = true
	a.SubmittedAt = &res.SubmittedAt
	a.TotalScore = &res.TotalScore
	a.Percentage = &res.Percentage
	a.Passed = &res.Passed
	return true, nil
}

type testEnv struct {
	svc   *SessionService
	store *fakeAttemptStore
	exam  *model.Exam
	now   time.Time
}

func (e *testEnv) advance(d time.Duration) { e.now = e.now.Add(d) }

func newTestEnv(t *testing.T, mutate ...func(*model.Exam)) *testEnv {
	t.Helper()

	q1 := model.Question{
		ID:           uuid.New(),
		QuestionType: model.QuestionTypeSingleChoice,
		Marks:        5,
		Options: []model.Option{
			{ID: "A", Text: "alpha"},
			{ID: "B", Text: "beta", Correct: true},
		},
	}
	accepted := 10.0
	q2 := model.Question{
		ID:            uuid.New(),
		QuestionType:  model.QuestionTypeNumeric,
		Marks:         5,
		AcceptedValue: &accepted,
		Tolerance:     0.5,
	}
	exam := &model.Exam{
		ID:              uuid.New(),
		Title:           "Midterm",
		Status:          model.ExamStatusPublished,
		DurationMinutes: 30,
		TotalMarks:      10,
		PassingMarks:    40,
		Questions:       []model.Question{q1, q2},
	}
	for _, fn := range mutate {
		fn(exam)
	}

	env := &testEnv{exam: exam, now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	env.store = newFakeAttemptStore(func() time.Time { return env.now })
	env.svc = NewSessionService(newFakeExamReader(exam), env.store, zerolog.Nop())
	env.svc.now = func() time.Time { return env.now }
	t.Cleanup(env.svc.Close)
	return env
}

func TestStart_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, remaining, err := env.svc.Start(ctx, env.exam.ID, 1)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if remaining != 30*time.Minute {
		t.Fatalf("remaining = %v, want 30m", remaining)
	}

	env.advance(5 * time.Minute)
	second, remaining, err := env.svc.Start(ctx, env.exam.ID, 1)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("second Start created a new attempt: %s vs %s", second.ID, first.ID)
	}
	if remaining != 25*time.Minute {
		t.Fatalf("resumed remaining = %v, want 25m", remaining)
	}
}

func TestStart_WindowChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("draft exam rejected", func(t *testing.T) {
		env := newTestEnv(t, func(e *model.Exam) { e.Status = model.ExamStatusDraft })
		if _, _, err := env.svc.Start(ctx, env.exam.ID, 1); err != ErrExamNotPublished {
			t.Fatalf("err = %v, want ErrExamNotPublished", err)
		}
	})

	t.Run("before scheduled start", func(t *testing.T) {
		env := newTestEnv(t)
		start := env.now.Add(time.Hour)
		env.exam.ScheduledStart = &start
		if _, _, err := env.svc.Start(ctx, env.exam.ID, 1); err != ErrNotYetOpen {
			t.Fatalf("err = %v, want ErrNotYetOpen", err)
		}
	})

	t.Run("after hard end", func(t *testing.T) {
		env := newTestEnv(t)
		end := env.now.Add(-time.Minute)
		env.exam.EndsAt = &end
		if _, _, err := env.svc.Start(ctx, env.exam.ID, 1); err != ErrWindowClosed {
			t.Fatalf("err = %v, want ErrWindowClosed", err)
		}
	})

	t.Run("unknown exam", func(t *testing.T) {
		env := newTestEnv(t)
		if _, _, err := env.svc.Start(ctx, uuid.New(), 1); err != ErrExamNotFound {
			t.Fatalf("err = %v, want ErrExamNotFound", err)
		}
	})
}

func TestStart_RemainingClampedByHardEnd(t *testing.T) {
	env := newTestEnv(t)
	end := env.now.Add(10 * time.Minute)
	env.exam.EndsAt = &end

	_, remaining, err := env.svc.Start(context.Background(), env.exam.ID, 1)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Duration says 30m but the hard end is only 10m away.
	if remaining != 10*time.Minute {
		t.Fatalf("remaining = %v, want 10m", remaining)
	}
}

func TestSaveAnswer_ShapeValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	attempt, _, err := env.svc.Start(ctx, env.exam.ID, 1)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	choiceQ := env.exam.Questions[0].ID
	numericQ := env.exam.Questions[1].ID
	ten := 10.0

	tests := []struct {
		name     string
		question uuid.UUID
		req      model.SaveAnswerRequest
		wantErr  error
	}{
		{name: "valid choice", question: choiceQ, req: model.SaveAnswerRequest{SelectedOptions: []string{"B"}}},
		{name: "numeric on choice question", question: choiceQ, req: model.SaveAnswerRequest{NumericValue: &ten}, wantErr: ErrInvalidAnswerShape},
		{name: "two options on single choice", question: choiceQ, req: model.SaveAnswerRequest{SelectedOptions: []string{"A", "B"}}, wantErr: ErrInvalidAnswerShape},
		{name: "unknown option id", question: choiceQ, req: model.SaveAnswerRequest{SelectedOptions: []string{"Z"}}, wantErr: ErrInvalidAnswerShape},
		{name: "valid numeric", question: numericQ, req: model.SaveAnswerRequest{NumericValue: &ten}},
		{name: "options on numeric question", question: numericQ, req: model.SaveAnswerRequest{SelectedOptions: []string{"A"}}, wantErr: ErrInvalidAnswerShape},
		{name: "question from another exam", question: uuid.New(), wantErr: ErrQuestionNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.SaveAnswer(ctx, attempt.ID, 1, tc.question, &tc.req)
			if err != tc.wantErr {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestSaveAnswer_OverwriteAndClear(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	attempt, _, _ := env.svc.Start(ctx, env.exam.ID, 1)
	qID := env.exam.Questions[0].ID

	if _, err := env.svc.SaveAnswer(ctx, attempt.ID, 1, qID, &model.SaveAnswerRequest{SelectedOptions: []string{"A"}}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	ans, err := env.svc.SaveAnswer(ctx, attempt.ID, 1, qID, &model.SaveAnswerRequest{SelectedOptions: []string{"B"}})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if len(ans.SelectedOptions) != 1 || ans.SelectedOptions[0] != "B" {
		t.Fatalf("overwrite kept old value: %+v", ans)
	}
	if ans.Status != model.AnswerStatusAnswered {
		t.Fatalf("status = %s, want ANSWERED", ans.Status)
	}

	// Clear the value entirely.
	ans, err = env.svc.SaveAnswer(ctx, attempt.ID, 1, qID, &model.SaveAnswerRequest{})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !ans.Empty() || ans.Status != model.AnswerStatusNotAnswered {
		t.Fatalf("cleared answer = %+v", ans)
	}
}

func TestSaveAnswer_ClearKeepsReviewMark(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	attempt, _, _ := env.svc.Start(ctx, env.exam.ID, 1)
	qID := env.exam.Questions[0].ID

	if _, err := env.svc.SaveAnswer(ctx, attempt.ID, 1, qID, &model.SaveAnswerRequest{
		SelectedOptions: []string{"B"},
		MarkedForReview: true,
	}); err != nil {
		t.Fatalf("save marked: %v", err)
	}

	if _, err := env.svc.SaveAnswer(ctx, attempt.ID, 1, qID, &model.SaveAnswerRequest{}); err != nil {
		t.Fatalf("clear: %v", err)
	}

	state, err := env.svc.State(ctx, attempt.ID, 1)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if len(state.Answers) != 1 || state.Answers[0].Status != model.AnswerStatusMarked {
		t.Fatalf("cleared answer lost its review mark: %+v", state.Answers)
	}
}

func TestVisit_NeverRegressesStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	attempt, _, _ := env.svc.Start(ctx, env.exam.ID, 1)
	qID := env.exam.Questions[0].ID

	if err := env.svc.Visit(ctx, attempt.ID, 1, qID); err != nil {
		t.Fatalf("first visit: %v", err)
	}
	state, _ := env.svc.State(ctx, attempt.ID, 1)
	if len(state.Answers) != 1 || state.Answers[0].Status != model.AnswerStatusNotAnswered {
		t.Fatalf("visited question missing from palette: %+v", state.Answers)
	}

	if _, err := env.svc.SaveAnswer(ctx, attempt.ID, 1, qID, &model.SaveAnswerRequest{SelectedOptions: []string{"B"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := env.svc.Visit(ctx, attempt.ID, 1, qID); err != nil {
		t.Fatalf("revisit: %v", err)
	}
	state, _ = env.svc.State(ctx, attempt.ID, 1)
	if state.Answers[0].Status != model.AnswerStatusAnswered {
		t.Fatalf("revisit regressed status to %s", state.Answers[0].Status)
	}
}

func TestState_OwnershipEnforced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	attempt, _, _ := env.svc.Start(ctx, env.exam.ID, 1)

	if _, err := env.svc.State(ctx, attempt.ID, 2); err != ErrForbidden {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if _, err := env.svc.SaveAnswer(ctx, attempt.ID, 2, env.exam.Questions[0].ID, &model.SaveAnswerRequest{}); err != ErrForbidden {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestState_RemainingDecreases(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	attempt, _, _ := env.svc.Start(ctx, env.exam.ID, 1)

	env.advance(10 * time.Minute)
	state, err := env.svc.State(ctx, attempt.ID, 1)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.RemainingSeconds != (20 * time.Minute).Seconds() {
		t.Fatalf("remaining = %v, want 1200", state.RemainingSeconds)
	}
}

func TestSubmit_GradesAndIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	attempt, _, _ := env.svc.Start(ctx, env.exam.ID, 1)

	if _, err := env.svc.SaveAnswer(ctx, attempt.ID, 1, env.exam.Questions[0].ID, &model.SaveAnswerRequest{SelectedOptions: []string{"B"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	val := 10.2
	if _, err := env.svc.SaveAnswer(ctx, attempt.ID, 1, env.exam.Questions[1].ID, &model.SaveAnswerRequest{NumericValue: &val}); err != nil {
		t.Fatalf("save numeric: %v", err)
	}

	first, err := env.svc.Submit(ctx, attempt.ID, 1)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if first.TotalScore != 10 || first.Percentage != 100 || !first.Passed {
		t.Fatalf("summary = %+v", first)
	}
	if first.SubmittedAt != env.now {
		t.Fatalf("submitted_at = %v, want %v", first.SubmittedAt, env.now)
	}

	// Repeat submit returns the stored summary unchanged, no regrade.
	env.advance(time.Minute)
	second, err := env.svc.Submit(ctx, attempt.ID, 1)
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if *second != *first {
		t.Fatalf("second submit differs: %+v vs %+v", second, first)
	}

	// All mutations are refused after the terminal state.
	if _, err := env.svc.SaveAnswer(ctx, attempt.ID, 1, env.exam.Questions[0].ID, &model.SaveAnswerRequest{SelectedOptions: []string{"A"}}); err != ErrAttemptTerminal {
		t.Fatalf("save after submit: err = %v, want ErrAttemptTerminal", err)
	}
	if err := env.svc.Visit(ctx, attempt.ID, 1, env.exam.Questions[0].ID); err != ErrAttemptTerminal {
		t.Fatalf("visit after submit: err = %v, want ErrAttemptTerminal", err)
	}
	if _, _, err := env.svc.Start(ctx, env.exam.ID, 1); err != ErrAttemptTerminal {
		t.Fatalf("restart after submit: err = %v, want ErrAttemptTerminal", err)
	}
}

func TestSubmit_ConcurrentCallsAgree(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	attempt, _, _ := env.svc.Start(ctx, env.exam.ID, 1)
	if _, err := env.svc.SaveAnswer(ctx, attempt.ID, 1, env.exam.Questions[0].ID, &model.SaveAnswerRequest{SelectedOptions: []string{"B"}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	const n = 8
	results := make([]*model.AttemptSummary, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.svc.Submit(ctx, attempt.ID, 1)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("submit %d: %v", i, errs[i])
		}
		if *results[i] != *results[0] {
			t.Fatalf("submit %d disagrees: %+v vs %+v", i, results[i], results[0])
		}
	}
	if results[0].TotalScore != 5 {
		t.Fatalf("score = %v, want 5", results[0].TotalScore)
	}
}

func TestExpiry_ForcesSubmitWithSavedAnswers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	attempt, _, _ := env.svc.Start(ctx, env.exam.ID, 1)
	if _, err := env.svc.SaveAnswer(ctx, attempt.ID, 1, env.exam.Questions[0].ID, &model.SaveAnswerRequest{SelectedOptions: []string{"B"}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	env.advance(31 * time.Minute)

	// Any touch after expiry converges on the terminal state.
	if _, err := env.svc.SaveAnswer(ctx, attempt.ID, 1, env.exam.Questions[0].ID, &model.SaveAnswerRequest{SelectedOptions: []string{"A"}}); err != ErrAttemptTerminal {
		t.Fatalf("save after expiry: err = %v, want ErrAttemptTerminal", err)
	}

	state, err := env.svc.State(ctx, attempt.ID, 1)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if !state.Attempt.Terminal() {
		t.Fatal("attempt not finalized after expiry")
	}
	if state.Attempt.TotalScore == nil || *state.Attempt.TotalScore != 5 {
		t.Fatalf("expiry graded with wrong score: %+v", state.Attempt)
	}
	if state.RemainingSeconds != 0 {
		t.Fatalf("remaining = %v, want 0", state.RemainingSeconds)
	}
}

func TestForceSubmit_IdempotentOnTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	attempt, _, _ := env.svc.Start(ctx, env.exam.ID, 1)

	first, err := env.svc.ForceSubmit(ctx, attempt.ID, "violation threshold")
	if err != nil {
		t.Fatalf("ForceSubmit: %v", err)
	}
	second, err := env.svc.ForceSubmit(ctx, attempt.ID, "time expired")
	if err != nil {
		t.Fatalf("second ForceSubmit: %v", err)
	}
	if *first != *second {
		t.Fatalf("force submits disagree: %+v vs %+v", first, second)
	}
	if first.TotalScore != 0 {
		t.Fatalf("blank attempt score = %v, want 0", first.TotalScore)
	}
}
