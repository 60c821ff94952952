package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/veducate/examgate-backend/internal/model"
)

// fakeViolationRecorder mirrors the conditional-update semantics of the SQL
// recorder: no increment once the attempt is terminal.
type fakeViolationRecorder struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*model.Attempt
	events   []model.ViolationEvent
}

func newFakeViolationRecorder(attempts ...*model.Attempt) *fakeViolationRecorder {
	r := &fakeViolationRecorder{attempts: make(map[uuid.UUID]*model.Attempt)}
	for _, a := range attempts {
		r.attempts[a.ID] = a
	}
	return r
}

func (r *fakeViolationRecorder) Record(_ context.Context, attemptID uuid.UUID, vt model.ViolationType) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[attemptID]
	if !ok {
		return 0, false, pgx.ErrNoRows
	}
	if a.Submitted {
		return a.ViolationCount, false, nil
	}
	a.ViolationCount++
	r.events = append(r.events, model.ViolationEvent{AttemptID: attemptID, Type: vt})
	return a.ViolationCount, true, nil
}

func (r *fakeViolationRecorder) GetByID(_ context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[attemptID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

type fakeSubmitter struct {
	mu       sync.Mutex
	calls    int
	recorder *fakeViolationRecorder
}

func (f *fakeSubmitter) ForceSubmit(_ context.Context, attemptID uuid.UUID, _ string) (*model.AttemptSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.recorder.mu.Lock()
	f.recorder.attempts[attemptID].Submitted = true
	f.recorder.mu.Unlock()
	return &model.AttemptSummary{AttemptID: attemptID}, nil
}

func newProctorFixture(t *testing.T, threshold int) (*ProctorService, *model.Attempt, *fakeSubmitter) {
	t.Helper()
	attempt := &model.Attempt{ID: uuid.New(), ExamID: uuid.New(), StudentID: 1}
	recorder := newFakeViolationRecorder(attempt)
	submitter := &fakeSubmitter{recorder: recorder}
	svc := NewProctorService(recorder, recorder, submitter, threshold, zerolog.Nop())
	return svc, attempt, submitter
}

func TestReport_CountsUpToThreshold(t *testing.T) {
	svc, attempt, submitter := newProctorFixture(t, 3)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		rep, err := svc.Report(ctx, attempt.ID, 1, model.ViolationTabSwitch)
		if err != nil {
			t.Fatalf("report %d: %v", i, err)
		}
		if rep.ViolationCount != i || rep.ForceSubmitted {
			t.Fatalf("report %d = %+v", i, rep)
		}
	}

	rep, err := svc.Report(ctx, attempt.ID, 1, model.ViolationFullscreenExit)
	if err != nil {
		t.Fatalf("third report: %v", err)
	}
	if rep.ViolationCount != 3 || !rep.ForceSubmitted {
		t.Fatalf("threshold report = %+v", rep)
	}
	if submitter.calls != 1 {
		t.Fatalf("force submit called %d times, want 1", submitter.calls)
	}
}

func TestReport_AfterTerminalIsNoOp(t *testing.T) {
	svc, attempt, submitter := newProctorFixture(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Report(ctx, attempt.ID, 1, model.ViolationFocusLoss); err != nil {
			t.Fatalf("report: %v", err)
		}
	}

	// Further reports must not grow the count or trigger another submit.
	rep, err := svc.Report(ctx, attempt.ID, 1, model.ViolationFocusLoss)
	if err != nil {
		t.Fatalf("post-terminal report: %v", err)
	}
	if rep.ViolationCount != 3 || rep.ForceSubmitted {
		t.Fatalf("post-terminal report = %+v", rep)
	}
	if submitter.calls != 1 {
		t.Fatalf("force submit called %d times, want 1", submitter.calls)
	}
}

func TestReport_Validation(t *testing.T) {
	svc, attempt, _ := newProctorFixture(t, 3)
	ctx := context.Background()

	if _, err := svc.Report(ctx, attempt.ID, 1, model.ViolationType("COFFEE_BREAK")); err != ErrInvalidViolationType {
		t.Fatalf("err = %v, want ErrInvalidViolationType", err)
	}
	if _, err := svc.Report(ctx, uuid.New(), 1, model.ViolationTabSwitch); err != ErrAttemptNotFound {
		t.Fatalf("err = %v, want ErrAttemptNotFound", err)
	}
	if _, err := svc.Report(ctx, attempt.ID, 99, model.ViolationTabSwitch); err != ErrForbidden {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestReport_ConcurrentReportsSubmitOnce(t *testing.T) {
	svc, attempt, submitter := newProctorFixture(t, 3)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Report(ctx, attempt.ID, 1, model.ViolationTabSwitch)
		}()
	}
	wg.Wait()

	if submitter.calls == 0 {
		t.Fatal("threshold never triggered a submit")
	}
	// The recorder stops counting once the attempt is terminal, so the
	// stored count can exceed the threshold only by in-flight racers that
	// incremented before the flip. It must never keep growing after.
	rep, err := svc.Report(ctx, attempt.ID, 1, model.ViolationTabSwitch)
	if err != nil {
		t.Fatalf("post-race report: %v", err)
	}
	if rep.ForceSubmitted {
		t.Fatal("post-terminal report claimed a force submit")
	}
}
