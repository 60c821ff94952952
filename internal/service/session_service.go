package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/veducate/examgate-backend/internal/grading"
	"github.com/veducate/examgate-backend/internal/model"
)

// ExamReader is the question-bank view the engine consumes. Exams are
// read-only here; authoring happens outside this service.
type ExamReader interface {
	GetExamWithQuestions(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
}

// AttemptStore is the durable record of attempts and answers. Absent rows
// are reported as pgx.ErrNoRows so callers can distinguish "missing" from
// real failures.
type AttemptStore interface {
	// GetOrCreate returns the attempt for (exam, student), creating it on
	// first open. Must be race-safe: two concurrent calls return the same row.
	GetOrCreate(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error)
	GetByID(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error)
	GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error)
	// UpsertAnswer overwrites the answer row for (attempt, question).
	// Clearing a value keeps an existing review mark on the row.
	UpsertAnswer(ctx context.Context, a *model.Answer) error
	// MarkVisited creates a NOT_ANSWERED row only if none exists yet.
	MarkVisited(ctx context.Context, attemptID, questionID uuid.UUID) error
	ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error)
	// Finalize writes the grading result and flips submitted, guarded by
	// submitted = false. Returns false when another writer finalized first.
	Finalize(ctx context.Context, attemptID uuid.UUID, res model.AttemptResult) (bool, error)
}

// SessionService is the exam session engine: it owns the attempt lifecycle
// from first open through the single terminal submission.
type SessionService struct {
	exams    ExamReader
	attempts AttemptStore
	clock    *AttemptClock
	log      zerolog.Logger
	now      func() time.Time
}

// NewSessionService creates the engine and its attempt clock. Call Close
// on shutdown to stop outstanding countdowns.
func NewSessionService(exams ExamReader, attempts AttemptStore, log zerolog.Logger) *SessionService {
	s := &SessionService{
		exams:    exams,
		attempts: attempts,
		log:      log.With().Str("component", "session_service").Logger(),
		now:      time.Now,
	}
	s.clock = NewAttemptClock(time.Second, s.expireAttempt, log)
	return s
}

// Close stops all running attempt countdowns.
func (s *SessionService) Close() {
	s.clock.StopAll()
}

// SessionState is the resumable view of an active or finished attempt.
// It carries everything a reloading client needs: the attempt, the answer
// palette, and the authoritative remaining time.
type SessionState struct {
	Attempt          *model.Attempt `json:"attempt"`
	RemainingSeconds float64        `json:"remaining_seconds"`
	Answers          []model.Answer `json:"answers"`
}

// Start opens (or resumes) the attempt for (exam, student). Calling it
// again before submission returns the same attempt; it never creates two.
func (s *SessionService) Start(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, time.Duration, error) {
	exam, err := s.exam(ctx, examID)
	if err != nil {
		return nil, 0, err
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, 0, ErrExamNotPublished
	}

	now := s.now()
	if exam.ScheduledStart != nil && now.Before(*exam.ScheduledStart) {
		return nil, 0, ErrNotYetOpen
	}

	// Resume path first: an existing attempt keeps its original window.
	existing, err := s.attempts.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, fmt.Errorf("check existing attempt: %w", err)
	}
	if existing != nil {
		if existing.Terminal() {
			return nil, 0, ErrAttemptTerminal
		}
		remaining := s.remaining(exam, existing, now)
		if remaining <= 0 {
			// The window elapsed while the student was away.
			if _, err := s.ForceSubmit(ctx, existing.ID, "window elapsed before resume"); err != nil {
				return nil, 0, err
			}
			return nil, 0, ErrWindowClosed
		}
		s.clock.Track(existing.ID, s.deadline(exam, existing))
		return existing, remaining, nil
	}

	if exam.EndsAt != nil && !now.Before(*exam.EndsAt) {
		return nil, 0, ErrWindowClosed
	}

	attempt, err := s.attempts.GetOrCreate(ctx, examID, studentID)
	if err != nil {
		return nil, 0, fmt.Errorf("create attempt: %w", err)
	}

	s.clock.Track(attempt.ID, s.deadline(exam, attempt))
	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Msg("Attempt started")

	return attempt, s.remaining(exam, attempt, now), nil
}

// VerifyActiveAttempt loads an attempt and checks ownership and liveness.
// An attempt whose window already elapsed is force-submitted here, so every
// entry point converges on the terminal state.
func (s *SessionService) VerifyActiveAttempt(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.Attempt, *model.Exam, error) {
	attempt, exam, err := s.ownedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, nil, err
	}
	if attempt.Terminal() {
		return nil, nil, ErrAttemptTerminal
	}
	if s.remaining(exam, attempt, s.now()) <= 0 {
		if _, err := s.ForceSubmit(ctx, attempt.ID, "window elapsed"); err != nil {
			return nil, nil, err
		}
		return nil, nil, ErrAttemptTerminal
	}
	return attempt, exam, nil
}

// State returns the resumable session view. Unlike the mutating operations
// it also serves terminal attempts, so a reloading client can render the
// result screen.
func (s *SessionService) State(ctx context.Context, attemptID uuid.UUID, studentID int) (*SessionState, error) {
	attempt, exam, err := s.ownedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}

	if !attempt.Terminal() && s.remaining(exam, attempt, s.now()) <= 0 {
		if _, err := s.ForceSubmit(ctx, attempt.ID, "window elapsed"); err != nil {
			return nil, err
		}
		if attempt, err = s.attempts.GetByID(ctx, attemptID); err != nil {
			return nil, fmt.Errorf("reload attempt: %w", err)
		}
	}

	answers, err := s.attempts.ListAnswers(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	var remaining time.Duration
	if !attempt.Terminal() {
		remaining = s.remaining(exam, attempt, s.now())
		s.clock.Track(attempt.ID, s.deadline(exam, attempt))
	}

	return &SessionState{
		Attempt:          attempt,
		RemainingSeconds: remaining.Seconds(),
		Answers:          answers,
	}, nil
}

// Remaining reports the time left on an active attempt. Terminal attempts
// report zero.
func (s *SessionService) Remaining(ctx context.Context, attemptID uuid.UUID, studentID int) (time.Duration, error) {
	attempt, exam, err := s.ownedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return 0, err
	}
	if attempt.Terminal() {
		return 0, nil
	}
	return s.remaining(exam, attempt, s.now()), nil
}

// SaveAnswer upserts one answer. Saving the same value twice is a no-op
// overwrite; saving an empty value clears the response.
func (s *SessionService) SaveAnswer(ctx context.Context, attemptID uuid.UUID, studentID int, questionID uuid.UUID, req *model.SaveAnswerRequest) (*model.Answer, error) {
	attempt, exam, err := s.VerifyActiveAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}

	question := exam.QuestionByID(questionID)
	if question == nil {
		return nil, ErrQuestionNotFound
	}
	if err := ValidateAnswerShape(question, req.SelectedOptions, req.NumericValue); err != nil {
		return nil, err
	}

	hasValue := len(req.SelectedOptions) > 0 || req.NumericValue != nil
	answer := &model.Answer{
		AttemptID:       attempt.ID,
		QuestionID:      questionID,
		SelectedOptions: req.SelectedOptions,
		NumericValue:    req.NumericValue,
		Status:          model.DeriveAnswerStatus(hasValue, req.MarkedForReview),
		UpdatedAt:       s.now(),
	}

	if err := s.attempts.UpsertAnswer(ctx, answer); err != nil {
		return nil, fmt.Errorf("upsert answer: %w", err)
	}
	return answer, nil
}

// Visit records that the student opened a question. It only creates the
// NOT_ANSWERED palette entry for a previously unvisited question; it never
// regresses an answered or marked status.
func (s *SessionService) Visit(ctx context.Context, attemptID uuid.UUID, studentID int, questionID uuid.UUID) error {
	attempt, exam, err := s.VerifyActiveAttempt(ctx, attemptID, studentID)
	if err != nil {
		return err
	}
	if exam.QuestionByID(questionID) == nil {
		return ErrQuestionNotFound
	}
	if err := s.attempts.MarkVisited(ctx, attempt.ID, questionID); err != nil {
		return fmt.Errorf("mark visited: %w", err)
	}
	return nil
}

// Submit grades the attempt and finalizes it. Repeat calls, including the
// race between a user click and a timer expiry, return the stored summary
// without regrading.
func (s *SessionService) Submit(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.AttemptSummary, error) {
	attempt, exam, err := s.ownedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if attempt.Terminal() {
		return s.storedSummary(attempt, exam), nil
	}
	return s.finalize(ctx, attempt, exam)
}

// ForceSubmit terminates an attempt with whatever answers exist. Invoked by
// the attempt clock, the proctoring threshold, and the expiry worker. A
// terminal attempt yields its stored summary, never an error.
func (s *SessionService) ForceSubmit(ctx context.Context, attemptID uuid.UUID, reason string) (*model.AttemptSummary, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	exam, err := s.exam(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}

	if attempt.Terminal() {
		return s.storedSummary(attempt, exam), nil
	}

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Str("reason", reason).
		Msg("Forcing attempt submission")

	return s.finalize(ctx, attempt, exam)
}

// finalize grades once and writes the terminal state atomically. If the
// conditional update loses a concurrent race, the stored result wins and is
// returned unchanged. A persistence failure is returned loudly; a lost
// submit must never be acknowledged as success.
func (s *SessionService) finalize(ctx context.Context, attempt *model.Attempt, exam *model.Exam) (*model.AttemptSummary, error) {
	answers, err := s.attempts.ListAnswers(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	byQuestion := make(map[uuid.UUID]model.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	sum := grading.GradeAttempt(exam, byQuestion)
	result := model.AttemptResult{
		TotalScore:  sum.TotalScore,
		Percentage:  sum.Percentage,
		Passed:      sum.Passed,
		SubmittedAt: s.now(),
	}

	won, err := s.attempts.Finalize(ctx, attempt.ID, result)
	if err != nil {
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}

	s.clock.Stop(attempt.ID)

	if !won {
		// Another submitter got there first; its grade stands.
		stored, err := s.attempts.GetByID(ctx, attempt.ID)
		if err != nil {
			return nil, fmt.Errorf("reload finalized attempt: %w", err)
		}
		return s.storedSummary(stored, exam), nil
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Float64("total_score", sum.TotalScore).
		Float64("percentage", sum.Percentage).
		Bool("passed", sum.Passed).
		Msg("Attempt graded")

	return &model.AttemptSummary{
		AttemptID:      attempt.ID,
		TotalScore:     sum.TotalScore,
		TotalMarks:     exam.TotalMarks,
		Percentage:     sum.Percentage,
		Passed:         sum.Passed,
		SubmittedAt:    result.SubmittedAt,
		ViolationCount: attempt.ViolationCount,
	}, nil
}

// expireAttempt is the attempt clock callback.
func (s *SessionService) expireAttempt(attemptID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.ForceSubmit(ctx, attemptID, "time expired"); err != nil {
		s.log.Error().Err(err).
			Str("attempt_id", attemptID.String()).
			Msg("Expiry submission failed")
	}
}

// remaining recomputes the time left from the authoritative start timestamp
// and the exam's hard end. Always derived from absolute timestamps so a
// suspended client or delayed tick cannot stretch the window.
func (s *SessionService) remaining(exam *model.Exam, attempt *model.Attempt, now time.Time) time.Duration {
	d := s.deadline(exam, attempt).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// deadline is the absolute end of the attempt: start + duration, clamped by
// the exam's hard end.
func (s *SessionService) deadline(exam *model.Exam, attempt *model.Attempt) time.Time {
	end := attempt.StartedAt.Add(exam.Duration())
	if exam.EndsAt != nil && exam.EndsAt.Before(end) {
		end = *exam.EndsAt
	}
	return end
}

func (s *SessionService) exam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetExamWithQuestions(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

func (s *SessionService) ownedAttempt(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.Attempt, *model.Exam, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrAttemptNotFound
		}
		return nil, nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, nil, ErrForbidden
	}
	exam, err := s.exam(ctx, attempt.ExamID)
	if err != nil {
		return nil, nil, err
	}
	return attempt, exam, nil
}

func (s *SessionService) storedSummary(attempt *model.Attempt, exam *model.Exam) *model.AttemptSummary {
	sum := &model.AttemptSummary{
		AttemptID:      attempt.ID,
		TotalMarks:     exam.TotalMarks,
		ViolationCount: attempt.ViolationCount,
	}
	if attempt.TotalScore != nil {
		sum.TotalScore = *attempt.TotalScore
	}
	if attempt.Percentage != nil {
		sum.Percentage = *attempt.Percentage
	}
	if attempt.Passed != nil {
		sum.Passed = *attempt.Passed
	}
	if attempt.SubmittedAt != nil {
		sum.SubmittedAt = *attempt.SubmittedAt
	}
	return sum
}

// ValidateAnswerShape rejects values that do not match the question type.
// Tolerance is deliberately not checked here; it only matters at grading.
func ValidateAnswerShape(q *model.Question, selected []string, numeric *float64) error {
	if len(selected) > 0 && numeric != nil {
		return ErrInvalidAnswerShape
	}

	switch q.QuestionType {
	case model.QuestionTypeSingleChoice, model.QuestionTypeTrueFalse:
		if numeric != nil || len(selected) > 1 {
			return ErrInvalidAnswerShape
		}
		for _, id := range selected {
			if !q.HasOption(id) {
				return ErrInvalidAnswerShape
			}
		}
	case model.QuestionTypeMultiChoice:
		if numeric != nil {
			return ErrInvalidAnswerShape
		}
		for _, id := range selected {
			if !q.HasOption(id) {
				return ErrInvalidAnswerShape
			}
		}
	case model.QuestionTypeNumeric:
		if len(selected) > 0 {
			return ErrInvalidAnswerShape
		}
		if numeric != nil && (math.IsNaN(*numeric) || math.IsInf(*numeric, 0)) {
			return ErrInvalidAnswerShape
		}
	default:
		return ErrInvalidAnswerShape
	}
	return nil
}
