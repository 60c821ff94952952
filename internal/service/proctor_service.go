package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/veducate/examgate-backend/internal/model"
)

// ViolationRecorder persists proctoring violations. Record increments the
// attempt's counter atomically and only while the attempt is in progress;
// recorded reports whether the increment happened. The event row itself is
// logged out of band by the violation worker.
type ViolationRecorder interface {
	Record(ctx context.Context, attemptID uuid.UUID, violationType model.ViolationType) (count int, recorded bool, err error)
}

// attemptGetter is the read slice of AttemptStore the proctor needs.
type attemptGetter interface {
	GetByID(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error)
}

// forcedSubmitter is the slice of the session engine the proctor needs.
type forcedSubmitter interface {
	ForceSubmit(ctx context.Context, attemptID uuid.UUID, reason string) (*model.AttemptSummary, error)
}

// ViolationReport is the outcome of one reported violation.
type ViolationReport struct {
	ViolationCount int  `json:"violation_count"`
	Threshold      int  `json:"threshold"`
	ForceSubmitted bool `json:"force_submitted"`
}

// ProctorService counts proctoring violations and force-submits an attempt
// once the configured threshold is reached.
type ProctorService struct {
	violations ViolationRecorder
	attempts   attemptGetter
	sessions   forcedSubmitter
	threshold  int
	log        zerolog.Logger
}

func NewProctorService(violations ViolationRecorder, attempts attemptGetter, sessions forcedSubmitter, threshold int, log zerolog.Logger) *ProctorService {
	return &ProctorService{
		violations: violations,
		attempts:   attempts,
		sessions:   sessions,
		threshold:  threshold,
		log:        log.With().Str("component", "proctor_service").Logger(),
	}
}

// Report records one violation against an attempt. Reaching the threshold
// force-submits the attempt exactly once; reports against an already
// terminal attempt change nothing and are acknowledged as such.
func (s *ProctorService) Report(ctx context.Context, attemptID uuid.UUID, studentID int, violationType model.ViolationType) (*ViolationReport, error) {
	if !violationType.Valid() {
		return nil, ErrInvalidViolationType
	}

	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, ErrForbidden
	}

	count, recorded, err := s.violations.Record(ctx, attemptID, violationType)
	if err != nil {
		return nil, fmt.Errorf("record violation: %w", err)
	}
	if !recorded {
		// The attempt went terminal before (or while) we recorded.
		return &ViolationReport{
			ViolationCount: attempt.ViolationCount,
			Threshold:      s.threshold,
		}, nil
	}

	s.log.Warn().
		Str("attempt_id", attemptID.String()).
		Str("type", string(violationType)).
		Int("count", count).
		Msg("Proctoring violation recorded")

	report := &ViolationReport{ViolationCount: count, Threshold: s.threshold}
	if count >= s.threshold {
		if _, err := s.sessions.ForceSubmit(ctx, attemptID, "violation threshold reached"); err != nil {
			return nil, fmt.Errorf("force submit after violations: %w", err)
		}
		report.ForceSubmitted = true
	}
	return report, nil
}
