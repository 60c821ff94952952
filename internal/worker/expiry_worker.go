package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/veducate/examgate-backend/internal/repository"
	"github.com/veducate/examgate-backend/internal/service"
)

// sweepBatchSize caps how many overdue attempts one sweep finalizes.
const sweepBatchSize = 200

// ExpiryWorker is the safety net behind the in-process attempt clocks.
// A server restart loses running countdowns; this worker periodically
// scans for in-progress attempts whose window has already elapsed and
// force-submits them. Finalization is idempotent, so overlapping with a
// live clock is harmless.
type ExpiryWorker struct {
	attemptRepo    *repository.AttemptRepository
	sessionService *service.SessionService
	interval       time.Duration
	log            zerolog.Logger
}

func NewExpiryWorker(
	attemptRepo *repository.AttemptRepository,
	sessionService *service.SessionService,
	interval time.Duration,
	log zerolog.Logger,
) *ExpiryWorker {
	return &ExpiryWorker{
		attemptRepo:    attemptRepo,
		sessionService: sessionService,
		interval:       interval,
		log:            log.With().Str("component", "expiry_worker").Logger(),
	}
}

func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("ExpiryWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run one sweep immediately so attempts orphaned by a restart are
	// closed without waiting a full interval.
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ExpiryWorker stopping")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	ids, err := w.attemptRepo.ListOverdue(ctx, time.Now(), sweepBatchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("Overdue scan failed")
		return
	}
	if len(ids) == 0 {
		return
	}

	w.log.Info().Int("count", len(ids)).Msg("Sweeping overdue attempts")

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if _, err := w.sessionService.ForceSubmit(ctx, id, "expiry sweep"); err != nil {
			w.log.Error().Err(err).Str("attempt_id", id.String()).Msg("Sweep submission failed")
		}
	}
}
