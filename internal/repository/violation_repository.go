package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/veducate/examgate-backend/internal/config"
	"github.com/veducate/examgate-backend/internal/model"
)

// ViolationPayload is the queue and pub/sub wire format for one violation.
type ViolationPayload struct {
	AttemptID      string `json:"attempt_id"`
	ExamID         string `json:"exam_id"`
	StudentID      int    `json:"student_id"`
	Type           string `json:"type"`
	ViolationCount int    `json:"violation_count"`
	Timestamp      int64  `json:"timestamp"`
}

// ViolationRepository records proctoring violations. The counter update is
// synchronous because the force-submit threshold depends on it; the event
// row is queued for the violation worker, and the monitor channel gets a
// live copy for dashboards.
type ViolationRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ViolationRepository {
	return &ViolationRepository{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "violation_repository").Logger(),
	}
}

// Record increments the attempt's violation counter if the attempt is still
// in progress. Terminal attempts are left untouched and report the stored
// count with recorded = false.
func (r *ViolationRepository) Record(ctx context.Context, attemptID uuid.UUID, violationType model.ViolationType) (int, bool, error) {
	var (
		examID    uuid.UUID
		studentID int
		count     int
	)
	err := r.pool.QueryRow(ctx,
		`UPDATE attempts
		 SET violation_count = violation_count + 1
		 WHERE id = $1 AND submitted = FALSE
		 RETURNING exam_id, student_id, violation_count`,
		attemptID,
	).Scan(&examID, &studentID, &count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Terminal (or gone). Report the stored count without counting.
			err = r.pool.QueryRow(ctx,
				`SELECT violation_count FROM attempts WHERE id = $1`, attemptID,
			).Scan(&count)
			if err != nil {
				return 0, false, err
			}
			return count, false, nil
		}
		return 0, false, err
	}

	payload := &ViolationPayload{
		AttemptID:      attemptID.String(),
		ExamID:         examID.String(),
		StudentID:      studentID,
		Type:           string(violationType),
		ViolationCount: count,
		Timestamp:      time.Now().Unix(),
	}
	data, _ := json.Marshal(payload)

	// Event log and live feed are best-effort; the counter above is the
	// record the threshold acts on.
	pipe := r.rdb.Pipeline()
	pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data)
	pipe.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), data)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Violation event dispatch failed")
	}

	return count, true, nil
}

// InsertEvents bulk-inserts violation event rows. Used by the violation
// worker's fast path.
func (r *ViolationRepository) InsertEvents(ctx context.Context, events []ViolationPayload) error {
	rows := make([][]interface{}, 0, len(events))
	for _, e := range events {
		attemptID, err := uuid.Parse(e.AttemptID)
		if err != nil {
			return err
		}
		rows = append(rows, []interface{}{
			attemptID, e.Type, time.Unix(e.Timestamp, 0),
		})
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"violation_events"},
		[]string{"attempt_id", "type", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// InsertEvent inserts a single violation event row. Used by the violation
// worker's row-by-row fallback.
func (r *ViolationRepository) InsertEvent(ctx context.Context, e ViolationPayload) error {
	attemptID, err := uuid.Parse(e.AttemptID)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO violation_events (attempt_id, type, recorded_at)
		 VALUES ($1, $2, $3)`,
		attemptID, e.Type, time.Unix(e.Timestamp, 0))
	return err
}

// ListEvents returns the append-only violation log of an attempt, oldest
// first.
func (r *ViolationRepository) ListEvents(ctx context.Context, attemptID uuid.UUID) ([]model.ViolationEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, attempt_id, type, recorded_at
		 FROM violation_events
		 WHERE attempt_id = $1
		 ORDER BY recorded_at ASC, id ASC`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.ViolationEvent
	for rows.Next() {
		var e model.ViolationEvent
		if err := rows.Scan(&e.ID, &e.AttemptID, &e.Type, &e.RecordedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
