package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veducate/examgate-backend/internal/model"
)

// MonitorRepository serves the proctoring dashboard's aggregate reads.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// GetAttemptProgress returns one row per attempt of the exam: who is in,
// how far along they are, and how they are behaving.
func (r *MonitorRepository) GetAttemptProgress(ctx context.Context, examID uuid.UUID) ([]model.AttemptProgress, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.student_id, s.name, a.started_at, a.submitted, a.submitted_at,
		        COUNT(ans.question_id) FILTER (WHERE ans.status IN ('ANSWERED', 'ANSWERED_MARKED')),
		        a.violation_count
		 FROM attempts a
		 JOIN students s ON a.student_id = s.id
		 LEFT JOIN answers ans ON ans.attempt_id = a.id
		 WHERE a.exam_id = $1
		 GROUP BY a.id, a.student_id, s.name, a.started_at, a.submitted, a.submitted_at, a.violation_count
		 ORDER BY s.name ASC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var progress []model.AttemptProgress
	for rows.Next() {
		var p model.AttemptProgress
		if err := rows.Scan(&p.AttemptID, &p.StudentID, &p.StudentName, &p.StartedAt,
			&p.Submitted, &p.SubmittedAt, &p.AnsweredCount, &p.ViolationCount); err != nil {
			return nil, err
		}
		progress = append(progress, p)
	}
	return progress, rows.Err()
}

// GetViolationCounts returns violation counts per student for an exam,
// computed from the append-only event log.
func (r *MonitorRepository) GetViolationCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.student_id, COUNT(v.id)
		 FROM attempts a
		 JOIN violation_events v ON v.attempt_id = a.id
		 WHERE a.exam_id = $1
		 GROUP BY a.student_id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var studentID int
		var count int64
		if err := rows.Scan(&studentID, &count); err != nil {
			return nil, err
		}
		counts[studentID] = count
	}
	return counts, rows.Err()
}
