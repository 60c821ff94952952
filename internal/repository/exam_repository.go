package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/veducate/examgate-backend/internal/config"
	"github.com/veducate/examgate-backend/internal/model"
)

// PaperCacheTTL bounds how long a stale paper can outlive an exam edit.
const PaperCacheTTL = 10 * time.Minute

// ExamRepository handles exam and question data access. The student-facing
// paper is served from Redis with Postgres as fallback and self-heal.
type ExamRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ExamRepository {
	return &ExamRepository{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "exam_repository").Logger(),
	}
}

// GetExamWithQuestions retrieves an exam and its full question set,
// correctness flags included. Grading and shape validation run on this view.
func (r *ExamRepository) GetExamWithQuestions(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, status, duration_minutes, total_marks, passing_marks,
		        scheduled_start, ends_at, created_at, updated_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.Status, &e.DurationMinutes, &e.TotalMarks, &e.PassingMarks,
		&e.ScheduledStart, &e.EndsAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, question_text, question_type, marks, negative_marks,
		        order_num, options, accepted_value, tolerance
		 FROM questions
		 WHERE exam_id = $1
		 ORDER BY order_num ASC`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.QuestionText, &q.QuestionType,
			&q.Marks, &q.NegativeMarks, &q.OrderNum, &q.Options,
			&q.AcceptedValue, &q.Tolerance); err != nil {
			return nil, err
		}
		e.Questions = append(e.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return e, nil
}

// GetPaper returns the sanitized student-facing paper, preferring the Redis
// cache. A miss or a corrupt entry falls back to Postgres and rewrites the
// cache, so a flushed Redis heals itself on the next read.
func (r *ExamRepository) GetPaper(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, error) {
	cacheKey := config.CacheKey.ExamPaperKey(examID.String())

	cached, err := r.rdb.Get(ctx, cacheKey).Result()
	if err == nil {
		paper := &model.ExamPaper{}
		if err := json.Unmarshal([]byte(cached), paper); err == nil {
			return paper, nil
		}
		r.log.Warn().Str("exam_id", examID.String()).Msg("Corrupt paper cache entry, rebuilding")
	} else if !errors.Is(err, redis.Nil) {
		r.log.Warn().Err(err).Msg("Paper cache read failed, falling back to database")
	}

	exam, err := r.GetExamWithQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}

	paper := model.NewExamPaper(exam)
	if data, err := json.Marshal(paper); err == nil {
		if err := r.rdb.Set(ctx, cacheKey, data, PaperCacheTTL).Err(); err != nil {
			r.log.Warn().Err(err).Msg("Paper cache write failed")
		}
	}
	return paper, nil
}

// InvalidatePaper drops the cached paper, forcing a rebuild on next read.
func (r *ExamRepository) InvalidatePaper(ctx context.Context, examID uuid.UUID) error {
	return r.rdb.Del(ctx, config.CacheKey.ExamPaperKey(examID.String())).Err()
}

// CreateExam inserts a new exam. Authoring is out of band; this exists for
// the seeding CLI and tests.
func (r *ExamRepository) CreateExam(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, status, duration_minutes, total_marks, passing_marks, scheduled_start, ends_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.Status, e.DurationMinutes, e.TotalMarks, e.PassingMarks,
		e.ScheduledStart, e.EndsAt,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// CreateQuestion inserts a question into an exam.
func (r *ExamRepository) CreateQuestion(ctx context.Context, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (exam_id, question_text, question_type, marks, negative_marks, order_num, options, accepted_value, tolerance)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		q.ExamID, q.QuestionText, q.QuestionType, q.Marks, q.NegativeMarks,
		q.OrderNum, q.Options, q.AcceptedValue, q.Tolerance,
	).Scan(&q.ID)
}

// ListPublished returns the IDs of all published exams. Used by the expiry
// worker and for cache prewarming at startup.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM exams WHERE status = $1`, model.ExamStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
