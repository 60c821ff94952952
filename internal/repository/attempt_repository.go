package repository

import (
	"context"
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

// AttemptRepository handles attempt and answer data access. Postgres is the
// source of truth; Redis mirrors in-flight answers for the live dashboard.
type AttemptRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AttemptRepository {
	return &AttemptRepository{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "attempt_repository").Logger(),
	}
}

const attemptColumns = `id, exam_id, student_id, started_at, submitted, submitted_at,
	total_score, percentage, passed, violation_count`

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.StartedAt, &a.Submitted,
		&a.SubmittedAt, &a.TotalScore, &a.Percentage, &a.Passed, &a.ViolationCount)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetOrCreate inserts the attempt for (exam, student) or returns the existing
// one. The unique constraint makes concurrent first-opens converge on a
// single row.
func (r *AttemptRepository) GetOrCreate(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`INSERT INTO attempts (exam_id, student_id)
		 VALUES ($1, $2)
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING `+attemptColumns,
		examID, studentID))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	// Conflict: another request created the row first.
	return r.GetByExamAndStudent(ctx, examID, studentID)
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, attemptID))
}

// GetByExamAndStudent retrieves the attempt for a specific exam-student pair.
func (r *AttemptRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID))
}

// UpsertAnswer overwrites the answer row for (attempt, question). The status
// CASE keeps an existing review mark when the incoming save clears the value,
// so "clear my answer" never silently drops "come back to this one".
func (r *AttemptRepository) UpsertAnswer(ctx context.Context, a *model.Answer) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO answers (attempt_id, question_id, selected_options, numeric_value, status, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE SET
		   selected_options = EXCLUDED.selected_options,
		   numeric_value = EXCLUDED.numeric_value,
		   status = CASE
		     WHEN EXCLUDED.status = 'NOT_ANSWERED' AND answers.status IN ('MARKED', 'ANSWERED_MARKED')
		     THEN 'MARKED'
		     ELSE EXCLUDED.status
		   END,
		   updated_at = EXCLUDED.updated_at`,
		a.AttemptID, a.QuestionID, a.SelectedOptions, a.NumericValue, a.Status, a.UpdatedAt)
	if err != nil {
		return err
	}

	// Best-effort dashboard mirror; the row above is the record.
	r.mirrorAnswer(ctx, a)
	return nil
}

func (r *AttemptRepository) mirrorAnswer(ctx context.Context, a *model.Answer) {
	key := config.CacheKey.AttemptAnswersKey(a.AttemptID.String())
	if err := r.rdb.HSet(ctx, key, a.QuestionID.String(), string(a.Status)).Err(); err != nil {
		r.log.Warn().Err(err).Str("attempt_id", a.AttemptID.String()).Msg("Answer mirror write failed")
	}
}

// MarkVisited creates the NOT_ANSWERED palette row for a question seen for
// the first time. An existing row, whatever its status, is left alone.
func (r *AttemptRepository) MarkVisited(ctx context.Context, attemptID, questionID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO answers (attempt_id, question_id, status, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (attempt_id, question_id) DO NOTHING`,
		attemptID, questionID, model.AnswerStatusNotAnswered, time.Now())
	return err
}

// ListAnswers retrieves all answer rows of an attempt.
func (r *AttemptRepository) ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT attempt_id, question_id, selected_options, numeric_value, status, updated_at
		 FROM answers
		 WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.AttemptID, &a.QuestionID, &a.SelectedOptions,
			&a.NumericValue, &a.Status, &a.UpdatedAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// Finalize writes the grading result, guarded by submitted = FALSE. Exactly
// one of several racing finalizers wins; the rest see won = false and must
// read the stored result instead.
func (r *AttemptRepository) Finalize(ctx context.Context, attemptID uuid.UUID, res model.AttemptResult) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET submitted = TRUE, submitted_at = $1, total_score = $2, percentage = $3, passed = $4
		 WHERE id = $5 AND submitted = FALSE`,
		res.SubmittedAt, res.TotalScore, res.Percentage, res.Passed, attemptID)
	if err != nil {
		return false, err
	}
	won := tag.RowsAffected() > 0

	if won {
		key := config.CacheKey.AttemptAnswersKey(attemptID.String())
		if err := r.rdb.Del(ctx, key).Err(); err != nil {
			r.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Answer mirror cleanup failed")
		}
	}
	return won, nil
}

// ListOverdue returns in-progress attempts whose window has already elapsed:
// past started_at + duration, or past the exam's hard end. The expiry worker
// sweeps these in case their in-process timer was lost to a restart.
func (r *AttemptRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id
		 FROM attempts a
		 JOIN exams e ON a.exam_id = e.id
		 WHERE a.submitted = FALSE
		   AND (a.started_at + make_interval(mins => e.duration_minutes) <= $1
		        OR (e.ends_at IS NOT NULL AND e.ends_at <= $1))
		 LIMIT $2`, now, limit)
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
