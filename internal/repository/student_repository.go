package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veducate/examgate-backend/internal/model"
)

// StudentRepository handles student identity data access.
type StudentRepository struct {
	pool *pgxpool.Pool
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(pool *pgxpool.Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// GetByUsername retrieves a student by login username.
func (r *StudentRepository) GetByUsername(ctx context.Context, username string) (*model.Student, error) {
	s := &model.Student{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, username, password_hash
		 FROM students WHERE username = $1`, username,
	).Scan(&s.ID, &s.Name, &s.Username, &s.PasswordHash)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByID retrieves a student by ID.
func (r *StudentRepository) GetByID(ctx context.Context, id int) (*model.Student, error) {
	s := &model.Student{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, username, password_hash
		 FROM students WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.Username, &s.PasswordHash)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new student. Used by the create-student CLI.
func (r *StudentRepository) Create(ctx context.Context, s *model.Student) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO students (name, username, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		s.Name, s.Username, s.PasswordHash,
	).Scan(&s.ID)
}
