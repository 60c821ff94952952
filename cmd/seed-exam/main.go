package main

import (
	"context"
	"fmt"
	"time"

	"github.com/veducate/examgate-backend/internal/config"
	"github.com/veducate/examgate-backend/internal/database"
	"github.com/veducate/examgate-backend/internal/logger"
	"github.com/veducate/examgate-backend/internal/model"
	"github.com/veducate/examgate-backend/internal/repository"
	"github.com/veducate/examgate-backend/internal/service"
)

// Seeds a published demo exam covering every question type and prints a
// proctor token for the monitoring endpoints.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	examRepo := repository.NewExamRepository(pool, rdb, log)
	studentRepo := repository.NewStudentRepository(pool)
	authService := service.NewAuthService(cfg, rdb, studentRepo, log)

	endsAt := time.Now().Add(24 * time.Hour)
	exam := &model.Exam{
		Title:           "General Knowledge Demo",
		Status:          model.ExamStatusPublished,
		DurationMinutes: 30,
		TotalMarks:      14,
		PassingMarks:    50,
		EndsAt:          &endsAt,
	}
	if err := examRepo.CreateExam(ctx, exam); err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}

	accepted := 3.14
	questions := []model.Question{
		{
			ExamID:        exam.ID,
			QuestionText:  "Which planet is known as the red planet?",
			QuestionType:  model.QuestionTypeSingleChoice,
			Marks:         5,
			NegativeMarks: 1,
			OrderNum:      1,
			Options: []model.Option{
				{ID: "A", Text: "Venus"},
				{ID: "B", Text: "Mars", Correct: true},
				{ID: "C", Text: "Jupiter"},
				{ID: "D", Text: "Saturn"},
			},
		},
		{
			ExamID:       exam.ID,
			QuestionText: "Select every prime number.",
			QuestionType: model.QuestionTypeMultiChoice,
			Marks:        4,
			OrderNum:     2,
			Options: []model.Option{
				{ID: "A", Text: "2", Correct: true},
				{ID: "B", Text: "4"},
				{ID: "C", Text: "7", Correct: true},
				{ID: "D", Text: "9"},
			},
		},
		{
			ExamID:        exam.ID,
			QuestionText:  "What is the value of pi, to two decimal places?",
			QuestionType:  model.QuestionTypeNumeric,
			Marks:         3,
			OrderNum:      3,
			AcceptedValue: &accepted,
			Tolerance:     0.005,
		},
		{
			ExamID:       exam.ID,
			QuestionText: "The speed of light is finite.",
			QuestionType: model.QuestionTypeTrueFalse,
			Marks:        2,
			OrderNum:     4,
			Options: []model.Option{
				{ID: "true", Text: "True", Correct: true},
				{ID: "false", Text: "False"},
			},
		},
	}
	for i := range questions {
		if err := examRepo.CreateQuestion(ctx, &questions[i]); err != nil {
			log.Fatal().Err(err).Msg("Failed to create question")
		}
	}

	// Prewarm the paper cache so the first student hits Redis.
	if _, err := examRepo.GetPaper(ctx, exam.ID); err != nil {
		log.Warn().Err(err).Msg("Paper prewarm failed")
	}

	proctorToken, err := authService.GenerateProctorToken(1)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to generate proctor token")
	}

	fmt.Printf("Seeded exam %s (%s)\n", exam.ID, exam.Title)
	fmt.Printf("Proctor token:\n%s\n", proctorToken)
}
