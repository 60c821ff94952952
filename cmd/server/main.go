package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/veducate/examgate-backend/internal/config"
	"github.com/veducate/examgate-backend/internal/database"
	"github.com/veducate/examgate-backend/internal/handler"
	"github.com/veducate/examgate-backend/internal/logger"
	"github.com/veducate/examgate-backend/internal/repository"
	"github.com/veducate/examgate-backend/internal/router"
	"github.com/veducate/examgate-backend/internal/service"
	"github.com/veducate/examgate-backend/internal/validator"
	"github.com/veducate/examgate-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExamGate Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	studentRepo := repository.NewStudentRepository(pool)
	examRepo := repository.NewExamRepository(pool, rdb, log)
	attemptRepo := repository.NewAttemptRepository(pool, rdb, log)
	violationRepo := repository.NewViolationRepository(pool, rdb, log)
	monitorRepo := repository.NewMonitorRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb, studentRepo, log)
	sessionService := service.NewSessionService(examRepo, attemptRepo, log)
	defer sessionService.Close()
	proctorService := service.NewProctorService(violationRepo, attemptRepo, sessionService, cfg.ViolationThreshold, log)
	monitorService := service.NewMonitorService(monitorRepo)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, studentRepo),
		Session: handler.NewSessionHandler(sessionService, proctorService, examRepo, log),
		WS:      handler.NewWSHandler(sessionService, proctorService, log, cfg.AllowedOrigins),
		Monitor: handler.NewMonitorHandler(rdb, monitorService, sessionService, violationRepo, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	violationWorker := worker.NewViolationWorker(violationRepo, rdb, log)
	expiryWorker := worker.NewExpiryWorker(attemptRepo, sessionService, cfg.ExpirySweepInterval, log)

	go violationWorker.Start(workerCtx)
	go expiryWorker.Start(workerCtx)

	// ─── Prewarm Paper Caches ─────────────────────────────────────────
	// Load every published paper into Redis before accepting traffic so
	// the first wave of students doesn't stampede Postgres.
	if ids, err := examRepo.ListPublished(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm scan failed")
	} else {
		for _, id := range ids {
			if _, err := examRepo.GetPaper(ctx, id); err != nil {
				log.Warn().Err(err).Str("exam_id", id.String()).Msg("Cache prewarm failed")
			}
		}
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
