package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/veducate/examgate-backend/internal/config"
	"github.com/veducate/examgate-backend/internal/repository"
	"github.com/veducate/examgate-backend/internal/response"
	"github.com/veducate/examgate-backend/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler serves the proctor dashboard: live SSE feed, violation
// logs, and manual force-submit.
type MonitorHandler struct {
	rdb            *redis.Client
	monitorService *service.MonitorService
	sessionService *service.SessionService
	violationRepo  *repository.ViolationRepository
	log            zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(
	rdb *redis.Client,
	monitorService *service.MonitorService,
	sessionService *service.SessionService,
	violationRepo *repository.ViolationRepository,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		monitorService: monitorService,
		sessionService: sessionService,
		violationRepo:  violationRepo,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/proctor/exams/:exam_id/monitor
// Streams the live dashboard: an initial snapshot, raw violation events as
// they arrive over Pub/Sub, periodic refreshes, and keep-alive pings.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendSnapshot(c, reqCtx, examID, "snapshot")

	channelName := config.CacheKey.ExamMonitorChannel(examID.String())
	pubsub := h.rdb.Subscribe(reqCtx, channelName)
	defer pubsub.Close()

	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	h.log.Info().Str("exam_id", examID.String()).Msg("Proctor attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Proctor disconnected from live monitor SSE")
			return

		case msg := <-ch:
			// Forward raw JSON directly, no deserialization needed
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

		case <-refreshTicker.C:
			h.sendSnapshot(c, reqCtx, examID, "refresh")

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// sendSnapshot fetches the current exam snapshot and writes one SSE event.
// A scoped timeout keeps a slow query from stalling the loop.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, parentCtx context.Context, examID uuid.UUID, eventType string) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	snapshot, err := h.monitorService.GetExamSnapshot(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Snapshot fetch failed")
		return
	}

	c.SSEvent("message", map[string]interface{}{
		"type": eventType,
		"data": snapshot,
	})
	c.Writer.Flush()
}

// GetExamSnapshot godoc
// GET /api/v1/proctor/exams/:exam_id/snapshot
// One-shot dashboard snapshot for clients that cannot hold an SSE stream.
func (h *MonitorHandler) GetExamSnapshot(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	snapshot, err := h.monitorService.GetExamSnapshot(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, snapshot)
}

// ListViolations godoc
// GET /api/v1/proctor/attempts/:attempt_id/violations
// Returns an attempt's append-only violation log, oldest first.
func (h *MonitorHandler) ListViolations(c *gin.Context) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	events, err := h.violationRepo.ListEvents(c.Request.Context(), attemptID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"violations": events})
}

// ForceSubmitAttempt godoc
// POST /api/v1/proctor/attempts/:attempt_id/force-submit
// Lets a proctor terminate an attempt manually. Idempotent: a terminal
// attempt returns its stored summary.
func (h *MonitorHandler) ForceSubmitAttempt(c *gin.Context) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	summary, err := h.sessionService.ForceSubmit(c.Request.Context(), attemptID, "proctor request")
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": summary})
}
