package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/veducate/examgate-backend/internal/middleware"
	"github.com/veducate/examgate-backend/internal/model"
	"github.com/veducate/examgate-backend/internal/service"
	ws "github.com/veducate/examgate-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles the WebSocket attempt stream: low-latency answer saves,
// violation reports, and submission over one connection.
type WSHandler struct {
	sessionService *service.SessionService
	proctorService *service.ProctorService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	sessionService *service.SessionService,
	proctorService *service.ProctorService,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		proctorService: proctorService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/attempts/:attempt_id/stream
// Upgrades to WebSocket for the duration of an attempt.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	studentID := claims.UserID

	// Reject before upgrading so dead attempts never hold a socket.
	if _, _, err := h.sessionService.VerifyActiveAttempt(c.Request.Context(), attemptID, studentID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("attempt_id", attemptID.String()).
		Logger()

	wsLog.Info().Msg("Student connected")

	for {
		var msg ws.RequestFrame
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionSave:
			h.handleSave(conn, attemptID, studentID, &msg)
		case ws.ActionViolation:
			h.handleViolation(conn, attemptID, studentID, &msg)
		case ws.ActionSubmit:
			if h.handleSubmit(conn, wsLog, attemptID, studentID) {
				return
			}
		case ws.ActionPing:
			h.handlePing(conn, attemptID, studentID)
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(msg.Action))
		}
	}
}

// handleSave persists one answer and echoes the stored palette status.
func (h *WSHandler) handleSave(conn *websocket.Conn, attemptID uuid.UUID, studentID int, msg *ws.RequestFrame) {
	questionID, err := uuid.Parse(msg.QuestionID)
	if err != nil {
		ws.WriteError(conn, "invalid question_id format")
		return
	}

	req := &model.SaveAnswerRequest{
		SelectedOptions: msg.SelectedOptions,
		NumericValue:    msg.NumericValue,
		MarkedForReview: msg.MarkedForReview,
	}

	answer, err := h.sessionService.SaveAnswer(context.Background(), attemptID, studentID, questionID, req)
	if err != nil {
		ws.WriteError(conn, err.Error())
		return
	}

	ws.WriteTyped(conn, ws.SavedResponse{
		Event:      ws.EventSaved,
		QuestionID: msg.QuestionID,
		Status:     string(answer.Status),
	})
}

func (h *WSHandler) handleViolation(conn *websocket.Conn, attemptID uuid.UUID, studentID int, msg *ws.RequestFrame) {
	report, err := h.proctorService.Report(context.Background(), attemptID, studentID, model.ViolationType(msg.Type))
	if err != nil {
		ws.WriteError(conn, err.Error())
		return
	}

	ws.WriteTyped(conn, ws.ViolationResponse{
		Event:          ws.EventViolation,
		ViolationCount: report.ViolationCount,
		Threshold:      report.Threshold,
		ForceSubmitted: report.ForceSubmitted,
	})
}

// handleSubmit finalizes the attempt and reports the grade. Returns true
// when the connection should close.
func (h *WSHandler) handleSubmit(conn *websocket.Conn, wsLog zerolog.Logger, attemptID uuid.UUID, studentID int) bool {
	summary, err := h.sessionService.Submit(context.Background(), attemptID, studentID)
	if err != nil {
		ws.WriteError(conn, err.Error())
		return errors.Is(err, service.ErrForbidden)
	}

	wsLog.Info().
		Float64("total_score", summary.TotalScore).
		Float64("percentage", summary.Percentage).
		Msg("Attempt submitted over WebSocket")

	ws.WriteTyped(conn, ws.GradedResponse{
		Event:      ws.EventGraded,
		TotalScore: summary.TotalScore,
		Percentage: summary.Percentage,
		Passed:     summary.Passed,
	})
	return true
}

func (h *WSHandler) handlePing(conn *websocket.Conn, attemptID uuid.UUID, studentID int) {
	remaining, err := h.sessionService.Remaining(context.Background(), attemptID, studentID)
	if err != nil {
		ws.WriteError(conn, err.Error())
		return
	}
	ws.WriteTyped(conn, ws.PongResponse{
		Event:            ws.EventPong,
		RemainingSeconds: remaining.Seconds(),
	})
}
