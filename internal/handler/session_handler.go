package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/veducate/examgate-backend/internal/middleware"
	"github.com/veducate/examgate-backend/internal/model"
	"github.com/veducate/examgate-backend/internal/repository"
	"github.com/veducate/examgate-backend/internal/response"
	"github.com/veducate/examgate-backend/internal/service"
	"github.com/veducate/examgate-backend/internal/validator"
)

// SessionHandler exposes the exam-taking session endpoints.
type SessionHandler struct {
	sessionService *service.SessionService
	proctorService *service.ProctorService
	examRepo       *repository.ExamRepository
	log            zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(
	sessionService *service.SessionService,
	proctorService *service.ProctorService,
	examRepo *repository.ExamRepository,
	log zerolog.Logger,
) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		proctorService: proctorService,
		examRepo:       examRepo,
		log:            log.With().Str("component", "session_handler").Logger(),
	}
}

// failSession maps session engine sentinels onto HTTP error codes.
func failSession(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExamNotFound), errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrExamNotPublished):
		response.Fail(c, http.StatusConflict, response.ErrExamNotPublished)
	case errors.Is(err, service.ErrNotYetOpen):
		response.Fail(c, http.StatusConflict, response.ErrExamNotOpen)
	case errors.Is(err, service.ErrWindowClosed):
		response.Fail(c, http.StatusConflict, response.ErrExamWindowClosed)
	case errors.Is(err, service.ErrAttemptTerminal):
		response.Fail(c, http.StatusConflict, response.ErrAttemptTerminal)
	case errors.Is(err, service.ErrQuestionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrInvalidAnswerShape):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrInvalidAnswerShape)
	case errors.Is(err, service.ErrInvalidViolationType):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrInvalidViolation)
	case errors.Is(err, service.ErrForbidden):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// StartAttempt godoc
// POST /api/v1/student/exams/:exam_id/attempts
// Opens (or resumes) the student's single attempt at this exam.
func (h *SessionHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, remaining, err := h.sessionService.Start(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"attempt":           attempt,
		"remaining_seconds": remaining.Seconds(),
	})
}

// GetPaper godoc
// GET /api/v1/student/exams/:exam_id/paper
// Returns the sanitized question paper. Requires an active attempt so
// questions never leak before the student's window opens.
func (h *SessionHandler) GetPaper(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, _, err := h.sessionService.Start(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failSession(c, err)
		return
	}

	paper, err := h.examRepo.GetPaper(c.Request.Context(), examID)
	if err != nil {
		h.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Paper load failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"attempt_id": attempt.ID,
		"paper":      paper,
	})
}

// GetState godoc
// GET /api/v1/student/attempts/:attempt_id
// Returns the resumable session state: attempt, answer palette, and the
// authoritative remaining time.
func (h *SessionHandler) GetState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	state, err := h.sessionService.State(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// SaveAnswer godoc
// PUT /api/v1/student/attempts/:attempt_id/answers/:question_id
// Saves (or clears) the answer to one question.
func (h *SessionHandler) SaveAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	answer, err := h.sessionService.SaveAnswer(c.Request.Context(), attemptID, claims.UserID, questionID, &req)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"answer": answer})
}

// VisitQuestion godoc
// POST /api/v1/student/attempts/:attempt_id/questions/:question_id/visit
// Marks a question as seen so the palette can distinguish "never opened"
// from "opened but not answered".
func (h *SessionHandler) VisitQuestion(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.sessionService.Visit(c.Request.Context(), attemptID, claims.UserID, questionID); err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// SubmitAttempt godoc
// POST /api/v1/student/attempts/:attempt_id/submit
// Grades and finalizes the attempt. Safe to call repeatedly; every call
// returns the same stored summary.
func (h *SessionHandler) SubmitAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	summary, err := h.sessionService.Submit(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": summary})
}

// ReportViolation godoc
// POST /api/v1/student/attempts/:attempt_id/violations
// Records a proctoring violation; the response tells the client whether the
// attempt survived the threshold.
func (h *SessionHandler) ReportViolation(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.ReportViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	report, err := h.proctorService.Report(c.Request.Context(), attemptID, claims.UserID, req.Type)
	if err != nil {
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, report)
}
