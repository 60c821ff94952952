package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationType enumerates the proctoring signals reported by the client.
type ViolationType string

const (
	ViolationTabSwitch      ViolationType = "TAB_SWITCH"
	ViolationFocusLoss      ViolationType = "FOCUS_LOSS"
	ViolationFullscreenExit ViolationType = "FULLSCREEN_EXIT"
)

// Valid reports whether the violation type is one of the known signals.
func (t ViolationType) Valid() bool {
	switch t {
	case ViolationTabSwitch, ViolationFocusLoss, ViolationFullscreenExit:
		return true
	}
	return false
}

// ViolationEvent is one append-only proctoring event. Events are never
// mutated or deleted; only their running count drives behavior.
type ViolationEvent struct {
	ID         int64         `json:"id"`
	AttemptID  uuid.UUID     `json:"attempt_id"`
	Type       ViolationType `json:"type"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// ReportViolationRequest is the payload for reporting a violation.
type ReportViolationRequest struct {
	Type ViolationType `json:"type" binding:"required,oneof=TAB_SWITCH FOCUS_LOSS FULLSCREEN_EXIT"`
}
