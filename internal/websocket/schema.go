package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSave      Action = "save"
	ActionViolation Action = "violation"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// RequestFrame is the single client-to-server message shape. Action picks
// the operation; the other fields are read per action.
type RequestFrame struct {
	Action Action `json:"action"`

	// save
	QuestionID      string   `json:"question_id,omitempty"`
	SelectedOptions []string `json:"selected_options,omitempty"`
	NumericValue    *float64 `json:"numeric_value,omitempty"`
	MarkedForReview bool     `json:"marked_for_review,omitempty"`

	// violation
	Type string `json:"type,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventViolation Event = "violation"
	EventGraded    Event = "graded"
	EventPong      Event = "pong"
)

type SavedResponse struct {
	Event      Event  `json:"event"`
	QuestionID string `json:"question_id"`
	Status     string `json:"status"`
}

type ViolationResponse struct {
	Event          Event `json:"event"`
	ViolationCount int   `json:"violation_count"`
	Threshold      int   `json:"threshold"`
	ForceSubmitted bool  `json:"force_submitted"`
}

type GradedResponse struct {
	Event      Event   `json:"event"`
	TotalScore float64 `json:"total_score"`
	Percentage float64 `json:"percentage"`
	Passed     bool    `json:"passed"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event            Event   `json:"event"`
	RemainingSeconds float64 `json:"remaining_seconds"`
}
