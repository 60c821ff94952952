package service

import "errors"

// Session engine errors. Handlers map these onto HTTP error codes;
// everything else surfaces as an internal error.
var (
	ErrExamNotFound       = errors.New("exam not found")
	ErrExamNotPublished   = errors.New("exam is not published")
	ErrAttemptNotFound    = errors.New("attempt not found")
	ErrQuestionNotFound   = errors.New("question does not belong to this exam")
	ErrNotYetOpen         = errors.New("exam has not opened yet")
	ErrWindowClosed       = errors.New("exam window has closed")
	ErrAttemptTerminal    = errors.New("attempt is already submitted")
	ErrInvalidAnswerShape = errors.New("answer value does not match question type")
	ErrForbidden          = errors.New("attempt belongs to another student")

	ErrInvalidViolationType = errors.New("unknown violation type")
)

// Auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrSessionRevoked     = errors.New("session has been revoked")
)
