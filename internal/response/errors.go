package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// Authentication
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionRevoked     ErrCode = "SESSION_REVOKED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// Authorization
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrProctorAccessOnly ErrCode = "PROCTOR_ACCESS_ONLY"

	// Validation
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// Resources
	ErrNotFound ErrCode = "NOT_FOUND"

	// Session-specific
	ErrExamNotPublished   ErrCode = "EXAM_NOT_PUBLISHED"
	ErrExamNotOpen        ErrCode = "EXAM_NOT_OPEN"
	ErrExamWindowClosed   ErrCode = "EXAM_WINDOW_CLOSED"
	ErrAttemptTerminal    ErrCode = "ATTEMPT_ALREADY_SUBMITTED"
	ErrInvalidAnswerShape ErrCode = "INVALID_ANSWER_SHAPE"
	ErrInvalidViolation   ErrCode = "INVALID_VIOLATION_TYPE"

	// Rate Limiting
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// Server
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// Authentication
	case ErrInvalidCredentials:
		return "Invalid username or password."
	case ErrSessionRevoked:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	// Authorization
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrProctorAccessOnly:
		return "This resource is restricted to proctors."

	// Validation
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// Resources
	case ErrNotFound:
		return "Resource not found."

	// Session-specific
	case ErrExamNotPublished:
		return "This exam is not published."
	case ErrExamNotOpen:
		return "This exam has not opened yet."
	case ErrExamWindowClosed:
		return "The exam window has closed."
	case ErrAttemptTerminal:
		return "This attempt has already been submitted."
	case ErrInvalidAnswerShape:
		return "The answer does not match the question type."
	case ErrInvalidViolation:
		return "Unknown violation type."

	// Rate Limiting
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// Server
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
