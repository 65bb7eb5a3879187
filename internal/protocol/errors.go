package protocol

import "net/http"

const (
	// Request shape and validation.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrValidation = "E_VALIDATION"

	// Identity.
	ErrUnauthorized = "E_UNAUTHORIZED"
	ErrForbidden    = "E_FORBIDDEN"

	// Resource state.
	ErrNotFound = "E_NOT_FOUND"
	ErrConflict = "E_CONFLICT"
	ErrCooldown = "E_COOLDOWN"
	ErrBusy     = "E_BUSY"

	// Collaborators and server.
	ErrUpstream = "E_UPSTREAM"
	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]int{
	ErrBadRequest:   http.StatusBadRequest,
	ErrValidation:   http.StatusBadRequest,
	ErrUnauthorized: http.StatusUnauthorized,
	ErrForbidden:    http.StatusForbidden,
	ErrNotFound:     http.StatusNotFound,
	ErrConflict:     http.StatusConflict,
	ErrCooldown:     http.StatusTooManyRequests,
	ErrBusy:         http.StatusServiceUnavailable,
	ErrUpstream:     http.StatusBadGateway,
	ErrInternal:     http.StatusInternalServerError,
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// HTTPStatus maps an error code to its response status. Unknown codes are 500.
func HTTPStatus(code string) int {
	if s, ok := knownCodes[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error is an API failure that carries a machine code and an optional hint.
type Error struct {
	Code    string
	Message string
	Hint    string
}

func (e *Error) Error() string {
	if e.Hint == "" {
		return e.Code + ": " + e.Message
	}
	return e.Code + ": " + e.Message + " (" + e.Hint + ")"
}

func NewError(code, msg, hint string) *Error {
	return &Error{Code: code, Message: msg, Hint: hint}
}
