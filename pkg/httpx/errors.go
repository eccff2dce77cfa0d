package httpx

import (
	"fmt"
	"net/http"
)

// Error is an HTTP error with the body shape {"error": message}.
type Error struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

// WriteError writes e as a JSON body with the matching status.
func (e *Error) WriteError(w http.ResponseWriter) {
	WriteJSON(w, e.StatusCode, e)
}

// NewError creates a one-off error. Prefer the predefined values below.
func NewError(status int, msg string) *Error {
	return &Error{StatusCode: status, Message: msg}
}

var (
	ErrAuthenticationRequired = &Error{StatusCode: http.StatusUnauthorized, Message: "Authentication required"}
	ErrInvalidToken           = &Error{StatusCode: http.StatusUnauthorized, Message: "Invalid token"}

	ErrMissingTokens       = &Error{StatusCode: http.StatusBadRequest, Message: "Missing tokens"}
	ErrRefreshRequired     = &Error{StatusCode: http.StatusBadRequest, Message: "Refresh token required"}
	ErrRefreshFailed       = &Error{StatusCode: http.StatusUnauthorized, Message: "Failed to refresh token"}
	ErrUserNotFound        = &Error{StatusCode: http.StatusNotFound, Message: "User not found"}
	ErrSessionCreateFailed = &Error{StatusCode: http.StatusInternalServerError, Message: "Failed to create session"}
	ErrLogoutFailed        = &Error{StatusCode: http.StatusInternalServerError, Message: "Failed to logout"}

	ErrMalformedBody   = &Error{StatusCode: http.StatusBadRequest, Message: "Malformed request body"}
	ErrTooManyRequests = &Error{StatusCode: http.StatusTooManyRequests, Message: "Too many requests. Please try again later."}
	ErrInternal        = &Error{StatusCode: http.StatusInternalServerError, Message: "Internal server error"}
)
