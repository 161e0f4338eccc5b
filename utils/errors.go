package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Sentinel errors for the deck pipeline. Only ErrNotFound, ErrMalformedInput
// and ErrInternalFailure ever cross the request boundary; parse and backend
// failures are absorbed at the component that issued the call and converted
// into fallback values.
var (
	// ErrNotFound means a referenced document, deck or media id does not resolve.
	ErrNotFound = errors.New("resource not found")

	// ErrExtractionParseFailure means structured model output could not be
	// parsed. Recovered locally with an empty payload, never surfaced.
	ErrExtractionParseFailure = errors.New("extraction output parse failure")

	// ErrBackendUnavailable means a model call failed after retries.
	ErrBackendUnavailable = errors.New("model backend unavailable")

	// ErrMalformedInput means required request fields are missing or invalid.
	ErrMalformedInput = errors.New("malformed input")

	// ErrInternalFailure covers unexpected I/O and persistence errors.
	ErrInternalFailure = errors.New("internal failure")
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, "not_found", message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}

// RespondWithDomainError maps a pipeline error onto the HTTP surface.
// Unrecognized errors are treated as internal failures.
func RespondWithDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		RespondWithNotFound(c, err.Error())
	case errors.Is(err, ErrMalformedInput):
		RespondWithBadRequest(c, err.Error(), nil)
	case errors.Is(err, ErrBackendUnavailable):
		RespondWithError(c, http.StatusServiceUnavailable, "backend_unavailable", err.Error(), nil)
	default:
		RespondWithInternalError(c, "internal failure", nil)
	}
}
