package errors

import (
	"encoding/json"
	"net/http"
	"time"
)

// Responder translates pipeline errors into HTTP responses with
// machine-readable codes, never raw internal exception text.
type Responder struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewResponder(logger Logger) *Responder {
	return &Responder{logger: logger}
}

// errorBody is the JSON error envelope returned to callers.
type errorBody struct {
	Error struct {
		Code      ErrorCode              `json:"code"`
		Message   string                 `json:"message"`
		Retryable bool                   `json:"retryable"`
		Metadata  map[string]interface{} `json:"metadata,omitempty"`
	} `json:"error"`
}

// WriteError normalizes err to a StandardError and writes it as JSON.
func (r *Responder) WriteError(w http.ResponseWriter, err error) {
	stdErr := r.normalizeError(err)

	r.logger.Error("request failed", map[string]interface{}{
		"errorCode":     string(stdErr.Code),
		"errorCategory": GetErrorCategory(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
	})

	var body errorBody
	body.Error.Code = stdErr.Code
	body.Error.Message = stdErr.Message
	body.Error.Retryable = stdErr.Retryable
	body.Error.Metadata = stdErr.Metadata
	if stdErr.Code == ErrCodeInternal {
		// Internal details stay in the logs.
		body.Error.Message = "Internal error"
		body.Error.Metadata = nil
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusForCode(stdErr.Code))
	_ = json.NewEncoder(w).Encode(body)
}

// StatusForCode maps the error taxonomy onto HTTP status codes.
func StatusForCode(code ErrorCode) int {
	switch code {
	case ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case ErrCodePermissionDenied:
		return http.StatusForbidden
	case ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeOracleUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// normalizeError ensures we always have a StandardError.
func (r *Responder) normalizeError(err error) *StandardError {
	if stdErr := AsStandard(err); stdErr != nil {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Internal error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
