package api

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"propsift/internal/errors"
	"propsift/internal/logging"
)

// ErrorResponse is the JSON error body returned by all endpoints.
type ErrorResponse struct {
	Code              string      `json:"code"`
	Message           string      `json:"message"`
	Details           interface{} `json:"details,omitempty"`
	RetryAfterSeconds int         `json:"retryAfterSeconds,omitempty"`
}

// WriteError writes a structured error response, mapping the stable error
// code to an HTTP status. Non-QueryError values get a generic internal
// error body so infrastructure details never leak to callers.
func WriteError(w http.ResponseWriter, logger *logging.Logger, err error) {
	var qe *errors.QueryError
	if !stderrors.As(err, &qe) {
		logger.Error("Unhandled error", map[string]interface{}{
			"error": err.Error(),
		})
		qe = errors.New(errors.InternalError, "internal error")
	}

	status := statusForCode(qe.Code)
	if qe.Code == errors.RateLimited && qe.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", qe.RetryAfterSeconds))
	}

	WriteJSON(w, status, ErrorResponse{
		Code:              string(qe.Code),
		Message:           qe.Message,
		Details:           qe.Details,
		RetryAfterSeconds: qe.RetryAfterSeconds,
	})
}

// statusForCode maps stable error codes to HTTP statuses. Client errors
// are 400 except permission and rate-limit failures, which carry their
// conventional statuses.
func statusForCode(code errors.Code) int {
	switch {
	case code == errors.PermissionDenied:
		return http.StatusForbidden
	case code == errors.RateLimited:
		return http.StatusTooManyRequests
	case errors.IsClientError(code):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
