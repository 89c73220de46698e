// Package httputil centralizes domain error translation to HTTP responses so
// every handler emits the same JSON error envelope.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "idlink/pkg/domain-errors"
)

// errorResponse is the JSON envelope for all error responses.
type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// statusFor maps taxonomy codes to HTTP status codes. CodeNotFound and
// CodeConsistency fall through to 500: both mark stored-data faults the
// caller cannot fix, not missing resources.
func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err as a JSON error envelope. Server-side failures (5xx)
// omit the description so internal detail never leaks to callers; client
// errors include it to help the caller fix the request.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := statusFor(code)

	body := errorResponse{Error: string(code)}
	if status < http.StatusInternalServerError {
		var de *dErrors.Error
		if errors.As(err, &de) {
			body.Description = de.Message
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
