package pipeline

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Stable error codes returned in the response envelope. SESSION_TIMEOUT and
// SESSION_ABSOLUTE_TIMEOUT are the only codes that reveal why authentication
// failed; everything else stays generic so probing cannot distinguish checks.
const (
	CodeUnauthenticated        = "UNAUTHENTICATED"
	CodeSessionTimeout         = "SESSION_TIMEOUT"
	CodeSessionAbsoluteTimeout = "SESSION_ABSOLUTE_TIMEOUT"
	CodeForbidden              = "FORBIDDEN"
	CodeCSRF                   = "CSRF_TOKEN_INVALID"
	CodeNotFound               = "NOT_FOUND"
	CodeRateLimited            = "RATE_LIMITED"
	CodeValidationFailed       = "VALIDATION_FAILED"
	CodeInternal               = "INTERNAL_ERROR"
)

// Rejection is a stage's decision to stop the request. Status, Code, and
// Message are serialized to the caller; Err and Reason stay internal (logs
// and metrics).
type Rejection struct {
	Status  int
	Code    string
	Message string
	// Err is the internal cause. Logged, never serialized.
	Err error
	// Reason is the metrics label for guard denial counters.
	Reason string
}

func reject(status int, code, message, reason string) *Rejection {
	return &Rejection{Status: status, Code: code, Message: message, Reason: reason}
}

// rejectUnauthenticated is the generic 401. The message never reveals which
// credential check failed.
func rejectUnauthenticated() *Rejection {
	return reject(http.StatusUnauthorized, CodeUnauthenticated, "authentication required", "unauthenticated")
}

func rejectInternal(err error) *Rejection {
	return &Rejection{
		Status:  http.StatusInternalServerError,
		Code:    CodeInternal,
		Message: "internal server error",
		Err:     err,
		Reason:  "internal",
	}
}

// errorEnvelope is the stable failure shape: {"error":{"code","message"}}.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError serializes a rejection into the stable envelope.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

// WriteLegacyError serializes the legacy flat envelope {"error":"<string>"}
// still emitted by a few older endpoints.
func WriteLegacyError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// WriteJSON serializes a success payload.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func (r *Rejection) String() string {
	return fmt.Sprintf("%d %s: %s", r.Status, r.Code, r.Message)
}
