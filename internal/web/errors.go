package web

// errors.go provides unified error response handling for the web layer.
//
// It ensures all errors are:
//   - Logged with full technical details for debugging (server-side)
//   - Returned to clients as user-friendly messages with action suggestions
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err, statusCode)
//  3. Error is mapped via roster.MapError to get a user-friendly message
//  4. Technical error + context is logged with request ID for correlation
//  5. User message is returned as JSON

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jefferyharrell/tagline-roster/internal/roster"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Detail string `json:"detail"`
	Action string `json:"action,omitempty"`
	Code   string `json:"code"`
}

// ValidationError mirrors the field-error shape clients expect for row-level
// problems: loc addresses the offending value, with the last-but-one segment
// carrying the 0-based row index within the uploaded data.
type ValidationError struct {
	Loc   []any  `json:"loc"`
	Msg   string `json:"msg"`
	Input string `json:"input,omitempty"`
}

// ValidationResponse wraps a list of ValidationErrors for 422 responses.
type ValidationResponse struct {
	Detail []ValidationError `json:"detail"`
}

// respondError handles error responses with user-friendly messages.
// It logs the technical error server-side and returns a JSON body.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := roster.MapError(err)

	requestID := middleware.GetReqID(r.Context())
	slog.Error("request failed",
		"request_id", requestID,
		"method", r.Method,
		"path", r.URL.Path,
		"status", statusCode,
		"error", err,
		"user_code", userMsg.Code,
	)

	writeJSON(w, statusCode, ErrorResponse{
		Detail: userMsg.Message,
		Action: userMsg.Action,
		Code:   userMsg.Code,
	})
}

// respondBlocked renders a blocked preview as a 422 with one ValidationError
// per problem. Row-tagged messages ("Row N: ...") get their 0-based index in
// the loc path so clients can point at the offending line.
func respondBlocked(w http.ResponseWriter, preview *roster.ImportPreview) {
	resp := ValidationResponse{Detail: []ValidationError{}}
	for _, msg := range preview.ValidationErrors {
		resp.Detail = append(resp.Detail, rowValidationError(msg))
	}
	for _, role := range preview.InvalidRoles {
		resp.Detail = append(resp.Detail, ValidationError{
			Loc:   []any{"body", "users", "roles"},
			Msg:   "unknown role " + strconv.Quote(role),
			Input: role,
		})
	}
	writeJSON(w, http.StatusUnprocessableEntity, resp)
}

// rowValidationError converts a "Row N: reason" message into a ValidationError
// whose loc carries the 0-based row index. Messages without a row prefix get a
// generic body loc.
func rowValidationError(msg string) ValidationError {
	if row, rest, ok := roster.SplitRowError(msg); ok {
		return ValidationError{
			// row is 1-based over the submitted user list
			Loc: []any{"body", "users", row - 1, "email"},
			Msg: rest,
		}
	}
	return ValidationError{
		Loc: []any{"body", "users"},
		Msg: msg,
	}
}

// writeJSON marshals v and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// respondDetail writes a bare {"detail": ...} JSON body.
func respondDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
