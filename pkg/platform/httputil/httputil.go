// Package httputil holds the shared JSON response helpers for the HTTP layer.
package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "ledgerguard/pkg/domain-errors"
)

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteError maps a coded domain error onto an HTTP status and a JSON error
// body. Internal errors omit the description so infrastructure details never
// reach a caller.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := errorBody{Error: string(code)}
	if code != dErrors.CodeInternal {
		body.ErrorDescription = dErrors.MessageOf(err)
	}
	WriteJSON(w, statusFor(code), body)
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusForbidden
	case dErrors.CodeAlreadyExists, dErrors.CodeAlreadyClaimed:
		return http.StatusConflict
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeExpired, dErrors.CodeInsufficientFunds:
		return http.StatusUnprocessableEntity
	case dErrors.CodeUnconfirmed:
		return http.StatusAccepted
	case dErrors.CodeUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Decode parses the JSON request body into T. On failure it writes a
// bad-request response and returns ok=false; the handler should return.
func Decode[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "request body rejected",
				"request_id", requestID,
				"error", err,
			)
		}
		WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "request body is not valid JSON"))
		var zero T
		return zero, false
	}
	return req, true
}
