package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/roach88/area/internal/catalog"
	"github.com/roach88/area/internal/engine"
	"github.com/roach88/area/internal/store"
	"github.com/roach88/area/internal/tasks"
)

// Error codes of JSON error bodies.
const (
	codeBadRequest      = "bad_request"
	codeInvalidPayload  = "invalid_payload"
	codeInvalidEvent    = "invalid_event"
	codeInvalidTask     = "invalid_task"
	codeNotFound        = "not_found"
	codeConflict        = "conflict"
	codeUnknownReaction = "unknown_reaction"
	codeRateLimited     = "rate_limited"
	codeUnauthorized    = "invalid_signature"
	codeInternal        = "internal"
)

// errorBody is the shape of every error response.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorBody{Error: code, Detail: detail})
}

// writeErr maps err onto a status code and error body.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, codeInvalidPayload
	case engine.IsInvalidEvent(err):
		return http.StatusUnprocessableEntity, codeInvalidEvent
	case engine.IsUnknownReaction(err):
		return http.StatusInternalServerError, codeUnknownReaction
	case tasks.IsInvalidTask(err):
		return http.StatusBadRequest, codeInvalidTask
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, catalog.ErrUnknownService),
		errors.Is(err, catalog.ErrUnknownTrigger),
		errors.Is(err, catalog.ErrUnknownReaction):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, codeConflict
	default:
		return http.StatusInternalServerError, codeInternal
	}
}
