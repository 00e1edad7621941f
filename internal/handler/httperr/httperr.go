// Package httperr maps service errors onto HTTP responses.
package httperr

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/vinaeu/insights/backend/internal/service/auth"
	"github.com/vinaeu/insights/backend/internal/service/chat"
	"github.com/vinaeu/insights/backend/internal/store"
	"github.com/vinaeu/insights/backend/pkg/utils"
)

// Status returns the HTTP status and client-facing message for err.
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidSessionID):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, chat.ErrEmptyQuestion):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrIdentityProvider):
		return http.StatusUnauthorized, "invalid session id"
	case errors.Is(err, auth.ErrUnauthenticated),
		errors.Is(err, auth.ErrSessionNotFound),
		errors.Is(err, auth.ErrSessionExpired):
		// Missing, unknown and expired credentials look identical to clients.
		return http.StatusUnauthorized, "not authenticated"
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// Respond writes the error response for err.
func Respond(w http.ResponseWriter, r *http.Request, err error) {
	status, message := Status(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		slog.DebugContext(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "reason", err.Error())
	}
	utils.RespondError(w, status, message)
}
