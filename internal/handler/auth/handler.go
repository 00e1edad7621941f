package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vinaeu/insights/backend/internal/handler/httperr"
	"github.com/vinaeu/insights/backend/internal/middleware"
	authmodel "github.com/vinaeu/insights/backend/internal/model/auth"
	authService "github.com/vinaeu/insights/backend/internal/service/auth"
	"github.com/vinaeu/insights/backend/pkg/utils"
)

// Service is the subset of the auth service the handler needs.
type Service interface {
	Exchange(ctx context.Context, externalID string) (authService.Result, error)
	Resolve(ctx context.Context, creds authService.CredentialSource) (authmodel.User, error)
	Revoke(ctx context.Context, creds authService.CredentialSource)
}

// Handler serves login, logout and the current-user endpoint.
type Handler struct {
	svc          Service
	cookieSecure bool
	loginLimiter *middleware.RateLimiter
}

// New creates the auth handler. loginLimiter may be nil.
func New(svc Service, cookieSecure bool, loginLimiter *middleware.RateLimiter) *Handler {
	return &Handler{svc: svc, cookieSecure: cookieSecure, loginLimiter: loginLimiter}
}

// RegisterRoutes mounts the auth routes under /auth.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if h.loginLimiter != nil {
				r.Use(h.loginLimiter.Middleware)
			}
			r.Post("/session", h.handleCreateSession)
		})
		r.Post("/logout", h.handleLogout)
		r.With(middleware.RequireUser(h.svc)).Get("/me", h.handleMe)
	})
}

type sessionResponse struct {
	authmodel.User
	SessionToken string `json:"session_token"`
}

// handleCreateSession exchanges the identity provider's session id.
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"session_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Exchange(r.Context(), payload.SessionID)
	if err != nil {
		httperr.Respond(w, r, err)
		return
	}

	http.SetCookie(w, h.sessionCookie(result.Session.Token, int(authmodel.SessionTTL.Seconds())))
	utils.RespondJSON(w, http.StatusOK, sessionResponse{
		User:         result.User,
		SessionToken: result.Session.Token,
	})
}

// handleMe returns the authenticated user.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	utils.RespondJSON(w, http.StatusOK, user)
}

// handleLogout revokes the session and clears the cookie. It always succeeds.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.svc.Revoke(r.Context(), middleware.Credentials(r))
	http.SetCookie(w, h.sessionCookie("", -1))
	utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (h *Handler) sessionCookie(value string, maxAge int) *http.Cookie {
	// Browsers drop SameSite=None cookies that are not Secure.
	sameSite := http.SameSiteNoneMode
	if !h.cookieSecure {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: sameSite,
	}
}
