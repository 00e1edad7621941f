package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vinaeu/insights/backend/internal/handler/httperr"
	"github.com/vinaeu/insights/backend/internal/middleware"
	authmodel "github.com/vinaeu/insights/backend/internal/model/auth"
	"github.com/vinaeu/insights/backend/internal/model/chat"
	chatService "github.com/vinaeu/insights/backend/internal/service/chat"
	"github.com/vinaeu/insights/backend/pkg/utils"
)

const fallbackAnswer = "I apologize, but I encountered an error processing your question. Please try again."

// sampleConversation is shown to users without any history yet.
var sampleConversation = chat.Conversation{
	ID:         "1",
	Question:   "What's driving the recent revenue increase?",
	Answer:     "Analysis shows three primary drivers: 1) 23% increase in enterprise customer acquisition, 2) 15% improvement in customer retention through AI-powered engagement, and 3) successful launch of premium AI advisory services contributing $340K additional revenue.",
	Confidence: 92,
	Timestamp:  "2025-01-15 14:30",
}

// Service is the subset of the chat service the handler needs.
type Service interface {
	Ask(ctx context.Context, user authmodel.User, question string) (chatService.Answer, error)
	History(ctx context.Context, userID string) ([]chat.Conversation, error)
}

// Handler serves the AI insights chat endpoints.
type Handler struct {
	svc Service
	now func() time.Time
}

// New creates the AI handler.
func New(svc Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

// RegisterRoutes mounts the chat routes; the router must already require a user.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/ai/chat", h.handleChat)
	r.Get("/ai/history", h.handleHistory)
}

type chatResponse struct {
	Answer     string `json:"answer"`
	Confidence int    `json:"confidence"`
	Timestamp  string `json:"timestamp"`
	Fallback   bool   `json:"fallback,omitempty"`
}

// handleChat answers a question. A failed completion still yields 200 with a
// placeholder answer, zero confidence and fallback=true.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var payload struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	answer, err := h.svc.Ask(r.Context(), user, payload.Question)
	if errors.Is(err, chatService.ErrCompletion) {
		utils.RespondJSON(w, http.StatusOK, chatResponse{
			Answer:    fallbackAnswer,
			Timestamp: h.now().UTC().Format(time.RFC3339),
			Fallback:  true,
		})
		return
	}
	if err != nil {
		httperr.Respond(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, chatResponse{
		Answer:     answer.Text,
		Confidence: answer.Confidence,
		Timestamp:  answer.Timestamp.UTC().Format(time.RFC3339),
	})
}

// handleHistory lists reconstructed conversations, newest first.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	conversations, err := h.svc.History(r.Context(), user.ID)
	if err != nil {
		httperr.Respond(w, r, err)
		return
	}
	if len(conversations) == 0 {
		conversations = []chat.Conversation{sampleConversation}
	}
	utils.RespondJSON(w, http.StatusOK, conversations)
}
