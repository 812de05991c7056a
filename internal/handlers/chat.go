package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mindwell/apiserver/internal/services"
	"github.com/mindwell/apiserver/types"
)

// ChatHandler provides HTTP handlers for chat sessions.
type ChatHandler struct {
	chatService *services.ChatService
	logger      *slog.Logger
}

// ChatRouter registers chat routes on the given router.
func ChatRouter(r chi.Router, chatService *services.ChatService, logger *slog.Logger, authMiddleware func(http.Handler) http.Handler) {
	handler := &ChatHandler{chatService: chatService, logger: logger}

	r.Route("/sessions", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/", handler.CreateSession)
		r.Get("/", handler.ListSessions)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", handler.Session)
			r.Patch("/", handler.UpdateStatus)
			r.Post("/messages", handler.SendMessage)
			r.Get("/history", handler.History)
		})
	})
}

type CreateSessionResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type SendMessageRequest struct {
	Message string `json:"message"`
}

type UpdateStatusRequest struct {
	Status types.ChatStatus `json:"status"`
}

type SendMessageResponse struct {
	Response string         `json:"response"`
	Analysis types.Analysis `json:"analysis"`
	Metadata types.Progress `json:"metadata"`
}

type SessionDetailsResponse struct {
	SessionID string              `json:"sessionId"`
	StartTime time.Time           `json:"startTime"`
	Status    types.ChatStatus    `json:"status"`
	Messages  []types.ChatMessage `json:"messages"`
}

type SessionListResponse struct {
	Items []types.ChatSession `json:"items"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
	Total int                 `json:"total"`
}

func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	session, err := h.chatService.Create(r.Context(), identity.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateSessionResponse{
		Success:   true,
		SessionID: session.SessionID,
		Message:   "Chat session created",
	})
}

func (h *ChatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	sessions, total, err := h.chatService.List(r.Context(), identity.ID, offset, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if sessions == nil {
		sessions = []types.ChatSession{}
	}
	writeJSON(w, http.StatusOK, SessionListResponse{
		Items: sessions,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	result, err := h.chatService.Send(r.Context(), identity.ID, chi.URLParam(r, "sessionID"), req.Message)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, SendMessageResponse{
		Response: result.Reply,
		Analysis: result.Analysis,
		Metadata: types.Progress{
			EmotionalState: result.Analysis.EmotionalState,
			RiskLevel:      result.Analysis.RiskLevel,
		},
	})
}

// History returns the message list, or the session details when
// details=full is requested.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	session, err := h.chatService.History(r.Context(), identity.ID, chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	details := sessionDetails(session)
	if r.URL.Query().Get("details") == "full" {
		writeJSON(w, http.StatusOK, details)
		return
	}
	writeJSON(w, http.StatusOK, details.Messages)
}

// Session returns the session details of one of the caller's sessions.
func (h *ChatHandler) Session(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	session, err := h.chatService.History(r.Context(), identity.ID, chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionDetails(session))
}

// UpdateStatus completes or archives one of the caller's sessions.
func (h *ChatHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req UpdateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	session, err := h.chatService.SetStatus(r.Context(), identity.ID, chi.URLParam(r, "sessionID"), req.Status)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionDetails(session))
}

func sessionDetails(session types.ChatSession) SessionDetailsResponse {
	messages := session.Messages
	if messages == nil {
		messages = []types.ChatMessage{}
	}
	return SessionDetailsResponse{
		SessionID: session.SessionID,
		StartTime: session.StartTime,
		Status:    session.Status,
		Messages:  messages,
	}
}
