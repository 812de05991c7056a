package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mindwell/apiserver/internal/services"
	"github.com/mindwell/apiserver/types"
)

// EntryResponse wraps a newly recorded mood or activity entry.
type EntryResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// MoodHandler records mood check-ins.
type MoodHandler struct {
	moodService *services.MoodService
	logger      *slog.Logger
}

// MoodRouter registers mood routes on the given router.
func MoodRouter(r chi.Router, moodService *services.MoodService, logger *slog.Logger, authMiddleware func(http.Handler) http.Handler) {
	handler := &MoodHandler{moodService: moodService, logger: logger}

	r.With(authMiddleware).Post("/", handler.Create)
	r.With(authMiddleware).Get("/", handler.List)
}

type MoodRequest struct {
	Score      *float64 `json:"score"`
	Note       string   `json:"note"`
	Context    string   `json:"context"`
	Activities []string `json:"activities"`
}

func (h *MoodHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req MoodRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	entry, err := h.moodService.Record(r.Context(), identity.ID, services.MoodInput{
		Score:      req.Score,
		Note:       req.Note,
		Context:    req.Context,
		Activities: req.Activities,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, EntryResponse{Success: true, Data: entry})
}

// List returns the caller's most recent mood entries.
func (h *MoodHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= maxLimit {
			limit = parsed
		}
	}

	entries, err := h.moodService.Recent(r.Context(), identity.ID, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if entries == nil {
		entries = []types.MoodEntry{}
	}
	writeJSON(w, http.StatusOK, EntryResponse{Success: true, Data: entries})
}

// ActivityHandler records completed activities.
type ActivityHandler struct {
	activityService *services.ActivityService
	logger          *slog.Logger
}

// ActivityRouter registers activity routes on the given router.
func ActivityRouter(r chi.Router, activityService *services.ActivityService, logger *slog.Logger, authMiddleware func(http.Handler) http.Handler) {
	handler := &ActivityHandler{activityService: activityService, logger: logger}

	r.With(authMiddleware).Post("/", handler.Create)
	r.With(authMiddleware).Get("/stats", handler.Stats)
}

type ActivityRequest struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Duration    *int   `json:"duration"`
	Difficulty  string `json:"difficulty"`
	Feedback    string `json:"feedback"`
}

func (h *ActivityHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	var req ActivityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	entry, err := h.activityService.Record(r.Context(), identity.ID, services.ActivityInput{
		Type:        req.Type,
		Name:        req.Name,
		Description: req.Description,
		Duration:    req.Duration,
		Difficulty:  req.Difficulty,
		Feedback:    req.Feedback,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, EntryResponse{Success: true, Data: entry})
}

type ActivityStats struct {
	CompletedActivities int `json:"completedActivities"`
}

// Stats reports how many activities the caller has logged.
func (h *ActivityHandler) Stats(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	count, err := h.activityService.Count(r.Context(), identity.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, EntryResponse{Success: true, Data: ActivityStats{CompletedActivities: count}})
}
