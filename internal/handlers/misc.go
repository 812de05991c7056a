package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mindwell/apiserver/internal/services"
)

// HealthResponse is returned by the liveness endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Health reports that the process is serving requests.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Message: "Server is running"})
}

// RecommendationHandler serves stored activity recommendations.
type RecommendationHandler struct {
	recommendationService *services.RecommendationService
	logger                *slog.Logger
}

// RecommendationRouter registers recommendation routes on the given router.
func RecommendationRouter(r chi.Router, recommendationService *services.RecommendationService, logger *slog.Logger, authMiddleware func(http.Handler) http.Handler) {
	handler := &RecommendationHandler{recommendationService: recommendationService, logger: logger}

	r.With(authMiddleware).Get("/latest", handler.Latest)
}

func (h *RecommendationHandler) Latest(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	batch, err := h.recommendationService.Latest(r.Context(), identity.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, EntryResponse{Success: true, Data: batch})
}
