package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mindwell/apiserver/internal/apperror"
	"github.com/mindwell/apiserver/internal/events"
	"github.com/mindwell/apiserver/internal/workflow"
)

// EventsHandler is the HTTP ingress of the workflow runner. It lists the
// registered functions and runs posted envelopes inline.
type EventsHandler struct {
	registry *workflow.Registry
	logger   *slog.Logger
}

// EventsRouter registers the workflow ingress routes on the given router.
func EventsRouter(r chi.Router, registry *workflow.Registry, logger *slog.Logger) {
	handler := &EventsHandler{registry: registry, logger: logger}

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handler.Functions(w, r)
		case http.MethodPost:
			handler.Run(w, r)
		default:
			w.Header().Set("Allow", "GET, POST")
			writeError(w, apperror.New(http.StatusMethodNotAllowed, "Method not allowed"))
		}
	})
}

type FunctionsResponse struct {
	Functions []workflow.Function `json:"functions"`
}

func (h *EventsHandler) Functions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, FunctionsResponse{Functions: h.registry.Functions()})
}

func (h *EventsHandler) Run(w http.ResponseWriter, r *http.Request) {
	var env events.Envelope
	if err := decodeJSON(r, &env); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	run, err := h.registry.Handle(r.Context(), env)
	if err != nil {
		switch {
		case errors.Is(err, events.ErrUnknownEvent),
			errors.Is(err, events.ErrInvalidEvent),
			errors.Is(err, workflow.ErrNoHandler):
			writeError(w, apperror.BadRequest(err.Error()))
		default:
			writeServiceError(w, r, h.logger, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, run)
}
