package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mindwell/apiserver/config"
	"github.com/mindwell/apiserver/internal/handlers"
)

// Server wraps the HTTP server and its background loops.
type Server struct {
	httpServer    *http.Server
	app           *App
	logger        *slog.Logger
	sweepInterval time.Duration
	inlineWorker  bool
}

// New opens the configured backends and constructs a Server around them.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	app, err := Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewWithApp(cfg, app, logger), nil
}

// NewWithApp constructs a Server around an already wired App.
func NewWithApp(cfg config.Config, app *App, logger *slog.Logger) *Server {
	router := NewRouter(app, logger)

	port := cfg.ServerPort
	if port == 0 {
		port = 3001
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: app.RequestTimeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer:    httpServer,
		app:           app,
		logger:        logger,
		sweepInterval: cfg.SessionSweepInterval,
		inlineWorker:  cfg.MQ.Backend == config.MQBackendMemory,
	}
}

// NewRouter builds the HTTP routes for app.
func NewRouter(app *App, logger *slog.Logger) *chi.Mux {
	authMiddleware := handlers.RequireAuth(app.Auth, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(app.RequestTimeout()),
	)
	router.Get("/health", handlers.Health)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, app.Auth, app.Users, logger, authMiddleware)
	})
	router.Route("/mood", func(r chi.Router) {
		handlers.MoodRouter(r, app.Moods, logger, authMiddleware)
	})
	router.Route("/activity", func(r chi.Router) {
		handlers.ActivityRouter(r, app.Activities, logger, authMiddleware)
	})
	router.Route("/chat", func(r chi.Router) {
		handlers.ChatRouter(r, app.Chats, logger, authMiddleware)
	})
	router.Route("/recommendations", func(r chi.Router) {
		handlers.RecommendationRouter(r, app.Recommendations, logger, authMiddleware)
	})
	router.Route("/api/inngest", func(r chi.Router) {
		handlers.EventsRouter(r, app.Registry, logger)
	})
	return router
}

// Start runs the HTTP server and its background loops until ctx is cancelled
// or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s.sweepInterval > 0 {
		go s.sweepSessions(ctx)
	}
	if s.inlineWorker {
		go func() {
			if err := s.app.Consume(ctx); err != nil {
				s.logger.Error("inline worker stopped", "error", err)
			}
		}()
	}

	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	return errors.Join(err, s.app.Close())
}

func (s *Server) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.app.Auth.SweepExpiredSessions(ctx)
			if err != nil {
				s.logger.Warn("session sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				s.logger.Info("expired sessions removed", "count", removed)
			}
		}
	}
}
