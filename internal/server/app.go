package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mindwell/apiserver/config"
	"github.com/mindwell/apiserver/internal/ai"
	"github.com/mindwell/apiserver/internal/db"
	"github.com/mindwell/apiserver/internal/events"
	"github.com/mindwell/apiserver/internal/mq"
	"github.com/mindwell/apiserver/internal/services"
	"github.com/mindwell/apiserver/internal/storage"
	"github.com/mindwell/apiserver/internal/store"
	"github.com/mindwell/apiserver/internal/store/memstore"
	"github.com/mindwell/apiserver/internal/workflow"
	"golang.org/x/sync/errgroup"
)

// Repositories are the persistence ports the services are built on.
type Repositories struct {
	Users           services.UserRepository
	Sessions        services.SessionRepository
	Moods           services.MoodRepository
	Activities      services.ActivityRepository
	Chats           services.ChatRepository
	Recommendations services.RecommendationRepository
}

// PostgresRepositories returns repositories backed by dbConn.
func PostgresRepositories(dbConn *sql.DB) Repositories {
	return Repositories{
		Users:           store.NewUserRepository(dbConn),
		Sessions:        store.NewSessionRepository(dbConn),
		Moods:           store.NewMoodRepository(dbConn),
		Activities:      store.NewActivityRepository(dbConn),
		Chats:           store.NewChatRepository(dbConn),
		Recommendations: store.NewRecommendationRepository(dbConn),
	}
}

// MemoryRepositories returns repositories backed by an in-process store.
func MemoryRepositories(s *memstore.Store) Repositories {
	return Repositories{
		Users:           s.Users(),
		Sessions:        s.Sessions(),
		Moods:           s.Moods(),
		Activities:      s.Activities(),
		Chats:           s.Chats(),
		Recommendations: s.Recommendations(),
	}
}

// Deps are the external collaborators of an App.
type Deps struct {
	Repositories Repositories
	Broker       mq.Backend
	Archive      *storage.Archive
	Model        ai.Model
	Logger       *slog.Logger
}

// App holds the services shared by the HTTP server and the worker.
type App struct {
	Auth            *services.AuthService
	Users           *services.UserService
	Moods           *services.MoodService
	Activities      *services.ActivityService
	Chats           *services.ChatService
	Recommendations *services.RecommendationService
	Registry        *workflow.Registry
	Broker          mq.Backend

	channelPrefix  string
	requestTimeout time.Duration
	logger         *slog.Logger
	closers        []func() error
}

// NewApp wires the services around deps.
func NewApp(cfg config.Config, deps Deps) (*App, error) {
	logger := deps.Logger
	repos := deps.Repositories

	responder := ai.NewResponder(deps.Model, logger, cfg.AI.HistoryWindow).WithCallTimeout(cfg.AI.Timeout)
	dispatcher := events.NewDispatcher(deps.Broker, logger, cfg.MQ.ChannelPrefix)

	app := &App{
		Auth:            services.NewAuthService(repos.Users, repos.Sessions, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, logger),
		Users:           services.NewUserService(repos.Users),
		Moods:           services.NewMoodService(repos.Moods, dispatcher, logger),
		Activities:      services.NewActivityService(repos.Activities, dispatcher, logger),
		Chats:           services.NewChatService(repos.Chats, repos.Users, responder, dispatcher, logger),
		Recommendations: services.NewRecommendationService(repos.Recommendations, responder, logger),
		Registry:        workflow.NewRegistry(logger),
		Broker:          deps.Broker,
		channelPrefix:   cfg.MQ.ChannelPrefix,
		requestTimeout:  cfg.RequestTimeout,
		logger:          logger,
	}

	handlers := workflow.NewHandlers(app.Chats, responder, app.Recommendations, deps.Archive, logger)
	if err := handlers.Register(app.Registry); err != nil {
		return nil, fmt.Errorf("register workflow functions: %w", err)
	}
	return app, nil
}

// Open connects every backend selected in cfg and wires an App around them.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	var (
		repos   Repositories
		closers []func() error
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store, data will not survive a restart")
		repos = MemoryRepositories(memstore.New())
	default:
		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		closers = append(closers, dbConn.Close)
		repos = PostgresRepositories(dbConn)
	}

	broker, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("open mq: %w", err)
	}
	closers = append(closers, broker.Close)

	archive, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	closers = append(closers, archive.Close)
	if !archive.Enabled() {
		logger.Info("object storage disabled, transcripts will not be archived")
	}

	if cfg.AI.APIKey == "" {
		logger.Warn("GEMINI_API_KEY is not set, chat replies will use the fallback text")
	}

	app, err := NewApp(cfg, Deps{
		Repositories: repos,
		Broker:       broker,
		Archive:      archive,
		Model:        ai.NewGeminiClient(cfg.AI),
		Logger:       logger,
	})
	if err != nil {
		cleanup()
		return nil, err
	}
	app.closers = closers
	return app, nil
}

const defaultRequestTimeout = 60 * time.Second

// RequestTimeout is the deadline applied to each HTTP request.
func (a *App) RequestTimeout() time.Duration {
	if a.requestTimeout <= 0 {
		return defaultRequestTimeout
	}
	return a.requestTimeout
}

// Consume subscribes the workflow registry to every event channel and blocks
// until ctx is cancelled or a subscription fails.
func (a *App) Consume(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	consumer := a.Registry.Consumer()
	for _, name := range a.Registry.Events() {
		channel := events.ChannelFor(a.channelPrefix, name)
		g.Go(func() error {
			a.logger.Info("subscribing", "channel", channel)
			if err := a.Broker.Subscribe(ctx, channel, consumer); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("subscribe %s: %w", channel, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close releases the backends opened by Open in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
