// Package workflow runs the background handlers attached to domain events.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mindwell/apiserver/internal/events"
	"github.com/mindwell/apiserver/internal/mq"
)

// ErrNoHandler is returned when no function is registered for an event.
var ErrNoHandler = errors.New("no handler registered for event")

// HandlerFunc processes one decoded event and returns its result.
type HandlerFunc func(ctx context.Context, ev events.Event) (any, error)

// Function is a named handler bound to one event.
type Function struct {
	ID     string `json:"id"`
	Event  string `json:"event"`
	handle HandlerFunc
}

// Run is the outcome of running a function for an envelope.
type Run struct {
	FunctionID string `json:"functionId"`
	EventID    string `json:"eventId"`
	Event      string `json:"event"`
	Result     any    `json:"result"`
}

// Registry maps event names to functions.
type Registry struct {
	mu        sync.RWMutex
	functions map[string]Function
	logger    *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{functions: make(map[string]Function), logger: logger}
}

// Register binds handle to the event. Each event has at most one function.
func (r *Registry) Register(id, event string, handle HandlerFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.functions[event]; ok {
		return fmt.Errorf("event %s already handled by %s", event, existing.ID)
	}
	r.functions[event] = Function{ID: id, Event: event, handle: handle}
	return nil
}

// Functions lists registered functions ordered by event name.
func (r *Registry) Functions() []Function {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fns := make([]Function, 0, len(r.functions))
	for _, fn := range r.functions {
		fns = append(fns, fn)
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].Event < fns[j].Event })
	return fns
}

// Events lists the event names that have a registered function.
func (r *Registry) Events() []string {
	fns := r.Functions()
	names := make([]string, 0, len(fns))
	for _, fn := range fns {
		names = append(names, fn.Event)
	}
	return names
}

// Handle decodes env and runs the function registered for it.
func (r *Registry) Handle(ctx context.Context, env events.Envelope) (Run, error) {
	r.mu.RLock()
	fn, ok := r.functions[env.Name]
	r.mu.RUnlock()
	if !ok {
		return Run{}, fmt.Errorf("%w: %s", ErrNoHandler, env.Name)
	}

	ev, err := events.Decode(env)
	if err != nil {
		return Run{}, err
	}

	logger := r.logger.With("function", fn.ID, "event", env.Name, "event_id", env.ID)
	logger.Info("running workflow function")
	result, err := fn.handle(ctx, ev)
	if err != nil {
		logger.Error("workflow function failed", "error", err)
		return Run{}, err
	}
	return Run{FunctionID: fn.ID, EventID: env.ID, Event: env.Name, Result: result}, nil
}

// Consumer adapts the registry to a broker subscription. Failures are logged
// and the message is acknowledged; nothing is retried.
func (r *Registry) Consumer() mq.Handler {
	return func(ctx context.Context, msg mq.Message) error {
		var env events.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			r.logger.Error("dropping undecodable message", "message_id", msg.ID, "error", err)
			return nil
		}
		if _, err := r.Handle(ctx, env); err != nil {
			r.logger.Warn("event not processed", "event", env.Name, "event_id", env.ID, "error", err)
		}
		return nil
	}
}
