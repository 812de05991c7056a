package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mindwell/apiserver/internal/mq"
)

// DefaultChannelPrefix namespaces channels on a shared broker.
const DefaultChannelPrefix = "mindwell."

// Dispatcher publishes domain events to the message broker.
type Dispatcher struct {
	publisher mq.Publisher
	logger    *slog.Logger
	prefix    string
	now       func() time.Time
}

func NewDispatcher(publisher mq.Publisher, logger *slog.Logger, prefix string) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		publisher: publisher,
		logger:    logger,
		prefix:    prefix,
		now:       time.Now,
	}
}

// Channel returns the channel used for the named event.
func (d *Dispatcher) Channel(name string) string {
	return ChannelFor(d.prefix, name)
}

// Dispatch publishes ev and waits for the broker to accept it. Failures are
// logged and returned to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (Envelope, error) {
	env, err := NewEnvelope(ev, d.now())
	if err != nil {
		d.logger.Error("failed to build event", "event", ev.Name(), "error", err)
		return Envelope{}, err
	}

	body, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal envelope: %w", err)
	}

	attrs := map[string]string{
		mq.AttrEventID:   env.ID,
		mq.AttrEventName: env.Name,
	}
	if _, err := d.publisher.Publish(ctx, d.Channel(env.Name), body, attrs); err != nil {
		d.logger.Error("failed to publish event", "event", env.Name, "id", env.ID, "error", err)
		return Envelope{}, fmt.Errorf("publish %s: %w", env.Name, err)
	}

	d.logger.Info("event published", "event", env.Name, "id", env.ID)
	return env, nil
}
