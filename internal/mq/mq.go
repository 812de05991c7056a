// Package mq is the broker-agnostic event bus used to hand domain events from
// the API server to the background worker.
package mq

import (
	"context"
	"fmt"

	"github.com/mindwell/apiserver/config"
)

// AttrEventID and AttrEventName are the attributes set on every published event.
const (
	AttrEventID   = "event-id"
	AttrEventName = "event-name"
)

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a nack.
type Handler func(ctx context.Context, msg Message) error

// Publisher is the write side of a backend.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publisher
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// Open connects to the backend selected in cfg.
func Open(ctx context.Context, cfg config.MQConfig) (Backend, error) {
	switch cfg.Backend {
	case config.MQBackendRabbitMQ:
		return NewRabbitMQClient(cfg.RabbitMQ)
	case config.MQBackendPubSub:
		return NewPubSubClient(ctx, cfg.PubSub)
	case config.MQBackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}
