package services

import (
	"context"

	"github.com/mindwell/apiserver/internal/events"
)

// EventDispatcher publishes domain events for background processing.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev events.Event) (events.Envelope, error)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
