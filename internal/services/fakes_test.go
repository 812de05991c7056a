package services

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/mindwell/apiserver/internal/ai"
	"github.com/mindwell/apiserver/internal/events"
	"github.com/mindwell/apiserver/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDispatcher struct {
	mu       sync.Mutex
	dispatch []events.Event
	err      error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, ev events.Event) (events.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return events.Envelope{}, f.err
	}
	f.dispatch = append(f.dispatch, ev)
	return events.Envelope{ID: "evt", Name: ev.Name()}, nil
}

func (f *fakeDispatcher) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.dispatch))
	for _, ev := range f.dispatch {
		names = append(names, ev.Name())
	}
	return names
}

type fakeResponder struct {
	mu       sync.Mutex
	result   ai.Result
	lastText string
	history  []types.ChatMessage
}

func (f *fakeResponder) Respond(_ context.Context, text string, history []types.ChatMessage) ai.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastText = text
	f.history = history
	return f.result
}

type fakeRecommender struct {
	items []types.Recommendation
}

func (f fakeRecommender) Recommend(context.Context, float64, string) []types.Recommendation {
	return f.items
}
