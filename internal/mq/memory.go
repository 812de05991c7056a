package mq

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const memoryQueueSize = 256

// ErrClosed is returned by a closed in-memory backend.
var ErrClosed = errors.New("mq backend closed")

// Memory is an in-process backend with one buffered queue per channel.
// Messages that fail their handler are dropped.
type Memory struct {
	mu     sync.Mutex
	queues map[string]chan Message
	closed chan struct{}
	once   sync.Once
}

func NewMemory() *Memory {
	return &Memory{
		queues: make(map[string]chan Message),
		closed: make(chan struct{}),
	}
}

func (m *Memory) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("memory channel is required")
	}

	id := attrs[AttrEventID]
	if id == "" {
		id = uuid.NewString()
	}
	copied := make(map[string]string, len(attrs))
	for key, value := range attrs {
		copied[key] = value
	}
	msg := Message{ID: id, Data: append([]byte(nil), data...), Attributes: copied}

	select {
	case <-m.closed:
		return "", ErrClosed
	default:
	}

	select {
	case <-m.closed:
		return "", ErrClosed
	case m.queue(channel) <- msg:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Memory) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("memory channel is required")
	}

	queue := m.queue(channel)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.closed:
			return ErrClosed
		case msg := <-queue:
			_ = handler(ctx, msg)
		}
	}
}

func (m *Memory) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *Memory) queue(channel string) chan Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[channel]
	if !ok {
		q = make(chan Message, memoryQueueSize)
		m.queues[channel] = q
	}
	return q
}
