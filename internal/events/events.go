// Package events defines the domain events published for background
// processing and the envelope they travel in.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mindwell/apiserver/types"
)

// Event names.
const (
	NameSessionCreated    = "therapy/session.created"
	NameSessionMessage    = "therapy/session.message"
	NameMoodUpdated       = "mood/updated"
	NameActivityCompleted = "activity/completed"
)

var (
	// ErrUnknownEvent is returned when decoding an envelope with an unregistered name.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrInvalidEvent is returned when a payload is malformed or misses required fields.
	ErrInvalidEvent = errors.New("invalid event payload")
)

// Event is one of the payload types declared in this package.
type Event interface {
	Name() string
	applyDefaults()
	validate() error
}

// Names lists every event name in a stable order.
func Names() []string {
	return []string{NameSessionCreated, NameSessionMessage, NameMoodUpdated, NameActivityCompleted}
}

// SessionCreated is published when a chat session starts.
type SessionCreated struct {
	SessionID        string    `json:"sessionId"`
	UserID           string    `json:"userId"`
	StartTime        time.Time `json:"startTime"`
	RequiresFollowUp bool      `json:"requiresFollowUp"`
	SessionType      string    `json:"sessionType"`
	Duration         *int      `json:"duration"`
	Notes            *string   `json:"notes"`
	Transcript       *string   `json:"transcript"`
}

func (SessionCreated) Name() string { return NameSessionCreated }

func (e *SessionCreated) applyDefaults() {
	if e.SessionType == "" {
		e.SessionType = "standard"
	}
}

func (e *SessionCreated) validate() error {
	return required("sessionId", e.SessionID, "userId", e.UserID)
}

// SessionMessage is published after a chat turn. Reply and Analysis are set
// when the turn was already answered; otherwise the consumer generates them.
type SessionMessage struct {
	SessionID string          `json:"sessionId"`
	UserID    string          `json:"userId"`
	Message   string          `json:"message"`
	Reply     *string         `json:"reply"`
	Analysis  *types.Analysis `json:"analysis"`
}

func (SessionMessage) Name() string { return NameSessionMessage }

func (e *SessionMessage) applyDefaults() {}

func (e *SessionMessage) validate() error {
	return required("sessionId", e.SessionID, "userId", e.UserID, "message", e.Message)
}

// Answered reports whether the event carries an already generated reply.
func (e SessionMessage) Answered() bool {
	return e.Reply != nil
}

// MoodUpdated is published after a mood entry is stored.
type MoodUpdated struct {
	UserID     string    `json:"userId"`
	MoodID     string    `json:"moodId"`
	Mood       float64   `json:"mood"`
	Context    *string   `json:"context"`
	Activities []string  `json:"activities"`
	Note       *string   `json:"note"`
	Timestamp  time.Time `json:"timestamp"`
}

func (MoodUpdated) Name() string { return NameMoodUpdated }

func (e *MoodUpdated) applyDefaults() {
	if e.Activities == nil {
		e.Activities = []string{}
	}
}

func (e *MoodUpdated) validate() error {
	if err := required("userId", e.UserID); err != nil {
		return err
	}
	if !types.ValidMoodScore(e.Mood) {
		return fmt.Errorf("%w: mood %v out of range", ErrInvalidEvent, e.Mood)
	}
	return nil
}

// ActivityCompleted is published after an activity entry is stored.
type ActivityCompleted struct {
	UserID       string             `json:"userId"`
	ActivityID   string             `json:"activityId"`
	Type         types.ActivityType `json:"type"`
	ActivityName string             `json:"name"`
	Duration     *int               `json:"duration"`
	Difficulty   *string            `json:"difficulty"`
	Feedback     *string            `json:"feedback"`
	Timestamp    time.Time          `json:"timestamp"`
}

func (ActivityCompleted) Name() string { return NameActivityCompleted }

func (e *ActivityCompleted) applyDefaults() {}

func (e *ActivityCompleted) validate() error {
	return required("userId", e.UserID, "activityId", e.ActivityID)
}

// Envelope is the wire form of an event.
type Envelope struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Timestamp time.Time       `json:"ts"`
	Data      json.RawMessage `json:"data"`
}

// NewEnvelope defaults and serializes ev, stamping it with now.
func NewEnvelope(ev Event, now time.Time) (Envelope, error) {
	ev.applyDefaults()
	if err := ev.validate(); err != nil {
		return Envelope{}, err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", ev.Name(), err)
	}
	return Envelope{
		ID:        uuid.NewString(),
		Name:      ev.Name(),
		Timestamp: now.UTC(),
		Data:      data,
	}, nil
}

// Decode maps an envelope back to its typed event. Unknown names and
// unknown payload fields are rejected.
func Decode(env Envelope) (Event, error) {
	var ev Event
	switch env.Name {
	case NameSessionCreated:
		ev = &SessionCreated{}
	case NameSessionMessage:
		ev = &SessionMessage{}
	case NameMoodUpdated:
		ev = &MoodUpdated{}
	case NameActivityCompleted:
		ev = &ActivityCompleted{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Name)
	}

	dec := json.NewDecoder(bytes.NewReader(env.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEvent, env.Name, err)
	}
	ev.applyDefaults()
	if err := ev.validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// ChannelFor returns the broker channel an event name is published on.
func ChannelFor(prefix, name string) string {
	return prefix + strings.ReplaceAll(name, "/", ".")
}

func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidEvent, pairs[i])
		}
	}
	return nil
}
