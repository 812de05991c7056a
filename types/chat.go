package types

import "time"

// ChatStatus is the lifecycle state of a chat session.
type ChatStatus string

// Supported chat statuses. Sessions only move forward:
// active -> completed -> archived.
const (
	ChatStatusActive    ChatStatus = "active"
	ChatStatusCompleted ChatStatus = "completed"
	ChatStatusArchived  ChatStatus = "archived"
)

// Valid reports whether s is a known status.
func (s ChatStatus) Valid() bool {
	switch s {
	case ChatStatusActive, ChatStatusCompleted, ChatStatusArchived:
		return true
	default:
		return false
	}
}

// AcceptsMessages reports whether new turns may be appended in this state.
func (s ChatStatus) AcceptsMessages() bool {
	return s == ChatStatusActive
}

// CanTransition reports whether a session may move from s to next.
func (s ChatStatus) CanTransition(next ChatStatus) bool {
	switch s {
	case ChatStatusActive:
		return next == ChatStatusCompleted
	case ChatStatusCompleted:
		return next == ChatStatusArchived
	default:
		return false
	}
}

// ChatRole identifies the author of a chat message.
type ChatRole string

// Supported chat roles.
const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatSession is a long-lived conversation between a user and the assistant.
// Messages are kept in append order, which is also chronological order.
type ChatSession struct {
	// SessionID is the opaque, globally unique identifier exposed to callers.
	SessionID string `json:"sessionId" db:"session_id"`

	// UserID identifies the user who owns the session.
	UserID string `json:"userId" db:"user_id"`

	// Status is the lifecycle state of the session.
	Status ChatStatus `json:"status" db:"status"`

	// StartTime is the instant the session was started.
	StartTime time.Time `json:"startTime" db:"start_time"`

	// Messages is the ordered conversation. It is omitted from list views.
	Messages []ChatMessage `json:"messages,omitempty" db:"-"`

	// CreatedAt is the timestamp when the session was persisted.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recently appended message.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// ChatMessage is a single turn within a chat session.
type ChatMessage struct {
	// Role is the author of the message.
	Role ChatRole `json:"role" db:"role"`

	// Content is the text of the message.
	Content string `json:"content" db:"content"`

	// Timestamp is the instant the message was produced.
	Timestamp time.Time `json:"timestamp" db:"timestamp"`

	// Metadata carries the analysis attached to assistant messages.
	// User messages never populate it.
	Metadata *MessageMetadata `json:"metadata,omitempty" db:"metadata"`
}

// MessageMetadata is the structured data attached to an assistant turn.
type MessageMetadata struct {
	// Analysis is the analysis of the user turn the reply answers.
	Analysis *Analysis `json:"analysis,omitempty"`

	// Technique is an optional label of the therapy technique in use.
	Technique *string `json:"currentGoal"`

	// Progress duplicates the headline analysis values for convenience.
	Progress *Progress `json:"progress,omitempty"`
}

// Progress is the emotional state and risk level at a given turn.
type Progress struct {
	EmotionalState string  `json:"emotionalState"`
	RiskLevel      float64 `json:"riskLevel"`
}

// Analysis is the structured reading of a user message produced by the
// hosted model.
type Analysis struct {
	EmotionalState      string   `json:"emotionalState"`
	Themes              []string `json:"themes"`
	RiskLevel           float64  `json:"riskLevel"`
	RecommendedApproach string   `json:"recommendedApproach"`
	ProgressIndicators  []string `json:"progressIndicators"`
}

// AssistantMetadata builds the metadata stored with an assistant reply.
func AssistantMetadata(analysis Analysis) *MessageMetadata {
	a := analysis
	return &MessageMetadata{
		Analysis: &a,
		Progress: &Progress{
			EmotionalState: analysis.EmotionalState,
			RiskLevel:      analysis.RiskLevel,
		},
	}
}
