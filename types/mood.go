package types

import "time"

// Bounds of a mood score, inclusive.
const (
	MinMoodScore = 0
	MaxMoodScore = 100
)

// MoodEntry is a single mood check-in recorded by a user.
// Entries are append-only.
type MoodEntry struct {
	// ID is the unique identifier of the entry.
	ID string `json:"_id" db:"id"`

	// UserID identifies the user who recorded the entry.
	UserID string `json:"userId" db:"user_id"`

	// Score is the self-reported mood on a 0 to 100 scale.
	Score float64 `json:"score" db:"score"`

	// Note is an optional free-text note.
	Note string `json:"note,omitempty" db:"note"`

	// Context is an optional free-text description of the situation.
	Context string `json:"context,omitempty" db:"context"`

	// Activities are optional labels of activities related to the mood.
	Activities []string `json:"activities,omitempty" db:"activities"`

	// Timestamp is the instant the mood was captured.
	Timestamp time.Time `json:"timestamp" db:"timestamp"`

	// CreatedAt is the timestamp when the entry was persisted.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// ValidMoodScore reports whether score lies within the accepted range.
func ValidMoodScore(score float64) bool {
	return score >= MinMoodScore && score <= MaxMoodScore
}
