package types

import "time"

// ActivityType is the controlled vocabulary of loggable activities.
type ActivityType string

// Supported activity types.
const (
	ActivityMeditation ActivityType = "meditation"
	ActivityExercise   ActivityType = "exercise"
	ActivityWalking    ActivityType = "walking"
	ActivityReading    ActivityType = "reading"
	ActivityJournaling ActivityType = "journaling"
	ActivityTherapy    ActivityType = "therapy"
)

// ActivityTypes lists every accepted activity type.
var ActivityTypes = []ActivityType{
	ActivityMeditation,
	ActivityExercise,
	ActivityWalking,
	ActivityReading,
	ActivityJournaling,
	ActivityTherapy,
}

// Valid reports whether t is part of the controlled vocabulary.
func (t ActivityType) Valid() bool {
	for _, known := range ActivityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ActivityEntry is a single activity logged by a user.
// Entries are append-only.
type ActivityEntry struct {
	// ID is the unique identifier of the entry.
	ID string `json:"_id" db:"id"`

	// UserID identifies the user who logged the activity.
	UserID string `json:"userId" db:"user_id"`

	// Type is the activity category.
	Type ActivityType `json:"type" db:"type"`

	// Name is a custom or predefined name for the activity.
	Name string `json:"name" db:"name"`

	// Description holds optional detailed notes.
	Description string `json:"description,omitempty" db:"description"`

	// Duration is the optional length of the activity in minutes.
	// When present it is never negative.
	Duration *int `json:"duration,omitempty" db:"duration"`

	// Difficulty is an optional self-reported difficulty label.
	Difficulty string `json:"difficulty,omitempty" db:"difficulty"`

	// Feedback is optional free-text feedback about the activity.
	Feedback string `json:"feedback,omitempty" db:"feedback"`

	// Timestamp is the instant the activity was captured.
	Timestamp time.Time `json:"timestamp" db:"timestamp"`

	// CreatedAt is the timestamp when the entry was persisted.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
