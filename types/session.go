package types

import "time"

// AuthSession represents a login session issued to a user.
// The session store removes records once ExpiresAt has passed.
type AuthSession struct {
	// ID is the unique identifier of the session record.
	ID string `json:"_id" db:"id"`

	// UserID identifies the user that owns the session.
	UserID string `json:"userId" db:"user_id"`

	// Token is the signed bearer token handed to the client at login.
	// It is unique across all sessions.
	Token string `json:"-" db:"token"`

	// ExpiresAt is the instant after which the record is considered stale
	// and becomes eligible for removal.
	ExpiresAt time.Time `json:"expiresAt" db:"expires_at"`

	// DeviceInfo is an optional device label, typically the User-Agent
	// header of the login request.
	DeviceInfo string `json:"deviceInfo,omitempty" db:"device_info"`

	// LastActive is the last instant the session was seen.
	LastActive time.Time `json:"lastActive" db:"last_active"`

	// CreatedAt is the timestamp when the session was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Expired reports whether the session is past its expiry at the given instant.
func (s AuthSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
