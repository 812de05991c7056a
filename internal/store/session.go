package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mindwell/apiserver/types"
)

// SessionRepository handles persistence for login sessions.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session types.AuthSession) (types.AuthSession, error) {
	now := time.Now().UTC()
	session.ID = uuid.NewString()
	session.CreatedAt = now
	if session.LastActive.IsZero() {
		session.LastActive = now
	}

	const query = `
		INSERT INTO auth_sessions (id, user_id, token, expires_at, device_info, last_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		session.ID,
		session.UserID,
		session.Token,
		session.ExpiresAt,
		session.DeviceInfo,
		session.LastActive,
		session.CreatedAt,
	); err != nil {
		return types.AuthSession{}, translateWriteError(err)
	}
	return session, nil
}

// GetByToken returns the session for token unless it has already expired.
func (r *SessionRepository) GetByToken(ctx context.Context, token string) (types.AuthSession, error) {
	const query = `
		SELECT id, user_id, token, expires_at, device_info, last_active, created_at
		FROM auth_sessions
		WHERE token = $1 AND expires_at > $2`
	var session types.AuthSession
	err := r.db.QueryRowContext(ctx, query, token, time.Now().UTC()).Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.ExpiresAt,
		&session.DeviceInfo,
		&session.LastActive,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.AuthSession{}, ErrNotFound
		}
		return types.AuthSession{}, err
	}
	return session, nil
}

// DeleteByToken removes the session for token. Deleting a missing session is not an error.
func (r *SessionRepository) DeleteByToken(ctx context.Context, token string) error {
	const query = `DELETE FROM auth_sessions WHERE token = $1`
	_, err := r.db.ExecContext(ctx, query, token)
	return err
}

// DeleteExpired removes every session whose expiry is at or before now.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM auth_sessions WHERE expires_at <= $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
