package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mindwell/apiserver/types"
)

// ChatRepository handles persistence for chat sessions and their messages.
// Messages are append-only rows ordered by insertion.
type ChatRepository struct {
	db *sql.DB
}

func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Create(ctx context.Context, session types.ChatSession) (types.ChatSession, error) {
	now := time.Now().UTC()
	if session.SessionID == "" {
		session.SessionID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = types.ChatStatusActive
	}
	if session.StartTime.IsZero() {
		session.StartTime = now
	}
	session.CreatedAt = now
	session.UpdatedAt = now
	session.Messages = []types.ChatMessage{}

	const query = `
		INSERT INTO chat_sessions (session_id, user_id, status, start_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		session.SessionID,
		session.UserID,
		string(session.Status),
		session.StartTime,
		session.CreatedAt,
		session.UpdatedAt,
	); err != nil {
		return types.ChatSession{}, translateWriteError(err)
	}
	return session, nil
}

// Get returns the session with its messages in append order.
func (r *ChatRepository) Get(ctx context.Context, sessionID string) (types.ChatSession, error) {
	const query = `
		SELECT session_id, user_id, status, start_time, created_at, updated_at
		FROM chat_sessions
		WHERE session_id = $1`
	var session types.ChatSession
	var status string
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.SessionID,
		&session.UserID,
		&status,
		&session.StartTime,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ChatSession{}, ErrNotFound
		}
		return types.ChatSession{}, err
	}
	session.Status = types.ChatStatus(status)

	messages, err := r.listMessages(ctx, sessionID)
	if err != nil {
		return types.ChatSession{}, err
	}
	session.Messages = messages
	return session, nil
}

// ListByUser returns a page of the user's sessions without messages, newest first.
func (r *ChatRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]types.ChatSession, int, error) {
	const countQuery = `SELECT COUNT(1) FROM chat_sessions WHERE user_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	const query = `
		SELECT session_id, user_id, status, start_time, created_at, updated_at
		FROM chat_sessions
		WHERE user_id = $1
		ORDER BY start_time DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	sessions := make([]types.ChatSession, 0, limit)
	for rows.Next() {
		var session types.ChatSession
		var status string
		if err := rows.Scan(
			&session.SessionID,
			&session.UserID,
			&status,
			&session.StartTime,
			&session.CreatedAt,
			&session.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		session.Status = types.ChatStatus(status)
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

// AppendMessages appends messages to the session in a single transaction.
// The parent row is locked so concurrent appends to the same session are
// serialized and each batch stays contiguous.
func (r *ChatRepository) AppendMessages(ctx context.Context, sessionID string, messages ...types.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const lockQuery = `SELECT session_id FROM chat_sessions WHERE session_id = $1 FOR UPDATE`
	var locked string
	if err := tx.QueryRowContext(ctx, lockQuery, sessionID).Scan(&locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	const insertQuery = `
		INSERT INTO chat_messages (session_id, role, content, metadata, timestamp)
		VALUES ($1, $2, $3, $4, $5)`
	var last time.Time
	for _, msg := range messages {
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now().UTC()
		}
		var metadata sql.NullString
		if msg.Metadata != nil {
			raw, err := json.Marshal(msg.Metadata)
			if err != nil {
				return fmt.Errorf("marshal message metadata: %w", err)
			}
			metadata = sql.NullString{String: string(raw), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, insertQuery, sessionID, string(msg.Role), msg.Content, metadata, msg.Timestamp); err != nil {
			return err
		}
		last = msg.Timestamp
	}

	const touchQuery = `UPDATE chat_sessions SET updated_at = $1 WHERE session_id = $2`
	if _, err := tx.ExecContext(ctx, touchQuery, last, sessionID); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateStatus moves the session from status from to status to. It returns
// ErrConflict when the session is no longer in from.
func (r *ChatRepository) UpdateStatus(ctx context.Context, sessionID string, from, to types.ChatStatus) error {
	const query = `
		UPDATE chat_sessions SET status = $1, updated_at = $2
		WHERE session_id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, string(to), time.Now().UTC(), sessionID, string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM chat_sessions WHERE session_id = $1)`, sessionID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func (r *ChatRepository) listMessages(ctx context.Context, sessionID string) ([]types.ChatMessage, error) {
	const query = `
		SELECT role, content, metadata, timestamp
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []types.ChatMessage{}
	for rows.Next() {
		var msg types.ChatMessage
		var role string
		var metadata []byte
		if err := rows.Scan(&role, &msg.Content, &metadata, &msg.Timestamp); err != nil {
			return nil, err
		}
		msg.Role = types.ChatRole(role)
		if len(metadata) > 0 {
			var meta types.MessageMetadata
			if err := json.Unmarshal(metadata, &meta); err != nil {
				return nil, fmt.Errorf("decode message metadata: %w", err)
			}
			msg.Metadata = &meta
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}
