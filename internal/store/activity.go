package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/mindwell/apiserver/types"
)

// ActivityRepository handles persistence for activity entries.
type ActivityRepository struct {
	db *sql.DB
}

func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) Create(ctx context.Context, entry types.ActivityEntry) (types.ActivityEntry, error) {
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now().UTC()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = entry.CreatedAt
	}

	var duration sql.NullInt64
	if entry.Duration != nil {
		duration = sql.NullInt64{Int64: int64(*entry.Duration), Valid: true}
	}

	const query = `
		INSERT INTO activity_entries (id, user_id, type, name, description, duration, difficulty, feedback, timestamp, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		entry.ID,
		entry.UserID,
		string(entry.Type),
		entry.Name,
		entry.Description,
		duration,
		entry.Difficulty,
		entry.Feedback,
		entry.Timestamp,
		entry.CreatedAt,
	); err != nil {
		return types.ActivityEntry{}, err
	}
	return entry, nil
}

// CountByUser returns how many activities the user has logged.
func (r *ActivityRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(1) FROM activity_entries WHERE user_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
