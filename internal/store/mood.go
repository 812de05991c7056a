package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mindwell/apiserver/types"
)

// MoodRepository handles persistence for mood entries.
type MoodRepository struct {
	db *sql.DB
}

func NewMoodRepository(db *sql.DB) *MoodRepository {
	return &MoodRepository{db: db}
}

func (r *MoodRepository) Create(ctx context.Context, entry types.MoodEntry) (types.MoodEntry, error) {
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now().UTC()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = entry.CreatedAt
	}

	activities := entry.Activities
	if activities == nil {
		activities = []string{}
	}
	activitiesJSON, err := json.Marshal(activities)
	if err != nil {
		return types.MoodEntry{}, err
	}

	const query = `
		INSERT INTO mood_entries (id, user_id, score, note, context, activities, timestamp, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		entry.ID,
		entry.UserID,
		entry.Score,
		entry.Note,
		entry.Context,
		activitiesJSON,
		entry.Timestamp,
		entry.CreatedAt,
	); err != nil {
		return types.MoodEntry{}, err
	}
	return entry, nil
}

// ListByUser returns the user's most recent entries, newest first.
func (r *MoodRepository) ListByUser(ctx context.Context, userID string, limit int) ([]types.MoodEntry, error) {
	if limit < 1 {
		limit = 20
	}

	const query = `
		SELECT id, user_id, score, note, context, activities, timestamp, created_at
		FROM mood_entries
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]types.MoodEntry, 0, limit)
	for rows.Next() {
		var entry types.MoodEntry
		var activitiesJSON []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.Score,
			&entry.Note,
			&entry.Context,
			&activitiesJSON,
			&entry.Timestamp,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(activitiesJSON, &entry.Activities)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
