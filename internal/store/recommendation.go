package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mindwell/apiserver/types"
)

// RecommendationRepository handles persistence for recommendation batches.
type RecommendationRepository struct {
	db *sql.DB
}

func NewRecommendationRepository(db *sql.DB) *RecommendationRepository {
	return &RecommendationRepository{db: db}
}

func (r *RecommendationRepository) Create(ctx context.Context, batch types.RecommendationBatch) (types.RecommendationBatch, error) {
	batch.ID = uuid.NewString()
	batch.CreatedAt = time.Now().UTC()
	if batch.Items == nil {
		batch.Items = []types.Recommendation{}
	}

	itemsJSON, err := json.Marshal(batch.Items)
	if err != nil {
		return types.RecommendationBatch{}, err
	}

	const query = `
		INSERT INTO recommendation_batches (id, user_id, items, created_at)
		VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, batch.ID, batch.UserID, itemsJSON, batch.CreatedAt); err != nil {
		return types.RecommendationBatch{}, err
	}
	return batch, nil
}

func (r *RecommendationRepository) Latest(ctx context.Context, userID string) (types.RecommendationBatch, error) {
	const query = `
		SELECT id, user_id, items, created_at
		FROM recommendation_batches
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`
	var batch types.RecommendationBatch
	var itemsJSON []byte
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&batch.ID, &batch.UserID, &itemsJSON, &batch.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.RecommendationBatch{}, ErrNotFound
		}
		return types.RecommendationBatch{}, err
	}
	_ = json.Unmarshal(itemsJSON, &batch.Items)
	return batch, nil
}
