package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mindwell/apiserver/internal/apperror"
	"github.com/mindwell/apiserver/internal/store"
	"github.com/mindwell/apiserver/types"
)

// RecommendationRepository defines persistence operations for recommendation batches.
type RecommendationRepository interface {
	Create(ctx context.Context, batch types.RecommendationBatch) (types.RecommendationBatch, error)
	Latest(ctx context.Context, userID string) (types.RecommendationBatch, error)
}

// Recommender produces activity suggestions for a mood score.
type Recommender interface {
	Recommend(ctx context.Context, score float64, moodContext string) []types.Recommendation
}

// RecommendationService generates and serves activity recommendations.
type RecommendationService struct {
	repo        RecommendationRepository
	recommender Recommender
	logger      *slog.Logger
}

func NewRecommendationService(repo RecommendationRepository, recommender Recommender, logger *slog.Logger) *RecommendationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecommendationService{repo: repo, recommender: recommender, logger: logger}
}

// Generate asks the recommender for suggestions and stores them as a new batch.
// An empty batch is stored when the recommender has nothing to offer.
func (s *RecommendationService) Generate(ctx context.Context, userID string, score float64, moodContext string) (types.RecommendationBatch, error) {
	items := s.recommender.Recommend(ctx, score, moodContext)
	batch, err := s.repo.Create(ctx, types.RecommendationBatch{UserID: userID, Items: items})
	if err != nil {
		return types.RecommendationBatch{}, err
	}
	s.logger.Info("recommendations stored", "user_id", userID, "count", len(batch.Items))
	return batch, nil
}

// Latest returns the newest batch for the user.
func (s *RecommendationService) Latest(ctx context.Context, userID string) (types.RecommendationBatch, error) {
	batch, err := s.repo.Latest(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.RecommendationBatch{}, apperror.NotFound("No recommendations yet")
		}
		return types.RecommendationBatch{}, err
	}
	return batch, nil
}
