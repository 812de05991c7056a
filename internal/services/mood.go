package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mindwell/apiserver/internal/apperror"
	"github.com/mindwell/apiserver/internal/events"
	"github.com/mindwell/apiserver/types"
)

// MoodRepository defines persistence operations for mood entries.
type MoodRepository interface {
	Create(ctx context.Context, entry types.MoodEntry) (types.MoodEntry, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]types.MoodEntry, error)
}

// MoodInput holds the fields of a mood check-in.
type MoodInput struct {
	Score      *float64
	Note       string
	Context    string
	Activities []string
}

// MoodService records mood entries and announces them.
type MoodService struct {
	repo       MoodRepository
	dispatcher EventDispatcher
	logger     *slog.Logger
}

func NewMoodService(repo MoodRepository, dispatcher EventDispatcher, logger *slog.Logger) *MoodService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MoodService{repo: repo, dispatcher: dispatcher, logger: logger}
}

// Record validates and stores a mood entry, then publishes mood/updated.
// A publish failure fails the call even though the entry is already stored.
func (s *MoodService) Record(ctx context.Context, userID string, in MoodInput) (types.MoodEntry, error) {
	if in.Score == nil {
		return types.MoodEntry{}, apperror.BadRequest("Mood score is required.")
	}
	if !types.ValidMoodScore(*in.Score) {
		return types.MoodEntry{}, apperror.BadRequest(
			fmt.Sprintf("Mood score must be between %d and %d.", types.MinMoodScore, types.MaxMoodScore))
	}

	activities := make([]string, 0, len(in.Activities))
	for _, activity := range in.Activities {
		if activity = strings.TrimSpace(activity); activity != "" {
			activities = append(activities, activity)
		}
	}

	entry, err := s.repo.Create(ctx, types.MoodEntry{
		UserID:     userID,
		Score:      *in.Score,
		Note:       strings.TrimSpace(in.Note),
		Context:    strings.TrimSpace(in.Context),
		Activities: activities,
	})
	if err != nil {
		return types.MoodEntry{}, fmt.Errorf("create mood entry: %w", err)
	}

	if _, err := s.dispatcher.Dispatch(ctx, &events.MoodUpdated{
		UserID:     entry.UserID,
		MoodID:     entry.ID,
		Mood:       entry.Score,
		Context:    optionalString(entry.Context),
		Activities: entry.Activities,
		Note:       optionalString(entry.Note),
		Timestamp:  entry.Timestamp,
	}); err != nil {
		return types.MoodEntry{}, err
	}

	s.logger.Info("mood recorded", "user_id", userID, "mood_id", entry.ID, "score", entry.Score)
	return entry, nil
}

// Recent returns the user's latest mood entries, newest first.
func (s *MoodService) Recent(ctx context.Context, userID string, limit int) ([]types.MoodEntry, error) {
	return s.repo.ListByUser(ctx, userID, limit)
}
