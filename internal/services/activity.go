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

// ActivityRepository defines persistence operations for activity entries.
type ActivityRepository interface {
	Create(ctx context.Context, entry types.ActivityEntry) (types.ActivityEntry, error)
	CountByUser(ctx context.Context, userID string) (int, error)
}

// ActivityInput holds the fields of an activity log request.
type ActivityInput struct {
	Type        string
	Name        string
	Description string
	Duration    *int
	Difficulty  string
	Feedback    string
}

// ActivityService records activities and announces them.
type ActivityService struct {
	repo       ActivityRepository
	dispatcher EventDispatcher
	logger     *slog.Logger
}

func NewActivityService(repo ActivityRepository, dispatcher EventDispatcher, logger *slog.Logger) *ActivityService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityService{repo: repo, dispatcher: dispatcher, logger: logger}
}

// Record validates and stores an activity, then publishes activity/completed.
// A publish failure fails the call even though the entry is already stored.
func (s *ActivityService) Record(ctx context.Context, userID string, in ActivityInput) (types.ActivityEntry, error) {
	activityType := types.ActivityType(in.Type)
	if !activityType.Valid() {
		return types.ActivityEntry{}, apperror.BadRequest(fmt.Sprintf("Invalid activity type %q.", in.Type))
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return types.ActivityEntry{}, apperror.BadRequest("Activity name is required.")
	}
	if in.Duration != nil && *in.Duration < 0 {
		return types.ActivityEntry{}, apperror.BadRequest("Duration cannot be negative.")
	}

	entry, err := s.repo.Create(ctx, types.ActivityEntry{
		UserID:      userID,
		Type:        activityType,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Duration:    in.Duration,
		Difficulty:  strings.TrimSpace(in.Difficulty),
		Feedback:    strings.TrimSpace(in.Feedback),
	})
	if err != nil {
		return types.ActivityEntry{}, fmt.Errorf("create activity entry: %w", err)
	}

	if _, err := s.dispatcher.Dispatch(ctx, &events.ActivityCompleted{
		UserID:       entry.UserID,
		ActivityID:   entry.ID,
		Type:         entry.Type,
		ActivityName: entry.Name,
		Duration:     entry.Duration,
		Difficulty:   optionalString(entry.Difficulty),
		Feedback:     optionalString(entry.Feedback),
		Timestamp:    entry.Timestamp,
	}); err != nil {
		return types.ActivityEntry{}, err
	}

	s.logger.Info("activity recorded", "user_id", userID, "activity_id", entry.ID, "type", entry.Type)
	return entry, nil
}

// Count returns how many activities the user has logged.
func (s *ActivityService) Count(ctx context.Context, userID string) (int, error) {
	return s.repo.CountByUser(ctx, userID)
}
