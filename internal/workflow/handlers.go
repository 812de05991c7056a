package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mindwell/apiserver/internal/ai"
	"github.com/mindwell/apiserver/internal/events"
	"github.com/mindwell/apiserver/internal/storage"
	"github.com/mindwell/apiserver/types"
)

// CriticalMoodThreshold is the score below which a mood update raises a warning.
const CriticalMoodThreshold = 20

// ChatTurns appends and reads chat turns without ownership checks.
type ChatTurns interface {
	Reply(ctx context.Context, sessionID, text string) (ai.Result, error)
	Transcript(ctx context.Context, sessionID string) (types.ChatSession, error)
}

// SessionAnalyzer summarises session notes or transcripts.
type SessionAnalyzer interface {
	AnalyzeSession(ctx context.Context, content string) (ai.SessionAnalysis, bool)
}

// RecommendationGenerator stores fresh recommendations for a user.
type RecommendationGenerator interface {
	Generate(ctx context.Context, userID string, score float64, moodContext string) (types.RecommendationBatch, error)
}

// Handlers holds the dependencies of the background functions.
type Handlers struct {
	chats           ChatTurns
	analyzer        SessionAnalyzer
	recommendations RecommendationGenerator
	archive         *storage.Archive
	logger          *slog.Logger
	now             func() time.Time
}

func NewHandlers(chats ChatTurns, analyzer SessionAnalyzer, recommendations RecommendationGenerator, archive *storage.Archive, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		chats:           chats,
		analyzer:        analyzer,
		recommendations: recommendations,
		archive:         archive,
		logger:          logger,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Register binds every handler to its event.
func (h *Handlers) Register(r *Registry) error {
	bindings := []struct {
		id     string
		event  string
		handle HandlerFunc
	}{
		{"therapy-session-handler", events.NameSessionCreated, h.SessionCreated},
		{"process-chat-message", events.NameSessionMessage, h.SessionMessage},
		{"mood-tracking-handler", events.NameMoodUpdated, h.MoodUpdated},
		{"activity-completion-handler", events.NameActivityCompleted, h.ActivityCompleted},
	}
	for _, b := range bindings {
		if err := r.Register(b.id, b.event, b.handle); err != nil {
			return err
		}
	}
	return nil
}

// SessionResult is the processed form of a session.created event.
type SessionResult struct {
	Message          string                `json:"message"`
	SessionID        string                `json:"sessionId"`
	Event            events.SessionCreated `json:"event"`
	ProcessedAt      time.Time             `json:"processedAt"`
	RequiresFollowUp bool                  `json:"requiresFollowUp"`
	Analysis         *ai.SessionAnalysis   `json:"analysis,omitempty"`
}

// SessionCreated records the new session and, when notes or a transcript
// came with it, asks the model for a session summary.
func (h *Handlers) SessionCreated(ctx context.Context, ev events.Event) (any, error) {
	created, err := as[*events.SessionCreated](ev)
	if err != nil {
		return nil, err
	}
	logger := h.logger.With("session_id", created.SessionID)
	logger.Info("therapy session created", "user_id", created.UserID, "session_type", created.SessionType)

	result := SessionResult{
		Message:          "Therapy session processed successfully",
		SessionID:        created.SessionID,
		Event:            *created,
		ProcessedAt:      h.now(),
		RequiresFollowUp: created.RequiresFollowUp,
	}

	if content := firstNonEmpty(created.Notes, created.Transcript); content != "" {
		if analysis, ok := h.analyzer.AnalyzeSession(ctx, content); ok {
			result.Analysis = &analysis
		}
	}
	if created.RequiresFollowUp {
		logger.Info("follow-up required for session")
	}

	h.store(ctx, storage.RecordKey("sessions", created.SessionID, result.ProcessedAt), result)
	return result, nil
}

// MessageResult is the processed form of a session.message event.
type MessageResult struct {
	SessionID string          `json:"sessionId"`
	Generated bool            `json:"generated"`
	Response  string          `json:"response"`
	Analysis  *types.Analysis `json:"analysis,omitempty"`
	Archived  bool            `json:"archived"`
}

// SessionMessage answers messages that arrived without a reply and appends
// the turn. Messages answered in the foreground are only archived.
func (h *Handlers) SessionMessage(ctx context.Context, ev events.Event) (any, error) {
	msg, err := as[*events.SessionMessage](ev)
	if err != nil {
		return nil, err
	}

	result := MessageResult{SessionID: msg.SessionID}
	if msg.Answered() {
		result.Response = *msg.Reply
		result.Analysis = msg.Analysis
	} else {
		turn, err := h.chats.Reply(ctx, msg.SessionID, msg.Message)
		if err != nil {
			return nil, fmt.Errorf("reply to session %s: %w", msg.SessionID, err)
		}
		result.Generated = true
		result.Response = turn.Reply
		result.Analysis = &turn.Analysis
		h.logger.Info("chat session updated with generated reply", "session_id", msg.SessionID, "degraded", turn.Degraded)
	}

	if h.archive.Enabled() {
		transcript, err := h.chats.Transcript(ctx, msg.SessionID)
		if err != nil {
			h.logger.Warn("transcript not loaded for archive", "session_id", msg.SessionID, "error", err)
		} else {
			result.Archived = h.store(ctx, storage.TranscriptKey(msg.SessionID), transcript)
		}
	}
	return result, nil
}

// MoodInsight is the processed form of a mood update. Trend analysis is not
// implemented yet; Trend is a fixed value and Implemented is false.
type MoodInsight struct {
	UserID          string   `json:"userId"`
	Mood            float64  `json:"mood"`
	Trend           string   `json:"trend"`
	Critical        bool     `json:"critical"`
	Suggestions     []string `json:"suggestions"`
	Recommendations int      `json:"recommendations"`
	Implemented     bool     `json:"implemented"`
}

// MoodUpdated flags critical scores and generates activity recommendations.
func (h *Handlers) MoodUpdated(ctx context.Context, ev events.Event) (any, error) {
	mood, err := as[*events.MoodUpdated](ev)
	if err != nil {
		return nil, err
	}
	h.logger.Info("mood updated", "user_id", mood.UserID, "mood", mood.Mood)

	insight := MoodInsight{
		UserID:      mood.UserID,
		Mood:        mood.Mood,
		Trend:       "improving",
		Critical:    mood.Mood < CriticalMoodThreshold,
		Suggestions: []string{"Consider scheduling a check-in therapy session"},
	}
	if insight.Critical {
		h.logger.Warn("critical mood detected", "user_id", mood.UserID, "mood", mood.Mood)
	}

	moodContext := ""
	if mood.Context != nil {
		moodContext = *mood.Context
	}
	batch, err := h.recommendations.Generate(ctx, mood.UserID, mood.Mood, moodContext)
	if err != nil {
		return nil, fmt.Errorf("generate recommendations: %w", err)
	}
	insight.Recommendations = len(batch.Items)

	h.store(ctx, storage.RecordKey("moods", mood.MoodID, h.now()), insight)
	return insight, nil
}

// ActivityProgress is the processed form of an activity completion. Progress
// tracking is not implemented yet; the counters are fixed values and
// Implemented is false.
type ActivityProgress struct {
	UserID              string   `json:"userId"`
	ActivityID          string   `json:"activityId"`
	CompletedActivities int      `json:"completedActivities"`
	TotalPoints         int      `json:"totalPoints"`
	NewAchievements     []string `json:"newAchievements"`
	Implemented         bool     `json:"implemented"`
}

// ActivityCompleted reports progress for a completed activity.
func (h *Handlers) ActivityCompleted(ctx context.Context, ev events.Event) (any, error) {
	completed, err := as[*events.ActivityCompleted](ev)
	if err != nil {
		return nil, err
	}
	h.logger.Info("activity completed", "user_id", completed.UserID, "activity_id", completed.ActivityID, "type", completed.Type)

	progress := ActivityProgress{
		UserID:              completed.UserID,
		ActivityID:          completed.ActivityID,
		CompletedActivities: 1,
		TotalPoints:         10,
		NewAchievements:     []string{"First Activity Completed"},
	}
	h.store(ctx, storage.RecordKey("activities", completed.ActivityID, h.now()), progress)
	return progress, nil
}

// store archives v under key when an archive is configured. Archive failures
// are logged and do not fail the handler.
func (h *Handlers) store(ctx context.Context, key string, v any) bool {
	if !h.archive.Enabled() {
		return false
	}
	if err := h.archive.PutJSON(ctx, key, v); err != nil {
		h.logger.Warn("archive write failed", "key", key, "error", err)
		return false
	}
	return true
}

func as[T events.Event](ev events.Event) (T, error) {
	typed, ok := ev.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected event %s", ev.Name())
	}
	return typed, nil
}

func firstNonEmpty(values ...*string) string {
	for _, v := range values {
		if v != nil && strings.TrimSpace(*v) != "" {
			return *v
		}
	}
	return ""
}
