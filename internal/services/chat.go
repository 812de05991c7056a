package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mindwell/apiserver/internal/ai"
	"github.com/mindwell/apiserver/internal/apperror"
	"github.com/mindwell/apiserver/internal/events"
	"github.com/mindwell/apiserver/internal/store"
	"github.com/mindwell/apiserver/types"
)

const (
	defaultChatPageSize = 10
	maxChatPageSize     = 100

	// turnPersistTimeout bounds storing a finished turn. The write is detached
	// from the request so a reply produced at the request deadline is kept.
	turnPersistTimeout = 10 * time.Second
)

// ChatRepository defines persistence operations for chat sessions.
type ChatRepository interface {
	Create(ctx context.Context, session types.ChatSession) (types.ChatSession, error)
	Get(ctx context.Context, sessionID string) (types.ChatSession, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]types.ChatSession, int, error)
	AppendMessages(ctx context.Context, sessionID string, messages ...types.ChatMessage) error
	UpdateStatus(ctx context.Context, sessionID string, from, to types.ChatStatus) error
}

// Responder produces the analysis and reply for a user message.
type Responder interface {
	Respond(ctx context.Context, text string, history []types.ChatMessage) ai.Result
}

// ChatService manages chat sessions and their turns.
type ChatService struct {
	chats      ChatRepository
	users      UserRepository
	responder  Responder
	dispatcher EventDispatcher
	logger     *slog.Logger
	now        func() time.Time
}

func NewChatService(chats ChatRepository, users UserRepository, responder Responder, dispatcher EventDispatcher, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		chats:      chats,
		users:      users,
		responder:  responder,
		dispatcher: dispatcher,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create starts a new active session for the user and announces it.
// The announcement is best-effort.
func (s *ChatService) Create(ctx context.Context, userID string) (types.ChatSession, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.ChatSession{}, apperror.NotFound("User not found")
		}
		return types.ChatSession{}, err
	}

	session, err := s.chats.Create(ctx, types.ChatSession{
		UserID:    userID,
		Status:    types.ChatStatusActive,
		StartTime: s.now(),
	})
	if err != nil {
		return types.ChatSession{}, fmt.Errorf("create chat session: %w", err)
	}
	s.logger.Info("chat session created", "session_id", session.SessionID, "user_id", userID)

	if _, err := s.dispatcher.Dispatch(ctx, &events.SessionCreated{
		SessionID: session.SessionID,
		UserID:    userID,
		StartTime: session.StartTime,
	}); err != nil {
		s.logger.Warn("session created event not published", "session_id", session.SessionID, "error", err)
	}
	return session, nil
}

// Send appends a user turn and the generated assistant turn to a session
// owned by the user. Model failures degrade to fallback values.
func (s *ChatService) Send(ctx context.Context, userID, sessionID, text string) (ai.Result, error) {
	if strings.TrimSpace(text) == "" {
		return ai.Result{}, apperror.BadRequest("Message is required.")
	}

	session, err := s.owned(ctx, userID, sessionID)
	if err != nil {
		return ai.Result{}, err
	}
	if !session.Status.AcceptsMessages() {
		return ai.Result{}, apperror.Conflict(fmt.Sprintf("Session is %s and no longer accepts messages", session.Status))
	}

	result, err := s.turn(ctx, session, text)
	if err != nil {
		return ai.Result{}, err
	}
	if result.Degraded {
		s.logger.Warn("chat reply degraded to fallback", "session_id", sessionID)
	}

	analysis := result.Analysis
	reply := result.Reply
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), turnPersistTimeout)
	defer cancel()
	if _, err := s.dispatcher.Dispatch(dispatchCtx, &events.SessionMessage{
		SessionID: sessionID,
		UserID:    userID,
		Message:   text,
		Reply:     &reply,
		Analysis:  &analysis,
	}); err != nil {
		s.logger.Warn("session message event not published", "session_id", sessionID, "error", err)
	}
	return result, nil
}

// SetStatus moves a session owned by the user to next. Sessions only move
// forward: active to completed, completed to archived.
func (s *ChatService) SetStatus(ctx context.Context, userID, sessionID string, next types.ChatStatus) (types.ChatSession, error) {
	if !next.Valid() {
		return types.ChatSession{}, apperror.BadRequest("Status must be one of active, completed, archived.")
	}

	session, err := s.owned(ctx, userID, sessionID)
	if err != nil {
		return types.ChatSession{}, err
	}
	if !session.Status.CanTransition(next) {
		return types.ChatSession{}, apperror.Conflict(fmt.Sprintf("Session cannot move from %s to %s", session.Status, next))
	}

	if err := s.chats.UpdateStatus(ctx, sessionID, session.Status, next); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return types.ChatSession{}, apperror.NotFound("Session not found")
		case errors.Is(err, store.ErrConflict):
			return types.ChatSession{}, apperror.Conflict("Session status changed, retry the request")
		}
		return types.ChatSession{}, fmt.Errorf("update chat session status: %w", err)
	}
	s.logger.Info("chat session status changed", "session_id", sessionID, "from", session.Status, "to", next)

	session.Status = next
	return session, nil
}

// History returns a session owned by the user with all of its messages.
func (s *ChatService) History(ctx context.Context, userID, sessionID string) (types.ChatSession, error) {
	return s.owned(ctx, userID, sessionID)
}

// List returns a page of the user's sessions without messages.
func (s *ChatService) List(ctx context.Context, userID string, offset, limit int) ([]types.ChatSession, int, error) {
	if limit <= 0 {
		limit = defaultChatPageSize
	}
	if limit > maxChatPageSize {
		limit = maxChatPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.chats.ListByUser(ctx, userID, limit, offset)
}

// Reply generates and appends a turn for a message received out of band.
// It does not check ownership or status; callers are trusted workers.
func (s *ChatService) Reply(ctx context.Context, sessionID, text string) (ai.Result, error) {
	session, err := s.Transcript(ctx, sessionID)
	if err != nil {
		return ai.Result{}, err
	}
	return s.turn(ctx, session, text)
}

// Transcript returns a session regardless of owner.
func (s *ChatService) Transcript(ctx context.Context, sessionID string) (types.ChatSession, error) {
	session, err := s.chats.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.ChatSession{}, apperror.NotFound("Session not found")
		}
		return types.ChatSession{}, err
	}
	return session, nil
}

// turn answers text against the session history and appends both messages
// in one call so they stay adjacent.
func (s *ChatService) turn(ctx context.Context, session types.ChatSession, text string) (ai.Result, error) {
	userTurn := types.ChatMessage{Role: types.ChatRoleUser, Content: text, Timestamp: s.now()}
	result := s.responder.Respond(ctx, text, session.Messages)
	assistantTurn := types.ChatMessage{
		Role:      types.ChatRoleAssistant,
		Content:   result.Reply,
		Timestamp: s.now(),
		Metadata:  types.AssistantMetadata(result.Analysis),
	}

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), turnPersistTimeout)
	defer cancel()
	if err := s.chats.AppendMessages(storeCtx, session.SessionID, userTurn, assistantTurn); err != nil {
		return ai.Result{}, fmt.Errorf("append chat turn: %w", err)
	}
	return result, nil
}

func (s *ChatService) owned(ctx context.Context, userID, sessionID string) (types.ChatSession, error) {
	session, err := s.Transcript(ctx, sessionID)
	if err != nil {
		return types.ChatSession{}, err
	}
	if session.UserID != userID {
		return types.ChatSession{}, apperror.Forbidden("Forbidden")
	}
	return session, nil
}
