package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/mindwell/apiserver/internal/ai"
	"github.com/mindwell/apiserver/internal/apperror"
	"github.com/mindwell/apiserver/internal/events"
	"github.com/mindwell/apiserver/internal/store/memstore"
	"github.com/mindwell/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ChatServiceSuite struct {
	suite.Suite
	db         *memstore.Store
	dispatcher *fakeDispatcher
	responder  *fakeResponder
	svc        *ChatService
	owner      types.User
	other      types.User
}

func (s *ChatServiceSuite) SetupTest() {
	ctx := context.Background()
	s.db = memstore.New()
	s.dispatcher = &fakeDispatcher{}
	s.responder = &fakeResponder{result: ai.Result{
		Analysis: types.Analysis{EmotionalState: "anxious", RiskLevel: 2, Themes: []string{}, ProgressIndicators: []string{}},
		Reply:    "That sounds hard.",
	}}
	s.svc = NewChatService(s.db.Chats(), s.db.Users(), s.responder, s.dispatcher, discardLogger())

	var err error
	s.owner, err = s.db.Users().Create(ctx, types.User{Name: "Alice", Email: "a@x.com"})
	s.Require().NoError(err)
	s.other, err = s.db.Users().Create(ctx, types.User{Name: "Bob", Email: "b@x.com"})
	s.Require().NoError(err)
}

func (s *ChatServiceSuite) TestCreateStartsActiveSession() {
	session, err := s.svc.Create(context.Background(), s.owner.ID)
	s.Require().NoError(err)
	s.NotEmpty(session.SessionID)
	s.Equal(types.ChatStatusActive, session.Status)
	s.Empty(session.Messages)
	s.Equal([]string{events.NameSessionCreated}, s.dispatcher.names())
}

func (s *ChatServiceSuite) TestCreateRequiresExistingUser() {
	_, err := s.svc.Create(context.Background(), "ghost")
	s.True(apperror.HasCode(err, http.StatusNotFound))
}

func (s *ChatServiceSuite) TestCreateIgnoresPublishFailure() {
	s.dispatcher.err = errors.New("broker down")
	session, err := s.svc.Create(context.Background(), s.owner.ID)
	s.Require().NoError(err)
	s.NotEmpty(session.SessionID)
}

func (s *ChatServiceSuite) TestSendAppendsExactlyTwoTurns() {
	ctx := context.Background()
	session, err := s.svc.Create(ctx, s.owner.ID)
	s.Require().NoError(err)

	for i := 1; i <= 3; i++ {
		result, err := s.svc.Send(ctx, s.owner.ID, session.SessionID, fmt.Sprintf("message %d", i))
		s.Require().NoError(err)
		s.Equal("That sounds hard.", result.Reply)

		history, err := s.svc.History(ctx, s.owner.ID, session.SessionID)
		s.Require().NoError(err)
		s.Require().Len(history.Messages, i*2)

		user, assistant := history.Messages[i*2-2], history.Messages[i*2-1]
		s.Equal(types.ChatRoleUser, user.Role)
		s.Equal(fmt.Sprintf("message %d", i), user.Content)
		s.Nil(user.Metadata)
		s.Equal(types.ChatRoleAssistant, assistant.Role)
		s.Require().NotNil(assistant.Metadata)
		s.Equal("anxious", assistant.Metadata.Progress.EmotionalState)
		s.Equal(2.0, assistant.Metadata.Progress.RiskLevel)
	}

	s.Len(s.responder.history, 4)

	last := s.dispatcher.dispatch[len(s.dispatcher.dispatch)-1]
	msg, ok := last.(*events.SessionMessage)
	s.Require().True(ok)
	s.True(msg.Answered())
	s.Equal("That sounds hard.", *msg.Reply)
}

func (s *ChatServiceSuite) TestSendRejectsOtherUsers() {
	ctx := context.Background()
	session, err := s.svc.Create(ctx, s.owner.ID)
	s.Require().NoError(err)

	_, err = s.svc.Send(ctx, s.other.ID, session.SessionID, "let me in")
	s.True(apperror.HasCode(err, http.StatusForbidden))

	_, err = s.svc.History(ctx, s.other.ID, session.SessionID)
	s.True(apperror.HasCode(err, http.StatusForbidden))

	history, err := s.svc.History(ctx, s.owner.ID, session.SessionID)
	s.Require().NoError(err)
	s.Empty(history.Messages)
}

func (s *ChatServiceSuite) TestSendValidation() {
	ctx := context.Background()
	session, err := s.svc.Create(ctx, s.owner.ID)
	s.Require().NoError(err)

	_, err = s.svc.Send(ctx, s.owner.ID, session.SessionID, "   ")
	s.True(apperror.HasCode(err, http.StatusBadRequest))

	_, err = s.svc.Send(ctx, s.owner.ID, "missing", "hello")
	s.True(apperror.HasCode(err, http.StatusNotFound))
}

func (s *ChatServiceSuite) TestSendRejectsInactiveSession() {
	ctx := context.Background()
	session, err := s.db.Chats().Create(ctx, types.ChatSession{UserID: s.owner.ID, Status: types.ChatStatusCompleted})
	s.Require().NoError(err)

	_, err = s.svc.Send(ctx, s.owner.ID, session.SessionID, "hello")
	s.True(apperror.HasCode(err, http.StatusConflict))
}

func (s *ChatServiceSuite) TestSendSurvivesPublishFailure() {
	ctx := context.Background()
	session, err := s.svc.Create(ctx, s.owner.ID)
	s.Require().NoError(err)
	s.dispatcher.err = errors.New("broker down")

	_, err = s.svc.Send(ctx, s.owner.ID, session.SessionID, "hello")
	s.Require().NoError(err)
}

func (s *ChatServiceSuite) TestConcurrentSendsLoseNoTurns() {
	ctx := context.Background()
	session, err := s.svc.Create(ctx, s.owner.ID)
	s.Require().NoError(err)

	const senders = 10
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.svc.Send(ctx, s.owner.ID, session.SessionID, fmt.Sprintf("m%d", i))
			s.NoError(err)
		}(i)
	}
	wg.Wait()

	history, err := s.svc.History(ctx, s.owner.ID, session.SessionID)
	s.Require().NoError(err)
	s.Len(history.Messages, senders*2)
	for i := 0; i < len(history.Messages); i += 2 {
		s.Equal(types.ChatRoleUser, history.Messages[i].Role)
		s.Equal(types.ChatRoleAssistant, history.Messages[i+1].Role)
	}
}

func (s *ChatServiceSuite) TestReplyBypassesOwnership() {
	ctx := context.Background()
	session, err := s.svc.Create(ctx, s.owner.ID)
	s.Require().NoError(err)

	_, err = s.svc.Reply(ctx, session.SessionID, "from the worker")
	s.Require().NoError(err)

	transcript, err := s.svc.Transcript(ctx, session.SessionID)
	s.Require().NoError(err)
	s.Len(transcript.Messages, 2)

	_, err = s.svc.Reply(ctx, "missing", "hello")
	s.True(apperror.HasCode(err, http.StatusNotFound))
}

func (s *ChatServiceSuite) TestListClampsPagination() {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.svc.Create(ctx, s.owner.ID)
		s.Require().NoError(err)
	}

	sessions, total, err := s.svc.List(ctx, s.owner.ID, -5, 0)
	s.Require().NoError(err)
	s.Equal(3, total)
	s.Len(sessions, 3)

	sessions, total, err = s.svc.List(ctx, s.other.ID, 0, 500)
	s.Require().NoError(err)
	s.Zero(total)
	s.Empty(sessions)
}

func (s *ChatServiceSuite) TestSetStatusMovesForwardOnly() {
	ctx := context.Background()
	session, err := s.svc.Create(ctx, s.owner.ID)
	s.Require().NoError(err)

	_, err = s.svc.SetStatus(ctx, s.owner.ID, session.SessionID, "paused")
	s.True(apperror.HasCode(err, http.StatusBadRequest))

	_, err = s.svc.SetStatus(ctx, s.other.ID, session.SessionID, types.ChatStatusCompleted)
	s.True(apperror.HasCode(err, http.StatusForbidden))

	_, err = s.svc.SetStatus(ctx, s.owner.ID, session.SessionID, types.ChatStatusArchived)
	s.True(apperror.HasCode(err, http.StatusConflict))

	updated, err := s.svc.SetStatus(ctx, s.owner.ID, session.SessionID, types.ChatStatusCompleted)
	s.Require().NoError(err)
	s.Equal(types.ChatStatusCompleted, updated.Status)

	_, err = s.svc.Send(ctx, s.owner.ID, session.SessionID, "hello")
	s.True(apperror.HasCode(err, http.StatusConflict))

	_, err = s.svc.SetStatus(ctx, s.owner.ID, session.SessionID, types.ChatStatusActive)
	s.True(apperror.HasCode(err, http.StatusConflict))

	updated, err = s.svc.SetStatus(ctx, s.owner.ID, session.SessionID, types.ChatStatusArchived)
	s.Require().NoError(err)
	s.Equal(types.ChatStatusArchived, updated.Status)

	stored, err := s.svc.Transcript(ctx, session.SessionID)
	s.Require().NoError(err)
	s.Equal(types.ChatStatusArchived, stored.Status)
}

func (s *ChatServiceSuite) TestSetStatusMissingSession() {
	_, err := s.svc.SetStatus(context.Background(), s.owner.ID, "missing", types.ChatStatusCompleted)
	s.True(apperror.HasCode(err, http.StatusNotFound))
}

func TestChatServiceSuite(t *testing.T) {
	suite.Run(t, new(ChatServiceSuite))
}

func TestChatHistoryIsStable(t *testing.T) {
	db := memstore.New()
	ctx := context.Background()
	user, err := db.Users().Create(ctx, types.User{Name: "A", Email: "a@x.com"})
	require.NoError(t, err)

	svc := NewChatService(db.Chats(), db.Users(), &fakeResponder{result: ai.Result{Reply: "hi"}}, &fakeDispatcher{}, discardLogger())
	session, err := svc.Create(ctx, user.ID)
	require.NoError(t, err)
	_, err = svc.Send(ctx, user.ID, session.SessionID, "hello")
	require.NoError(t, err)

	first, err := svc.History(ctx, user.ID, session.SessionID)
	require.NoError(t, err)
	second, err := svc.History(ctx, user.ID, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, first.Messages, second.Messages)
}

// deadlineChats fails every call made with a finished context, the way a
// database driver does.
type deadlineChats struct {
	ChatRepository
}

func (c deadlineChats) Get(ctx context.Context, sessionID string) (types.ChatSession, error) {
	if err := ctx.Err(); err != nil {
		return types.ChatSession{}, err
	}
	return c.ChatRepository.Get(ctx, sessionID)
}

func (c deadlineChats) AppendMessages(ctx context.Context, sessionID string, messages ...types.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.ChatRepository.AppendMessages(ctx, sessionID, messages...)
}

func TestSendStoresFallbackTurnWhenModelHangs(t *testing.T) {
	db := memstore.New()
	user, err := db.Users().Create(context.Background(), types.User{Name: "A", Email: "a@x.com"})
	require.NoError(t, err)

	hung := ai.ModelFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	responder := ai.NewResponder(hung, discardLogger(), 10).WithCallTimeout(40 * time.Millisecond)
	svc := NewChatService(deadlineChats{db.Chats()}, db.Users(), responder, &fakeDispatcher{}, discardLogger())

	session, err := svc.Create(context.Background(), user.ID)
	require.NoError(t, err)

	// Two calls of 40ms overrun the request deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	result, err := svc.Send(ctx, user.ID, session.SessionID, "hello")
	require.NoError(t, err)
	assert.Equal(t, ai.FallbackReply, result.Reply)
	assert.Equal(t, ai.NeutralAnalysis(), result.Analysis)
	assert.True(t, result.Degraded)
	assert.Error(t, ctx.Err())

	stored, err := svc.Transcript(context.Background(), session.SessionID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 2)
	assert.Equal(t, "hello", stored.Messages[0].Content)
	assert.Equal(t, ai.FallbackReply, stored.Messages[1].Content)
}
