package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mindwell/apiserver/internal/store"
	"github.com/mindwell/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepositoryRejectsDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	users := New().Users()

	created, err := users.Create(ctx, types.User{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	_, err = users.Create(ctx, types.User{Name: "Other", Email: "ada@example.com"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	found, err := users.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = users.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSessionRepositoryExpiry(t *testing.T) {
	ctx := context.Background()
	sessions := New().Sessions()
	now := time.Now().UTC()

	_, err := sessions.Create(ctx, types.AuthSession{UserID: "u1", Token: "live", ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)
	_, err = sessions.Create(ctx, types.AuthSession{UserID: "u1", Token: "stale", ExpiresAt: now.Add(-time.Minute)})
	require.NoError(t, err)

	_, err = sessions.GetByToken(ctx, "stale")
	assert.ErrorIs(t, err, store.ErrNotFound)

	removed, err := sessions.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = sessions.GetByToken(ctx, "live")
	require.NoError(t, err)

	require.NoError(t, sessions.DeleteByToken(ctx, "live"))
	require.NoError(t, sessions.DeleteByToken(ctx, "live"))
	_, err = sessions.GetByToken(ctx, "live")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestChatRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	chats := New().Chats()

	session, err := chats.Create(ctx, types.ChatSession{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, types.ChatStatusActive, session.Status)

	require.NoError(t, chats.AppendMessages(ctx, session.SessionID,
		types.ChatMessage{Role: types.ChatRoleUser, Content: "hi"},
	))

	loaded, err := chats.Get(ctx, session.SessionID)
	require.NoError(t, err)
	loaded.Messages[0].Content = "mutated"

	again, err := chats.Get(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "hi", again.Messages[0].Content)

	err = chats.AppendMessages(ctx, "missing", types.ChatMessage{Role: types.ChatRoleUser, Content: "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestChatRepositoryConcurrentAppendsKeepPairs(t *testing.T) {
	ctx := context.Background()
	chats := New().Chats()

	session, err := chats.Create(ctx, types.ChatSession{UserID: "u1"})
	require.NoError(t, err)

	const senders = 20
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text := fmt.Sprintf("turn-%d", i)
			assert.NoError(t, chats.AppendMessages(ctx, session.SessionID,
				types.ChatMessage{Role: types.ChatRoleUser, Content: text},
				types.ChatMessage{Role: types.ChatRoleAssistant, Content: "re:" + text},
			))
		}(i)
	}
	wg.Wait()

	loaded, err := chats.Get(ctx, session.SessionID)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, senders*2)
	for i := 0; i < len(loaded.Messages); i += 2 {
		assert.Equal(t, types.ChatRoleUser, loaded.Messages[i].Role)
		assert.Equal(t, "re:"+loaded.Messages[i].Content, loaded.Messages[i+1].Content)
	}
}

func TestChatRepositoryUpdateStatusComparesPrevious(t *testing.T) {
	ctx := context.Background()
	chats := New().Chats()

	session, err := chats.Create(ctx, types.ChatSession{UserID: "u1"})
	require.NoError(t, err)

	require.NoError(t, chats.UpdateStatus(ctx, session.SessionID, types.ChatStatusActive, types.ChatStatusCompleted))
	assert.ErrorIs(t, chats.UpdateStatus(ctx, session.SessionID, types.ChatStatusActive, types.ChatStatusCompleted), store.ErrConflict)
	assert.ErrorIs(t, chats.UpdateStatus(ctx, "missing", types.ChatStatusActive, types.ChatStatusCompleted), store.ErrNotFound)

	got, err := chats.Get(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, types.ChatStatusCompleted, got.Status)
}

func TestChatRepositoryListByUserPaginates(t *testing.T) {
	ctx := context.Background()
	chats := New().Chats()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := chats.Create(ctx, types.ChatSession{UserID: "u1", StartTime: base.Add(time.Duration(i) * time.Hour)})
		require.NoError(t, err)
	}
	_, err := chats.Create(ctx, types.ChatSession{UserID: "u2"})
	require.NoError(t, err)

	page, total, err := chats.ListByUser(ctx, "u1", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.True(t, page[0].StartTime.After(page[1].StartTime))

	page, _, err = chats.ListByUser(ctx, "u1", 2, 4)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestRecommendationRepositoryLatest(t *testing.T) {
	ctx := context.Background()
	recs := New().Recommendations()

	_, err := recs.Latest(ctx, "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = recs.Create(ctx, types.RecommendationBatch{UserID: "u1", Items: []types.Recommendation{{Name: "walk"}}})
	require.NoError(t, err)
	_, err = recs.Create(ctx, types.RecommendationBatch{UserID: "u1", Items: []types.Recommendation{{Name: "read"}}})
	require.NoError(t, err)

	latest, err := recs.Latest(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "read", latest.Items[0].Name)
}
