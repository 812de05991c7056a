// Package memstore provides in-memory repositories with the same behavior as
// the Postgres repositories in package store. Values are copied on the way in
// and out so callers never share state with the store.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mindwell/apiserver/internal/store"
	"github.com/mindwell/apiserver/types"
)

// Store holds every collection behind a single lock.
type Store struct {
	mu              sync.Mutex
	users           map[string]types.User
	sessions        map[string]types.AuthSession
	moods           []types.MoodEntry
	activities      []types.ActivityEntry
	chats           map[string]types.ChatSession
	recommendations []types.RecommendationBatch
	now             func() time.Time
}

func New() *Store {
	return &Store{
		users:    make(map[string]types.User),
		sessions: make(map[string]types.AuthSession),
		chats:    make(map[string]types.ChatSession),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Users() *UserRepository                     { return &UserRepository{s: s} }
func (s *Store) Sessions() *SessionRepository               { return &SessionRepository{s: s} }
func (s *Store) Moods() *MoodRepository                     { return &MoodRepository{s: s} }
func (s *Store) Activities() *ActivityRepository            { return &ActivityRepository{s: s} }
func (s *Store) Chats() *ChatRepository                     { return &ChatRepository{s: s} }
func (s *Store) Recommendations() *RecommendationRepository { return &RecommendationRepository{s: s} }

type UserRepository struct{ s *Store }

func (r *UserRepository) GetByID(_ context.Context, id string) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, user := range r.s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *UserRepository) Create(_ context.Context, user types.User) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return types.User{}, store.ErrDuplicate
		}
	}
	now := r.s.now()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.s.users[user.ID] = user
	return user, nil
}

type SessionRepository struct{ s *Store }

func (r *SessionRepository) Create(_ context.Context, session types.AuthSession) (types.AuthSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.sessions[session.Token]; exists {
		return types.AuthSession{}, store.ErrDuplicate
	}
	now := r.s.now()
	session.ID = uuid.NewString()
	session.CreatedAt = now
	if session.LastActive.IsZero() {
		session.LastActive = now
	}
	r.s.sessions[session.Token] = session
	return session, nil
}

func (r *SessionRepository) GetByToken(_ context.Context, token string) (types.AuthSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	session, ok := r.s.sessions[token]
	if !ok || session.Expired(r.s.now()) {
		return types.AuthSession{}, store.ErrNotFound
	}
	return session, nil
}

func (r *SessionRepository) DeleteByToken(_ context.Context, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.sessions, token)
	return nil
}

func (r *SessionRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var removed int64
	for token, session := range r.s.sessions {
		if session.Expired(now) {
			delete(r.s.sessions, token)
			removed++
		}
	}
	return removed, nil
}

type MoodRepository struct{ s *Store }

func (r *MoodRepository) Create(_ context.Context, entry types.MoodEntry) (types.MoodEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	entry.ID = uuid.NewString()
	entry.CreatedAt = r.s.now()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = entry.CreatedAt
	}
	entry.Activities = append([]string(nil), entry.Activities...)
	r.s.moods = append(r.s.moods, entry)
	return entry, nil
}

func (r *MoodRepository) ListByUser(_ context.Context, userID string, limit int) ([]types.MoodEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if limit < 1 {
		limit = 20
	}
	entries := []types.MoodEntry{}
	for i := len(r.s.moods) - 1; i >= 0 && len(entries) < limit; i-- {
		if r.s.moods[i].UserID == userID {
			entries = append(entries, r.s.moods[i])
		}
	}
	return entries, nil
}

type ActivityRepository struct{ s *Store }

func (r *ActivityRepository) Create(_ context.Context, entry types.ActivityEntry) (types.ActivityEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	entry.ID = uuid.NewString()
	entry.CreatedAt = r.s.now()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = entry.CreatedAt
	}
	r.s.activities = append(r.s.activities, entry)
	return entry, nil
}

func (r *ActivityRepository) CountByUser(_ context.Context, userID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	total := 0
	for _, entry := range r.s.activities {
		if entry.UserID == userID {
			total++
		}
	}
	return total, nil
}

type ChatRepository struct{ s *Store }

func (r *ChatRepository) Create(_ context.Context, session types.ChatSession) (types.ChatSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	if session.SessionID == "" {
		session.SessionID = uuid.NewString()
	}
	if _, exists := r.s.chats[session.SessionID]; exists {
		return types.ChatSession{}, store.ErrDuplicate
	}
	if session.Status == "" {
		session.Status = types.ChatStatusActive
	}
	if session.StartTime.IsZero() {
		session.StartTime = now
	}
	session.CreatedAt = now
	session.UpdatedAt = now
	session.Messages = []types.ChatMessage{}
	r.s.chats[session.SessionID] = session
	return copySession(session), nil
}

func (r *ChatRepository) Get(_ context.Context, sessionID string) (types.ChatSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	session, ok := r.s.chats[sessionID]
	if !ok {
		return types.ChatSession{}, store.ErrNotFound
	}
	return copySession(session), nil
}

func (r *ChatRepository) ListByUser(_ context.Context, userID string, limit, offset int) ([]types.ChatSession, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	owned := []types.ChatSession{}
	for _, session := range r.s.chats {
		if session.UserID == userID {
			session.Messages = nil
			owned = append(owned, session)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].StartTime.After(owned[j].StartTime)
	})

	total := len(owned)
	if offset >= total {
		return []types.ChatSession{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return owned[offset:end], total, nil
}

func (r *ChatRepository) AppendMessages(_ context.Context, sessionID string, messages ...types.ChatMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	session, ok := r.s.chats[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	if len(messages) == 0 {
		return nil
	}
	for _, msg := range messages {
		if msg.Timestamp.IsZero() {
			msg.Timestamp = r.s.now()
		}
		session.Messages = append(session.Messages, msg)
		session.UpdatedAt = msg.Timestamp
	}
	r.s.chats[sessionID] = session
	return nil
}

func (r *ChatRepository) UpdateStatus(_ context.Context, sessionID string, from, to types.ChatStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	session, ok := r.s.chats[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	if session.Status != from {
		return store.ErrConflict
	}
	session.Status = to
	session.UpdatedAt = r.s.now()
	r.s.chats[sessionID] = session
	return nil
}

type RecommendationRepository struct{ s *Store }

func (r *RecommendationRepository) Create(_ context.Context, batch types.RecommendationBatch) (types.RecommendationBatch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	batch.ID = uuid.NewString()
	batch.CreatedAt = r.s.now()
	if batch.Items == nil {
		batch.Items = []types.Recommendation{}
	}
	batch.Items = append([]types.Recommendation(nil), batch.Items...)
	r.s.recommendations = append(r.s.recommendations, batch)
	return batch, nil
}

func (r *RecommendationRepository) Latest(_ context.Context, userID string) (types.RecommendationBatch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for i := len(r.s.recommendations) - 1; i >= 0; i-- {
		if r.s.recommendations[i].UserID == userID {
			return r.s.recommendations[i], nil
		}
	}
	return types.RecommendationBatch{}, store.ErrNotFound
}

func copySession(session types.ChatSession) types.ChatSession {
	session.Messages = append([]types.ChatMessage{}, session.Messages...)
	return session
}
