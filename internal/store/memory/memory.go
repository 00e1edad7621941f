// Package memory implements store.Store with in-process maps, suitable for
// development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vinaeu/insights/backend/internal/model/auth"
	"github.com/vinaeu/insights/backend/internal/model/chat"
	"github.com/vinaeu/insights/backend/internal/store"
)

// Store keeps sessions, users and messages in memory.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]auth.Session
	users       map[string]auth.User
	byPrincipal map[string]string
	messages    map[string][]chat.Message
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		sessions:    make(map[string]auth.Session),
		users:       make(map[string]auth.User),
		byPrincipal: make(map[string]string),
		messages:    make(map[string][]chat.Message),
	}
}

// PutSession stores or replaces a session.
func (s *Store) PutSession(_ context.Context, session auth.Session) error {
	s.mu.Lock()
	s.sessions[session.Token] = session
	s.mu.Unlock()
	return nil
}

// GetSession looks up a session by token.
func (s *Store) GetSession(_ context.Context, token string) (auth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[token]
	if !ok {
		return auth.Session{}, store.ErrNotFound
	}
	return session, nil
}

// DeleteSession removes a session if present.
func (s *Store) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}

// UpsertUser creates or refreshes the user bound to profile.PrincipalID.
func (s *Store) UpsertUser(_ context.Context, profile auth.Profile, now time.Time) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byPrincipal[profile.PrincipalID]; ok {
		user := s.users[id]
		user.Name = profile.Name
		user.Email = profile.Email
		user.Picture = profile.Picture
		s.users[id] = user
		return user, nil
	}

	user := auth.User{
		ID:          uuid.NewString(),
		PrincipalID: profile.PrincipalID,
		Name:        profile.Name,
		Email:       profile.Email,
		Picture:     profile.Picture,
		CreatedAt:   now.UTC(),
	}
	s.users[user.ID] = user
	s.byPrincipal[profile.PrincipalID] = user.ID
	return user, nil
}

// GetUser looks up a user by id.
func (s *Store) GetUser(_ context.Context, id string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return auth.User{}, store.ErrNotFound
	}
	return user, nil
}

func stamp(message chat.Message) chat.Message {
	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	return message
}

// AppendMessage adds message to the owner's log.
func (s *Store) AppendMessage(_ context.Context, message chat.Message) (chat.Message, error) {
	message = stamp(message)

	s.mu.Lock()
	s.messages[message.UserID] = append(s.messages[message.UserID], message)
	s.mu.Unlock()
	return message, nil
}

// AppendTurn adds both messages under a single lock.
func (s *Store) AppendTurn(_ context.Context, question, answer chat.Message) (chat.Message, chat.Message, error) {
	question, answer = stamp(question), stamp(answer)

	s.mu.Lock()
	s.messages[question.UserID] = append(s.messages[question.UserID], question)
	s.messages[answer.UserID] = append(s.messages[answer.UserID], answer)
	s.mu.Unlock()
	return question, answer, nil
}

// ListRecent returns up to limit messages for userID, newest first.
func (s *Store) ListRecent(_ context.Context, userID string, limit int) ([]chat.Message, error) {
	s.mu.RLock()
	log := s.messages[userID]
	copied := make([]chat.Message, len(log))
	copy(copied, log)
	s.mu.RUnlock()

	// Stable on append order so equal timestamps keep insertion order reversed.
	sort.SliceStable(copied, func(i, j int) bool {
		return copied[i].CreatedAt.Before(copied[j].CreatedAt)
	})
	for i, j := 0, len(copied)-1; i < j; i, j = i+1, j-1 {
		copied[i], copied[j] = copied[j], copied[i]
	}

	if limit > 0 && len(copied) > limit {
		copied = copied[:limit]
	}
	return copied, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
