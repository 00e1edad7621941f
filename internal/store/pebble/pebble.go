// Package pebble implements store.Store on an embedded Pebble key-value
// database.
//
// Key layout:
//
//	session:<token>                      session record
//	user:<id>                            user record
//	principal:<principal id>             user id
//	msg:<user id>:<unix nano>-<seq>      chat message
package pebble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/vinaeu/insights/backend/internal/model/auth"
	"github.com/vinaeu/insights/backend/internal/model/chat"
	"github.com/vinaeu/insights/backend/internal/store"
)

// Store is a Pebble-backed store.Store.
type Store struct {
	db *pebble.DB

	// userMu serialises the read-modify-write of UpsertUser.
	userMu sync.Mutex
	seq    atomic.Uint64
}

var _ store.Store = (*Store)(nil)

type sessionRecord struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type userRecord struct {
	ID          string    `json:"id"`
	PrincipalID string    `json:"principal_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Picture     string    `json:"picture"`
	CreatedAt   time.Time `json:"created_at"`
}

// Open opens (or creates) a Pebble database in dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", store.ErrUnavailable, op, err)
}

func sessionKey(token string) []byte    { return []byte("session:" + token) }
func userKey(id string) []byte          { return []byte("user:" + id) }
func principalKey(id string) []byte     { return []byte("principal:" + id) }
func messagePrefix(userID string) []byte { return []byte("msg:" + userID + ":") }

// get copies the value for key; pebble.ErrNotFound maps to store.ErrNotFound.
func (s *Store) get(key []byte, op string) ([]byte, error) {
	v, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

// PutSession stores or replaces a session.
func (s *Store) PutSession(_ context.Context, session auth.Session) error {
	data, err := json.Marshal(sessionRecord{
		UserID:    session.UserID,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.db.Set(sessionKey(session.Token), data, pebble.Sync); err != nil {
		return unavailable("put session", err)
	}
	return nil
}

// GetSession loads a session by token.
func (s *Store) GetSession(_ context.Context, token string) (auth.Session, error) {
	data, err := s.get(sessionKey(token), "get session")
	if err != nil {
		return auth.Session{}, err
	}
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return auth.Session{}, unavailable("decode session", err)
	}
	return auth.Session{
		Token:     token,
		UserID:    rec.UserID,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// DeleteSession removes a session; Pebble deletes of absent keys succeed.
func (s *Store) DeleteSession(_ context.Context, token string) error {
	if err := s.db.Delete(sessionKey(token), pebble.Sync); err != nil {
		return unavailable("delete session", err)
	}
	return nil
}

// UpsertUser creates or refreshes the user bound to profile.PrincipalID.
func (s *Store) UpsertUser(_ context.Context, profile auth.Profile, now time.Time) (auth.User, error) {
	s.userMu.Lock()
	defer s.userMu.Unlock()

	var rec userRecord
	id, err := s.get(principalKey(profile.PrincipalID), "get principal")
	switch {
	case err == nil:
		data, err := s.get(userKey(string(id)), "get user")
		if err != nil {
			return auth.User{}, err
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return auth.User{}, unavailable("decode user", err)
		}
	case errors.Is(err, store.ErrNotFound):
		rec = userRecord{
			ID:          uuid.NewString(),
			PrincipalID: profile.PrincipalID,
			CreatedAt:   now.UTC(),
		}
	default:
		return auth.User{}, err
	}

	rec.Name = profile.Name
	rec.Email = profile.Email
	rec.Picture = profile.Picture

	data, err := json.Marshal(rec)
	if err != nil {
		return auth.User{}, fmt.Errorf("marshal user: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(userKey(rec.ID), data, nil); err != nil {
		return auth.User{}, unavailable("upsert user", err)
	}
	if err := batch.Set(principalKey(rec.PrincipalID), []byte(rec.ID), nil); err != nil {
		return auth.User{}, unavailable("upsert user", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return auth.User{}, unavailable("upsert user", err)
	}
	return rec.toUser(), nil
}

// GetUser loads a user by id.
func (s *Store) GetUser(_ context.Context, id string) (auth.User, error) {
	data, err := s.get(userKey(id), "get user")
	if err != nil {
		return auth.User{}, err
	}
	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return auth.User{}, unavailable("decode user", err)
	}
	return rec.toUser(), nil
}

func (r userRecord) toUser() auth.User {
	return auth.User{
		ID:          r.ID,
		PrincipalID: r.PrincipalID,
		Name:        r.Name,
		Email:       r.Email,
		Picture:     r.Picture,
		CreatedAt:   r.CreatedAt,
	}
}

// encodeMessage assigns the id and returns the time-sortable key and value.
func (s *Store) encodeMessage(message chat.Message) (chat.Message, []byte, []byte, error) {
	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(message)
	if err != nil {
		return chat.Message{}, nil, nil, fmt.Errorf("marshal message: %w", err)
	}

	key := fmt.Sprintf("%s%020d-%06d", messagePrefix(message.UserID), message.CreatedAt.UnixNano(), s.seq.Add(1)%1000000)
	return message, []byte(key), data, nil
}

// AppendMessage writes message under a time-sortable key.
func (s *Store) AppendMessage(_ context.Context, message chat.Message) (chat.Message, error) {
	message, key, data, err := s.encodeMessage(message)
	if err != nil {
		return chat.Message{}, err
	}
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return chat.Message{}, unavailable("append message", err)
	}
	return message, nil
}

// AppendTurn writes question and answer in one batch.
func (s *Store) AppendTurn(_ context.Context, question, answer chat.Message) (chat.Message, chat.Message, error) {
	question, questionKey, questionData, err := s.encodeMessage(question)
	if err != nil {
		return chat.Message{}, chat.Message{}, err
	}
	answer, answerKey, answerData, err := s.encodeMessage(answer)
	if err != nil {
		return chat.Message{}, chat.Message{}, err
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(questionKey, questionData, nil); err != nil {
		return chat.Message{}, chat.Message{}, unavailable("append question", err)
	}
	if err := batch.Set(answerKey, answerData, nil); err != nil {
		return chat.Message{}, chat.Message{}, unavailable("append answer", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return chat.Message{}, chat.Message{}, unavailable("commit turn", err)
	}
	return question, answer, nil
}

// ListRecent walks the user's key range backwards.
func (s *Store) ListRecent(_ context.Context, userID string, limit int) ([]chat.Message, error) {
	prefix := messagePrefix(userID)
	upper := append([]byte(nil), prefix...)
	upper[len(upper)-1]++

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return nil, unavailable("list messages", err)
	}
	defer iter.Close()

	messages := []chat.Message{}
	for valid := iter.Last(); valid; valid = iter.Prev() {
		var msg chat.Message
		if err := json.Unmarshal(iter.Value(), &msg); err != nil {
			return nil, unavailable("decode message", err)
		}
		messages = append(messages, msg)
		if limit > 0 && len(messages) >= limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, unavailable("list messages", err)
	}
	return messages, nil
}
