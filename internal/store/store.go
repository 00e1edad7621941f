// Package store declares the persistence contracts shared by the session,
// user and message log backends.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/vinaeu/insights/backend/internal/model/auth"
	"github.com/vinaeu/insights/backend/internal/model/chat"
)

var (
	// ErrUnavailable wraps any failure of the underlying storage engine.
	ErrUnavailable = errors.New("store unavailable")
	// ErrNotFound is returned when a keyed record does not exist.
	ErrNotFound = errors.New("record not found")
)

// SessionStore persists session records keyed by token.
type SessionStore interface {
	PutSession(ctx context.Context, session auth.Session) error
	GetSession(ctx context.Context, token string) (auth.Session, error)
	// DeleteSession removes the record; deleting a missing token is not an error.
	DeleteSession(ctx context.Context, token string) error
}

// UserStore owns user records keyed by identity-provider principal.
type UserStore interface {
	// UpsertUser creates the user on first sight of profile.PrincipalID and
	// otherwise refreshes name, email and picture, keeping ID and CreatedAt.
	UpsertUser(ctx context.Context, profile auth.Profile, now time.Time) (auth.User, error)
	GetUser(ctx context.Context, id string) (auth.User, error)
}

// MessageLog is an append-only per-user conversation log.
type MessageLog interface {
	AppendMessage(ctx context.Context, message chat.Message) (chat.Message, error)
	// AppendTurn stores a question and its answer atomically: either both
	// entries become visible or neither does.
	AppendTurn(ctx context.Context, question, answer chat.Message) (chat.Message, chat.Message, error)
	// ListRecent returns up to limit messages for userID, newest first.
	ListRecent(ctx context.Context, userID string, limit int) ([]chat.Message, error)
}

// Store bundles every backend contract; each driver implements all of them.
type Store interface {
	SessionStore
	UserStore
	MessageLog
	Close() error
}
