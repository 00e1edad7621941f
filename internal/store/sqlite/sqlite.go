// Package sqlite implements store.Store on a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vinaeu/insights/backend/internal/model/auth"
	"github.com/vinaeu/insights/backend/internal/model/chat"
	"github.com/vinaeu/insights/backend/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	principal_id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	picture TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	token TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	confidence INTEGER,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_user_time
	ON chat_messages (user_id, created_at DESC, seq DESC);
`

// Store is a SQLite-backed store.Store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serialises writers; a single connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", store.ErrUnavailable, op, err)
}

// PutSession inserts or replaces a session row.
func (s *Store) PutSession(ctx context.Context, session auth.Session) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		session.Token, session.UserID, session.CreatedAt.UnixNano(), session.ExpiresAt.UnixNano(),
	)
	if err != nil {
		return unavailable("put session", err)
	}
	return nil
}

// GetSession loads a session by token.
func (s *Store) GetSession(ctx context.Context, token string) (auth.Session, error) {
	var created, expires int64
	session := auth.Session{Token: token}
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, created_at, expires_at FROM sessions WHERE token = ?", token,
	).Scan(&session.UserID, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Session{}, store.ErrNotFound
	}
	if err != nil {
		return auth.Session{}, unavailable("get session", err)
	}
	session.CreatedAt = time.Unix(0, created).UTC()
	session.ExpiresAt = time.Unix(0, expires).UTC()
	return session, nil
}

// DeleteSession removes a session row if present.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token); err != nil {
		return unavailable("delete session", err)
	}
	return nil
}

// UpsertUser creates or refreshes the user bound to profile.PrincipalID in a
// single statement, so concurrent logins of one principal share one id.
func (s *Store) UpsertUser(ctx context.Context, profile auth.Profile, now time.Time) (auth.User, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, principal_id, name, email, picture, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (principal_id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			picture = excluded.picture`,
		uuid.NewString(), profile.PrincipalID, profile.Name, profile.Email, profile.Picture, now.UTC().UnixNano(),
	)
	if err != nil {
		return auth.User{}, unavailable("upsert user", err)
	}

	user, err := s.scanUser(s.db.QueryRowContext(ctx,
		"SELECT id, principal_id, name, email, picture, created_at FROM users WHERE principal_id = ?",
		profile.PrincipalID,
	))
	if err != nil {
		return auth.User{}, err
	}
	return user, nil
}

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		"SELECT id, principal_id, name, email, picture, created_at FROM users WHERE id = ?", id,
	))
}

func (s *Store) scanUser(row *sql.Row) (auth.User, error) {
	var user auth.User
	var created int64
	err := row.Scan(&user.ID, &user.PrincipalID, &user.Name, &user.Email, &user.Picture, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, store.ErrNotFound
	}
	if err != nil {
		return auth.User{}, unavailable("get user", err)
	}
	user.CreatedAt = time.Unix(0, created).UTC()
	return user, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMessage(ctx context.Context, db execer, message chat.Message) (chat.Message, error) {
	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	var confidence sql.NullInt64
	if message.Confidence != nil {
		confidence = sql.NullInt64{Int64: int64(*message.Confidence), Valid: true}
	}

	_, err := db.ExecContext(ctx,
		"INSERT INTO chat_messages (id, user_id, role, content, confidence, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		message.ID, message.UserID, message.Role, message.Content, confidence, message.CreatedAt.UnixNano(),
	)
	if err != nil {
		return chat.Message{}, err
	}
	return message, nil
}

// AppendMessage inserts message into the log.
func (s *Store) AppendMessage(ctx context.Context, message chat.Message) (chat.Message, error) {
	stored, err := insertMessage(ctx, s.db, message)
	if err != nil {
		return chat.Message{}, unavailable("append message", err)
	}
	return stored, nil
}

// AppendTurn inserts question and answer in one transaction.
func (s *Store) AppendTurn(ctx context.Context, question, answer chat.Message) (chat.Message, chat.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return chat.Message{}, chat.Message{}, unavailable("begin turn", err)
	}
	defer tx.Rollback()

	storedQuestion, err := insertMessage(ctx, tx, question)
	if err != nil {
		return chat.Message{}, chat.Message{}, unavailable("append question", err)
	}
	storedAnswer, err := insertMessage(ctx, tx, answer)
	if err != nil {
		return chat.Message{}, chat.Message{}, unavailable("append answer", err)
	}
	if err := tx.Commit(); err != nil {
		return chat.Message{}, chat.Message{}, unavailable("commit turn", err)
	}
	return storedQuestion, storedAnswer, nil
}

// ListRecent returns up to limit messages for userID, newest first.
func (s *Store) ListRecent(ctx context.Context, userID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, role, content, confidence, created_at
		FROM chat_messages
		WHERE user_id = ?
		ORDER BY created_at DESC, seq DESC
		LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, unavailable("list messages", err)
	}
	defer rows.Close()

	messages := []chat.Message{}
	for rows.Next() {
		var msg chat.Message
		var confidence sql.NullInt64
		var created int64
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.Role, &msg.Content, &confidence, &created); err != nil {
			return nil, unavailable("scan message", err)
		}
		if confidence.Valid {
			c := int(confidence.Int64)
			msg.Confidence = &c
		}
		msg.CreatedAt = time.Unix(0, created).UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list messages", err)
	}
	return messages, nil
}
