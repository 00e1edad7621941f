// Package auth exchanges identity-provider session ids for local session
// tokens and resolves those tokens back to users.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	authmodel "github.com/vinaeu/insights/backend/internal/model/auth"
	"github.com/vinaeu/insights/backend/internal/store"
	"github.com/vinaeu/insights/backend/internal/telemetry"
)

var (
	ErrInvalidSessionID = errors.New("session id is required")
	ErrIdentityProvider = errors.New("identity provider verification failed")
	ErrUnauthenticated  = errors.New("no session credential presented")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExpired   = errors.New("session expired")
)

// Provider verifies an external session id and returns the principal.
type Provider interface {
	Verify(ctx context.Context, externalID string) (authmodel.Profile, error)
}

// CredentialSource yields the session token carried by a request, if any.
type CredentialSource interface {
	Token() (string, bool)
}

// TokenFunc adapts a function to CredentialSource.
type TokenFunc func() (string, bool)

func (f TokenFunc) Token() (string, bool) { return f() }

// Result is the outcome of a successful Exchange.
type Result struct {
	User    authmodel.User
	Session authmodel.Session
}

// Service implements login, session resolution and logout.
type Service struct {
	provider Provider
	sessions store.SessionStore
	users    store.UserStore
	now      func() time.Time
	newToken func() (string, error)
	logger   *slog.Logger
	metrics  *telemetry.Metrics
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService wires the service to its collaborators.
func NewService(provider Provider, sessions store.SessionStore, users store.UserStore, opts ...Option) *Service {
	s := &Service{
		provider: provider,
		sessions: sessions,
		users:    users,
		now:      time.Now,
		newToken: newToken,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newToken returns 32 bytes of crypto/rand entropy, base64url encoded.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Exchange verifies externalID with the identity provider, upserts the user
// and mints a new session. Every successful call creates exactly one session;
// existing sessions of the user are left untouched.
func (s *Service) Exchange(ctx context.Context, externalID string) (Result, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		s.metrics.ObserveExchange("invalid")
		return Result{}, ErrInvalidSessionID
	}

	profile, err := s.provider.Verify(ctx, externalID)
	if err != nil {
		s.metrics.ObserveExchange("provider_error")
		s.logger.Warn("identity verification failed", "error", err)
		return Result{}, fmt.Errorf("%w: %w", ErrIdentityProvider, err)
	}

	now := s.now().UTC()
	user, err := s.users.UpsertUser(ctx, profile, now)
	if err != nil {
		s.metrics.ObserveExchange("store_error")
		return Result{}, fmt.Errorf("upsert user: %w", err)
	}

	token, err := s.newToken()
	if err != nil {
		s.metrics.ObserveExchange("token_error")
		return Result{}, fmt.Errorf("generate session token: %w", err)
	}

	session := authmodel.Session{
		Token:     token,
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(authmodel.SessionTTL),
	}
	if err := s.sessions.PutSession(ctx, session); err != nil {
		s.metrics.ObserveExchange("store_error")
		return Result{}, fmt.Errorf("persist session: %w", err)
	}

	s.metrics.ObserveExchange("ok")
	s.logger.Info("session created", "user_id", user.ID, "expires_at", session.ExpiresAt)
	return Result{User: user, Session: session}, nil
}

// Resolve returns the user owning the presented session token. It never
// mutates the session: expiry is a fixed window checked lazily here.
func (s *Service) Resolve(ctx context.Context, creds CredentialSource) (authmodel.User, error) {
	token, ok := creds.Token()
	if !ok || token == "" {
		s.metrics.ObserveResolution("unauthenticated")
		return authmodel.User{}, ErrUnauthenticated
	}

	session, err := s.sessions.GetSession(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		s.metrics.ObserveResolution("not_found")
		return authmodel.User{}, ErrSessionNotFound
	}
	if err != nil {
		s.metrics.ObserveResolution("store_error")
		return authmodel.User{}, fmt.Errorf("load session: %w", err)
	}

	if session.Expired(s.now()) {
		s.metrics.ObserveResolution("expired")
		s.logger.Debug("session rejected", "reason", "expired", "user_id", session.UserID)
		return authmodel.User{}, ErrSessionExpired
	}

	user, err := s.users.GetUser(ctx, session.UserID)
	if errors.Is(err, store.ErrNotFound) {
		s.metrics.ObserveResolution("not_found")
		s.logger.Warn("session references unknown user", "user_id", session.UserID)
		return authmodel.User{}, ErrSessionNotFound
	}
	if err != nil {
		s.metrics.ObserveResolution("store_error")
		return authmodel.User{}, fmt.Errorf("load user: %w", err)
	}

	s.metrics.ObserveResolution("ok")
	return user, nil
}

// Revoke deletes the presented session, if any. It always succeeds from the
// caller's point of view; store failures are only logged.
func (s *Service) Revoke(ctx context.Context, creds CredentialSource) {
	token, ok := creds.Token()
	if !ok || token == "" {
		return
	}
	if err := s.sessions.DeleteSession(ctx, token); err != nil {
		s.logger.Error("failed to delete session", "error", err)
	}
}
