package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	authmodel "github.com/vinaeu/insights/backend/internal/model/auth"
	"github.com/vinaeu/insights/backend/internal/service/auth"
	"github.com/vinaeu/insights/backend/internal/store"
	"github.com/vinaeu/insights/backend/internal/store/memory"
)

type fakeProvider struct {
	profiles map[string]authmodel.Profile
}

func (p *fakeProvider) Verify(_ context.Context, externalID string) (authmodel.Profile, error) {
	profile, ok := p.profiles[externalID]
	if !ok {
		return authmodel.Profile{}, errors.New("rejected")
	}
	return profile, nil
}

func newProvider() *fakeProvider {
	return &fakeProvider{profiles: map[string]authmodel.Profile{
		"ext-ada":   {PrincipalID: "p-ada", Name: "Ada", Email: "ada@example.com"},
		"ext-ada-2": {PrincipalID: "p-ada", Name: "Ada Lovelace", Email: "ada@example.com"},
		"ext-bob":   {PrincipalID: "p-bob", Name: "Bob", Email: "bob@example.com"},
	}}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func token(t string) auth.CredentialSource {
	return auth.TokenFunc(func() (string, bool) { return t, true })
}

var noToken = auth.TokenFunc(func() (string, bool) { return "", false })

func setup() (*auth.Service, *memory.Store, *clock) {
	st := memory.New()
	c := &clock{now: time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)}
	return auth.NewService(newProvider(), st, st, auth.WithClock(c.Now)), st, c
}

func TestExchangeCreatesSessionWithFixedExpiry(t *testing.T) {
	svc, st, c := setup()
	ctx := context.Background()

	result, err := svc.Exchange(ctx, "ext-ada")
	if err != nil {
		t.Fatalf("Exchange err: %v", err)
	}
	if result.Session.Token == "" {
		t.Fatal("expected a session token")
	}
	if !result.Session.CreatedAt.Equal(c.Now()) {
		t.Fatalf("unexpected created_at: %v", result.Session.CreatedAt)
	}
	if want := c.Now().Add(7 * 24 * time.Hour); !result.Session.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", result.Session.ExpiresAt, want)
	}
	if result.Session.UserID != result.User.ID {
		t.Fatalf("session bound to %s, user is %s", result.Session.UserID, result.User.ID)
	}

	stored, err := st.GetSession(ctx, result.Session.Token)
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if stored.UserID != result.User.ID {
		t.Fatalf("stored session bound to %s", stored.UserID)
	}
}

func TestExchangeReusesUserForSamePrincipal(t *testing.T) {
	svc, _, _ := setup()
	ctx := context.Background()

	first, err := svc.Exchange(ctx, "ext-ada")
	if err != nil {
		t.Fatalf("Exchange err: %v", err)
	}
	second, err := svc.Exchange(ctx, "ext-ada-2")
	if err != nil {
		t.Fatalf("Exchange err: %v", err)
	}

	if first.User.ID != second.User.ID {
		t.Fatalf("expected same user id, got %s and %s", first.User.ID, second.User.ID)
	}
	if second.User.Name != "Ada Lovelace" {
		t.Fatalf("profile not refreshed: %q", second.User.Name)
	}
	if first.Session.Token == second.Session.Token {
		t.Fatal("each exchange must mint a new token")
	}

	// Both sessions stay valid: multi-device logins are allowed.
	for _, tok := range []string{first.Session.Token, second.Session.Token} {
		if _, err := svc.Resolve(ctx, token(tok)); err != nil {
			t.Fatalf("Resolve(%s) err: %v", tok, err)
		}
	}
}

func TestExchangeRejectsEmptyID(t *testing.T) {
	svc, _, _ := setup()
	if _, err := svc.Exchange(context.Background(), "  "); !errors.Is(err, auth.ErrInvalidSessionID) {
		t.Fatalf("expected ErrInvalidSessionID, got %v", err)
	}
}

func TestExchangeProviderFailure(t *testing.T) {
	svc, _, _ := setup()
	if _, err := svc.Exchange(context.Background(), "unknown"); !errors.Is(err, auth.ErrIdentityProvider) {
		t.Fatalf("expected ErrIdentityProvider, got %v", err)
	}
}

type failingSessions struct{ store.SessionStore }

func (failingSessions) PutSession(context.Context, authmodel.Session) error {
	return store.ErrUnavailable
}

func TestExchangeStoreUnavailable(t *testing.T) {
	st := memory.New()
	svc := auth.NewService(newProvider(), failingSessions{st}, st)

	_, err := svc.Exchange(context.Background(), "ext-ada")
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestResolveAfterExchange(t *testing.T) {
	svc, _, _ := setup()
	ctx := context.Background()

	result, err := svc.Exchange(ctx, "ext-bob")
	if err != nil {
		t.Fatalf("Exchange err: %v", err)
	}

	user, err := svc.Resolve(ctx, token(result.Session.Token))
	if err != nil {
		t.Fatalf("Resolve err: %v", err)
	}
	if user.ID != result.User.ID || user.Name != "Bob" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestResolveWithoutToken(t *testing.T) {
	svc, _, _ := setup()
	if _, err := svc.Resolve(context.Background(), noToken); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestResolveUnknownToken(t *testing.T) {
	svc, _, _ := setup()
	if _, err := svc.Resolve(context.Background(), token("nope")); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestResolveExpiredSession(t *testing.T) {
	svc, st, c := setup()
	ctx := context.Background()

	result, err := svc.Exchange(ctx, "ext-ada")
	if err != nil {
		t.Fatalf("Exchange err: %v", err)
	}

	c.Advance(authmodel.SessionTTL - time.Second)
	if _, err := svc.Resolve(ctx, token(result.Session.Token)); err != nil {
		t.Fatalf("session should still be valid: %v", err)
	}

	// Expiry is inclusive: a session is dead at its expiry instant.
	c.Advance(time.Second)
	if _, err := svc.Resolve(ctx, token(result.Session.Token)); !errors.Is(err, auth.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}

	if _, err := st.GetSession(ctx, result.Session.Token); err != nil {
		t.Fatalf("resolver must not delete expired sessions: %v", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	svc, _, _ := setup()
	ctx := context.Background()

	result, err := svc.Exchange(ctx, "ext-ada")
	if err != nil {
		t.Fatalf("Exchange err: %v", err)
	}

	svc.Revoke(ctx, token(result.Session.Token))
	if _, err := svc.Resolve(ctx, token(result.Session.Token)); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after revoke, got %v", err)
	}

	svc.Revoke(ctx, token(result.Session.Token))
	svc.Revoke(ctx, noToken)
}

func TestConcurrentExchangeSameExternalID(t *testing.T) {
	svc, _, _ := setup()
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]auth.Result, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Exchange(ctx, "ext-ada")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Exchange #%d err: %v", i, err)
		}
	}
	if results[0].Session.Token == results[1].Session.Token {
		t.Fatal("expected distinct tokens")
	}
	if results[0].User.ID != results[1].User.ID {
		t.Fatalf("expected one user, got %s and %s", results[0].User.ID, results[1].User.ID)
	}
	for _, r := range results {
		user, err := svc.Resolve(ctx, token(r.Session.Token))
		if err != nil {
			t.Fatalf("Resolve err: %v", err)
		}
		if user.ID != r.User.ID {
			t.Fatalf("token resolved to %s, want %s", user.ID, r.User.ID)
		}
	}
}
