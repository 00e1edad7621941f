// Package storetest holds behaviour checks every store.Store driver must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vinaeu/insights/backend/internal/model/auth"
	"github.com/vinaeu/insights/backend/internal/model/chat"
	"github.com/vinaeu/insights/backend/internal/store"
)

// Run exercises a driver. newStore must return an empty store; Run closes it.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("SessionRoundTrip", func(t *testing.T) { testSessionRoundTrip(t, newStore(t)) })
	t.Run("DeleteSessionIdempotent", func(t *testing.T) { testDeleteSessionIdempotent(t, newStore(t)) })
	t.Run("UpsertUserKeepsIdentity", func(t *testing.T) { testUpsertUserKeepsIdentity(t, newStore(t)) })
	t.Run("UpsertUserConcurrent", func(t *testing.T) { testUpsertUserConcurrent(t, newStore(t)) })
	t.Run("GetUserMissing", func(t *testing.T) { testGetUserMissing(t, newStore(t)) })
	t.Run("ListRecentNewestFirst", func(t *testing.T) { testListRecentNewestFirst(t, newStore(t)) })
	t.Run("ListRecentIsolatesUsers", func(t *testing.T) { testListRecentIsolatesUsers(t, newStore(t)) })
	t.Run("AppendTurnStoresPair", func(t *testing.T) { testAppendTurnStoresPair(t, newStore(t)) })
}

var base = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func testSessionRoundTrip(t *testing.T, st store.Store) {
	defer st.Close()
	ctx := context.Background()

	session := auth.Session{
		Token:     "tok-1",
		UserID:    "user-1",
		CreatedAt: base,
		ExpiresAt: base.Add(auth.SessionTTL),
	}
	if err := st.PutSession(ctx, session); err != nil {
		t.Fatalf("PutSession err: %v", err)
	}

	got, err := st.GetSession(ctx, "tok-1")
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}
	if got.Token != "tok-1" || got.UserID != "user-1" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if !got.CreatedAt.Equal(session.CreatedAt) || !got.ExpiresAt.Equal(session.ExpiresAt) {
		t.Fatalf("timestamps not preserved: got %v/%v", got.CreatedAt, got.ExpiresAt)
	}

	if _, err := st.GetSession(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testDeleteSessionIdempotent(t *testing.T, st store.Store) {
	defer st.Close()
	ctx := context.Background()

	if err := st.PutSession(ctx, auth.Session{Token: "tok", UserID: "u", CreatedAt: base, ExpiresAt: base.Add(time.Hour)}); err != nil {
		t.Fatalf("PutSession err: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := st.DeleteSession(ctx, "tok"); err != nil {
			t.Fatalf("DeleteSession #%d err: %v", i+1, err)
		}
	}
	if _, err := st.GetSession(ctx, "tok"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func testUpsertUserKeepsIdentity(t *testing.T, st store.Store) {
	defer st.Close()
	ctx := context.Background()

	first, err := st.UpsertUser(ctx, auth.Profile{PrincipalID: "p-1", Name: "Ada", Email: "ada@example.com"}, base)
	if err != nil {
		t.Fatalf("UpsertUser err: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected generated user id")
	}

	second, err := st.UpsertUser(ctx, auth.Profile{PrincipalID: "p-1", Name: "Ada L.", Email: "ada@example.org", Picture: "pic"}, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("UpsertUser err: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("user id changed: %s -> %s", first.ID, second.ID)
	}
	if !second.CreatedAt.Equal(base) {
		t.Fatalf("created_at changed: %v", second.CreatedAt)
	}
	if second.Name != "Ada L." || second.Email != "ada@example.org" || second.Picture != "pic" {
		t.Fatalf("profile not refreshed: %+v", second)
	}

	got, err := st.GetUser(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetUser err: %v", err)
	}
	if got.Name != "Ada L." || got.PrincipalID != "p-1" {
		t.Fatalf("unexpected stored user: %+v", got)
	}
}

func testUpsertUserConcurrent(t *testing.T, st store.Store) {
	defer st.Close()
	ctx := context.Background()

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user, err := st.UpsertUser(ctx, auth.Profile{PrincipalID: "shared", Name: fmt.Sprintf("n%d", i)}, base)
			ids[i], errs[i] = user.ID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("UpsertUser #%d err: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("concurrent upserts produced different ids: %s vs %s", ids[i], ids[0])
		}
	}
}

func testGetUserMissing(t *testing.T, st store.Store) {
	defer st.Close()
	if _, err := st.GetUser(context.Background(), "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testListRecentNewestFirst(t *testing.T, st store.Store) {
	defer st.Close()
	ctx := context.Background()

	confidence := 95
	entries := []chat.Message{
		{UserID: "u", Role: chat.RoleUser, Content: "q1", CreatedAt: base},
		{UserID: "u", Role: chat.RoleAssistant, Content: "a1", CreatedAt: base.Add(time.Minute)},
		{UserID: "u", Role: chat.RoleUser, Content: "q2", CreatedAt: base.Add(4 * time.Minute)},
		{UserID: "u", Role: chat.RoleAssistant, Content: "a2", Confidence: &confidence, CreatedAt: base.Add(5 * time.Minute)},
	}
	for _, msg := range entries {
		stored, err := st.AppendMessage(ctx, msg)
		if err != nil {
			t.Fatalf("AppendMessage err: %v", err)
		}
		if stored.ID == "" {
			t.Fatal("expected message id to be assigned")
		}
	}

	got, err := st.ListRecent(ctx, "u", 3)
	if err != nil {
		t.Fatalf("ListRecent err: %v", err)
	}
	want := []string{"a2", "q2", "a1"}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(got))
	}
	for i, content := range want {
		if got[i].Content != content {
			t.Fatalf("position %d: got %q want %q", i, got[i].Content, content)
		}
	}
	if got[0].Confidence == nil || *got[0].Confidence != 95 {
		t.Fatalf("confidence not preserved: %v", got[0].Confidence)
	}
	if got[1].Confidence != nil {
		t.Fatalf("user message should have no confidence, got %d", *got[1].Confidence)
	}
	if !got[0].CreatedAt.Equal(base.Add(5 * time.Minute)) {
		t.Fatalf("timestamp not preserved: %v", got[0].CreatedAt)
	}

	all, err := st.ListRecent(ctx, "u", 0)
	if err != nil {
		t.Fatalf("ListRecent err: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected all 4 messages without limit, got %d", len(all))
	}
}

func testListRecentIsolatesUsers(t *testing.T, st store.Store) {
	defer st.Close()
	ctx := context.Background()

	if _, err := st.AppendMessage(ctx, chat.Message{UserID: "alice", Role: chat.RoleUser, Content: "hi", CreatedAt: base}); err != nil {
		t.Fatalf("AppendMessage err: %v", err)
	}
	if _, err := st.AppendMessage(ctx, chat.Message{UserID: "alice2", Role: chat.RoleUser, Content: "other", CreatedAt: base}); err != nil {
		t.Fatalf("AppendMessage err: %v", err)
	}

	got, err := st.ListRecent(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("ListRecent err: %v", err)
	}
	if len(got) != 1 || got[0].Content != "hi" {
		t.Fatalf("unexpected messages for alice: %+v", got)
	}

	empty, err := st.ListRecent(ctx, "nobody", 10)
	if err != nil {
		t.Fatalf("ListRecent err: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no messages, got %d", len(empty))
	}
}

func testAppendTurnStoresPair(t *testing.T, st store.Store) {
	defer st.Close()
	ctx := context.Background()

	if _, err := st.AppendMessage(ctx, chat.Message{UserID: "u", Role: chat.RoleUser, Content: "q1", CreatedAt: base}); err != nil {
		t.Fatalf("AppendMessage err: %v", err)
	}
	if _, err := st.AppendMessage(ctx, chat.Message{UserID: "u", Role: chat.RoleAssistant, Content: "a1", CreatedAt: base.Add(time.Minute)}); err != nil {
		t.Fatalf("AppendMessage err: %v", err)
	}

	confidence := 92
	question, answer, err := st.AppendTurn(ctx,
		chat.Message{UserID: "u", Role: chat.RoleUser, Content: "q2", CreatedAt: base.Add(2 * time.Minute)},
		chat.Message{UserID: "u", Role: chat.RoleAssistant, Content: "a2", Confidence: &confidence, CreatedAt: base.Add(2*time.Minute + time.Microsecond)},
	)
	if err != nil {
		t.Fatalf("AppendTurn err: %v", err)
	}
	if question.ID == "" || answer.ID == "" || question.ID == answer.ID {
		t.Fatalf("expected distinct ids, got %q and %q", question.ID, answer.ID)
	}

	got, err := st.ListRecent(ctx, "u", 0)
	if err != nil {
		t.Fatalf("ListRecent err: %v", err)
	}
	want := []string{"a2", "q2", "a1", "q1"}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(got))
	}
	for i, content := range want {
		if got[i].Content != content {
			t.Fatalf("position %d: got %q want %q", i, got[i].Content, content)
		}
	}
	if got[0].ID != answer.ID || got[1].ID != question.ID {
		t.Fatalf("stored ids differ from returned ids")
	}
	if got[0].Confidence == nil || *got[0].Confidence != 92 {
		t.Fatalf("confidence not preserved: %v", got[0].Confidence)
	}
}
