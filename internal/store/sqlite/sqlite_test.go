package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/vinaeu/insights/backend/internal/model/auth"
	"github.com/vinaeu/insights/backend/internal/store"
	"github.com/vinaeu/insights/backend/internal/store/sqlite"
	"github.com/vinaeu/insights/backend/internal/store/storetest"
)

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		st, err := sqlite.Open(filepath.Join(t.TempDir(), "insights.db"))
		if err != nil {
			t.Fatalf("Open err: %v", err)
		}
		return st
	})
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "insights.db")
	ctx := context.Background()
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	st, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	user, err := st.UpsertUser(ctx, auth.Profile{PrincipalID: "p", Name: "Ada"}, now)
	if err != nil {
		t.Fatalf("UpsertUser err: %v", err)
	}
	if err := st.PutSession(ctx, auth.Session{Token: "tok", UserID: user.ID, CreatedAt: now, ExpiresAt: now.Add(auth.SessionTTL)}); err != nil {
		t.Fatalf("PutSession err: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close err: %v", err)
	}

	reopened, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("reopen err: %v", err)
	}
	defer reopened.Close()

	session, err := reopened.GetSession(ctx, "tok")
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}
	if session.UserID != user.ID {
		t.Fatalf("unexpected user id: %s", session.UserID)
	}
}
