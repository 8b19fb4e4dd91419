package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/Weaver/internal/adapter/postgres"
	"github.com/Strob0t/Weaver/internal/domain"
	"github.com/Strob0t/Weaver/internal/domain/provider"
	"github.com/Strob0t/Weaver/internal/domain/session"
	"github.com/Strob0t/Weaver/internal/port/database"
)

var (
	_ database.SessionStore    = (*postgres.Store)(nil)
	_ database.SessionLogStore = (*postgres.Store)(nil)
	_ database.ProviderStore   = (*postgres.Store)(nil)
	_ database.Transactor      = (*postgres.Store)(nil)
)

// setupStore creates a pgxpool connection, runs all migrations, and returns a
// ready-to-use Store. The pool is closed via t.Cleanup.
func setupStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return postgres.NewStore(pool)
}

func createTestProvider(t *testing.T, store *postgres.Store) *provider.Provider {
	t.Helper()
	ctx := context.Background()
	p := &provider.Provider{
		Name:           "integration-gitlab",
		BaseURL:        "https://gitlab.example.com",
		Type:           provider.TypeGitLab,
		EncryptedToken: "ciphertext",
		GitConfig:      provider.DefaultGitConfig,
	}
	if err := store.CreateProvider(ctx, p); err != nil {
		t.Fatalf("CreateProvider: %v", err)
	}
	t.Cleanup(func() { _ = store.DeleteProvider(ctx, p.ID) })
	return p
}

func newTestSession(providerID int64) *session.Session {
	return &session.Session{
		ProviderID:            providerID,
		RepoID:                42,
		RepoName:              "demo",
		RepoPathWithNamespace: "group/demo",
		RepoHTTPURL:           "https://gitlab.example.com/group/demo.git",
		Status:                session.StatusCreating,
		WorkspacePath:         "/root/workspace/demo",
	}
}

func TestStore_ProviderCRUD(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	p := createTestProvider(t, store)

	if p.ID == 0 {
		t.Fatal("CreateProvider returned zero ID")
	}

	t.Run("Get", func(t *testing.T) {
		got, err := store.GetProvider(ctx, p.ID)
		if err != nil {
			t.Fatalf("GetProvider: %v", err)
		}
		if got.Type != provider.TypeGitLab || got.GitConfig != provider.DefaultGitConfig {
			t.Fatalf("unexpected provider: %+v", got)
		}
	})

	t.Run("Update", func(t *testing.T) {
		p.Name = "renamed"
		if err := store.UpdateProvider(ctx, p); err != nil {
			t.Fatalf("UpdateProvider: %v", err)
		}
		got, _ := store.GetProvider(ctx, p.ID)
		if got.Name != "renamed" {
			t.Fatalf("expected renamed, got %q", got.Name)
		}
	})

	t.Run("Get_NotFound", func(t *testing.T) {
		_, err := store.GetProvider(ctx, -1)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestStore_SessionLifecycle(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	p := createTestProvider(t, store)

	s := newTestSession(p.ID)
	if err := store.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	t.Cleanup(func() { _ = store.DeleteSession(ctx, s.ID) })

	s.MarkReady(62001, time.Now())
	if err := store.UpdateSession(ctx, s); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	got, err := store.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != session.StatusReady || got.VSCodePort != 62001 || got.ErrorMessage != "" {
		t.Fatalf("unexpected session: %+v", got)
	}

	got.Fail("clone failed", time.Now())
	if err := store.UpdateSession(ctx, got); err != nil {
		t.Fatalf("UpdateSession (fail): %v", err)
	}
	failed, err := store.ListSessionsByStatus(ctx, session.StatusFailed)
	if err != nil {
		t.Fatalf("ListSessionsByStatus: %v", err)
	}
	found := false
	for _, f := range failed {
		if f.ID == s.ID && f.ErrorMessage == "clone failed" {
			found = true
		}
	}
	if !found {
		t.Fatal("failed session not listed")
	}

	if err := store.DeleteSession(ctx, s.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if exists, _ := store.SessionExists(ctx, s.ID); exists {
		t.Fatal("session still exists after delete")
	}
	if err := store.UpdateSession(ctx, s); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating deleted session, got %v", err)
	}
}

func TestStore_WithinTxRollsBack(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	p := createTestProvider(t, store)

	var id int64
	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context) error {
		s := newTestSession(p.ID)
		if err := store.CreateSession(ctx, s); err != nil {
			return err
		}
		id = s.ID
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if exists, _ := store.SessionExists(ctx, id); exists {
		t.Fatal("session must not survive a rolled back transaction")
	}
}

func TestStore_SessionLogs(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	p := createTestProvider(t, store)

	s := newTestSession(p.ID)
	if err := store.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	t.Cleanup(func() {
		_ = store.DeleteLogs(ctx, s.ID)
		_ = store.DeleteSession(ctx, s.ID)
	})

	for _, msg := range []string{"one", "two", "three"} {
		if _, err := store.AppendLog(ctx, s.ID, msg); err != nil {
			t.Fatalf("AppendLog: %v", err)
		}
	}

	page, err := store.ListLogs(ctx, s.ID, 1, 1)
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(page) != 1 || page[0].Message != "two" {
		t.Fatalf("unexpected page: %+v", page)
	}

	ids, err := store.LogSessionIDs(ctx)
	if err != nil {
		t.Fatalf("LogSessionIDs: %v", err)
	}
	found := false
	for _, id := range ids {
		if id == s.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("session id missing from LogSessionIDs")
	}

	if _, err := store.DeleteLogsBefore(ctx, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("DeleteLogsBefore: %v", err)
	}
	rest, _ := store.ListLogs(ctx, s.ID, 0, 100)
	if len(rest) != 0 {
		t.Fatalf("expected logs pruned, got %d", len(rest))
	}
}

func TestStore_FailedRequiresErrorMessage(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	p := createTestProvider(t, store)

	s := newTestSession(p.ID)
	s.Status = session.StatusFailed
	err := store.CreateSession(ctx, s)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict from check constraint, got %v", err)
	}
}
