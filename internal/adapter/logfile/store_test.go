package logfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Strob0t/Weaver/internal/port/database"
)

var _ database.SessionLogStore = (*Store)(nil)

func TestAppendAndList(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "logs"))
	ctx := context.Background()

	for i, msg := range []string{"created", "cloning", "ready"} {
		l, err := s.AppendLog(ctx, 7, msg)
		if err != nil {
			t.Fatalf("AppendLog: %v", err)
		}
		if l.ID != int64(i+1) {
			t.Fatalf("entry id = %d, want %d", l.ID, i+1)
		}
	}

	logs, err := s.ListLogs(ctx, 7, 1, 10)
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(logs) != 2 || logs[0].Message != "cloning" || logs[0].ID != 2 || logs[1].ID != 3 {
		t.Fatalf("unexpected logs: %+v", logs)
	}
}

func TestListMissingFileIsEmpty(t *testing.T) {
	s := NewStore(t.TempDir())
	logs, err := s.ListLogs(context.Background(), 99, 0, 10)
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if logs == nil || len(logs) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", logs)
	}
}

func TestListSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	content := `{"message":"ok","createdAt":"2026-01-01T00:00:00Z"}
not json
{"message":"after","createdAt":"2026-01-01T00:00:01Z"}
`
	if err := os.WriteFile(filepath.Join(dir, "session-3.log"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	s := NewStore(dir)
	logs, err := s.ListLogs(context.Background(), 3, 0, 10)
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(logs) != 2 || logs[1].ID != 3 || logs[1].Message != "after" {
		t.Fatalf("unexpected logs: %+v", logs)
	}
}

func TestDeleteLogsBeforeAndIDs(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	ctx := context.Background()

	for _, id := range []int64{1, 2} {
		if _, err := s.AppendLog(ctx, id, "hello"); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "session-abc.log"), []byte("x\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-30 * 24 * time.Hour)
	if err := os.Chtimes(filepath.Join(dir, "session-1.log"), old, old); err != nil {
		t.Fatal(err)
	}

	removed, err := s.DeleteLogsBefore(ctx, time.Now().Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteLogsBefore: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2 (stale + unparseable)", removed)
	}

	ids, err := s.LogSessionIDs(ctx)
	if err != nil {
		t.Fatalf("LogSessionIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("ids = %v, want [2]", ids)
	}

	if err := s.DeleteLogs(ctx, 2); err != nil {
		t.Fatalf("DeleteLogs: %v", err)
	}
	if err := s.DeleteLogs(ctx, 2); err != nil {
		t.Fatalf("DeleteLogs on missing file: %v", err)
	}
}
