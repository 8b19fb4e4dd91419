// Package logfile stores session logs as one JSON-lines file per session.
// The entry id is the 1-based line number within the file.
package logfile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Strob0t/Weaver/internal/domain/session"
)

const (
	filePrefix = "session-"
	fileSuffix = ".log"
)

type entry struct {
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store implements database.SessionLogStore on the local filesystem.
type Store struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewStore creates a Store rooted at dir. The directory is created lazily.
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

func (s *Store) path(sessionID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%d%s", filePrefix, sessionID, fileSuffix))
}

// parseSessionID extracts the id from a "session-<id>.log" file name.
func parseSessionID(name string) (int64, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (s *Store) AppendLog(_ context.Context, sessionID int64, message string) (*session.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	p := s.path(sessionID)
	lines, err := countLines(p)
	if err != nil {
		return nil, err
	}

	e := entry{Message: message, CreatedAt: s.now().UTC()}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal log entry: %w", err)
	}

	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) //nolint:gosec // G304: path built from numeric session id
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("append %s: %w", p, err)
	}

	return &session.Log{ID: int64(lines) + 1, SessionID: sessionID, Message: e.Message, CreatedAt: e.CreatedAt}, nil
}

func countLines(p string) (int, error) {
	data, err := os.ReadFile(p) //nolint:gosec // G304: path built from numeric session id
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", p, err)
	}
	return bytes.Count(data, []byte{'\n'}), nil
}

func (s *Store) ListLogs(_ context.Context, sessionID int64, offset, limit int) ([]session.Log, error) {
	logs := []session.Log{}
	if limit <= 0 {
		return logs, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path(sessionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return logs, nil
		}
		return nil, fmt.Errorf("open session log %d: %w", sessionID, err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if line <= offset {
			continue
		}
		if line > offset+limit {
			break
		}
		text := sc.Text()
		var e entry
		if err := json.Unmarshal([]byte(text), &e); err != nil {
			if strings.TrimSpace(text) != "" {
				slog.Warn("skipping malformed session log entry", "session_id", sessionID, "line", line)
			}
			continue
		}
		logs = append(logs, session.Log{ID: int64(line), SessionID: sessionID, Message: e.Message, CreatedAt: e.CreatedAt})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read session log %d: %w", sessionID, err)
	}
	return logs, nil
}

func (s *Store) DeleteLogs(_ context.Context, sessionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(sessionID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete session log %d: %w", sessionID, err)
	}
	return nil
}

// DeleteLogsBefore removes whole files last written before cutoff, plus any
// file in the directory whose name does not carry a session id.
func (s *Store) DeleteLogsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.logFiles()
	if err != nil {
		return 0, err
	}
	var removed int64
	for _, de := range entries {
		_, ok := parseSessionID(de.Name())
		info, err := de.Info()
		if err != nil {
			continue
		}
		if ok && !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, de.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to delete session log file", "file", de.Name(), "error", err)
			continue
		}
		slog.Info("deleted session log file", "file", de.Name())
		removed++
	}
	return removed, nil
}

func (s *Store) LogSessionIDs(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.logFiles()
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, de := range entries {
		if id, ok := parseSessionID(de.Name()); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// logFiles lists regular files matching session-*.log. A missing directory
// yields no files.
func (s *Store) logFiles() ([]os.DirEntry, error) {
	all, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read log dir: %w", err)
	}
	var out []os.DirEntry
	for _, de := range all {
		if de.Type().IsRegular() && strings.HasPrefix(de.Name(), filePrefix) && strings.HasSuffix(de.Name(), fileSuffix) {
			out = append(out, de)
		}
	}
	return out, nil
}
