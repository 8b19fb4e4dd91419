package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Strob0t/Weaver/internal/adapter/docker"
	"github.com/Strob0t/Weaver/internal/domain"
	"github.com/Strob0t/Weaver/internal/domain/provider"
	"github.com/Strob0t/Weaver/internal/domain/session"
	"github.com/Strob0t/Weaver/internal/port/database"
	"github.com/Strob0t/Weaver/internal/worker"
)

var (
	_ database.SessionStore    = (*memStore)(nil)
	_ database.SessionLogStore = (*memStore)(nil)
	_ database.ProviderStore   = (*memStore)(nil)
	_ database.Transactor      = (*memStore)(nil)
	_ ContainerDriver          = (*fakeDriver)(nil)
)

// memStore is an in-memory implementation of every persistence port.
type memStore struct {
	mu        sync.Mutex
	sessions  map[int64]session.Session
	logs      []session.Log
	providers map[int64]provider.Provider
	seq       map[string]int64

	// Error hooks.
	updateErr    error
	appendLogErr error
	listErr      error
}

func newMemStore() *memStore {
	return &memStore{
		sessions:  make(map[int64]session.Session),
		providers: make(map[int64]provider.Provider),
		seq:       make(map[string]int64),
	}
}

// id hands out sequential ids per table.
func (m *memStore) id(table string) int64 {
	m.seq[table]++
	return m.seq[table]
}

func (m *memStore) ListSessions(_ context.Context) ([]session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b session.Session) int { return int(a.ID - b.ID) })
	return out, nil
}

func (m *memStore) ListSessionsByStatus(ctx context.Context, status session.Status) ([]session.Session, error) {
	all, err := m.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	var out []session.Session
	for _, s := range all {
		if s.Status == status {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) GetSession(_ context.Context, id int64) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m *memStore) SessionExists(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok, nil
}

func (m *memStore) CreateSession(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.id("sessions")
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	m.sessions[s.ID] = *s
	return nil
}

func (m *memStore) UpdateSession(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.sessions[s.ID]; !ok {
		return domain.ErrNotFound
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *memStore) DeleteSession(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *memStore) AppendLog(_ context.Context, sessionID int64, message string) (*session.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendLogErr != nil {
		return nil, m.appendLogErr
	}
	l := session.Log{ID: int64(len(m.logs) + 1), SessionID: sessionID, Message: message, CreatedAt: time.Now()}
	m.logs = append(m.logs, l)
	return &l, nil
}

func (m *memStore) ListLogs(_ context.Context, sessionID int64, offset, limit int) ([]session.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []session.Log{}
	n := 0
	for _, l := range m.logs {
		if l.SessionID != sessionID {
			continue
		}
		n++
		if n > offset && len(out) < limit {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) DeleteLogs(_ context.Context, sessionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = slices.DeleteFunc(m.logs, func(l session.Log) bool { return l.SessionID == sessionID })
	return nil
}

func (m *memStore) DeleteLogsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.logs)
	m.logs = slices.DeleteFunc(m.logs, func(l session.Log) bool { return l.CreatedAt.Before(cutoff) })
	return int64(before - len(m.logs)), nil
}

func (m *memStore) LogSessionIDs(_ context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for _, l := range m.logs {
		if !slices.Contains(ids, l.SessionID) {
			ids = append(ids, l.SessionID)
		}
	}
	return ids, nil
}

// messages returns the log messages of one session in order.
func (m *memStore) messages(sessionID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, l := range m.logs {
		if l.SessionID == sessionID {
			out = append(out, l.Message)
		}
	}
	return out
}

func (m *memStore) ListProviders(_ context.Context) ([]provider.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []provider.Provider{}
	for _, p := range m.providers {
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) GetProvider(_ context.Context, id int64) (*provider.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (m *memStore) CreateProvider(_ context.Context, p *provider.Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.id("providers")
	m.providers[p.ID] = *p
	return nil
}

func (m *memStore) UpdateProvider(_ context.Context, p *provider.Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[p.ID]; !ok {
		return domain.ErrNotFound
	}
	m.providers[p.ID] = *p
	return nil
}

func (m *memStore) DeleteProvider(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.providers, id)
	return nil
}

// WithinTx has no rollback; tests only assert the commit path.
func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// seedProvider stores a GitLab provider whose token is "secret-token".
func (m *memStore) seedProvider() *provider.Provider {
	p := &provider.Provider{
		Name:           "gitlab",
		BaseURL:        "https://gitlab.example.com",
		Type:           provider.TypeGitLab,
		EncryptedToken: "enc:secret-token",
		GitConfig:      provider.DefaultGitConfig,
	}
	_ = m.CreateProvider(context.Background(), p)
	return p
}

// seedSession stores a session in the given state.
func (m *memStore) seedSession(providerID int64, status session.Status) *session.Session {
	s := &session.Session{
		ProviderID:            providerID,
		RepoID:                42,
		RepoName:              "demo",
		RepoPathWithNamespace: "group/demo",
		RepoHTTPURL:           "https://gitlab.example.com/group/demo.git",
		Status:                status,
		WorkspacePath:         "/root/workspace/demo",
	}
	_ = m.CreateSession(context.Background(), s)
	return s
}

// fakeCipher "encrypts" by prefixing enc:.
type fakeCipher struct{}

func (fakeCipher) Encrypt(plaintext string) (string, error) { return "enc:" + plaintext, nil }

func (fakeCipher) Decrypt(payload string) (string, error) {
	tok, ok := strings.CutPrefix(payload, "enc:")
	if !ok {
		return "", errors.New("bad payload")
	}
	return tok, nil
}

// inlineSubmitter runs tasks synchronously, or rejects them with err.
type inlineSubmitter struct {
	err error
}

func (s inlineSubmitter) Submit(task worker.Task) error {
	if s.err != nil {
		return s.err
	}
	task(context.Background())
	return nil
}

var okResult = docker.Result{ExitCode: 0}

func failResult(stderr string) docker.Result {
	return docker.Result{ExitCode: 1, Stderr: stderr}
}

// fakeDriver records calls and returns canned results. Zero-value results
// succeed.
type fakeDriver struct {
	mu     sync.Mutex
	calls  []string
	editor bool

	create     docker.CreateResult
	prepare    docker.Result
	gitConfig  docker.Result
	clone      docker.Result
	codeServer docker.Result
	status     docker.Result
	checkout   docker.Result
	pull       docker.Result
	current    docker.Result
	branches   docker.Result
	dirs       docker.Result
	start      docker.Result
	listRes    docker.Result

	containers []int64
	states     map[int64]session.ContainerState
	stopFail   map[int64]bool
	removeFail map[int64]bool

	pullToken string

	// editorPort answers ResolveCodeServerPort; zero means no mapping.
	editorPort int

	// gate, when set, holds CreateContainer and GitPull open until closed.
	// entered receives the call name once a held call is inside.
	gate      chan struct{}
	entered   chan string
	active    int
	maxActive int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		editor:     true,
		create:     docker.CreateResult{Port: 62001},
		states:     make(map[int64]session.ContainerState),
		stopFail:   make(map[int64]bool),
		removeFail: make(map[int64]bool),
	}
}

// hold tracks overlapping calls and blocks on the gate. The returned func
// marks the call finished.
func (d *fakeDriver) hold(call string) func() {
	d.mu.Lock()
	d.active++
	d.maxActive = max(d.maxActive, d.active)
	d.mu.Unlock()
	if d.entered != nil {
		d.entered <- call
	}
	if d.gate != nil {
		<-d.gate
	}
	return func() {
		d.mu.Lock()
		d.active--
		d.mu.Unlock()
	}
}

func (d *fakeDriver) record(call string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
}

func (d *fakeDriver) called(call string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Contains(d.calls, call)
}

func (d *fakeDriver) count(call string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (d *fakeDriver) ContainerName(int64) string { return "session-test" }

func (d *fakeDriver) WorkspacePath(repoName string) string { return "/root/workspace/" + repoName }

func (d *fakeDriver) EditorEnabled() bool { return d.editor }

func (d *fakeDriver) CreateContainer(_ context.Context, _ int64) docker.CreateResult {
	d.record("create")
	defer d.hold("create")()
	return d.create
}

func (d *fakeDriver) PrepareWorkspace(_ context.Context, _ string) docker.Result {
	d.record("prepare")
	return d.prepare
}

func (d *fakeDriver) ClearWorkspace(_ context.Context, _, _ string) docker.Result {
	d.record("clear")
	return okResult
}

func (d *fakeDriver) WriteGitConfig(_ context.Context, _, _ string) docker.Result {
	d.record("gitconfig")
	return d.gitConfig
}

func (d *fakeDriver) CloneRepository(_ context.Context, _, _, _, _, _ string) docker.Result {
	d.record("clone")
	return d.clone
}

func (d *fakeDriver) StartCodeServer(_ context.Context, _, _ string) docker.Result {
	d.record("code-server")
	return d.codeServer
}

func (d *fakeDriver) GitStatus(_ context.Context, _, _ string) docker.Result {
	d.record("status")
	return d.status
}

func (d *fakeDriver) GitCheckout(_ context.Context, _, _, branch string) docker.Result {
	d.record("checkout " + branch)
	return d.checkout
}

func (d *fakeDriver) GitPull(_ context.Context, _, _, token, _ string) docker.Result {
	d.record("pull")
	defer d.hold("pull")()
	d.mu.Lock()
	d.pullToken = token
	d.mu.Unlock()
	return d.pull
}

func (d *fakeDriver) CurrentBranch(_ context.Context, _, _ string) docker.Result {
	d.record("current-branch")
	return d.current
}

func (d *fakeDriver) ListBranches(_ context.Context, _, _ string) docker.Result {
	d.record("branches")
	return d.branches
}

func (d *fakeDriver) ListDirectories(_ context.Context, _, _ string) docker.Result {
	d.record("dirs")
	return d.dirs
}

func (d *fakeDriver) ListSessionContainerStates(_ context.Context) map[int64]session.ContainerState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return maps.Clone(d.states)
}

func (d *fakeDriver) ListSessionContainers(_ context.Context) ([]int64, docker.Result) {
	d.record("list")
	return d.containers, d.listRes
}

func (d *fakeDriver) ResolveCodeServerPort(_ context.Context, _ string) (int, bool) {
	d.record("port")
	return d.editorPort, d.editorPort != 0
}

func (d *fakeDriver) ResolveContainerState(_ context.Context, sessionID int64) (session.ContainerState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.states[sessionID]
	return st, ok
}

func (d *fakeDriver) StopContainer(_ context.Context, sessionID int64) docker.Result {
	d.record(fmt.Sprintf("stop %d", sessionID))
	if d.stopFail[sessionID] {
		return failResult("stop failed")
	}
	return okResult
}

func (d *fakeDriver) StartContainer(_ context.Context, sessionID int64) docker.Result {
	d.record(fmt.Sprintf("start %d", sessionID))
	return d.start
}

func (d *fakeDriver) RemoveContainer(_ context.Context, sessionID int64) docker.Result {
	d.record(fmt.Sprintf("remove %d", sessionID))
	if d.removeFail[sessionID] {
		return failResult("remove failed")
	}
	return okResult
}
