// Package session defines the session aggregate, its lifecycle states and logs.
package session

import (
	"strings"
	"time"
)

// Status is the persisted lifecycle state of a session.
type Status string

const (
	StatusCreating Status = "CREATING"
	StatusReady    Status = "READY"
	StatusFailed   Status = "FAILED"
	// StatusStopped is never persisted. It is derived at read time when a
	// READY session's container is confirmed stopped.
	StatusStopped Status = "STOPPED"
)

// ContainerState is the live state reported by the container engine.
type ContainerState string

const (
	ContainerRunning ContainerState = "RUNNING"
	ContainerStopped ContainerState = "STOPPED"
	ContainerUnknown ContainerState = "UNKNOWN"
)

// ParseContainerState classifies a human-readable engine status such as
// "Up 3 minutes" or "Exited (0) 2 hours ago".
func ParseContainerState(raw string) ContainerState {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(s, "up"), strings.HasPrefix(s, "running"), strings.HasPrefix(s, "restarting"):
		return ContainerRunning
	case strings.HasPrefix(s, "exited"), strings.HasPrefix(s, "created"), strings.HasPrefix(s, "dead"):
		return ContainerStopped
	default:
		return ContainerUnknown
	}
}

// Session is one user's ephemeral workspace backed by exactly one container.
type Session struct {
	ID                    int64     `json:"id"`
	ProviderID            int64     `json:"provider_id"`
	RepoID                int64     `json:"repo_id"`
	RepoName              string    `json:"repo_name"`
	RepoPathWithNamespace string    `json:"repo_path_with_namespace"`
	RepoHTTPURL           string    `json:"repo_http_url"`
	DefaultBranch         string    `json:"default_branch,omitempty"`
	Status                Status    `json:"status"`
	WorkspacePath         string    `json:"workspace_path"`
	VSCodePort            int       `json:"vscode_port,omitempty"` // 0 = no port allocated
	ErrorMessage          string    `json:"error_message,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// MarkReady moves the session to READY. port is 0 when no editor is exposed.
func (s *Session) MarkReady(port int, at time.Time) {
	s.Status = StatusReady
	s.VSCodePort = port
	s.ErrorMessage = ""
	s.UpdatedAt = at
}

// Fail moves the session to FAILED. A FAILED session always carries a message.
func (s *Session) Fail(message string, at time.Time) {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "Unknown error"
	}
	s.Status = StatusFailed
	s.ErrorMessage = message
	s.UpdatedAt = at
}

// EffectiveStatus is the status presented to callers: a READY session whose
// container is confirmed stopped reads as STOPPED.
func (s *Session) EffectiveStatus(state ContainerState, exists bool) Status {
	if s.Status == StatusReady && exists && state == ContainerStopped {
		return StatusStopped
	}
	return s.Status
}

// CreateRequest holds the fields to create a new session.
type CreateRequest struct {
	ProviderID            int64  `json:"provider_id"`
	RepoID                int64  `json:"repo_id"`
	RepoName              string `json:"repo_name"`
	RepoPathWithNamespace string `json:"repo_path_with_namespace"`
	RepoHTTPURL           string `json:"repo_http_url"`
	DefaultBranch         string `json:"default_branch,omitempty"`
}

// Log is an append-only session log entry. Messages never carry secrets.
type Log struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// View is a session as presented to callers, merged with live container state.
type View struct {
	Session
	Status         Status         `json:"status"`
	ContainerState ContainerState `json:"container_state,omitempty"`
	VSCodeURL      string         `json:"vscode_url,omitempty"`
}

// GitCommand names a runtime git operation.
type GitCommand string

const (
	GitStatus   GitCommand = "STATUS"
	GitCheckout GitCommand = "CHECKOUT"
	GitPull     GitCommand = "PULL"
)

// GitRequest is a runtime git command against a READY session.
type GitRequest struct {
	Command GitCommand `json:"command"`
	Branch  string     `json:"branch,omitempty"`
}

// GitResult is the sanitized outcome of a git command.
type GitResult struct {
	OK      bool       `json:"ok"`
	Command GitCommand `json:"command"`
	Stdout  string     `json:"stdout"`
	Stderr  string     `json:"stderr"`
	Message string     `json:"message"`
}

// Context is a structured snapshot of a session's workspace.
type Context struct {
	SessionID             int64     `json:"session_id"`
	RepoName              string    `json:"repo_name"`
	RepoPathWithNamespace string    `json:"repo_path_with_namespace"`
	WorkspacePath         string    `json:"workspace_path"`
	Status                Status    `json:"status"`
	DefaultBranch         string    `json:"default_branch,omitempty"`
	CurrentBranch         string    `json:"current_branch,omitempty"`
	Branches              []string  `json:"branches"`
	GitStatus             []string  `json:"git_status"`
	DirectoryTree         []string  `json:"directory_tree"`
	GeneratedAt           time.Time `json:"generated_at"`
}
