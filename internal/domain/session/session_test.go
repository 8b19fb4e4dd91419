package session

import (
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/Weaver/internal/domain"
)

func TestParseContainerState(t *testing.T) {
	tests := []struct {
		raw  string
		want ContainerState
	}{
		{"Up 5 minutes", ContainerRunning},
		{"running", ContainerRunning},
		{"Restarting (1) 3 seconds ago", ContainerRunning},
		{"Exited (0) 2 hours ago", ContainerStopped},
		{"created", ContainerStopped},
		{"Dead", ContainerStopped},
		{"paused", ContainerUnknown},
		{"Removal In Progress", ContainerUnknown},
		{"", ContainerUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := ParseContainerState(tt.raw); got != tt.want {
				t.Errorf("ParseContainerState(%q) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestFailAlwaysCarriesMessage(t *testing.T) {
	s := &Session{Status: StatusCreating}
	s.Fail("  ", time.Now())
	if s.Status != StatusFailed || s.ErrorMessage == "" {
		t.Fatalf("expected FAILED with message, got %s %q", s.Status, s.ErrorMessage)
	}
}

func TestMarkReadyClearsError(t *testing.T) {
	s := &Session{Status: StatusCreating, ErrorMessage: "stale"}
	s.MarkReady(62001, time.Now())
	if s.Status != StatusReady || s.ErrorMessage != "" || s.VSCodePort != 62001 {
		t.Fatalf("unexpected session after MarkReady: %+v", s)
	}
}

func TestEffectiveStatus(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		state  ContainerState
		exists bool
		want   Status
	}{
		{"ready running", StatusReady, ContainerRunning, true, StatusReady},
		{"ready stopped", StatusReady, ContainerStopped, true, StatusStopped},
		{"ready unknown", StatusReady, ContainerUnknown, true, StatusReady},
		{"ready missing", StatusReady, "", false, StatusReady},
		{"failed stopped", StatusFailed, ContainerStopped, true, StatusFailed},
		{"creating stopped", StatusCreating, ContainerStopped, true, StatusCreating},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{Status: tt.status}
			if got := s.EffectiveStatus(tt.state, tt.exists); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidateBranch(t *testing.T) {
	valid := []string{"main", "feature/ABC-123", "release-1.0", "v1.2.3", "user/jane_doe"}
	for _, b := range valid {
		if err := ValidateBranch(b); err != nil {
			t.Errorf("ValidateBranch(%q) unexpected error: %v", b, err)
		}
	}

	invalid := []string{
		"", "../etc/passwd", "feature/../main", "/etc", "/etc/shadow", "main branch",
		"main;rm -rf /", "$(whoami)", "`id`", "a|b", "a&b", "-delete", "a\nb",
	}
	for _, b := range invalid {
		err := ValidateBranch(b)
		if err == nil {
			t.Errorf("ValidateBranch(%q) expected error", b)
			continue
		}
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("ValidateBranch(%q) error should wrap ErrValidation: %v", b, err)
		}
	}
}

func TestCreateRequestValidate(t *testing.T) {
	base := func() CreateRequest {
		return CreateRequest{
			ProviderID:            1,
			RepoID:                10,
			RepoName:              "weaver",
			RepoPathWithNamespace: "team/weaver",
			RepoHTTPURL:           "https://git.example.com/team/weaver.git",
		}
	}

	ok := base()
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{"missing provider", func(r *CreateRequest) { r.ProviderID = 0 }},
		{"blank repo name", func(r *CreateRequest) { r.RepoName = "" }},
		{"repo name with slash", func(r *CreateRequest) { r.RepoName = "a/b" }},
		{"repo name dotdot", func(r *CreateRequest) { r.RepoName = ".." }},
		{"path traversal", func(r *CreateRequest) { r.RepoPathWithNamespace = "team/../../etc" }},
		{"blank path", func(r *CreateRequest) { r.RepoPathWithNamespace = " " }},
		{"ssh url", func(r *CreateRequest) { r.RepoHTTPURL = "git@git.example.com:team/weaver.git" }},
		{"url with userinfo", func(r *CreateRequest) { r.RepoHTTPURL = "https://user:pw@git.example.com/x.git" }},
		{"bad default branch", func(r *CreateRequest) { r.DefaultBranch = "main;id" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base()
			tt.mutate(&r)
			if err := r.Validate(); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}
