// Package provider defines source-control provider connections and the
// repository listings they return.
package provider

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Strob0t/Weaver/internal/domain"
)

// Type identifies the source-control backend.
type Type string

const (
	TypeGitLab      Type = "GITLAB"
	TypeGitHub      Type = "GITHUB"
	TypeAzureDevOps Type = "AZURE_DEVOPS"
)

// DefaultGitConfig is written into session containers when a provider has none.
const DefaultGitConfig = "[credential]\n        helper = store\n"

// Valid reports whether t is a supported provider type.
func (t Type) Valid() bool {
	switch t {
	case TypeGitLab, TypeGitHub, TypeAzureDevOps:
		return true
	}
	return false
}

// AuthUser is the HTTP basic-auth username paired with an access token when
// cloning or pulling from this backend.
func (t Type) AuthUser() string {
	switch t {
	case TypeGitLab:
		return "oauth2"
	case TypeGitHub:
		return "x-access-token"
	case TypeAzureDevOps:
		return "pat"
	}
	return "oauth2"
}

// Provider is a configured connection to a source-control backend.
type Provider struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	BaseURL        string    `json:"base_url"`
	Type           Type      `json:"type"`
	EncryptedToken string    `json:"-"`
	GitConfig      string    `json:"git_config"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Request holds the fields to create or update a provider.
type Request struct {
	Name      string `json:"name"`
	BaseURL   string `json:"base_url"`
	Type      Type   `json:"type"`
	Token     string `json:"token"` // plaintext, encrypted before storage
	GitConfig string `json:"git_config"`
}

// Validate trims the request in place and checks required fields.
func (r *Request) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.BaseURL = strings.TrimSpace(r.BaseURL)
	r.Token = strings.TrimSpace(r.Token)
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unsupported provider type %q", domain.ErrValidation, r.Type)
	}
	u, err := url.Parse(r.BaseURL)
	if r.BaseURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: base_url must be an http(s) URL", domain.ErrValidation)
	}
	if r.Token == "" {
		return fmt.Errorf("%w: token is required", domain.ErrValidation)
	}
	return nil
}

// ResolveGitConfig returns gitConfig with trailing whitespace removed, or
// fallback, or DefaultGitConfig, whichever is first non-blank.
func ResolveGitConfig(gitConfig, fallback string) string {
	if c := strings.TrimRight(gitConfig, " \t\r\n"); strings.TrimSpace(c) != "" {
		return c
	}
	if strings.TrimSpace(fallback) != "" {
		return fallback
	}
	return DefaultGitConfig
}

// Repository is a normalized repository listing entry.
type Repository struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
	DefaultBranch     string `json:"default_branch,omitempty"`
	WebURL            string `json:"web_url,omitempty"`
	HTTPURLToRepo     string `json:"http_url_to_repo"`
}

// ConnectionResult is the outcome of a provider connectivity check.
type ConnectionResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// APIError is a failed call to a provider API. StatusCode is 0 when no HTTP
// response was received. It matches domain.ErrUnavailable.
type APIError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s API error: %d", e.Provider, e.StatusCode)
	}
	return e.Provider + " API request failed"
}

func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{domain.ErrUnavailable}
	}
	return []error{domain.ErrUnavailable, e.Err}
}
