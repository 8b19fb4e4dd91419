// Package github implements a gitprovider.Client for GitHub and GitHub
// Enterprise using the REST API.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/Strob0t/Weaver/internal/domain/provider"
	"github.com/Strob0t/Weaver/internal/port/gitprovider"
)

var nextLinkRe = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// Client implements gitprovider.Client for GitHub.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a GitHub client. baseURL is the API root, for example
// https://api.github.com.
func NewClient(cfg gitprovider.Config) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type githubRepo struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	HTMLURL       string `json:"html_url"`
	CloneURL      string `json:"clone_url"`
}

func (c *Client) TestConnection(ctx context.Context) provider.ConnectionResult {
	if _, _, err := c.get(ctx, c.baseURL+"/user"); err != nil {
		slog.Warn("github connection test failed", "error", err)
		var apiErr *provider.APIError
		if errors.As(err, &apiErr) {
			return provider.ConnectionResult{OK: false, Message: apiErr.Error()}
		}
		return provider.ConnectionResult{OK: false, Message: "GitHub API request failed"}
	}
	return provider.ConnectionResult{OK: true, Message: "Connection OK"}
}

// ListRepositories follows the Link rel="next" header across pages.
func (c *Client) ListRepositories(ctx context.Context) ([]provider.Repository, error) {
	repos := []provider.Repository{}
	next := c.baseURL + "/user/repos?per_page=100&affiliation=owner,collaborator,organization_member"
	for next != "" {
		body, header, err := c.get(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("github list repositories: %w", err)
		}
		var page []githubRepo
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("github parse response: %w", err)
		}
		for _, r := range page {
			repos = append(repos, provider.Repository{
				ID:                r.ID,
				Name:              r.Name,
				PathWithNamespace: r.FullName,
				DefaultBranch:     r.DefaultBranch,
				WebURL:            r.HTMLURL,
				HTTPURLToRepo:     r.CloneURL,
			})
		}
		next = nextLink(header.Get("Link"))
	}
	return repos, nil
}

func nextLink(link string) string {
	if m := nextLinkRe.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	return ""
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "weaver")

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL is the configured base URL or a Link header from it
	if err != nil {
		return nil, nil, &provider.APIError{Provider: "GitHub", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &provider.APIError{Provider: "GitHub", StatusCode: resp.StatusCode}
	}
	return body, resp.Header, nil
}
