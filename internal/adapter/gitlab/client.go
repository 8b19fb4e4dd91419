// Package gitlab implements a gitprovider.Client for GitLab instances using the REST API v4.
package gitlab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/Strob0t/Weaver/internal/domain/provider"
	"github.com/Strob0t/Weaver/internal/port/gitprovider"
)

const pageSize = 100

// Client implements gitprovider.Client for GitLab.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a GitLab client with the given base URL and private token.
func NewClient(cfg gitprovider.Config) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// gitlabProject mirrors the simple project representation of GET /projects.
type gitlabProject struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
	DefaultBranch     string `json:"default_branch"`
	WebURL            string `json:"web_url"`
	HTTPURLToRepo     string `json:"http_url_to_repo"`
}

func (c *Client) TestConnection(ctx context.Context) provider.ConnectionResult {
	if _, _, err := c.get(ctx, c.baseURL+"/api/v4/user"); err != nil {
		slog.Warn("gitlab connection test failed", "error", err)
		return provider.ConnectionResult{OK: false, Message: connectionMessage(err)}
	}
	return provider.ConnectionResult{OK: true, Message: "Connection OK"}
}

// ListRepositories pages through the projects the token is a member of,
// following the X-Next-Page header until it is empty.
func (c *Client) ListRepositories(ctx context.Context) ([]provider.Repository, error) {
	repos := []provider.Repository{}
	page := "1"
	for page != "" {
		q := url.Values{}
		q.Set("membership", "true")
		q.Set("simple", "true")
		q.Set("per_page", fmt.Sprint(pageSize))
		q.Set("page", page)

		body, header, err := c.get(ctx, c.baseURL+"/api/v4/projects?"+q.Encode())
		if err != nil {
			return nil, fmt.Errorf("gitlab list projects: %w", err)
		}
		var projects []gitlabProject
		if err := json.Unmarshal(body, &projects); err != nil {
			return nil, fmt.Errorf("gitlab parse response: %w", err)
		}
		for i := range projects {
			repos = append(repos, toRepository(&projects[i]))
		}
		page = strings.TrimSpace(header.Get("X-Next-Page"))
	}
	return repos, nil
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("PRIVATE-TOKEN", c.token)

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL is constructed from the configured provider base URL
	if err != nil {
		return nil, nil, &provider.APIError{Provider: "GitLab", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &provider.APIError{Provider: "GitLab", StatusCode: resp.StatusCode}
	}
	return body, resp.Header, nil
}

// connectionMessage keeps transport details out of the result message.
func connectionMessage(err error) string {
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	return "GitLab API request failed"
}

func toRepository(p *gitlabProject) provider.Repository {
	return provider.Repository{
		ID:                p.ID,
		Name:              p.Name,
		PathWithNamespace: p.PathWithNamespace,
		DefaultBranch:     p.DefaultBranch,
		WebURL:            p.WebURL,
		HTTPURLToRepo:     p.HTTPURLToRepo,
	}
}
