// Package azuredevops implements a gitprovider.Client for Azure DevOps
// organizations using the REST API 7.0.
package azuredevops

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/Strob0t/Weaver/internal/domain/provider"
	"github.com/Strob0t/Weaver/internal/port/gitprovider"
)

const apiVersion = "7.0"

// Client implements gitprovider.Client for Azure DevOps.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates an Azure DevOps client. baseURL is the organization URL,
// for example https://dev.azure.com/contoso.
func NewClient(cfg gitprovider.Config) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type azureRepo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	WebURL  string `json:"webUrl"`
	Remote  string `json:"remoteUrl"`
	Project *struct {
		Name string `json:"name"`
	} `json:"project"`
}

type azureRepoPage struct {
	Value []azureRepo `json:"value"`
}

func (c *Client) TestConnection(ctx context.Context) provider.ConnectionResult {
	if _, _, err := c.get(ctx, c.baseURL+"/_apis/projects?api-version="+apiVersion); err != nil {
		slog.Warn("azure devops connection test failed", "error", err)
		var apiErr *provider.APIError
		if errors.As(err, &apiErr) {
			return provider.ConnectionResult{OK: false, Message: apiErr.Error()}
		}
		return provider.ConnectionResult{OK: false, Message: "Azure DevOps API request failed"}
	}
	return provider.ConnectionResult{OK: true, Message: "Connection OK"}
}

// ListRepositories pages with the x-ms-continuationtoken header.
func (c *Client) ListRepositories(ctx context.Context) ([]provider.Repository, error) {
	repos := []provider.Repository{}
	continuation := ""
	for {
		reqURL := c.baseURL + "/_apis/git/repositories?api-version=" + apiVersion
		if continuation != "" {
			reqURL += "&continuationToken=" + url.QueryEscape(continuation)
		}
		body, header, err := c.get(ctx, reqURL)
		if err != nil {
			return nil, fmt.Errorf("azure devops list repositories: %w", err)
		}
		var page azureRepoPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("azure devops parse response: %w", err)
		}
		for i := range page.Value {
			repos = append(repos, toRepository(&page.Value[i]))
		}
		continuation = strings.TrimSpace(header.Get("x-ms-continuationtoken"))
		if continuation == "" {
			return repos, nil
		}
	}
}

func toRepository(r *azureRepo) provider.Repository {
	path := r.Name
	if r.Project != nil && strings.TrimSpace(r.Project.Name) != "" {
		path = strings.TrimSpace(r.Project.Name) + "/" + r.Name
	}
	return provider.Repository{
		ID:                repoID(r.ID),
		Name:              r.Name,
		PathWithNamespace: path,
		WebURL:            r.WebURL,
		HTTPURLToRepo:     r.Remote,
	}
}

// repoID folds a repository GUID into an int64 by XOR-ing its two halves.
// Ids that are not GUIDs fall back to an FNV-1a hash.
func repoID(id string) int64 {
	u, err := uuid.Parse(id)
	if err != nil {
		h := fnv.New64a()
		_, _ = h.Write([]byte(id))
		return int64(h.Sum64()) //nolint:gosec // G115: wrap-around is intended
	}
	msb := binary.BigEndian.Uint64(u[:8])
	lsb := binary.BigEndian.Uint64(u[8:])
	return int64(msb ^ lsb) //nolint:gosec // G115: wrap-around is intended
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("pat:"+c.token)))

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL is constructed from the configured organization URL
	if err != nil {
		return nil, nil, &provider.APIError{Provider: "Azure DevOps", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &provider.APIError{Provider: "Azure DevOps", StatusCode: resp.StatusCode}
	}
	return body, resp.Header, nil
}
