package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Strob0t/Weaver/internal/port/gitprovider"
)

var _ gitprovider.Client = (*Client)(nil)

func TestTestConnectionHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer ghp-secret" {
			t.Errorf("unexpected Authorization %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Accept") != "application/vnd.github+json" || r.Header.Get("User-Agent") != "weaver" {
			t.Errorf("missing GitHub headers")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(gitprovider.Config{BaseURL: srv.URL, Token: "ghp-secret", Timeout: time.Second})
	if res := c.TestConnection(context.Background()); !res.OK || res.Message != "Connection OK" {
		t.Fatalf("got %+v", res)
	}
}

func TestTestConnectionTransportFailure(t *testing.T) {
	c := NewClient(gitprovider.Config{BaseURL: "http://127.0.0.1:1", Token: "ghp-secret", Timeout: time.Second})
	res := c.TestConnection(context.Background())
	if res.OK || res.Message != "GitHub API request failed" {
		t.Fatalf("got %+v", res)
	}
}

func TestListRepositoriesFollowsLinkHeader(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var repos []githubRepo
		if r.URL.Query().Get("page") == "" {
			if r.URL.Query().Get("affiliation") != "owner,collaborator,organization_member" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			w.Header().Set("Link", `<`+srv.URL+`/user/repos?page=2>; rel="next", <`+srv.URL+`/user/repos?page=2>; rel="last"`)
			repos = []githubRepo{{ID: 1, Name: "a", FullName: "me/a", CloneURL: "https://github.com/me/a.git"}}
		} else {
			repos = []githubRepo{{ID: 2, Name: "b", FullName: "org/b", DefaultBranch: "develop", CloneURL: "https://github.com/org/b.git"}}
		}
		_ = json.NewEncoder(w).Encode(repos)
	}))
	defer srv.Close()

	c := NewClient(gitprovider.Config{BaseURL: srv.URL, Token: "t", Timeout: time.Second})
	repos, err := c.ListRepositories(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repos) != 2 || repos[1].PathWithNamespace != "org/b" || repos[1].HTTPURLToRepo != "https://github.com/org/b.git" {
		t.Fatalf("unexpected repos: %+v", repos)
	}
}

func TestNextLink(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{`<https://api.github.com/user/repos?page=3>; rel="next"`, "https://api.github.com/user/repos?page=3"},
		{`<https://api.github.com/user/repos?page=1>; rel="prev"`, ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := nextLink(tt.header); got != tt.want {
			t.Errorf("nextLink(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
