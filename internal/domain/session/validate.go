package session

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/Strob0t/Weaver/internal/domain"
)

var (
	branchPattern   = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)
	repoNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// ValidateBranch rejects branch names that could escape the git argument
// position or traverse paths.
func ValidateBranch(branch string) error {
	if branch == "" {
		return fmt.Errorf("%w: branch is required for checkout", domain.ErrValidation)
	}
	if !branchPattern.MatchString(branch) || strings.Contains(branch, "..") ||
		strings.HasPrefix(branch, "-") || strings.HasPrefix(branch, "/") {
		return fmt.Errorf("%w: invalid branch name", domain.ErrValidation)
	}
	return nil
}

// ValidateRepoName checks the directory name the repository is cloned into.
func ValidateRepoName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: repo_name is required", domain.ErrValidation)
	}
	if !repoNamePattern.MatchString(name) || name == "." || name == ".." {
		return fmt.Errorf("%w: invalid repo_name", domain.ErrValidation)
	}
	return nil
}

// ValidateRepoPath checks the namespaced repository path (group/sub/repo).
func ValidateRepoPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: repo_path_with_namespace is required", domain.ErrValidation)
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("%w: invalid repo_path_with_namespace", domain.ErrValidation)
	}
	return nil
}

// ValidateCloneURL requires an http(s) URL without embedded credentials.
func ValidateCloneURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: repo_http_url is required", domain.ErrValidation)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: repo_http_url must be an http(s) URL", domain.ErrValidation)
	}
	if u.User != nil {
		return fmt.Errorf("%w: repo_http_url must not embed credentials", domain.ErrValidation)
	}
	return nil
}

// Normalize trims whitespace from every free-text field.
func (r *CreateRequest) Normalize() {
	r.RepoName = strings.TrimSpace(r.RepoName)
	r.RepoPathWithNamespace = strings.TrimSpace(r.RepoPathWithNamespace)
	r.RepoHTTPURL = strings.TrimSpace(r.RepoHTTPURL)
	r.DefaultBranch = strings.TrimSpace(r.DefaultBranch)
}

// Validate checks a normalized CreateRequest.
func (r *CreateRequest) Validate() error {
	if r.ProviderID <= 0 {
		return fmt.Errorf("%w: provider_id is required", domain.ErrValidation)
	}
	if err := ValidateRepoName(r.RepoName); err != nil {
		return err
	}
	if err := ValidateRepoPath(r.RepoPathWithNamespace); err != nil {
		return err
	}
	if err := ValidateCloneURL(r.RepoHTTPURL); err != nil {
		return err
	}
	if r.DefaultBranch != "" {
		if err := ValidateBranch(r.DefaultBranch); err != nil {
			return fmt.Errorf("%w: invalid default_branch", domain.ErrValidation)
		}
	}
	return nil
}
