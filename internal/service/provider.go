package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Strob0t/Weaver/internal/domain"
	"github.com/Strob0t/Weaver/internal/domain/provider"
	"github.com/Strob0t/Weaver/internal/port/cache"
	"github.com/Strob0t/Weaver/internal/port/database"
	"github.com/Strob0t/Weaver/internal/port/gitprovider"
	"github.com/Strob0t/Weaver/internal/resilience"
)

// ProviderService manages provider connections and proxies their REST APIs.
type ProviderService struct {
	store     database.ProviderStore
	cipher    TokenCipher
	breakers  *resilience.Group
	cache     cache.Cache
	cacheTTL  time.Duration
	timeout   time.Duration
	newClient func(t provider.Type, cfg gitprovider.Config) (gitprovider.Client, error)
}

// NewProviderService creates a ProviderService. repoCache may be nil.
func NewProviderService(
	store database.ProviderStore,
	cipher TokenCipher,
	breakers *resilience.Group,
	repoCache cache.Cache,
	cacheTTL, timeout time.Duration,
) *ProviderService {
	return &ProviderService{
		store:     store,
		cipher:    cipher,
		breakers:  breakers,
		cache:     repoCache,
		cacheTTL:  cacheTTL,
		timeout:   timeout,
		newClient: gitprovider.New,
	}
}

func reposKey(id int64) string {
	return "repos:" + strconv.FormatInt(id, 10)
}

// List returns all providers.
func (s *ProviderService) List(ctx context.Context) ([]provider.Provider, error) {
	return s.store.ListProviders(ctx)
}

// Get returns a provider by id.
func (s *ProviderService) Get(ctx context.Context, id int64) (*provider.Provider, error) {
	return s.store.GetProvider(ctx, id)
}

// Create validates req, encrypts its token and stores a new provider.
func (s *ProviderService) Create(ctx context.Context, req provider.Request) (*provider.Provider, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	enc, err := s.cipher.Encrypt(req.Token)
	if err != nil {
		return nil, fmt.Errorf("encrypt token: %w", err)
	}
	p := &provider.Provider{
		Name:           req.Name,
		BaseURL:        req.BaseURL,
		Type:           req.Type,
		EncryptedToken: enc,
		GitConfig:      provider.ResolveGitConfig(req.GitConfig, ""),
	}
	if err := s.store.CreateProvider(ctx, p); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Provider created", "id", p.ID, "type", p.Type)
	return p, nil
}

// Update replaces a provider's fields. A blank git config keeps the
// previous one.
func (s *ProviderService) Update(ctx context.Context, id int64, req provider.Request) (*provider.Provider, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	p, err := s.store.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	enc, err := s.cipher.Encrypt(req.Token)
	if err != nil {
		return nil, fmt.Errorf("encrypt token: %w", err)
	}
	p.Name = req.Name
	p.BaseURL = req.BaseURL
	p.Type = req.Type
	p.EncryptedToken = enc
	p.GitConfig = provider.ResolveGitConfig(req.GitConfig, p.GitConfig)
	if err := s.store.UpdateProvider(ctx, p); err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	slog.InfoContext(ctx, "Provider updated", "id", id)
	return p, nil
}

// Delete removes a provider.
func (s *ProviderService) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteProvider(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	slog.InfoContext(ctx, "Provider deleted", "id", id)
	return nil
}

func (s *ProviderService) invalidate(ctx context.Context, id int64) {
	s.breakers.Forget(id)
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, reposKey(id)); err != nil {
		slog.WarnContext(ctx, "repository cache invalidation failed", "provider_id", id, "error", err)
	}
}

func (s *ProviderService) client(ctx context.Context, id int64) (gitprovider.Client, error) {
	p, err := s.store.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	token, err := s.cipher.Decrypt(p.EncryptedToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt token for provider %d: %w", id, err)
	}
	return s.newClient(p.Type, gitprovider.Config{BaseURL: p.BaseURL, Token: token, Timeout: s.timeout})
}

// TestConnection checks the provider's base URL and token. Failures are
// reported in the result.
func (s *ProviderService) TestConnection(ctx context.Context, id int64) (*provider.ConnectionResult, error) {
	c, err := s.client(ctx, id)
	if err != nil {
		return nil, err
	}
	var res provider.ConnectionResult
	err = s.breakers.For(id).Execute(func() error {
		res = c.TestConnection(ctx)
		if !res.OK {
			return errors.New(res.Message)
		}
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		res = provider.ConnectionResult{OK: false, Message: "Provider temporarily unavailable"}
	}
	slog.InfoContext(ctx, "Provider connection test", "id", id, "ok", res.OK)
	return &res, nil
}

// ListRepositories returns the repositories visible to the provider token,
// served from cache when possible.
func (s *ProviderService) ListRepositories(ctx context.Context, id int64) ([]provider.Repository, error) {
	key := reposKey(id)
	if s.cache != nil {
		repos, ok, err := cache.GetJSON[[]provider.Repository](ctx, s.cache, key)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "discarding unreadable repository cache entry", "provider_id", id, "error", err)
		case ok:
			return repos, nil
		}
	}

	c, err := s.client(ctx, id)
	if err != nil {
		return nil, err
	}
	var repos []provider.Repository
	err = s.breakers.For(id).Execute(func() error {
		var listErr error
		repos, listErr = c.ListRepositories(ctx)
		return listErr
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("%w: provider %d: %w", domain.ErrUnavailable, id, err)
		}
		return nil, fmt.Errorf("list repositories for provider %d: %w", id, err)
	}
	if repos == nil {
		repos = []provider.Repository{}
	}

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, key, repos, s.cacheTTL); err != nil {
			slog.WarnContext(ctx, "repository cache write failed", "provider_id", id, "error", err)
		}
	}
	slog.InfoContext(ctx, "Provider repos listed", "id", id, "count", len(repos))
	return repos, nil
}
