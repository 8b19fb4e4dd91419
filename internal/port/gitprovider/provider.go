// Package gitprovider defines the port for source-control provider API clients.
package gitprovider

import (
	"context"
	"time"

	"github.com/Strob0t/Weaver/internal/domain/provider"
)

// Client talks to one provider's REST API with a decrypted token.
type Client interface {
	// TestConnection checks that the base URL and token are accepted.
	// Transport and HTTP failures are reported in the result, not as errors.
	TestConnection(ctx context.Context) provider.ConnectionResult

	// ListRepositories returns every repository visible to the token,
	// following the provider's pagination.
	ListRepositories(ctx context.Context) ([]provider.Repository, error)
}

// Config holds what a Factory needs to build a Client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}
