package http

import (
	"context"
	"net/http"

	"github.com/Strob0t/Weaver/internal/domain/provider"
	"github.com/Strob0t/Weaver/internal/domain/session"
	"github.com/Strob0t/Weaver/internal/service"
)

// SessionAPI is the session surface the handlers need.
// *service.SessionService implements it.
type SessionAPI interface {
	Create(ctx context.Context, req session.CreateRequest) (*session.View, error)
	List(ctx context.Context) ([]session.View, error)
	Get(ctx context.Context, id int64) (*session.View, error)
	Delete(ctx context.Context, id int64) error
	ListLogs(ctx context.Context, id int64, offset, limit int) ([]session.Log, error)
}

// RuntimeAPI is the post-ready session surface.
// *service.RuntimeService implements it.
type RuntimeAPI interface {
	RunGitCommand(ctx context.Context, id int64, req session.GitRequest) (*session.GitResult, error)
	ExportContext(ctx context.Context, id int64) (*session.Context, error)
	StartContainer(ctx context.Context, id int64) (*session.View, error)
}

// ProviderAPI manages provider connections.
// *service.ProviderService implements it.
type ProviderAPI interface {
	List(ctx context.Context) ([]provider.Provider, error)
	Create(ctx context.Context, req provider.Request) (*provider.Provider, error)
	Update(ctx context.Context, id int64, req provider.Request) (*provider.Provider, error)
	Delete(ctx context.Context, id int64) error
	TestConnection(ctx context.Context, id int64) (*provider.ConnectionResult, error)
	ListRepositories(ctx context.Context, id int64) ([]provider.Repository, error)
}

var (
	_ SessionAPI  = (*service.SessionService)(nil)
	_ RuntimeAPI  = (*service.RuntimeService)(nil)
	_ ProviderAPI = (*service.ProviderService)(nil)
)

// Handlers holds the HTTP handlers and their service dependencies.
type Handlers struct {
	Sessions  SessionAPI
	Runtime   RuntimeAPI
	Providers ProviderAPI
	WS        http.Handler
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
