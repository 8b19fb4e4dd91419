package http

import "net/http"

const providerNotFound = "Provider not found"

// ListProviders handles GET /api/v1/providers
func (h *Handlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	handleList(h.Providers.List)(w, r)
}

// CreateProvider handles POST /api/v1/providers
func (h *Handlers) CreateProvider(w http.ResponseWriter, r *http.Request) {
	handleCreate(h.Providers.Create, providerNotFound)(w, r)
}

// UpdateProvider handles PUT /api/v1/providers/{id}
func (h *Handlers) UpdateProvider(w http.ResponseWriter, r *http.Request) {
	handleUpdate(h.Providers.Update, providerNotFound)(w, r)
}

// DeleteProvider handles DELETE /api/v1/providers/{id}
func (h *Handlers) DeleteProvider(w http.ResponseWriter, r *http.Request) {
	handleDelete(h.Providers.Delete, providerNotFound)(w, r)
}

// TestProviderConnection handles POST /api/v1/providers/{id}/test
func (h *Handlers) TestProviderConnection(w http.ResponseWriter, r *http.Request) {
	handleAction(h.Providers.TestConnection, providerNotFound)(w, r)
}

// ListProviderRepositories handles GET /api/v1/providers/{id}/repos
func (h *Handlers) ListProviderRepositories(w http.ResponseWriter, r *http.Request) {
	handleListByID(h.Providers.ListRepositories, providerNotFound)(w, r)
}
