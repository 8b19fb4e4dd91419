package http

import (
	"net/http"

	"github.com/Strob0t/Weaver/internal/domain/session"
	"github.com/Strob0t/Weaver/internal/service"
)

const sessionNotFound = "Session not found"

// ListSessions handles GET /api/v1/sessions
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	handleList(h.Sessions.List)(w, r)
}

// CreateSession handles POST /api/v1/sessions
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	handleCreate(h.Sessions.Create, "Provider not found")(w, r)
}

// GetSession handles GET /api/v1/sessions/{id}
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Sessions.Get, sessionNotFound)(w, r)
}

// DeleteSession handles DELETE /api/v1/sessions/{id}
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	handleDelete(h.Sessions.Delete, sessionNotFound)(w, r)
}

// ListSessionLogs handles GET /api/v1/sessions/{id}/logs?offset=&limit=
func (h *Handlers) ListSessionLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	offset, okOffset := queryInt(r, "offset", 0)
	limit, okLimit := queryInt(r, "limit", service.DefaultLogLimit)
	if !okOffset || !okLimit {
		writeError(w, http.StatusBadRequest, "offset and limit must be integers")
		return
	}
	logs, err := h.Sessions.ListLogs(r.Context(), id, offset, limit)
	if err != nil {
		writeDomainError(w, err, sessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// RunSessionGitCommand handles POST /api/v1/sessions/{id}/git
func (h *Handlers) RunSessionGitCommand(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[session.GitRequest](w, r)
	if !ok {
		return
	}
	res, err := h.Runtime.RunGitCommand(r.Context(), id, req)
	if err != nil {
		writeDomainError(w, err, sessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ExportSessionContext handles GET /api/v1/sessions/{id}/context
func (h *Handlers) ExportSessionContext(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Runtime.ExportContext, sessionNotFound)(w, r)
}

// StartSessionContainer handles POST /api/v1/sessions/{id}/start
func (h *Handlers) StartSessionContainer(w http.ResponseWriter, r *http.Request) {
	handleAction(h.Runtime.StartContainer, sessionNotFound)(w, r)
}
