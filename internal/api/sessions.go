package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/covalent-hq/conclave/internal/core"
	"github.com/covalent-hq/conclave/internal/runtime"
	"github.com/covalent-hq/conclave/internal/session"
)

// Handlers for the generic log-style session kinds (app builder,
// integration, thread). The kind comes from the URL and must be one of
// the registered log kinds.

func logKindFromRequest(r *http.Request) (string, bool) {
	kind := chi.URLParam(r, "kind")
	for _, k := range session.LogKinds {
		if k == kind {
			return kind, true
		}
	}
	return kind, false
}

type logAppendRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (s *Server) handleLogAppend(w http.ResponseWriter, r *http.Request) {
	kind, ok := logKindFromRequest(r)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown session kind "+kind)
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	var req logAppendRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var entry *core.LogEntry
	err := runtime.Do(s.rt, r.Context(), kind, sessionID, func(ctx context.Context, ls *session.LogSession) error {
		var opErr error
		entry, opErr = ls.Append(ctx, req.Type, req.Data)
		return opErr
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleLogEntries(w http.ResponseWriter, r *http.Request) {
	kind, ok := logKindFromRequest(r)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown session kind "+kind)
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	var entries []*core.LogEntry
	err := runtime.Do(s.rt, r.Context(), kind, sessionID, func(_ context.Context, ls *session.LogSession) error {
		entries = ls.Entries()
		return nil
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleLogSetState(w http.ResponseWriter, r *http.Request) {
	kind, ok := logKindFromRequest(r)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown session kind "+kind)
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	var patch map[string]interface{}
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var state map[string]interface{}
	err := runtime.Do(s.rt, r.Context(), kind, sessionID, func(ctx context.Context, ls *session.LogSession) error {
		var opErr error
		state, opErr = ls.SetState(ctx, patch)
		return opErr
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleLogState(w http.ResponseWriter, r *http.Request) {
	kind, ok := logKindFromRequest(r)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown session kind "+kind)
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	var state map[string]interface{}
	err := runtime.Do(s.rt, r.Context(), kind, sessionID, func(_ context.Context, ls *session.LogSession) error {
		state = ls.State()
		return nil
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleLogClear(w http.ResponseWriter, r *http.Request) {
	kind, ok := logKindFromRequest(r)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown session kind "+kind)
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	var cleared int
	err := runtime.Do(s.rt, r.Context(), kind, sessionID, func(ctx context.Context, ls *session.LogSession) error {
		var opErr error
		cleared, opErr = ls.Clear(ctx)
		return opErr
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

func (s *Server) handleLogEvents(w http.ResponseWriter, r *http.Request) {
	kind, ok := logKindFromRequest(r)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown session kind "+kind)
		return
	}
	s.streamEvents(w, r, kind, chi.URLParam(r, "sessionID"))
}
