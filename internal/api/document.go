package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/covalent-hq/conclave/internal/core"
	"github.com/covalent-hq/conclave/internal/runtime"
	"github.com/covalent-hq/conclave/internal/session"
)

type documentOperationRequest struct {
	session.OperationInput
	OriginID string `json:"originId"`
}

func (s *Server) handleDocumentApply(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	var req documentOperationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var op *core.DocumentOperation
	err := runtime.Do(s.rt, r.Context(), session.DocumentKind, documentID, func(ctx context.Context, d *session.Document) error {
		var opErr error
		op, opErr = d.ApplyOperation(ctx, req.OperationInput, req.OriginID)
		return opErr
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, op)
}

func (s *Server) handleDocumentGet(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	var state *core.DocumentState
	err := runtime.Do(s.rt, r.Context(), session.DocumentKind, documentID, func(_ context.Context, d *session.Document) error {
		state = d.State()
		return nil
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleDocumentOperations(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	var ops []*core.DocumentOperation
	err := runtime.Do(s.rt, r.Context(), session.DocumentKind, documentID, func(_ context.Context, d *session.Document) error {
		ops = d.Operations()
		return nil
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ops)
}

func (s *Server) handleDocumentClear(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	err := runtime.Do(s.rt, r.Context(), session.DocumentKind, documentID, func(ctx context.Context, d *session.Document) error {
		return d.Clear(ctx)
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

func (s *Server) handleDocumentEvents(w http.ResponseWriter, r *http.Request) {
	s.streamEvents(w, r, session.DocumentKind, chi.URLParam(r, "documentID"))
}
