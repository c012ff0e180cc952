package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/covalent-hq/conclave/internal/core"
	"github.com/covalent-hq/conclave/internal/runtime"
	"github.com/covalent-hq/conclave/internal/session"
)

type terminalStartRequest struct {
	Command string `json:"command"`
}

type terminalUpdateRequest struct {
	Status   core.CommandStatus `json:"status"`
	ExitCode *int               `json:"exitCode,omitempty"`
	Output   string             `json:"output"`
}

func (s *Server) handleTerminalStart(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req terminalStartRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var cmd *core.TerminalCommand
	err := runtime.Do(s.rt, r.Context(), session.TerminalKind, sessionID, func(ctx context.Context, t *session.Terminal) error {
		var opErr error
		cmd, opErr = t.StartCommand(ctx, req.Command)
		return opErr
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, cmd)
}

func (s *Server) handleTerminalUpdate(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	commandID := chi.URLParam(r, "commandID")

	var req terminalUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var cmd *core.TerminalCommand
	err := runtime.Do(s.rt, r.Context(), session.TerminalKind, sessionID, func(ctx context.Context, t *session.Terminal) error {
		var opErr error
		cmd, opErr = t.UpdateCommand(ctx, commandID, req.Status, req.ExitCode, req.Output)
		return opErr
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cmd)
}

func (s *Server) handleTerminalCommands(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var commands []*core.TerminalCommand
	err := runtime.Do(s.rt, r.Context(), session.TerminalKind, sessionID, func(_ context.Context, t *session.Terminal) error {
		commands = t.Commands()
		return nil
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, commands)
}

func (s *Server) handleTerminalClear(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var cleared int
	err := runtime.Do(s.rt, r.Context(), session.TerminalKind, sessionID, func(ctx context.Context, t *session.Terminal) error {
		var opErr error
		cleared, opErr = t.Clear(ctx)
		return opErr
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

func (s *Server) handleTerminalEvents(w http.ResponseWriter, r *http.Request) {
	s.streamEvents(w, r, session.TerminalKind, chi.URLParam(r, "sessionID"))
}
