package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/covalent-hq/conclave/internal/core"
	"github.com/covalent-hq/conclave/internal/runtime"
	"github.com/covalent-hq/conclave/internal/session"
)

type chatMessageRequest struct {
	Role    string `json:"role"`
	Agent   string `json:"agent"`
	Content string `json:"content"`
}

func (s *Server) handleChatPost(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var req chatMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var msg *core.ChatMessage
	err := runtime.Do(s.rt, r.Context(), session.ChatKind, roomID, func(ctx context.Context, room *session.ChatRoom) error {
		var opErr error
		msg, opErr = room.AppendMessage(ctx, req.Role, req.Agent, req.Content)
		return opErr
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var messages []*core.ChatMessage
	err := runtime.Do(s.rt, r.Context(), session.ChatKind, roomID, func(_ context.Context, room *session.ChatRoom) error {
		messages = room.Messages()
		return nil
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, messages)
}

func (s *Server) handleChatUpdateSession(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var patch session.SessionPatch
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var sess *core.ChatSession
	err := runtime.Do(s.rt, r.Context(), session.ChatKind, roomID, func(ctx context.Context, room *session.ChatRoom) error {
		var opErr error
		sess, opErr = room.UpdateSession(ctx, patch)
		return opErr
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleChatSession(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var sess *core.ChatSession
	err := runtime.Do(s.rt, r.Context(), session.ChatKind, roomID, func(_ context.Context, room *session.ChatRoom) error {
		sess = room.Session()
		return nil
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleChatClear(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var cleared int
	err := runtime.Do(s.rt, r.Context(), session.ChatKind, roomID, func(ctx context.Context, room *session.ChatRoom) error {
		var opErr error
		cleared, opErr = room.Clear(ctx)
		return opErr
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

func (s *Server) handleChatEvents(w http.ResponseWriter, r *http.Request) {
	s.streamEvents(w, r, session.ChatKind, chi.URLParam(r, "roomID"))
}
