// Package session implements the session/room actors: chat rooms,
// terminal sessions, collaborative documents, and generic log sessions
// (app-builder, integration, agent-thread). They share a common shape:
// an ordered append log plus a small mutable state blob, persisted
// synchronously before every broadcast.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/covalent-hq/conclave/internal/core"
	"github.com/covalent-hq/conclave/internal/events"
	"github.com/covalent-hq/conclave/internal/runtime"
	"github.com/covalent-hq/conclave/internal/storage"
)

// ChatKind is the actor kind for chat rooms.
const ChatKind = "chat"

const (
	blobSession  = "session"
	blobMessages = "messages"
)

// ChatRoom holds the message log and session metadata for one room.
type ChatRoom struct {
	id     string
	store  storage.Store
	hub    *events.Hub
	logger *slog.Logger

	session  *core.ChatSession
	messages []*core.ChatMessage
}

// NewChatFactory returns a runtime factory producing chat rooms.
func NewChatFactory(store storage.Store, logger *slog.Logger) runtime.Factory {
	return func(id string) runtime.Actor {
		return &ChatRoom{
			id:     id,
			store:  store,
			hub:    events.NewHub(0),
			logger: logger.With("kind", ChatKind, "room_id", id),
		}
	}
}

// Kind implements runtime.Actor.
func (r *ChatRoom) Kind() string { return ChatKind }

// ID implements runtime.Actor.
func (r *ChatRoom) ID() string { return r.id }

// Hub implements runtime.Actor.
func (r *ChatRoom) Hub() *events.Hub { return r.hub }

// Load materializes the room from storage, default-constructing the
// session for a fresh room.
func (r *ChatRoom) Load(ctx context.Context) error {
	part := runtime.Partition(ChatKind, r.id)

	if data, err := r.store.Get(ctx, part, blobSession); err == nil {
		r.session = &core.ChatSession{}
		if err := json.Unmarshal(data, r.session); err != nil {
			return core.ErrState(core.CodeStateCorrupted, "chat session blob is corrupt").WithCause(err)
		}
	} else if errors.Is(err, storage.ErrNotFound) {
		now := time.Now()
		r.session = &core.ChatSession{ID: r.id, CreatedAt: now, UpdatedAt: now}
	} else {
		return core.ErrStorage("loading chat session", err)
	}

	if data, err := r.store.Get(ctx, part, blobMessages); err == nil {
		if err := json.Unmarshal(data, &r.messages); err != nil {
			return core.ErrState(core.CodeStateCorrupted, "chat messages blob is corrupt").WithCause(err)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return core.ErrStorage("loading chat messages", err)
	}

	return nil
}

// AppendMessage validates and appends one message to the room log.
func (r *ChatRoom) AppendMessage(ctx context.Context, role, agent, content string) (*core.ChatMessage, error) {
	if !core.ValidChatRole(role) {
		return nil, core.ErrValidation(core.CodeInvalidRole, "role must be user, agent or system")
	}
	if content == "" {
		return nil, core.ErrValidation(core.CodeEmptyContent, "message content cannot be empty")
	}

	msg := &core.ChatMessage{
		ID:        uuid.NewString(),
		RoomID:    r.id,
		Role:      role,
		Agent:     agent,
		Content:   content,
		Timestamp: time.Now(),
	}

	r.messages = append(r.messages, msg)
	r.session.MessageCount = len(r.messages)
	r.session.UpdatedAt = msg.Timestamp

	if err := r.persist(ctx); err != nil {
		r.messages = r.messages[:len(r.messages)-1]
		r.session.MessageCount = len(r.messages)
		return nil, err
	}

	r.hub.Broadcast("message-added", map[string]interface{}{"message": msg})
	return msg, nil
}

// Messages returns the full message log in append order.
func (r *ChatRoom) Messages() []*core.ChatMessage {
	out := make([]*core.ChatMessage, len(r.messages))
	copy(out, r.messages)
	return out
}

// SessionPatch carries optional metadata updates; nil fields are left
// untouched.
type SessionPatch struct {
	Title *string `json:"title,omitempty"`
	Agent *string `json:"agent,omitempty"`
	Model *string `json:"model,omitempty"`
}

// UpdateSession applies a metadata patch to the room.
func (r *ChatRoom) UpdateSession(ctx context.Context, patch SessionPatch) (*core.ChatSession, error) {
	prev := *r.session
	if patch.Title != nil {
		r.session.Title = *patch.Title
	}
	if patch.Agent != nil {
		r.session.Agent = *patch.Agent
	}
	if patch.Model != nil {
		r.session.Model = *patch.Model
	}
	r.session.UpdatedAt = time.Now()

	if err := r.persist(ctx); err != nil {
		*r.session = prev
		return nil, err
	}

	r.hub.Broadcast("session-updated", map[string]interface{}{"session": r.session})
	return r.session, nil
}

// Session returns the room metadata.
func (r *ChatRoom) Session() *core.ChatSession {
	return r.session
}

// Clear deletes every message, keeping room metadata.
func (r *ChatRoom) Clear(ctx context.Context) (int, error) {
	cleared := len(r.messages)
	prevMessages := r.messages
	prevSession := *r.session

	r.messages = nil
	r.session.MessageCount = 0
	r.session.UpdatedAt = time.Now()

	if err := r.persist(ctx); err != nil {
		r.messages = prevMessages
		*r.session = prevSession
		return 0, err
	}

	r.hub.Broadcast("messages-cleared", map[string]interface{}{"cleared_messages": cleared})
	return cleared, nil
}

func (r *ChatRoom) persist(ctx context.Context) error {
	part := runtime.Partition(ChatKind, r.id)

	sessionData, err := json.Marshal(r.session)
	if err != nil {
		return core.ErrState(core.CodeStateCorrupted, "marshaling chat session").WithCause(err)
	}
	messagesData, err := json.Marshal(r.messages)
	if err != nil {
		return core.ErrState(core.CodeStateCorrupted, "marshaling chat messages").WithCause(err)
	}

	err = r.store.PutMulti(ctx, part, map[string][]byte{
		blobSession:  sessionData,
		blobMessages: messagesData,
	})
	if err != nil {
		return core.ErrStorage("persisting chat room", err)
	}
	return nil
}
