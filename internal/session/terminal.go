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

// TerminalKind is the actor kind for terminal sessions.
const TerminalKind = "terminal"

const blobCommands = "commands"

// Terminal holds the command history of one terminal session. Command
// execution itself is driven by an external tool runner reporting status
// changes back; the actor never simulates completion.
type Terminal struct {
	id     string
	store  storage.Store
	hub    *events.Hub
	logger *slog.Logger

	commands []*core.TerminalCommand
}

// NewTerminalFactory returns a runtime factory producing terminal sessions.
func NewTerminalFactory(store storage.Store, logger *slog.Logger) runtime.Factory {
	return func(id string) runtime.Actor {
		return &Terminal{
			id:     id,
			store:  store,
			hub:    events.NewHub(0),
			logger: logger.With("kind", TerminalKind, "session_id", id),
		}
	}
}

// Kind implements runtime.Actor.
func (t *Terminal) Kind() string { return TerminalKind }

// ID implements runtime.Actor.
func (t *Terminal) ID() string { return t.id }

// Hub implements runtime.Actor.
func (t *Terminal) Hub() *events.Hub { return t.hub }

// Load materializes the command history from storage.
func (t *Terminal) Load(ctx context.Context) error {
	part := runtime.Partition(TerminalKind, t.id)

	if data, err := t.store.Get(ctx, part, blobCommands); err == nil {
		if err := json.Unmarshal(data, &t.commands); err != nil {
			return core.ErrState(core.CodeStateCorrupted, "command history blob is corrupt").WithCause(err)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return core.ErrStorage("loading command history", err)
	}
	return nil
}

// StartCommand records a newly submitted command in running state.
func (t *Terminal) StartCommand(ctx context.Context, command string) (*core.TerminalCommand, error) {
	if command == "" {
		return nil, core.ErrValidation(core.CodeEmptyCommand, "command cannot be empty")
	}

	now := time.Now()
	cmd := &core.TerminalCommand{
		ID:        uuid.NewString(),
		SessionID: t.id,
		Command:   command,
		Status:    core.CommandStatusRunning,
		StartedAt: &now,
		CreatedAt: now,
	}

	t.commands = append(t.commands, cmd)
	if err := t.persist(ctx); err != nil {
		t.commands = t.commands[:len(t.commands)-1]
		return nil, err
	}

	t.hub.Broadcast("command-started", map[string]interface{}{"command": cmd})
	return cmd, nil
}

// UpdateCommand applies a runner-reported status change. Exit code and
// duration are captured when the command finishes.
func (t *Terminal) UpdateCommand(ctx context.Context, commandID string, status core.CommandStatus, exitCode *int, output string) (*core.TerminalCommand, error) {
	var cmd *core.TerminalCommand
	for _, c := range t.commands {
		if c.ID == commandID {
			cmd = c
			break
		}
	}
	if cmd == nil {
		return nil, &core.DomainError{
			Category: core.ErrCatNotFound,
			Code:     core.CodeCommandNotFound,
			Message:  "command not found: " + commandID,
		}
	}

	prev := *cmd
	if err := cmd.Transition(status, exitCode); err != nil {
		return nil, err
	}
	if output != "" {
		cmd.Output += output
	}

	if err := t.persist(ctx); err != nil {
		*cmd = prev
		return nil, err
	}

	t.hub.Broadcast("command-updated", map[string]interface{}{"command": cmd})
	return cmd, nil
}

// Commands returns the command history in submission order.
func (t *Terminal) Commands() []*core.TerminalCommand {
	out := make([]*core.TerminalCommand, len(t.commands))
	copy(out, t.commands)
	return out
}

// Clear deletes the command history.
func (t *Terminal) Clear(ctx context.Context) (int, error) {
	cleared := len(t.commands)
	prev := t.commands

	t.commands = nil
	if err := t.persist(ctx); err != nil {
		t.commands = prev
		return 0, err
	}

	t.hub.Broadcast("history-cleared", map[string]interface{}{"cleared_commands": cleared})
	return cleared, nil
}

func (t *Terminal) persist(ctx context.Context) error {
	part := runtime.Partition(TerminalKind, t.id)

	data, err := json.Marshal(t.commands)
	if err != nil {
		return core.ErrState(core.CodeStateCorrupted, "marshaling command history").WithCause(err)
	}
	if err := t.store.Put(ctx, part, blobCommands, data); err != nil {
		return core.ErrStorage("persisting command history", err)
	}
	return nil
}
