package core

import (
	"encoding/json"
	"time"
)

// ChatMessage represents a message in a chat room.
type ChatMessage struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	Role      string    `json:"role"` // "user", "agent", "system"
	Agent     string    `json:"agent,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ValidChatRole reports whether role is one of the accepted sender roles.
func ValidChatRole(role string) bool {
	switch role {
	case "user", "agent", "system":
		return true
	}
	return false
}

// ChatSession holds the mutable metadata of a chat room.
type ChatSession struct {
	ID           string    `json:"id"`
	Title        string    `json:"title,omitempty"`
	Agent        string    `json:"agent,omitempty"`
	Model        string    `json:"model,omitempty"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CommandStatus represents the lifecycle state of a terminal command.
type CommandStatus string

const (
	CommandStatusPending   CommandStatus = "pending"
	CommandStatusRunning   CommandStatus = "running"
	CommandStatusCompleted CommandStatus = "completed"
	CommandStatusFailed    CommandStatus = "failed"
	CommandStatusCancelled CommandStatus = "cancelled"
)

var commandRank = map[CommandStatus]int{
	CommandStatusPending:   0,
	CommandStatusRunning:   1,
	CommandStatusCompleted: 2,
	CommandStatusFailed:    2,
	CommandStatusCancelled: 2,
}

// ValidCommandStatus reports whether s names a known command status.
func ValidCommandStatus(s CommandStatus) bool {
	_, ok := commandRank[s]
	return ok
}

// IsTerminalCommand returns true if the command status permits no further change.
func IsTerminalCommand(s CommandStatus) bool {
	return s == CommandStatusCompleted || s == CommandStatusFailed || s == CommandStatusCancelled
}

// TerminalCommand is one entry in a terminal session's history. Execution
// is externally driven: a tool runner reports status changes back.
type TerminalCommand struct {
	ID             string        `json:"id"`
	SessionID      string        `json:"session_id"`
	Command        string        `json:"command"`
	Status         CommandStatus `json:"status"`
	Output         string        `json:"output,omitempty"`
	ExitCode       *int          `json:"exit_code,omitempty"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	DurationMillis int64         `json:"duration_ms,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Transition applies a new status to the command; regressions and
// mutations of a finished command are rejected. Exit code and duration
// are captured when the command finishes.
func (c *TerminalCommand) Transition(status CommandStatus, exitCode *int) error {
	if !ValidCommandStatus(status) {
		return ErrValidation(CodeInvalidStatus, "unknown command status "+string(status))
	}
	if IsTerminalCommand(c.Status) {
		return ErrInvalidTransition(CodeInvalidState,
			"command "+c.ID+" is already "+string(c.Status))
	}
	if commandRank[status] < commandRank[c.Status] {
		return ErrInvalidTransition(CodeInvalidState,
			"command "+c.ID+" cannot move from "+string(c.Status)+" to "+string(status))
	}
	now := time.Now()
	if status == CommandStatusRunning && c.StartedAt == nil {
		c.StartedAt = &now
	}
	if IsTerminalCommand(status) {
		if c.StartedAt == nil {
			c.StartedAt = &now
		}
		c.CompletedAt = &now
		c.DurationMillis = now.Sub(*c.StartedAt).Milliseconds()
		c.ExitCode = exitCode
	}
	c.Status = status
	return nil
}

// DocumentOpType selects the edit applied to a document.
type DocumentOpType string

const (
	DocumentOpInsert  DocumentOpType = "insert"
	DocumentOpDelete  DocumentOpType = "delete"
	DocumentOpReplace DocumentOpType = "replace"
)

// DocumentOperation is one collaborative edit.
type DocumentOperation struct {
	ID        string         `json:"id"`
	Type      DocumentOpType `json:"type"`
	Position  int            `json:"position"`
	Length    int            `json:"length,omitempty"`
	Text      string         `json:"text,omitempty"`
	Author    string         `json:"author,omitempty"`
	Version   int            `json:"version"` // document version after applying
	Timestamp time.Time      `json:"timestamp"`
}

// DocumentState holds the current content of a collaborative document.
// Version increments on every applied operation so clients can detect
// divergence.
type DocumentState struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Apply splices the operation into the document content and bumps the
// version. Positions and lengths beyond the current bounds are clamped.
func (d *DocumentState) Apply(op *DocumentOperation) error {
	runes := []rune(d.Content)
	pos := op.Position
	if pos < 0 {
		pos = 0
	}
	if pos > len(runes) {
		pos = len(runes)
	}

	switch op.Type {
	case DocumentOpInsert:
		d.Content = string(runes[:pos]) + op.Text + string(runes[pos:])
	case DocumentOpDelete:
		end := pos + op.Length
		if end > len(runes) {
			end = len(runes)
		}
		d.Content = string(runes[:pos]) + string(runes[end:])
	case DocumentOpReplace:
		end := pos + op.Length
		if end > len(runes) {
			end = len(runes)
		}
		d.Content = string(runes[:pos]) + op.Text + string(runes[end:])
	default:
		return ErrValidation(CodeInvalidOperation, "unknown operation type "+string(op.Type))
	}

	d.Version++
	d.UpdatedAt = time.Now()
	op.Version = d.Version
	return nil
}

// LogEntry is one entry in a generic session log (app-builder events,
// integration sync records, agent-thread turns).
type LogEntry struct {
	ID        string          `json:"id"`
	Type      string          `json:"type,omitempty"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}
