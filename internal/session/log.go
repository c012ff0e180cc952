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

// Generic log-session kinds. They share one actor implementation; the
// kind selects the storage partition and the event-name prefix.
const (
	AppBuilderKind  = "appbuilder"
	IntegrationKind = "integration"
	ThreadKind      = "thread"
)

// LogKinds lists the kinds served by the generic log session.
var LogKinds = []string{AppBuilderKind, IntegrationKind, ThreadKind}

const (
	blobEntries = "entries"
	blobState   = "state"
)

// LogSession is an append-only event log plus a mutable state blob.
// App-builder sessions log build/preview events with a preview-status
// blob; integration sessions log sync records with a connection-state
// blob; agent threads log turns with an agent-state blob.
type LogSession struct {
	kind   string
	id     string
	store  storage.Store
	hub    *events.Hub
	logger *slog.Logger

	entries []*core.LogEntry
	state   map[string]interface{}
}

// NewLogFactory returns a runtime factory producing log sessions of the
// given kind.
func NewLogFactory(kind string, store storage.Store, logger *slog.Logger) runtime.Factory {
	return func(id string) runtime.Actor {
		return &LogSession{
			kind:   kind,
			id:     id,
			store:  store,
			hub:    events.NewHub(0),
			logger: logger.With("kind", kind, "session_id", id),
			state:  make(map[string]interface{}),
		}
	}
}

// Kind implements runtime.Actor.
func (s *LogSession) Kind() string { return s.kind }

// ID implements runtime.Actor.
func (s *LogSession) ID() string { return s.id }

// Hub implements runtime.Actor.
func (s *LogSession) Hub() *events.Hub { return s.hub }

// Load materializes the session from storage.
func (s *LogSession) Load(ctx context.Context) error {
	part := runtime.Partition(s.kind, s.id)

	if data, err := s.store.Get(ctx, part, blobEntries); err == nil {
		if err := json.Unmarshal(data, &s.entries); err != nil {
			return core.ErrState(core.CodeStateCorrupted, "session log blob is corrupt").WithCause(err)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return core.ErrStorage("loading session log", err)
	}

	if data, err := s.store.Get(ctx, part, blobState); err == nil {
		if err := json.Unmarshal(data, &s.state); err != nil {
			return core.ErrState(core.CodeStateCorrupted, "session state blob is corrupt").WithCause(err)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return core.ErrStorage("loading session state", err)
	}
	if s.state == nil {
		s.state = make(map[string]interface{})
	}

	return nil
}

// Append adds one entry to the session log.
func (s *LogSession) Append(ctx context.Context, entryType string, data json.RawMessage) (*core.LogEntry, error) {
	if len(data) == 0 {
		return nil, core.ErrValidation(core.CodeEmptyContent, "entry data cannot be empty")
	}

	entry := &core.LogEntry{
		ID:        uuid.NewString(),
		Type:      entryType,
		Data:      data,
		Timestamp: time.Now(),
	}

	s.entries = append(s.entries, entry)
	if err := s.persist(ctx, blobEntries); err != nil {
		s.entries = s.entries[:len(s.entries)-1]
		return nil, err
	}

	s.hub.Broadcast(s.kind+"-entry-added", map[string]interface{}{"entry": entry})
	return entry, nil
}

// Entries returns the log in append order.
func (s *LogSession) Entries() []*core.LogEntry {
	out := make([]*core.LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// SetState merges the patch into the session state blob.
func (s *LogSession) SetState(ctx context.Context, patch map[string]interface{}) (map[string]interface{}, error) {
	if len(patch) == 0 {
		return nil, core.ErrValidation(core.CodeEmptyContent, "state patch cannot be empty")
	}

	prev := make(map[string]interface{}, len(s.state))
	for k, v := range s.state {
		prev[k] = v
	}
	for k, v := range patch {
		s.state[k] = v
	}

	if err := s.persist(ctx, blobState); err != nil {
		s.state = prev
		return nil, err
	}

	s.hub.Broadcast(s.kind+"-state-updated", map[string]interface{}{"state": s.state})
	return s.state, nil
}

// State returns the current state blob.
func (s *LogSession) State() map[string]interface{} {
	return s.state
}

// Clear deletes the log, keeping the state blob.
func (s *LogSession) Clear(ctx context.Context) (int, error) {
	cleared := len(s.entries)
	prev := s.entries

	s.entries = nil
	if err := s.persist(ctx, blobEntries); err != nil {
		s.entries = prev
		return 0, err
	}

	s.hub.Broadcast(s.kind+"-cleared", map[string]interface{}{"cleared_entries": cleared})
	return cleared, nil
}

func (s *LogSession) persist(ctx context.Context, blob string) error {
	part := runtime.Partition(s.kind, s.id)

	var payload interface{}
	switch blob {
	case blobEntries:
		payload = s.entries
	case blobState:
		payload = s.state
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return core.ErrState(core.CodeStateCorrupted, "marshaling session "+blob).WithCause(err)
	}
	if err := s.store.Put(ctx, part, blob, data); err != nil {
		return core.ErrStorage("persisting session "+blob, err)
	}
	return nil
}
