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

// DocumentKind is the actor kind for collaborative documents.
const DocumentKind = "document"

const (
	blobDocument   = "document"
	blobOperations = "operations"
)

// Document holds the content and operation log of one collaborative
// document. Each applied operation bumps the version, which is echoed to
// clients so they can detect divergence.
type Document struct {
	id     string
	store  storage.Store
	hub    *events.Hub
	logger *slog.Logger

	state      *core.DocumentState
	operations []*core.DocumentOperation
}

// NewDocumentFactory returns a runtime factory producing documents.
func NewDocumentFactory(store storage.Store, logger *slog.Logger) runtime.Factory {
	return func(id string) runtime.Actor {
		return &Document{
			id:     id,
			store:  store,
			hub:    events.NewHub(0),
			logger: logger.With("kind", DocumentKind, "document_id", id),
		}
	}
}

// Kind implements runtime.Actor.
func (d *Document) Kind() string { return DocumentKind }

// ID implements runtime.Actor.
func (d *Document) ID() string { return d.id }

// Hub implements runtime.Actor.
func (d *Document) Hub() *events.Hub { return d.hub }

// Load materializes the document from storage, default-constructing an
// empty version-0 document for a fresh id.
func (d *Document) Load(ctx context.Context) error {
	part := runtime.Partition(DocumentKind, d.id)

	if data, err := d.store.Get(ctx, part, blobDocument); err == nil {
		d.state = &core.DocumentState{}
		if err := json.Unmarshal(data, d.state); err != nil {
			return core.ErrState(core.CodeStateCorrupted, "document blob is corrupt").WithCause(err)
		}
	} else if errors.Is(err, storage.ErrNotFound) {
		d.state = &core.DocumentState{ID: d.id, UpdatedAt: time.Now()}
	} else {
		return core.ErrStorage("loading document", err)
	}

	if data, err := d.store.Get(ctx, part, blobOperations); err == nil {
		if err := json.Unmarshal(data, &d.operations); err != nil {
			return core.ErrState(core.CodeStateCorrupted, "operation log blob is corrupt").WithCause(err)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return core.ErrStorage("loading operation log", err)
	}

	return nil
}

// OperationInput describes one edit request.
type OperationInput struct {
	Type     core.DocumentOpType `json:"type"`
	Position int                 `json:"position"`
	Length   int                 `json:"length,omitempty"`
	Text     string              `json:"text,omitempty"`
	Author   string              `json:"author,omitempty"`
}

// ApplyOperation splices the edit into the document and appends it to
// the operation log. The echoed operation carries the new version.
// actorID identifies the originating subscriber for echo suppression.
func (d *Document) ApplyOperation(ctx context.Context, in OperationInput, originID string) (*core.DocumentOperation, error) {
	if in.Position < 0 {
		return nil, core.ErrValidation(core.CodeInvalidOperation, "position cannot be negative")
	}
	if in.Length < 0 {
		return nil, core.ErrValidation(core.CodeInvalidOperation, "length cannot be negative")
	}

	op := &core.DocumentOperation{
		ID:        uuid.NewString(),
		Type:      in.Type,
		Position:  in.Position,
		Length:    in.Length,
		Text:      in.Text,
		Author:    in.Author,
		Timestamp: time.Now(),
	}

	prevState := *d.state
	if err := d.state.Apply(op); err != nil {
		return nil, err
	}
	d.operations = append(d.operations, op)

	if err := d.persist(ctx); err != nil {
		*d.state = prevState
		d.operations = d.operations[:len(d.operations)-1]
		return nil, err
	}

	d.hub.BroadcastExcept("operation-applied", map[string]interface{}{
		"operation": op,
		"version":   d.state.Version,
	}, originID)
	return op, nil
}

// State returns the current document content and version.
func (d *Document) State() *core.DocumentState {
	return d.state
}

// Operations returns the applied-operation log in order.
func (d *Document) Operations() []*core.DocumentOperation {
	out := make([]*core.DocumentOperation, len(d.operations))
	copy(out, d.operations)
	return out
}

// Clear resets the content and operation log. The version keeps
// incrementing so clients never see it move backwards.
func (d *Document) Clear(ctx context.Context) error {
	prevState := *d.state
	prevOps := d.operations

	d.state.Content = ""
	d.state.Version++
	d.state.UpdatedAt = time.Now()
	d.operations = nil

	if err := d.persist(ctx); err != nil {
		*d.state = prevState
		d.operations = prevOps
		return err
	}

	d.hub.Broadcast("document-cleared", map[string]interface{}{"version": d.state.Version})
	return nil
}

func (d *Document) persist(ctx context.Context) error {
	part := runtime.Partition(DocumentKind, d.id)

	stateData, err := json.Marshal(d.state)
	if err != nil {
		return core.ErrState(core.CodeStateCorrupted, "marshaling document").WithCause(err)
	}
	opsData, err := json.Marshal(d.operations)
	if err != nil {
		return core.ErrState(core.CodeStateCorrupted, "marshaling operation log").WithCause(err)
	}

	err = d.store.PutMulti(ctx, part, map[string][]byte{
		blobDocument:   stateData,
		blobOperations: opsData,
	})
	if err != nil {
		return core.ErrStorage("persisting document", err)
	}
	return nil
}
