package session

import (
	"context"
	"testing"
	"time"

	"github.com/covalent-hq/conclave/internal/core"
	"github.com/covalent-hq/conclave/internal/logging"
)

func newTestDocument(t *testing.T) *Document {
	t.Helper()
	doc := NewDocumentFactory(newTestStore(t), logging.NewNop().Logger)("doc-1").(*Document)
	if err := doc.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestDocument_ApplyOperations(t *testing.T) {
	doc := newTestDocument(t)
	ctx := context.Background()

	op, err := doc.ApplyOperation(ctx, OperationInput{
		Type: core.DocumentOpInsert, Position: 0, Text: "hello world", Author: "ada",
	}, "")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if op.Version != 1 {
		t.Errorf("first op should yield version 1, got %d", op.Version)
	}

	op, err = doc.ApplyOperation(ctx, OperationInput{
		Type: core.DocumentOpReplace, Position: 6, Length: 5, Text: "there",
	}, "")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if doc.State().Content != "hello there" {
		t.Errorf("content: %q", doc.State().Content)
	}
	if op.Version != 2 {
		t.Errorf("version: %d", op.Version)
	}
	if len(doc.Operations()) != 2 {
		t.Errorf("operation log: %d", len(doc.Operations()))
	}
}

func TestDocument_RejectsNegativeInput(t *testing.T) {
	doc := newTestDocument(t)
	ctx := context.Background()

	if _, err := doc.ApplyOperation(ctx, OperationInput{Type: core.DocumentOpInsert, Position: -1}, ""); err == nil {
		t.Error("negative position should be rejected")
	}
	if _, err := doc.ApplyOperation(ctx, OperationInput{Type: core.DocumentOpDelete, Position: 0, Length: -1}, ""); err == nil {
		t.Error("negative length should be rejected")
	}
	if doc.State().Version != 0 {
		t.Error("rejected ops must not bump the version")
	}
}

func TestDocument_EchoSuppression(t *testing.T) {
	doc := newTestDocument(t)
	ctx := context.Background()

	origin := doc.Hub().Subscribe("editor-1")
	other := doc.Hub().Subscribe("editor-2")

	if _, err := doc.ApplyOperation(ctx, OperationInput{
		Type: core.DocumentOpInsert, Position: 0, Text: "x",
	}, "editor-1"); err != nil {
		t.Fatal(err)
	}

	select {
	case env := <-other:
		if env.Type != "operation-applied" {
			t.Errorf("expected operation-applied, got %s", env.Type)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("other editors should see the operation")
	}

	select {
	case <-origin:
		t.Error("originating editor should not receive its own operation")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDocument_ClearKeepsVersionMonotonic(t *testing.T) {
	doc := newTestDocument(t)
	ctx := context.Background()

	_, _ = doc.ApplyOperation(ctx, OperationInput{Type: core.DocumentOpInsert, Position: 0, Text: "abc"}, "")
	_, _ = doc.ApplyOperation(ctx, OperationInput{Type: core.DocumentOpInsert, Position: 3, Text: "def"}, "")

	if err := doc.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if doc.State().Content != "" {
		t.Errorf("content after clear: %q", doc.State().Content)
	}
	if doc.State().Version != 3 {
		t.Errorf("version must keep incrementing, got %d", doc.State().Version)
	}
	if len(doc.Operations()) != 0 {
		t.Error("operation log should be reset")
	}
}
