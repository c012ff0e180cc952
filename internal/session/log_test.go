package session

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/covalent-hq/conclave/internal/logging"
	"github.com/covalent-hq/conclave/internal/storage"
)

func newTestLogSession(t *testing.T, kind string, store storage.Store) *LogSession {
	t.Helper()
	ls := NewLogFactory(kind, store, logging.NewNop().Logger)("sess-1").(*LogSession)
	if err := ls.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return ls
}

func TestLogSession_AppendAndClear(t *testing.T) {
	ls := newTestLogSession(t, AppBuilderKind, newTestStore(t))
	ctx := context.Background()

	entry, err := ls.Append(ctx, "build-started", json.RawMessage(`{"target":"web"}`))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if entry.ID == "" || entry.Type != "build-started" {
		t.Errorf("entry: %+v", entry)
	}

	if _, err := ls.Append(ctx, "noise", nil); err == nil {
		t.Error("empty data should be rejected")
	}

	if len(ls.Entries()) != 1 {
		t.Errorf("entries: %d", len(ls.Entries()))
	}

	cleared, err := ls.Clear(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if cleared != 1 || len(ls.Entries()) != 0 {
		t.Errorf("cleared=%d remaining=%d", cleared, len(ls.Entries()))
	}
}

func TestLogSession_StateMerge(t *testing.T) {
	ls := newTestLogSession(t, IntegrationKind, newTestStore(t))
	ctx := context.Background()

	if _, err := ls.SetState(ctx, map[string]interface{}{"connected": true, "provider": "github"}); err != nil {
		t.Fatal(err)
	}
	state, err := ls.SetState(ctx, map[string]interface{}{"connected": false})
	if err != nil {
		t.Fatal(err)
	}

	if state["connected"] != false {
		t.Error("patched key should change")
	}
	if state["provider"] != "github" {
		t.Error("merge must keep unpatched keys")
	}

	if _, err := ls.SetState(ctx, nil); err == nil {
		t.Error("empty patch should be rejected")
	}
}

func TestLogSession_KindsAreIsolated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	builder := newTestLogSession(t, AppBuilderKind, store)
	thread := newTestLogSession(t, ThreadKind, store)

	if _, err := builder.Append(ctx, "event", json.RawMessage(`1`)); err != nil {
		t.Fatal(err)
	}

	// Same session id, different kind: separate partition, separate log.
	if len(thread.Entries()) != 0 {
		t.Error("kinds must not share state")
	}

	fresh := newTestLogSession(t, ThreadKind, store)
	if len(fresh.Entries()) != 0 {
		t.Error("reloaded thread session should be empty")
	}
}

func TestLogSession_SurvivesReload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ls := newTestLogSession(t, ThreadKind, store)
	_, _ = ls.Append(ctx, "turn", json.RawMessage(`{"speaker":"agent"}`))
	_, _ = ls.SetState(ctx, map[string]interface{}{"status": "thinking"})

	fresh := newTestLogSession(t, ThreadKind, store)
	if len(fresh.Entries()) != 1 {
		t.Errorf("entries lost: %d", len(fresh.Entries()))
	}
	if fresh.State()["status"] != "thinking" {
		t.Errorf("state lost: %v", fresh.State())
	}
}
