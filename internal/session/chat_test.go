package session

import (
	"context"
	"testing"
	"time"

	"github.com/covalent-hq/conclave/internal/logging"
	"github.com/covalent-hq/conclave/internal/storage"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewJSONStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestRoom(t *testing.T, store storage.Store) *ChatRoom {
	t.Helper()
	room := NewChatFactory(store, logging.NewNop().Logger)("room-1").(*ChatRoom)
	if err := room.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return room
}

func TestChatRoom_AppendMessage(t *testing.T) {
	room := newTestRoom(t, newTestStore(t))
	ctx := context.Background()

	ch := room.Hub().Subscribe("watcher")

	msg, err := room.AppendMessage(ctx, "user", "", "hello")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.ID == "" || msg.RoomID != "room-1" {
		t.Errorf("message identity: %+v", msg)
	}

	if _, err := room.AppendMessage(ctx, "agent", "claude", "hi there"); err != nil {
		t.Fatalf("append agent: %v", err)
	}

	if room.Session().MessageCount != 2 {
		t.Errorf("message count: %d", room.Session().MessageCount)
	}
	if msgs := room.Messages(); len(msgs) != 2 || msgs[0].Content != "hello" {
		t.Errorf("log order: %+v", msgs)
	}

	select {
	case env := <-ch:
		if env.Type != "message-added" {
			t.Errorf("expected message-added, got %s", env.Type)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("subscriber should receive message-added")
	}
}

func TestChatRoom_Validation(t *testing.T) {
	room := newTestRoom(t, newTestStore(t))
	ctx := context.Background()

	if _, err := room.AppendMessage(ctx, "admin", "", "x"); err == nil {
		t.Error("unknown role should be rejected")
	}
	if _, err := room.AppendMessage(ctx, "user", "", ""); err == nil {
		t.Error("empty content should be rejected")
	}
	if len(room.Messages()) != 0 {
		t.Error("rejected messages must not be appended")
	}
}

func TestChatRoom_UpdateSession(t *testing.T) {
	room := newTestRoom(t, newTestStore(t))
	ctx := context.Background()

	title := "planning"
	model := "opus"
	sess, err := room.UpdateSession(ctx, SessionPatch{Title: &title, Model: &model})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if sess.Title != "planning" || sess.Model != "opus" {
		t.Errorf("patch not applied: %+v", sess)
	}

	// Omitted fields stay untouched.
	agent := "claude"
	sess, err = room.UpdateSession(ctx, SessionPatch{Agent: &agent})
	if err != nil {
		t.Fatal(err)
	}
	if sess.Title != "planning" {
		t.Error("nil fields must not clobber existing values")
	}
}

func TestChatRoom_ClearKeepsSession(t *testing.T) {
	store := newTestStore(t)
	room := newTestRoom(t, store)
	ctx := context.Background()

	title := "kept"
	_, _ = room.UpdateSession(ctx, SessionPatch{Title: &title})
	_, _ = room.AppendMessage(ctx, "user", "", "one")
	_, _ = room.AppendMessage(ctx, "user", "", "two")

	cleared, err := room.Clear(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if cleared != 2 {
		t.Errorf("cleared %d", cleared)
	}
	if room.Session().Title != "kept" || room.Session().MessageCount != 0 {
		t.Errorf("session after clear: %+v", room.Session())
	}
}

func TestChatRoom_SurvivesReload(t *testing.T) {
	store := newTestStore(t)
	room := newTestRoom(t, store)
	ctx := context.Background()

	_, _ = room.AppendMessage(ctx, "user", "", "persisted")

	fresh := newTestRoom(t, store)
	if len(fresh.Messages()) != 1 || fresh.Messages()[0].Content != "persisted" {
		t.Errorf("messages lost: %+v", fresh.Messages())
	}
	if fresh.Session().MessageCount != 1 {
		t.Errorf("session lost: %+v", fresh.Session())
	}
}
