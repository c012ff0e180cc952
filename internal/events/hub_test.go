package events

import (
	"fmt"
	"testing"
	"time"
)

func TestHub_BroadcastReachesAllSubscribers(t *testing.T) {
	hub := NewHub(10)
	defer hub.Close()

	a := hub.Subscribe("a")
	b := hub.Subscribe("b")

	hub.Broadcast("message-added", map[string]string{"id": "m1"})

	for name, ch := range map[string]<-chan Envelope{"a": a, "b": b} {
		select {
		case env := <-ch:
			if env.Type != "message-added" {
				t.Errorf("%s: expected message-added, got %s", name, env.Type)
			}
			if env.Timestamp.IsZero() {
				t.Errorf("%s: envelope timestamp should be set", name)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("%s: timeout waiting for event", name)
		}
	}
}

func TestHub_BroadcastExcept(t *testing.T) {
	hub := NewHub(10)
	defer hub.Close()

	origin := hub.Subscribe("origin")
	other := hub.Subscribe("other")

	hub.BroadcastExcept("operation-applied", nil, "origin")

	select {
	case <-other:
	case <-time.After(100 * time.Millisecond):
		t.Error("other should receive the event")
	}

	select {
	case env := <-origin:
		t.Errorf("origin should not receive its own event, got %s", env.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_ResubscribeReplacesConnection(t *testing.T) {
	hub := NewHub(10)
	defer hub.Close()

	old := hub.Subscribe("client")
	fresh := hub.Subscribe("client")

	if hub.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.SubscriberCount())
	}

	// The old channel is closed so a stale reader can detect replacement.
	select {
	case _, open := <-old:
		if open {
			t.Error("old channel should be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("old channel should be closed promptly")
	}

	hub.Broadcast("ping", nil)
	select {
	case env := <-fresh:
		if env.Type != "ping" {
			t.Errorf("expected ping, got %s", env.Type)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("fresh channel should receive events")
	}
}

func TestHub_SlowSubscriberDropsOldest(t *testing.T) {
	hub := NewHub(5)
	defer hub.Close()

	ch := hub.Subscribe("slow")
	fast := hub.Subscribe("fast")

	for i := 0; i < 20; i++ {
		hub.Broadcast("tick", fmt.Sprintf("%d", i))
	}

	if hub.DroppedCount() == 0 {
		t.Error("expected drops for the saturated subscriber")
	}

	// The slow subscriber keeps the newest events, not the oldest.
	var last Envelope
	for i := 0; i < 5; i++ {
		select {
		case last = <-ch:
		case <-time.After(100 * time.Millisecond):
			t.Fatal("expected a full buffer")
		}
	}
	if last.Data != "19" {
		t.Errorf("expected newest event 19 at the tail, got %v", last.Data)
	}

	// Fast subscriber also saturated here (nobody drained it), but the
	// hub never blocked the broadcaster.
	drained := 0
	for {
		select {
		case <-fast:
			drained++
			continue
		default:
		}
		break
	}
	if drained != 5 {
		t.Errorf("expected 5 buffered events, got %d", drained)
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(10)
	defer hub.Close()

	ch := hub.Subscribe("a")
	hub.Unsubscribe("a", ch)

	if hub.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", hub.SubscriberCount())
	}

	select {
	case _, open := <-ch:
		if open {
			t.Error("channel should be closed after unsubscribe")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("channel should be closed after unsubscribe")
	}
}

func TestHub_StaleUnsubscribeKeepsReplacement(t *testing.T) {
	hub := NewHub(10)
	defer hub.Close()

	old := hub.Subscribe("client")
	fresh := hub.Subscribe("client")

	// The replaced stream tears down with the channel it was handed;
	// that must not remove the replacement registered under the same id.
	hub.Unsubscribe("client", old)

	if hub.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.SubscriberCount())
	}

	hub.Broadcast("ping", nil)
	select {
	case env, open := <-fresh:
		if !open {
			t.Fatal("replacement channel was closed by a stale unsubscribe")
		}
		if env.Type != "ping" {
			t.Errorf("expected ping, got %s", env.Type)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("replacement should still receive events")
	}

	hub.Unsubscribe("client", fresh)
	if hub.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", hub.SubscriberCount())
	}
}

func TestHub_BroadcastAfterCloseIsNoop(t *testing.T) {
	hub := NewHub(10)
	ch := hub.Subscribe("a")
	hub.Close()

	hub.Broadcast("ping", nil)

	if _, open := <-ch; open {
		t.Error("channel should be closed after hub close")
	}
}
