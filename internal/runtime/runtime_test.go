package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/covalent-hq/conclave/internal/events"
)

// counterActor is a minimal actor whose only state is an int persisted
// in a shared map standing in for the durable store.
type counterActor struct {
	id    string
	hub   *events.Hub
	store *fakeStore
	value int
	loads int
}

type fakeStore struct {
	mu     sync.Mutex
	values map[string]int
}

func (s *fakeStore) load(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[id]
}

func (s *fakeStore) save(id string, v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[id] = v
}

func (a *counterActor) Kind() string     { return "counter" }
func (a *counterActor) ID() string       { return a.id }
func (a *counterActor) Hub() *events.Hub { return a.hub }

func (a *counterActor) Load(_ context.Context) error {
	a.value = a.store.load(a.id)
	a.loads++
	return nil
}

func (a *counterActor) Increment() {
	a.value++
	a.store.save(a.id, a.value)
}

func newCounterFactory(store *fakeStore) Factory {
	return func(id string) Actor {
		return &counterActor{id: id, hub: events.NewHub(10), store: store}
	}
}

func newTestRuntime(t *testing.T, store *fakeStore, opts ...Option) *Runtime {
	t.Helper()
	rt := New(opts...)
	rt.RegisterKind("counter", newCounterFactory(store))
	t.Cleanup(rt.Close)
	return rt
}

func TestRuntime_OneInstancePerID(t *testing.T) {
	store := &fakeStore{values: map[string]int{}}
	rt := newTestRuntime(t, store)
	ctx := context.Background()

	var first, second Actor
	_ = rt.Dispatch(ctx, "counter", "a", func(_ context.Context, a Actor) error {
		first = a
		return nil
	})
	_ = rt.Dispatch(ctx, "counter", "a", func(_ context.Context, a Actor) error {
		second = a
		return nil
	})

	if first != second {
		t.Error("same id must resolve to the same live instance")
	}

	m := rt.Metrics()
	if m.TotalMisses != 1 || m.TotalHits != 1 {
		t.Errorf("expected 1 miss + 1 hit, got %+v", m)
	}
}

func TestRuntime_LoadOncePerResidency(t *testing.T) {
	store := &fakeStore{values: map[string]int{"a": 41}}
	rt := newTestRuntime(t, store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := Do(rt, ctx, "counter", "a", func(_ context.Context, a *counterActor) error {
			if a.value < 41 {
				t.Errorf("state should be loaded before the op runs, got %d", a.value)
			}
			a.Increment()
			return nil
		})
		if err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}

	err := Do(rt, ctx, "counter", "a", func(_ context.Context, a *counterActor) error {
		if a.loads != 1 {
			t.Errorf("expected a single load, got %d", a.loads)
		}
		if a.value != 44 {
			t.Errorf("expected 44, got %d", a.value)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRuntime_SerializesOperationsPerEntity(t *testing.T) {
	store := &fakeStore{values: map[string]int{}}
	rt := newTestRuntime(t, store)
	ctx := context.Background()

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_ = Do(rt, ctx, "counter", "shared", func(_ context.Context, a *counterActor) error {
					a.Increment()
					return nil
				})
			}
		}()
	}
	wg.Wait()

	if got := store.load("shared"); got != workers*perWorker {
		t.Errorf("lost increments: expected %d, got %d", workers*perWorker, got)
	}
}

func TestRuntime_EvictionReloadsFromStore(t *testing.T) {
	store := &fakeStore{values: map[string]int{}}
	rt := newTestRuntime(t, store)
	ctx := context.Background()

	_ = Do(rt, ctx, "counter", "a", func(_ context.Context, a *counterActor) error {
		a.Increment()
		a.Increment()
		return nil
	})

	rt.Evict("counter", "a")

	err := Do(rt, ctx, "counter", "a", func(_ context.Context, a *counterActor) error {
		if a.value != 2 {
			t.Errorf("state lost across eviction: got %d", a.value)
		}
		if a.loads != 1 {
			t.Errorf("fresh instance should load exactly once, got %d", a.loads)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRuntime_EvictionConcurrentWithDispatchKeepsSingleWriter(t *testing.T) {
	store := &fakeStore{values: map[string]int{}}
	rt := newTestRuntime(t, store)
	ctx := context.Background()

	const workers = 4
	const perWorker = 50

	// Track overlapping operations for the entity. Any overlap means two
	// live instances accepted writes for the same id.
	var inFlight int32
	var overlaps int32

	stopEvict := make(chan struct{})
	var evictWG sync.WaitGroup
	evictWG.Add(1)
	go func() {
		defer evictWG.Done()
		for {
			select {
			case <-stopEvict:
				return
			default:
				rt.Evict("counter", "shared")
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				err := Do(rt, ctx, "counter", "shared", func(_ context.Context, a *counterActor) error {
					if atomic.AddInt32(&inFlight, 1) > 1 {
						atomic.AddInt32(&overlaps, 1)
					}
					a.Increment()
					atomic.AddInt32(&inFlight, -1)
					return nil
				})
				if err != nil {
					t.Errorf("dispatch: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(stopEvict)
	evictWG.Wait()

	if n := atomic.LoadInt32(&overlaps); n != 0 {
		t.Errorf("observed %d overlapping operations for one entity id", n)
	}
	if got := store.load("shared"); got != workers*perWorker {
		t.Errorf("lost increments across evictions: expected %d, got %d", workers*perWorker, got)
	}
}

func TestRuntime_LRUEvictionAtCap(t *testing.T) {
	store := &fakeStore{values: map[string]int{}}
	rt := newTestRuntime(t, store, WithMaxActiveActors(2))
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_ = rt.Dispatch(ctx, "counter", id, func(_ context.Context, _ Actor) error {
			return nil
		})
	}

	m := rt.Metrics()
	if m.ActiveActors != 2 {
		t.Errorf("expected 2 resident actors, got %d", m.ActiveActors)
	}
	if m.TotalEvictions != 1 {
		t.Errorf("expected 1 eviction, got %d", m.TotalEvictions)
	}
}

func TestRuntime_SubscribedActorsAreNotEvicted(t *testing.T) {
	store := &fakeStore{values: map[string]int{}}
	rt := newTestRuntime(t, store, WithMaxActiveActors(2))
	ctx := context.Background()

	var hubA *events.Hub
	_ = rt.Dispatch(ctx, "counter", "a", func(_ context.Context, a Actor) error {
		hubA = a.Hub()
		return nil
	})
	ch := hubA.Subscribe("watcher")
	defer hubA.Unsubscribe("watcher", ch)

	// Filling past the cap must evict b, not the subscribed a.
	_ = rt.Dispatch(ctx, "counter", "b", func(_ context.Context, _ Actor) error { return nil })
	_ = rt.Dispatch(ctx, "counter", "c", func(_ context.Context, _ Actor) error { return nil })

	var again *events.Hub
	_ = rt.Dispatch(ctx, "counter", "a", func(_ context.Context, a Actor) error {
		again = a.Hub()
		return nil
	})
	if again != hubA {
		t.Error("subscribed actor should have stayed resident")
	}

	select {
	case _, open := <-ch:
		if !open {
			t.Error("subscriber channel must not be closed by eviction")
		}
	default:
	}
}

func TestRuntime_UnknownKind(t *testing.T) {
	rt := New()
	defer rt.Close()

	err := rt.Dispatch(context.Background(), "ghost", "id", func(_ context.Context, _ Actor) error {
		return nil
	})
	if err == nil {
		t.Fatal("dispatch for unregistered kind should fail")
	}
}

func TestRuntime_ClosedRejectsDispatch(t *testing.T) {
	store := &fakeStore{values: map[string]int{}}
	rt := New()
	rt.RegisterKind("counter", newCounterFactory(store))
	rt.Close()

	err := rt.Dispatch(context.Background(), "counter", "a", func(_ context.Context, _ Actor) error {
		return nil
	})
	if err == nil {
		t.Fatal("dispatch after close should fail")
	}
}

// alarmActor counts alarm firings.
type alarmActor struct {
	counterActor
	fires int64
}

func (a *alarmActor) AlarmInterval() time.Duration { return 10 * time.Millisecond }

func (a *alarmActor) HandleAlarm(_ context.Context) error {
	atomic.AddInt64(&a.fires, 1)
	return nil
}

func TestRuntime_AlarmFiresWhileResident(t *testing.T) {
	store := &fakeStore{values: map[string]int{}}
	rt := New()
	defer rt.Close()

	var actor *alarmActor
	rt.RegisterKind("alarm", func(id string) Actor {
		actor = &alarmActor{counterActor: counterActor{id: id, hub: events.NewHub(10), store: store}}
		return actor
	})

	_ = rt.Dispatch(context.Background(), "alarm", "a", func(_ context.Context, _ Actor) error {
		return nil
	})

	deadline := time.After(time.Second)
	for atomic.LoadInt64(&actor.fires) < 2 {
		select {
		case <-deadline:
			t.Fatal("alarm should have fired at least twice")
		case <-time.After(5 * time.Millisecond):
		}
	}

	rt.Evict("alarm", "a")
	fired := atomic.LoadInt64(&actor.fires)
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt64(&actor.fires) > fired+1 {
		t.Error("alarm should stop after eviction")
	}
}

func TestPartition(t *testing.T) {
	if got := Partition("chat", "room-1"); got != "chat:room-1" {
		t.Errorf("got %s", got)
	}
}
