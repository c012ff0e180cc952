package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Default runtime configuration
const (
	DefaultMaxActiveActors = 256
)

// Metrics provides observability into runtime behavior.
type Metrics struct {
	ActiveActors   int     `json:"active_actors"`
	TotalHits      int64   `json:"total_hits"`
	TotalMisses    int64   `json:"total_misses"`
	TotalEvictions int64   `json:"total_evictions"`
	HitRate        float64 `json:"hit_rate"`
}

// runtimeOptions holds runtime configuration.
type runtimeOptions struct {
	logger          *slog.Logger
	maxActiveActors int
}

// Option configures a Runtime.
type Option func(*runtimeOptions)

// WithLogger sets the runtime logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *runtimeOptions) {
		o.logger = logger
	}
}

// WithMaxActiveActors sets the maximum number of resident actors before
// LRU eviction kicks in.
func WithMaxActiveActors(maxActive int) Option {
	return func(o *runtimeOptions) {
		if maxActive > 0 {
			o.maxActiveActors = maxActive
		}
	}
}

// entry wraps a live actor with management metadata. The op mutex is the
// serialization point: every operation against the entity, including
// alarm firings, runs while holding it.
type entry struct {
	actor        Actor
	op           sync.Mutex
	loaded       bool
	evicted      bool // guarded by the runtime mutex
	lastAccessed time.Time
	alarm        *time.Timer
	alarmStop    chan struct{}
}

// Runtime resolves entity ids to live actor instances.
type Runtime struct {
	mu          sync.Mutex
	actors      map[string]*entry
	accessOrder []string
	factories   map[string]Factory
	opts        *runtimeOptions
	logger      *slog.Logger
	closed      bool

	// Metrics (accessed atomically)
	hits      int64
	misses    int64
	evictions int64
}

// New creates an actor runtime.
func New(opts ...Option) *Runtime {
	options := &runtimeOptions{
		logger:          slog.Default(),
		maxActiveActors: DefaultMaxActiveActors,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Runtime{
		actors:      make(map[string]*entry),
		accessOrder: make([]string, 0),
		factories:   make(map[string]Factory),
		opts:        options,
		logger:      options.logger.With("component", "actor_runtime"),
	}
}

// RegisterKind installs the factory for an actor kind. Must be called
// before the first dispatch for that kind.
func (r *Runtime) RegisterKind(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Dispatch resolves (or materializes) the actor for the entity id and
// runs op against it. Operations against the same entity are strictly
// serialized; operations against different entities run in parallel.
func (r *Runtime) Dispatch(ctx context.Context, kind, id string, op func(ctx context.Context, a Actor) error) error {
	for {
		e, err := r.resolve(ctx, kind, id)
		if err != nil {
			return err
		}

		e.op.Lock()
		if r.entryEvicted(e) {
			// Lost a race with eviction between resolving the entry and
			// acquiring its lock. The registry may already hold a fresh
			// instance for this id; resolve again.
			e.op.Unlock()
			continue
		}
		defer e.op.Unlock()

		if !e.loaded {
			if err := e.actor.Load(ctx); err != nil {
				return fmt.Errorf("loading actor %s: %w", Partition(kind, id), err)
			}
			e.loaded = true
			r.startAlarm(kind, id, e)
		}
		e.lastAccessed = time.Now()
		return op(ctx, e.actor)
	}
}

func (r *Runtime) entryEvicted(e *entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return e.evicted
}

// Do is a typed Dispatch: it asserts the resolved actor to T before
// handing it to op.
func Do[T Actor](r *Runtime, ctx context.Context, kind, id string, op func(ctx context.Context, a T) error) error {
	return r.Dispatch(ctx, kind, id, func(ctx context.Context, a Actor) error {
		typed, ok := a.(T)
		if !ok {
			return fmt.Errorf("actor %s has unexpected type %T", Partition(kind, id), a)
		}
		return op(ctx, typed)
	})
}

// resolve returns the live entry for the entity, creating a cold one if
// necessary. Mirrors a double-checked read/write path so the hot case
// stays cheap.
func (r *Runtime) resolve(_ context.Context, kind, id string) (*entry, error) {
	key := Partition(kind, id)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("runtime is closed")
	}

	if e, ok := r.actors[key]; ok {
		atomic.AddInt64(&r.hits, 1)
		r.touchLocked(key)
		return e, nil
	}

	factory, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("no factory registered for actor kind %q", kind)
	}

	atomic.AddInt64(&r.misses, 1)

	if len(r.actors) >= r.opts.maxActiveActors {
		r.evictLRULocked()
	}

	e := &entry{
		actor:        factory(id),
		lastAccessed: time.Now(),
	}
	r.actors[key] = e
	r.accessOrder = append(r.accessOrder, key)

	r.logger.Debug("materialized actor", "kind", kind, "entity_id", id,
		"active_actors", len(r.actors))

	return e, nil
}

// touchLocked moves the key to the most-recently-used position.
func (r *Runtime) touchLocked(key string) {
	for i, k := range r.accessOrder {
		if k == key {
			r.accessOrder = append(r.accessOrder[:i], r.accessOrder[i+1:]...)
			break
		}
	}
	r.accessOrder = append(r.accessOrder, key)
}

// evictLRULocked drops the least recently used actor that is safe to
// evict: not mid-operation and without live subscribers. Eviction loses
// no state because every mutation is persisted before it returns.
func (r *Runtime) evictLRULocked() {
	for _, key := range r.accessOrder {
		e, ok := r.actors[key]
		if !ok {
			continue
		}
		if e.actor.Hub().SubscriberCount() > 0 {
			continue
		}
		if !e.op.TryLock() {
			continue
		}
		e.evicted = true
		r.stopAlarmLocked(e)
		e.actor.Hub().Close()
		e.op.Unlock()

		delete(r.actors, key)
		r.removeFromOrderLocked(key)
		atomic.AddInt64(&r.evictions, 1)

		r.logger.Debug("evicted actor", "partition", key, "active_actors", len(r.actors))
		return
	}
}

func (r *Runtime) removeFromOrderLocked(key string) {
	for i, k := range r.accessOrder {
		if k == key {
			r.accessOrder = append(r.accessOrder[:i], r.accessOrder[i+1:]...)
			return
		}
	}
}

// Evict removes the actor for the entity id from memory, if resident.
// Waits for any in-flight operation to finish. Primarily used by tests
// to exercise the durability round-trip; the runtime itself evicts
// automatically above the resident cap.
func (r *Runtime) Evict(kind, id string) {
	key := Partition(kind, id)

	r.mu.Lock()
	e, ok := r.actors[key]
	r.mu.Unlock()
	if !ok {
		return
	}

	// Take the op lock before removing the entry: in-flight operations
	// drain first, and no replacement instance can materialize while the
	// doomed one may still be mid-operation.
	e.op.Lock()
	r.mu.Lock()
	if r.actors[key] != e {
		// Already evicted and possibly replaced while we waited.
		r.mu.Unlock()
		e.op.Unlock()
		return
	}
	e.evicted = true
	delete(r.actors, key)
	r.removeFromOrderLocked(key)
	atomic.AddInt64(&r.evictions, 1)
	r.stopAlarmLocked(e)
	r.mu.Unlock()
	e.actor.Hub().Close()
	e.op.Unlock()
}

// startAlarm arms the recurring self-wake for actors that request one.
// Called with the entry op mutex held, after a successful Load.
func (r *Runtime) startAlarm(kind, id string, e *entry) {
	handler, ok := e.actor.(AlarmHandler)
	if !ok {
		return
	}
	interval := handler.AlarmInterval()
	if interval <= 0 {
		return
	}

	stop := make(chan struct{})
	e.alarmStop = stop

	var fire func()
	fire = func() {
		select {
		case <-stop:
			return
		default:
		}

		e.op.Lock()
		if r.entryEvicted(e) {
			e.op.Unlock()
			return
		}
		err := handler.HandleAlarm(context.Background())
		e.lastAccessed = time.Now()
		e.op.Unlock()
		if err != nil {
			r.logger.Warn("alarm handler failed", "kind", kind, "entity_id", id, "error", err)
		}

		r.mu.Lock()
		if !r.closed && e.alarmStop == stop {
			e.alarm = time.AfterFunc(interval, fire)
		}
		r.mu.Unlock()
	}

	e.alarm = time.AfterFunc(interval, fire)
}

// stopAlarmLocked disarms the entry's alarm. Caller holds r.mu.
func (r *Runtime) stopAlarmLocked(e *entry) {
	if e.alarmStop != nil {
		close(e.alarmStop)
		e.alarmStop = nil
	}
	if e.alarm != nil {
		e.alarm.Stop()
		e.alarm = nil
	}
}

// Metrics returns a snapshot of runtime counters.
func (r *Runtime) Metrics() Metrics {
	r.mu.Lock()
	active := len(r.actors)
	r.mu.Unlock()

	hits := atomic.LoadInt64(&r.hits)
	misses := atomic.LoadInt64(&r.misses)
	m := Metrics{
		ActiveActors:   active,
		TotalHits:      hits,
		TotalMisses:    misses,
		TotalEvictions: atomic.LoadInt64(&r.evictions),
	}
	if total := hits + misses; total > 0 {
		m.HitRate = float64(hits) / float64(total)
	}
	return m
}

// Close evicts every actor and rejects further dispatches.
func (r *Runtime) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	actors := r.actors
	r.actors = make(map[string]*entry)
	r.accessOrder = nil
	for _, e := range actors {
		e.evicted = true
		r.stopAlarmLocked(e)
	}
	r.mu.Unlock()

	for _, e := range actors {
		e.op.Lock()
		e.actor.Hub().Close()
		e.op.Unlock()
	}
}
