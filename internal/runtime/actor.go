// Package runtime hosts the per-entity actor instances. It guarantees
// exactly one live instance per entity id, serialized execution of all
// operations against the same entity, lazy materialization from durable
// storage, and safe eviction (storage is the source of truth, memory is
// a cache of it).
package runtime

import (
	"context"
	"time"

	"github.com/covalent-hq/conclave/internal/events"
)

// Actor is a single-writer unit of state and behavior with exclusive
// ownership of its storage partition.
type Actor interface {
	// Kind names the actor type (e.g. "cache", "execution", "chat").
	Kind() string

	// ID is the stable entity id this instance serves.
	ID() string

	// Load materializes state from durable storage. The runtime calls it
	// exactly once, before the first operation; implementations must
	// tolerate an empty partition (fresh entity).
	Load(ctx context.Context) error

	// Hub is the actor's broadcast hub.
	Hub() *events.Hub
}

// AlarmHandler is implemented by actors that schedule a recurring
// self-wake. Firings re-enter the same serialized-execution contract as
// any other operation.
type AlarmHandler interface {
	// AlarmInterval returns the recurring wake interval, or zero to
	// disable the alarm.
	AlarmInterval() time.Duration

	// HandleAlarm runs one alarm firing.
	HandleAlarm(ctx context.Context) error
}

// Factory constructs a cold actor instance for an entity id. The
// instance must not touch storage until Load is called.
type Factory func(id string) Actor

// Partition returns the storage partition for an actor. Kind names never
// contain ':', so the mapping is collision-free.
func Partition(kind, id string) string {
	return kind + ":" + id
}
