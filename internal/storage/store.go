// Package storage provides the durable key-value store backing every
// actor. Each actor owns an exclusive partition keyed by its entity id;
// within a partition it stores a small number of named JSON blobs.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a blob does not exist in the partition.
var ErrNotFound = errors.New("storage: blob not found")

// Store is the byte-oriented storage contract. Implementations must be
// safe for concurrent use across partitions; within a partition the
// owning actor is the only writer.
type Store interface {
	// Get returns the blob stored under key, or ErrNotFound.
	Get(ctx context.Context, partition, key string) ([]byte, error)

	// Put inserts or replaces the blob stored under key.
	Put(ctx context.Context, partition, key string, value []byte) error

	// PutMulti inserts or replaces several blobs in one atomic write:
	// either every blob lands or none do. Actors persisting related
	// blobs (a record plus its collection) rely on this to keep storage
	// consistent with their rolled-back memory on failure.
	PutMulti(ctx context.Context, partition string, blobs map[string][]byte) error

	// Delete removes the blob stored under key. Deleting a missing blob
	// is not an error.
	Delete(ctx context.Context, partition, key string) error

	// List returns every blob in the partition, keyed by name.
	List(ctx context.Context, partition string) (map[string][]byte, error)

	// DeletePartition removes the entire partition.
	DeletePartition(ctx context.Context, partition string) error

	// Close releases backend resources.
	Close() error
}
