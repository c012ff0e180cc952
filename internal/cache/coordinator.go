// Package cache implements the cache coordinator actor: a namespaced,
// TTL-aware key/value cache with group invalidation, shared by any other
// component as a side-cache. One actor per namespace.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/covalent-hq/conclave/internal/core"
	"github.com/covalent-hq/conclave/internal/events"
	"github.com/covalent-hq/conclave/internal/runtime"
	"github.com/covalent-hq/conclave/internal/storage"
)

// Kind is the actor kind for cache namespaces.
const Kind = "cache"

// Storage blob names.
const (
	blobEntries       = "entries"
	blobStats         = "stats"
	blobInvalidations = "invalidations"
)

// DefaultSweepInterval is how often the TTL sweep alarm fires.
const DefaultSweepInterval = 60 * time.Second

// Coordinator owns one cache namespace.
type Coordinator struct {
	id            string
	store         storage.Store
	hub           *events.Hub
	logger        *slog.Logger
	sweepInterval time.Duration

	entries       map[string]*core.CacheEntry
	stats         core.CacheStats
	invalidations []core.InvalidationRecord
}

// NewFactory returns a runtime factory producing cache coordinators.
func NewFactory(store storage.Store, logger *slog.Logger, sweepInterval time.Duration) runtime.Factory {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return func(id string) runtime.Actor {
		return &Coordinator{
			id:            id,
			store:         store,
			hub:           events.NewHub(0),
			logger:        logger.With("kind", Kind, "namespace", id),
			sweepInterval: sweepInterval,
			entries:       make(map[string]*core.CacheEntry),
		}
	}
}

// Kind implements runtime.Actor.
func (c *Coordinator) Kind() string { return Kind }

// ID implements runtime.Actor.
func (c *Coordinator) ID() string { return c.id }

// Hub implements runtime.Actor.
func (c *Coordinator) Hub() *events.Hub { return c.hub }

// AlarmInterval implements runtime.AlarmHandler.
func (c *Coordinator) AlarmInterval() time.Duration { return c.sweepInterval }

// Load materializes the namespace from storage.
func (c *Coordinator) Load(ctx context.Context) error {
	part := runtime.Partition(Kind, c.id)

	if data, err := c.store.Get(ctx, part, blobEntries); err == nil {
		if err := json.Unmarshal(data, &c.entries); err != nil {
			return core.ErrState(core.CodeStateCorrupted, "cache entries blob is corrupt").WithCause(err)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return core.ErrStorage("loading cache entries", err)
	}
	if c.entries == nil {
		c.entries = make(map[string]*core.CacheEntry)
	}

	if data, err := c.store.Get(ctx, part, blobStats); err == nil {
		if err := json.Unmarshal(data, &c.stats); err != nil {
			return core.ErrState(core.CodeStateCorrupted, "cache stats blob is corrupt").WithCause(err)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return core.ErrStorage("loading cache stats", err)
	}

	if data, err := c.store.Get(ctx, part, blobInvalidations); err == nil {
		if err := json.Unmarshal(data, &c.invalidations); err != nil {
			return core.ErrState(core.CodeStateCorrupted, "cache invalidation log is corrupt").WithCause(err)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return core.ErrStorage("loading cache invalidation log", err)
	}

	return nil
}

// GetResult is the outcome of a cache lookup.
type GetResult struct {
	Hit     bool             `json:"hit"`
	Expired bool             `json:"expired,omitempty"`
	Value   json.RawMessage  `json:"value,omitempty"`
	Entry   *core.CacheEntry `json:"entry,omitempty"`
}

// Set inserts or replaces an entry. TotalEntries grows only when the key
// is new; replacing an existing key keeps the count.
func (c *Coordinator) Set(ctx context.Context, key string, value json.RawMessage, ttlSeconds int, tags []string, metadata map[string]interface{}) (*core.CacheEntry, error) {
	if key == "" {
		return nil, core.ErrValidation(core.CodeMissingKey, "cache key cannot be empty")
	}

	now := time.Now()
	entry := &core.CacheEntry{
		Key:        key,
		Value:      value,
		TTLSeconds: ttlSeconds,
		Tags:       tags,
		Metadata:   metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if ttlSeconds > 0 {
		exp := now.Add(time.Duration(ttlSeconds) * time.Second)
		entry.ExpiresAt = &exp
	}

	prev, existed := c.entries[key]
	if existed {
		entry.CreatedAt = prev.CreatedAt
		entry.HitCount = prev.HitCount
		c.stats.TotalSize -= int64(len(prev.Value))
	} else {
		c.stats.TotalEntries++
	}
	c.entries[key] = entry
	c.stats.TotalSize += int64(len(value))
	c.stats.LastAccessed = now

	if err := c.persist(ctx, blobEntries, blobStats); err != nil {
		// Roll back: the mutation is not committed when the write fails.
		if existed {
			c.entries[key] = prev
			c.stats.TotalSize += int64(len(prev.Value)) - int64(len(value))
		} else {
			delete(c.entries, key)
			c.stats.TotalEntries--
			c.stats.TotalSize -= int64(len(value))
		}
		return nil, err
	}

	c.hub.Broadcast("cache-set", map[string]interface{}{"key": key, "entry": entry})
	return entry, nil
}

// Get looks up a key. An entry past its TTL is evicted immediately and
// reported as an expired miss; it is never returned as a hit.
func (c *Coordinator) Get(ctx context.Context, key string) (GetResult, error) {
	now := time.Now()
	entry, ok := c.entries[key]
	if !ok {
		c.stats.MissCount++
		c.stats.LastAccessed = now
		if err := c.persist(ctx, blobStats); err != nil {
			c.stats.MissCount--
			return GetResult{}, err
		}
		return GetResult{Hit: false}, nil
	}

	if entry.Expired(now) {
		delete(c.entries, key)
		c.stats.TotalEntries--
		c.stats.TotalSize -= int64(len(entry.Value))
		c.stats.EvictionCount++
		c.stats.MissCount++
		c.stats.LastAccessed = now
		if err := c.persist(ctx, blobEntries, blobStats); err != nil {
			c.entries[key] = entry
			c.stats.TotalEntries++
			c.stats.TotalSize += int64(len(entry.Value))
			c.stats.EvictionCount--
			c.stats.MissCount--
			return GetResult{}, err
		}
		return GetResult{Hit: false, Expired: true}, nil
	}

	entry.HitCount++
	c.stats.HitCount++
	c.stats.LastAccessed = now
	if err := c.persist(ctx, blobEntries, blobStats); err != nil {
		entry.HitCount--
		c.stats.HitCount--
		return GetResult{}, err
	}
	return GetResult{Hit: true, Value: entry.Value, Entry: entry}, nil
}

// Delete removes a key. Reports whether it existed; counters only move
// when it did.
func (c *Coordinator) Delete(ctx context.Context, key string) (bool, error) {
	entry, ok := c.entries[key]
	if !ok {
		return false, nil
	}

	delete(c.entries, key)
	c.stats.TotalEntries--
	c.stats.TotalSize -= int64(len(entry.Value))
	c.stats.EvictionCount++

	if err := c.persist(ctx, blobEntries, blobStats); err != nil {
		c.entries[key] = entry
		c.stats.TotalEntries++
		c.stats.TotalSize += int64(len(entry.Value))
		c.stats.EvictionCount--
		return false, err
	}

	c.hub.Broadcast("cache-deleted", map[string]interface{}{"key": key})
	return true, nil
}

// Clear empties the namespace.
func (c *Coordinator) Clear(ctx context.Context) (int, error) {
	cleared := len(c.entries)
	prevEntries := c.entries
	prevStats := c.stats

	c.entries = make(map[string]*core.CacheEntry)
	c.stats.TotalEntries = 0
	c.stats.TotalSize = 0
	c.stats.EvictionCount += int64(cleared)
	c.stats.LastAccessed = time.Now()

	if err := c.persist(ctx, blobEntries, blobStats); err != nil {
		c.entries = prevEntries
		c.stats = prevStats
		return 0, err
	}

	c.hub.Broadcast("cache-cleared", map[string]interface{}{"cleared_entries": cleared})
	return cleared, nil
}

// Invalidate removes entries by key, tag, pattern (regular expression)
// or clears everything, and appends an audit record. Matching nothing is
// not an error; the returned key list is simply empty.
func (c *Coordinator) Invalidate(ctx context.Context, typ core.InvalidationType, target, requestedBy string) ([]string, error) {
	if !core.ValidInvalidationType(typ) {
		return nil, core.ErrValidation(core.CodeInvalidOperation, "unknown invalidation type "+string(typ))
	}

	var matched []string
	switch typ {
	case core.InvalidateKey:
		if _, ok := c.entries[target]; ok {
			matched = append(matched, target)
		}
	case core.InvalidateTag:
		for key, entry := range c.entries {
			if entry.HasTag(target) {
				matched = append(matched, key)
			}
		}
	case core.InvalidatePattern:
		re, err := regexp.Compile(target)
		if err != nil {
			return nil, core.ErrValidation(core.CodeInvalidPattern, "invalid pattern: "+err.Error())
		}
		for key := range c.entries {
			if re.MatchString(key) {
				matched = append(matched, key)
			}
		}
	case core.InvalidateAll:
		for key := range c.entries {
			matched = append(matched, key)
		}
	}

	removed := make(map[string]*core.CacheEntry, len(matched))
	for _, key := range matched {
		removed[key] = c.entries[key]
		c.stats.TotalSize -= int64(len(c.entries[key].Value))
		delete(c.entries, key)
	}
	c.stats.TotalEntries -= int64(len(matched))
	c.stats.EvictionCount += int64(len(matched))

	record := core.InvalidationRecord{
		ID:          uuid.NewString(),
		Type:        typ,
		Target:      target,
		RequestedBy: requestedBy,
		Timestamp:   time.Now(),
	}
	c.invalidations = append(c.invalidations, record)
	if len(c.invalidations) > core.MaxInvalidationRecords {
		c.invalidations = c.invalidations[len(c.invalidations)-core.MaxInvalidationRecords:]
	}

	if err := c.persist(ctx, blobEntries, blobStats, blobInvalidations); err != nil {
		for key, entry := range removed {
			c.entries[key] = entry
			c.stats.TotalSize += int64(len(entry.Value))
		}
		c.stats.TotalEntries += int64(len(matched))
		c.stats.EvictionCount -= int64(len(matched))
		c.invalidations = c.invalidations[:len(c.invalidations)-1]
		return nil, err
	}

	c.hub.Broadcast("cache-invalidated", map[string]interface{}{
		"type":             typ,
		"target":           target,
		"invalidated_keys": matched,
	})
	return matched, nil
}

// HandleAlarm runs the periodic TTL sweep: every expired entry is
// evicted eagerly so cold keys don't linger until the next lookup.
func (c *Coordinator) HandleAlarm(ctx context.Context) error {
	now := time.Now()
	var cleaned []string
	for key, entry := range c.entries {
		if entry.Expired(now) {
			c.stats.TotalSize -= int64(len(entry.Value))
			delete(c.entries, key)
			cleaned = append(cleaned, key)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}

	c.stats.TotalEntries -= int64(len(cleaned))
	c.stats.EvictionCount += int64(len(cleaned))

	if err := c.persist(ctx, blobEntries, blobStats); err != nil {
		return err
	}

	c.logger.Debug("cache sweep evicted entries", "count", len(cleaned))
	c.hub.Broadcast("cache-cleanup", map[string]interface{}{
		"cleaned_keys": cleaned,
		"remaining":    len(c.entries),
	})
	return nil
}

// Entries returns a snapshot of all live entries.
func (c *Coordinator) Entries() []*core.CacheEntry {
	out := make([]*core.CacheEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, entry)
	}
	return out
}

// Stats returns the aggregate counters.
func (c *Coordinator) Stats() core.CacheStats {
	return c.stats
}

// Invalidations returns the audit log, oldest first.
func (c *Coordinator) Invalidations() []core.InvalidationRecord {
	out := make([]core.InvalidationRecord, len(c.invalidations))
	copy(out, c.invalidations)
	return out
}

// persist writes the named blobs to the namespace partition in one
// atomic multi-put.
func (c *Coordinator) persist(ctx context.Context, blobs ...string) error {
	payloads := make(map[string][]byte, len(blobs))
	for _, name := range blobs {
		var payload interface{}
		switch name {
		case blobEntries:
			payload = c.entries
		case blobStats:
			payload = c.stats
		case blobInvalidations:
			payload = c.invalidations
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return core.ErrState(core.CodeStateCorrupted, "marshaling cache state").WithCause(err)
		}
		payloads[name] = data
	}
	part := runtime.Partition(Kind, c.id)
	if err := c.store.PutMulti(ctx, part, payloads); err != nil {
		return core.ErrStorage("persisting cache state", err)
	}
	return nil
}
