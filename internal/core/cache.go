package core

import (
	"encoding/json"
	"time"
)

// CacheEntry is one key/value pair in a cache namespace.
type CacheEntry struct {
	Key        string                 `json:"key"`
	Value      json.RawMessage        `json:"value"`
	TTLSeconds int                    `json:"ttl_seconds,omitempty"`
	ExpiresAt  *time.Time             `json:"expires_at,omitempty"`
	Tags       []string               `json:"tags,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	HitCount   int64                  `json:"hit_count"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Expired reports whether the entry's TTL has elapsed at the given instant.
// Entries without a TTL never expire.
func (e *CacheEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && e.ExpiresAt.Before(now)
}

// HasTag reports whether the entry carries the given tag.
func (e *CacheEntry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// CacheStats holds aggregate counters for one cache namespace.
// Hit/miss/eviction counts are monotonic; TotalEntries and TotalSize
// track the current contents.
type CacheStats struct {
	TotalEntries  int64     `json:"total_entries"`
	TotalSize     int64     `json:"total_size"`
	HitCount      int64     `json:"hit_count"`
	MissCount     int64     `json:"miss_count"`
	EvictionCount int64     `json:"eviction_count"`
	LastAccessed  time.Time `json:"last_accessed"`
}

// InvalidationType selects which entries an invalidation targets.
type InvalidationType string

const (
	InvalidateKey     InvalidationType = "key"
	InvalidateTag     InvalidationType = "tag"
	InvalidatePattern InvalidationType = "pattern"
	InvalidateAll     InvalidationType = "all"
)

// ValidInvalidationType reports whether t names a known invalidation type.
func ValidInvalidationType(t InvalidationType) bool {
	switch t {
	case InvalidateKey, InvalidateTag, InvalidatePattern, InvalidateAll:
		return true
	}
	return false
}

// InvalidationRecord is one entry in the diagnostic audit log. Records
// are never replayed.
type InvalidationRecord struct {
	ID          string           `json:"id"`
	Type        InvalidationType `json:"type"`
	Target      string           `json:"target"`
	RequestedBy string           `json:"requested_by,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// MaxInvalidationRecords caps the audit log at the most recent entries.
const MaxInvalidationRecords = 100
