package core

import (
	"testing"
	"time"
)

func TestCacheEntryExpired(t *testing.T) {
	now := time.Now()

	entry := &CacheEntry{Key: "k"}
	if entry.Expired(now) {
		t.Error("entry without TTL should never expire")
	}

	past := now.Add(-time.Second)
	entry.ExpiresAt = &past
	if !entry.Expired(now) {
		t.Error("entry past its ExpiresAt should be expired")
	}

	future := now.Add(time.Minute)
	entry.ExpiresAt = &future
	if entry.Expired(now) {
		t.Error("entry before its ExpiresAt should not be expired")
	}
}

func TestCacheEntryHasTag(t *testing.T) {
	entry := &CacheEntry{Tags: []string{"user:1", "profile"}}
	if !entry.HasTag("profile") {
		t.Error("expected tag profile")
	}
	if entry.HasTag("missing") {
		t.Error("unexpected tag missing")
	}
}

func TestValidInvalidationType(t *testing.T) {
	for _, typ := range []InvalidationType{InvalidateKey, InvalidateTag, InvalidatePattern, InvalidateAll} {
		if !ValidInvalidationType(typ) {
			t.Errorf("%s should be valid", typ)
		}
	}
	if ValidInvalidationType("prefix") {
		t.Error("prefix is not a known invalidation type")
	}
}
