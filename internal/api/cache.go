package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/covalent-hq/conclave/internal/cache"
	"github.com/covalent-hq/conclave/internal/core"
	"github.com/covalent-hq/conclave/internal/runtime"
)

type cacheSetRequest struct {
	Key        string                 `json:"key"`
	Value      json.RawMessage        `json:"value"`
	TTLSeconds int                    `json:"ttlSeconds"`
	Tags       []string               `json:"tags"`
	Metadata   map[string]interface{} `json:"metadata"`
}

type cacheInvalidateRequest struct {
	Type        core.InvalidationType `json:"type"`
	Target      string                `json:"target"`
	RequestedBy string                `json:"requestedBy"`
}

func (s *Server) handleCacheSet(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")

	var req cacheSetRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var entry *core.CacheEntry
	err := runtime.Do(s.rt, r.Context(), cache.Kind, namespace, func(ctx context.Context, c *cache.Coordinator) error {
		var opErr error
		entry, opErr = c.Set(ctx, req.Key, req.Value, req.TTLSeconds, req.Tags, req.Metadata)
		return opErr
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (s *Server) handleCacheGet(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	key := r.URL.Query().Get("key")

	var result cache.GetResult
	err := runtime.Do(s.rt, r.Context(), cache.Kind, namespace, func(ctx context.Context, c *cache.Coordinator) error {
		var opErr error
		result, opErr = c.Get(ctx, key)
		return opErr
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleCacheDelete(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	key := r.URL.Query().Get("key")

	var existed bool
	err := runtime.Do(s.rt, r.Context(), cache.Kind, namespace, func(ctx context.Context, c *cache.Coordinator) error {
		var opErr error
		existed, opErr = c.Delete(ctx, key)
		return opErr
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": existed})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")

	var cleared int
	err := runtime.Do(s.rt, r.Context(), cache.Kind, namespace, func(ctx context.Context, c *cache.Coordinator) error {
		var opErr error
		cleared, opErr = c.Clear(ctx)
		return opErr
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")

	var req cacheInvalidateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var invalidated []string
	err := runtime.Do(s.rt, r.Context(), cache.Kind, namespace, func(ctx context.Context, c *cache.Coordinator) error {
		var opErr error
		invalidated, opErr = c.Invalidate(ctx, req.Type, req.Target, req.RequestedBy)
		return opErr
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"invalidatedKeys": invalidated,
		"count":           len(invalidated),
	})
}

func (s *Server) handleCacheEntries(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")

	var entries []*core.CacheEntry
	err := runtime.Do(s.rt, r.Context(), cache.Kind, namespace, func(_ context.Context, c *cache.Coordinator) error {
		entries = c.Entries()
		return nil
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")

	var stats core.CacheStats
	err := runtime.Do(s.rt, r.Context(), cache.Kind, namespace, func(_ context.Context, c *cache.Coordinator) error {
		stats = c.Stats()
		return nil
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCacheInvalidations(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")

	var records []core.InvalidationRecord
	err := runtime.Do(s.rt, r.Context(), cache.Kind, namespace, func(_ context.Context, c *cache.Coordinator) error {
		records = c.Invalidations()
		return nil
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func (s *Server) handleCacheEvents(w http.ResponseWriter, r *http.Request) {
	s.streamEvents(w, r, cache.Kind, chi.URLParam(r, "namespace"))
}
