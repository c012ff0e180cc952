package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/covalent-hq/conclave/internal/events"
	"github.com/covalent-hq/conclave/internal/runtime"
)

const sseKeepAliveInterval = 30 * time.Second

// streamEvents attaches an SSE stream to the hub of the actor identified
// by kind/id. The subscriber id comes from ?subscriberId=; a reconnect
// with the same id replaces the previous stream. The goroutine holds a
// hub subscription but never the actor's operation lock, so streaming
// does not block writes.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, kind, id string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	subscriberID := r.URL.Query().Get("subscriberId")
	if subscriberID == "" {
		subscriberID = uuid.New().String()
	}

	// Resolve the actor (loading it if cold) and grab its hub. The hub
	// outlives this dispatch; subscription management is lock-free with
	// respect to actor operations.
	var hub *events.Hub
	err := s.rt.Dispatch(r.Context(), kind, id, func(_ context.Context, a runtime.Actor) error {
		hub = a.Hub()
		return nil
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	ch := hub.Subscribe(subscriberID)
	defer hub.Unsubscribe(subscriberID, ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, events.Envelope{
		Type: "connected",
		Data: map[string]string{
			"subscriberId": subscriberID,
			"entity":       runtime.Partition(kind, id),
		},
		Timestamp: time.Now().UTC(),
	})
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case env, open := <-ch:
			if !open {
				// Channel closed: replaced by a reconnect or the actor
				// was evicted. The client is expected to reconnect.
				return
			}
			writeSSE(w, env)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

// writeSSE writes one envelope in text/event-stream framing.
func writeSSE(w http.ResponseWriter, env events.Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Type, payload)
}
