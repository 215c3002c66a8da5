package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"splitpay/internal/infrastructure/realtime"
)

const sseHeartbeat = 25 * time.Second

// Subscriber hands out change-feed subscriptions. *realtime.Hub satisfies it.
type Subscriber interface {
	Subscribe(filter realtime.Filter, buffer int) *realtime.Subscription
}

type EventsHandler struct {
	hub       Subscriber
	heartbeat time.Duration
}

func NewEventsHandler(hub Subscriber) *EventsHandler {
	return &EventsHandler{hub: hub, heartbeat: sseHeartbeat}
}

// HandleEvents streams expense changes involving the caller as
// Server-Sent Events. Clients re-fetch their data on every event.
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	// The server write timeout would cut the stream.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && err != http.ErrNotSupported {
		slog.WarnContext(r.Context(), "failed to clear write deadline", "error", err)
	}

	sub := h.hub.Subscribe(func(ev realtime.Event) bool {
		return ev.Involves(session.UserID, session.Email)
	}, realtime.DefaultBuffer)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprint(w, "retry: 3000\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		slog.WarnContext(r.Context(), "event stream not flushable", "error", err)
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}

		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: expense\ndata: %s\n\n", payload); err != nil {
				return
			}
		}

		if err := rc.Flush(); err != nil {
			return
		}
	}
}
