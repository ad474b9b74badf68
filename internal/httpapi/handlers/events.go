package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bravohq/dispatch/internal/common"
	"github.com/bravohq/dispatch/internal/events"
)

// Events streams the session's status_update / task_complete events as
// SSE. Delivery is best-effort; a dropped stream loses nothing the
// chat response does not already carry.
func (h *Handler) Events(c *gin.Context) {
	if h.Notifier == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50302, "events not configured")
		return
	}

	sessionID := c.Query("session_id")
	if sessionID == "" {
		common.Fail(c, http.StatusBadRequest, 10005, "session_id required")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fmt.Fprintf(c.Writer, "event: error\ndata: flusher not supported\n\n")
		return
	}

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		if event != "" {
			fmt.Fprintf(c.Writer, "event: %s\n", event)
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", string(b))
		flusher.Flush()
	}

	ctx := c.Request.Context()
	stream, closeSub := h.Notifier.Subscribe(ctx, sessionID)
	defer closeSub()

	writeJSON(events.TypeConnected, events.Event{
		Type:      events.TypeConnected,
		SessionID: sessionID,
	})

	// heartbeat ticker (keeps connections alive)
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-stream:
			if !ok {
				return
			}
			writeJSON(ev.Type, ev)

		case <-ticker.C:
			writeJSON("ping", gin.H{"type": "ping", "ts": time.Now().Unix()})

		case <-ctx.Done():
			return
		}
	}
}
