// Package events carries the fire-and-forget push channel. Delivery is
// best-effort: publish failures are logged and never surface to the
// request path.
package events

import "context"

const (
	TypeConnected    = "connected"
	TypeStatusUpdate = "status_update"
	TypeTaskComplete = "task_complete"
)

type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Message   string `json:"message,omitempty"`
	Answer    string `json:"answer,omitempty"`
}

type Notifier interface {
	Publish(ctx context.Context, ev Event)
}

// NopNotifier drops everything. Used in tests and when Redis is not
// configured.
type NopNotifier struct{}

func (NopNotifier) Publish(ctx context.Context, ev Event) {}

// Channel returns the per-session pub/sub channel name.
func Channel(sessionID string) string {
	return "chat.events." + sessionID
}
