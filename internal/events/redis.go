package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisNotifier publishes events to a per-session Redis pub/sub
// channel. Subscribers (the SSE endpoint) relay them to clients.
type RedisNotifier struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisNotifier(rdb *redis.Client, logger *zap.Logger) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, logger: logger}
}

func (n *RedisNotifier) Publish(ctx context.Context, ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error("marshal event", zap.Error(err))
		return
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := n.rdb.Publish(pctx, Channel(ev.SessionID), body).Err(); err != nil {
		n.logger.Warn("publish event",
			zap.String("session_id", ev.SessionID),
			zap.String("type", ev.Type),
			zap.Error(err))
	}
}

// Subscribe relays the session's events until ctx is done. The second
// return value closes the subscription.
func (n *RedisNotifier) Subscribe(ctx context.Context, sessionID string) (<-chan Event, func()) {
	sub := n.rdb.Subscribe(ctx, Channel(sessionID))
	out := make(chan Event, 16)

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				n.logger.Warn("decode event", zap.Error(err))
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() { _ = sub.Close() }
}
