// Package bus carries role/user change notifications between backend
// instances over Redis pub/sub. Delivery is at-least-once with no ordering
// guarantee; consumers must be idempotent.
package bus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel for authorization changes.
const DefaultChannel = "authz.changes"

// Entity values for Event.
const (
	EntityRole = "role"
	EntityUser = "user"
)

// Event describes one role or user change. OperateID carries the version
// stamp assigned to the write, when the publisher knows it.
type Event struct {
	Entity    string `json:"entity"`
	EntityID  int64  `json:"entity_id"`
	Action    string `json:"action"`
	ActorID   int64  `json:"actor_id,omitempty"`
	OperateID int64  `json:"operate_id,omitempty"`
}

// Handler consumes one delivered event.
type Handler func(ctx context.Context, ev Event)

// Bus publishes and subscribes to change notifications.
type Bus struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// New constructs a Bus. An empty channel falls back to DefaultChannel.
func New(client *redis.Client, channel string, logger *slog.Logger) *Bus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Bus{client: client, channel: channel, logger: logger}
}

// Publish sends the event to every subscribed instance, the publisher
// included. Write paths treat failures as fire-and-forget: the periodic
// refresh job covers a lost notification.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe starts a goroutine delivering events to the handler until ctx is
// cancelled. A payload that fails to decode is still delivered as a zero
// event: refresh-style consumers ignore the payload anyway, and dropping the
// trigger would be worse than a spurious one.
func (b *Bus) Subscribe(ctx context.Context, handler Handler) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					if b.logger != nil {
						b.logger.Warn("bus: decode event", slog.Any("error", err))
					}
					ev = Event{}
				}
				handler(ctx, ev)
			}
		}
	}()
}
