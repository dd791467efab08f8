package permcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/teamboard/internal/core/events"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultChannel = "teamboard:perm:invalidate"

// Invalidator is the local cache a Broadcaster applies remote invalidations to.
type Invalidator interface {
	Invalidate(ctx context.Context, trigger string, keys ...Key) error
	InvalidateAll(ctx context.Context, trigger string) error
}

type invalidationMessage struct {
	Origin  string `json:"origin"`
	Trigger string `json:"trigger"`
	All     bool   `json:"all,omitempty"`
	Keys    []Key  `json:"keys,omitempty"`
}

// Broadcaster relays invalidations between instances that each keep a process-local
// cache. Messages published by this instance are ignored on receipt.
type Broadcaster struct {
	client     redis.UniversalClient
	channel    string
	instanceID string
	local      Invalidator
	logger     *slog.Logger
}

func NewBroadcaster(client redis.UniversalClient, channel string, local Invalidator, logger *slog.Logger) *Broadcaster {
	if channel == "" {
		channel = defaultChannel
	}
	return &Broadcaster{
		client:     client,
		channel:    channel,
		instanceID: uuid.New().String(),
		local:      local,
		logger:     logger,
	}
}

func (b *Broadcaster) InstanceID() string {
	return b.instanceID
}

// Register publishes every permission-changing bus event to the other instances.
func (b *Broadcaster) Register(bus *events.EventBus) {
	for _, eventType := range events.PermissionEventTypes {
		bus.Subscribe(eventType, b.HandleEvent)
	}
}

func (b *Broadcaster) HandleEvent(ctx context.Context, event events.Event) error {
	if f, ok := event.(events.Flushing); ok && f.FlushesAll() {
		return b.PublishAll(ctx, event.EventType())
	}

	inv, ok := event.(events.Invalidating)
	if !ok {
		return nil
	}

	subjects := inv.AffectedSubjects()
	if len(subjects) == 0 {
		return nil
	}

	keys := make([]Key, 0, len(subjects))
	for _, s := range subjects {
		keys = append(keys, Key{UserID: s.UserID, TeamID: s.TeamID})
	}
	return b.Publish(ctx, event.EventType(), keys...)
}

func (b *Broadcaster) Publish(ctx context.Context, trigger string, keys ...Key) error {
	return b.send(ctx, invalidationMessage{Origin: b.instanceID, Trigger: trigger, Keys: keys})
}

func (b *Broadcaster) PublishAll(ctx context.Context, trigger string) error {
	return b.send(ctx, invalidationMessage{Origin: b.instanceID, Trigger: trigger, All: true})
}

func (b *Broadcaster) send(ctx context.Context, msg invalidationMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode invalidation: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

// Listen applies invalidations from other instances until ctx is done. ready, when
// non-nil, is closed once the subscription is confirmed.
func (b *Broadcaster) Listen(ctx context.Context, ready chan<- struct{}) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	b.logger.Info("permission invalidation listener started", "channel", b.channel, "instance_id", b.instanceID)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("permission invalidation listener stopped", "channel", b.channel)
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.apply(ctx, msg)
		}
	}
}

func (b *Broadcaster) apply(ctx context.Context, msg *redis.Message) {
	var inv invalidationMessage
	if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
		b.logger.Error("failed to decode invalidation", "channel", msg.Channel, "error", err)
		return
	}
	if inv.Origin == b.instanceID {
		return
	}

	trigger := "remote:" + inv.Trigger
	var err error
	if inv.All {
		err = b.local.InvalidateAll(ctx, trigger)
	} else {
		err = b.local.Invalidate(ctx, trigger, inv.Keys...)
	}
	if err != nil {
		b.logger.Error("failed to apply remote invalidation", "origin", inv.Origin, "trigger", inv.Trigger, "error", err)
	}
}
