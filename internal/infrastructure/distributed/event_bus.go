package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "camerasystem:membership"

// EventType represents the type of event
type EventType string

const (
	EventParticipantJoined EventType = "participant.joined"
	EventParticipantLeft   EventType = "participant.left"
	EventRoomDeleted       EventType = "room.deleted"
)

// Event is one membership change as seen by the relay that owns the room.
type Event struct {
	Type        EventType            `json:"type"`
	InstanceID  string               `json:"instance_id"`
	Timestamp   time.Time            `json:"timestamp"`
	Room        domain.RoomCode      `json:"room"`
	Seq         uint64               `json:"seq"`
	Participant domain.Participant   `json:"participant"`
	Members     []domain.Participant `json:"members"`
}

func eventType(e domain.MembershipEvent) EventType {
	switch {
	case e.Deleted():
		return EventRoomDeleted
	case e.Change == domain.MembershipJoined:
		return EventParticipantJoined
	default:
		return EventParticipantLeft
	}
}

// EventBus fans membership changes out to other relay instances over Redis
// pub/sub. It is a ports.MembershipSink.
type EventBus struct {
	client     *redis.Client
	instanceID string
	channel    string
	logger     *zap.SugaredLogger
}

func NewEventBus(client *redis.Client, instanceID, channel string, logger *zap.SugaredLogger) *EventBus {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		channel:    channel,
		logger:     logger,
	}
}

func (eb *EventBus) PublishMembership(ctx context.Context, e domain.MembershipEvent) error {
	event := Event{
		Type:        eventType(e),
		InstanceID:  eb.instanceID,
		Timestamp:   time.Now(),
		Room:        e.Code,
		Seq:         e.Seq,
		Participant: e.Participant,
		Members:     e.Members,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := eb.client.Publish(ctx, eb.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"type", event.Type,
		"room", event.Room,
		"seq", event.Seq,
	)
	return nil
}

// Subscribe delivers events from other instances to handler until ctx is
// done. Handler errors are logged and do not stop the subscription.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*Event) error) error {
	pubsub := eb.client.Subscribe(ctx, eb.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", eb.channel, err)
	}
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				eb.logger.Warnw("failed to unmarshal event",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}

			if event.InstanceID == eb.instanceID {
				continue
			}

			if err := handler(&event); err != nil {
				eb.logger.Warnw("error handling event",
					"type", event.Type,
					"room", event.Room,
					"error", err,
				)
			}
		}
	}
}

var _ ports.MembershipSink = (*EventBus)(nil)
