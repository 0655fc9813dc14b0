package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/perfect-api/apiserver/types"
)

// User lifecycle event types.
const (
	EventUserCreated         = "user.created"
	EventUserUpdated         = "user.updated"
	EventUserPasswordChanged = "user.password_changed"
	EventUserRoleChanged     = "user.role_changed"
	EventUserRemoved         = "user.removed"
)

const attrEventType = "event_type"

// UserEvent is the JSON body published for every committed user mutation.
// It never carries credentials.
type UserEvent struct {
	Type       string     `json:"type"`
	UserID     string     `json:"user_id"`
	Email      string     `json:"email,omitempty"`
	Role       types.Role `json:"role,omitempty"`
	ActorID    string     `json:"actor_id,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// EventPublisher publishes user events on a single channel.
type EventPublisher struct {
	mq      *MQ
	channel string
	now     func() time.Time
}

func NewEventPublisher(m *MQ, channel string) *EventPublisher {
	return &EventPublisher{mq: m, channel: channel, now: time.Now}
}

// PublishUserEvent stamps and publishes event.
func (p *EventPublisher) PublishUserEvent(ctx context.Context, event UserEvent) error {
	if event.Type == "" {
		return errors.New("event type is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode user event: %w", err)
	}
	attrs := map[string]string{
		attrEventType:   event.Type,
		AttrOrderingKey: event.UserID,
	}
	if _, err := p.mq.Publish(ctx, p.channel, data, attrs); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// SubscribeUserEvents decodes messages on the channel and hands them to fn.
// Undecodable messages are rejected with an error so the broker can nack them.
func (p *EventPublisher) SubscribeUserEvents(ctx context.Context, fn func(ctx context.Context, event UserEvent) error) error {
	return p.mq.Subscribe(ctx, p.channel, func(ctx context.Context, msg Message) error {
		event, err := DecodeUserEvent(msg)
		if err != nil {
			return err
		}
		return fn(ctx, event)
	})
}

// DecodeUserEvent parses a message body produced by PublishUserEvent.
func DecodeUserEvent(msg Message) (UserEvent, error) {
	var event UserEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return UserEvent{}, fmt.Errorf("decode user event %s: %w", msg.ID, err)
	}
	if event.Type == "" {
		event.Type = msg.Attributes[attrEventType]
	}
	return event, nil
}
