package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/accountd/apiserver/internal/mq"
	"github.com/accountd/apiserver/types"
)

const (
	TopicUserRegistered = "accounts.registered"
	TopicUserDeleted    = "accounts.deleted"
)

// AccountEvent is the payload published on account lifecycle changes.
type AccountEvent struct {
	Event      string    `json:"event"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher publishes account lifecycle events to the configured
// broker. A nil broker turns every publish into a no-op, so callers
// never need to check whether eventing is enabled.
type EventPublisher struct {
	broker *mq.MQ
}

func NewEventPublisher(broker *mq.MQ) *EventPublisher {
	return &EventPublisher{broker: broker}
}

// UserRegistered announces a newly created account.
func (p *EventPublisher) UserRegistered(ctx context.Context, user types.User) error {
	return p.publish(ctx, TopicUserRegistered, user)
}

// UserDeleted announces a self-deleted account.
func (p *EventPublisher) UserDeleted(ctx context.Context, user types.User) error {
	return p.publish(ctx, TopicUserDeleted, user)
}

func (p *EventPublisher) publish(ctx context.Context, topic string, user types.User) error {
	if p == nil || p.broker == nil {
		return nil
	}

	event := AccountEvent{
		Event:      topic,
		UserID:     user.ID.Hex(),
		Email:      user.Email,
		OccurredAt: time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.broker.Publish(ctx, topic, data, map[string]string{
		"content-type": "application/json",
	})
	return err
}
