package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// OrderEvent is the payload of every order topic.
type OrderEvent struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	OrderID    string    `json:"orderId"`
	UserID     string    `json:"userId"`
	Total      float64   `json:"totalPrice"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewOrderEvent builds an event with a fresh identifier.
func NewOrderEvent(topic, orderID, userID string, total float64, at time.Time) OrderEvent {
	return OrderEvent{
		ID:         uuid.NewString(),
		Topic:      topic,
		OrderID:    orderID,
		UserID:     userID,
		Total:      total,
		OccurredAt: at,
	}
}

// EventID identifies the event for queue-level deduplication.
func (e OrderEvent) EventID() string { return e.ID }

// DecodeOrderEvent reads an OrderEvent from a queued task.
func DecodeOrderEvent(t *asynq.Task) (OrderEvent, error) {
	var ev OrderEvent
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return OrderEvent{}, fmt.Errorf("events: decode %s: %w", t.Type(), err)
	}
	if ev.Topic == "" {
		ev.Topic = t.Type()
	}
	return ev, nil
}
