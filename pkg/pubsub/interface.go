package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Event is the JSON document put on a channel.
type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent stamps payload, encoded as JSON, with the current time.
func NewEvent(eventType string, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", eventType, err)
	}
	return &Event{Type: eventType, Payload: raw, Timestamp: time.Now()}, nil
}

func (e *Event) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Publisher puts events on named channels. Delivery is fire-and-forget.
type Publisher interface {
	Publish(ctx context.Context, channel string, event *Event) error
	Close() error
}
