// Package jobs publishes domain events to Pub/Sub.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/shopfield/api/internal/services"
)

// PubSubOrderEventPublisher publishes order events to a Pub/Sub topic.
type PubSubOrderEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.OrderEventPublisher = (*PubSubOrderEventPublisher)(nil)

// NewPubSubOrderEventPublisher constructs a Pub/Sub backed order event publisher.
func NewPubSubOrderEventPublisher(topic *pubsub.Topic) (*PubSubOrderEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order publisher: topic is required")
	}
	return &PubSubOrderEventPublisher{topic: topic, marshal: json.Marshal}, nil
}

type orderEventMessage struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	OrderCode      string         `json:"orderCode,omitempty"`
	CustomerID     string         `json:"customerId,omitempty"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	Status         string         `json:"status,omitempty"`
	Total          string         `json:"total,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// PublishOrderEvent sends event and waits for the server acknowledgement.
func (p *PubSubOrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub order publisher: not initialised")
	}

	data, err := p.marshal(orderEventMessage{
		Type:           event.Type,
		OrderID:        event.OrderID,
		OrderCode:      event.OrderCode,
		CustomerID:     event.CustomerID,
		PreviousStatus: event.PreviousStatus,
		Status:         event.CurrentStatus,
		Total:          event.Total,
		OccurredAt:     event.OccurredAt.UTC(),
		Metadata:       event.Metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string, 4)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "orderCode", event.OrderCode)
	setAttr(attrs, "status", event.CurrentStatus)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
