package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/atelierhq/quoting/internal/services"
)

// PubSubPackingPlanPublisher publishes packing plans to a Pub/Sub topic for shipment creation.
type PubSubPackingPlanPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.PackingPlanPublisher = (*PubSubPackingPlanPublisher)(nil)

// NewPubSubPackingPlanPublisher constructs a Pub/Sub backed packing plan publisher.
func NewPubSubPackingPlanPublisher(topic *pubsub.Topic) (*PubSubPackingPlanPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub packing plan publisher: topic is required")
	}
	return &PubSubPackingPlanPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishPackingPlan enqueues the plan and blocks until the server acknowledges it.
func (p *PubSubPackingPlanPublisher) PublishPackingPlan(ctx context.Context, message services.PackingPlanMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub packing plan publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal packing plan: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "planId", message.PlanID)
	setAttr(attrs, "orderId", message.OrderID)
	setAttr(attrs, "country", message.Country)
	setAttr(attrs, "zoneId", message.ZoneID)
	attrs["oversize"] = strconv.FormatBool(message.Oversize)
	attrs["packages"] = strconv.Itoa(len(message.Packages))

	msg := &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	}
	if orderID := strings.TrimSpace(message.OrderID); orderID != "" && p.topic.EnableMessageOrdering {
		msg.OrderingKey = orderID
	}

	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish packing plan: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
