package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/marketcheckout/pkg/enums"
	"github.com/angelmondragon/marketcheckout/pkg/logger"
	"github.com/angelmondragon/marketcheckout/pkg/outbox"
	"github.com/angelmondragon/marketcheckout/pkg/outbox/idempotency"
	"github.com/angelmondragon/marketcheckout/pkg/outbox/payloads"
	"github.com/angelmondragon/marketcheckout/pkg/outbox/registry"
)

const orderNotificationConsumer = "order-notifications"

// Consumer watches order events and turns them into in-app notifications.
type Consumer struct {
	svc          Service
	decoders     *registry.DecoderRegistry
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds an order notification consumer.
func NewConsumer(svc Service, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if svc == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("orders subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		svc:          svc,
		decoders:     registry.NewOrderDecoders(),
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	})

	if eventType != enums.EventOrderPaid && eventType != enums.EventOrderRefunded {
		c.logg.Info(logCtx, "skipping event without notifications")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}
	if envelope.EventID == "" {
		c.logg.Error(logCtx, "envelope missing event id", fmt.Errorf("empty event id"))
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", envelope.EventID)

	payload, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, orderNotificationConsumer, envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	created, err := c.handlePayload(ctx, envelope.EventID, payload)
	if err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		if delErr := c.idempotency.Delete(ctx, orderNotificationConsumer, envelope.EventID); delErr != nil {
			c.logg.Error(logCtx, "failed to release idempotency mark", delErr)
		}
		return processResult{nack: true}
	}

	c.logg.Info(c.logg.WithField(logCtx, "notifications_created", created), "notifications written")
	return processResult{ack: true}
}

func (c *Consumer) handlePayload(ctx context.Context, eventID string, payload any) (int64, error) {
	switch event := payload.(type) {
	case payloads.OrderPaidEvent:
		ctx = c.logg.WithOrderID(ctx, event.OrderID.String())
		return c.svc.OrderPaid(ctx, eventID, event)
	case payloads.OrderRefundedEvent:
		ctx = c.logg.WithOrderID(ctx, event.OrderID.String())
		return c.svc.OrderRefunded(ctx, eventID, event)
	default:
		return 0, fmt.Errorf("unexpected payload %T", payload)
	}
}
