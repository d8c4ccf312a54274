package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

const emailRequestType = "order_confirmation"

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// PubSubEmailSink asks the mail service to send the confirmation email by
// publishing a request to the notifications topic.
type PubSubEmailSink struct {
	pub publisher
}

func NewPubSubEmailSink(p *gcppubsub.Publisher) (*PubSubEmailSink, error) {
	if p == nil {
		return nil, fmt.Errorf("notifications publisher required")
	}
	return &PubSubEmailSink{pub: &gcpPublisher{Publisher: p}}, nil
}

func (s *PubSubEmailSink) Name() string { return "email_pubsub" }

func (s *PubSubEmailSink) Send(ctx context.Context, msg OrderConfirmation) error {
	if msg.Recipient == "" {
		return fmt.Errorf("recipient required")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal confirmation: %w", err)
	}
	result := s.pub.Publish(ctx, &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"type":     emailRequestType,
			"order_id": msg.OrderID.String(),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish confirmation: %w", err)
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
