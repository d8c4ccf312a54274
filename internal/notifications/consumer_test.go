package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketcheckout/pkg/enums"
	"github.com/angelmondragon/marketcheckout/pkg/logger"
	"github.com/angelmondragon/marketcheckout/pkg/outbox"
	"github.com/angelmondragon/marketcheckout/pkg/outbox/idempotency"
	"github.com/angelmondragon/marketcheckout/pkg/outbox/payloads"
	"github.com/angelmondragon/marketcheckout/pkg/outbox/registry"
)

type memoryStore struct {
	keys   map[string]bool
	setErr error
}

func (m *memoryStore) Get(context.Context, string) (string, error) { return "", nil }

func (m *memoryStore) Set(_ context.Context, key string, _ any, _ time.Duration) error {
	m.keys[key] = true
	return nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if m.setErr != nil {
		return false, m.setErr
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

type stubService struct {
	paid     []string
	refunded []string
	err      error
}

func (s *stubService) OrderPaid(_ context.Context, eventID string, _ payloads.OrderPaidEvent) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.paid = append(s.paid, eventID)
	return 2, nil
}

func (s *stubService) OrderRefunded(_ context.Context, eventID string, _ payloads.OrderRefundedEvent) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.refunded = append(s.refunded, eventID)
	return 1, nil
}

func newTestConsumer(t *testing.T, svc Service, store *memoryStore) *Consumer {
	t.Helper()
	manager, err := idempotency.NewManager(store, time.Hour)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return &Consumer{
		svc:         svc,
		decoders:    registry.NewOrderDecoders(),
		idempotency: manager,
		logg:        logger.Nop(),
	}
}

func orderMessage(t *testing.T, eventType enums.OutboxEventType, eventID string, data any) *pubsub.Message {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	body, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: eventID, OccurredAt: time.Now(), Data: raw})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &pubsub.Message{
		ID:         "msg-" + eventID,
		Data:       body,
		Attributes: map[string]string{"event_type": string(eventType)},
	}
}

func TestConsumerWritesNotificationsOnce(t *testing.T) {
	svc := &stubService{}
	store := &memoryStore{keys: map[string]bool{}}
	consumer := newTestConsumer(t, svc, store)
	msg := orderMessage(t, enums.EventOrderPaid, "evt-1", payloads.OrderPaidEvent{OrderID: uuid.New(), BuyerID: uuid.New()})

	if res := consumer.process(context.Background(), msg); !res.ack {
		t.Fatalf("expected ack, got %+v", res)
	}
	if res := consumer.process(context.Background(), msg); !res.ack {
		t.Fatalf("expected ack on redelivery, got %+v", res)
	}
	if len(svc.paid) != 1 || svc.paid[0] != "evt-1" {
		t.Fatalf("expected one delivery to the service, got %v", svc.paid)
	}
}

func TestConsumerRoutesRefunds(t *testing.T) {
	svc := &stubService{}
	consumer := newTestConsumer(t, svc, &memoryStore{keys: map[string]bool{}})
	msg := orderMessage(t, enums.EventOrderRefunded, "evt-2", payloads.OrderRefundedEvent{OrderID: uuid.New(), BuyerID: uuid.New()})

	if res := consumer.process(context.Background(), msg); !res.ack {
		t.Fatalf("expected ack, got %+v", res)
	}
	if len(svc.refunded) != 1 {
		t.Fatalf("expected refund notification, got %v", svc.refunded)
	}
}

func TestConsumerSkipsOtherEvents(t *testing.T) {
	svc := &stubService{}
	store := &memoryStore{keys: map[string]bool{}}
	consumer := newTestConsumer(t, svc, store)
	msg := orderMessage(t, enums.EventPaymentOrphaned, "evt-3", payloads.PaymentOrphanedEvent{TransactionID: uuid.New()})

	if res := consumer.process(context.Background(), msg); !res.ack {
		t.Fatalf("expected ack, got %+v", res)
	}
	if len(store.keys) != 0 {
		t.Fatalf("skipped events must not be marked processed")
	}
}

func TestConsumerAcksMalformedMessages(t *testing.T) {
	consumer := newTestConsumer(t, &stubService{}, &memoryStore{keys: map[string]bool{}})
	msg := &pubsub.Message{
		ID:         "bad",
		Data:       []byte("{not json"),
		Attributes: map[string]string{"event_type": string(enums.EventOrderPaid)},
	}
	if res := consumer.process(context.Background(), msg); !res.ack {
		t.Fatalf("expected malformed message to be acked, got %+v", res)
	}
}

func TestConsumerNacksAndReleasesOnFailure(t *testing.T) {
	svc := &stubService{err: errors.New("db down")}
	store := &memoryStore{keys: map[string]bool{}}
	consumer := newTestConsumer(t, svc, store)
	msg := orderMessage(t, enums.EventOrderPaid, "evt-4", payloads.OrderPaidEvent{OrderID: uuid.New(), BuyerID: uuid.New()})

	if res := consumer.process(context.Background(), msg); !res.nack {
		t.Fatalf("expected nack, got %+v", res)
	}
	if len(store.keys) != 0 {
		t.Fatalf("expected idempotency mark released, got %v", store.keys)
	}

	svc.err = nil
	if res := consumer.process(context.Background(), msg); !res.ack {
		t.Fatalf("expected ack on retry, got %+v", res)
	}
	if len(svc.paid) != 1 {
		t.Fatalf("expected retry to reach the service")
	}
}

func TestConsumerNacksWhenIdempotencyUnavailable(t *testing.T) {
	svc := &stubService{}
	consumer := newTestConsumer(t, svc, &memoryStore{keys: map[string]bool{}, setErr: errors.New("redis down")})
	msg := orderMessage(t, enums.EventOrderPaid, "evt-5", payloads.OrderPaidEvent{OrderID: uuid.New(), BuyerID: uuid.New()})

	if res := consumer.process(context.Background(), msg); !res.nack {
		t.Fatalf("expected nack, got %+v", res)
	}
	if len(svc.paid) != 0 {
		t.Fatalf("service must not run without the idempotency check")
	}
}
