package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketcheckout/pkg/logger"
	"github.com/angelmondragon/marketcheckout/pkg/metrics"
)

type recordingSink struct {
	name   string
	err    error
	mu     sync.Mutex
	got    []OrderConfirmation
	ctxErr error
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Send(ctx context.Context, msg OrderConfirmation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, msg)
	s.ctxErr = ctx.Err()
	return s.err
}

type panicSink struct{}

func (panicSink) Name() string { return "panicky" }

func (panicSink) Send(context.Context, OrderConfirmation) error { panic("boom") }

type blockingSink struct{}

func (blockingSink) Name() string { return "slow" }

func (blockingSink) Send(ctx context.Context, _ OrderConfirmation) error {
	<-ctx.Done()
	return ctx.Err()
}

func sampleConfirmation() OrderConfirmation {
	return OrderConfirmation{
		OrderID:   uuid.New(),
		BuyerID:   uuid.New(),
		Recipient: "buyer@example.com",
		Currency:  "USD",
		Total:     decimal.RequireFromString("220.00"),
		Lines:     []LineSummary{{Title: "lamp", Quantity: 2, LineTotal: decimal.RequireFromString("200.00")}},
	}
}

func failureCount(t *testing.T, reg *prometheus.Registry, sink string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "dispatch_failures_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if hasLabel(m.GetLabel(), "sink", sink) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func hasLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, l := range labels {
		if l.GetName() == name && l.GetValue() == value {
			return true
		}
	}
	return false
}

func TestDispatchDeliversToEverySink(t *testing.T) {
	first := &recordingSink{name: "first"}
	second := &recordingSink{name: "second"}
	d, err := NewDispatcher(time.Second, nil, logger.Nop(), first, second)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	msg := sampleConfirmation()
	d.Dispatch(context.Background(), msg)
	d.Wait()

	for _, sink := range []*recordingSink{first, second} {
		if len(sink.got) != 1 || sink.got[0].OrderID != msg.OrderID {
			t.Fatalf("%s: expected one delivery for %s, got %+v", sink.name, msg.OrderID, sink.got)
		}
	}
}

func TestDispatchIsolatesFailuresAndPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	failing := &recordingSink{name: "failing", err: errors.New("smtp down")}
	after := &recordingSink{name: "after"}
	d, err := NewDispatcher(time.Second, metrics.NewDispatchMetrics(reg), logger.Nop(), failing, panicSink{}, after)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	d.Dispatch(context.Background(), sampleConfirmation())
	d.Wait()

	if len(after.got) != 1 {
		t.Fatalf("expected sink after failures to run, got %d deliveries", len(after.got))
	}
	if got := failureCount(t, reg, "failing"); got != 1 {
		t.Fatalf("expected 1 failure for failing sink, got %v", got)
	}
	if got := failureCount(t, reg, "panicky"); got != 1 {
		t.Fatalf("expected 1 failure for panicking sink, got %v", got)
	}
	if got := failureCount(t, reg, "after"); got != 0 {
		t.Fatalf("expected no failures for healthy sink, got %v", got)
	}
}

func TestDispatchSurvivesCallerCancellation(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	d, err := NewDispatcher(time.Second, nil, logger.Nop(), sink)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Dispatch(ctx, sampleConfirmation())
	d.Wait()

	if len(sink.got) != 1 {
		t.Fatalf("expected delivery after caller cancel, got %d", len(sink.got))
	}
	if sink.ctxErr != nil {
		t.Fatalf("sink saw cancelled context: %v", sink.ctxErr)
	}
}

func TestDispatchTimeoutBoundsSlowSinks(t *testing.T) {
	reg := prometheus.NewRegistry()
	d, err := NewDispatcher(20*time.Millisecond, metrics.NewDispatchMetrics(reg), logger.Nop(), blockingSink{})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	done := make(chan struct{})
	go func() {
		d.Dispatch(context.Background(), sampleConfirmation())
		d.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not honour its timeout")
	}
	if got := failureCount(t, reg, "slow"); got != 1 {
		t.Fatalf("expected timeout counted as failure, got %v", got)
	}
}

func TestDispatchSlowSinkDoesNotStarveOthers(t *testing.T) {
	fast := &recordingSink{name: "fast"}
	d, err := NewDispatcher(50*time.Millisecond, nil, logger.Nop(), blockingSink{}, fast)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	d.Dispatch(context.Background(), sampleConfirmation())
	d.Wait()

	if len(fast.got) != 1 {
		t.Fatalf("expected fast sink delivery, got %d", len(fast.got))
	}
	if fast.ctxErr != nil {
		t.Fatalf("fast sink ran on an exhausted deadline: %v", fast.ctxErr)
	}
}

func TestNewDispatcherRejectsNilSink(t *testing.T) {
	if _, err := NewDispatcher(time.Second, nil, logger.Nop(), nil); err == nil {
		t.Fatal("expected error for nil sink")
	}
}

type fakePublisher struct {
	msgs []*gcppubsub.Message
	err  error
}

type fakeResult struct{ err error }

func (r fakeResult) Get(context.Context) (string, error) { return "id", r.err }

func (p *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.msgs = append(p.msgs, msg)
	return fakeResult{err: p.err}
}

func TestPubSubEmailSinkPublishesRequest(t *testing.T) {
	pub := &fakePublisher{}
	sink := &PubSubEmailSink{pub: pub}
	msg := sampleConfirmation()
	if err := sink.Send(context.Background(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.msgs))
	}
	attrs := pub.msgs[0].Attributes
	if attrs["type"] != emailRequestType || attrs["order_id"] != msg.OrderID.String() {
		t.Fatalf("unexpected attributes: %v", attrs)
	}

	pub.err = errors.New("unavailable")
	if err := sink.Send(context.Background(), msg); err == nil {
		t.Fatal("expected publish error")
	}
	msg.Recipient = ""
	if err := sink.Send(context.Background(), msg); err == nil {
		t.Fatal("expected missing recipient error")
	}
}
