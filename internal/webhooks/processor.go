package webhooks

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
	"github.com/angelmondragon/marketcheckout/pkg/logger"
	"github.com/angelmondragon/marketcheckout/pkg/outbox/idempotency"
)

// claimHold bounds how long a delivery that died mid-handling blocks
// redeliveries of the same event.
const claimHold = 2 * time.Minute

type eventHandler interface {
	HandleEvent(ctx context.Context, ev Event) (Outcome, error)
}

// eventGuard is satisfied by the outbox idempotency manager; each gateway is
// its own consumer scope.
type eventGuard interface {
	Claim(ctx context.Context, consumer, eventID string, hold time.Duration) (idempotency.ClaimState, error)
	MarkProcessed(ctx context.Context, consumer, eventID string) error
	Delete(ctx context.Context, consumer, eventID string) error
}

type webhookRecorder interface {
	IncEvent(gateway, kind, result string)
	IncOrphan(gateway string)
}

// Processor is the entry point for verified webhook deliveries. An event id is
// only marked processed after its handler committed; a failed attempt releases
// the claim so the provider's retry gets a fresh attempt.
type Processor struct {
	handler eventHandler
	guard   eventGuard
	metrics webhookRecorder
	logg    *logger.Logger
}

func NewProcessor(handler eventHandler, guard eventGuard, metrics webhookRecorder, logg *logger.Logger) (*Processor, error) {
	if handler == nil {
		return nil, fmt.Errorf("event handler required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Processor{handler: handler, guard: guard, metrics: metrics, logg: logg}, nil
}

func (p *Processor) Process(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	ctx = p.logg.WithFields(ctx, map[string]any{
		"event_id":   ev.ID,
		"event_type": ev.RawType,
		"gateway":    string(ev.Gateway),
	})

	state, err := p.guard.Claim(ctx, guardScope(ev), ev.ID, claimHold)
	if err != nil {
		p.record(ev, "error")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook idempotency")
	}
	switch state {
	case idempotency.ClaimProcessed:
		p.record(ev, string(OutcomeDuplicate))
		p.logg.Info(ctx, "duplicate webhook event ignored")
		return nil
	case idempotency.ClaimInFlight:
		p.record(ev, "in_flight")
		return pkgerrors.New(pkgerrors.CodeConflict, "webhook event is already being processed")
	}

	outcome, err := p.handler.HandleEvent(ctx, ev)
	if err != nil {
		if delErr := p.guard.Delete(ctx, guardScope(ev), ev.ID); delErr != nil {
			p.logg.Warn(p.logg.WithField(ctx, "error", delErr.Error()), "release webhook idempotency key failed")
		}
		p.record(ev, "error")
		p.logg.Error(ctx, "webhook event handling failed", err)
		return err
	}
	if err := p.guard.MarkProcessed(ctx, guardScope(ev), ev.ID); err != nil {
		// The claim lapses on its own and a replay is a no-op in the reconciler.
		p.logg.Warn(p.logg.WithField(ctx, "error", err.Error()), "mark webhook processed failed")
	}
	p.record(ev, string(outcome))
	if outcome == OutcomeOrphaned && p.metrics != nil {
		p.metrics.IncOrphan(string(ev.Gateway))
	}
	return nil
}

func (p *Processor) record(ev Event, result string) {
	if p.metrics == nil {
		return
	}
	p.metrics.IncEvent(string(ev.Gateway), string(ev.Kind), result)
}

func guardScope(ev Event) string {
	return "webhook-" + string(ev.Gateway)
}
