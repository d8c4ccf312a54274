package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/marketcheckout/pkg/logger"
)

const defaultTimeout = 10 * time.Second

// OrderConfirmation is what a buyer is told once an order has committed.
type OrderConfirmation struct {
	OrderID       uuid.UUID       `json:"order_id"`
	BuyerID       uuid.UUID       `json:"buyer_id"`
	Recipient     string          `json:"recipient"`
	RecipientName string          `json:"recipient_name,omitempty"`
	Currency      string          `json:"currency"`
	Total         decimal.Decimal `json:"total"`
	Lines         []LineSummary   `json:"lines"`
}

type LineSummary struct {
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Sink delivers a confirmation somewhere. Sinks must be safe for concurrent use.
type Sink interface {
	Name() string
	Send(ctx context.Context, msg OrderConfirmation) error
}

type failureRecorder interface {
	IncFailure(sink string)
}

// Dispatcher fans a confirmation out to every sink in the background. It
// never reports failure to the caller.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	metrics failureRecorder
	logg    *logger.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(timeout time.Duration, metrics failureRecorder, logg *logger.Logger, sinks ...Sink) (*Dispatcher, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	for i, sink := range sinks {
		if sink == nil {
			return nil, fmt.Errorf("sink %d is nil", i)
		}
	}
	return &Dispatcher{sinks: sinks, timeout: timeout, metrics: metrics, logg: logg}, nil
}

// Dispatch returns immediately. Each sink runs in its own goroutine under its
// own timeout, so a slow sink cannot use up another's budget. The caller's
// cancellation does not reach the sinks.
func (d *Dispatcher) Dispatch(ctx context.Context, msg OrderConfirmation) {
	if d == nil || len(d.sinks) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		var (
			mu   sync.Mutex
			errs error
			g    errgroup.Group
		)
		for _, sink := range d.sinks {
			g.Go(func() error {
				sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
				defer cancel()
				if err := d.send(sendCtx, sink, msg); err != nil {
					if d.metrics != nil {
						d.metrics.IncFailure(sink.Name())
					}
					mu.Lock()
					errs = multierr.Append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
		if errs != nil {
			logCtx := d.logg.WithOrderID(ctx, msg.OrderID.String())
			logCtx = d.logg.WithField(logCtx, "failed_sinks", len(multierr.Errors(errs)))
			d.logg.Error(logCtx, "order confirmation dispatch failed", errs)
		}
	}()
}

// Wait blocks until in-flight dispatches finish. Used on shutdown and in tests.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func (d *Dispatcher) send(ctx context.Context, sink Sink, msg OrderConfirmation) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
			d.logg.Warn(d.logg.WithField(ctx, "stack", string(debug.Stack())), "dispatch sink panicked")
		}
	}()
	return sink.Send(ctx, msg)
}
