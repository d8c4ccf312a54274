package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/angelmondragon/marketcheckout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
	"github.com/angelmondragon/marketcheckout/pkg/logger"
)

type latencyRecorder interface {
	ObserveGateway(gateway, result string, duration time.Duration)
}

// GatewayOptions tunes the adapter around a Provider.
type GatewayOptions struct {
	Timeout           time.Duration
	BreakerFailures   uint32
	BreakerOpenFor    time.Duration
	BreakerHalfOpen   uint32
	BreakerResetEvery time.Duration
}

func (o GatewayOptions) withDefaults() GatewayOptions {
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = 5
	}
	if o.BreakerOpenFor <= 0 {
		o.BreakerOpenFor = 30 * time.Second
	}
	if o.BreakerHalfOpen == 0 {
		o.BreakerHalfOpen = 1
	}
	if o.BreakerResetEvery <= 0 {
		o.BreakerResetEvery = time.Minute
	}
	return o
}

// Gateway is the payment adapter used by checkout. It bounds every authorize
// call with a timeout, trips a circuit breaker on repeated gateway faults and
// normalizes provider errors into the checkout error taxonomy.
type Gateway struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker[*Result]
	timeout  time.Duration
	metrics  latencyRecorder
	logg     *logger.Logger
}

func NewGateway(provider Provider, opts GatewayOptions, metrics latencyRecorder, logg *logger.Logger) (*Gateway, error) {
	if provider == nil {
		return nil, fmt.Errorf("payment provider required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	opts = opts.withDefaults()
	name := string(provider.Name())
	breaker := gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:        "payments-" + name,
		MaxRequests: opts.BreakerHalfOpen,
		Interval:    opts.BreakerResetEvery,
		Timeout:     opts.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || pkgerrors.ClassOf(err) == pkgerrors.ClassUser
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logg.Warn(context.Background(), fmt.Sprintf("payment circuit %s: %s -> %s", name, from, to))
		},
	})
	return &Gateway{
		provider: provider,
		breaker:  breaker,
		timeout:  opts.Timeout,
		metrics:  metrics,
		logg:     logg,
	}, nil
}

// Name identifies the wrapped provider.
func (g *Gateway) Name() enums.PaymentGateway {
	return g.provider.Name()
}

// Provider exposes the wrapped provider for customer management and polling.
func (g *Gateway) Provider() Provider {
	return g.provider
}

// ClassifyMethod reports whether ref is a one-shot token or a reusable method.
func (g *Gateway) ClassifyMethod(ref string) (enums.PaymentMethodKind, error) {
	return g.provider.ClassifyMethod(ref)
}

// Authorize charges once. A declined card comes back as OutcomeDeclined with
// a nil error. Deadline expiry is GATEWAY_TIMEOUT: the charge may have
// happened and must not be retried blindly.
func (g *Gateway) Authorize(ctx context.Context, req AuthorizeRequest) (*Result, error) {
	if req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if req.IdempotencyKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key required")
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	res, err := g.breaker.Execute(func() (*Result, error) {
		return g.provider.Authorize(callCtx, req)
	})
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			g.observe("breaker_open", elapsed)
			return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayError, err, "payment gateway unavailable")
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			g.observe("timeout", elapsed)
			return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayTimeout, err, "payment gateway timed out")
		}
		if pkgerrors.HasCode(err, pkgerrors.CodePaymentDeclined) {
			g.observe(string(OutcomeDeclined), elapsed)
			return &Result{Outcome: OutcomeDeclined, DeclineReason: declineReason(err)}, nil
		}
		g.observe("error", elapsed)
		return nil, normalizeError(err)
	}
	if res == nil {
		g.observe("error", elapsed)
		return nil, pkgerrors.New(pkgerrors.CodeGatewayError, "payment gateway returned no result")
	}
	g.observe(string(res.Outcome), elapsed)
	return res, nil
}

func (g *Gateway) observe(result string, d time.Duration) {
	if g.metrics == nil {
		return
	}
	g.metrics.ObserveGateway(string(g.provider.Name()), result, d)
}

// normalizeError keeps the buyer-facing payment codes and folds everything
// else into GATEWAY_ERROR so no gateway detail reaches the caller.
func normalizeError(err error) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayError, err, "payment gateway error")
	}
	switch typed.Code() {
	case pkgerrors.CodePaymentDeclined,
		pkgerrors.CodePaymentMethodStale,
		pkgerrors.CodePaymentActionRequired,
		pkgerrors.CodeGatewayError,
		pkgerrors.CodeGatewayTimeout,
		pkgerrors.CodeIdempotency:
		return err
	default:
		return pkgerrors.Wrap(pkgerrors.CodeGatewayError, err, "payment gateway error")
	}
}

func declineReason(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return ""
	}
	if details, ok := typed.Details().(map[string]any); ok {
		if code, ok := details["decline_code"].(string); ok {
			return code
		}
	}
	return ""
}
