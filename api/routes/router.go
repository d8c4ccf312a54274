package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketcheckout/api/controllers"
	ordercontrollers "github.com/angelmondragon/marketcheckout/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/marketcheckout/api/controllers/webhooks"
	"github.com/angelmondragon/marketcheckout/api/middleware"
	"github.com/angelmondragon/marketcheckout/internal/orders"
	"github.com/angelmondragon/marketcheckout/pkg/config"
	"github.com/angelmondragon/marketcheckout/pkg/logger"
)

type squareVerifier interface {
	VerifyWebhook(body []byte, signature string) error
}

type stripeSigner interface {
	SigningSecret() string
}

// Dependencies are the collaborators the HTTP surface needs. Webhook routes
// are only mounted for gateways whose client is set.
type Dependencies struct {
	DB              controllers.Pinger
	Redis           middleware.IdempotencyStore
	RedisPinger     controllers.Pinger
	Gatherer        prometheus.Gatherer
	Checkout        controllers.CheckoutService
	Orders          orders.Service
	SquareClient    squareVerifier
	SquareProcessor webhookcontrollers.EventProcessor
	StripeClient    stripeSigner
	StripeProcessor webhookcontrollers.EventProcessor
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.RedisPinger))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		if deps.SquareClient != nil {
			r.Post("/square", webhookcontrollers.SquareWebhook(deps.SquareProcessor, deps.SquareClient, logg))
		}
		if deps.StripeClient != nil {
			r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeProcessor, deps.StripeClient, logg))
		}
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.With(middleware.Idempotency(deps.Redis, logg)).Post("/checkout", controllers.Checkout(deps.Checkout, logg))
		r.Get("/orders/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
	})

	return r
}
