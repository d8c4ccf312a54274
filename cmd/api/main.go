package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/marketcheckout/api/routes"
	"github.com/angelmondragon/marketcheckout/internal/cart"
	"github.com/angelmondragon/marketcheckout/internal/checkout"
	"github.com/angelmondragon/marketcheckout/internal/dispatch"
	"github.com/angelmondragon/marketcheckout/internal/orders"
	"github.com/angelmondragon/marketcheckout/internal/payments"
	"github.com/angelmondragon/marketcheckout/internal/stock"
	"github.com/angelmondragon/marketcheckout/internal/webhooks"
	"github.com/angelmondragon/marketcheckout/pkg/config"
	"github.com/angelmondragon/marketcheckout/pkg/db"
	"github.com/angelmondragon/marketcheckout/pkg/enums"
	"github.com/angelmondragon/marketcheckout/pkg/logger"
	"github.com/angelmondragon/marketcheckout/pkg/metrics"
	"github.com/angelmondragon/marketcheckout/pkg/migrate"
	"github.com/angelmondragon/marketcheckout/pkg/outbox"
	"github.com/angelmondragon/marketcheckout/pkg/outbox/idempotency"
	"github.com/angelmondragon/marketcheckout/pkg/pubsub"
	"github.com/angelmondragon/marketcheckout/pkg/redis"
)

const shutdownTimeout = 20 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) error {
	bootCtx := context.Background()

	dbClient, err := db.New(bootCtx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(bootCtx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(bootCtx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(bootCtx, "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(bootCtx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(bootCtx, "error closing pubsub client", err)
		}
	}()

	currency, err := enums.ParseCurrency(cfg.Checkout.Currency)
	if err != nil {
		return err
	}

	checkoutMetrics := metrics.NewCheckoutMetrics(prometheus.DefaultRegisterer)
	webhookMetrics := metrics.NewWebhookMetrics(prometheus.DefaultRegisterer)
	dispatchMetrics := metrics.NewDispatchMetrics(prometheus.DefaultRegisterer)

	clients, err := payments.ProviderFromConfig(bootCtx, cfg, logg)
	if err != nil {
		return err
	}
	gateway, err := payments.NewGateway(clients.Provider, payments.GatewayOptions{Timeout: cfg.Checkout.PaymentTimeout}, checkoutMetrics, logg)
	if err != nil {
		return err
	}
	customers, err := payments.NewCustomerService(clients.Provider, payments.NewCustomerRepository(dbClient.DB()), logg)
	if err != nil {
		return err
	}

	ledger := stock.NewLedger()
	cartRepo := cart.NewRepository(dbClient.DB())
	validator, err := cart.NewValidator(cartRepo, ledger)
	if err != nil {
		return err
	}
	orderRepo := orders.NewRepository(dbClient.DB())
	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	materializer, err := orders.NewMaterializer(orderRepo, cartRepo, ledger, outboxSvc, logg)
	if err != nil {
		return err
	}
	transactions := payments.NewTransactionRepository(dbClient.DB())

	emailSink, err := dispatch.NewPubSubEmailSink(pubsubClient.NotificationPublisher())
	if err != nil {
		return err
	}
	dispatcher, err := dispatch.NewDispatcher(cfg.Checkout.NotifyTimeout, dispatchMetrics, logg, emailSink, dispatch.NewLogSink(logg))
	if err != nil {
		return err
	}
	defer dispatcher.Wait()

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		DB:             dbClient,
		Users:          checkout.NewUserRepository(dbClient.DB()),
		Validator:      validator,
		Gateway:        gateway,
		Customers:      customers,
		Transactions:   transactions,
		Materializer:   materializer,
		Dispatcher:     dispatcher,
		Metrics:        checkoutMetrics,
		Logger:         logg,
		CommissionRate: cfg.Checkout.CommissionRate,
		Currency:       currency,
	})
	if err != nil {
		return err
	}

	ordersSvc, err := orders.NewService(orderRepo)
	if err != nil {
		return err
	}

	reconciler, err := webhooks.NewReconciler(webhooks.ReconcilerParams{
		DB:             dbClient,
		Transactions:   transactions,
		Carts:          cartRepo,
		Validator:      validator,
		Materializer:   materializer,
		Orders:         orderRepo,
		Outbox:         outboxSvc,
		Logger:         logg,
		CommissionRate: cfg.Checkout.CommissionRate,
		Currency:       currency,
	})
	if err != nil {
		return err
	}
	guard, err := idempotency.NewManager(redisClient, cfg.Webhooks.IdempotencyTTL)
	if err != nil {
		return err
	}
	processor, err := webhooks.NewProcessor(reconciler, guard, webhookMetrics, logg)
	if err != nil {
		return err
	}

	deps := routes.Dependencies{
		DB:              dbClient,
		Redis:           redisClient,
		RedisPinger:     redisClient,
		Gatherer:        prometheus.DefaultGatherer,
		Checkout:        checkoutSvc,
		Orders:          ordersSvc,
		SquareProcessor: processor,
		StripeProcessor: processor,
	}
	if clients.Square != nil {
		deps.SquareClient = clients.Square
	}
	if clients.Stripe != nil {
		deps.StripeClient = clients.Stripe
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"addr":    addr,
		"gateway": string(gateway.Name()),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		logg.Info(ctx, "api server shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}
