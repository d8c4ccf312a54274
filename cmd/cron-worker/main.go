package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketcheckout/internal/cart"
	"github.com/angelmondragon/marketcheckout/internal/cron"
	"github.com/angelmondragon/marketcheckout/internal/notifications"
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
	"github.com/angelmondragon/marketcheckout/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry, err := buildJobs(context.Background(), cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+envName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Checkout.PollInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildJobs(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	currency, err := enums.ParseCurrency(cfg.Checkout.Currency)
	if err != nil {
		return nil, err
	}
	clients, err := payments.ProviderFromConfig(ctx, cfg, logg)
	if err != nil {
		return nil, err
	}

	ledger := stock.NewLedger()
	cartRepo := cart.NewRepository(dbClient.DB())
	validator, err := cart.NewValidator(cartRepo, ledger)
	if err != nil {
		return nil, err
	}
	orderRepo := orders.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxSvc := outbox.NewService(outboxRepo, logg)
	materializer, err := orders.NewMaterializer(orderRepo, cartRepo, ledger, outboxSvc, logg)
	if err != nil {
		return nil, err
	}
	transactions := payments.NewTransactionRepository(dbClient.DB())
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
		return nil, err
	}

	pollJob, err := cron.NewPaymentReconcileJob(cron.PaymentReconcileJobParams{
		Logger:       logg,
		Transactions: transactions,
		Provider:     clients.Provider,
		Reconciler:   reconciler,
		MinAge:       cfg.Checkout.PendingPollAge,
	})
	if err != nil {
		return nil, fmt.Errorf("payment reconcile job: %w", err)
	}
	outboxJob, err := cron.NewOutboxRetentionJob(cron.RetentionJobParams{
		Logger:    logg,
		DB:        dbClient,
		Retention: cfg.Cron.OutboxRetention,
	}, outboxRepo, cfg.Outbox.MaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	cleanupJob, err := cron.NewNotificationCleanupJob(cron.RetentionJobParams{
		Logger:    logg,
		DB:        dbClient,
		Retention: cfg.Cron.NotificationRetention,
	}, notifications.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, fmt.Errorf("notification cleanup job: %w", err)
	}

	return cron.NewRegistry(pollJob, outboxJob, cleanupJob)
}

func envName(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
