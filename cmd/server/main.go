// Package main is the entry point for the ledger API.
// It wires the ledger store, the money-movement services and the HTTP server.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medipay/internal/config"
	"medipay/internal/events"
	"medipay/internal/handlers"
	"medipay/internal/logger"
	"medipay/internal/middleware"
	"medipay/internal/repositories"
	"medipay/internal/routes"
	"medipay/internal/services/deposit"
	"medipay/internal/services/hold"
	"medipay/internal/services/ledger"
	"medipay/internal/services/reconcile"
	"medipay/internal/services/settlement"
	"medipay/internal/services/withdrawal"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	config.LoadEnv()
	cfg := config.Load()
	logger.Setup("medipay-api", cfg.LogLevel, config.IsProduction())
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	checks := map[string]handlers.HealthCheck{}

	repo, err := openLedgerStore(cfg, checks)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open ledger store")
	}
	defer repositories.Close()

	var balanceCache ledger.BalanceCache
	var idempotency middleware.IdempotencyStore
	if cfg.Redis.Enabled {
		if err := repositories.InitCache(cfg.Redis); err != nil {
			log.Warn().Err(err).Msg("⚠️ Redis unavailable, running without balance cache and idempotency keys")
		} else {
			balanceCache = repositories.CacheService
			idempotency = repositories.NewIdempotencyRepository(repositories.RedisClient)
			checks["redis"] = repositories.CacheService.HealthCheck
			log.Info().Msg("✅ Redis connected")
		}
	}

	var publisher events.Publisher
	if cfg.RabbitMQ.URL != "" {
		conn, ch, err := events.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, "medipay-api")
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ RabbitMQ unavailable, ledger events will not be published")
		} else {
			defer conn.Close()
			defer ch.Close()
			publisher = events.NewRabbitMQPublisher(ch, cfg.RabbitMQ.Exchange)
			checks["rabbitmq"] = func(context.Context) error {
				if conn.IsClosed() {
					return errors.New("connection closed")
				}
				return nil
			}
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ledgerSvc := ledger.NewService(repo, balanceCache, publisher, ledger.Config{
		MaxRetries: cfg.Ledger.MaxRetries,
		RetryDelay: cfg.Ledger.RetryDelay,
	}, ledger.NewPrometheusMetrics(registry))

	operators, err := deposit.NewRegistry(cfg.Operators.FeeRates)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid operator fee configuration")
	}
	collectorsByOperator := map[string]deposit.Collector{}
	if cfg.Stripe.SecretKey != "" {
		collectorsByOperator[deposit.OperatorCarteBancaire] = deposit.NewStripeCollector(cfg.Stripe.SecretKey)
	}

	holdSvc := hold.NewService(ledgerSvc)
	settlementSvc := settlement.NewService(ledgerSvc)
	depositSvc := deposit.NewService(ledgerSvc, operators, collectorsByOperator)
	withdrawalSvc := withdrawal.NewService(ledgerSvc)

	sweeper := reconcile.NewSweeper(cfg.Sweeper, ledgerSvc, settlementSvc, depositSvc, withdrawalSvc)
	if cfg.Sweeper.Enabled {
		if err := sweeper.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start sweeper")
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      "medipay",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, " + middleware.IdempotencyKeyHeader,
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowCredentials: true,
	}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use("/api", limiter.New(limiter.Config{
		Max:        cfg.Server.RateLimit,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Please try again later.",
			})
		},
	}))

	routes.SetupRoutes(app, routes.Dependencies{
		Ledger:              ledgerSvc,
		Holds:               holdSvc,
		Settlement:          settlementSvc,
		Deposits:            depositSvc,
		Withdrawals:         withdrawalSvc,
		Sweeper:             sweeper,
		Idempotency:         idempotency,
		JWTSecret:           cfg.JWT.Secret,
		OperatorKeys:        cfg.Operators.WebhookKeys,
		StripeWebhookSecret: cfg.Stripe.WebhookSecret,
		Metrics:             registry,
		HealthChecks:        checks,
		Version:             version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Server.Port).Str("store", cfg.Ledger.Store).Msg("🚀 medipay API listening")
		return app.Listen(":" + cfg.Server.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		sweeper.Stop(shutdownCtx)
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		return
	}
	log.Info().Msg("server stopped")
}

// openLedgerStore returns the configured ledger backend and registers its
// health check.
func openLedgerStore(cfg *config.Config, checks map[string]handlers.HealthCheck) (repositories.LedgerRepository, error) {
	if cfg.Ledger.Store == "memory" {
		log.Warn().Msg("using the in-memory ledger store, data is lost on restart")
		checks["ledger"] = func(context.Context) error { return nil }
		return repositories.NewMemoryLedgerRepository(), nil
	}

	if err := repositories.InitDB(cfg.Database); err != nil {
		return nil, err
	}
	checks["postgres"] = func(ctx context.Context) error {
		sqlDB, err := repositories.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
	go logPoolStats()
	return repositories.NewLedgerRepository(repositories.DB), nil
}

func logPoolStats() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		sqlDB, err := repositories.DB.DB()
		if err != nil {
			return
		}
		stats := sqlDB.Stats()
		log.Debug().
			Int("open", stats.OpenConnections).
			Int("idle", stats.Idle).
			Int("in_use", stats.InUse).
			Int64("wait_count", stats.WaitCount).
			Dur("wait_duration", stats.WaitDuration).
			Msg("db pool stats")
	}
}
