// Package main runs the audit worker. It consumes ledger events from
// RabbitMQ and stores them in MongoDB.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medipay/internal/audit"
	"medipay/internal/config"
	"medipay/internal/events"
	"medipay/internal/logger"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()
	logger.Setup("medipay-audit-worker", cfg.LogLevel, config.IsProduction())

	if cfg.RabbitMQ.URL == "" {
		log.Fatal().Msg("RABBITMQ_URL must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create mongo client")
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(disconnectCtx); err != nil {
			log.Warn().Err(err).Msg("failed to disconnect mongo")
		}
	}()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = client.Ping(pingCtx, nil)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to ping mongo")
	}
	log.Info().Str("database", cfg.Mongo.Database).Msg("✅ MongoDB connected")

	conn, ch, err := events.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, "medipay-audit-worker")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to rabbitmq")
	}
	defer conn.Close()
	defer ch.Close()

	deliveries, err := audit.Subscribe(ch, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.Queue)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to ledger events")
	}

	consumer := audit.NewConsumer(audit.NewMongoStore(client, cfg.Mongo.Database))
	log.Info().Str("queue", cfg.RabbitMQ.Queue).Msg("🚀 audit worker consuming ledger events")

	if err := consumer.Run(ctx, deliveries); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("audit worker stopped")
		return
	}
	log.Info().Msg("audit worker stopped")
}
