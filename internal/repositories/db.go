// Package repositories provides data access layer implementations.
// It handles all database operations and data persistence logic.
package repositories

import (
	"context"
	"fmt"
	"time"

	"medipay/internal/config"
	"medipay/internal/models"
	"medipay/internal/repositories/cache"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global database instance used across the application.
var DB *gorm.DB
var CacheService *cache.CacheService
var RedisClient *redis.Client

// InitDB opens PostgreSQL through lib/pq, applies the pool settings and
// migrates the ledger schema.
func InitDB(cfg config.DatabaseConfig) error {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DriverName: "postgres",
		DSN:        cfg.DSN(),
	}), &gorm.Config{
		Logger: logger.New(
			gormLogWriter{},
			logger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  logger.Warn, // Only log warnings and errors
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	DB = db
	if err := Migrate(db); err != nil {
		return err
	}

	log.Info().Str("host", cfg.Host).Str("database", cfg.Name).Msg("✅ PostgreSQL connected & migrations applied")
	return nil
}

// Migrate creates or updates the wallets and transactions tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Wallet{}, &models.Transaction{}); err != nil {
		return fmt.Errorf("failed to migrate ledger schema: %w", err)
	}
	return nil
}

// InitCache connects Redis and sets the global CacheService.
func InitCache(cfg config.RedisConfig) error {
	RedisClient = cache.NewRedisClient(&cache.RedisConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	CacheService = cache.NewCacheService(RedisClient, cfg.TTL)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return CacheService.HealthCheck(ctx)
}

// gormLogWriter routes GORM's slow query and error output through zerolog.
type gormLogWriter struct{}

func (gormLogWriter) Printf(format string, args ...interface{}) {
	log.Warn().Str("component", "gorm").Msgf(format, args...)
}

// Close releases the database and Redis connections.
func Close() {
	if DB != nil {
		if sqlDB, err := DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close database connection")
			}
		}
	}
	if CacheService != nil {
		if err := CacheService.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close redis connection")
		}
	}
}
