// Package main provisions credentials for a fresh deployment: an admin
// access token, and optionally a webhook key for a payment operator.
//
//	ADMIN_ID=ops-1 OPERATOR=moov go run ./cmd/admin_seed
package main

import (
	"fmt"
	"os"
	"time"

	"medipay/internal/config"
	"medipay/internal/logger"
	"medipay/internal/models"
	"medipay/internal/utils"

	"github.com/rs/zerolog/log"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()
	logger.Setup("medipay-admin-seed", cfg.LogLevel, false)

	adminID := os.Getenv("ADMIN_ID")
	if adminID == "" {
		log.Fatal().Msg("ADMIN_ID must be set in environment")
	}
	ttl := config.GetDurationEnv("ADMIN_TOKEN_TTL", 24*time.Hour)

	token, err := utils.GenerateToken(models.UserClaims{
		UserID:      adminID,
		Email:       os.Getenv("ADMIN_EMAIL"),
		Role:        models.RoleAdmin,
		Permissions: models.GetDefaultPermissions(models.RoleAdmin),
	}, cfg.JWT.Secret, ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to sign admin token")
	}
	fmt.Printf("ADMIN_TOKEN=%s\n", token)
	log.Info().Str("admin_id", adminID).Dur("ttl", ttl).Msg("✅ admin token issued")

	operator := os.Getenv("OPERATOR")
	if operator == "" {
		return
	}

	key, err := utils.GenerateSecureCode()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to generate operator key")
	}
	hash, err := utils.HashSecret(key)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to hash operator key")
	}

	// the plain key goes to the operator, the hash into OPERATOR_WEBHOOK_KEYS
	fmt.Printf("OPERATOR_KEY=%s\n", key)
	fmt.Printf("OPERATOR_WEBHOOK_KEYS entry: %s=%s\n", operator, hash)
	log.Info().Str("operator", operator).Msg("✅ operator webhook key generated")
}
