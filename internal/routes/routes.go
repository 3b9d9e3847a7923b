// Package routes defines the API routing configuration.
// It sets up all HTTP routes and their corresponding handlers,
// including middleware and authentication requirements.
package routes

import (
	"medipay/internal/handlers"
	"medipay/internal/middleware"
	"medipay/internal/models"
	"medipay/internal/services/deposit"
	"medipay/internal/services/hold"
	"medipay/internal/services/ledger"
	"medipay/internal/services/settlement"
	"medipay/internal/services/withdrawal"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the services the HTTP surface is built on.
type Dependencies struct {
	Ledger      ledger.Service
	Holds       hold.Service
	Settlement  settlement.Service
	Deposits    deposit.Service
	Withdrawals withdrawal.Service
	Sweeper     handlers.Sweeper

	// Idempotency is optional; without it Idempotency-Key is ignored.
	Idempotency  middleware.IdempotencyStore
	JWTSecret    string
	OperatorKeys map[string]string

	// StripeWebhookSecret enables /webhook/stripe when set.
	StripeWebhookSecret string

	// Metrics is optional; /metrics is only mounted when set.
	Metrics      prometheus.Gatherer
	HealthChecks map[string]handlers.HealthCheck
	Version      string
}

// SetupRoutes configures all application routes.
// It groups routes by functionality and applies appropriate middleware.
func SetupRoutes(app *fiber.App, deps Dependencies) {
	walletHandler := handlers.NewWalletHandler(deps.Ledger)
	holdHandler := handlers.NewHoldHandler(deps.Holds, deps.Settlement)
	depositHandler := handlers.NewDepositHandler(deps.Deposits)
	withdrawalHandler := handlers.NewWithdrawalHandler(deps.Withdrawals)
	webhookHandler := handlers.NewWebhookHandler(deps.Ledger, deps.Deposits, deps.Withdrawals)
	adminHandler := handlers.NewAdminHandler(deps.Deposits, deps.Sweeper)
	healthHandler := handlers.NewHealthHandler(deps.Version, deps.HealthChecks)

	app.Get("/health", healthHandler.Health)
	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{})))
	}

	// Operator callbacks authenticate with X-Operator-Key instead of a JWT
	webhook := app.Group("/webhook")
	operatorAuth := middleware.OperatorAuth(deps.OperatorKeys)
	if deps.StripeWebhookSecret != "" {
		stripeHandler := handlers.NewStripeWebhookHandler(deps.Ledger, deps.Deposits, deps.StripeWebhookSecret)
		webhook.Post("/stripe", stripeHandler.Handle)
	}
	webhook.Post("/payouts/:operator", operatorAuth, webhookHandler.PayoutWebhook)
	webhook.Post("/:operator", operatorAuth, webhookHandler.DepositWebhook)

	authMiddleware := middleware.NewAuthMiddleware(deps.JWTSecret)
	idempotent := middleware.Idempotency(deps.Idempotency)

	api := app.Group("/api", authMiddleware.Handler)
	api.Get("/operators", depositHandler.ListOperators)

	setupWalletRoutes(api, walletHandler)
	setupHoldRoutes(api, holdHandler, idempotent)

	api.Post("/deposits",
		middleware.RequireOwner,
		middleware.HasPermission(models.PermissionWalletWrite),
		idempotent,
		depositHandler.InitiateDeposit,
	)
	api.Post("/withdrawals",
		middleware.RequireProfessional,
		middleware.HasPermission(models.PermissionWithdraw),
		idempotent,
		withdrawalHandler.RequestWithdrawal,
	)

	setupAdminRoutes(api, adminHandler, walletHandler)
}

func setupWalletRoutes(router fiber.Router, h *handlers.WalletHandler) {
	wallet := router.Group("/wallet", middleware.RequireOwner, middleware.HasPermission(models.PermissionWalletRead))
	wallet.Get("/balance", h.GetBalance)
	wallet.Get("/transactions", h.ListTransactions)
	wallet.Get("/transactions/:id", h.GetTransaction)
	wallet.Get("/verify", h.VerifyWallet)
}

func setupHoldRoutes(router fiber.Router, h *handlers.HoldHandler, idempotent fiber.Handler) {
	holds := router.Group("/holds")
	holds.Post("/", middleware.RequireOwner, middleware.HasPermission(models.PermissionHoldWrite), idempotent, h.CreateHold)
	holds.Post("/:id/settle", middleware.HasPermission(models.PermissionSettleWrite), idempotent, h.Settle)
	holds.Post("/:id/cancel", middleware.HasPermission(models.PermissionSettleWrite), idempotent, h.Cancel)
}

func setupAdminRoutes(router fiber.Router, h *handlers.AdminHandler, wallets *handlers.WalletHandler) {
	admin := router.Group("/admin", middleware.AdminAuthMiddleware, middleware.HasPermission(models.PermissionReconcile))
	admin.Post("/deposits/:reference/expire", h.ExpireDeposit)
	admin.Post("/sweep", h.Sweep)
	admin.Get("/wallets/:type/:id/verify", wallets.VerifyOwner)
}
