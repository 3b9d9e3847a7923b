package handlers

import (
	"context"
	"errors"

	"medipay/internal/services/deposit"
	"medipay/internal/services/reconcile"
	"medipay/internal/utils"
	"medipay/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Sweeper runs one reconciliation pass on demand.
type Sweeper interface {
	RunOnce(ctx context.Context) (*reconcile.Report, error)
}

type AdminHandler struct {
	deposits deposit.Service
	sweeper  Sweeper
}

func NewAdminHandler(deposits deposit.Service, sweeper Sweeper) *AdminHandler {
	return &AdminHandler{deposits: deposits, sweeper: sweeper}
}

// ExpireDeposit fails a pending deposit the operator never confirmed.
func (h *AdminHandler) ExpireDeposit(c *fiber.Ctx) error {
	reference := c.Params("reference")
	tx, err := h.deposits.ExpireDeposit(c.UserContext(), reference)
	if err != nil {
		return handleServiceError(c, err)
	}

	admin := ""
	if claims, err := utils.GetUserClaims(c); err == nil {
		admin = claims.UserID
	}
	log.Info().Str("reference", reference).Str("admin_id", admin).Msg("deposit expired by admin")
	return response.Success(c, "Deposit expired", tx)
}

func (h *AdminHandler) Sweep(c *fiber.Ctx) error {
	report, err := h.sweeper.RunOnce(c.UserContext())
	if err != nil {
		if errors.Is(err, reconcile.ErrSweepRunning) {
			return response.Conflict(c, err.Error())
		}
		return handleServiceError(c, err)
	}
	return response.Success(c, "Sweep completed", report)
}
