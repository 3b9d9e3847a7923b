package handlers

import (
	"errors"

	"medipay/internal/models"
	"medipay/internal/repositories"
	"medipay/internal/services/ledger"
	"medipay/internal/utils"
	"medipay/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type transactionList struct {
	utils.PaginatedResponse
	TotalEarnings int64 `json:"total_earnings"`
}

type WalletHandler struct {
	ledger ledger.Service
}

func NewWalletHandler(l ledger.Service) *WalletHandler {
	return &WalletHandler{ledger: l}
}

func (h *WalletHandler) GetBalance(c *fiber.Ctx) error {
	owner, err := utils.GetOwner(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	balance, err := h.ledger.GetBalance(c.UserContext(), owner)
	if err != nil {
		return handleServiceError(c, err)
	}

	return response.Success(c, "Balance retrieved", fiber.Map{
		"owner_type": owner.Type,
		"owner_id":   owner.ID,
		"balance":    balance,
		"currency":   "XOF",
	})
}

// ListTransactions returns the caller's history, newest first, optionally
// filtered by ?type= and ?status=. total_earnings ignores the filters.
func (h *WalletHandler) ListTransactions(c *fiber.Ctx) error {
	owner, err := utils.GetOwner(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	page := utils.GetPagination(c, 1, 20)
	filter := repositories.TransactionFilter{
		Kind:   c.Query("type"),
		Status: c.Query("status"),
		Limit:  page.Limit,
		Offset: page.Offset,
	}

	txs, total, err := h.ledger.ListTransactions(c.UserContext(), owner, filter)
	if err != nil {
		return handleServiceError(c, err)
	}
	if txs == nil {
		txs = []models.Transaction{}
	}

	earnings, err := h.ledger.TotalEarnings(c.UserContext(), owner)
	if err != nil {
		return handleServiceError(c, err)
	}

	page.SetTotal(total)
	return c.JSON(transactionList{
		PaginatedResponse: utils.NewPaginatedResponse(txs, page),
		TotalEarnings:     earnings,
	})
}

func (h *WalletHandler) GetTransaction(c *fiber.Ctx) error {
	owner, err := utils.GetOwner(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	tx, err := h.ledger.GetTransaction(c.UserContext(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}
	// other owners' rows are reported as missing
	if tx.Owner() != owner {
		return response.NotFound(c, "Transaction not found")
	}
	return response.Success(c, "Transaction retrieved", tx)
}

func (h *WalletHandler) VerifyWallet(c *fiber.Ctx) error {
	owner, err := utils.GetOwner(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	return h.verify(c, owner)
}

// VerifyOwner audits any wallet. Admin only.
func (h *WalletHandler) VerifyOwner(c *fiber.Ctx) error {
	owner, err := models.ParseOwner(c.Params("type"), c.Params("id"))
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	return h.verify(c, owner)
}

func (h *WalletHandler) verify(c *fiber.Ctx, owner models.OwnerRef) error {
	v, err := h.ledger.VerifyWallet(c.UserContext(), owner)
	if err != nil {
		if errors.Is(err, models.ErrInvalidOwner) {
			return response.BadRequest(c, err.Error())
		}
		return handleServiceError(c, err)
	}
	return response.Success(c, "Wallet verified", v)
}
