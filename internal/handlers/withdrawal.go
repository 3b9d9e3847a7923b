package handlers

import (
	"medipay/internal/services/withdrawal"
	"medipay/internal/utils"
	"medipay/internal/utils/response"
	"medipay/internal/utils/validation"

	"github.com/gofiber/fiber/v2"
)

type withdrawalInput struct {
	Amount      int64  `json:"amount" validate:"gt=0,lte=1000000000000"`
	Operator    string `json:"operator" validate:"required,max=32"`
	Destination string `json:"destination" validate:"required,max=128"`
}

type WithdrawalHandler struct {
	withdrawals withdrawal.Service
}

func NewWithdrawalHandler(withdrawals withdrawal.Service) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals}
}

func (h *WithdrawalHandler) RequestWithdrawal(c *fiber.Ctx) error {
	owner, err := utils.GetOwner(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	var input withdrawalInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}
	if errs := validation.Struct(input); errs != nil {
		return response.ValidationError(c, "Validation failed", errs)
	}

	tx, err := h.withdrawals.RequestWithdrawal(c.UserContext(), owner, input.Amount, input.Operator, input.Destination)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Withdrawal requested",
		"data": fiber.Map{
			"reference":   tx.ReferenceValue(),
			"status":      tx.Status,
			"transaction": tx,
		},
	})
}
