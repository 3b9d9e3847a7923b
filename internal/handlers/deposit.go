package handlers

import (
	"medipay/internal/services/deposit"
	"medipay/internal/utils"
	"medipay/internal/utils/response"
	"medipay/internal/utils/validation"

	"github.com/gofiber/fiber/v2"
)

type depositInput struct {
	Amount      int64  `json:"amount" validate:"gt=0,lte=1000000000000"`
	Operator    string `json:"operator" validate:"required"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,e164"`
}

type DepositHandler struct {
	deposits deposit.Service
}

func NewDepositHandler(deposits deposit.Service) *DepositHandler {
	return &DepositHandler{deposits: deposits}
}

// InitiateDeposit records a pending deposit. The balance is credited when
// the operator confirms through its webhook.
func (h *DepositHandler) InitiateDeposit(c *fiber.Ctx) error {
	owner, err := utils.GetOwner(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	var input depositInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}
	if errs := validation.Struct(input); errs != nil {
		return response.ValidationError(c, "Validation failed", errs)
	}

	dep, err := h.deposits.InitiateDeposit(c.UserContext(), owner, input.Amount, input.Operator, input.PhoneNumber)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Deposit initiated, awaiting operator confirmation",
		"data":    dep,
	})
}

func (h *DepositHandler) ListOperators(c *fiber.Ctx) error {
	return response.Success(c, "Operators retrieved", h.deposits.Operators())
}
