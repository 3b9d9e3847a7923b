package handlers

import (
	"errors"

	"medipay/internal/models"
	"medipay/internal/services/hold"
	"medipay/internal/services/ledger"
	"medipay/internal/services/settlement"
	"medipay/internal/utils"
	"medipay/internal/utils/response"
	"medipay/internal/utils/validation"

	"github.com/gofiber/fiber/v2"
)

type createHoldInput struct {
	Amount        int64  `json:"amount" validate:"gt=0,lte=1000000000000"`
	RelatedEntity string `json:"related_entity" validate:"required,max=128"`
}

type settleInput struct {
	PayeeType string `json:"payee_type" validate:"required,oneof=user professional"`
	PayeeID   string `json:"payee_id" validate:"required,max=64"`
}

type HoldHandler struct {
	holds      hold.Service
	settlement settlement.Service
}

func NewHoldHandler(holds hold.Service, s settlement.Service) *HoldHandler {
	return &HoldHandler{holds: holds, settlement: s}
}

func (h *HoldHandler) CreateHold(c *fiber.Ctx) error {
	owner, err := utils.GetOwner(c)
	if err != nil {
		return response.Unauthorized(c)
	}

	var input createHoldInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}
	if errs := validation.Struct(input); errs != nil {
		return response.ValidationError(c, "Validation failed", errs)
	}

	tx, err := h.holds.CreateHold(c.UserContext(), owner, input.Amount, input.RelatedEntity)
	if err != nil {
		return handleServiceError(c, err)
	}

	return response.Created(c, "Hold created", fiber.Map{
		"hold_id":     tx.ID,
		"transaction": tx,
	})
}

func (h *HoldHandler) Settle(c *fiber.Ctx) error {
	var input settleInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}
	if errs := validation.Struct(input); errs != nil {
		return response.ValidationError(c, "Validation failed", errs)
	}
	payee, err := models.ParseOwner(input.PayeeType, input.PayeeID)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	holdID := c.Params("id")
	if ok, err := h.authorize(c, holdID); !ok {
		return err
	}

	s, err := h.settlement.Settle(c.UserContext(), holdID, payee)
	if err != nil {
		if errors.Is(err, ledger.ErrHoldAlreadyResolved) {
			return alreadyResolved(c, holdID)
		}
		return handleServiceError(c, err)
	}
	return response.Success(c, "Hold settled", s)
}

func (h *HoldHandler) Cancel(c *fiber.Ctx) error {
	holdID := c.Params("id")
	if ok, err := h.authorize(c, holdID); !ok {
		return err
	}

	res, err := h.settlement.CancelHold(c.UserContext(), holdID)
	if err != nil {
		if errors.Is(err, ledger.ErrHoldAlreadyResolved) {
			return alreadyResolved(c, holdID)
		}
		return handleServiceError(c, err)
	}
	return response.Success(c, "Hold cancelled", res)
}

// authorize lets the payer or an admin resolve a hold. Holds of other
// owners are reported as missing. When it returns false the response has
// already been written.
func (h *HoldHandler) authorize(c *fiber.Ctx, holdID string) (bool, error) {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return false, response.Unauthorized(c)
	}

	held, err := h.holds.Get(c.UserContext(), holdID)
	if err != nil {
		return false, handleServiceError(c, err)
	}
	if claims.Role == models.RoleAdmin {
		return true, nil
	}
	if owner, err := claims.Owner(); err != nil || owner != held.Owner() {
		return false, response.NotFound(c, "Hold not found")
	}
	return true, nil
}

func alreadyResolved(c *fiber.Ctx, holdID string) error {
	return c.JSON(fiber.Map{
		"message":          "Hold already resolved",
		"hold_id":          holdID,
		"already_resolved": true,
	})
}
