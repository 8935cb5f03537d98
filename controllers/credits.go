package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/meinhoongagan/clinic-booking/middleware"
	"github.com/meinhoongagan/clinic-booking/utils"
)

func (h *Handler) GetBalances(c *fiber.Ctx) error {
	balances, err := h.credits.Balances(c.UserContext(), middleware.TenantFrom(c))
	if err != nil {
		return utils.RespondError(c, "Failed to fetch balances", err)
	}
	return c.JSON(balances)
}

// GetBalance returns a user's balance with its transaction history.
func (h *Handler) GetBalance(c *fiber.Ctx) error {
	id, err := paramID(c, "user_id")
	if err != nil {
		return utils.RespondError(c, "Invalid user ID", err)
	}
	balance, history, err := h.credits.BalanceOf(c.UserContext(), middleware.TenantFrom(c), id)
	if err != nil {
		return utils.RespondError(c, "Failed to fetch balance", err)
	}
	return c.JSON(fiber.Map{"balance": balance, "transactions": history})
}

func (h *Handler) PurchaseCredits(c *fiber.Ctx) error {
	id, err := paramID(c, "user_id")
	if err != nil {
		return utils.RespondError(c, "Invalid user ID", err)
	}
	var input struct {
		Amount   int                    `json:"amount"`
		Pending  bool                   `json:"pending"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, err)
	}
	entry, err := h.credits.Purchase(c.UserContext(), middleware.TenantFrom(c), id, input.Amount, input.Pending, input.Metadata)
	if err != nil {
		return utils.RespondError(c, "Failed to purchase credits", err)
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

func (h *Handler) CompletePurchase(c *fiber.Ctx) error {
	id, err := paramID(c, "transaction_id")
	if err != nil {
		return utils.RespondError(c, "Invalid transaction ID", err)
	}
	entry, err := h.credits.CompletePurchase(c.UserContext(), middleware.TenantFrom(c), id)
	if err != nil {
		return utils.RespondError(c, "Failed to complete purchase", err)
	}
	return c.JSON(entry)
}

func (h *Handler) FailPurchase(c *fiber.Ctx) error {
	id, err := paramID(c, "transaction_id")
	if err != nil {
		return utils.RespondError(c, "Invalid transaction ID", err)
	}
	if err := h.credits.FailPurchase(c.UserContext(), middleware.TenantFrom(c), id); err != nil {
		return utils.RespondError(c, "Failed to fail purchase", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) AdjustCredits(c *fiber.Ctx) error {
	id, err := paramID(c, "user_id")
	if err != nil {
		return utils.RespondError(c, "Invalid user ID", err)
	}
	var input struct {
		Amount int    `json:"amount"`
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, err)
	}
	entry, err := h.credits.Adjust(c.UserContext(), middleware.TenantFrom(c), id, input.Amount, input.Reason)
	if err != nil {
		return utils.RespondError(c, "Failed to adjust credits", err)
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}
