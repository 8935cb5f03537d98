package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/meinhoongagan/clinic-booking/apperrors"
	"github.com/meinhoongagan/clinic-booking/middleware"
	"github.com/meinhoongagan/clinic-booking/scheduling"
	"github.com/meinhoongagan/clinic-booking/utils"
)

func (h *Handler) CreateProfessional(c *fiber.Ctx) error {
	var input scheduling.ProfessionalInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, err)
	}
	p, err := h.rules.CreateProfessional(c.UserContext(), middleware.TenantFrom(c), input)
	if err != nil {
		return utils.RespondError(c, "Failed to create professional", err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (h *Handler) GetProfessional(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.RespondError(c, "Invalid professional ID", err)
	}
	p, err := h.rules.Professional(c.UserContext(), middleware.TenantFrom(c), id)
	if err != nil {
		return utils.RespondError(c, "Professional not found", err)
	}
	return c.JSON(p)
}

// GetAllWorkingHours lists the weekly rules of a professional.
func (h *Handler) GetAllWorkingHours(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.RespondError(c, "Invalid professional ID", err)
	}
	tc := middleware.TenantFrom(c)
	if _, err := h.rules.Professional(c.UserContext(), tc, id); err != nil {
		return utils.RespondError(c, "Professional not found", err)
	}
	rules, err := h.rules.ListRules(c.UserContext(), tc, id)
	if err != nil {
		return utils.RespondError(c, "Failed to fetch working hours", err)
	}
	return c.JSON(rules)
}

func (h *Handler) CreateWorkingHour(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.RespondError(c, "Invalid professional ID", err)
	}
	var input scheduling.RuleInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, err)
	}
	rule, err := h.rules.AddRule(c.UserContext(), middleware.TenantFrom(c), id, input)
	if err != nil {
		return utils.RespondError(c, "Failed to create working hour", err)
	}
	return c.Status(fiber.StatusCreated).JSON(rule)
}

func (h *Handler) DeleteWorkingHour(c *fiber.Ctx) error {
	id, err := paramID(c, "rule_id")
	if err != nil {
		return utils.RespondError(c, "Invalid working hour ID", err)
	}
	if err := h.rules.DeactivateRule(c.UserContext(), middleware.TenantFrom(c), id); err != nil {
		return utils.RespondError(c, "Failed to delete working hour", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetAvailableSlots materialises the slots of ?date=YYYY-MM-DD and returns
// the open ones.
func (h *Handler) GetAvailableSlots(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.RespondError(c, "Invalid professional ID", err)
	}
	date := c.Query("date")
	if date == "" {
		return utils.RespondError(c, "Missing date", apperrors.Invalid("date", "is required"))
	}

	ctx, tc := c.UserContext(), middleware.TenantFrom(c)
	if _, err := h.rules.Professional(ctx, tc, id); err != nil {
		return utils.RespondError(c, "Professional not found", err)
	}
	if _, err := h.slots.Generate(ctx, tc, id, date); err != nil {
		return utils.RespondError(c, "Failed to generate slots", err)
	}
	open, err := h.slots.Open(ctx, tc, id, date)
	if err != nil {
		return utils.RespondError(c, "Failed to fetch slots", err)
	}
	return c.JSON(fiber.Map{
		"professional_id": id,
		"date":            date,
		"slots":           open,
	})
}

// CheckAvailability answers ?start=&end= (RFC 3339) for a professional.
func (h *Handler) CheckAvailability(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.RespondError(c, "Invalid professional ID", err)
	}
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		return utils.RespondError(c, "Invalid start", apperrors.Invalid("start", "must be RFC 3339"))
	}
	end, err := time.Parse(time.RFC3339, c.Query("end"))
	if err != nil {
		return utils.RespondError(c, "Invalid end", apperrors.Invalid("end", "must be RFC 3339"))
	}

	ctx, tc := c.UserContext(), middleware.TenantFrom(c)
	if _, err := h.rules.Professional(ctx, tc, id); err != nil {
		return utils.RespondError(c, "Professional not found", err)
	}
	ok, err := h.resolver.IsAvailable(ctx, tc, id, start, end)
	if err != nil {
		return utils.RespondError(c, "Failed to check availability", err)
	}
	return c.JSON(fiber.Map{"available": ok})
}
