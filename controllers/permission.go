package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/meinhoongagan/clinic-booking/authz"
	"github.com/meinhoongagan/clinic-booking/middleware"
	"github.com/meinhoongagan/clinic-booking/models"
	"github.com/meinhoongagan/clinic-booking/utils"
)

// GetAllPermissions lists the role matrix.
func (h *Handler) GetAllPermissions(c *fiber.Ctx) error {
	return c.JSON(authz.Permissions())
}

// AssignRoleToUser grants a role; 201 when it was new, 200 when the user
// already held it.
func (h *Handler) AssignRoleToUser(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.RespondError(c, "Invalid user ID", err)
	}
	var input struct {
		Role models.RoleKey `json:"role"`
	}
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, err)
	}

	granted, err := h.orgs.AssignRole(c.UserContext(), middleware.TenantFrom(c), id, input.Role)
	if err != nil {
		return utils.RespondError(c, "Failed to assign role", err)
	}
	status := fiber.StatusOK
	if granted {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"user_id": id, "role": input.Role, "granted": granted})
}

func (h *Handler) RevokeRoleFromUser(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.RespondError(c, "Invalid user ID", err)
	}
	role := models.RoleKey(c.Params("role"))
	revoked, err := h.orgs.RevokeRole(c.UserContext(), middleware.TenantFrom(c), id, role)
	if err != nil {
		return utils.RespondError(c, "Failed to revoke role", err)
	}
	return c.JSON(fiber.Map{"user_id": id, "role": role, "revoked": revoked})
}
