package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/meinhoongagan/clinic-booking/middleware"
	"github.com/meinhoongagan/clinic-booking/organizations"
	"github.com/meinhoongagan/clinic-booking/tenant"
	"github.com/meinhoongagan/clinic-booking/utils"
)

// CreateOrganization onboards a tenant. Only platform super admins reach it.
func (h *Handler) CreateOrganization(c *fiber.Ctx) error {
	claims, _ := middleware.ClaimsFrom(c)
	var input organizations.OrganizationInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, err)
	}
	actor := tenant.Actor{UserID: claims.UserID, SuperAdmin: claims.SuperAdmin}
	org, err := h.orgs.CreateOrganization(c.UserContext(), actor, input)
	if err != nil {
		return utils.RespondError(c, "Failed to create organization", err)
	}
	return c.Status(fiber.StatusCreated).JSON(org)
}

func (h *Handler) GetOrganization(c *fiber.Ctx) error {
	org, err := h.orgs.Organization(c.UserContext(), middleware.TenantFrom(c))
	if err != nil {
		return utils.RespondError(c, "Organization not found", err)
	}
	return c.JSON(org)
}

func (h *Handler) UpdateOrganizationSettings(c *fiber.Ctx) error {
	var settings map[string]interface{}
	if err := c.BodyParser(&settings); err != nil {
		return badRequest(c, err)
	}
	org, err := h.orgs.UpdateSettings(c.UserContext(), middleware.TenantFrom(c), settings)
	if err != nil {
		return utils.RespondError(c, "Failed to update settings", err)
	}
	return c.JSON(org)
}

func (h *Handler) CreateUser(c *fiber.Ctx) error {
	var input organizations.UserInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, err)
	}
	user, err := h.orgs.CreateUser(c.UserContext(), middleware.TenantFrom(c), input)
	if err != nil {
		return utils.RespondError(c, "Failed to create user", err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

func (h *Handler) GetUsers(c *fiber.Ctx) error {
	users, err := h.orgs.ListUsers(c.UserContext(), middleware.TenantFrom(c))
	if err != nil {
		return utils.RespondError(c, "Failed to fetch users", err)
	}
	return c.JSON(users)
}

func (h *Handler) GetUserByID(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.RespondError(c, "Invalid user ID", err)
	}
	user, err := h.orgs.User(c.UserContext(), middleware.TenantFrom(c), id)
	if err != nil {
		return utils.RespondError(c, "User not found", err)
	}
	return c.JSON(user)
}

func (h *Handler) CreateStudent(c *fiber.Ctx) error {
	var input organizations.StudentInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, err)
	}
	student, err := h.orgs.CreateStudent(c.UserContext(), middleware.TenantFrom(c), input)
	if err != nil {
		return utils.RespondError(c, "Failed to create student", err)
	}
	return c.Status(fiber.StatusCreated).JSON(student)
}

func (h *Handler) GetStudents(c *fiber.Ctx) error {
	students, err := h.orgs.ListStudents(c.UserContext(), middleware.TenantFrom(c))
	if err != nil {
		return utils.RespondError(c, "Failed to fetch students", err)
	}
	return c.JSON(students)
}
