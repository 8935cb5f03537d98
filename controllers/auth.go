package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/meinhoongagan/clinic-booking/apperrors"
	"github.com/meinhoongagan/clinic-booking/middleware"
	"github.com/meinhoongagan/clinic-booking/organizations"
	"github.com/meinhoongagan/clinic-booking/utils"
)

const tokenTTL = 24 * time.Hour

// Login handles user authentication inside one organization
func (h *Handler) Login(c *fiber.Ctx) error {
	type LoginInput struct {
		Subdomain string `json:"subdomain"`
		Email     string `json:"email"`
		Password  string `json:"password"`
	}

	input := new(LoginInput)
	if err := c.BodyParser(input); err != nil {
		return badRequest(c, err)
	}

	invalid := func() error {
		return c.Status(fiber.StatusUnauthorized).JSON(utils.ErrorResponse{
			Message: "Unauthorized",
			Error:   "Invalid credentials",
		})
	}

	org, err := h.orgs.BySubdomain(c.UserContext(), input.Subdomain)
	if errors.Is(err, apperrors.ErrNotFound) {
		return invalid()
	}
	if err != nil {
		return utils.RespondError(c, "Failed to log in", err)
	}
	user, err := h.orgs.Authenticate(c.UserContext(), org.ID, input.Email, input.Password)
	if errors.Is(err, organizations.ErrInvalidCredentials) {
		return invalid()
	}
	if err != nil {
		return utils.RespondError(c, "Failed to log in", err)
	}

	token, err := middleware.IssueToken(h.cfg.JWTSecret, middleware.Claims{UserID: user.ID, OrganizationID: org.ID}, tokenTTL)
	if err != nil {
		return utils.RespondError(c, "Failed to generate token", err)
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user": fiber.Map{
			"id":              user.ID,
			"name":            user.Name,
			"email":           user.Email,
			"organization_id": org.ID,
		},
	})
}

// GetUserProfile returns the current user with their roles and dependents
func (h *Handler) GetUserProfile(c *fiber.Ctx) error {
	tc := middleware.TenantFrom(c)
	user, err := h.orgs.User(c.UserContext(), tc, tc.Actor.UserID)
	if err != nil {
		return utils.RespondError(c, "Failed to fetch profile", err)
	}
	return c.JSON(fiber.Map{
		"user":       user,
		"roles":      tc.Actor.Roles,
		"dependents": tc.Actor.DependentIDs,
	})
}
