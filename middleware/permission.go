package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/meinhoongagan/clinic-booking/authz"
	"github.com/meinhoongagan/clinic-booking/tenant"
	"github.com/meinhoongagan/clinic-booking/utils"
)

const tenantKey = "tenant"

// ActorLoader resolves the acting user of a request.
type ActorLoader interface {
	LoadActor(ctx context.Context, organizationID, userID uint, superAdmin bool) (tenant.Actor, error)
}

// Tenant turns the token claims into a tenant.Context for the request. It
// must run after Protected.
func Tenant(loader ActorLoader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := ClaimsFrom(c)
		if !ok {
			return unauthorized(c, "No authentication token")
		}
		actor, err := loader.LoadActor(c.UserContext(), claims.OrganizationID, claims.UserID, claims.SuperAdmin)
		if err != nil {
			return unauthorized(c, "Unknown user")
		}
		tc, err := tenant.New(claims.OrganizationID, actor)
		if err != nil {
			return utils.RespondError(c, "Invalid tenant", err)
		}
		c.Locals(tenantKey, tc)
		return c.Next()
	}
}

// TenantFrom returns the context Tenant stored. Handlers behind Tenant can
// rely on it being present.
func TenantFrom(c *fiber.Ctx) tenant.Context {
	tc, _ := c.Locals(tenantKey).(tenant.Context)
	return tc
}

// RequirePermission rejects requests early when none of the actor's roles
// holds the action on the resource type in any form. The services still
// authorize against the concrete record.
func RequirePermission(resourceType string, action string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tc := TenantFrom(c)
		for _, role := range tc.Actor.Roles {
			for _, granted := range authz.PermissionsFor(role, resourceType) {
				if authz.BaseAction(granted) == action {
					return c.Next()
				}
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(utils.ErrorResponse{
			Message: "You don't have permission to perform this action",
			Error:   "missing " + action + " on " + resourceType,
		})
	}
}

// RequireSuperAdmin guards platform routes that run outside any tenant.
func RequireSuperAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := ClaimsFrom(c)
		if !ok || !claims.SuperAdmin {
			return c.Status(fiber.StatusForbidden).JSON(utils.ErrorResponse{
				Message: "You don't have the required role to perform this action",
				Error:   "super admin required",
			})
		}
		return c.Next()
	}
}
