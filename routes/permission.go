package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/meinhoongagan/clinic-booking/controllers"
	"github.com/meinhoongagan/clinic-booking/middleware"
	"github.com/meinhoongagan/clinic-booking/models"
)

// SetupRBACRoutes configures the role matrix and role assignment routes
func SetupRBACRoutes(app *fiber.App, h *controllers.Handler, scoped []fiber.Handler) {
	rbac := group(app, "/rbac", scoped)
	rbac.Get("/permissions", h.GetAllPermissions)
	rbac.Post("/users/:id/roles", middleware.RequirePermission(models.ResourceUsers, "assign_role"), h.AssignRoleToUser)
	rbac.Delete("/users/:id/roles/:role", middleware.RequirePermission(models.ResourceUsers, "assign_role"), h.RevokeRoleFromUser)
}
