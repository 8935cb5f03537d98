package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/meinhoongagan/clinic-booking/controllers"
	"github.com/meinhoongagan/clinic-booking/middleware"
	"github.com/meinhoongagan/clinic-booking/models"
)

// SetupOrganizationRoutes configures tenant onboarding, users and students
func SetupOrganizationRoutes(app *fiber.App, h *controllers.Handler, protected fiber.Handler, scoped []fiber.Handler) {
	app.Post("/platform/organizations", protected, middleware.RequireSuperAdmin(), h.CreateOrganization)

	org := group(app, "/organization", scoped)
	org.Get("/", h.GetOrganization)
	org.Patch("/settings", middleware.RequirePermission(models.ResourceOrganizations, "update"), h.UpdateOrganizationSettings)

	users := group(app, "/users", scoped)
	users.Get("/", middleware.RequirePermission(models.ResourceUsers, "index"), h.GetUsers)
	users.Post("/", middleware.RequirePermission(models.ResourceUsers, "create"), h.CreateUser)
	users.Get("/:id", h.GetUserByID)

	students := group(app, "/students", scoped)
	students.Get("/", h.GetStudents)
	students.Post("/", middleware.RequirePermission(models.ResourceStudents, "create"), h.CreateStudent)
}
