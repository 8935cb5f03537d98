package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/meinhoongagan/clinic-booking/controllers"
	"github.com/meinhoongagan/clinic-booking/middleware"
)

// Setup registers every route group. Tenant routes run Protected then
// Tenant, so handlers always find a tenant.Context.
func Setup(app *fiber.App, h *controllers.Handler, secret string, loader middleware.ActorLoader) {
	protected := middleware.Protected(secret)
	scoped := []fiber.Handler{protected, middleware.Tenant(loader)}

	SetupAuthRoutes(app, h, scoped)
	SetupOrganizationRoutes(app, h, protected, scoped)
	SetupRBACRoutes(app, h, scoped)
	SetupAvailabilityRoutes(app, h, scoped)
	SetupAppointmentRoutes(app, h, scoped)
	SetupCreditRoutes(app, h, scoped)
	SetupReportRoutes(app, h, scoped)
}

func group(app *fiber.App, prefix string, handlers []fiber.Handler) fiber.Router {
	return app.Group(prefix, handlers...)
}
