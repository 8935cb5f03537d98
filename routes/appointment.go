package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/meinhoongagan/clinic-booking/controllers"
	"github.com/meinhoongagan/clinic-booking/middleware"
	"github.com/meinhoongagan/clinic-booking/models"
)

// SetupAppointmentRoutes configures all appointment related routes
func SetupAppointmentRoutes(app *fiber.App, h *controllers.Handler, scoped []fiber.Handler) {
	appointment := group(app, "/appointments", scoped)
	appointment.Get("/", middleware.RequirePermission(models.ResourceAppointments, "index"), h.GetAllAppointments)
	appointment.Get("/:id", h.GetAppointment)
	appointment.Post("/", middleware.RequirePermission(models.ResourceAppointments, "create"), h.CreateAppointment)
	appointment.Post("/:id/:event", h.TransitionAppointment)
	appointment.Delete("/:id", middleware.RequirePermission(models.ResourceAppointments, "destroy"), h.DeleteAppointment)
}
