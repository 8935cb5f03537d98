package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/meinhoongagan/clinic-booking/controllers"
	"github.com/meinhoongagan/clinic-booking/middleware"
	"github.com/meinhoongagan/clinic-booking/models"
)

// SetupAvailabilityRoutes configures professionals, their working hours and
// bookable slots
func SetupAvailabilityRoutes(app *fiber.App, h *controllers.Handler, scoped []fiber.Handler) {
	pros := group(app, "/professionals", scoped)
	pros.Post("/", middleware.RequirePermission(models.ResourceProfessionals, "create"), h.CreateProfessional)
	pros.Get("/:id", h.GetProfessional)
	pros.Get("/:id/working-hours", h.GetAllWorkingHours)
	pros.Post("/:id/working-hours", middleware.RequirePermission(models.ResourceProfessionals, "manage_availability"), h.CreateWorkingHour)
	pros.Delete("/:id/working-hours/:rule_id", middleware.RequirePermission(models.ResourceProfessionals, "manage_availability"), h.DeleteWorkingHour)
	pros.Get("/:id/slots", h.GetAvailableSlots)
	pros.Get("/:id/availability", h.CheckAvailability)
}
