package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/meinhoongagan/clinic-booking/controllers"
	"github.com/meinhoongagan/clinic-booking/middleware"
	"github.com/meinhoongagan/clinic-booking/models"
)

// SetupReportRoutes configures the spreadsheet exports
func SetupReportRoutes(app *fiber.App, h *controllers.Handler, scoped []fiber.Handler) {
	reports := group(app, "/reports", scoped)
	reports.Use(middleware.RequirePermission(models.ResourceReports, "export"))
	reports.Get("/appointments.xlsx", h.ExportAppointments)
	reports.Get("/credits/:user_id/statement.xlsx", h.ExportLedgerStatement)
}
