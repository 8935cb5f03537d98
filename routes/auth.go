package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/meinhoongagan/clinic-booking/controllers"
)

// SetupAuthRoutes configures all authentication related routes
func SetupAuthRoutes(app *fiber.App, h *controllers.Handler, scoped []fiber.Handler) {
	auth := app.Group("/auth")

	// Public routes
	auth.Post("/login", h.Login)

	// Protected routes
	me := group(app, "/auth/me", scoped)
	me.Get("/", h.GetUserProfile)
}
