package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/meinhoongagan/clinic-booking/controllers"
	"github.com/meinhoongagan/clinic-booking/middleware"
	"github.com/meinhoongagan/clinic-booking/models"
)

// SetupCreditRoutes configures balances, purchases and adjustments
func SetupCreditRoutes(app *fiber.App, h *controllers.Handler, scoped []fiber.Handler) {
	credits := group(app, "/credits", scoped)
	credits.Get("/", middleware.RequirePermission(models.ResourceBilling, "index"), h.GetBalances)
	credits.Get("/:user_id", h.GetBalance)
	credits.Post("/:user_id/purchases", middleware.RequirePermission(models.ResourceBilling, "purchase"), h.PurchaseCredits)
	credits.Post("/:user_id/adjustments", middleware.RequirePermission(models.ResourceBilling, "adjust"), h.AdjustCredits)
	credits.Post("/purchases/:transaction_id/complete", middleware.RequirePermission(models.ResourceBilling, "purchase"), h.CompletePurchase)
	credits.Post("/purchases/:transaction_id/fail", middleware.RequirePermission(models.ResourceBilling, "purchase"), h.FailPurchase)
}
