package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/meinhoongagan/clinic-booking/appointments"
	"github.com/meinhoongagan/clinic-booking/apperrors"
	"github.com/meinhoongagan/clinic-booking/config"
	"github.com/meinhoongagan/clinic-booking/credits"
	"github.com/meinhoongagan/clinic-booking/organizations"
	"github.com/meinhoongagan/clinic-booking/reports"
	"github.com/meinhoongagan/clinic-booking/scheduling"
	"github.com/meinhoongagan/clinic-booking/utils"
	"go.uber.org/zap"
)

// Handler serves the HTTP API on top of the booking services.
type Handler struct {
	cfg          *config.Config
	orgs         *organizations.Service
	rules        *scheduling.Rules
	slots        *scheduling.Slots
	resolver     *scheduling.Resolver
	appointments *appointments.Service
	credits      *credits.Service
	reports      *reports.Service
	log          *zap.Logger
}

type Services struct {
	Organizations *organizations.Service
	Rules         *scheduling.Rules
	Slots         *scheduling.Slots
	Resolver      *scheduling.Resolver
	Appointments  *appointments.Service
	Credits       *credits.Service
	Reports       *reports.Service
}

func NewHandler(cfg *config.Config, s Services, log *zap.Logger) *Handler {
	return &Handler{
		cfg:          cfg,
		orgs:         s.Organizations,
		rules:        s.Rules,
		slots:        s.Slots,
		resolver:     s.Resolver,
		appointments: s.Appointments,
		credits:      s.Credits,
		reports:      s.Reports,
		log:          log,
	}
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.Invalid(name, "must be a positive integer")
	}
	return uint(id), nil
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(utils.ErrorResponse{
		Message: "Failed to parse request body",
		Error:   err.Error(),
	})
}
