package controllers

import (
	"slices"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/meinhoongagan/clinic-booking/appointments"
	"github.com/meinhoongagan/clinic-booking/apperrors"
	"github.com/meinhoongagan/clinic-booking/middleware"
	"github.com/meinhoongagan/clinic-booking/models"
	"github.com/meinhoongagan/clinic-booking/utils"
)

// GetAllAppointments godoc
// @Summary List appointments
// @Description Appointments the caller may see, filtered by state, professional and time range
// @Tags appointments
// @Produce json
// @Param state query string false "State"
// @Param professional_id query int false "Professional user ID"
// @Param from query string false "RFC 3339 lower bound"
// @Param to query string false "RFC 3339 upper bound"
// @Success 200 {array} models.Appointment
// @Failure 403 {object} utils.ErrorResponse
// @Router /appointments [get]
func (h *Handler) GetAllAppointments(c *fiber.Ctx) error {
	filter := appointments.ListFilter{
		State:          models.AppointmentState(c.Query("state")),
		ProfessionalID: uint(c.QueryInt("professional_id")),
	}
	for key, dst := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		if v := c.Query(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return utils.RespondError(c, "Invalid "+key, apperrors.Invalid(key, "must be RFC 3339"))
			}
			*dst = t
		}
	}

	list, err := h.appointments.List(c.UserContext(), middleware.TenantFrom(c), filter)
	if err != nil {
		return utils.RespondError(c, "Failed to fetch appointments", err)
	}
	return c.JSON(list)
}

// GetAppointment godoc
// @Summary Get an appointment by ID
// @Tags appointments
// @Produce json
// @Param id path int true "Appointment ID"
// @Success 200 {object} models.Appointment
// @Failure 404 {object} utils.ErrorResponse
// @Router /appointments/{id} [get]
func (h *Handler) GetAppointment(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.RespondError(c, "Invalid appointment ID", err)
	}
	a, err := h.appointments.Get(c.UserContext(), middleware.TenantFrom(c), id)
	if err != nil {
		return utils.RespondError(c, "Appointment not found", err)
	}
	return c.JSON(fiber.Map{
		"appointment": a,
		"expired":     a.Expired(time.Now()),
		"events":      appointments.Allowed(a.State),
	})
}

// CreateAppointment godoc
// @Summary Book a draft appointment
// @Tags appointments
// @Accept json
// @Produce json
// @Param appointment body appointments.CreateInput true "Appointment"
// @Success 201 {object} models.Appointment
// @Failure 409 {object} utils.ErrorResponse
// @Failure 422 {object} utils.ErrorResponse
// @Router /appointments [post]
func (h *Handler) CreateAppointment(c *fiber.Ctx) error {
	var input appointments.CreateInput
	if err := c.BodyParser(&input); err != nil {
		return badRequest(c, err)
	}
	tc := middleware.TenantFrom(c)
	if input.ClientID == 0 {
		input.ClientID = tc.Actor.UserID
	}
	a, err := h.appointments.Create(c.UserContext(), tc, input)
	if err != nil {
		return utils.RespondError(c, "Failed to create appointment", err)
	}
	return c.Status(fiber.StatusCreated).JSON(a)
}

// TransitionAppointment godoc
// @Summary Fire a lifecycle event
// @Description pre_confirm, confirm, execute or cancel. The body is optional metadata, e.g. a cancellation reason.
// @Tags appointments
// @Accept json
// @Produce json
// @Param id path int true "Appointment ID"
// @Param event path string true "Event"
// @Success 200 {object} models.Appointment
// @Failure 402 {object} utils.ErrorResponse
// @Failure 409 {object} utils.ErrorResponse
// @Router /appointments/{id}/{event} [post]
func (h *Handler) TransitionAppointment(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.RespondError(c, "Invalid appointment ID", err)
	}
	event := appointments.Event(c.Params("event"))
	if !slices.Contains(appointments.Events, event) {
		return utils.RespondError(c, "Unknown event", apperrors.Invalid("event", "is not a lifecycle event"))
	}
	metadata := map[string]interface{}{}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&metadata); err != nil {
			return badRequest(c, err)
		}
	}

	a, err := h.appointments.Transition(c.UserContext(), middleware.TenantFrom(c), id, event, metadata)
	if err != nil {
		return utils.RespondError(c, "Failed to "+string(event)+" appointment", err)
	}
	return c.JSON(a)
}

// DeleteAppointment godoc
// @Summary Delete an appointment (admin only)
// @Tags appointments
// @Param id path int true "Appointment ID"
// @Success 204
// @Failure 403 {object} utils.ErrorResponse
// @Router /appointments/{id} [delete]
func (h *Handler) DeleteAppointment(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.RespondError(c, "Invalid appointment ID", err)
	}
	if err := h.appointments.Destroy(c.UserContext(), middleware.TenantFrom(c), id); err != nil {
		return utils.RespondError(c, "Failed to delete appointment", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
