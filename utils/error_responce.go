package utils

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/meinhoongagan/clinic-booking/apperrors"
	"github.com/meinhoongagan/clinic-booking/tenant"
)

// ErrorResponse is a struct for error response
type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	// ConflictingIDs lists the appointments a booking collided with.
	ConflictingIDs []uint `json:"conflicting_ids,omitempty"`
}

// StatusFor maps the error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	var conflict apperrors.SchedulingConflict
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.Is(err, apperrors.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperrors.ErrTenantRequired), errors.Is(err, apperrors.ErrTenantMismatch):
		return fiber.StatusForbidden
	case apperrors.IsDenied(err):
		return fiber.StatusForbidden
	case apperrors.IsValidation(err):
		return fiber.StatusUnprocessableEntity
	case errors.As(err, &conflict), apperrors.IsInvalidTransition(err):
		return fiber.StatusConflict
	case apperrors.IsInsufficientCredits(err):
		return fiber.StatusPaymentRequired
	case errors.Is(err, tenant.ErrUnscopedQuery):
		return fiber.StatusInternalServerError
	}
	return fiber.StatusInternalServerError
}

// RespondError writes err with the status StatusFor picks. Internal errors
// keep their detail out of the response.
func RespondError(c *fiber.Ctx, message string, err error) error {
	status := StatusFor(err)
	resp := ErrorResponse{Message: message, Error: err.Error()}
	if status == fiber.StatusInternalServerError {
		resp.Error = "internal error"
	}
	var conflict apperrors.SchedulingConflict
	if errors.As(err, &conflict) {
		resp.ConflictingIDs = conflict.ConflictingIDs
	}
	return c.Status(status).JSON(resp)
}
