package controllers

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/meinhoongagan/clinic-booking/apperrors"
	"github.com/meinhoongagan/clinic-booking/middleware"
	"github.com/meinhoongagan/clinic-booking/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func sendSpreadsheet(c *fiber.Ctx, filename string, buf *bytes.Buffer) error {
	c.Attachment(filename)
	c.Set(fiber.HeaderContentType, xlsxContentType)
	return c.Send(buf.Bytes())
}

// ExportLedgerStatement downloads a user's credit statement.
func (h *Handler) ExportLedgerStatement(c *fiber.Ctx) error {
	id, err := paramID(c, "user_id")
	if err != nil {
		return utils.RespondError(c, "Invalid user ID", err)
	}
	var buf bytes.Buffer
	if err := h.reports.LedgerStatement(c.UserContext(), middleware.TenantFrom(c), id, &buf); err != nil {
		return utils.RespondError(c, "Failed to export statement", err)
	}
	return sendSpreadsheet(c, fmt.Sprintf("statement-%d.xlsx", id), &buf)
}

// ExportAppointments downloads the appointments between ?from= and ?to=
// (YYYY-MM-DD, to exclusive) in the organization's time zone.
func (h *Handler) ExportAppointments(c *fiber.Ctx) error {
	ctx, tc := c.UserContext(), middleware.TenantFrom(c)
	loc, err := h.resolver.Location(ctx, tc)
	if err != nil {
		return utils.RespondError(c, "Organization not found", err)
	}
	from, err := time.ParseInLocation("2006-01-02", c.Query("from"), loc)
	if err != nil {
		return utils.RespondError(c, "Invalid from", apperrors.Invalid("from", "invalid date format, use YYYY-MM-DD"))
	}
	to, err := time.ParseInLocation("2006-01-02", c.Query("to"), loc)
	if err != nil {
		return utils.RespondError(c, "Invalid to", apperrors.Invalid("to", "invalid date format, use YYYY-MM-DD"))
	}

	var buf bytes.Buffer
	if err := h.reports.Appointments(ctx, tc, from, to, loc, &buf); err != nil {
		return utils.RespondError(c, "Failed to export appointments", err)
	}
	return sendSpreadsheet(c, fmt.Sprintf("appointments-%s.xlsx", c.Query("from")), &buf)
}
