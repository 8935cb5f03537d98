// Package reports exports ledger and schedule data as spreadsheets.
package reports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/360EntSecGroup-Skylar/excelize"
	"github.com/meinhoongagan/clinic-booking/apperrors"
	"github.com/meinhoongagan/clinic-booking/authz"
	"github.com/meinhoongagan/clinic-booking/credits"
	"github.com/meinhoongagan/clinic-booking/models"
	"github.com/meinhoongagan/clinic-booking/tenant"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	statementSheet    = "Statement"
	appointmentsSheet = "Appointments"
	timeLayout        = "2006-01-02 15:04"
)

type Service struct {
	db     *gorm.DB
	ledger *credits.Ledger
	authz  *authz.Engine
	log    *zap.Logger
}

func NewService(db *gorm.DB, ledger *credits.Ledger, engine *authz.Engine, log *zap.Logger) *Service {
	return &Service{db: db, ledger: ledger, authz: engine, log: log}
}

func (s *Service) export(tc tenant.Context) error {
	if err := tc.Validate(); err != nil {
		return err
	}
	return s.authz.Check(tc.Actor, "export", authz.Collection{Type: models.ResourceReports, OrganizationID: tc.OrganizationID})
}

// LedgerStatement writes a user's credit history, oldest first, with the
// running balance in the last column.
func (s *Service) LedgerStatement(ctx context.Context, tc tenant.Context, userID uint, w io.Writer) error {
	if err := s.export(tc); err != nil {
		return err
	}

	var balance models.CreditBalance
	err := tc.Scope(s.db.WithContext(ctx)).Where("user_id = ?", userID).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return err
	}
	history, err := s.ledger.History(ctx, tc, balance.ID)
	if err != nil {
		return err
	}

	headers := map[string]string{
		"A1": "Date",
		"B1": "Type",
		"C1": "Status",
		"D1": "Amount",
		"E1": "Appointment",
		"F1": "Reference",
		"G1": "Balance",
	}
	file := newFile(statementSheet, headers)

	running := 0
	row := 2
	for i := len(history) - 1; i >= 0; i-- {
		entry := history[i]
		if entry.Status == models.TxCompleted {
			running += entry.Amount
		}
		file.SetCellValue(statementSheet, fmt.Sprintf("A%v", row), entry.CreatedAt.UTC().Format(timeLayout))
		file.SetCellValue(statementSheet, fmt.Sprintf("B%v", row), string(entry.TransactionType))
		file.SetCellValue(statementSheet, fmt.Sprintf("C%v", row), string(entry.Status))
		file.SetCellValue(statementSheet, fmt.Sprintf("D%v", row), entry.Amount)
		if entry.AppointmentID != nil {
			file.SetCellValue(statementSheet, fmt.Sprintf("E%v", row), *entry.AppointmentID)
		}
		file.SetCellValue(statementSheet, fmt.Sprintf("F%v", row), entry.Reference)
		file.SetCellValue(statementSheet, fmt.Sprintf("G%v", row), running)
		row++
	}

	s.log.Info("ledger statement exported",
		zap.Uint("organization_id", tc.OrganizationID),
		zap.Uint("user_id", userID),
		zap.Int("entries", len(history)),
	)
	return file.Write(w)
}

// Appointments writes the organization's appointments scheduled in
// [from, to), in the organization's own time zone.
func (s *Service) Appointments(ctx context.Context, tc tenant.Context, from, to time.Time, loc *time.Location, w io.Writer) error {
	if err := s.export(tc); err != nil {
		return err
	}
	if !to.After(from) {
		return apperrors.Invalid("to", "must be after from")
	}
	if loc == nil {
		loc = time.UTC
	}

	var appointments []models.Appointment
	err := tc.Scope(s.db.WithContext(ctx)).
		Where("scheduled_at >= ? AND scheduled_at < ?", from.UTC(), to.UTC()).
		Order("scheduled_at").
		Find(&appointments).Error
	if err != nil {
		return err
	}

	headers := map[string]string{
		"A1": "ID",
		"B1": "Scheduled",
		"C1": "Minutes",
		"D1": "Professional",
		"E1": "Client",
		"F1": "State",
		"G1": "Credits",
	}
	file := newFile(appointmentsSheet, headers)
	for i, a := range appointments {
		row := i + 2
		file.SetCellValue(appointmentsSheet, fmt.Sprintf("A%v", row), a.ID)
		file.SetCellValue(appointmentsSheet, fmt.Sprintf("B%v", row), a.ScheduledAt.In(loc).Format(timeLayout))
		file.SetCellValue(appointmentsSheet, fmt.Sprintf("C%v", row), a.DurationMinutes)
		file.SetCellValue(appointmentsSheet, fmt.Sprintf("D%v", row), a.ProfessionalID)
		file.SetCellValue(appointmentsSheet, fmt.Sprintf("E%v", row), a.ClientID)
		file.SetCellValue(appointmentsSheet, fmt.Sprintf("F%v", row), string(a.State))
		file.SetCellValue(appointmentsSheet, fmt.Sprintf("G%v", row), a.CreditsUsed)
	}
	return file.Write(w)
}

func newFile(sheet string, headers map[string]string) *excelize.File {
	file := excelize.NewFile()
	file.NewSheet(sheet)
	file.DeleteSheet("Sheet1")
	for k, v := range headers {
		file.SetCellValue(sheet, k, v)
	}
	return file
}
