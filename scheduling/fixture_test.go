package scheduling

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/meinhoongagan/clinic-booking/config"
	"github.com/meinhoongagan/clinic-booking/dbtest"
	"github.com/meinhoongagan/clinic-booking/models"
	"github.com/meinhoongagan/clinic-booking/tenant"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const professionalID = uint(3)

// Sunday 2030-01-06 09:00 UTC; the next day is a Monday.
var now = time.Date(2030, 1, 6, 9, 0, 0, 0, time.UTC)

func monday(hour, minute int) time.Time {
	return time.Date(2030, 1, 7, hour, minute, 0, 0, time.UTC)
}

type fixture struct {
	db       *gorm.DB
	cfg      *config.Config
	tc       tenant.Context
	resolver *Resolver
}

func newFixture(t *testing.T, settings datatypes.JSONMap) *fixture {
	t.Helper()
	gdb := dbtest.Open(t)

	org := models.Organization{Name: "Acme", Subdomain: "acme", Settings: settings}
	require.NoError(t, gdb.Create(&org).Error)
	require.NoError(t, gdb.Create(&models.Professional{OrganizationID: org.ID, UserID: professionalID, SessionDurationMinutes: 60}).Error)
	require.NoError(t, gdb.Create(&models.AvailabilityRule{
		OrganizationID: org.ID, ProfessionalID: professionalID, DayOfWeek: models.Monday,
		StartTime: "09:00", EndTime: "17:00", Active: true,
	}).Error)

	tc, err := tenant.New(org.ID, tenant.Actor{UserID: 1, OrganizationID: org.ID, Roles: []models.RoleKey{models.RoleAdmin}})
	require.NoError(t, err)

	cfg := &config.Config{DefaultTimeZone: "UTC", MinAdvanceBooking: 2 * time.Hour}
	return &fixture{
		db:       gdb,
		cfg:      cfg,
		tc:       tc,
		resolver: NewResolver(gdb, cfg).WithClock(func() time.Time { return now }),
	}
}

func (f *fixture) book(t *testing.T, start time.Time, minutes int, state models.AppointmentState) models.Appointment {
	t.Helper()
	a := models.Appointment{
		OrganizationID:  f.tc.OrganizationID,
		ProfessionalID:  professionalID,
		ClientID:        4,
		State:           state,
		ScheduledAt:     start,
		DurationMinutes: minutes,
	}
	require.NoError(t, f.db.Create(&a).Error)
	return a
}
