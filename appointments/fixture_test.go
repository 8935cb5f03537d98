package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/meinhoongagan/clinic-booking/authz"
	"github.com/meinhoongagan/clinic-booking/config"
	"github.com/meinhoongagan/clinic-booking/credits"
	"github.com/meinhoongagan/clinic-booking/dbtest"
	"github.com/meinhoongagan/clinic-booking/jobs"
	"github.com/meinhoongagan/clinic-booking/models"
	"github.com/meinhoongagan/clinic-booking/scheduling"
	"github.com/meinhoongagan/clinic-booking/tenant"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// Sunday 2030-01-06 09:00 UTC; the next day is a Monday.
var sunday = time.Date(2030, 1, 6, 9, 0, 0, 0, time.UTC)

func monday(hour, minute int) time.Time {
	return time.Date(2030, 1, 7, hour, minute, 0, 0, time.UTC)
}

type fixture struct {
	db      *gorm.DB
	svc     *Service
	ledger  *credits.Ledger
	queue   *jobs.Recorder
	clock   *time.Time
	org     models.Organization
	admin   tenant.Context
	pro     tenant.Context
	client  tenant.Context
	other   tenant.Context
	student models.Student
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := dbtest.Open(t)
	log := zaptest.NewLogger(t)

	org := models.Organization{Name: "Acme", Subdomain: "acme"}
	require.NoError(t, gdb.Create(&org).Error)

	users := []models.User{
		{OrganizationID: org.ID, Name: "Ada", Email: "admin@acme.test"},
		{OrganizationID: org.ID, Name: "Paulo", Email: "pro@acme.test"},
		{OrganizationID: org.ID, Name: "Carla", Email: "client@acme.test"},
		{OrganizationID: org.ID, Name: "Otto", Email: "other@acme.test"},
	}
	for i := range users {
		require.NoError(t, gdb.Create(&users[i]).Error)
	}
	admin, pro, client, other := users[0], users[1], users[2], users[3]

	require.NoError(t, gdb.Create(&models.Professional{OrganizationID: org.ID, UserID: pro.ID}).Error)
	require.NoError(t, gdb.Create(&models.AvailabilityRule{
		OrganizationID: org.ID, ProfessionalID: pro.ID, DayOfWeek: models.Monday,
		StartTime: "09:00", EndTime: "17:00", Active: true,
	}).Error)
	student := models.Student{OrganizationID: org.ID, GuardianID: client.ID, Name: "Lia"}
	require.NoError(t, gdb.Create(&student).Error)

	ctxFor := func(u models.User, role models.RoleKey, deps ...uint) tenant.Context {
		tc, err := tenant.New(org.ID, tenant.Actor{UserID: u.ID, OrganizationID: org.ID, Roles: []models.RoleKey{role}, DependentIDs: deps})
		require.NoError(t, err)
		return tc
	}

	cfg := &config.Config{
		DefaultTimeZone:   "UTC",
		MinAdvanceBooking: 2 * time.Hour,
		PreConfirmTTL:     24 * time.Hour,
		RefundWindow:      24 * time.Hour,
		ReminderLead:      time.Hour,
	}
	clock := sunday
	now := func() time.Time { return clock }

	engine := authz.NewEngine(log)
	resolver := scheduling.NewResolver(gdb, cfg)
	ledger := credits.NewLedger(gdb, log)
	queue := jobs.NewRecorder()
	svc := NewService(gdb, cfg, engine, resolver, scheduling.NewSlots(gdb, resolver), ledger, queue, log).WithClock(now)

	return &fixture{
		db:      gdb,
		svc:     svc,
		ledger:  ledger,
		queue:   queue,
		clock:   &clock,
		org:     org,
		admin:   ctxFor(admin, models.RoleAdmin),
		pro:     ctxFor(pro, models.RoleProfessional),
		client:  ctxFor(client, models.RoleClient, student.ID),
		other:   ctxFor(other, models.RoleClient),
		student: student,
	}
}

func (f *fixture) create(t *testing.T, start time.Time, usesCredits bool) *models.Appointment {
	t.Helper()
	a, err := f.svc.Create(context.Background(), f.client, CreateInput{
		ProfessionalID:  f.pro.Actor.UserID,
		ClientID:        f.client.Actor.UserID,
		ScheduledAt:     start,
		DurationMinutes: 60,
		UsesCredits:     usesCredits,
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) fund(t *testing.T, userID uint, amount int) *models.CreditBalance {
	t.Helper()
	ctx := context.Background()
	b, err := f.ledger.Balance(ctx, f.admin, userID)
	require.NoError(t, err)
	_, err = f.ledger.Add(ctx, f.admin, b, amount, models.TxPurchase, nil)
	require.NoError(t, err)
	return b
}

func (f *fixture) balance(t *testing.T, userID uint) int {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), f.admin, userID)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Reconcile(context.Background(), f.admin, b.ID))
	return b.Balance
}
