package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meinhoongagan/clinic-booking/dbtest"
	"github.com/meinhoongagan/clinic-booking/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type sentMail struct{ to, subject, body string }

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

func TestDispatcherRoutesByName(t *testing.T) {
	d := NewDispatcher(zaptest.NewLogger(t))
	var got []string
	d.Register("a", func(_ context.Context, j Job) error {
		got = append(got, j.Name)
		return nil
	})
	d.Register("b", func(context.Context, Job) error { return errors.New("nope") })

	require.NoError(t, d.Dispatch(context.Background(), NewJob("a", nil, time.Now())))
	assert.Error(t, d.Dispatch(context.Background(), NewJob("b", nil, time.Now())))
	assert.Error(t, d.Dispatch(context.Background(), NewJob("c", nil, time.Now())))
	assert.Equal(t, []string{"a"}, got)
}

func TestJobUint(t *testing.T) {
	j := NewJob("x", map[string]interface{}{"a": float64(7), "b": uint(8), "c": "nine"}, time.Now())

	v, err := j.Uint("a")
	require.NoError(t, err)
	assert.Equal(t, uint(7), v)
	v, err = j.Uint("b")
	require.NoError(t, err)
	assert.Equal(t, uint(8), v)
	_, err = j.Uint("c")
	assert.Error(t, err)
	_, err = j.Uint("missing")
	assert.Error(t, err)
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	require.NoError(t, r.Enqueue(context.Background(), Reminder, map[string]interface{}{"appointment_id": 1}, time.Hour))
	require.NoError(t, r.Enqueue(context.Background(), Notification, nil, 0))
	assert.Len(t, r.Jobs(), 2)
	assert.Len(t, r.Named(Reminder), 1)

	r.Err = errors.New("queue down")
	assert.Error(t, r.Enqueue(context.Background(), Notification, nil, 0))
	r.Reset()
	assert.Empty(t, r.Jobs())
}

func TestMailHandlers(t *testing.T) {
	gdb := dbtest.Open(t)
	ctx := context.Background()

	client := models.User{OrganizationID: 1, Name: "Carla", Email: "carla@acme.test"}
	pro := models.User{OrganizationID: 1, Name: "Paulo", Email: "paulo@acme.test"}
	require.NoError(t, gdb.Create(&client).Error)
	require.NoError(t, gdb.Create(&pro).Error)

	executed := time.Date(2030, 1, 7, 11, 0, 0, 0, time.UTC)
	a := models.Appointment{
		OrganizationID: 1, ProfessionalID: pro.ID, ClientID: client.ID, State: models.StateConfirmed,
		ScheduledAt: time.Date(2030, 1, 7, 10, 0, 0, 0, time.UTC), DurationMinutes: 60,
	}
	require.NoError(t, gdb.Create(&a).Error)

	mailer := &fakeMailer{}
	d := NewDispatcher(zaptest.NewLogger(t))
	NewMailHandlers(gdb, mailer, zaptest.NewLogger(t)).Register(d)
	payload := map[string]interface{}{"organization_id": float64(1), "appointment_id": float64(a.ID), "event": "confirmed"}

	require.NoError(t, d.Dispatch(ctx, NewJob(Reminder, payload, time.Now())))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "carla@acme.test", mailer.sent[0].to)

	require.NoError(t, d.Dispatch(ctx, NewJob(Notification, payload, time.Now())))
	require.Len(t, mailer.sent, 3)
	assert.Equal(t, "paulo@acme.test", mailer.sent[2].to)
	assert.Contains(t, mailer.sent[2].body, "Carla")

	// Not executed yet, so no summary.
	require.NoError(t, d.Dispatch(ctx, NewJob(SessionSummary, payload, time.Now())))
	assert.Len(t, mailer.sent, 3)

	require.NoError(t, gdb.Model(&models.Appointment{}).Where("organization_id = ? AND id = ?", 1, a.ID).
		UpdateColumns(map[string]interface{}{"state": models.StateExecuted, "executed_at": executed}).Error)
	require.NoError(t, d.Dispatch(ctx, NewJob(SessionSummary, payload, time.Now())))
	require.Len(t, mailer.sent, 4)
	assert.Equal(t, "Session summary", mailer.sent[3].subject)

	// Reminders for finished sessions are dropped quietly.
	require.NoError(t, d.Dispatch(ctx, NewJob(Reminder, payload, time.Now())))
	assert.Len(t, mailer.sent, 4)

	// Another organization cannot see the appointment.
	foreign := map[string]interface{}{"organization_id": float64(2), "appointment_id": float64(a.ID)}
	assert.Error(t, d.Dispatch(ctx, NewJob(Notification, foreign, time.Now())))
}
