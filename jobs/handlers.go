package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/meinhoongagan/clinic-booking/models"
	"github.com/meinhoongagan/clinic-booking/tenant"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Mailer is the outbound email channel.
type Mailer interface {
	Send(to, subject, body string) error
}

// MailHandlers turns appointment jobs into emails.
type MailHandlers struct {
	db     *gorm.DB
	mailer Mailer
	log    *zap.Logger
}

func NewMailHandlers(db *gorm.DB, mailer Mailer, log *zap.Logger) *MailHandlers {
	return &MailHandlers{db: db, mailer: mailer, log: log}
}

// Register wires every appointment job into d.
func (h *MailHandlers) Register(d *Dispatcher) {
	d.Register(Reminder, h.Reminder)
	d.Register(Notification, h.Notification)
	d.Register(SessionSummary, h.SessionSummary)
}

type appointmentParties struct {
	appointment  models.Appointment
	client       models.User
	professional models.User
}

// load reads the appointment and both parties. Jobs carry their organization,
// so every lookup stays tenant scoped.
func (h *MailHandlers) load(ctx context.Context, job Job) (*appointmentParties, error) {
	orgID, err := job.Uint("organization_id")
	if err != nil {
		return nil, err
	}
	appointmentID, err := job.Uint("appointment_id")
	if err != nil {
		return nil, err
	}

	db := h.db.WithContext(ctx)
	var p appointmentParties
	if err := db.Where(tenant.Column+" = ?", orgID).First(&p.appointment, appointmentID).Error; err != nil {
		return nil, fmt.Errorf("load appointment %d: %w", appointmentID, err)
	}
	if err := db.Where(tenant.Column+" = ?", orgID).First(&p.client, p.appointment.ClientID).Error; err != nil {
		return nil, fmt.Errorf("load client %d: %w", p.appointment.ClientID, err)
	}
	if err := db.Where(tenant.Column+" = ?", orgID).First(&p.professional, p.appointment.ProfessionalID).Error; err != nil {
		return nil, fmt.Errorf("load professional %d: %w", p.appointment.ProfessionalID, err)
	}
	return &p, nil
}

// Reminder emails the client ahead of the session. A reminder for an
// appointment that was cancelled or already ran is dropped.
func (h *MailHandlers) Reminder(ctx context.Context, job Job) error {
	p, err := h.load(ctx, job)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	a := p.appointment
	if a.State != models.StatePreConfirmed && a.State != models.StateConfirmed {
		h.log.Debug("reminder skipped", zap.Uint("appointment_id", a.ID), zap.String("state", string(a.State)))
		return nil
	}

	subject := "Reminder: Upcoming Appointment"
	body := fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>This is a reminder for your upcoming appointment.</p>
		<ul>
			<li><strong>Professional:</strong> %s</li>
			<li><strong>Start Time:</strong> %s</li>
			<li><strong>Duration:</strong> %d minutes</li>
			<li><strong>Status:</strong> %s</li>
		</ul>
		<p>If you need to cancel, please do so as soon as possible.</p>
	`, p.client.Name, p.professional.Name, a.ScheduledAt.Format("2006-01-02 15:04 MST"), a.DurationMinutes, a.State)
	return h.mailer.Send(p.client.Email, subject, body)
}

// Notification tells both parties about a confirmation or cancellation.
func (h *MailHandlers) Notification(ctx context.Context, job Job) error {
	p, err := h.load(ctx, job)
	if err != nil {
		return err
	}
	a := p.appointment
	event := job.String("event")
	if event == "" {
		event = string(a.State)
	}

	subject := fmt.Sprintf("Appointment %s", event)
	detail := ""
	if a.CancellationReason != "" {
		detail = fmt.Sprintf("<p><strong>Reason:</strong> %s</p>", a.CancellationReason)
	}
	var errs []error
	for _, to := range []models.User{p.client, p.professional} {
		body := fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>The appointment on %s with %s is now <strong>%s</strong>.</p>
		%s
	`, to.Name, a.ScheduledAt.Format("2006-01-02 15:04 MST"), counterpart(to, p), event, detail)
		if err := h.mailer.Send(to.Email, subject, body); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", to.Email, err))
		}
	}
	return errors.Join(errs...)
}

// SessionSummary sends the client a record of an executed session.
func (h *MailHandlers) SessionSummary(ctx context.Context, job Job) error {
	p, err := h.load(ctx, job)
	if err != nil {
		return err
	}
	a := p.appointment
	if a.State != models.StateExecuted || a.ExecutedAt == nil {
		return nil
	}

	body := fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>Your session with %s took place on %s.</p>
		<ul>
			<li><strong>Duration:</strong> %d minutes</li>
			<li><strong>Credits used:</strong> %d</li>
		</ul>
	`, p.client.Name, p.professional.Name, a.ExecutedAt.Format("2006-01-02 15:04 MST"), a.DurationMinutes, a.CreditsUsed)
	return h.mailer.Send(p.client.Email, "Session summary", body)
}

func counterpart(to models.User, p *appointmentParties) string {
	if to.ID == p.client.ID {
		return p.professional.Name
	}
	return p.client.Name
}
