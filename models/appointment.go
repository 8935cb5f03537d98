package models

import (
	"time"

	"github.com/meinhoongagan/clinic-booking/apperrors"
	"gorm.io/gorm"
)

type AppointmentState string

const (
	StateDraft        AppointmentState = "draft"
	StatePreConfirmed AppointmentState = "pre_confirmed"
	StateConfirmed    AppointmentState = "confirmed"
	StateExecuted     AppointmentState = "executed"
	StateCancelled    AppointmentState = "cancelled"
)

// Terminal states admit no outgoing transitions.
func (s AppointmentState) Terminal() bool {
	return s == StateExecuted || s == StateCancelled
}

// Appointment is a session between a professional and a client, optionally
// for one of the client's students. ProfessionalID and ClientID are user ids.
type Appointment struct {
	gorm.Model
	OrganizationID     uint             `json:"organization_id" gorm:"not null;index"`
	ProfessionalID     uint             `json:"professional_id" gorm:"not null;index:idx_appointments_professional_window"`
	ClientID           uint             `json:"client_id" gorm:"not null;index"`
	StudentID          *uint            `json:"student_id" gorm:"index"`
	State              AppointmentState `json:"state" gorm:"type:varchar(20);not null;default:'draft';index"`
	ScheduledAt        time.Time        `json:"scheduled_at" gorm:"not null;index:idx_appointments_professional_window"`
	DurationMinutes    int              `json:"duration_minutes" gorm:"not null"`
	EndsAt             time.Time        `json:"ends_at" gorm:"not null"`
	Price              *float64         `json:"price" gorm:"type:numeric(12,2)"`
	UsesCredits        bool             `json:"uses_credits"`
	CreditsUsed        int              `json:"credits_used"`
	Notes              string           `json:"notes" gorm:"type:text"`
	CancellationReason string           `json:"cancellation_reason" gorm:"type:text"`
	ExpiresAt          *time.Time       `json:"expires_at"`
	ConfirmedAt        *time.Time       `json:"confirmed_at"`
	ExecutedAt         *time.Time       `json:"executed_at"`
	CancelledAt        *time.Time       `json:"cancelled_at"`
	CancelledBy        *uint            `json:"cancelled_by"`
}

func (Appointment) ResourceType() string { return ResourceAppointments }

func (a Appointment) TenantID() uint { return a.OrganizationID }

func (a *Appointment) BeforeCreate(tx *gorm.DB) error {
	if a.OrganizationID == 0 {
		return apperrors.ErrTenantRequired
	}
	if a.State == "" {
		a.State = StateDraft
	}
	a.ScheduledAt = a.ScheduledAt.UTC()
	a.EndsAt = a.ScheduledAt.Add(a.Duration())
	return nil
}

func (a Appointment) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

// Window returns the half-open interval [start, end) the appointment occupies.
func (a Appointment) Window() (time.Time, time.Time) {
	return a.ScheduledAt, a.ScheduledAt.Add(a.Duration())
}

// Expired reports whether a pre-confirmed appointment passed its expiration.
// Nothing transitions it automatically; the sweep cancels it.
func (a Appointment) Expired(now time.Time) bool {
	return a.State == StatePreConfirmed && a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// Blocking reports whether the appointment occupies its professional's time.
// Drafts are provisional and never block.
func (a Appointment) Blocking() bool {
	return a.State != StateDraft && a.State != StateCancelled
}
