package models

import (
	"time"

	"github.com/meinhoongagan/clinic-booking/apperrors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DayOfWeek int

const (
	Sunday DayOfWeek = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

func (d DayOfWeek) Valid() bool { return d >= Sunday && d <= Saturday }

func (d DayOfWeek) String() string { return time.Weekday(d).String() }

// Window is an "HH:MM"-"HH:MM" range inside one day.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WeeklyAvailability summarises the active availability rules of a
// professional, keyed by lower-case weekday name.
type WeeklyAvailability map[string][]Window

// Professional holds the booking profile of a user with the professional role.
type Professional struct {
	ID                     uint                                   `json:"id" gorm:"primaryKey"`
	OrganizationID         uint                                   `json:"organization_id" gorm:"not null;index"`
	UserID                 uint                                   `json:"user_id" gorm:"not null;uniqueIndex"`
	Availability           datatypes.JSONType[WeeklyAvailability] `json:"availability"`
	SessionDurationMinutes int                                    `json:"session_duration_minutes" gorm:"not null;default:60"`
	SessionRate            float64                                `json:"session_rate" gorm:"type:numeric(12,2);default:0"`
	CreatedAt              time.Time                              `json:"created_at"`
	UpdatedAt              time.Time                              `json:"updated_at"`
}

func (Professional) ResourceType() string { return ResourceProfessionals }

func (p Professional) TenantID() uint { return p.OrganizationID }

func (p *Professional) BeforeCreate(tx *gorm.DB) error {
	if p.OrganizationID == 0 {
		return apperrors.ErrTenantRequired
	}
	if p.SessionDurationMinutes <= 0 {
		p.SessionDurationMinutes = 60
	}
	return nil
}

// AvailabilityRule is a recurring weekly window in which a professional can
// be booked. ProfessionalID is the professional's user id, like on
// appointments.
type AvailabilityRule struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	OrganizationID uint      `json:"organization_id" gorm:"not null;uniqueIndex:idx_availability_rules_unique"`
	ProfessionalID uint      `json:"professional_id" gorm:"not null;uniqueIndex:idx_availability_rules_unique"`
	DayOfWeek      DayOfWeek `json:"day_of_week" gorm:"not null;uniqueIndex:idx_availability_rules_unique"`
	StartTime      string    `json:"start_time" gorm:"type:varchar(5);not null;uniqueIndex:idx_availability_rules_unique"` // Format "HH:MM" in 24h
	EndTime        string    `json:"end_time" gorm:"type:varchar(5);not null"`                                            // Format "HH:MM" in 24h
	Active         bool      `json:"active" gorm:"default:true"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (r *AvailabilityRule) BeforeCreate(tx *gorm.DB) error {
	if r.OrganizationID == 0 {
		return apperrors.ErrTenantRequired
	}
	return nil
}

// TimeSlot is a materialised bookable slot. It is available iff no
// appointment is linked to it.
type TimeSlot struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	OrganizationID uint      `json:"organization_id" gorm:"not null;uniqueIndex:idx_time_slots_unique"`
	ProfessionalID uint      `json:"professional_id" gorm:"not null;uniqueIndex:idx_time_slots_unique"`
	Date           string    `json:"date" gorm:"type:varchar(10);not null;uniqueIndex:idx_time_slots_unique"` // "2006-01-02"
	StartTime      string    `json:"start_time" gorm:"type:varchar(5);not null;uniqueIndex:idx_time_slots_unique"`
	EndTime        string    `json:"end_time" gorm:"type:varchar(5);not null"`
	AppointmentID  *uint     `json:"appointment_id" gorm:"index"`
	Available      bool      `json:"available"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (s *TimeSlot) BeforeSave(tx *gorm.DB) error {
	if s.OrganizationID == 0 {
		return apperrors.ErrTenantRequired
	}
	s.Available = s.AppointmentID == nil
	return nil
}
