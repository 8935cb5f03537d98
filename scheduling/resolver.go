// Package scheduling decides whether a professional can take a booking:
// recurring availability rules, overlap with existing appointments and the
// creation-time booking rules.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meinhoongagan/clinic-booking/apperrors"
	"github.com/meinhoongagan/clinic-booking/config"
	"github.com/meinhoongagan/clinic-booking/models"
	"github.com/meinhoongagan/clinic-booking/tenant"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	reasonUnavailable = "professional unavailable"
	reasonOverlap     = "overlapping appointment"
)

// blockingExcluded are the states that never hold a professional's time.
var blockingExcluded = []models.AppointmentState{models.StateCancelled, models.StateDraft}

type Resolver struct {
	db  *gorm.DB
	cfg *config.Config
	now func() time.Time
}

func NewResolver(db *gorm.DB, cfg *config.Config) *Resolver {
	return &Resolver{db: db, cfg: cfg, now: time.Now}
}

// WithTx returns a copy of the resolver that reads through tx.
func (r *Resolver) WithTx(tx *gorm.DB) *Resolver {
	c := *r
	c.db = tx
	return &c
}

// WithClock returns a copy of the resolver that reads the time from now.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	c := *r
	c.now = now
	return &c
}

// Organization loads the tenant's organization row.
func (r *Resolver) Organization(ctx context.Context, tc tenant.Context) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.WithContext(ctx).First(&org, tc.OrganizationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

// Location is the time zone availability rules are written in.
func (r *Resolver) Location(ctx context.Context, tc tenant.Context) (*time.Location, error) {
	org, err := r.Organization(ctx, tc)
	if err != nil {
		return nil, err
	}
	return r.location(org), nil
}

func (r *Resolver) location(org *models.Organization) *time.Location {
	loc, err := time.LoadLocation(org.SettingString(models.SettingTimeZone, r.cfg.DefaultTimeZone))
	if err != nil {
		return time.UTC
	}
	return loc
}

// LockProfessional takes the row lock that serialises bookings of one
// professional. It must run inside the transaction that inserts or
// transitions the appointment.
func (r *Resolver) LockProfessional(ctx context.Context, tc tenant.Context, professionalID uint) (*models.Professional, error) {
	var p models.Professional
	err := tc.Scope(r.db.WithContext(ctx)).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", professionalID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Invalid("professional_id", "is not a professional of this organization")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// WithinRules reports whether [start, end) fits inside one active weekly
// rule of the professional, on the weekday of start in the organization's
// time zone.
func (r *Resolver) WithinRules(ctx context.Context, tc tenant.Context, professionalID uint, start, end time.Time) (bool, error) {
	if err := validWindow(start, end); err != nil {
		return false, err
	}
	org, err := r.Organization(ctx, tc)
	if err != nil {
		return false, err
	}
	loc := r.location(org)
	localStart, localEnd := start.In(loc), end.In(loc)

	var rules []models.AvailabilityRule
	err = tc.Scope(r.db.WithContext(ctx)).
		Where("professional_id = ? AND day_of_week = ? AND active = ?", professionalID, models.DayOfWeek(localStart.Weekday()), true).
		Find(&rules).Error
	if err != nil {
		return false, err
	}

	from := secondsOfDay(localStart, localStart)
	to := secondsOfDay(localStart, localEnd)
	for _, rule := range rules {
		rs, err := parseClock(rule.StartTime)
		if err != nil {
			return false, err
		}
		re, err := parseClock(rule.EndTime)
		if err != nil {
			return false, err
		}
		if from >= rs && to <= re {
			return true, nil
		}
	}
	return false, nil
}

// FindConflicts returns the blocking appointments of the professional that
// overlap [start, end). Intervals are half-open, so back-to-back bookings do
// not conflict. excludeID skips the appointment being re-validated.
func (r *Resolver) FindConflicts(ctx context.Context, tc tenant.Context, professionalID uint, start, end time.Time, excludeID uint) ([]models.Appointment, error) {
	if err := validWindow(start, end); err != nil {
		return nil, err
	}

	q := tc.Scope(r.db.WithContext(ctx)).
		Where("professional_id = ?", professionalID).
		Where("state NOT IN ?", blockingExcluded).
		Where("scheduled_at < ? AND ends_at > ?", end.UTC(), start.UTC())
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}

	var conflicts []models.Appointment
	if err := q.Order("scheduled_at").Find(&conflicts).Error; err != nil {
		return nil, err
	}
	return conflicts, nil
}

// IsAvailable combines the weekly rules with the existing bookings.
func (r *Resolver) IsAvailable(ctx context.Context, tc tenant.Context, professionalID uint, start, end time.Time) (bool, error) {
	ok, err := r.WithinRules(ctx, tc, professionalID, start, end)
	if err != nil || !ok {
		return false, err
	}
	conflicts, err := r.FindConflicts(ctx, tc, professionalID, start, end, 0)
	if err != nil {
		return false, err
	}
	return len(conflicts) == 0, nil
}

// ValidateCreation applies the rules for a new booking: strictly in the
// future, at least the minimum advance away, inside availability and free.
func (r *Resolver) ValidateCreation(ctx context.Context, tc tenant.Context, professionalID uint, start, end time.Time) error {
	if err := validWindow(start, end); err != nil {
		return err
	}
	now := r.now()
	if !start.After(now) {
		return apperrors.Invalid("scheduled_at", "must be in the future")
	}

	org, err := r.Organization(ctx, tc)
	if err != nil {
		return err
	}
	advance := r.cfg.MinAdvanceBooking
	if hours := org.SettingInt(models.SettingMinAdvanceHours, -1); hours >= 0 {
		advance = time.Duration(hours) * time.Hour
	}
	if start.Before(now.Add(advance)) {
		return apperrors.Invalid("scheduled_at", fmt.Sprintf("must be booked at least %s in advance", advance))
	}

	return r.check(ctx, tc, professionalID, start, end, 0)
}

// Revalidate re-checks an existing appointment against availability and
// other bookings. The creation-only rules do not apply.
func (r *Resolver) Revalidate(ctx context.Context, tc tenant.Context, a *models.Appointment) error {
	start, end := a.Window()
	return r.check(ctx, tc, a.ProfessionalID, start, end, a.ID)
}

func (r *Resolver) check(ctx context.Context, tc tenant.Context, professionalID uint, start, end time.Time, excludeID uint) error {
	ok, err := r.WithinRules(ctx, tc, professionalID, start, end)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.SchedulingConflict{Reason: reasonUnavailable}
	}

	conflicts, err := r.FindConflicts(ctx, tc, professionalID, start, end, excludeID)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		ids := make([]uint, len(conflicts))
		for i, c := range conflicts {
			ids[i] = c.ID
		}
		return apperrors.SchedulingConflict{ConflictingIDs: ids, Reason: reasonOverlap}
	}
	return nil
}

func validWindow(start, end time.Time) error {
	if !end.After(start) {
		return apperrors.Invalid("duration_minutes", "must be positive")
	}
	return nil
}
