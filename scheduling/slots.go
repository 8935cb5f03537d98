package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/meinhoongagan/clinic-booking/apperrors"
	"github.com/meinhoongagan/clinic-booking/models"
	"github.com/meinhoongagan/clinic-booking/tenant"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Slots materialises bookable time slots from the weekly rules and links
// them to appointments. The unique index on (professional, date, start)
// stops two appointments from claiming the same start.
type Slots struct {
	db       *gorm.DB
	resolver *Resolver
}

func NewSlots(db *gorm.DB, resolver *Resolver) *Slots {
	return &Slots{db: db, resolver: resolver}
}

func (s *Slots) WithTx(tx *gorm.DB) *Slots {
	return &Slots{db: tx, resolver: s.resolver.WithTx(tx)}
}

// Generate cuts the active rules of the professional's weekday into slots of
// the session duration and stores the ones that do not exist yet.
func (s *Slots) Generate(ctx context.Context, tc tenant.Context, professionalID uint, date string) ([]models.TimeSlot, error) {
	loc, err := s.resolver.Location(ctx, tc)
	if err != nil {
		return nil, err
	}
	day, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return nil, apperrors.Invalid("date", "invalid date format, use YYYY-MM-DD")
	}

	var p models.Professional
	err = tc.Scope(s.db.WithContext(ctx)).Where("user_id = ?", professionalID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	step := p.SessionDurationMinutes * 60

	var rules []models.AvailabilityRule
	if err := tc.Scope(s.db.WithContext(ctx)).
		Where("professional_id = ? AND day_of_week = ? AND active = ?", professionalID, models.DayOfWeek(day.Weekday()), true).
		Find(&rules).Error; err != nil {
		return nil, err
	}

	var slots []models.TimeSlot
	for _, rule := range rules {
		rs, err := parseClock(rule.StartTime)
		if err != nil {
			return nil, err
		}
		re, err := parseClock(rule.EndTime)
		if err != nil {
			return nil, err
		}
		for cur := rs; cur+step <= re; cur += step {
			slots = append(slots, models.TimeSlot{
				OrganizationID: tc.OrganizationID,
				ProfessionalID: professionalID,
				Date:           date,
				StartTime:      formatClock(cur),
				EndTime:        formatClock(cur + step),
			})
		}
	}
	if len(slots) > 0 {
		if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&slots).Error; err != nil {
			return nil, err
		}
	}
	return s.forDate(ctx, tc, professionalID, date, false)
}

// Open lists the slots of a date that are not linked to an appointment and
// do not overlap a blocking one.
func (s *Slots) Open(ctx context.Context, tc tenant.Context, professionalID uint, date string) ([]models.TimeSlot, error) {
	loc, err := s.resolver.Location(ctx, tc)
	if err != nil {
		return nil, err
	}
	day, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return nil, apperrors.Invalid("date", "invalid date format, use YYYY-MM-DD")
	}

	slots, err := s.forDate(ctx, tc, professionalID, date, true)
	if err != nil || len(slots) == 0 {
		return slots, err
	}

	booked, err := s.resolver.FindConflicts(ctx, tc, professionalID, midnight(day), at(day, endOfDay), 0)
	if err != nil {
		return nil, err
	}

	open := slots[:0]
	for _, slot := range slots {
		start, end := slotWindow(day, slot)
		free := true
		for _, a := range booked {
			if start.Before(a.EndsAt) && a.ScheduledAt.Before(end) {
				free = false
				break
			}
		}
		if free {
			open = append(open, slot)
		}
	}
	return open, nil
}

func (s *Slots) forDate(ctx context.Context, tc tenant.Context, professionalID uint, date string, onlyAvailable bool) ([]models.TimeSlot, error) {
	q := tc.Scope(s.db.WithContext(ctx)).Where("professional_id = ? AND date = ?", professionalID, date)
	if onlyAvailable {
		q = q.Where("appointment_id IS NULL")
	}
	var slots []models.TimeSlot
	err := q.Order("start_time").Find(&slots).Error
	return slots, err
}

// Claim links the slot at the appointment's start to it, creating the slot
// when none was generated. A slot held by another appointment is a conflict.
func (s *Slots) Claim(ctx context.Context, tc tenant.Context, a *models.Appointment) error {
	loc, err := s.resolver.Location(ctx, tc)
	if err != nil {
		return err
	}
	start, end := a.Window()
	local := start.In(loc)
	date := local.Format(dateLayout)
	from := formatClock(secondsOfDay(local, local))

	var slot models.TimeSlot
	err = tc.Scope(s.db.WithContext(ctx)).
		Where("professional_id = ? AND date = ? AND start_time = ?", a.ProfessionalID, date, from).
		First(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		slot = models.TimeSlot{
			OrganizationID: tc.OrganizationID,
			ProfessionalID: a.ProfessionalID,
			Date:           date,
			StartTime:      from,
			EndTime:        formatClock(secondsOfDay(local, end.In(loc))),
			AppointmentID:  &a.ID,
		}
		if err := s.db.WithContext(ctx).Create(&slot).Error; err != nil {
			return apperrors.SchedulingConflict{Reason: "time slot already taken"}
		}
		return nil
	}
	if err != nil {
		return err
	}
	if slot.AppointmentID != nil {
		if *slot.AppointmentID == a.ID {
			return nil
		}
		return apperrors.SchedulingConflict{ConflictingIDs: []uint{*slot.AppointmentID}, Reason: "time slot already taken"}
	}

	res := tc.Scope(s.db.WithContext(ctx)).Model(&models.TimeSlot{}).
		Where("id = ? AND appointment_id IS NULL", slot.ID).
		UpdateColumns(map[string]interface{}{"appointment_id": a.ID, "available": false})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.SchedulingConflict{Reason: "time slot already taken"}
	}
	return nil
}

// Release frees every slot linked to the appointment.
func (s *Slots) Release(ctx context.Context, tc tenant.Context, appointmentID uint) error {
	return tc.Scope(s.db.WithContext(ctx)).Model(&models.TimeSlot{}).
		Where("appointment_id = ?", appointmentID).
		UpdateColumns(map[string]interface{}{"appointment_id": nil, "available": true}).Error
}

func slotWindow(day time.Time, slot models.TimeSlot) (time.Time, time.Time) {
	start, _ := parseClock(slot.StartTime)
	end, _ := parseClock(slot.EndTime)
	return at(day, start), at(day, end)
}
