package scheduling

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/meinhoongagan/clinic-booking/apperrors"
	"github.com/meinhoongagan/clinic-booking/authz"
	"github.com/meinhoongagan/clinic-booking/models"
	"github.com/meinhoongagan/clinic-booking/tenant"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RoleChecker answers role membership questions for a tenant.
type RoleChecker interface {
	HasRole(ctx context.Context, tc tenant.Context, userID uint, key models.RoleKey) (bool, error)
}

// Rules manages professional profiles and their weekly availability.
type Rules struct {
	db    *gorm.DB
	authz *authz.Engine
	roles RoleChecker
	log   *zap.Logger
}

func NewRules(db *gorm.DB, engine *authz.Engine, roles RoleChecker, log *zap.Logger) *Rules {
	return &Rules{db: db, authz: engine, roles: roles, log: log}
}

type ProfessionalInput struct {
	UserID                 uint    `json:"user_id"`
	SessionDurationMinutes int     `json:"session_duration_minutes"`
	SessionRate            float64 `json:"session_rate"`
}

// CreateProfessional opens a booking profile for a user that holds the
// professional role.
func (s *Rules) CreateProfessional(ctx context.Context, tc tenant.Context, in ProfessionalInput) (*models.Professional, error) {
	if err := s.authz.Check(tc.Actor, "create", authz.Collection{Type: models.ResourceProfessionals, OrganizationID: tc.OrganizationID}); err != nil {
		return nil, err
	}
	ok, err := s.roles.HasRole(ctx, tc, in.UserID, models.RoleProfessional)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Invalid("user_id", "does not hold the professional role")
	}
	if in.SessionDurationMinutes < 0 {
		return nil, apperrors.Invalid("session_duration_minutes", "must be positive")
	}

	p := &models.Professional{
		OrganizationID:         tc.OrganizationID,
		UserID:                 in.UserID,
		Availability:           datatypes.NewJSONType(models.WeeklyAvailability{}),
		SessionDurationMinutes: in.SessionDurationMinutes,
		SessionRate:            in.SessionRate,
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(strings.ToLower(err.Error()), "unique") {
			return nil, apperrors.Invalid("user_id", "already has a professional profile")
		}
		return nil, err
	}
	return p, nil
}

// Professional returns the profile of the professional user.
func (s *Rules) Professional(ctx context.Context, tc tenant.Context, userID uint) (*models.Professional, error) {
	var p models.Professional
	err := tc.Scope(s.db.WithContext(ctx)).Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(tc.Actor, "show", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

type RuleInput struct {
	DayOfWeek models.DayOfWeek `json:"day_of_week"`
	StartTime string           `json:"start_time"`
	EndTime   string           `json:"end_time"`
}

func (in RuleInput) validate() (int, int, error) {
	if !in.DayOfWeek.Valid() {
		return 0, 0, apperrors.Invalid("day_of_week", "must be between 0 and 6")
	}
	start, err := parseClock(in.StartTime)
	if err != nil {
		return 0, 0, apperrors.Invalid("start_time", err.Error())
	}
	end, err := parseClock(in.EndTime)
	if err != nil {
		return 0, 0, apperrors.Invalid("end_time", err.Error())
	}
	if end <= start {
		return 0, 0, apperrors.Invalid("end_time", "must be after start_time")
	}
	return start, end, nil
}

// AddRule adds a weekly availability window. Active windows of one
// professional never overlap on the same day.
func (s *Rules) AddRule(ctx context.Context, tc tenant.Context, professionalID uint, in RuleInput) (*models.AvailabilityRule, error) {
	start, end, err := in.validate()
	if err != nil {
		return nil, err
	}

	var rule *models.AvailabilityRule
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.manageable(ctx, tx, tc, professionalID)
		if err != nil {
			return err
		}

		var existing []models.AvailabilityRule
		if err := tc.Scope(tx).Where("professional_id = ? AND day_of_week = ? AND active = ?", professionalID, in.DayOfWeek, true).
			Find(&existing).Error; err != nil {
			return err
		}
		for _, r := range existing {
			rs, _ := parseClock(r.StartTime)
			re, _ := parseClock(r.EndTime)
			if start < re && rs < end {
				return apperrors.Invalid("start_time", "overlaps the "+r.StartTime+"-"+r.EndTime+" rule")
			}
		}

		rule = &models.AvailabilityRule{
			OrganizationID: tc.OrganizationID,
			ProfessionalID: professionalID,
			DayOfWeek:      in.DayOfWeek,
			StartTime:      formatClock(start),
			EndTime:        formatClock(end),
			Active:         true,
		}
		// An inactive rule may hold the same start time; reuse it.
		var inactive models.AvailabilityRule
		err = tc.Scope(tx).Where("professional_id = ? AND day_of_week = ? AND start_time = ? AND active = ?",
			professionalID, in.DayOfWeek, rule.StartTime, false).First(&inactive).Error
		switch {
		case err == nil:
			if err := tc.Scope(tx).Model(&models.AvailabilityRule{}).Where("id = ?", inactive.ID).
				UpdateColumns(map[string]interface{}{"end_time": rule.EndTime, "active": true}).Error; err != nil {
				return err
			}
			rule.ID = inactive.ID
			rule.CreatedAt = inactive.CreatedAt
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(rule).Error; err != nil {
				return err
			}
		default:
			return err
		}

		return s.syncSummary(tx, tc, p)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("availability rule added",
		zap.Uint("organization_id", tc.OrganizationID),
		zap.Uint("professional_id", professionalID),
		zap.Stringer("day", rule.DayOfWeek),
		zap.String("start", rule.StartTime),
		zap.String("end", rule.EndTime),
	)
	return rule, nil
}

// ListRules returns the active rules of a professional ordered by day and
// start time.
func (s *Rules) ListRules(ctx context.Context, tc tenant.Context, professionalID uint) ([]models.AvailabilityRule, error) {
	var rules []models.AvailabilityRule
	err := tc.Scope(s.db.WithContext(ctx)).
		Where("professional_id = ? AND active = ?", professionalID, true).
		Order("day_of_week").Order("start_time").
		Find(&rules).Error
	return rules, err
}

// DeactivateRule switches a rule off. Existing appointments are untouched.
func (s *Rules) DeactivateRule(ctx context.Context, tc tenant.Context, ruleID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rule models.AvailabilityRule
		err := tc.Scope(tx).First(&rule, ruleID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound
		}
		if err != nil {
			return err
		}
		p, err := s.manageable(ctx, tx, tc, rule.ProfessionalID)
		if err != nil {
			return err
		}
		if err := tc.Scope(tx).Model(&models.AvailabilityRule{}).Where("id = ?", rule.ID).
			UpdateColumn("active", false).Error; err != nil {
			return err
		}
		return s.syncSummary(tx, tc, p)
	})
}

func (s *Rules) manageable(ctx context.Context, tx *gorm.DB, tc tenant.Context, professionalID uint) (*models.Professional, error) {
	var p models.Professional
	err := tc.Scope(tx.WithContext(ctx)).Where("user_id = ?", professionalID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(tc.Actor, "manage_availability", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// syncSummary rewrites the weekly availability map on the profile from the
// active rules.
func (s *Rules) syncSummary(tx *gorm.DB, tc tenant.Context, p *models.Professional) error {
	var rules []models.AvailabilityRule
	if err := tc.Scope(tx).Where("professional_id = ? AND active = ?", p.UserID, true).Find(&rules).Error; err != nil {
		return err
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].DayOfWeek != rules[j].DayOfWeek {
			return rules[i].DayOfWeek < rules[j].DayOfWeek
		}
		return rules[i].StartTime < rules[j].StartTime
	})

	summary := models.WeeklyAvailability{}
	for _, r := range rules {
		day := strings.ToLower(r.DayOfWeek.String())
		summary[day] = append(summary[day], models.Window{Start: r.StartTime, End: r.EndTime})
	}
	p.Availability = datatypes.NewJSONType(summary)
	return tc.Scope(tx).Model(&models.Professional{}).Where("id = ?", p.ID).
		UpdateColumn("availability", p.Availability).Error
}
