package organizations

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/meinhoongagan/clinic-booking/apperrors"
	"github.com/meinhoongagan/clinic-booking/authz"
	"github.com/meinhoongagan/clinic-booking/models"
	"github.com/meinhoongagan/clinic-booking/tenant"
	"go.uber.org/zap"
)

type StudentInput struct {
	GuardianID uint       `json:"guardian_id"`
	Name       string     `json:"name"`
	BirthDate  *time.Time `json:"birth_date"`
}

// CreateStudent registers a dependent under a guardian of the tenant. A
// client creating a student is always the guardian.
func (s *Service) CreateStudent(ctx context.Context, tc tenant.Context, in StudentInput) (*models.Student, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	if in.GuardianID == 0 {
		in.GuardianID = tc.Actor.UserID
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, apperrors.Invalid("name", "is required")
	}

	student := &models.Student{
		OrganizationID: tc.OrganizationID,
		GuardianID:     in.GuardianID,
		Name:           in.Name,
		BirthDate:      in.BirthDate,
	}
	if err := s.authz.Check(tc.Actor, "create", student); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	if _, err := s.user(db, tc, in.GuardianID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Invalid("guardian_id", "is not a user of this organization")
		}
		return nil, err
	}
	if err := db.Create(student).Error; err != nil {
		return nil, err
	}

	s.log.Info("student created",
		zap.Uint("organization_id", tc.OrganizationID),
		zap.Uint("student_id", student.ID),
		zap.Uint("guardian_id", student.GuardianID),
	)
	return student, nil
}

// ListStudents returns the students the actor may see.
func (s *Service) ListStudents(ctx context.Context, tc tenant.Context) ([]models.Student, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	if err := s.authz.Check(tc.Actor, "index", authz.Collection{Type: models.ResourceStudents, OrganizationID: tc.OrganizationID}); err != nil {
		return nil, err
	}
	var students []models.Student
	err := tc.Scope(s.db.WithContext(ctx)).
		Scopes(s.authz.Scope(tc.Actor, models.ResourceStudents)).
		Order("id").
		Find(&students).Error
	return students, err
}

// CountAcrossOrganizations counts the users of every organization. It is a
// maintenance query and bypasses tenant scoping on purpose.
func (s *Service) CountAcrossOrganizations(ctx context.Context) (map[uint]int64, error) {
	type row struct {
		OrganizationID uint
		Total          int64
	}
	var rows []row
	err := tenant.WithoutTenant(s.db.WithContext(ctx), "user counts per organization").
		Model(&models.User{}).
		Select("organization_id, COUNT(*) AS total").
		Group("organization_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]int64, len(rows))
	for _, r := range rows {
		out[r.OrganizationID] = r.Total
	}
	return out, nil
}
