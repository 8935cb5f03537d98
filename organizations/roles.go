package organizations

import (
	"context"
	"errors"
	"time"

	"github.com/meinhoongagan/clinic-booking/apperrors"
	"github.com/meinhoongagan/clinic-booking/models"
	"github.com/meinhoongagan/clinic-booking/tenant"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AssignRole grants a role to a user of the tenant. It reports false when
// the user already held it.
func (s *Service) AssignRole(ctx context.Context, tc tenant.Context, userID uint, key models.RoleKey) (bool, error) {
	if err := tc.Validate(); err != nil {
		return false, err
	}
	if !key.Valid() {
		return false, apperrors.Invalid("role", "is not a known role")
	}

	var granted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.user(tx, tc, userID)
		if err != nil {
			return err
		}
		if err := s.authz.Check(tc.Actor, "assign_role", user); err != nil {
			return err
		}
		granted, err = s.grant(tx, tc, user.ID, key)
		return err
	})
	if err != nil {
		return false, err
	}
	if granted {
		s.log.Info("role assigned",
			zap.Uint("organization_id", tc.OrganizationID),
			zap.Uint("user_id", userID),
			zap.String("role", string(key)),
			zap.Uint("actor_id", tc.Actor.UserID),
		)
	}
	return granted, nil
}

// grant links the user to the tenant's role, reactivating a revoked link.
func (s *Service) grant(tx *gorm.DB, tc tenant.Context, userID uint, key models.RoleKey) (bool, error) {
	role, err := s.role(tx, tc, key)
	if err != nil {
		return false, err
	}

	var link models.UserRole
	err = tc.Scope(tx).Where("user_id = ? AND role_id = ?", userID, role.ID).First(&link).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		link = models.UserRole{
			UserID:         userID,
			RoleID:         role.ID,
			OrganizationID: tc.OrganizationID,
			Active:         true,
		}
		return true, tx.Create(&link).Error
	case err != nil:
		return false, err
	case link.Active:
		return false, nil
	}

	err = tc.Scope(tx).Model(&models.UserRole{}).
		Where("id = ?", link.ID).
		UpdateColumns(map[string]interface{}{"active": true, "assigned_at": time.Now().UTC()}).Error
	return err == nil, err
}

func (s *Service) role(tx *gorm.DB, tc tenant.Context, key models.RoleKey) (*models.Role, error) {
	var role models.Role
	if err := tc.Scope(tx).Where("key = ?", key).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Invalid("role", "is not set up for this organization")
		}
		return nil, err
	}
	return &role, nil
}

// RevokeRole deactivates a role link. It reports false when the user did not
// hold the role. An admin cannot revoke their own admin role.
func (s *Service) RevokeRole(ctx context.Context, tc tenant.Context, userID uint, key models.RoleKey) (bool, error) {
	if err := tc.Validate(); err != nil {
		return false, err
	}
	if key == models.RoleAdmin && userID == tc.Actor.UserID {
		return false, apperrors.Invalid("role", "admins cannot revoke their own admin role")
	}

	var revoked bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.user(tx, tc, userID)
		if err != nil {
			return err
		}
		if err := s.authz.Check(tc.Actor, "assign_role", user); err != nil {
			return err
		}
		role, err := s.role(tx, tc, key)
		if err != nil {
			return err
		}
		res := tc.Scope(tx).Model(&models.UserRole{}).
			Where("user_id = ? AND role_id = ? AND active = ?", user.ID, role.ID, true).
			UpdateColumn("active", false)
		revoked = res.RowsAffected > 0
		return res.Error
	})
	return revoked, err
}

// HasRole reports whether the user holds an active role in the tenant.
func (s *Service) HasRole(ctx context.Context, tc tenant.Context, userID uint, key models.RoleKey) (bool, error) {
	keys, err := s.roleKeys(s.db.WithContext(ctx), tc.OrganizationID, userID)
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		if k == key {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) roleKeys(db *gorm.DB, organizationID, userID uint) ([]models.RoleKey, error) {
	scope := tenant.Context{OrganizationID: organizationID}
	var keys []models.RoleKey
	err := scope.Scope(db).Model(&models.UserRole{}).
		Joins("JOIN roles ON roles.id = user_roles.role_id AND roles.organization_id = user_roles.organization_id").
		Where("user_roles.user_id = ? AND user_roles.active = ?", userID, true).
		Order("roles.id").
		Pluck("roles.key", &keys).Error
	return keys, err
}

// LoadActor resolves the actor behind an authenticated request: the user's
// active roles and the students they are guardian of. Inactive or unknown
// users read as missing.
func (s *Service) LoadActor(ctx context.Context, organizationID, userID uint, superAdmin bool) (tenant.Actor, error) {
	if organizationID == 0 {
		return tenant.Actor{}, apperrors.ErrTenantRequired
	}
	db := s.db.WithContext(ctx)
	scope := tenant.Context{OrganizationID: organizationID}

	// Tokens of a deactivated organization stop working at once.
	var org models.Organization
	err := db.Select("id").Where("active = ?", true).First(&org, organizationID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tenant.Actor{}, apperrors.ErrNotFound
		}
		return tenant.Actor{}, err
	}

	var user models.User
	err = scope.Scope(db).Where("active = ?", true).First(&user, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tenant.Actor{}, apperrors.ErrNotFound
		}
		return tenant.Actor{}, err
	}

	roles, err := s.roleKeys(db, organizationID, user.ID)
	if err != nil {
		return tenant.Actor{}, err
	}
	var dependents []uint
	err = scope.Scope(db).Model(&models.Student{}).
		Where("guardian_id = ?", user.ID).
		Order("id").
		Pluck("id", &dependents).Error
	if err != nil {
		return tenant.Actor{}, err
	}

	return tenant.Actor{
		UserID:         user.ID,
		OrganizationID: organizationID,
		Roles:          roles,
		DependentIDs:   dependents,
		SuperAdmin:     superAdmin,
	}, nil
}
