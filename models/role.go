package models

import (
	"time"

	"github.com/meinhoongagan/clinic-booking/apperrors"
	"gorm.io/gorm"
)

type RoleKey string

const (
	RoleAdmin        RoleKey = "admin"
	RoleProfessional RoleKey = "professional"
	RoleSecretary    RoleKey = "secretary"
	RoleClient       RoleKey = "client"
)

// DefaultRoles are seeded with every organization.
var DefaultRoles = []Role{
	{Key: RoleAdmin, Description: "Administrator with full access to the organization"},
	{Key: RoleProfessional, Description: "Professional who runs sessions"},
	{Key: RoleSecretary, Description: "Front desk staff who manage the schedule"},
	{Key: RoleClient, Description: "Client who books sessions for themselves or their family"},
}

func (k RoleKey) Valid() bool {
	switch k {
	case RoleAdmin, RoleProfessional, RoleSecretary, RoleClient:
		return true
	}
	return false
}

type Role struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	OrganizationID uint      `json:"organization_id" gorm:"not null;uniqueIndex:idx_roles_org_key"`
	Key            RoleKey   `json:"key" gorm:"type:varchar(32);not null;uniqueIndex:idx_roles_org_key"`
	Description    string    `json:"description"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (r *Role) BeforeCreate(tx *gorm.DB) error {
	if r.OrganizationID == 0 {
		return apperrors.ErrTenantRequired
	}
	if !r.Key.Valid() {
		return apperrors.Invalid("key", "is not a known role")
	}
	return nil
}

// UserRole joins a user to a role inside one organization.
type UserRole struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	UserID         uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_user_roles_unique"`
	RoleID         uint      `json:"role_id" gorm:"not null;uniqueIndex:idx_user_roles_unique"`
	OrganizationID uint      `json:"organization_id" gorm:"not null;uniqueIndex:idx_user_roles_unique;index"`
	Active         bool      `json:"active" gorm:"default:true"`
	AssignedAt     time.Time `json:"assigned_at"`
	Role           Role      `json:"role,omitempty" gorm:"foreignKey:RoleID"`
}

func (ur *UserRole) BeforeCreate(tx *gorm.DB) error {
	if ur.OrganizationID == 0 {
		return apperrors.ErrTenantRequired
	}
	if ur.AssignedAt.IsZero() {
		ur.AssignedAt = time.Now().UTC()
	}
	return nil
}
