package models

import (
	"strings"
	"time"

	"github.com/meinhoongagan/clinic-booking/apperrors"
	"gorm.io/gorm"
)

type User struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	OrganizationID uint       `json:"organization_id" gorm:"not null;uniqueIndex:idx_users_org_email"`
	Name           string     `json:"name"`
	Email          string     `json:"email" gorm:"not null;uniqueIndex:idx_users_org_email"`
	Password       string     `json:"-"`
	Active         bool       `json:"active" gorm:"default:true"`
	UserRoles      []UserRole `json:"roles,omitempty" gorm:"foreignKey:UserID"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (User) ResourceType() string { return ResourceUsers }

func (u User) TenantID() uint { return u.OrganizationID }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.OrganizationID == 0 {
		return apperrors.ErrTenantRequired
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return nil
}

// Student is a dependent (usually a child) booked by a guardian client.
type Student struct {
	gorm.Model
	OrganizationID uint       `json:"organization_id" gorm:"not null;index"`
	GuardianID     uint       `json:"guardian_id" gorm:"not null;index"`
	Name           string     `json:"name" gorm:"not null"`
	BirthDate      *time.Time `json:"birth_date"`
}

func (Student) ResourceType() string { return ResourceStudents }

func (s Student) TenantID() uint { return s.OrganizationID }

func (s *Student) BeforeCreate(tx *gorm.DB) error {
	if s.OrganizationID == 0 {
		return apperrors.ErrTenantRequired
	}
	return nil
}
