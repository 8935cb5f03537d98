// Package organizations onboards tenants and manages their users, roles and
// students.
package organizations

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/meinhoongagan/clinic-booking/apperrors"
	"github.com/meinhoongagan/clinic-booking/authz"
	"github.com/meinhoongagan/clinic-booking/models"
	"github.com/meinhoongagan/clinic-booking/tenant"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultRole is assigned to users created without an explicit role.
const DefaultRole = models.RoleClient

const minPasswordLength = 8

var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

type Service struct {
	db    *gorm.DB
	authz *authz.Engine
	log   *zap.Logger
}

func NewService(db *gorm.DB, engine *authz.Engine, log *zap.Logger) *Service {
	return &Service{db: db, authz: engine, log: log}
}

type OrganizationInput struct {
	Name      string                 `json:"name"`
	Subdomain string                 `json:"subdomain"`
	Settings  map[string]interface{} `json:"settings"`
}

// CreateOrganization creates a tenant and seeds its four roles. Both happen
// in one transaction, so an organization never exists without its roles.
func (s *Service) CreateOrganization(ctx context.Context, actor tenant.Actor, in OrganizationInput) (*models.Organization, error) {
	if err := s.authz.Check(actor, "create", authz.Collection{Type: models.ResourceOrganizations}); err != nil {
		return nil, err
	}

	in.Name = strings.TrimSpace(in.Name)
	in.Subdomain = strings.ToLower(strings.TrimSpace(in.Subdomain))
	if in.Name == "" {
		return nil, apperrors.Invalid("name", "is required")
	}
	if !subdomainPattern.MatchString(in.Subdomain) {
		return nil, apperrors.Invalid("subdomain", "must be lowercase letters, digits and dashes")
	}
	if err := validateSettings(in.Settings); err != nil {
		return nil, err
	}

	org := &models.Organization{
		Name:      in.Name,
		Subdomain: in.Subdomain,
		Active:    true,
		Settings:  datatypes.JSONMap(in.Settings),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.Organization{}).Where("subdomain = ?", org.Subdomain).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return apperrors.Invalid("subdomain", "is already taken")
		}
		if err := tx.Create(org).Error; err != nil {
			return err
		}

		roles := make([]models.Role, len(models.DefaultRoles))
		for i, r := range models.DefaultRoles {
			r.OrganizationID = org.ID
			roles[i] = r
		}
		return tx.Create(&roles).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("organization created",
		zap.Uint("organization_id", org.ID),
		zap.String("subdomain", org.Subdomain),
	)
	return org, nil
}

// Organization returns the tenant itself.
func (s *Service) Organization(ctx context.Context, tc tenant.Context) (*models.Organization, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	var org models.Organization
	if err := s.db.WithContext(ctx).First(&org, tc.OrganizationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	if err := s.authz.Check(tc.Actor, "show", org); err != nil {
		return nil, err
	}
	return &org, nil
}

// BySubdomain resolves an active organization from its subdomain. It runs
// before any tenant is known, at login.
func (s *Service) BySubdomain(ctx context.Context, subdomain string) (*models.Organization, error) {
	var org models.Organization
	err := s.db.WithContext(ctx).
		Where("subdomain = ? AND active = ?", strings.ToLower(strings.TrimSpace(subdomain)), true).
		First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// UpdateSettings merges settings into the organization's. A nil value
// removes the key.
func (s *Service) UpdateSettings(ctx context.Context, tc tenant.Context, settings map[string]interface{}) (*models.Organization, error) {
	org, err := s.Organization(ctx, tc)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(tc.Actor, "update", org); err != nil {
		return nil, err
	}
	if err := validateSettings(settings); err != nil {
		return nil, err
	}

	merged := datatypes.JSONMap{}
	for k, v := range org.Settings {
		merged[k] = v
	}
	for k, v := range settings {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	if err := s.db.WithContext(ctx).Model(org).UpdateColumn("settings", merged).Error; err != nil {
		return nil, err
	}
	org.Settings = merged
	return org, nil
}

func validateSettings(settings map[string]interface{}) error {
	if v, ok := settings[models.SettingTimeZone]; ok && v != nil {
		name, _ := v.(string)
		if _, err := time.LoadLocation(name); err != nil || name == "" {
			return apperrors.Invalid(models.SettingTimeZone, "is not a known time zone")
		}
	}
	candidate := models.Organization{Settings: settings}
	for _, key := range []string{models.SettingMinAdvanceHours, models.SettingRefundWindowHours} {
		if v, ok := settings[key]; ok && v != nil && candidate.SettingInt(key, -1) < 0 {
			return apperrors.Invalid(key, "must be a non-negative number of hours")
		}
	}
	return nil
}

type UserInput struct {
	Name     string         `json:"name"`
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Role     models.RoleKey `json:"role"`
}

// CreateUser registers a user in the tenant with one role, the client role
// unless another is given. Other roles need the assign_role permission.
func (s *Service) CreateUser(ctx context.Context, tc tenant.Context, in UserInput) (*models.User, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	if err := s.authz.Check(tc.Actor, "create", authz.Collection{Type: models.ResourceUsers, OrganizationID: tc.OrganizationID}); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = DefaultRole
	}
	if err := validateUser(in); err != nil {
		return nil, err
	}
	// Staff roles are granted, not self-served: anything beyond the default
	// role needs assign_role on users.
	if in.Role != DefaultRole {
		if err := s.authz.Check(tc.Actor, "assign_role", authz.Collection{Type: models.ResourceUsers, OrganizationID: tc.OrganizationID}); err != nil {
			return nil, err
		}
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		OrganizationID: tc.OrganizationID,
		Name:           strings.TrimSpace(in.Name),
		Email:          strings.ToLower(strings.TrimSpace(in.Email)),
		Password:       string(digest),
		Active:         true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tc.Scope(tx).Model(&models.User{}).Where("email = ?", user.Email).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return apperrors.Invalid("email", "is already registered in this organization")
		}
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		_, err := s.grant(tx, tc, user.ID, in.Role)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("user created",
		zap.Uint("organization_id", tc.OrganizationID),
		zap.Uint("user_id", user.ID),
		zap.String("role", string(in.Role)),
	)
	return user, nil
}

func validateUser(in UserInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return apperrors.Invalid("name", "is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return apperrors.Invalid("email", "is not a valid address")
	}
	if len(in.Password) < minPasswordLength {
		return apperrors.Invalid("password", "must be at least 8 characters")
	}
	if !in.Role.Valid() {
		return apperrors.Invalid("role", "is not a known role")
	}
	return nil
}

// Authenticate checks a password against the user's digest. Unknown emails
// and wrong passwords are indistinguishable.
func (s *Service) Authenticate(ctx context.Context, organizationID uint, email, password string) (*models.User, error) {
	scope := tenant.Context{OrganizationID: organizationID}
	var user models.User
	err := scope.Scope(s.db.WithContext(ctx)).
		Where("email = ? AND active = ?", strings.ToLower(strings.TrimSpace(email)), true).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

var ErrInvalidCredentials = errors.New("invalid credentials")

func (s *Service) user(db *gorm.DB, tc tenant.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := tc.Scope(db).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// User returns one user of the tenant.
func (s *Service) User(ctx context.Context, tc tenant.Context, userID uint) (*models.User, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	user, err := s.user(s.db.WithContext(ctx), tc, userID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Check(tc.Actor, "show", user); err != nil {
		return nil, err
	}
	return user, nil
}

// ListUsers returns the users the actor may see.
func (s *Service) ListUsers(ctx context.Context, tc tenant.Context) ([]models.User, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	if err := s.authz.Check(tc.Actor, "index", authz.Collection{Type: models.ResourceUsers, OrganizationID: tc.OrganizationID}); err != nil {
		return nil, err
	}
	var users []models.User
	err := tc.Scope(s.db.WithContext(ctx)).
		Scopes(s.authz.Scope(tc.Actor, models.ResourceUsers)).
		Order("id").
		Find(&users).Error
	return users, err
}
