package organizations

import (
	"context"
	"testing"
	_ "time/tzdata"

	"github.com/meinhoongagan/clinic-booking/apperrors"
	"github.com/meinhoongagan/clinic-booking/authz"
	"github.com/meinhoongagan/clinic-booking/dbtest"
	"github.com/meinhoongagan/clinic-booking/models"
	"github.com/meinhoongagan/clinic-booking/scheduling"
	"github.com/meinhoongagan/clinic-booking/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var _ scheduling.RoleChecker = (*Service)(nil)

var root = tenant.Actor{SuperAdmin: true}

type fixture struct {
	db    *gorm.DB
	svc   *Service
	org   *models.Organization
	admin tenant.Context
}

// newFixture creates an organization and its first admin the way an
// onboarding request does.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := dbtest.Open(t)
	log := zaptest.NewLogger(t)
	svc := NewService(gdb, authz.NewEngine(log), log)
	ctx := context.Background()

	org, err := svc.CreateOrganization(ctx, root, OrganizationInput{Name: "Acme Therapy", Subdomain: "acme"})
	require.NoError(t, err)

	bootstrap, err := tenant.New(org.ID, tenant.SystemActor(org.ID))
	require.NoError(t, err)
	user, err := svc.CreateUser(ctx, bootstrap, UserInput{Name: "Ada", Email: "ada@acme.test", Password: "correct horse", Role: models.RoleAdmin})
	require.NoError(t, err)

	actor, err := svc.LoadActor(ctx, org.ID, user.ID, false)
	require.NoError(t, err)
	admin, err := tenant.New(org.ID, actor)
	require.NoError(t, err)

	return &fixture{db: gdb, svc: svc, org: org, admin: admin}
}

func (f *fixture) user(t *testing.T, email string, role models.RoleKey) tenant.Context {
	t.Helper()
	ctx := context.Background()
	u, err := f.svc.CreateUser(ctx, f.admin, UserInput{Name: email, Email: email, Password: "password123", Role: role})
	require.NoError(t, err)
	actor, err := f.svc.LoadActor(ctx, f.org.ID, u.ID, false)
	require.NoError(t, err)
	tc, err := tenant.New(f.org.ID, actor)
	require.NoError(t, err)
	return tc
}

func TestCreateOrganizationSeedsRoles(t *testing.T) {
	f := newFixture(t)

	var roles []models.Role
	require.NoError(t, f.db.Where("organization_id = ?", f.org.ID).Order("id").Find(&roles).Error)
	require.Len(t, roles, 4)
	keys := make([]models.RoleKey, len(roles))
	for i, r := range roles {
		keys[i] = r.Key
	}
	assert.Equal(t, []models.RoleKey{models.RoleAdmin, models.RoleProfessional, models.RoleSecretary, models.RoleClient}, keys)
	assert.True(t, f.org.Active)
}

func TestCreateOrganizationValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateOrganization(ctx, f.admin.Actor, OrganizationInput{Name: "Beta", Subdomain: "beta"})
	assert.True(t, apperrors.IsDenied(err), "organization admins cannot create tenants")

	for _, sub := range []string{"", "-beta", "beta-", "be ta", "béta"} {
		_, err = f.svc.CreateOrganization(ctx, root, OrganizationInput{Name: "Beta", Subdomain: sub})
		assert.True(t, apperrors.IsValidation(err), sub)
	}

	_, err = f.svc.CreateOrganization(ctx, root, OrganizationInput{Name: "Copy", Subdomain: "ACME"})
	assert.True(t, apperrors.IsValidation(err), "subdomains are unique")

	_, err = f.svc.CreateOrganization(ctx, root, OrganizationInput{Name: "Beta", Subdomain: "beta",
		Settings: map[string]interface{}{models.SettingTimeZone: "Mars/Olympus"}})
	assert.True(t, apperrors.IsValidation(err))

	var count int64
	require.NoError(t, f.db.Model(&models.Organization{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.CreateUser(ctx, f.admin, UserInput{Name: "Carla", Email: " Carla@Acme.test ", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, "carla@acme.test", u.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("password123")))

	ok, err := f.svc.HasRole(ctx, f.admin, u.ID, DefaultRole)
	require.NoError(t, err)
	assert.True(t, ok, "users start as clients")

	_, err = f.svc.CreateUser(ctx, f.admin, UserInput{Name: "Dup", Email: "carla@acme.test", Password: "password123"})
	assert.True(t, apperrors.IsValidation(err))

	for _, in := range []UserInput{
		{Name: "", Email: "x@acme.test", Password: "password123"},
		{Name: "X", Email: "not-an-email", Password: "password123"},
		{Name: "X", Email: "x@acme.test", Password: "short"},
		{Name: "X", Email: "x@acme.test", Password: "password123", Role: "owner"},
	} {
		_, err = f.svc.CreateUser(ctx, f.admin, in)
		assert.True(t, apperrors.IsValidation(err), "%+v", in)
	}
}

func TestEmailUniquePerOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	beta, err := f.svc.CreateOrganization(ctx, root, OrganizationInput{Name: "Beta", Subdomain: "beta"})
	require.NoError(t, err)
	tc, err := tenant.New(beta.ID, tenant.SystemActor(beta.ID))
	require.NoError(t, err)

	u, err := f.svc.CreateUser(ctx, tc, UserInput{Name: "Ada", Email: "ada@acme.test", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, beta.ID, u.OrganizationID)

	counts, err := f.svc.CountAcrossOrganizations(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[uint]int64{f.org.ID: 1, beta.ID: 1}, counts)
}

func TestCreateUserPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	secretary := f.user(t, "desk@acme.test", models.RoleSecretary)
	client := f.user(t, "client@acme.test", models.RoleClient)

	_, err := f.svc.CreateUser(ctx, client, UserInput{Name: "X", Email: "x@acme.test", Password: "password123"})
	assert.True(t, apperrors.IsDenied(err))

	for _, role := range []models.RoleKey{models.RoleAdmin, models.RoleSecretary, models.RoleProfessional} {
		_, err = f.svc.CreateUser(ctx, secretary, UserInput{Name: "X", Email: "x@acme.test", Password: "password123", Role: role})
		assert.True(t, apperrors.IsDenied(err), "secretaries cannot grant %s", role)
	}

	_, err = f.svc.CreateUser(ctx, secretary, UserInput{Name: "X", Email: "x@acme.test", Password: "password123", Role: models.RoleClient})
	assert.NoError(t, err)

	pro, err := f.svc.CreateUser(ctx, f.admin, UserInput{Name: "P", Email: "p@acme.test", Password: "password123", Role: models.RoleProfessional})
	require.NoError(t, err)
	ok, err := f.svc.HasRole(ctx, f.admin, pro.ID, models.RoleProfessional)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.svc.CreateUser(ctx, secretary, UserInput{Name: "Y", Email: "y@acme.test", Password: "password123"})
	assert.NoError(t, err)
}

func TestAssignAndRevokeRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pro := f.user(t, "pro@acme.test", models.RoleClient)
	id := pro.Actor.UserID

	granted, err := f.svc.AssignRole(ctx, f.admin, id, models.RoleProfessional)
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = f.svc.AssignRole(ctx, f.admin, id, models.RoleProfessional)
	require.NoError(t, err)
	assert.False(t, granted, "assigning twice is a no-op")

	actor, err := f.svc.LoadActor(ctx, f.org.ID, id, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.RoleKey{models.RoleClient, models.RoleProfessional}, actor.Roles)

	revoked, err := f.svc.RevokeRole(ctx, f.admin, id, models.RoleProfessional)
	require.NoError(t, err)
	assert.True(t, revoked)
	ok, err := f.svc.HasRole(ctx, f.admin, id, models.RoleProfessional)
	require.NoError(t, err)
	assert.False(t, ok)

	revoked, err = f.svc.RevokeRole(ctx, f.admin, id, models.RoleProfessional)
	require.NoError(t, err)
	assert.False(t, revoked)

	granted, err = f.svc.AssignRole(ctx, f.admin, id, models.RoleProfessional)
	require.NoError(t, err)
	assert.True(t, granted, "a revoked role can be granted again")

	_, err = f.svc.AssignRole(ctx, pro, id, models.RoleAdmin)
	assert.True(t, apperrors.IsDenied(err))

	_, err = f.svc.AssignRole(ctx, f.admin, id, "owner")
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.RevokeRole(ctx, f.admin, f.admin.Actor.UserID, models.RoleAdmin)
	assert.True(t, apperrors.IsValidation(err))
}

func TestRolesDoNotCrossTenants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.user(t, "client@acme.test", models.RoleClient)

	beta, err := f.svc.CreateOrganization(ctx, root, OrganizationInput{Name: "Beta", Subdomain: "beta"})
	require.NoError(t, err)
	betaAdmin, err := tenant.New(beta.ID, tenant.SystemActor(beta.ID))
	require.NoError(t, err)

	_, err = f.svc.AssignRole(ctx, betaAdmin, client.Actor.UserID, models.RoleAdmin)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	ok, err := f.svc.HasRole(ctx, betaAdmin, f.admin.Actor.UserID, models.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.LoadActor(ctx, beta.ID, client.Actor.UserID, false)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStudentsAndDependents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.user(t, "client@acme.test", models.RoleClient)
	other := f.user(t, "other@acme.test", models.RoleClient)

	lia, err := f.svc.CreateStudent(ctx, client, StudentInput{Name: "Lia"})
	require.NoError(t, err)
	assert.Equal(t, client.Actor.UserID, lia.GuardianID)

	_, err = f.svc.CreateStudent(ctx, other, StudentInput{Name: "Not mine", GuardianID: client.Actor.UserID})
	assert.True(t, apperrors.IsDenied(err))

	_, err = f.svc.CreateStudent(ctx, f.admin, StudentInput{Name: "Ghost", GuardianID: 999})
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.CreateStudent(ctx, f.admin, StudentInput{Name: "Teo", GuardianID: client.Actor.UserID})
	require.NoError(t, err)

	actor, err := f.svc.LoadActor(ctx, f.org.ID, client.Actor.UserID, false)
	require.NoError(t, err)
	assert.Len(t, actor.DependentIDs, 2)
	assert.Contains(t, actor.DependentIDs, lia.ID)

	tc, err := tenant.New(f.org.ID, actor)
	require.NoError(t, err)
	mine, err := f.svc.ListStudents(ctx, tc)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	theirs, err := f.svc.ListStudents(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, theirs)

	all, err := f.svc.ListStudents(ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListUsersScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.user(t, "client@acme.test", models.RoleClient)
	desk := f.user(t, "desk@acme.test", models.RoleSecretary)

	all, err := f.svc.ListUsers(ctx, desk)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = f.svc.ListUsers(ctx, client)
	assert.True(t, apperrors.IsDenied(err))

	me, err := f.svc.User(ctx, client, client.Actor.UserID)
	require.NoError(t, err)
	assert.Equal(t, "client@acme.test", me.Email)

	_, err = f.svc.User(ctx, client, desk.Actor.UserID)
	assert.True(t, apperrors.IsDenied(err))
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.Authenticate(ctx, f.org.ID, "ADA@acme.test", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, f.admin.Actor.UserID, u.ID)

	_, err = f.svc.Authenticate(ctx, f.org.ID, "ada@acme.test", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Authenticate(ctx, f.org.ID, "nobody@acme.test", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Authenticate(ctx, f.org.ID+1, "ada@acme.test", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	org, err := f.svc.UpdateSettings(ctx, f.admin, map[string]interface{}{
		models.SettingTimeZone:          "America/Sao_Paulo",
		models.SettingRefundWindowHours: 12,
	})
	require.NoError(t, err)
	assert.Equal(t, 12, org.SettingInt(models.SettingRefundWindowHours, 0))

	org, err = f.svc.UpdateSettings(ctx, f.admin, map[string]interface{}{models.SettingRefundWindowHours: nil})
	require.NoError(t, err)
	assert.Equal(t, 24, org.SettingInt(models.SettingRefundWindowHours, 24))
	assert.Equal(t, "America/Sao_Paulo", org.SettingString(models.SettingTimeZone, ""))

	_, err = f.svc.UpdateSettings(ctx, f.admin, map[string]interface{}{models.SettingMinAdvanceHours: -3})
	assert.True(t, apperrors.IsValidation(err))

	client := f.user(t, "client@acme.test", models.RoleClient)
	_, err = f.svc.UpdateSettings(ctx, client, map[string]interface{}{models.SettingMinAdvanceHours: 1})
	assert.True(t, apperrors.IsDenied(err))
}

func TestBySubdomain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	org, err := f.svc.BySubdomain(ctx, " ACME ")
	require.NoError(t, err)
	assert.Equal(t, f.org.ID, org.ID)

	_, err = f.svc.BySubdomain(ctx, "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLoadActorRejectsInactiveOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	adminID := f.admin.Actor.UserID

	require.NoError(t, f.db.Model(&models.Organization{}).Where("id = ?", f.org.ID).UpdateColumn("active", false).Error)

	_, err := f.svc.LoadActor(ctx, f.org.ID, adminID, false)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.svc.BySubdomain(ctx, "acme")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, f.db.Model(&models.Organization{}).Where("id = ?", f.org.ID).UpdateColumn("active", true).Error)
	actor, err := f.svc.LoadActor(ctx, f.org.ID, adminID, false)
	require.NoError(t, err)
	assert.Equal(t, adminID, actor.UserID)
}
