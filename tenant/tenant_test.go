package tenant_test

import (
	"testing"

	"github.com/meinhoongagan/clinic-booking/apperrors"
	"github.com/meinhoongagan/clinic-booking/dbtest"
	"github.com/meinhoongagan/clinic-booking/models"
	"github.com/meinhoongagan/clinic-booking/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsMissingTenant(t *testing.T) {
	_, err := tenant.New(0, tenant.Actor{UserID: 1})
	assert.ErrorIs(t, err, apperrors.ErrTenantRequired)
}

func TestNewRejectsForeignActor(t *testing.T) {
	_, err := tenant.New(1, tenant.Actor{UserID: 7, OrganizationID: 2})
	assert.ErrorIs(t, err, apperrors.ErrTenantMismatch)

	tc, err := tenant.New(2, tenant.Actor{UserID: 7, OrganizationID: 2})
	require.NoError(t, err)
	assert.Equal(t, uint(2), tc.OrganizationID)
	assert.NoError(t, tc.Validate())
}

func TestSystemActor(t *testing.T) {
	a := tenant.SystemActor(3)
	assert.True(t, a.System)
	assert.True(t, a.HasRole(models.RoleAdmin))
	assert.Zero(t, a.UserID)
}

func TestScopeIsolatesOrganizations(t *testing.T) {
	gdb := dbtest.Open(t)
	for _, s := range []models.Student{
		{OrganizationID: 1, GuardianID: 10, Name: "Ana"},
		{OrganizationID: 1, GuardianID: 10, Name: "Bruno"},
		{OrganizationID: 2, GuardianID: 20, Name: "Carla"},
	} {
		s := s
		require.NoError(t, gdb.Create(&s).Error)
	}

	for _, orgID := range []uint{1, 2} {
		tc, err := tenant.New(orgID, tenant.Actor{UserID: 99, OrganizationID: orgID})
		require.NoError(t, err)

		var students []models.Student
		require.NoError(t, tc.Scope(gdb).Find(&students).Error)
		require.NotEmpty(t, students)
		for _, s := range students {
			assert.Equal(t, orgID, s.OrganizationID)
		}
	}

	var all []models.Student
	require.NoError(t, tenant.WithoutTenant(gdb, "test").Find(&all).Error)
	assert.Len(t, all, 3)
}

func TestGuardRejectsUnscopedStatements(t *testing.T) {
	gdb := dbtest.Open(t)
	require.NoError(t, gdb.Create(&models.Student{OrganizationID: 1, GuardianID: 1, Name: "Ana"}).Error)

	var students []models.Student
	err := gdb.Find(&students).Error
	assert.ErrorIs(t, err, tenant.ErrUnscopedQuery)

	err = gdb.Model(&models.Student{}).Where("name = ?", "Ana").Update("name", "Bia").Error
	assert.ErrorIs(t, err, tenant.ErrUnscopedQuery)

	err = gdb.Where("name = ?", "Ana").Delete(&models.Student{}).Error
	assert.ErrorIs(t, err, tenant.ErrUnscopedQuery)

	var count int64
	err = gdb.Model(&models.Student{}).Count(&count).Error
	assert.ErrorIs(t, err, tenant.ErrUnscopedQuery)

	var names []string
	err = gdb.Model(&models.Student{}).Select("name").Scan(&names).Error
	assert.ErrorIs(t, err, tenant.ErrUnscopedQuery)
	assert.Empty(t, names)

	rows, err := gdb.Model(&models.Student{}).Select("name").Rows()
	assert.ErrorIs(t, err, tenant.ErrUnscopedQuery)
	assert.Nil(t, rows)
}

func TestGuardCoversRowReads(t *testing.T) {
	gdb := dbtest.Open(t)
	require.NoError(t, gdb.Create(&models.Student{OrganizationID: 1, GuardianID: 1, Name: "Ana"}).Error)
	require.NoError(t, gdb.Create(&models.Student{OrganizationID: 2, GuardianID: 2, Name: "Bob"}).Error)

	tc, err := tenant.New(1, tenant.Actor{UserID: 1, OrganizationID: 1})
	require.NoError(t, err)

	var names []string
	require.NoError(t, tc.Scope(gdb).Model(&models.Student{}).Select("name").Scan(&names).Error)
	assert.Equal(t, []string{"Ana"}, names)

	var count int64
	require.NoError(t, tenant.WithoutTenant(gdb, "test").Model(&models.Student{}).Select("COUNT(*)").Row().Scan(&count))
	assert.Equal(t, int64(2), count)
}

func TestGuardAcceptsExplicitTenantFilters(t *testing.T) {
	gdb := dbtest.Open(t)
	require.NoError(t, gdb.Create(&models.Student{OrganizationID: 1, GuardianID: 1, Name: "Ana"}).Error)

	var students []models.Student
	require.NoError(t, gdb.Where("organization_id = ?", 1).Find(&students).Error)
	assert.Len(t, students, 1)

	students = nil
	require.NoError(t, gdb.Where(&models.Student{OrganizationID: 1}).Find(&students).Error)
	assert.Len(t, students, 1)

	var count int64
	require.NoError(t, tenant.WithoutTenant(gdb, "count").Model(&models.Student{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGuardIgnoresOrganizationsTable(t *testing.T) {
	gdb := dbtest.Open(t)
	require.NoError(t, gdb.Create(&models.Organization{Name: "Acme", Subdomain: "acme"}).Error)

	var orgs []models.Organization
	require.NoError(t, gdb.Find(&orgs).Error)
	assert.Len(t, orgs, 1)
}
