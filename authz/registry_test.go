package authz

import (
	"testing"

	"github.com/meinhoongagan/clinic-booking/models"
	"github.com/stretchr/testify/assert"
)

func TestMatrixCoversEveryRoleAndResource(t *testing.T) {
	for _, role := range []models.RoleKey{models.RoleAdmin, models.RoleProfessional, models.RoleSecretary, models.RoleClient} {
		for _, rt := range models.ResourceTypes {
			_, ok := matrix[role][rt]
			assert.True(t, ok, "%s has no row for %s", role, rt)
		}
	}
}

func TestCanDistinguishesQualifiedActions(t *testing.T) {
	assert.True(t, Can(models.RoleClient, "cancel_own", models.ResourceAppointments))
	assert.False(t, Can(models.RoleClient, "cancel", models.ResourceAppointments))
	assert.True(t, Can(models.RoleProfessional, "cancel_assigned", models.ResourceAppointments))
	assert.False(t, Can(models.RoleProfessional, "cancel_own", models.ResourceAppointments))
	assert.True(t, Can(models.RoleAdmin, "cancel", models.ResourceAppointments))
	assert.False(t, Can(models.RoleSecretary, "execute", models.ResourceAppointments))
	assert.False(t, Can(models.RoleKey("owner"), "show", models.ResourceAppointments))
}

func TestPermissionsForReturnsCopy(t *testing.T) {
	perms := PermissionsFor(models.RoleAdmin, models.ResourceBilling)
	perms[0] = "everything"
	assert.NotContains(t, PermissionsFor(models.RoleAdmin, models.ResourceBilling), "everything")
	assert.Empty(t, PermissionsFor(models.RoleProfessional, models.ResourceBilling))
}

func TestPermissionsListsMatrix(t *testing.T) {
	perms := Permissions()
	assert.Contains(t, perms, models.Permission{Role: models.RoleSecretary, Resource: models.ResourceBilling, Action: "refund"})
	assert.NotContains(t, perms, models.Permission{Role: models.RoleClient, Resource: models.ResourceReports, Action: "export"})
}

func TestBaseAction(t *testing.T) {
	assert.Equal(t, "confirm", BaseAction("confirm?"))
	assert.Equal(t, "cancel", BaseAction("cancel_family"))
	assert.Equal(t, "manage_availability", BaseAction("manage_availability_own"))
	assert.Equal(t, "show", BaseAction("show"))
}
