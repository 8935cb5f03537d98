// Package authz decides whether an actor may perform an action on a
// resource. The role matrix in this file is the only place capabilities are
// granted.
package authz

import (
	"slices"
	"strings"

	"github.com/meinhoongagan/clinic-booking/models"
)

// Qualifiers narrow an action to resources the actor is related to.
const (
	QualifierOwn      = "_own"
	QualifierAssigned = "_assigned"
	QualifierFamily   = "_family"
)

var qualifiers = []string{QualifierOwn, QualifierAssigned, QualifierFamily}

// matrix maps role -> resource type -> granted actions. A plain action is
// unconditional within the organization; a qualified one only applies when
// the matching ownership predicate holds.
var matrix = map[models.RoleKey]map[string][]string{
	models.RoleAdmin: {
		models.ResourceOrganizations: {"show", "update"},
		models.ResourceUsers:         {"index", "show", "create", "update", "destroy", "assign_role"},
		models.ResourceAppointments:  {"index", "show", "create", "update", "destroy", "pre_confirm", "confirm", "execute", "cancel"},
		models.ResourceProfessionals: {"index", "show", "create", "update", "destroy", "manage_availability"},
		models.ResourceStudents:      {"index", "show", "create", "update", "destroy"},
		models.ResourceReports:       {"index", "show", "export"},
		models.ResourceBilling:       {"index", "show", "purchase", "adjust", "debit", "refund"},
	},
	models.RoleProfessional: {
		models.ResourceOrganizations: {"show"},
		models.ResourceUsers:         {"show_own", "update_own"},
		models.ResourceAppointments: {"index_assigned", "show_assigned", "create_assigned", "update_assigned",
			"pre_confirm_assigned", "confirm_assigned", "execute_assigned", "cancel_assigned"},
		models.ResourceProfessionals: {"index", "show", "update_own", "manage_availability_own"},
		models.ResourceStudents:      {"show"},
		models.ResourceReports:       {"show_own"},
		models.ResourceBilling:       {},
	},
	models.RoleSecretary: {
		models.ResourceOrganizations: {"show"},
		models.ResourceUsers:         {"index", "show", "create", "update"},
		models.ResourceAppointments:  {"index", "show", "create", "update", "pre_confirm", "confirm", "cancel"},
		models.ResourceProfessionals: {"index", "show", "manage_availability"},
		models.ResourceStudents:      {"index", "show", "create", "update"},
		models.ResourceReports:       {"index", "show"},
		models.ResourceBilling:       {"index", "show", "purchase", "debit", "refund"},
	},
	models.RoleClient: {
		models.ResourceOrganizations: {"show"},
		models.ResourceUsers:         {"show_own", "update_own"},
		models.ResourceAppointments: {"index_own", "index_family", "create_own", "show_own", "show_family",
			"pre_confirm_own", "confirm_own", "cancel_own", "cancel_family"},
		models.ResourceProfessionals: {"index", "show"},
		models.ResourceStudents:      {"index_family", "show_family", "update_family", "create_own"},
		models.ResourceReports:       {},
		models.ResourceBilling:       {"index_own", "show_own", "purchase_own"},
	},
}

// PermissionsFor returns the actions a role holds on a resource type.
func PermissionsFor(role models.RoleKey, resourceType string) []string {
	return slices.Clone(matrix[role][resourceType])
}

// Can reports whether the role holds exactly this action. Qualified and
// unqualified actions are distinct: "cancel_own" does not grant "cancel".
func Can(role models.RoleKey, action, resourceType string) bool {
	return slices.Contains(matrix[role][resourceType], action)
}

// Permissions lists the whole matrix, ordered by role then resource type.
func Permissions() []models.Permission {
	var out []models.Permission
	for _, role := range []models.RoleKey{models.RoleAdmin, models.RoleProfessional, models.RoleSecretary, models.RoleClient} {
		for _, resource := range models.ResourceTypes {
			for _, action := range matrix[role][resource] {
				out = append(out, models.Permission{Role: role, Resource: resource, Action: action})
			}
		}
	}
	return out
}

// BaseAction strips any qualifier and a trailing question mark, so
// "confirm?" and "cancel_own" become "confirm" and "cancel".
func BaseAction(action string) string {
	action = strings.TrimSuffix(action, "?")
	for _, q := range qualifiers {
		if strings.HasSuffix(action, q) {
			return strings.TrimSuffix(action, q)
		}
	}
	return action
}
