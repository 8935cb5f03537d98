package authz

import (
	"github.com/meinhoongagan/clinic-booking/apperrors"
	"github.com/meinhoongagan/clinic-booking/models"
	"github.com/meinhoongagan/clinic-booking/tenant"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Resource is anything the engine can authorize against. Every model that
// carries an organization implements it.
type Resource interface {
	ResourceType() string
	TenantID() uint
}

// Collection stands in for a resource type when there is no instance yet,
// for listing or for creating an organization.
type Collection struct {
	Type           string
	OrganizationID uint
}

func (c Collection) ResourceType() string { return c.Type }
func (c Collection) TenantID() uint       { return c.OrganizationID }

type Decision struct {
	Allowed bool
	Reason  string
}

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Reason: reason} }

// Engine evaluates authorization requests. It holds no state besides its
// logger; the matrix is package data.
type Engine struct {
	log *zap.Logger
}

func NewEngine(log *zap.Logger) *Engine {
	return &Engine{log: log}
}

// Authorize evaluates, in order and first match wins: the tenant check, the
// appointment state gate, the ownership predicates and finally the role
// matrix. Anything not explicitly allowed is denied.
func (e *Engine) Authorize(actor tenant.Actor, action string, resource Resource) Decision {
	d := e.evaluate(actor, BaseAction(action), resource)
	if !d.Allowed {
		e.log.Warn("authorization denied",
			zap.Uint("user_id", actor.UserID),
			zap.Uint("organization_id", actor.OrganizationID),
			zap.String("action", action),
			zap.String("resource_type", resource.ResourceType()),
			zap.Uint("resource_organization_id", resource.TenantID()),
			zap.String("reason", d.Reason),
		)
	}
	return d
}

// Permits is Authorize without the audit entry. Callers use it to pick which
// error to report, never to enforce access.
func (e *Engine) Permits(actor tenant.Actor, action string, resource Resource) bool {
	return e.evaluate(actor, BaseAction(action), resource).Allowed
}

// Check is Authorize returning an AuthorizationDenied error on denial.
func (e *Engine) Check(actor tenant.Actor, action string, resource Resource) error {
	if d := e.Authorize(actor, action, resource); !d.Allowed {
		return apperrors.AuthorizationDenied{Action: BaseAction(action), Reason: d.Reason}
	}
	return nil
}

func (e *Engine) evaluate(actor tenant.Actor, action string, resource Resource) Decision {
	rt := resource.ResourceType()

	if rt == models.ResourceOrganizations && action == "create" {
		if actor.SuperAdmin {
			return allow("super admin")
		}
		return deny("organization creation requires super admin")
	}
	if actor.OrganizationID == 0 || resource.TenantID() != actor.OrganizationID {
		return deny("tenant mismatch")
	}

	if a, ok := asAppointment(resource); ok {
		if d, gated := stateGate(actor, action, a); gated {
			return d
		}
	}

	for _, candidate := range candidates(actor, action, resource) {
		for _, role := range actor.Roles {
			if Can(role, candidate, rt) {
				return allow(string(role) + ":" + candidate)
			}
		}
	}
	return deny("no role grants " + action + " on " + rt)
}

// stateGate mirrors the transition table: nobody mutates a cancelled
// appointment and only admins touch an executed one.
func stateGate(actor tenant.Actor, action string, a *models.Appointment) (Decision, bool) {
	if !isMutation(action) {
		return Decision{}, false
	}
	switch a.State {
	case models.StateCancelled:
		return deny("appointment is cancelled"), true
	case models.StateExecuted:
		if !actor.HasRole(models.RoleAdmin) {
			return deny("appointment is executed"), true
		}
	}
	return Decision{}, false
}

func isMutation(action string) bool {
	return action != "show" && action != "index"
}

// candidates lists the action names that would grant the request: the
// unconditional action first, then each qualified variant whose predicate
// holds for this actor and resource.
func candidates(actor tenant.Actor, action string, resource Resource) []string {
	out := []string{action}
	own, assigned, family := predicates(actor, action, resource)
	if own {
		out = append(out, action+QualifierOwn)
	}
	if assigned {
		out = append(out, action+QualifierAssigned)
	}
	if family {
		out = append(out, action+QualifierFamily)
	}
	return out
}

func predicates(actor tenant.Actor, action string, resource Resource) (own, assigned, family bool) {
	if actor.UserID == 0 {
		return false, false, false
	}
	if a, ok := asAppointment(resource); ok {
		return a.ClientID == actor.UserID,
			a.ProfessionalID == actor.UserID,
			a.StudentID != nil && actor.HasDependent(*a.StudentID)
	}

	switch r := resource.(type) {
	case Collection:
		// Listing is narrowed by Scope, so every qualified index applies.
		if action == "index" {
			return true, true, true
		}
	case models.User:
		return r.ID == actor.UserID, false, false
	case *models.User:
		return r.ID == actor.UserID, false, false
	case models.CreditBalance:
		return r.UserID == actor.UserID, false, false
	case *models.CreditBalance:
		return r.UserID == actor.UserID, false, false
	case models.Professional:
		return r.UserID == actor.UserID, false, false
	case *models.Professional:
		return r.UserID == actor.UserID, false, false
	case models.Student:
		return r.ID == 0 && r.GuardianID == actor.UserID, false, isDependent(actor, &r)
	case *models.Student:
		return r.ID == 0 && r.GuardianID == actor.UserID, false, isDependent(actor, r)
	}
	return false, false, false
}

// isDependent covers existing students. A new student is "own" to the
// guardian creating it.
func isDependent(actor tenant.Actor, s *models.Student) bool {
	if s.ID == 0 {
		return false
	}
	return s.GuardianID == actor.UserID || actor.HasDependent(s.ID)
}

func asAppointment(resource Resource) (*models.Appointment, bool) {
	switch r := resource.(type) {
	case *models.Appointment:
		return r, true
	case models.Appointment:
		return &r, true
	}
	return nil, false
}

// Scope narrows a list query on resourceType to the rows the actor may see.
// It filters by the actor's organization too, so it never widens a query.
func (e *Engine) Scope(actor tenant.Actor, resourceType string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if resourceType == models.ResourceOrganizations {
			return db.Where("id = ?", actor.OrganizationID)
		}
		db = db.Where(tenant.Column+" = ?", actor.OrganizationID)

		if actor.HasRole(models.RoleAdmin) || actor.HasRole(models.RoleSecretary) {
			return db
		}

		switch resourceType {
		case models.ResourceAppointments:
			cond := db.Session(&gorm.Session{NewDB: true})
			matched := false
			if actor.HasRole(models.RoleProfessional) {
				cond = cond.Or("professional_id = ?", actor.UserID)
				matched = true
			}
			if actor.HasRole(models.RoleClient) {
				cond = cond.Or("client_id = ?", actor.UserID)
				if len(actor.DependentIDs) > 0 {
					cond = cond.Or("student_id IN ?", actor.DependentIDs)
				}
				matched = true
			}
			if matched {
				return db.Where(cond)
			}
		case models.ResourceProfessionals:
			if len(actor.Roles) > 0 {
				return db
			}
		case models.ResourceStudents:
			if actor.HasRole(models.RoleProfessional) {
				return db
			}
			if actor.HasRole(models.RoleClient) {
				return db.Where("guardian_id = ?", actor.UserID)
			}
		case models.ResourceUsers:
			return db.Where("id = ?", actor.UserID)
		case models.ResourceBilling:
			if actor.HasRole(models.RoleClient) {
				return db.Where("user_id = ?", actor.UserID)
			}
		}
		return db.Where("1 = 0")
	}
}
