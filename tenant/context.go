// Package tenant carries the organization and the acting user through a unit
// of work and keeps every query on tenant-owned tables scoped to it.
package tenant

import (
	"slices"

	"github.com/meinhoongagan/clinic-booking/apperrors"
	"github.com/meinhoongagan/clinic-booking/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Actor is the user an operation runs on behalf of.
type Actor struct {
	UserID         uint
	OrganizationID uint
	Roles          []models.RoleKey
	// DependentIDs are the students the actor is guardian of.
	DependentIDs []uint
	// SuperAdmin may create organizations. It is not an organization role.
	SuperAdmin bool
	// System marks maintenance actors such as the expiration sweep.
	System bool
}

func (a Actor) HasRole(key models.RoleKey) bool {
	return slices.Contains(a.Roles, key)
}

func (a Actor) HasDependent(studentID uint) bool {
	return slices.Contains(a.DependentIDs, studentID)
}

// SystemActor acts with admin rights inside one organization. It has no user
// id, so anything it cancels records no canceller.
func SystemActor(organizationID uint) Actor {
	return Actor{
		OrganizationID: organizationID,
		Roles:          []models.RoleKey{models.RoleAdmin},
		System:         true,
	}
}

// Context is the resolved tenant of a unit of work.
type Context struct {
	OrganizationID uint
	Actor          Actor
}

// New builds a Context and fails closed when the actor belongs to another
// organization.
func New(organizationID uint, actor Actor) (Context, error) {
	if organizationID == 0 {
		return Context{}, apperrors.ErrTenantRequired
	}
	if actor.OrganizationID != organizationID {
		return Context{}, apperrors.ErrTenantMismatch
	}
	return Context{OrganizationID: organizationID, Actor: actor}, nil
}

// Validate re-checks a Context that was built by hand.
func (c Context) Validate() error {
	_, err := New(c.OrganizationID, c.Actor)
	return err
}

// Scope filters db to the tenant. Every read and write on a tenant-owned
// table goes through it or through WithoutTenant.
func (c Context) Scope(db *gorm.DB) *gorm.DB {
	return db.Set(scopedKey, c.OrganizationID).Where(clause.Eq{
		Column: clause.Column{Table: clause.CurrentTable, Name: Column},
		Value:  c.OrganizationID,
	})
}

// Owns reports whether a record belongs to the tenant.
func (c Context) Owns(r interface{ TenantID() uint }) bool {
	return r.TenantID() == c.OrganizationID
}
