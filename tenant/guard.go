package tenant

import (
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Column is the tenant column every tenant-owned table carries.
const Column = "organization_id"

const (
	scopedKey   = "tenant:organization_id"
	unscopedKey = "tenant:unscoped"
)

// ErrUnscopedQuery is returned for statements on tenant-owned tables that
// were neither scoped nor explicitly marked as crossing tenants.
var ErrUnscopedQuery = errors.New("unscoped query on tenant-owned table")

// WithoutTenant marks db as deliberately crossing organizations. It is meant
// for maintenance jobs and aggregate counts, never for request handlers.
func WithoutTenant(db *gorm.DB, reason string) *gorm.DB {
	return db.Set(unscopedKey, reason)
}

// RegisterGuard installs callbacks that reject unscoped reads, updates and
// deletes on tables with an organization_id column.
func RegisterGuard(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("tenant:guard_query", guard); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("tenant:guard_row", guard); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("tenant:guard_update", guard); err != nil {
		return err
	}
	return db.Callback().Delete().Before("gorm:delete").Register("tenant:guard_delete", guard)
}

func guard(db *gorm.DB) {
	if db.Error != nil || db.Statement.Schema == nil {
		return
	}
	if db.Statement.Schema.LookUpField(Column) == nil {
		return
	}
	if _, ok := db.Get(unscopedKey); ok {
		return
	}
	if _, ok := db.Get(scopedKey); ok {
		return
	}
	if where, ok := db.Statement.Clauses["WHERE"].Expression.(clause.Where); ok && mentionsTenant(where.Exprs) {
		return
	}
	_ = db.AddError(ErrUnscopedQuery)
}

func mentionsTenant(exprs []clause.Expression) bool {
	for _, e := range exprs {
		switch v := e.(type) {
		case clause.Expr:
			if strings.Contains(v.SQL, Column) {
				return true
			}
		case clause.NamedExpr:
			if strings.Contains(v.SQL, Column) {
				return true
			}
		case clause.Eq:
			if isTenantColumn(v.Column) {
				return true
			}
		case clause.IN:
			if isTenantColumn(v.Column) {
				return true
			}
		case clause.AndConditions:
			if mentionsTenant(v.Exprs) {
				return true
			}
		}
	}
	return false
}

func isTenantColumn(c interface{}) bool {
	switch col := c.(type) {
	case string:
		return col == Column || strings.HasSuffix(col, "."+Column)
	case clause.Column:
		return col.Name == Column
	}
	return false
}
