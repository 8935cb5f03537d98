package models

import (
	"strconv"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Organization is the tenant. Every other table carries its id.
type Organization struct {
	gorm.Model
	Name      string            `json:"name" gorm:"not null"`
	Subdomain string            `json:"subdomain" gorm:"type:varchar(63);uniqueIndex;not null"`
	Active    bool              `json:"active" gorm:"default:true"`
	Settings  datatypes.JSONMap `json:"settings"`
}

// Known settings keys.
const (
	SettingTimeZone          = "time_zone"
	SettingMinAdvanceHours   = "min_advance_hours"
	SettingRefundWindowHours = "refund_window_hours"
)

func (Organization) ResourceType() string { return ResourceOrganizations }

func (o Organization) TenantID() uint { return o.ID }

// SettingInt reads an integer setting. JSON numbers decode as float64, and
// settings edited by hand sometimes arrive as strings.
func (o Organization) SettingInt(key string, fallback int) int {
	v, ok := o.Settings[key]
	if !ok || v == nil {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return fallback
}

func (o Organization) SettingString(key, fallback string) string {
	if s, ok := o.Settings[key].(string); ok && s != "" {
		return s
	}
	return fallback
}
