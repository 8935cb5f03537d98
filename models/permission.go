package models

// Permission is one cell of the role/permission matrix. The matrix itself is
// fixed data owned by the authz package; this type is how it is listed.
type Permission struct {
	Role     RoleKey `json:"role"`
	Resource string  `json:"resource"` // e.g. "appointments", "billing"
	Action   string  `json:"action"`   // e.g. "cancel", "cancel_own"
}
