package models

// Resource types known to the permission registry.
const (
	ResourceOrganizations = "organizations"
	ResourceUsers         = "users"
	ResourceAppointments  = "appointments"
	ResourceProfessionals = "professionals"
	ResourceStudents      = "students"
	ResourceReports       = "reports"
	ResourceBilling       = "billing"
)

var ResourceTypes = []string{
	ResourceOrganizations,
	ResourceUsers,
	ResourceAppointments,
	ResourceProfessionals,
	ResourceStudents,
	ResourceReports,
	ResourceBilling,
}
