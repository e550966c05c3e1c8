package auth

import "context"

const (
	RoleManager    = "manager"
	RoleSupervisor = "supervisor"
)

const (
	PermEvaluationsSubmit  = "evaluations.submit"
	PermEvaluationsRead    = "evaluations.read"
	PermEvaluationsReadAll = "evaluations.read_all"
	PermEvaluationsExport  = "evaluations.export"
	PermSettingsRead       = "settings.read"
	PermSettingsWrite      = "settings.write"
	PermQuestionsRead      = "questions.read"
	PermQuestionsWrite     = "questions.write"
	PermSupervisorsRead    = "supervisors.read"
	PermSupervisorsWrite   = "supervisors.write"
	PermEmployeesRead      = "employees.read"
	PermEmployeesWrite     = "employees.write"
	PermReportsRead        = "reports.read"
	PermAuditRead          = "audit.read"
)

var DefaultPermissions = []string{
	PermEvaluationsSubmit,
	PermEvaluationsRead,
	PermEvaluationsReadAll,
	PermEvaluationsExport,
	PermSettingsRead,
	PermSettingsWrite,
	PermQuestionsRead,
	PermQuestionsWrite,
	PermSupervisorsRead,
	PermSupervisorsWrite,
	PermEmployeesRead,
	PermEmployeesWrite,
	PermReportsRead,
	PermAuditRead,
}

// RolePermissions is the whole authorization model: managers hold every
// permission, supervisors only what they need to evaluate their own staff.
var RolePermissions = map[string][]string{
	RoleManager: DefaultPermissions,
	RoleSupervisor: {
		PermEvaluationsSubmit,
		PermEvaluationsRead,
		PermSettingsRead,
		PermQuestionsRead,
		PermEmployeesRead,
		PermReportsRead,
	},
}

func ValidRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}

func HasPermission(role, permission string) bool {
	for _, p := range RolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// RolePermissionStore answers permission checks from RolePermissions.
type RolePermissionStore struct{}

func (RolePermissionStore) HasPermission(_ context.Context, role, permission string) (bool, error) {
	return HasPermission(role, permission), nil
}
