package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRolePermissionsSubset(t *testing.T) {
	allowed := map[string]struct{}{}
	for _, perm := range DefaultPermissions {
		allowed[perm] = struct{}{}
	}
	for role, perms := range RolePermissions {
		require.NotEmpty(t, perms, "role %s has no permissions", role)
		for _, perm := range perms {
			_, ok := allowed[perm]
			assert.True(t, ok, "role %s has unknown permission %s", role, perm)
		}
	}
}

func TestDefaultPermissionsUnique(t *testing.T) {
	seen := map[string]struct{}{}
	for _, perm := range DefaultPermissions {
		_, dup := seen[perm]
		assert.False(t, dup, "duplicate permission %s", perm)
		seen[perm] = struct{}{}
	}
}

func TestSupervisorCannotManage(t *testing.T) {
	for _, perm := range []string{PermSettingsWrite, PermEvaluationsExport, PermEvaluationsReadAll, PermSupervisorsWrite, PermAuditRead} {
		assert.False(t, HasPermission(RoleSupervisor, perm), perm)
		assert.True(t, HasPermission(RoleManager, perm), perm)
	}
	assert.True(t, HasPermission(RoleSupervisor, PermEvaluationsSubmit))
	assert.False(t, HasPermission("intern", PermEvaluationsRead))
	assert.False(t, ValidRole("intern"))

	ok, err := RolePermissionStore{}.HasPermission(context.Background(), RoleManager, PermSettingsWrite)
	require.NoError(t, err)
	assert.True(t, ok)
}
