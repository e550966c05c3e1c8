package directory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalhub/internal/domain/auth"
	"evalhub/internal/domain/validation"
	"evalhub/internal/platform/db/dbtest"
)

func newService(t *testing.T) (*Service, dbtest.Fixture) {
	t.Helper()
	db := dbtest.NewSQLite(t)
	f := dbtest.Seed(t, db)
	return NewService(NewStore(db), Options{AllowedDomain: "@Example.com", DefaultPassword: dbtest.Password}), f
}

func TestCreateSupervisor(t *testing.T) {
	ctx := context.Background()
	svc, f := newService(t)

	sup, err := svc.CreateSupervisor(ctx, f.ManagerID, SupervisorInput{Name: "  Nina  ", Email: " Nina@Example.com "})
	require.NoError(t, err)
	assert.Equal(t, "Nina", sup.Name)
	assert.Equal(t, "nina@example.com", sup.Email)
	assert.Equal(t, auth.RoleSupervisor, sup.Role)

	got, err := svc.GetSupervisor(ctx, sup.ID)
	require.NoError(t, err)
	assert.Equal(t, f.ManagerID, got.ManagerID)
	assert.Zero(t, got.EmployeeCount)

	_, err = svc.CreateSupervisor(ctx, f.ManagerID, SupervisorInput{Name: "Nina Again", Email: "nina@example.com"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestCreateSupervisorValidation(t *testing.T) {
	ctx := context.Background()
	svc, f := newService(t)

	tests := []struct {
		name string
		in   SupervisorInput
	}{
		{name: "bad email", in: SupervisorInput{Name: "Nina", Email: "not-an-email"}},
		{name: "foreign domain", in: SupervisorInput{Name: "Nina", Email: "nina@other.org"}},
		{name: "short name", in: SupervisorInput{Name: "N", Email: "nina@example.com"}},
		{name: "short password", in: SupervisorInput{Name: "Nina", Email: "nina@example.com", Password: "abc"}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateSupervisor(ctx, f.ManagerID, tc.in)
			var verr *validation.Error
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestSetPassword(t *testing.T) {
	ctx := context.Background()
	svc, f := newService(t)

	err := svc.SetPassword(ctx, f.SupervisorID, "secret1", "secret2")
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "confirmPassword", verr.Issues[0].Field)

	require.NoError(t, svc.SetPassword(ctx, f.SupervisorID, "secret1", "secret1"))
	assert.ErrorIs(t, svc.SetPassword(ctx, "missing", "secret1", "secret1"), ErrNotFound)
}

func TestArchiveSupervisorArchivesEmployees(t *testing.T) {
	ctx := context.Background()
	svc, f := newService(t)

	assert.ErrorIs(t, svc.ArchiveSupervisor(ctx, f.ManagerID, f.ManagerID), ErrSelfArchive)
	require.NoError(t, svc.ArchiveSupervisor(ctx, f.ManagerID, f.SupervisorID))

	sup, err := svc.GetSupervisor(ctx, f.SupervisorID)
	require.NoError(t, err)
	assert.NotNil(t, sup.ArchivedAt)

	active, err := svc.ListEmployees(ctx, EmployeeFilter{SupervisorID: f.SupervisorID})
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := svc.ListEmployees(ctx, EmployeeFilter{SupervisorID: f.SupervisorID, IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.CreateEmployee(ctx, EmployeeInput{Code: "EMP100", Name: "Late Joiner", SupervisorID: f.SupervisorID})
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "supervisorId", verr.Issues[0].Field)

	assert.ErrorIs(t, svc.ArchiveSupervisor(ctx, f.ManagerID, "missing"), ErrNotFound)
}

func TestEmployeeLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, f := newService(t)

	emp, err := svc.CreateEmployee(ctx, EmployeeInput{Code: " EMP010 ", Name: "Alma", SupervisorID: f.SupervisorID})
	require.NoError(t, err)
	assert.Equal(t, "EMP010", emp.Code)
	assert.Equal(t, "Sam Supervisor", emp.SupervisorName)

	_, err = svc.CreateEmployee(ctx, EmployeeInput{Code: "EMP010", Name: "Dup", SupervisorID: f.SupervisorID})
	assert.ErrorIs(t, err, ErrDuplicateCode)

	updated, err := svc.UpdateEmployee(ctx, emp.ID, EmployeeInput{Code: "EMP011", Name: "Alma B", SupervisorID: f.SupervisorID})
	require.NoError(t, err)
	assert.Equal(t, "EMP011", updated.Code)
	assert.Equal(t, "Alma B", updated.Name)

	list, err := svc.ListEmployees(ctx, EmployeeFilter{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "Alma B", list[0].Name)

	require.NoError(t, svc.ArchiveEmployee(ctx, emp.ID))
	got, err := svc.GetEmployee(ctx, emp.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.ArchivedAt)

	_, err = svc.GetEmployee(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestImportEmployees(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	input := strings.Join([]string{
		"\ufeffName,Code,Supervisor Email",
		"Ana,EMP020,sup@example.com",
		"Bo,EMP021,SUP@example.com",
		"Cy,EMP001,sup@example.com",
		"Di,EMP022,ghost@example.com",
		"Ed,EMP023",
		"F,EMP024,sup@example.com",
	}, "\n")

	result, err := svc.ImportEmployees(ctx, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)

	lines := make([]int, 0, len(result.Errors))
	for _, e := range result.Errors {
		lines = append(lines, e.Line)
	}
	assert.Equal(t, []int{4, 5, 6, 7}, lines)
	assert.Contains(t, result.Errors[0].Message, "EMP001")
	assert.Contains(t, result.Errors[1].Message, "ghost@example.com")
}
