package directory

import (
	"context"
	"time"
)

type StoreAPI interface {
	CreateSupervisor(ctx context.Context, sup Supervisor, passwordHash string) error
	UpdateSupervisor(ctx context.Context, id, name, email string) error
	SetSupervisorPassword(ctx context.Context, id, passwordHash string) error
	ArchiveSupervisor(ctx context.Context, id string, at time.Time) error
	GetSupervisor(ctx context.Context, id string) (Supervisor, error)
	SupervisorByEmail(ctx context.Context, email string) (Supervisor, error)
	ListSupervisors(ctx context.Context, filter SupervisorFilter) ([]Supervisor, error)

	CreateEmployee(ctx context.Context, emp Employee) error
	UpdateEmployee(ctx context.Context, id string, in EmployeeInput) error
	ArchiveEmployee(ctx context.Context, id string, at time.Time) error
	GetEmployee(ctx context.Context, id string) (Employee, error)
	ListEmployees(ctx context.Context, filter EmployeeFilter) ([]Employee, error)
}
