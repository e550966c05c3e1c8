package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"evalhub/internal/platform/querier"
)

type Store struct {
	DB querier.DB
}

func NewStore(db querier.DB) *Store {
	return &Store{DB: db}
}

const supervisorSelect = `
  SELECT s.id, s.name, s.email, s.role, s.manager_id, s.mfa_enabled, s.created_at, s.archived_at,
    (SELECT COUNT(*) FROM employees e WHERE e.supervisor_id = s.id AND e.archived_at IS NULL),
    (SELECT COUNT(*) FROM evaluations v WHERE v.supervisor_id = s.id)
  FROM supervisors s`

func scanSupervisor(row querier.Row) (Supervisor, error) {
	var sup Supervisor
	var managerID *string
	var employees, evaluations int64
	if err := row.Scan(&sup.ID, &sup.Name, &sup.Email, &sup.Role, &managerID, &sup.MFAEnabled,
		&sup.CreatedAt, &sup.ArchivedAt, &employees, &evaluations); err != nil {
		return Supervisor{}, err
	}
	if managerID != nil {
		sup.ManagerID = *managerID
	}
	sup.CreatedAt = sup.CreatedAt.UTC()
	sup.EmployeeCount = int(employees)
	sup.EvaluationCount = int(evaluations)
	return sup, nil
}

func (s *Store) CreateSupervisor(ctx context.Context, sup Supervisor, passwordHash string) error {
	var managerID any
	if sup.ManagerID != "" {
		managerID = sup.ManagerID
	}
	_, err := s.DB.Exec(ctx, `
    INSERT INTO supervisors (id, name, email, password_hash, role, manager_id, created_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7)
  `, sup.ID, sup.Name, sup.Email, passwordHash, sup.Role, managerID, sup.CreatedAt)
	if querier.IsUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("insert supervisor: %w", err)
	}
	return nil
}

func (s *Store) UpdateSupervisor(ctx context.Context, id, name, email string) error {
	n, err := s.DB.Exec(ctx, "UPDATE supervisors SET name = $1, email = $2 WHERE id = $3", name, email, id)
	if querier.IsUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("update supervisor: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetSupervisorPassword(ctx context.Context, id, passwordHash string) error {
	n, err := s.DB.Exec(ctx, "UPDATE supervisors SET password_hash = $1 WHERE id = $2", passwordHash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ArchiveSupervisor archives the supervisor together with their active employees.
func (s *Store) ArchiveSupervisor(ctx context.Context, id string, at time.Time) error {
	return s.DB.InTx(ctx, querier.TxOptions{}, func(q querier.Querier) error {
		n, err := q.Exec(ctx, "UPDATE supervisors SET archived_at = $1 WHERE id = $2 AND archived_at IS NULL", at, id)
		if err != nil {
			return fmt.Errorf("archive supervisor: %w", err)
		}
		if n == 0 {
			var exists int64
			if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM supervisors WHERE id = $1", id).Scan(&exists); err != nil {
				return err
			}
			if exists == 0 {
				return ErrNotFound
			}
			return nil
		}
		if _, err := q.Exec(ctx, "UPDATE employees SET archived_at = $1 WHERE supervisor_id = $2 AND archived_at IS NULL", at, id); err != nil {
			return fmt.Errorf("archive employees: %w", err)
		}
		return nil
	})
}

func (s *Store) GetSupervisor(ctx context.Context, id string) (Supervisor, error) {
	sup, err := scanSupervisor(s.DB.QueryRow(ctx, supervisorSelect+` WHERE s.id = $1`, id))
	if querier.IsNoRows(err) {
		return Supervisor{}, ErrNotFound
	}
	return sup, err
}

func (s *Store) SupervisorByEmail(ctx context.Context, email string) (Supervisor, error) {
	sup, err := scanSupervisor(s.DB.QueryRow(ctx, supervisorSelect+` WHERE s.email = $1`, email))
	if querier.IsNoRows(err) {
		return Supervisor{}, ErrNotFound
	}
	return sup, err
}

func (s *Store) ListSupervisors(ctx context.Context, filter SupervisorFilter) ([]Supervisor, error) {
	var conds []string
	var args []any
	if filter.Role != "" {
		args = append(args, filter.Role)
		conds = append(conds, "s.role = $1")
	}
	if !filter.IncludeArchived {
		conds = append(conds, "s.archived_at IS NULL")
	}
	query := supervisorSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY s.name, s.id"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list supervisors: %w", err)
	}
	defer rows.Close()
	out := []Supervisor{}
	for rows.Next() {
		sup, err := scanSupervisor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sup)
	}
	return out, rows.Err()
}

const employeeSelect = `
  SELECT e.id, e.code, e.name, e.supervisor_id, s.name, e.created_at, e.archived_at,
    (SELECT COUNT(*) FROM evaluations v WHERE v.employee_id = e.id)
  FROM employees e
  JOIN supervisors s ON s.id = e.supervisor_id`

func scanEmployee(row querier.Row) (Employee, error) {
	var emp Employee
	var evaluations int64
	if err := row.Scan(&emp.ID, &emp.Code, &emp.Name, &emp.SupervisorID, &emp.SupervisorName,
		&emp.CreatedAt, &emp.ArchivedAt, &evaluations); err != nil {
		return Employee{}, err
	}
	emp.CreatedAt = emp.CreatedAt.UTC()
	emp.EvaluationCount = int(evaluations)
	return emp, nil
}

func (s *Store) CreateEmployee(ctx context.Context, emp Employee) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO employees (id, code, name, supervisor_id, created_at)
    VALUES ($1, $2, $3, $4, $5)
  `, emp.ID, emp.Code, emp.Name, emp.SupervisorID, emp.CreatedAt)
	if querier.IsUniqueViolation(err) {
		return ErrDuplicateCode
	}
	if err != nil {
		return fmt.Errorf("insert employee: %w", err)
	}
	return nil
}

func (s *Store) UpdateEmployee(ctx context.Context, id string, in EmployeeInput) error {
	n, err := s.DB.Exec(ctx, `
    UPDATE employees SET code = $1, name = $2, supervisor_id = $3 WHERE id = $4
  `, in.Code, in.Name, in.SupervisorID, id)
	if querier.IsUniqueViolation(err) {
		return ErrDuplicateCode
	}
	if err != nil {
		return fmt.Errorf("update employee: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ArchiveEmployee(ctx context.Context, id string, at time.Time) error {
	if _, err := s.GetEmployee(ctx, id); err != nil {
		return err
	}
	if _, err := s.DB.Exec(ctx, "UPDATE employees SET archived_at = $1 WHERE id = $2 AND archived_at IS NULL", at, id); err != nil {
		return fmt.Errorf("archive employee: %w", err)
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, id string) (Employee, error) {
	emp, err := scanEmployee(s.DB.QueryRow(ctx, employeeSelect+` WHERE e.id = $1`, id))
	if querier.IsNoRows(err) {
		return Employee{}, ErrNotFound
	}
	return emp, err
}

func (s *Store) ListEmployees(ctx context.Context, filter EmployeeFilter) ([]Employee, error) {
	var conds []string
	var args []any
	if filter.SupervisorID != "" {
		args = append(args, filter.SupervisorID)
		conds = append(conds, "e.supervisor_id = $1")
	}
	if !filter.IncludeArchived {
		conds = append(conds, "e.archived_at IS NULL")
	}
	query := employeeSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY e.name, e.id"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()
	out := []Employee{}
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, emp)
	}
	return out, rows.Err()
}
