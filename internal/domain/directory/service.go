package directory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"evalhub/internal/domain/auth"
	"evalhub/internal/domain/validation"
)

type Options struct {
	AllowedDomain   string
	DefaultPassword string
}

type Service struct {
	store    StoreAPI
	opts     Options
	now      func() time.Time
	validate *validator.Validate
}

func NewService(store StoreAPI, opts Options) *Service {
	opts.AllowedDomain = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(opts.AllowedDomain), "@"))
	return &Service{
		store:    store,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		validate: validator.New(),
	}
}

func (s *Service) checkEmail(b *validation.Builder, email string) {
	if email == "" {
		b.Add("email", "is required")
		return
	}
	if err := s.validate.Var(email, "email"); err != nil {
		b.Add("email", "must be a valid email address")
		return
	}
	if s.opts.AllowedDomain != "" && !strings.HasSuffix(email, "@"+s.opts.AllowedDomain) {
		b.Add("email", "must belong to @"+s.opts.AllowedDomain)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) CreateSupervisor(ctx context.Context, managerID string, in SupervisorInput) (Supervisor, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	var b validation.Builder
	b.Length("name", in.Name, 2, 100)
	s.checkEmail(&b, in.Email)
	password := in.Password
	if password == "" {
		password = s.opts.DefaultPassword
	}
	if err := auth.ValidatePassword("password", password); err != nil {
		return Supervisor{}, err
	}
	if err := b.Err(); err != nil {
		return Supervisor{}, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return Supervisor{}, err
	}
	sup := Supervisor{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Email:     in.Email,
		Role:      auth.RoleSupervisor,
		ManagerID: managerID,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateSupervisor(ctx, sup, hash); err != nil {
		return Supervisor{}, err
	}
	return sup, nil
}

func (s *Service) UpdateSupervisor(ctx context.Context, id string, in SupervisorInput) (Supervisor, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	var b validation.Builder
	b.Length("name", in.Name, 2, 100)
	s.checkEmail(&b, in.Email)
	if err := b.Err(); err != nil {
		return Supervisor{}, err
	}
	if err := s.store.UpdateSupervisor(ctx, id, in.Name, in.Email); err != nil {
		return Supervisor{}, err
	}
	return s.store.GetSupervisor(ctx, id)
}

func (s *Service) SetPassword(ctx context.Context, id, password, confirm string) error {
	if err := auth.ValidatePassword("password", password); err != nil {
		return err
	}
	if password != confirm {
		return validation.New("confirmPassword", "must match password")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	return s.store.SetSupervisorPassword(ctx, id, hash)
}

func (s *Service) ArchiveSupervisor(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return ErrSelfArchive
	}
	return s.store.ArchiveSupervisor(ctx, id, s.now())
}

func (s *Service) GetSupervisor(ctx context.Context, id string) (Supervisor, error) {
	return s.store.GetSupervisor(ctx, id)
}

func (s *Service) ListSupervisors(ctx context.Context, filter SupervisorFilter) ([]Supervisor, error) {
	return s.store.ListSupervisors(ctx, filter)
}

func (s *Service) validateEmployee(ctx context.Context, in *EmployeeInput) error {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	var b validation.Builder
	b.Length("code", in.Code, 3, 20)
	b.Length("name", in.Name, 2, 100)
	b.Required("supervisorId", in.SupervisorID)
	if in.SupervisorID != "" {
		sup, err := s.store.GetSupervisor(ctx, in.SupervisorID)
		switch {
		case errors.Is(err, ErrNotFound):
			b.Add("supervisorId", "does not exist")
		case err != nil:
			return err
		case sup.ArchivedAt != nil:
			b.Add("supervisorId", "is archived")
		}
	}
	return b.Err()
}

func (s *Service) CreateEmployee(ctx context.Context, in EmployeeInput) (Employee, error) {
	if err := s.validateEmployee(ctx, &in); err != nil {
		return Employee{}, err
	}
	emp := Employee{
		ID:           uuid.NewString(),
		Code:         in.Code,
		Name:         in.Name,
		SupervisorID: in.SupervisorID,
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateEmployee(ctx, emp); err != nil {
		return Employee{}, err
	}
	return s.store.GetEmployee(ctx, emp.ID)
}

func (s *Service) UpdateEmployee(ctx context.Context, id string, in EmployeeInput) (Employee, error) {
	if err := s.validateEmployee(ctx, &in); err != nil {
		return Employee{}, err
	}
	if err := s.store.UpdateEmployee(ctx, id, in); err != nil {
		return Employee{}, err
	}
	return s.store.GetEmployee(ctx, id)
}

func (s *Service) ArchiveEmployee(ctx context.Context, id string) error {
	return s.store.ArchiveEmployee(ctx, id, s.now())
}

func (s *Service) GetEmployee(ctx context.Context, id string) (Employee, error) {
	return s.store.GetEmployee(ctx, id)
}

func (s *Service) ListEmployees(ctx context.Context, filter EmployeeFilter) ([]Employee, error) {
	return s.store.ListEmployees(ctx, filter)
}

// ImportEmployees reads name, code, supervisor email rows. Each row stands on
// its own: failures are reported by line and the rest are still created.
func (s *Service) ImportEmployees(ctx context.Context, r io.Reader) (ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	result := ImportResult{Errors: []ImportError{}}
	supervisors := map[string]string{}
	first := true
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				result.Errors = append(result.Errors, ImportError{Line: parseErr.Line, Message: parseErr.Err.Error()})
				continue
			}
			return result, err
		}
		line, _ := reader.FieldPos(0)
		isFirst := first
		first = false
		if isFirst && len(row) > 0 && strings.Contains(strings.ToLower(strings.TrimPrefix(row[0], "\ufeff")), "name") {
			continue
		}
		if len(row) < 3 {
			result.Errors = append(result.Errors, ImportError{Line: line, Message: "not enough columns"})
			continue
		}

		email := normalizeEmail(row[2])
		supervisorID, ok := supervisors[email]
		if !ok {
			sup, err := s.store.SupervisorByEmail(ctx, email)
			if errors.Is(err, ErrNotFound) || (err == nil && sup.ArchivedAt != nil) {
				result.Errors = append(result.Errors, ImportError{Line: line, Message: fmt.Sprintf("supervisor %s not found", email)})
				continue
			}
			if err != nil {
				return result, err
			}
			supervisorID = sup.ID
			supervisors[email] = supervisorID
		}

		_, err = s.CreateEmployee(ctx, EmployeeInput{Name: row[0], Code: row[1], SupervisorID: supervisorID})
		if err != nil {
			var verr *validation.Error
			switch {
			case errors.As(err, &verr):
				result.Errors = append(result.Errors, ImportError{Line: line, Message: verr.Error()})
			case errors.Is(err, ErrDuplicateCode):
				result.Errors = append(result.Errors, ImportError{Line: line, Message: fmt.Sprintf("code %s already exists", strings.TrimSpace(row[1]))})
			default:
				return result, err
			}
			continue
		}
		result.Created++
	}
	return result, nil
}
