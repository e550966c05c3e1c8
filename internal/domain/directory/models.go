package directory

import "time"

type Supervisor struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Role            string     `json:"role"`
	ManagerID       string     `json:"managerId,omitempty"`
	MFAEnabled      bool       `json:"mfaEnabled"`
	CreatedAt       time.Time  `json:"createdAt"`
	ArchivedAt      *time.Time `json:"archivedAt,omitempty"`
	EmployeeCount   int        `json:"employeeCount"`
	EvaluationCount int        `json:"evaluationCount"`
}

type Employee struct {
	ID              string     `json:"id"`
	Code            string     `json:"code"`
	Name            string     `json:"name"`
	SupervisorID    string     `json:"supervisorId"`
	SupervisorName  string     `json:"supervisorName"`
	CreatedAt       time.Time  `json:"createdAt"`
	ArchivedAt      *time.Time `json:"archivedAt,omitempty"`
	EvaluationCount int        `json:"evaluationCount"`
}

type SupervisorInput struct {
	Name     string
	Email    string
	Password string
}

type EmployeeInput struct {
	Code         string
	Name         string
	SupervisorID string
}

type SupervisorFilter struct {
	Role            string
	IncludeArchived bool
}

type EmployeeFilter struct {
	SupervisorID    string
	IncludeArchived bool
}

type ImportError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

type ImportResult struct {
	Created int           `json:"created"`
	Errors  []ImportError `json:"errors"`
}
