package reports

import (
	"context"
	"fmt"
	"time"

	"evalhub/internal/platform/querier"
)

type Store struct {
	DB querier.DB
}

func NewStore(db querier.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int64
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return int(n), nil
}

func (s *Store) ActiveSupervisors(ctx context.Context) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM supervisors WHERE role = $1 AND archived_at IS NULL", "supervisor")
}

func (s *Store) ActiveEmployees(ctx context.Context, supervisorID string) (int, error) {
	if supervisorID == "" {
		return s.count(ctx, "SELECT COUNT(*) FROM employees WHERE archived_at IS NULL")
	}
	return s.count(ctx, "SELECT COUNT(*) FROM employees WHERE archived_at IS NULL AND supervisor_id = $1", supervisorID)
}

func (s *Store) Evaluations(ctx context.Context, supervisorID string) (int, error) {
	if supervisorID == "" {
		return s.count(ctx, "SELECT COUNT(*) FROM evaluations")
	}
	return s.count(ctx, "SELECT COUNT(*) FROM evaluations WHERE supervisor_id = $1", supervisorID)
}

func (s *Store) ActiveQuestions(ctx context.Context) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM evaluation_questions WHERE is_active = TRUE")
}

// AverageScore is the mean of per-evaluation averages over scored responses.
func (s *Store) AverageScore(ctx context.Context) (*float64, error) {
	var avg *float64
	err := s.DB.QueryRow(ctx, `
    SELECT CAST(AVG(t.avg_score) AS DOUBLE PRECISION)
    FROM (
      SELECT AVG(CAST(score AS DOUBLE PRECISION)) AS avg_score
      FROM evaluation_responses
      WHERE score IS NOT NULL
      GROUP BY evaluation_id
    ) t
  `).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("average score: %w", err)
	}
	return avg, nil
}

type RecentEvaluation struct {
	ID           string    `json:"id"`
	EmployeeID   string    `json:"employeeId"`
	EmployeeName string    `json:"employeeName"`
	EmployeeCode string    `json:"employeeCode"`
	Year         int       `json:"year"`
	Month        int       `json:"month"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (s *Store) RecentEvaluations(ctx context.Context, supervisorID string, limit int) ([]RecentEvaluation, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, employee_id, employee_name, employee_code, year, month, created_at
    FROM evaluations
    WHERE supervisor_id = $1
    ORDER BY created_at DESC, id DESC
    LIMIT $2
  `, supervisorID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent evaluations: %w", err)
	}
	defer rows.Close()

	out := []RecentEvaluation{}
	for rows.Next() {
		var r RecentEvaluation
		if err := rows.Scan(&r.ID, &r.EmployeeID, &r.EmployeeName, &r.EmployeeCode, &r.Year, &r.Month, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.CreatedAt = r.CreatedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
