package notifications

import (
	"context"

	"evalhub/internal/platform/querier"
)

type Store struct {
	DB querier.DB
}

func NewStore(db querier.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) ActiveSupervisorEmails(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT email
    FROM supervisors
    WHERE role = $1 AND archived_at IS NULL
    ORDER BY email
  `, "supervisor")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		out = append(out, email)
	}
	return out, rows.Err()
}
