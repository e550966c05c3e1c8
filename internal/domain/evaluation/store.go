package evaluation

import "evalhub/internal/platform/querier"

type Store struct {
	DB querier.DB
}

func NewStore(db querier.DB) *Store {
	return &Store{DB: db}
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
