package questions

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

func (s *Store) List(ctx context.Context, activeOnly bool) ([]Question, error) {
	query := `
    SELECT id, question_text, is_active, order_index, created_at, updated_at
    FROM evaluation_questions`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY order_index, id`

	rows, err := s.DB.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	out := []Question{}
	index := map[string]int{}
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.Text, &q.Active, &q.OrderIndex, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.CreatedAt = q.CreatedAt.UTC()
		q.UpdatedAt = q.UpdatedAt.UTC()
		q.Answers = []Answer{}
		index[q.ID] = len(out)
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	answers, err := s.answers(ctx, "", "")
	if err != nil {
		return nil, err
	}
	for _, a := range answers {
		if i, ok := index[a.QuestionID]; ok {
			out[i].Answers = append(out[i].Answers, a)
		}
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (Question, error) {
	var q Question
	err := s.DB.QueryRow(ctx, `
    SELECT id, question_text, is_active, order_index, created_at, updated_at
    FROM evaluation_questions
    WHERE id = $1
  `, id).Scan(&q.ID, &q.Text, &q.Active, &q.OrderIndex, &q.CreatedAt, &q.UpdatedAt)
	if querier.IsNoRows(err) {
		return Question{}, ErrNotFound
	}
	if err != nil {
		return Question{}, fmt.Errorf("read question: %w", err)
	}
	q.CreatedAt = q.CreatedAt.UTC()
	q.UpdatedAt = q.UpdatedAt.UTC()
	q.Answers, err = s.answers(ctx, "a.question_id = $1", id)
	if err != nil {
		return Question{}, err
	}
	return q, nil
}

func (s *Store) answers(ctx context.Context, where string, arg string) ([]Answer, error) {
	query := `SELECT a.id, a.question_id, a.answer_text, a.score, a.order_index FROM question_answers a`
	var args []any
	if where != "" {
		query += " WHERE " + where
		args = append(args, arg)
	}
	query += " ORDER BY a.question_id, a.order_index, a.id"
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()
	out := []Answer{}
	for rows.Next() {
		var a Answer
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.Text, &a.Score, &a.OrderIndex); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) Create(ctx context.Context, q Question) error {
	return s.DB.InTx(ctx, querier.TxOptions{}, func(tx querier.Querier) error {
		if _, err := tx.Exec(ctx, `
      INSERT INTO evaluation_questions (id, question_text, is_active, order_index, created_at, updated_at)
      VALUES ($1, $2, $3, $4, $5, $6)
    `, q.ID, q.Text, q.Active, q.OrderIndex, q.CreatedAt, q.UpdatedAt); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		for _, a := range q.Answers {
			if err := insertAnswer(ctx, tx, a); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Update(ctx context.Context, id, text string, active bool, orderIndex int, at time.Time) error {
	n, err := s.DB.Exec(ctx, `
    UPDATE evaluation_questions
    SET question_text = $1, is_active = $2, order_index = $3, updated_at = $4
    WHERE id = $5
  `, text, active, orderIndex, at, id)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the question and its answers. Stored evaluation responses
// keep their own copies of the texts.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.DB.InTx(ctx, querier.TxOptions{}, func(tx querier.Querier) error {
		if _, err := tx.Exec(ctx, "DELETE FROM question_answers WHERE question_id = $1", id); err != nil {
			return fmt.Errorf("delete answers: %w", err)
		}
		n, err := tx.Exec(ctx, "DELETE FROM evaluation_questions WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("delete question: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *Store) AddAnswer(ctx context.Context, a Answer) error {
	return insertAnswer(ctx, s.DB, a)
}

func insertAnswer(ctx context.Context, q querier.Querier, a Answer) error {
	if _, err := q.Exec(ctx, `
    INSERT INTO question_answers (id, question_id, answer_text, score, order_index)
    VALUES ($1, $2, $3, $4, $5)
  `, a.ID, a.QuestionID, a.Text, a.Score, a.OrderIndex); err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

func (s *Store) GetAnswer(ctx context.Context, id string) (Answer, error) {
	var a Answer
	err := s.DB.QueryRow(ctx, `
    SELECT id, question_id, answer_text, score, order_index
    FROM question_answers
    WHERE id = $1
  `, id).Scan(&a.ID, &a.QuestionID, &a.Text, &a.Score, &a.OrderIndex)
	if querier.IsNoRows(err) {
		return Answer{}, ErrNotFound
	}
	if err != nil {
		return Answer{}, fmt.Errorf("read answer: %w", err)
	}
	return a, nil
}

func (s *Store) UpdateAnswer(ctx context.Context, id, text string, score *int, orderIndex int) error {
	n, err := s.DB.Exec(ctx, `
    UPDATE question_answers SET answer_text = $1, score = $2, order_index = $3 WHERE id = $4
  `, text, score, orderIndex, id)
	if err != nil {
		return fmt.Errorf("update answer: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAnswer(ctx context.Context, id string) error {
	n, err := s.DB.Exec(ctx, "DELETE FROM question_answers WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete answer: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
