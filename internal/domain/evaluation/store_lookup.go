package evaluation

import (
	"context"
	"fmt"
	"time"

	"evalhub/internal/platform/querier"
)

func (s *Store) Subject(ctx context.Context, employeeID string) (Subject, error) {
	var sub Subject
	var archivedAt *time.Time
	err := s.DB.QueryRow(ctx, `
    SELECT id, name, code, supervisor_id, archived_at
    FROM employees
    WHERE id = $1
  `, employeeID).Scan(&sub.ID, &sub.Name, &sub.Code, &sub.SupervisorID, &archivedAt)
	if querier.IsNoRows(err) {
		return Subject{}, fmt.Errorf("employee %s: %w", employeeID, ErrNotFound)
	}
	if err != nil {
		return Subject{}, fmt.Errorf("read employee: %w", err)
	}
	sub.Archived = archivedAt != nil
	return sub, nil
}

func (s *Store) Actor(ctx context.Context, supervisorID string) (Actor, error) {
	var actor Actor
	var archivedAt *time.Time
	err := s.DB.QueryRow(ctx, `
    SELECT id, email, role, archived_at
    FROM supervisors
    WHERE id = $1
  `, supervisorID).Scan(&actor.ID, &actor.Email, &actor.Role, &archivedAt)
	if querier.IsNoRows(err) {
		return Actor{}, fmt.Errorf("supervisor %s: %w", supervisorID, ErrNotFound)
	}
	if err != nil {
		return Actor{}, fmt.Errorf("read supervisor: %w", err)
	}
	actor.Archived = archivedAt != nil
	return actor, nil
}

// ActiveQuestions returns active questions with their answers, in display order.
func (s *Store) ActiveQuestions(ctx context.Context) ([]QuestionSpec, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, question_text, order_index
    FROM evaluation_questions
    WHERE is_active = TRUE
    ORDER BY order_index, id
  `)
	if err != nil {
		return nil, fmt.Errorf("list active questions: %w", err)
	}
	defer rows.Close()

	var out []QuestionSpec
	index := map[string]int{}
	for rows.Next() {
		var q QuestionSpec
		if err := rows.Scan(&q.ID, &q.Text, &q.OrderIndex); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		index[q.ID] = len(out)
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	if len(out) == 0 {
		return out, nil
	}

	answerRows, err := s.DB.Query(ctx, `
    SELECT a.question_id, a.id, a.answer_text, a.score
    FROM question_answers a
    JOIN evaluation_questions q ON q.id = a.question_id
    WHERE q.is_active = TRUE
    ORDER BY a.question_id, a.order_index, a.id
  `)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer answerRows.Close()
	for answerRows.Next() {
		var questionID string
		var a AnswerSpec
		if err := answerRows.Scan(&questionID, &a.ID, &a.Text, &a.Score); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		if i, ok := index[questionID]; ok {
			out[i].Answers = append(out[i].Answers, a)
		}
	}
	return out, answerRows.Err()
}
