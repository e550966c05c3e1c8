package evaluation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"evalhub/internal/platform/querier"
)

const recordColumns = `e.id, e.created_at, e.notes, e.year, e.month, e.supervisor_id, e.employee_id,
  e.bucket_id, e.supervisor_email, e.employee_name, e.employee_code`

const (
	orderNewestFirst = "e.created_at DESC, e.id DESC"
	orderOldestFirst = "e.created_at ASC, e.id ASC"
)

// AppendRecord reads the gate, resolves the record's bucket and writes the
// record with its responses in one transaction. A closed gate leaves no trace,
// not even a bucket. newBucketID is used only if the bucket does not exist yet.
func (s *Store) AppendRecord(ctx context.Context, record Record, newBucketID string) (Record, error) {
	err := s.DB.InTx(ctx, querier.TxOptions{}, func(q querier.Querier) error {
		var enabled bool
		err := q.QueryRow(ctx, `SELECT enabled FROM evaluation_gate WHERE id = 1`).Scan(&enabled)
		if err != nil && !querier.IsNoRows(err) {
			return fmt.Errorf("read gate: %w", err)
		}
		if !enabled {
			return ErrGateClosed
		}

		bucket, _, err := getOrCreateBucket(ctx, q, newBucketID, record.Period(), record.CreatedAt)
		if err != nil {
			return err
		}
		record.BucketID = bucket.ID

		if _, err := q.Exec(ctx, `
      INSERT INTO evaluations (
        id, created_at, notes, year, month, supervisor_id, employee_id,
        bucket_id, supervisor_email, employee_name, employee_code
      )
      VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, record.ID, record.CreatedAt, record.Notes, record.Year, record.Month,
			record.SupervisorID, record.EmployeeID, record.BucketID,
			record.SupervisorEmail, record.EmployeeName, record.EmployeeCode); err != nil {
			return fmt.Errorf("insert evaluation: %w", err)
		}

		for _, resp := range record.Responses {
			id := resp.ID
			if id == "" {
				id = uuid.NewString()
			}
			if _, err := q.Exec(ctx, `
        INSERT INTO evaluation_responses (
          id, evaluation_id, question_id, answer_id, question_text,
          question_order, answer_text, score, created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
      `, id, record.ID, resp.QuestionID, resp.AnswerID, resp.QuestionText,
				resp.QuestionOrder, resp.AnswerText, resp.Score, record.CreatedAt); err != nil {
				return fmt.Errorf("insert evaluation response: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return record, nil
}

func (s *Store) GetRecord(ctx context.Context, recordID string) (Record, error) {
	records, err := listRecords(ctx, s.DB, "e.id = $1", []any{recordID}, orderNewestFirst)
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, fmt.Errorf("evaluation %s: %w", recordID, ErrNotFound)
	}
	return records[0], nil
}

func (s *Store) QueryRecords(ctx context.Context, filter Filter) ([]Record, error) {
	where, args := filterClause(filter)
	return listRecords(ctx, s.DB, where, args, orderNewestFirst)
}

func (s *Store) RecordsByBucket(ctx context.Context, bucketID string) ([]Record, error) {
	if _, err := bucketByID(ctx, s.DB, bucketID); err != nil {
		return nil, err
	}
	return listRecords(ctx, s.DB, "e.bucket_id = $1", []any{bucketID}, orderNewestFirst)
}

// ExportSnapshot reads the bucket and its records, oldest first, inside a
// read-only transaction.
func (s *Store) ExportSnapshot(ctx context.Context, bucketID string) (Bucket, []Record, error) {
	var bucket Bucket
	var records []Record
	err := s.DB.InTx(ctx, querier.TxOptions{ReadOnly: true}, func(q querier.Querier) error {
		var err error
		bucket, err = bucketByID(ctx, q, bucketID)
		if err != nil {
			return err
		}
		records, err = listRecords(ctx, q, "e.bucket_id = $1", []any{bucketID}, orderOldestFirst)
		return err
	})
	if err != nil {
		return Bucket{}, nil, err
	}
	return bucket, records, nil
}

func filterClause(filter Filter) (string, []any) {
	var conds []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		conds = append(conds, column+" = $"+strconv.Itoa(len(args)))
	}
	if filter.Year != 0 {
		add("e.year", filter.Year)
	}
	if filter.Month != 0 {
		add("e.month", filter.Month)
	}
	if filter.SupervisorID != "" {
		add("e.supervisor_id", filter.SupervisorID)
	}
	if filter.EmployeeID != "" {
		add("e.employee_id", filter.EmployeeID)
	}
	if len(conds) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(conds, " AND "), args
}

func listRecords(ctx context.Context, q querier.Querier, where string, args []any, order string) ([]Record, error) {
	rows, err := q.Query(ctx, `
    SELECT `+recordColumns+`
    FROM evaluations e
    WHERE `+where+`
    ORDER BY `+order, args...)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	index := map[string]int{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Notes, &r.Year, &r.Month, &r.SupervisorID,
			&r.EmployeeID, &r.BucketID, &r.SupervisorEmail, &r.EmployeeName, &r.EmployeeCode); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		r.CreatedAt = r.CreatedAt.UTC()
		r.Responses = []Response{}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	if len(out) == 0 {
		return out, nil
	}

	respRows, err := q.Query(ctx, `
    SELECT r.evaluation_id, r.id, r.question_id, r.answer_id, r.question_text,
      r.question_order, r.answer_text, r.score
    FROM evaluation_responses r
    WHERE r.evaluation_id IN (SELECT e.id FROM evaluations e WHERE `+where+`)
    ORDER BY r.evaluation_id, r.question_order, r.question_text, r.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query evaluation responses: %w", err)
	}
	defer respRows.Close()
	for respRows.Next() {
		var evaluationID string
		var resp Response
		if err := respRows.Scan(&evaluationID, &resp.ID, &resp.QuestionID, &resp.AnswerID,
			&resp.QuestionText, &resp.QuestionOrder, &resp.AnswerText, &resp.Score); err != nil {
			return nil, fmt.Errorf("scan evaluation response: %w", err)
		}
		if i, ok := index[evaluationID]; ok {
			out[i].Responses = append(out[i].Responses, resp)
		}
	}
	return out, respRows.Err()
}
