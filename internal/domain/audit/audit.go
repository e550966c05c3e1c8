package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"evalhub/internal/platform/querier"
)

const (
	ActionGateEnabled        = "evaluations.gate_enabled"
	ActionGateDisabled       = "evaluations.gate_disabled"
	ActionEvaluationSubmit   = "evaluations.submit"
	ActionEvaluationExport   = "evaluations.export"
	ActionSupervisorCreate   = "supervisors.create"
	ActionSupervisorUpdate   = "supervisors.update"
	ActionSupervisorPassword = "supervisors.password"
	ActionSupervisorArchive  = "supervisors.archive"
	ActionEmployeeCreate     = "employees.create"
	ActionEmployeeUpdate     = "employees.update"
	ActionEmployeeArchive    = "employees.archive"
	ActionEmployeeImport     = "employees.import"
	ActionQuestionCreate     = "questions.create"
	ActionQuestionUpdate     = "questions.update"
	ActionQuestionDelete     = "questions.delete"
	ActionAnswerCreate       = "answers.create"
	ActionAnswerUpdate       = "answers.update"
	ActionAnswerDelete       = "answers.delete"
)

type Event struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actorId"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	RequestID  string          `json:"requestId"`
	IP         string          `json:"ip"`
	CreatedAt  time.Time       `json:"createdAt"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
}

type Filter struct {
	Action     string
	EntityType string
	ActorID    string
}

type Service struct {
	DB  querier.DB
	now func() time.Time
}

func New(db querier.DB) *Service {
	return &Service{DB: db, now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }}
}

func marshalOptional(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(payload)
	return &s, nil
}

func (s *Service) Record(ctx context.Context, actorID, action, entityType, entityID, requestID, ip string, before, after any) error {
	beforeJSON, err := marshalOptional(before)
	if err != nil {
		return err
	}
	afterJSON, err := marshalOptional(after)
	if err != nil {
		return err
	}

	_, err = s.DB.Exec(ctx, `
    INSERT INTO audit_events (id, actor_id, action, entity_type, entity_id, request_id, ip, before_json, after_json, created_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
  `, uuid.NewString(), actorID, action, entityType, entityID, requestID, ip, beforeJSON, afterJSON, s.now())
	return err
}

func (s *Service) Count(ctx context.Context, filter Filter) (int, error) {
	query, args := buildBaseQuery("SELECT COUNT(*)", filter)
	var total int64
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return int(total), nil
}

func (s *Service) List(ctx context.Context, filter Filter, includeDetails bool, limit, offset int) ([]Event, error) {
	query, args := buildBaseQuery("SELECT id, actor_id, action, entity_type, entity_id, request_id, ip, created_at, before_json, after_json", filter)
	query += " ORDER BY created_at DESC, id DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)
	return s.list(ctx, query, args, includeDetails)
}

func (s *Service) ListExport(ctx context.Context) ([]Event, error) {
	query, args := buildBaseQuery("SELECT id, actor_id, action, entity_type, entity_id, request_id, ip, created_at, before_json, after_json", Filter{})
	query += " ORDER BY created_at DESC, id DESC"
	return s.list(ctx, query, args, false)
}

func (s *Service) list(ctx context.Context, query string, args []any, includeDetails bool) ([]Event, error) {
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var evt Event
		var before, after *string
		if err := rows.Scan(&evt.ID, &evt.ActorID, &evt.Action, &evt.EntityType, &evt.EntityID,
			&evt.RequestID, &evt.IP, &evt.CreatedAt, &before, &after); err != nil {
			return nil, err
		}
		evt.CreatedAt = evt.CreatedAt.UTC()
		if includeDetails {
			if before != nil {
				evt.Before = json.RawMessage(*before)
			}
			if after != nil {
				evt.After = json.RawMessage(*after)
			}
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func buildBaseQuery(prefix string, filter Filter) (string, []any) {
	query := prefix + " FROM audit_events WHERE 1 = 1"
	var args []any
	if filter.Action != "" {
		args = append(args, filter.Action)
		query += " AND action = $" + strconv.Itoa(len(args))
	}
	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		query += " AND entity_type = $" + strconv.Itoa(len(args))
	}
	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		query += " AND actor_id = $" + strconv.Itoa(len(args))
	}
	return query, args
}
