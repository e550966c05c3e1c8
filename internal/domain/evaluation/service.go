package evaluation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"evalhub/internal/domain/validation"
)

const maxNotesLength = 1000

type Service struct {
	store    StoreAPI
	gate     *Gate
	clock    Clock
	resolver PeriodResolver
}

func NewService(store StoreAPI, gate *Gate, clock Clock, loc *time.Location) *Service {
	if clock == nil {
		clock = SystemClock
	}
	if gate == nil {
		gate = NewGate(store, clock)
	}
	return &Service{
		store:    store,
		gate:     gate,
		clock:    clock,
		resolver: NewPeriodResolver(loc),
	}
}

func (s *Service) Gate() *Gate {
	return s.gate
}

func (s *Service) CurrentPeriod() Period {
	return s.resolver.Resolve(s.clock.Now())
}

// Submit validates a submission against the directory and question bank and
// appends it to the period the clock currently resolves to.
func (s *Service) Submit(ctx context.Context, sub Submission) (Record, error) {
	open, err := s.gate.CanSubmit(ctx)
	if err != nil {
		return Record{}, err
	}
	if !open {
		return Record{}, ErrGateClosed
	}

	record, err := s.prepare(ctx, sub)
	if err != nil {
		return Record{}, err
	}
	return s.Append(ctx, record)
}

// Append stamps the record with the current period and stores it together
// with its bucket. Callers are expected to have consulted the gate; the store
// refuses the write, and creates nothing, if it is closed.
func (s *Service) Append(ctx context.Context, record Record) (Record, error) {
	now := stamp(s.clock)
	period := s.resolver.Resolve(now)
	if err := period.Validate(); err != nil {
		return Record{}, err
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = now
	record.Year = period.Year
	record.Month = period.Month
	if record.Responses == nil {
		record.Responses = []Response{}
	}
	for i := range record.Responses {
		if record.Responses[i].ID == "" {
			record.Responses[i].ID = uuid.NewString()
		}
	}

	stored, err := s.store.AppendRecord(ctx, record, uuid.NewString())
	if err != nil {
		return Record{}, err
	}
	return stored, nil
}

func (s *Service) GetOrCreateBucket(ctx context.Context, period Period) (Bucket, error) {
	if err := period.Validate(); err != nil {
		return Bucket{}, err
	}
	bucket, _, err := s.store.GetOrCreateBucket(ctx, uuid.NewString(), period, stamp(s.clock))
	if err != nil {
		return Bucket{}, fmt.Errorf("get or create bucket: %w", err)
	}
	return bucket, nil
}

func (s *Service) Query(ctx context.Context, filter Filter) ([]Record, error) {
	var b validation.Builder
	if filter.Year < 0 || filter.Year > 9999 {
		b.Add("year", "must be between 1 and 9999")
	}
	if filter.Month < 0 || filter.Month > 12 {
		b.Add("month", "must be between 1 and 12")
	}
	if err := b.Err(); err != nil {
		return nil, err
	}
	return s.store.QueryRecords(ctx, filter)
}

// QueryByPeriod narrows filter to one period; other filter fields still apply.
func (s *Service) QueryByPeriod(ctx context.Context, period Period, filter Filter) ([]Record, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	filter.Year = period.Year
	filter.Month = period.Month
	return s.store.QueryRecords(ctx, filter)
}

func (s *Service) QueryByBucket(ctx context.Context, bucketID string) ([]Record, error) {
	return s.store.RecordsByBucket(ctx, bucketID)
}

func (s *Service) Get(ctx context.Context, recordID string) (Record, error) {
	return s.store.GetRecord(ctx, recordID)
}

func (s *Service) GetBucket(ctx context.Context, bucketID string) (Bucket, error) {
	return s.store.GetBucket(ctx, bucketID)
}

func (s *Service) ListBuckets(ctx context.Context) ([]Bucket, error) {
	return s.store.ListBuckets(ctx)
}

func (s *Service) Subject(ctx context.Context, employeeID string) (Subject, error) {
	return s.store.Subject(ctx, employeeID)
}

func (s *Service) prepare(ctx context.Context, sub Submission) (Record, error) {
	var b validation.Builder
	b.MaxLength("notes", sub.Notes, maxNotesLength)

	var subject Subject
	b.Required("employeeId", sub.SubjectID)
	if sub.SubjectID != "" {
		var err error
		subject, err = s.store.Subject(ctx, sub.SubjectID)
		switch {
		case errors.Is(err, ErrNotFound):
			b.Add("employeeId", "does not exist")
		case err != nil:
			return Record{}, err
		case subject.Archived:
			b.Add("employeeId", "is archived")
		}
	}

	actor, err := s.store.Actor(ctx, sub.ActorID)
	switch {
	case errors.Is(err, ErrNotFound):
		b.Add("supervisorId", "does not exist")
	case err != nil:
		return Record{}, err
	case actor.Archived:
		b.Add("supervisorId", "is archived")
	}

	questions, err := s.store.ActiveQuestions(ctx)
	if err != nil {
		return Record{}, err
	}
	if len(questions) == 0 {
		b.Add("answers", "no active questions are configured")
	}

	responses := make([]Response, 0, len(questions))
	known := make(map[string]bool, len(questions))
	for _, q := range questions {
		known[q.ID] = true
		if len(q.Answers) == 0 {
			continue
		}
		field := "answers." + q.ID
		answerID := sub.Answers[q.ID]
		if answerID == "" {
			b.Required(field, answerID)
			continue
		}
		answer, ok := findAnswer(q.Answers, answerID)
		if !ok {
			b.Add(field, "is not an answer to this question")
			continue
		}
		responses = append(responses, Response{
			QuestionID:    q.ID,
			AnswerID:      answer.ID,
			QuestionText:  q.Text,
			QuestionOrder: q.OrderIndex,
			AnswerText:    answer.Text,
			Score:         answer.Score,
		})
	}
	for questionID := range sub.Answers {
		if !known[questionID] {
			b.Add("answers."+questionID, "is not an active question")
		}
	}

	if err := b.Err(); err != nil {
		return Record{}, err
	}
	return Record{
		Notes:           sub.Notes,
		SupervisorID:    actor.ID,
		EmployeeID:      subject.ID,
		SupervisorEmail: actor.Email,
		EmployeeName:    subject.Name,
		EmployeeCode:    subject.Code,
		Responses:       responses,
	}, nil
}

func findAnswer(answers []AnswerSpec, id string) (AnswerSpec, bool) {
	for _, a := range answers {
		if a.ID == id {
			return a, true
		}
	}
	return AnswerSpec{}, false
}
