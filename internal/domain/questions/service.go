package questions

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"evalhub/internal/domain/validation"
)

type Service struct {
	store StoreAPI
	now   func() time.Time
}

func NewService(store StoreAPI) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

func checkAnswer(b *validation.Builder, field string, in AnswerInput) {
	b.Length(field+".text", in.Text, 1, 200)
	if in.Score != nil && (*in.Score < 0 || *in.Score > 100) {
		b.Add(field+".score", "must be between 0 and 100")
	}
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]Question, error) {
	return s.store.List(ctx, activeOnly)
}

func (s *Service) Get(ctx context.Context, id string) (Question, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, in QuestionInput) (Question, error) {
	var b validation.Builder
	b.Length("text", in.Text, 5, 500)
	for i, a := range in.Answers {
		checkAnswer(&b, "answers."+strconv.Itoa(i), a)
	}
	if err := b.Err(); err != nil {
		return Question{}, err
	}

	now := s.now()
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	q := Question{
		ID:         uuid.NewString(),
		Text:       strings.TrimSpace(in.Text),
		Active:     active,
		OrderIndex: in.OrderIndex,
		CreatedAt:  now,
		UpdatedAt:  now,
		Answers:    []Answer{},
	}
	for i, a := range in.Answers {
		order := a.OrderIndex
		if order == 0 {
			order = i + 1
		}
		q.Answers = append(q.Answers, Answer{
			ID:         uuid.NewString(),
			QuestionID: q.ID,
			Text:       strings.TrimSpace(a.Text),
			Score:      a.Score,
			OrderIndex: order,
		})
	}
	if err := s.store.Create(ctx, q); err != nil {
		return Question{}, err
	}
	return s.store.Get(ctx, q.ID)
}

// Update edits text, order and active flag. Answers are managed separately.
func (s *Service) Update(ctx context.Context, id string, in QuestionInput) (Question, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return Question{}, err
	}
	var b validation.Builder
	b.Length("text", in.Text, 5, 500)
	if err := b.Err(); err != nil {
		return Question{}, err
	}
	active := current.Active
	if in.Active != nil {
		active = *in.Active
	}
	if err := s.store.Update(ctx, id, strings.TrimSpace(in.Text), active, in.OrderIndex, s.now()); err != nil {
		return Question{}, err
	}
	return s.store.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

func (s *Service) AddAnswer(ctx context.Context, questionID string, in AnswerInput) (Answer, error) {
	question, err := s.store.Get(ctx, questionID)
	if err != nil {
		return Answer{}, err
	}
	var b validation.Builder
	checkAnswer(&b, "answer", in)
	if err := b.Err(); err != nil {
		return Answer{}, err
	}
	order := in.OrderIndex
	if order == 0 {
		order = len(question.Answers) + 1
	}
	a := Answer{
		ID:         uuid.NewString(),
		QuestionID: questionID,
		Text:       strings.TrimSpace(in.Text),
		Score:      in.Score,
		OrderIndex: order,
	}
	if err := s.store.AddAnswer(ctx, a); err != nil {
		return Answer{}, err
	}
	return a, nil
}

func (s *Service) UpdateAnswer(ctx context.Context, id string, in AnswerInput) (Answer, error) {
	current, err := s.store.GetAnswer(ctx, id)
	if err != nil {
		return Answer{}, err
	}
	var b validation.Builder
	checkAnswer(&b, "answer", in)
	if err := b.Err(); err != nil {
		return Answer{}, err
	}
	order := in.OrderIndex
	if order == 0 {
		order = current.OrderIndex
	}
	if err := s.store.UpdateAnswer(ctx, id, strings.TrimSpace(in.Text), in.Score, order); err != nil {
		return Answer{}, err
	}
	return s.store.GetAnswer(ctx, id)
}

func (s *Service) DeleteAnswer(ctx context.Context, id string) error {
	return s.store.DeleteAnswer(ctx, id)
}
