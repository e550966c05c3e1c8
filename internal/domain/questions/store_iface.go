package questions

import (
	"context"
	"time"
)

type StoreAPI interface {
	List(ctx context.Context, activeOnly bool) ([]Question, error)
	Get(ctx context.Context, id string) (Question, error)
	Create(ctx context.Context, q Question) error
	Update(ctx context.Context, id, text string, active bool, orderIndex int, at time.Time) error
	Delete(ctx context.Context, id string) error
	AddAnswer(ctx context.Context, a Answer) error
	GetAnswer(ctx context.Context, id string) (Answer, error)
	UpdateAnswer(ctx context.Context, id, text string, score *int, orderIndex int) error
	DeleteAnswer(ctx context.Context, id string) error
}
