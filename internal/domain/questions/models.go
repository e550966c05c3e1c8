package questions

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("question not found")

type Question struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Active     bool      `json:"active"`
	OrderIndex int       `json:"orderIndex"`
	Answers    []Answer  `json:"answers"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type Answer struct {
	ID         string `json:"id"`
	QuestionID string `json:"questionId"`
	Text       string `json:"text"`
	Score      *int   `json:"score"`
	OrderIndex int    `json:"orderIndex"`
}

type QuestionInput struct {
	Text       string
	Active     *bool
	OrderIndex int
	Answers    []AnswerInput
}

type AnswerInput struct {
	Text       string
	Score      *int
	OrderIndex int
}
