package notifications

import (
	"context"
	"fmt"
	"log/slog"
)

type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

// Enqueuer runs work in the background. jobs.Service satisfies it.
type Enqueuer interface {
	Enqueue(jobType string, run func(context.Context) (any, error))
}

type Service struct {
	store       StoreAPI
	Mailer      Mailer
	Jobs        Enqueuer
	DefaultFrom string
}

func New(store StoreAPI, mailer Mailer, jobs Enqueuer, from string) *Service {
	if from == "" {
		from = "no-reply@example.com"
	}
	return &Service{store: store, Mailer: mailer, Jobs: jobs, DefaultFrom: from}
}

// GateOpened queues an email to every active supervisor. periodName is the
// human label of the period now accepting submissions.
func (s *Service) GateOpened(periodName string) {
	if s.Mailer == nil || s.Jobs == nil {
		return
	}
	s.Jobs.Enqueue(JobGateOpened, func(ctx context.Context) (any, error) {
		return s.SendGateOpened(ctx, periodName)
	})
}

type SendResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

func (s *Service) SendGateOpened(ctx context.Context, periodName string) (SendResult, error) {
	emails, err := s.store.ActiveSupervisorEmails(ctx)
	if err != nil {
		return SendResult{}, fmt.Errorf("list supervisor emails: %w", err)
	}
	body := GateOpenedBody(periodName)
	var result SendResult
	for _, to := range emails {
		if err := s.Mailer.Send(ctx, s.DefaultFrom, to, gateOpenedSubject, body); err != nil {
			slog.Warn("gate opened email failed", "to", to, "err", err)
			result.Failed++
			continue
		}
		result.Sent++
	}
	return result, nil
}

func GateOpenedBody(periodName string) string {
	return fmt.Sprintf("Evaluations are open for %s.\r\n\r\nSign in to submit evaluations for your team.", periodName)
}
