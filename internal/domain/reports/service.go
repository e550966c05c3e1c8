package reports

import (
	"context"

	"evalhub/internal/domain/evaluation"
)

const recentLimit = 5

// EvaluationReader is the part of the evaluation service the dashboard reads.
type EvaluationReader interface {
	ListBuckets(ctx context.Context) ([]evaluation.Bucket, error)
	CurrentPeriod() evaluation.Period
	Gate() *evaluation.Gate
}

type Service struct {
	Store       *Store
	Evaluations EvaluationReader
}

func NewService(store *Store, evaluations EvaluationReader) *Service {
	return &Service{Store: store, Evaluations: evaluations}
}

type ManagerDashboard struct {
	Supervisors     int                  `json:"supervisors"`
	Employees       int                  `json:"employees"`
	Evaluations     int                  `json:"evaluations"`
	ActiveQuestions int                  `json:"activeQuestions"`
	AverageScore    *float64             `json:"averageScore"`
	CurrentPeriod   evaluation.Period    `json:"currentPeriod"`
	Gate            evaluation.GateState `json:"gate"`
	Buckets         []evaluation.Bucket  `json:"buckets"`
}

type SupervisorDashboard struct {
	Employees     int                `json:"employees"`
	Evaluations   int                `json:"evaluations"`
	CurrentPeriod evaluation.Period  `json:"currentPeriod"`
	GateOpen      bool               `json:"gateOpen"`
	Recent        []RecentEvaluation `json:"recent"`
}

func (s *Service) Manager(ctx context.Context) (ManagerDashboard, error) {
	var d ManagerDashboard
	var err error
	if d.Supervisors, err = s.Store.ActiveSupervisors(ctx); err != nil {
		return d, err
	}
	if d.Employees, err = s.Store.ActiveEmployees(ctx, ""); err != nil {
		return d, err
	}
	if d.Evaluations, err = s.Store.Evaluations(ctx, ""); err != nil {
		return d, err
	}
	if d.ActiveQuestions, err = s.Store.ActiveQuestions(ctx); err != nil {
		return d, err
	}
	if d.AverageScore, err = s.Store.AverageScore(ctx); err != nil {
		return d, err
	}
	if d.Gate, err = s.Evaluations.Gate().State(ctx); err != nil {
		return d, err
	}
	if d.Buckets, err = s.Evaluations.ListBuckets(ctx); err != nil {
		return d, err
	}
	d.CurrentPeriod = s.Evaluations.CurrentPeriod()
	return d, nil
}

func (s *Service) Supervisor(ctx context.Context, supervisorID string) (SupervisorDashboard, error) {
	var d SupervisorDashboard
	var err error
	if d.Employees, err = s.Store.ActiveEmployees(ctx, supervisorID); err != nil {
		return d, err
	}
	if d.Evaluations, err = s.Store.Evaluations(ctx, supervisorID); err != nil {
		return d, err
	}
	if d.Recent, err = s.Store.RecentEvaluations(ctx, supervisorID, recentLimit); err != nil {
		return d, err
	}
	if d.GateOpen, err = s.Evaluations.Gate().CanSubmit(ctx); err != nil {
		return d, err
	}
	d.CurrentPeriod = s.Evaluations.CurrentPeriod()
	return d, nil
}
