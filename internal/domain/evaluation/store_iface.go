package evaluation

import (
	"context"
	"time"
)

type GateStore interface {
	EnsureGate(ctx context.Context, enabled bool, at time.Time) error
	GateState(ctx context.Context) (GateState, error)
	SetGateEnabled(ctx context.Context, enabled bool, actorID string, at time.Time) (bool, error)
	ToggleGate(ctx context.Context, actorID string, at time.Time) (bool, error)
}

type StoreAPI interface {
	GateStore
	GetOrCreateBucket(ctx context.Context, id string, period Period, at time.Time) (Bucket, bool, error)
	GetBucket(ctx context.Context, bucketID string) (Bucket, error)
	ListBuckets(ctx context.Context) ([]Bucket, error)
	AppendRecord(ctx context.Context, record Record, newBucketID string) (Record, error)
	GetRecord(ctx context.Context, recordID string) (Record, error)
	QueryRecords(ctx context.Context, filter Filter) ([]Record, error)
	RecordsByBucket(ctx context.Context, bucketID string) ([]Record, error)
	ExportSnapshot(ctx context.Context, bucketID string) (Bucket, []Record, error)
	Subject(ctx context.Context, employeeID string) (Subject, error)
	Actor(ctx context.Context, supervisorID string) (Actor, error)
	ActiveQuestions(ctx context.Context) ([]QuestionSpec, error)
}
