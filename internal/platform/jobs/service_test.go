package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueRunsOnWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := New(4)
	svc.Start(ctx)

	var runs atomic.Int32
	for i := 0; i < 3; i++ {
		svc.Enqueue("count", func(context.Context) (any, error) {
			runs.Add(1)
			return nil, nil
		})
	}
	svc.Enqueue("broken", func(context.Context) (any, error) {
		return nil, errors.New("boom")
	})
	svc.Wait()

	assert.Equal(t, int32(3), runs.Load())
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	svc := New(1)
	svc.Enqueue("first", func(context.Context) (any, error) { return nil, nil })
	svc.Enqueue("second", func(context.Context) (any, error) { return nil, nil })
	assert.Len(t, svc.queue, 1)
}

func TestRunNowReturnsDetails(t *testing.T) {
	svc := New(1)
	details, err := svc.RunNow(context.Background(), "inline", func(context.Context) (any, error) {
		return map[string]int{"sent": 2}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"sent": 2}, details)
}
