package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dayplan/internal/engine"
	"dayplan/internal/models"
	"dayplan/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRetrier struct {
	calls  atomic.Int32
	report *engine.RetryReport
	err    error
	gate   chan struct{}
}

func (f *fakeRetrier) RetryFailedOperations(ctx context.Context) (*engine.RetryReport, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.report == nil {
		return &engine.RetryReport{}, f.err
	}
	return f.report, f.err
}

type failingSink struct{}

func (failingSink) PushDeadLetter(ctx context.Context, entry *models.SyncQueueEntry) error {
	return errors.New("sink down")
}

func TestRunOncePushesDeadLetters(t *testing.T) {
	coord := repository.NewMemoryRepository()
	retrier := &fakeRetrier{report: &engine.RetryReport{
		Processed: 3,
		Succeeded: 1,
		Failed:    2,
		FailedEntries: []models.SyncQueueEntry{
			{ID: 11, Status: models.QueueStatusFailed},
			{ID: 12, Status: models.QueueStatusFailed},
		},
	}}
	d := NewDrainer(retrier, coord, coord, DrainerConfig{}, nil)

	report, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)

	letters, err := coord.DeadLetters(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, letters, 2)
	assert.Equal(t, int64(12), letters[0].ID)
	assert.Equal(t, int64(11), letters[1].ID)
}

func TestRunOnceSinkErrorDoesNotFailPass(t *testing.T) {
	retrier := &fakeRetrier{report: &engine.RetryReport{
		Processed:     1,
		Failed:        1,
		FailedEntries: []models.SyncQueueEntry{{ID: 5}},
	}}
	d := NewDrainer(retrier, nil, failingSink{}, DrainerConfig{}, nil)

	report, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
}

func TestRunOnceBusyWhenLockHeld(t *testing.T) {
	coord := repository.NewMemoryRepository()
	release, ok, err := coord.Acquire(context.Background(), drainKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	retrier := &fakeRetrier{}
	d := NewDrainer(retrier, coord, nil, DrainerConfig{}, nil)

	_, err = d.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrDrainBusy)
	assert.Zero(t, retrier.calls.Load())

	release()
	_, err = d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), retrier.calls.Load())

	// The lock is released after each pass.
	_, ok, err = coord.Acquire(context.Background(), drainKey, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunOnceSharesInFlightPass(t *testing.T) {
	retrier := &fakeRetrier{gate: make(chan struct{})}
	d := NewDrainer(retrier, nil, nil, DrainerConfig{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.RunOnce(context.Background())
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return retrier.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(retrier.gate)
	wg.Wait()

	assert.LessOrEqual(t, retrier.calls.Load(), int32(4))
	assert.GreaterOrEqual(t, retrier.calls.Load(), int32(1))
}

func TestRunOncePropagatesRetrierError(t *testing.T) {
	retrier := &fakeRetrier{err: context.Canceled}
	d := NewDrainer(retrier, nil, nil, DrainerConfig{}, nil)

	report, err := d.RunOnce(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, report)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	d := NewDrainer(&fakeRetrier{}, nil, nil, DrainerConfig{Schedule: "every now and then"}, nil)
	assert.Error(t, d.Start(context.Background()))
}

func TestStartRunsOnSchedule(t *testing.T) {
	retrier := &fakeRetrier{}
	d := NewDrainer(retrier, nil, nil, DrainerConfig{Schedule: "@every 1s"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Start(ctx))

	require.Eventually(t, func() bool { return retrier.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	cancel()
	d.Stop()
}
