package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefrontlabs/adminflow/internal/store"
)

type countingExpirer struct {
	calls atomic.Int64
}

func (c *countingExpirer) ExpireStale(context.Context) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

func TestNewScheduler_RejectsBadCron(t *testing.T) {
	_, err := NewScheduler(store.NewMemoryStore(), &countingExpirer{}, Config{
		VacuumSchedule: "not a cron line",
	}, nil)
	require.Error(t, err)
}

func TestScheduler_SweepsOnInterval(t *testing.T) {
	exp := &countingExpirer{}
	s, err := NewScheduler(store.NewMemoryStore(), exp, Config{
		SweepInterval: 10 * time.Millisecond,
	}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return exp.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_StopWaitsForLoop(t *testing.T) {
	exp := &countingExpirer{}
	s, err := NewScheduler(store.NewMemoryStore(), exp, Config{
		SweepInterval: 5 * time.Millisecond,
	}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	s.Stop()

	after := exp.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, exp.calls.Load())
}

func TestScheduler_StartTwiceFails(t *testing.T) {
	s, err := NewScheduler(store.NewMemoryStore(), &countingExpirer{}, Config{
		SweepInterval: time.Hour,
	}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.Error(t, s.Start(context.Background()))
}

func TestScheduler_ContextCancelStopsLoop(t *testing.T) {
	exp := &countingExpirer{}
	s, err := NewScheduler(store.NewMemoryStore(), exp, Config{
		SweepInterval: 5 * time.Millisecond,
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()
	s.Stop()
}
