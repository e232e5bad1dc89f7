package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStartRejectsInvalidSchedules(t *testing.T) {
	for _, spec := range []string{"", "not a schedule", "61 * * * *", "* * * * * * *"} {
		s := NewScheduler(spec, func(context.Context) error { return nil }, zap.NewNop())

		require.Error(t, s.Start(context.Background()), spec)
		require.False(t, s.IsRunning())
		require.Nil(t, s.NextRun())
	}
}

func TestJobRunsOnTick(t *testing.T) {
	var runs int32

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewScheduler("@every 1s", func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return errors.New("failures are logged, not fatal")
	}, zap.NewNop())

	require.NoError(t, s.Start(ctx))
	require.True(t, s.IsRunning())

	next := s.NextRun()
	require.NotNil(t, next)
	require.WithinDuration(t, time.Now().Add(time.Second), *next, 2*time.Second)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&runs) >= 2
	}, 5*time.Second, 50*time.Millisecond)

	s.Stop()
	require.False(t, s.IsRunning())
}

func TestCancellingTheContextStopsTheScheduler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	s := NewScheduler("0 3 * * *", func(context.Context) error { return nil }, zap.NewNop())
	require.NoError(t, s.Start(ctx))

	cancel()

	require.Eventually(t, func() bool {
		return !s.IsRunning()
	}, time.Second, 10*time.Millisecond)
}
