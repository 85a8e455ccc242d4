package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestRegisterValidates(t *testing.T) {
	s := New(t.TempDir(), time.Second, nil)
	noop := func(context.Context, time.Time) error { return nil }

	assert.Error(t, s.Register(nil))
	assert.Error(t, s.Register(&Job{Name: "", Every: time.Second, Run: noop}))
	assert.Error(t, s.Register(&Job{Name: "x", Every: 0, Run: noop}))
	assert.Error(t, s.Register(&Job{Name: "x", Every: time.Second}))

	require.NoError(t, s.Register(&Job{Name: "b", Every: time.Second, Run: noop}))
	require.NoError(t, s.Register(&Job{Name: "a", Every: time.Second, Run: noop}))
	require.NoError(t, s.Register(&Job{Name: "a", Every: time.Minute, Run: noop}))
	assert.Equal(t, []string{"a", "b"}, s.Jobs())
}

func TestDispatchDueHonoursInterval(t *testing.T) {
	s := New(t.TempDir(), time.Second, nil)
	var runs atomic.Int32
	require.NoError(t, s.Register(&Job{
		Name:  "prune",
		Every: time.Hour,
		Run: func(context.Context, time.Time) error {
			runs.Add(1)
			return nil
		},
	}))

	base := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	s.dispatchDue(ctx, base)
	s.wg.Wait()
	s.dispatchDue(ctx, base.Add(30*time.Minute))
	s.wg.Wait()
	assert.Equal(t, int32(1), runs.Load())

	s.dispatchDue(ctx, base.Add(time.Hour))
	s.wg.Wait()
	assert.Equal(t, int32(2), runs.Load())
}

func TestDispatchSkipsWhileRunning(t *testing.T) {
	s := New(t.TempDir(), time.Second, nil)
	release := make(chan struct{})
	var runs atomic.Int32
	require.NoError(t, s.Register(&Job{
		Name:  "slow",
		Every: time.Millisecond,
		Run: func(context.Context, time.Time) error {
			runs.Add(1)
			<-release
			return nil
		},
	}))

	base := time.Now()
	s.dispatchDue(context.Background(), base)
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	s.dispatchDue(context.Background(), base.Add(time.Second))
	close(release)
	s.wg.Wait()
	assert.Equal(t, int32(1), runs.Load())
}

func TestJobSkippedWhenLockHeldElsewhere(t *testing.T) {
	dir := t.TempDir()
	other := NewFileLock(filepath.Join(dir, "prune.lock"))
	acquired, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, acquired)

	s := New(dir, time.Second, nil)
	var runs atomic.Int32
	require.NoError(t, s.Register(&Job{
		Name:  "prune",
		Every: time.Hour,
		Run: func(context.Context, time.Time) error {
			runs.Add(1)
			return nil
		},
	}))

	s.dispatchDue(context.Background(), time.Now())
	s.wg.Wait()
	assert.Equal(t, int32(0), runs.Load())

	require.NoError(t, other.Unlock())
	s.dispatchDue(context.Background(), time.Now().Add(2*time.Hour))
	s.wg.Wait()
	assert.Equal(t, int32(1), runs.Load())
}

func TestFileLockExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlap.lock")
	l1 := NewFileLock(path)
	l2 := NewFileLock(path)

	ok, err := l1.TryLock()
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l2.TryLock()
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire")

	require.NoError(t, l1.Unlock())
	ok, err = l2.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l2.Unlock())
	require.NoError(t, l2.Unlock())
}

func TestRunStopsOnCancelAndWaitsForJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(t.TempDir(), 10*time.Millisecond, nil)
	started := make(chan struct{}, 1)
	var finished atomic.Bool
	require.NoError(t, s.Register(&Job{
		Name:  "retention",
		Every: time.Hour,
		Run: func(ctx context.Context, _ time.Time) error {
			started <- struct{}{}
			<-ctx.Done()
			finished.Store(true)
			return errors.New("cancelled")
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-started
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.True(t, finished.Load())
}
