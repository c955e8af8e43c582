package roomqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSameRoomRunsInOrderWithoutOverlap(t *testing.T) {
	s := New(32, zaptest.NewLogger(t))
	room := uuid.New()

	var (
		mu      sync.Mutex
		order   []int
		running int32
		overlap bool
	)
	// Enqueue sequentially so arrival order is deterministic, then wait for all.
	var wg sync.WaitGroup
	gate := make(chan struct{})
	for i := 0; i < 20; i++ {
		i := i
		started := make(chan struct{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			close(started)
			_ = s.Do(context.Background(), room, func(context.Context) error {
				if atomic.AddInt32(&running, 1) > 1 {
					overlap = true
				}
				<-gate
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
		<-started
		time.Sleep(2 * time.Millisecond)
	}
	close(gate)
	wg.Wait()

	assert.False(t, overlap)
	require.Len(t, order, 20)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestDifferentRoomsRunInParallel(t *testing.T) {
	s := New(8, zaptest.NewLogger(t))
	a, b := uuid.New(), uuid.New()

	blockA := make(chan struct{})
	doneA := make(chan error, 1)
	go func() {
		doneA <- s.Do(context.Background(), a, func(context.Context) error {
			<-blockA
			return nil
		})
	}()

	// Room b must not wait behind room a.
	err := s.Do(context.Background(), b, func(context.Context) error { return nil })
	require.NoError(t, err)

	close(blockA)
	require.NoError(t, <-doneA)
}

func TestErrorIsReturnedToCaller(t *testing.T) {
	s := New(1, zaptest.NewLogger(t))
	want := errors.New("boom")
	err := s.Do(context.Background(), uuid.New(), func(context.Context) error { return want })
	assert.ErrorIs(t, err, want)
}

func TestPanicIsRecovered(t *testing.T) {
	s := New(1, zaptest.NewLogger(t))
	room := uuid.New()
	err := s.Do(context.Background(), room, func(context.Context) error { panic("bad") })
	require.Error(t, err)

	require.NoError(t, s.Do(context.Background(), room, func(context.Context) error { return nil }))
}

func TestCancelledCallerStillRunsTask(t *testing.T) {
	s := New(4, zaptest.NewLogger(t))
	room := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())

	release := make(chan struct{})
	ran := make(chan error, 1)
	go func() {
		_ = s.Do(context.Background(), room, func(context.Context) error {
			<-release
			return nil
		})
	}()
	time.Sleep(5 * time.Millisecond)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Do(ctx, room, func(taskCtx context.Context) error {
			ran <- taskCtx.Err()
			return nil
		})
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	select {
	case taskErr := <-ran:
		assert.NoError(t, taskErr)
	case <-time.After(time.Second):
		t.Fatal("queued task did not run")
	}
}

func TestWorkerExitsWhenIdle(t *testing.T) {
	s := New(1, zaptest.NewLogger(t))
	require.NoError(t, s.Do(context.Background(), uuid.New(), func(context.Context) error { return nil }))
	assert.Eventually(t, func() bool { return s.Active() == 0 }, time.Second, time.Millisecond)
}
