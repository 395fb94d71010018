package concurrency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFutureGetBlocksUntilSet(t *testing.T) {
	f := NewFuture[int]()
	require.False(t, f.Done())

	go func() {
		time.Sleep(5 * time.Millisecond)
		f.Set(42, nil)
	}()

	v, err := f.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.True(t, f.Done())
}

func TestFutureGetContextCancelled(t *testing.T) {
	f := NewFuture[int]()
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	_, err := f.Get(ctx)
	require.Error(t, err)
}

func TestThenChainsOnPool(t *testing.T) {
	pool := NewPool()
	defer pool.Close()

	f := NewFuture[int]()
	out := Then(f, pool, func(v int, err error) (int, error) {
		return v * 2, err
	})

	f.Set(21, nil)
	v, err := out.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestCondVarWaitWakesOnSet(t *testing.T) {
	cv := NewCondVar[string]()
	go func() {
		time.Sleep(5 * time.Millisecond)
		cv.Set("hello")
	}()

	v, err := cv.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "hello", v)
	require.Equal(t, "hello", cv.Get())
}

func TestWaitQueueFIFO(t *testing.T) {
	q := NewWaitQueue[int](4)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Push(ctx, i))
	}
	for i := 0; i < 3; i++ {
		v, ok := q.Pop(ctx)
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

func TestWaitQueuePopContextCancelled(t *testing.T) {
	q := NewWaitQueue[int](1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	_, ok := q.Pop(ctx)
	require.False(t, ok)
}

func TestSynchronisedReadWrite(t *testing.T) {
	s := NewSynchronised(0)
	s.Write(func(v *int) { *v = 5 })
	s.Read(func(v int) { require.Equal(t, 5, v) })
	require.Equal(t, 5, s.Snapshot())
}

func TestPoolRunsSubmittedJobs(t *testing.T) {
	pool := NewPool()
	defer pool.Close()

	done := make(chan struct{}, 1)
	pool.Submit(func() { done <- struct{}{} })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
}
