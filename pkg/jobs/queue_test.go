package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsTasks(t *testing.T) {
	q := NewQueue("test", Config{Workers: 2, BufferSize: 8})
	q.Start(context.Background())
	defer q.Stop()

	done := make(chan string, 2)
	for _, name := range []string{"first", "second"} {
		name := name
		err := q.Enqueue(Task{ID: name, Name: name, Run: func(context.Context) error {
			done <- name
			return nil
		}})
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case name := <-done:
			seen[name] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tasks")
		}
	}
	assert.True(t, seen["first"])
	assert.True(t, seen["second"])
}

func TestQueueRetriesUntilSuccess(t *testing.T) {
	q := NewQueue("test", Config{Workers: 1, MaxRetries: 3, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	var calls int32
	done := make(chan struct{})
	err := q.Enqueue(Task{ID: "flaky", Name: "flaky", Run: func(context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never succeeded")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueDropsAfterRetryBudget(t *testing.T) {
	q := NewQueue("test", Config{Workers: 1, MaxRetries: 2, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	var calls int32
	err := q.Enqueue(Task{ID: "doomed", Name: "doomed", Run: func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("permanent")
	}})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	// Initial run plus MaxRetries attempts, then dropped.
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueEnqueueErrors(t *testing.T) {
	q := NewQueue("test", Config{Workers: 1})

	err := q.Enqueue(Task{ID: "early", Name: "early", Run: func(context.Context) error { return nil }})
	assert.ErrorContains(t, err, "not started")

	q.Start(context.Background())
	defer q.Stop()

	err = q.Enqueue(Task{ID: "empty", Name: "empty"})
	assert.ErrorContains(t, err, "no work")
}

func TestQueueRejectsWhenFull(t *testing.T) {
	q := NewQueue("test", Config{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer q.Stop()

	release := make(chan struct{})
	block := func(context.Context) error {
		<-release
		return nil
	}
	require.NoError(t, q.Enqueue(Task{ID: "running", Name: "running", Run: block}))

	// Wait for the worker to pick up the first task so the buffer slot frees.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Enqueue(Task{ID: "buffered", Name: "buffered", Run: block}))

	err := q.Enqueue(Task{ID: "overflow", Name: "overflow", Run: block})
	assert.ErrorContains(t, err, "full")
	close(release)
}
