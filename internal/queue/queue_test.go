package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestEnqueueDeduplicates(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	e := Enqueuer{R: client, Prefix: "test", DedupTTL: time.Minute}

	task := Task{Kind: "recompute", Payload: []byte(`{"id":"r1"}`), IdempotencyKey: "r1"}
	require.NoError(t, e.Enqueue(ctx, task))
	require.NoError(t, e.Enqueue(ctx, task))

	size, err := client.ZCard(ctx, "test:queue:recompute").Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, size)
}

func TestEnqueueAppliesDefaultMaxAttempts(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	e := Enqueuer{R: client, Prefix: "test", MaxAttempts: 2}

	require.NoError(t, e.Enqueue(ctx, Task{Kind: "recompute", Payload: []byte(`{"id":"r1"}`)}))

	members, err := client.ZRange(ctx, "test:queue:recompute", 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, members, 1)

	msg, err := decodeMessage(members[0])
	require.NoError(t, err)
	require.Equal(t, 2, msg.MaxAttempts)

	// A task-level limit wins over the enqueuer default.
	require.NoError(t, e.Enqueue(ctx, Task{Kind: "other", Payload: []byte(`x`), MaxAttempts: 7}))
	members, err = client.ZRange(ctx, "test:queue:other", 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, members, 1)
	msg, err = decodeMessage(members[0])
	require.NoError(t, err)
	require.Equal(t, 7, msg.MaxAttempts)
}

func TestEnqueueRejectsBadKind(t *testing.T) {
	client := newTestRedis(t)
	e := Enqueuer{R: client}
	err := e.Enqueue(context.Background(), Task{Kind: "Bad Kind!"})
	require.Error(t, err)
}

func TestWorkerProcessesTask(t *testing.T) {
	client := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := Enqueuer{R: client, Prefix: "test"}
	require.NoError(t, e.Enqueue(ctx, Task{Kind: "recompute", Payload: []byte(`{"id":"r1"}`)}))

	var handled atomic.Int32
	w := Worker{
		R:           client,
		Prefix:      "test",
		Kind:        "recompute",
		Concurrency: 1,
		Handler: func(_ context.Context, task Task) error {
			handled.Add(1)
			cancel()
			return nil
		},
	}
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	require.EqualValues(t, 1, handled.Load())
}

func TestWorkerRetriesThenDLQ(t *testing.T) {
	client := newTestRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	e := Enqueuer{R: client, Prefix: "test"}
	require.NoError(t, e.Enqueue(ctx, Task{Kind: "recompute", Payload: []byte(`x`), MaxAttempts: 1}))

	failed := make(chan struct{}, 1)
	w := Worker{
		R:           client,
		Prefix:      "test",
		Kind:        "recompute",
		Concurrency: 1,
		RetryBase:   time.Millisecond,
		Handler: func(context.Context, Task) error {
			select {
			case failed <- struct{}{}:
			default:
			}
			return context.DeadlineExceeded
		},
	}
	go func() { _ = w.Run(ctx) }()

	select {
	case <-failed:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never invoked")
	}
	require.Eventually(t, func() bool {
		n, err := client.LLen(context.Background(), "test:queue:recompute:dlq").Result()
		return err == nil && n == 1
	}, 2*time.Second, 20*time.Millisecond)
}
