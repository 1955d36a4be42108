package queue

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type countingExecutor struct {
	mu    sync.Mutex
	seen  map[string]int
	done  chan struct{}
	want  int
	total int
}

func newCountingExecutor(want int) *countingExecutor {
	return &countingExecutor{seen: map[string]int{}, done: make(chan struct{}), want: want}
}

func (e *countingExecutor) Execute(ctx context.Context, jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen[jobID]++
	e.total++
	if e.total == e.want {
		close(e.done)
	}
	if jobID == "boom" {
		return errors.New("executor failed")
	}
	return nil
}

func runUntilDone(t *testing.T, c Consumer, exec *countingExecutor) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx, exec) }()
	select {
	case <-exec.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for jobs")
	}
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestMemoryQueueDeliversEachIDOnce(t *testing.T) {
	q := NewMemoryQueue(16, 4, nil)
	ids := []string{"a", "b", "boom", "c", "d"}
	for _, id := range ids {
		if err := q.Enqueue(context.Background(), id); err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}
	exec := newCountingExecutor(len(ids))
	runUntilDone(t, q, exec)
	for _, id := range ids {
		if exec.seen[id] != 1 {
			t.Fatalf("job %s executed %d times, want 1", id, exec.seen[id])
		}
	}
}

func TestMemoryQueueReportsFullBuffer(t *testing.T) {
	t.Parallel()
	q := NewMemoryQueue(1, 1, nil)
	if err := q.Enqueue(context.Background(), "first"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(context.Background(), "second"); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestNewRedisQueueValidates(t *testing.T) {
	t.Parallel()
	if _, err := NewRedisQueue(nil, RedisOptions{Key: "k"}); err == nil {
		t.Fatal("expected error for nil client")
	}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	if _, err := NewRedisQueue(client, RedisOptions{}); err == nil {
		t.Fatal("expected error for empty key")
	}
}

// setupTestRedis connects to REDIS_TEST_ADDR and skips when it is unset or
// unreachable.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisQueueRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupTestRedis(t)
	key := "test:readings:" + uuid.NewString()
	t.Cleanup(func() { client.Del(context.Background(), key) })

	q, err := NewRedisQueue(client, RedisOptions{Key: key, Workers: 2, PollTimeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewRedisQueue: %v", err)
	}
	ids := []string{uuid.NewString(), uuid.NewString(), uuid.NewString()}
	for _, id := range ids {
		if err := q.Enqueue(context.Background(), id); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	exec := newCountingExecutor(len(ids))
	runUntilDone(t, q, exec)
	for _, id := range ids {
		if exec.seen[id] != 1 {
			t.Fatalf("job %s executed %d times, want 1", id, exec.seen[id])
		}
	}
}
