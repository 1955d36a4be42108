package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"palmreader/internal/domain"
	"palmreader/internal/infra"
)

const defaultPollTimeout = 5 * time.Second

// RedisQueue is a Redis list: producers LPUSH ids and consumers BRPOP them,
// so each id reaches one consumer.
type RedisQueue struct {
	client      redis.UniversalClient
	key         string
	workers     int
	pollTimeout time.Duration
	logger      zerolog.Logger
}

type RedisOptions struct {
	Key         string
	Workers     int
	PollTimeout time.Duration
	Logger      *infra.Logger
}

func NewRedisQueue(client redis.UniversalClient, opts RedisOptions) (*RedisQueue, error) {
	if client == nil {
		return nil, errors.New("queue: redis client is required")
	}
	if opts.Key == "" {
		return nil, errors.New("queue: redis key is required")
	}
	q := &RedisQueue{
		client:      client,
		key:         opts.Key,
		workers:     opts.Workers,
		pollTimeout: opts.PollTimeout,
		logger:      zerolog.Nop(),
	}
	if q.workers < 1 {
		q.workers = 1
	}
	if q.pollTimeout <= 0 {
		q.pollTimeout = defaultPollTimeout
	}
	if opts.Logger != nil {
		q.logger = *opts.Logger
	}
	return q, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, jobID string) error {
	if err := q.client.LPush(ctx, q.key, jobID).Err(); err != nil {
		return fmt.Errorf("queue: lpush: %w", err)
	}
	return nil
}

// Dequeue waits up to the poll timeout for an id. An empty id with a nil
// error means the wait timed out.
func (q *RedisQueue) Dequeue(ctx context.Context) (string, error) {
	vals, err := q.client.BRPop(ctx, q.pollTimeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(vals) < 2 {
		return "", fmt.Errorf("queue: unexpected BRPOP reply %v", vals)
	}
	return vals[1], nil
}

func (q *RedisQueue) Run(ctx context.Context, exec domain.Executor) error {
	q.logger.Info().Int("workers", q.workers).Str("key", q.key).Msg("queue: redis consumers started")
	group, gctx := errgroup.WithContext(ctx)
	for range q.workers {
		group.Go(func() error { return q.consume(gctx, exec) })
	}
	return group.Wait()
}

func (q *RedisQueue) consume(ctx context.Context, exec domain.Executor) error {
	for ctx.Err() == nil {
		id, err := q.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			q.logger.Error().Err(err).Msg("queue: dequeue")
			if !sleep(ctx, time.Second) {
				return nil
			}
			continue
		}
		if id == "" {
			continue
		}
		dispatch(ctx, exec, id, q.logger)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

var (
	_ domain.Enqueuer = (*RedisQueue)(nil)
	_ Consumer        = (*RedisQueue)(nil)
)
