package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrEmpty is returned by Queue.Next when nothing is waiting
var ErrEmpty = errors.New("queue empty")

// Queue hands out events and keeps them until acknowledged
type Queue interface {
	// Next moves the oldest event into the in-flight set
	Next(ctx context.Context) (string, error)
	// Ack removes a finished event from the in-flight set
	Ack(ctx context.Context, payload string) error
	// Recover puts events left in flight by a previous run back on the queue
	Recover(ctx context.Context) (int, error)
	Close() error
}

// RedisQueue is a reliable queue on two Redis lists. Producers LPUSH onto
// the queue key; events move to the processing key while being handled.
type RedisQueue struct {
	client        *redis.Client
	queueKey      string
	processingKey string
}

// NewRedisQueue connects and pings the server
func NewRedisQueue(ctx context.Context, redisURL, queueKey, processingKey string) (*RedisQueue, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisQueue{
		client:        client,
		queueKey:      queueKey,
		processingKey: processingKey,
	}, nil
}

func (q *RedisQueue) Next(ctx context.Context) (string, error) {
	payload, err := q.client.RPopLPush(ctx, q.queueKey, q.processingKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrEmpty
	}
	if err != nil {
		return "", err
	}
	return payload, nil
}

func (q *RedisQueue) Ack(ctx context.Context, payload string) error {
	return q.client.LRem(ctx, q.processingKey, 1, payload).Err()
}

func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.RPopLPush(ctx, q.processingKey, q.queueKey).Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// Push enqueues an event; used by tooling and tests
func (q *RedisQueue) Push(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.queueKey, data).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
