// Package jobs provides the background work layer: a Redis-list job queue
// with a polling worker, and an inline fallback used when the queue is
// disabled. Heavy webhook work (restock fan-out) is pushed through here so
// the HTTP boundary can acknowledge the platform quickly.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// QueueKey is the Redis list jobs are pushed to and popped from.
const QueueKey = "restock:jobs"

// Job types understood by the worker.
const (
	TypeInventoryUpdate = "inventory_update"
	TypeNotifyRequest   = "notify_request"
)

// Job is one unit of queued work. Fields are populated per type:
// inventory_update carries shop/variant/quantity, notify_request carries
// request_id.
type Job struct {
	Type       string `json:"type"`
	ShopDomain string `json:"shop_domain,omitempty"`
	VariantID  string `json:"variant_id,omitempty"`
	Quantity   int    `json:"quantity,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

// NewRedisClient builds the Redis client the queue rides on.
func NewRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Queue is a Redis-list FIFO: LPUSH to enqueue, BRPOP to consume.
type Queue struct {
	Client *redis.Client
	Key    string
}

// NewQueue wraps a Redis client as a job queue on QueueKey.
func NewQueue(client *redis.Client) *Queue {
	return &Queue{Client: client, Key: QueueKey}
}

// Enqueue pushes one job onto the queue.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.Client.LPush(ctx, q.Key, payload).Err()
}

// Dequeue blocks up to timeout for the next job. Returns (nil, nil) when the
// timeout elapses with an empty queue.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.Client.BRPop(ctx, timeout, q.Key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return nil, errors.New("jobs: malformed BRPOP reply")
	}
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Ping verifies the Redis connection at startup.
func (q *Queue) Ping(ctx context.Context) error {
	return q.Client.Ping(ctx).Err()
}
