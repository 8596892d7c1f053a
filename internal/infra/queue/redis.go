package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cf-suggest/internal/domain"
)

// RedisRefreshQueue реализует очередь задач на базе Redis lists.
type RedisRefreshQueue struct {
	client *redis.Client
	key    string
}

// NewRedisRefreshQueue создаёт очередь по указанному ключу.
func NewRedisRefreshQueue(client *redis.Client, key string) *RedisRefreshQueue {
	return &RedisRefreshQueue{client: client, key: key}
}

var _ domain.RefreshQueue = (*RedisRefreshQueue)(nil)

// Enqueue публикует задачу в очередь.
func (q *RedisRefreshQueue) Enqueue(ctx context.Context, job domain.RefreshJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди. Подтверждение неуспеха
// возвращает задачу обратно в очередь.
func (q *RedisRefreshQueue) Receive(ctx context.Context) (domain.RefreshJob, domain.RefreshAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.RefreshJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.RefreshJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.RefreshJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.RefreshJob{}, nil, errors.New("redis queue: unexpected response")
		}
		payload := res[1]
		var job domain.RefreshJob
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			return domain.RefreshJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.client.LPush(context.Background(), q.key, payload).Err()
		}
		return job, ack, nil
	}
}
