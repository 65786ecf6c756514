package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bonfire/internal/domain"
	"bonfire/internal/infra/metrics"
)

// RedisIntakeQueue реализует входную очередь на базе Redis lists.
type RedisIntakeQueue struct {
	client *redis.Client
	key    string
}

var _ domain.IntakeQueue = (*RedisIntakeQueue)(nil)

// NewRedisIntakeQueue создаёт очередь по указанному ключу.
func NewRedisIntakeQueue(client *redis.Client, key string) *RedisIntakeQueue {
	return &RedisIntakeQueue{client: client, key: key}
}

// Enqueue публикует сырой твит в очередь.
func (q *RedisIntakeQueue) Enqueue(ctx context.Context, msg domain.RawTweetMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}

// Receive блокирующе читает сообщение. Redis lists не поддерживают подтверждение,
// поэтому при неуспехе сообщение возвращается в хвост очереди.
func (q *RedisIntakeQueue) Receive(ctx context.Context) (domain.RawTweetMessage, domain.AckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.RawTweetMessage{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.RawTweetMessage{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.RawTweetMessage{}, nil, err
		}
		if len(res) != 2 {
			return domain.RawTweetMessage{}, nil, errors.New("redis queue: unexpected response")
		}
		raw := res[1]
		var msg domain.RawTweetMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return domain.RawTweetMessage{}, nil, fmt.Errorf("decode message: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.client.RPush(context.Background(), q.key, raw).Err()
		}
		return msg, ack, nil
	}
}
