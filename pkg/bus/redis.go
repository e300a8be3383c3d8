package bus

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// jobsListKey is the Redis list shared by all pods. LPUSH + BRPOP gives
// FIFO delivery to exactly one consumer per task.
const jobsListKey = "anotherai:jobs"

// redisBroker moves tasks through a Redis list so tasks survive the
// publishing pod and any pod in the deployment can drain them.
type redisBroker struct {
	client *redis.Client
}

func newRedisBroker(client *redis.Client) *redisBroker {
	return &redisBroker{client: client}
}

func (r *redisBroker) enqueue(ctx context.Context, msg []byte) error {
	return r.client.LPush(ctx, jobsListKey, msg).Err()
}

func (r *redisBroker) dequeue(ctx context.Context) ([]byte, error) {
	for {
		res, err := r.client.BRPop(ctx, time.Second, jobsListKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}
			return nil, err
		}
		// BRPop returns [key, value].
		return []byte(res[1]), nil
	}
}

func (r *redisBroker) close() error { return r.client.Close() }
