// Package cache connects to the Redis instance shared by sessions and the job
// queue.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const defaultTimeout = 3 * time.Second

// Options addresses the Redis instance. Timeout bounds dialing, each command
// and the startup ping; zero selects 3s.
type Options struct {
	Addr    string
	Timeout time.Duration
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return defaultTimeout
	}
	return o.Timeout
}

// New creates the session client and pings it. The client is returned even
// when the ping fails: sessions degrade per request instead of stopping the
// server.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	timeout := opts.timeout()
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return client, fmt.Errorf("platform/cache: ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

// QueueOpt returns the asynq connection for the same instance.
func (o Options) QueueOpt() asynq.RedisClientOpt {
	timeout := o.timeout()
	return asynq.RedisClientOpt{
		Addr:         o.Addr,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
}
