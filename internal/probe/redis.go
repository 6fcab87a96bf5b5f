package probe

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/NordCoder/uptimewatch/internal/domain/target"
)

// Redis opens a fresh single-connection client per check and closes it
// afterwards. Connection failures surface through PING, never at construction.
type Redis struct {
	timeout time.Duration
}

func NewRedis(timeout time.Duration) *Redis {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Redis{timeout: timeout}
}

func (p *Redis) options(t target.Target) (*redis.Options, error) {
	addr := strings.TrimSpace(t.Address)
	var opts *redis.Options
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		o, err := redis.ParseURL(addr)
		if err != nil {
			return nil, err
		}
		opts = o
	} else {
		opts = &redis.Options{Addr: addr}
	}

	if t.Redis != nil {
		if t.Redis.Username != "" {
			opts.Username = t.Redis.Username
		}
		if t.Redis.Password != "" {
			opts.Password = t.Redis.Password
		}
		if t.Redis.DB >= 0 {
			opts.DB = t.Redis.DB
		}
	}

	opts.DialTimeout = p.timeout
	opts.ReadTimeout = p.timeout
	opts.WriteTimeout = p.timeout
	opts.MaxRetries = -1
	opts.PoolSize = 1
	opts.MinIdleConns = 0
	return opts, nil
}

func (p *Redis) Probe(ctx context.Context, t target.Target) Outcome {
	if strings.TrimSpace(t.Address) == "" {
		return offline("invalid address: empty")
	}
	opts, err := p.options(t)
	if err != nil {
		return offlinef("invalid address %q: %v", t.Address, err)
	}

	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	client := redis.NewClient(opts)
	defer client.Close()

	if err := client.Ping(pctx).Err(); err != nil {
		if cancelled(ctx) {
			return offline("check cancelled")
		}
		return offlinef("redis error: %v", err)
	}
	return online("PING ok")
}
