// Package ratelimit admits webhook deliveries at a fixed per-source rate.
// The keyspace is per-IP by default, which is a known weakness behind
// shared NAT or proxy infrastructure: many tenants collapse onto one
// counter. Deployments fronted by such infrastructure should key on a
// forwarded client identifier instead.
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/invosync/internal/clock"
	"github.com/smallbiznis/invosync/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Limiter answers whether one more request from key is admitted right now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

const fixedWindowScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if count > tonumber(ARGV[1]) then
  return 0
end
return 1
`

type redisLimiter struct {
	client *redis.Client
	script *redis.Script
	limit  int
	window time.Duration
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	res, err := l.script.Run(ctx, l.client, []string{"ratelimit:webhook:" + key},
		l.limit, l.window.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// memoryLimiter is the single-process fallback when redis is not
// configured.
type memoryLimiter struct {
	mu      sync.Mutex
	clock   clock.Clock
	limit   int
	window  time.Duration
	windows map[string]*windowState
}

type windowState struct {
	start time.Time
	count int
}

// sweepThreshold bounds the window map: once it grows this large, lapsed
// entries are dropped before admitting the next request. Without this the
// map gains one entry per source IP for the life of the process.
const sweepThreshold = 1024

func (l *memoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if len(l.windows) >= sweepThreshold {
		for k, s := range l.windows {
			if now.Sub(s.start) >= l.window {
				delete(l.windows, k)
			}
		}
	}

	state, ok := l.windows[key]
	if !ok || now.Sub(state.start) >= l.window {
		l.windows[key] = &windowState{start: now, count: 1}
		return true, nil
	}
	state.count++
	return state.count <= l.limit, nil
}

type allowAll struct{}

func (allowAll) Allow(context.Context, string) (bool, error) { return true, nil }

// New builds the webhook limiter from configuration: redis-backed when an
// address is set, in-memory otherwise, pass-through when disabled.
func New(cfg config.Config, log *zap.Logger, clk clock.Clock) Limiter {
	limitCfg := cfg.Webhook
	if !limitCfg.RateLimitEnabled {
		return allowAll{}
	}

	limit := limitCfg.RateLimitPerSec
	if limit <= 0 {
		limit = 1
	}
	window := limitCfg.RateLimitWindow
	if window <= 0 {
		window = time.Second
	}

	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return &redisLimiter{
			client: client,
			script: redis.NewScript(fixedWindowScript),
			limit:  limit,
			window: window,
		}
	}

	log.Named("ratelimit").Info("redis not configured, using in-process limiter")
	return &memoryLimiter{
		clock:   clk,
		limit:   limit,
		window:  window,
		windows: make(map[string]*windowState),
	}
}

var Module = fx.Module("ratelimit",
	fx.Provide(New),
)
