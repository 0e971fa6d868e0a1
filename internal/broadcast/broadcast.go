// Package broadcast publishes synchronized-resource notifications for
// real-time consumers. Delivery is fire-and-forget: callers log failures
// and move on.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/invosync/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Publisher is the broadcaster surface consumed by the sync engine.
type Publisher interface {
	Publish(ctx context.Context, channel, eventName string, payload any) error
}

type redisPublisher struct {
	client *redis.Client
	log    *zap.Logger
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, string, any) error { return nil }

type message struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// New returns a redis-backed publisher, or a nop one when redis is not
// configured.
func New(cfg config.Config, log *zap.Logger) Publisher {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		log.Named("broadcast").Info("redis not configured, broadcasts disabled")
		return nopPublisher{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &redisPublisher{client: client, log: log.Named("broadcast")}
}

func (p *redisPublisher) Publish(ctx context.Context, channel, eventName string, payload any) error {
	raw, err := json.Marshal(message{Event: eventName, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode broadcast: %w", err)
	}
	return p.client.Publish(ctx, channel, raw).Err()
}

var Module = fx.Module("broadcast",
	fx.Provide(New),
)
