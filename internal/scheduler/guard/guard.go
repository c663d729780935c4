// Package guard coalesces overlapping runs of the same scheduler job across
// replicas. Claims on invoice rows stay the source of truth; a guard only
// saves a replica from listing candidates another replica is already working.
package guard

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/feeflow/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyPrefix = "feeflow:scheduler:run:"

// Release gives a held run back. It is safe to call more than once.
type Release func(ctx context.Context)

type Guard interface {
	// Acquire reports whether the caller may run job now.
	Acquire(ctx context.Context, job string, ttl time.Duration) (Release, bool, error)
}

var Module = fx.Module("scheduler.guard",
	fx.Provide(New),
)

func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Guard {
	if !cfg.Redis.Enabled {
		return Noop{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	log.Named("scheduler.guard").Info("redis run guard enabled", zap.String("addr", cfg.Redis.Addr))
	return NewRedis(client)
}

type Noop struct{}

func (Noop) Acquire(context.Context, string, time.Duration) (Release, bool, error) {
	return func(context.Context) {}, true, nil
}

type Redis struct {
	locker *Locker
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{locker: NewLocker(client)}
}

func (g *Redis) Acquire(ctx context.Context, job string, ttl time.Duration) (Release, bool, error) {
	key := keyPrefix + job
	token, ok, err := g.locker.TryLock(ctx, key, ttl)
	if err != nil || !ok {
		return func(context.Context) {}, false, err
	}
	return func(ctx context.Context) {
		_ = g.locker.Release(ctx, key, token)
	}, true, nil
}
