// Package mirror 把价格表镜像到 Redis：每个标的一个 key，整表发布到一个频道。
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"market-feed-go/config"
	"market-feed-go/infrastructure/monitor"
)

const writeTimeout = 2 * time.Second

// Redis 作为推送流的一个 Conn 使用。Redis 不可用时只记录日志和指标，不中断推送。
type Redis struct {
	client  *redis.Client
	prefix  string
	channel string
	ttl     time.Duration
	log     *zap.Logger
	mon     *monitor.Monitor

	mu     sync.Mutex
	known  map[string]struct{} // 上次写入的标的，用于清理已删除的 key
	closed atomic.Bool
}

func NewRedis(cfg config.RedisConfig, log *zap.Logger, mon *monitor.Monitor) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisWithClient(client, cfg, log, mon)
}

func NewRedisWithClient(client *redis.Client, cfg config.RedisConfig, log *zap.Logger, mon *monitor.Monitor) *Redis {
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{
		client:  client,
		prefix:  cfg.KeyPrefix,
		channel: cfg.Channel,
		ttl:     cfg.TTL(),
		log:     log.With(zap.String("component", "redis_mirror")),
		mon:     mon,
		known:   make(map[string]struct{}),
	}
}

// Ping 启动时检查连通性。
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *Redis) Alive() bool { return !r.closed.Load() }

// WantsEmpty 最后一个标的被删除时也要收到空表，才能清掉对应 key。
func (r *Redis) WantsEmpty() bool { return true }

// Send 在一个事务里写入快照、删除已移除标的的 key，并发布整表。空表只做清理和发布。
func (r *Redis) Send(payload []byte) error {
	var table map[string]json.RawMessage
	if err := json.Unmarshal(payload, &table); err != nil {
		return fmt.Errorf("decode prices: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(table) == 0 && len(r.known) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for sym, snap := range table {
			pipe.Set(ctx, r.key(sym), []byte(snap), r.ttl)
		}
		for sym := range r.known {
			if _, ok := table[sym]; !ok {
				pipe.Del(ctx, r.key(sym))
			}
		}
		if r.channel != "" {
			pipe.Publish(ctx, r.channel, payload)
		}
		return nil
	})
	if err != nil {
		r.log.Warn("redis mirror write failed", zap.Error(err), zap.Int("symbols", len(table)))
		r.mon.RecordMirrorError()
		return nil
	}
	r.known = make(map[string]struct{}, len(table))
	for sym := range table {
		r.known[sym] = struct{}{}
	}
	return nil
}

func (r *Redis) key(symbol string) string { return r.prefix + symbol }

func (r *Redis) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.client.Close()
}
