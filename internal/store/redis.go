package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veripack/veripack-backend/internal/config"
	"github.com/veripack/veripack-backend/internal/logger"
)

type redisKV struct {
	log    *logger.Logger
	client *redis.Client
}

func newRedisKV(cfg config.StoreConfig, log *logger.Logger) (*redisKV, error) {
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("redis backend selected but REDIS_ADDR is empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisKV{log: log.With("store", "redis"), client: client}, nil
}

func redisKey(bucket, key string) string {
	return "veripack:" + bucket + ":" + key
}

func redisIndex(bucket string) string {
	return "veripack:" + bucket + ":index"
}

func (r *redisKV) get(ctx context.Context, bucket, key string) ([]byte, bool, error) {
	raw, err := r.client.Get(ctx, redisKey(bucket, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", bucket, err)
	}
	return raw, true, nil
}

func (r *redisKV) set(ctx context.Context, bucket, key string, val []byte) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, redisKey(bucket, key), val, 0)
	pipe.SAdd(ctx, redisIndex(bucket), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set %s: %w", bucket, err)
	}
	return nil
}

func (r *redisKV) delete(ctx context.Context, bucket, key string) (bool, error) {
	pipe := r.client.TxPipeline()
	delCmd := pipe.Del(ctx, redisKey(bucket, key))
	pipe.SRem(ctx, redisIndex(bucket), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis delete %s: %w", bucket, err)
	}
	return delCmd.Val() > 0, nil
}

func (r *redisKV) list(ctx context.Context, bucket string) ([][]byte, error) {
	keys, err := r.client.SMembers(ctx, redisIndex(bucket)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis index %s: %w", bucket, err)
	}
	out := make([][]byte, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := r.get(ctx, bucket, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, raw)
		}
	}
	return out, nil
}
