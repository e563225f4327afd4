package embedding

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "skillvault:emb:"

// RedisCache is an optional second-level embedding cache so vectors
// survive process restarts. It sits under the in-process Cache; misses
// and errors here are invisible to callers.
type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache connects to Redis and pings it. TTL <= 0 means no expiry.
func NewRedisCache(redisURL string, ttl time.Duration, logger *zap.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{rdb: rdb, ttl: ttl, logger: logger}, nil
}

// Get looks up a vector; any error counts as a miss.
func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	data, err := r.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Debug("redis embedding get failed", zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, false
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, true
}

// Put stores a vector; failures are logged and dropped.
func (r *RedisCache) Put(ctx context.Context, key string, vec []float32) {
	data := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	if err := r.rdb.Set(ctx, redisKeyPrefix+key, data, r.ttl).Err(); err != nil {
		r.logger.Debug("redis embedding put failed", zap.Error(err))
	}
}

// Close tears down the Redis connection.
func (r *RedisCache) Close() error {
	return r.rdb.Close()
}
