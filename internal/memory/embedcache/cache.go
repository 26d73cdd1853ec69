// Package embedcache provides a two-tier cache in front of an embedding provider.
package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	gocache "github.com/patrickmn/go-cache"
	goredis "github.com/redis/go-redis/v9"

	"github.com/blueberrycongee/murmur/internal/memory"
	"github.com/blueberrycongee/murmur/internal/metrics"
)

// Config holds configuration for the embedding cache.
type Config struct {
	Namespace string        // Key namespace prefix (default: "murmur:emb")
	Model     string        // Embedding model, part of the key so model changes never serve stale vectors
	LocalTTL  time.Duration // TTL for the in-process tier (default: 10 minutes)
	RedisTTL  time.Duration // TTL for the Redis tier (default: 24 hours)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Namespace: "murmur:emb",
		LocalTTL:  10 * time.Minute,
		RedisTTL:  24 * time.Hour,
	}
}

// Stats reports cache effectiveness.
type Stats struct {
	LocalHits int64
	RedisHits int64
	Misses    int64
	Errors    int64
}

// Embedder caches vectors from an inner embedder. Reads check the local tier first, then Redis
// with backfill. Redis failures degrade to the inner embedder instead of failing the call.
type Embedder struct {
	inner  memory.Embedder
	local  *gocache.Cache
	redis  goredis.UniversalClient
	cfg    Config
	logger *slog.Logger

	localHits atomic.Int64
	redisHits atomic.Int64
	misses    atomic.Int64
	errors    atomic.Int64
}

// New wraps inner. redis may be nil for a local-only cache.
func New(inner memory.Embedder, redis goredis.UniversalClient, cfg Config, logger *slog.Logger) *Embedder {
	defaults := DefaultConfig()
	if cfg.Namespace == "" {
		cfg.Namespace = defaults.Namespace
	}
	if cfg.LocalTTL <= 0 {
		cfg.LocalTTL = defaults.LocalTTL
	}
	if cfg.RedisTTL <= 0 {
		cfg.RedisTTL = defaults.RedisTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{
		inner:  inner,
		local:  gocache.New(cfg.LocalTTL, cfg.LocalTTL*2),
		redis:  redis,
		cfg:    cfg,
		logger: logger,
	}
}

// Embed returns the cached vector for text or computes and caches it.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.Key(text)

	if val, found := e.local.Get(key); found {
		if vec, ok := val.([]float32); ok {
			e.localHits.Add(1)
			metrics.EmbeddingCacheRequests.WithLabelValues("local").Inc()
			return cloneVector(vec), nil
		}
	}

	if e.redis != nil {
		vec, err := e.getRedis(ctx, key)
		switch {
		case err != nil:
			e.errors.Add(1)
			e.logger.Warn("embedding cache read failed", "error", err)
		case vec != nil:
			e.redisHits.Add(1)
			metrics.EmbeddingCacheRequests.WithLabelValues("redis").Inc()
			e.local.Set(key, vec, gocache.DefaultExpiration)
			return cloneVector(vec), nil
		}
	}

	e.misses.Add(1)
	metrics.EmbeddingCacheRequests.WithLabelValues("miss").Inc()
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	e.local.Set(key, cloneVector(vec), gocache.DefaultExpiration)
	if e.redis != nil {
		if err := e.setRedis(ctx, key, vec); err != nil {
			e.errors.Add(1)
			e.logger.Warn("embedding cache write failed", "error", err)
		}
	}
	return vec, nil
}

// Key returns the cache key for text.
func (e *Embedder) Key(text string) string {
	sum := sha256.Sum256([]byte(e.cfg.Model + "\x00" + text))
	return e.cfg.Namespace + ":" + hex.EncodeToString(sum[:])
}

// Stats returns a snapshot of the counters.
func (e *Embedder) Stats() Stats {
	return Stats{
		LocalHits: e.localHits.Load(),
		RedisHits: e.redisHits.Load(),
		Misses:    e.misses.Load(),
		Errors:    e.errors.Load(),
	}
}

func (e *Embedder) getRedis(ctx context.Context, key string) ([]float32, error) {
	raw, err := e.redis.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, err
	}
	return vec, nil
}

func (e *Embedder) setRedis(ctx context.Context, key string, vec []float32) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	return e.redis.Set(ctx, key, raw, e.cfg.RedisTTL).Err()
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

var _ memory.Embedder = (*Embedder)(nil)
