// Package cache stores evaluation results in Redis, keyed by a fingerprint
// of the request, so identical runs are answered without recomputation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/tscv-go/internal/metrics"
	"github.com/irfndi/tscv-go/internal/models"
)

// DefaultPrefix namespaces every result key.
const DefaultPrefix = "tscv:result:"

// ResultCacheEntry wraps a cached value with its timestamps.
type ResultCacheEntry struct {
	Value     json.RawMessage `json:"value"`
	CachedAt  time.Time       `json:"cached_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// ResultCacheStats tracks cache performance
type ResultCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	Errors int64 `json:"errors"`
}

// ResultCache is a Redis-backed JSON cache for run results.
type ResultCache struct {
	redis    *redis.Client
	ttl      time.Duration
	prefix   string
	logger   *logrus.Logger
	recorder *metrics.Recorder

	mu    sync.RWMutex
	stats ResultCacheStats
}

// NewResultCache creates a new ResultCache. recorder may be nil.
func NewResultCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger, recorder *metrics.Recorder) *ResultCache {
	return &ResultCache{
		redis:    client,
		ttl:      ttl,
		prefix:   DefaultPrefix,
		logger:   logger,
		recorder: recorder,
	}
}

// Get decodes the value stored under key into dst. It reports false on a
// miss. Redis and decoding errors are returned and also count as misses.
func (c *ResultCache) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.count(func(s *ResultCacheStats) { s.Misses++ })
		c.recorder.ObserveCacheLookup(false)
		return false, nil
	}
	if err != nil {
		c.count(func(s *ResultCacheStats) { s.Misses++; s.Errors++ })
		c.recorder.ObserveCacheLookup(false)
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var entry ResultCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.count(func(s *ResultCacheStats) { s.Misses++; s.Errors++ })
		c.recorder.ObserveCacheLookup(false)
		return false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	if err := json.Unmarshal(entry.Value, dst); err != nil {
		c.count(func(s *ResultCacheStats) { s.Misses++; s.Errors++ })
		c.recorder.ObserveCacheLookup(false)
		return false, fmt.Errorf("decode cached value %s: %w", key, err)
	}

	c.count(func(s *ResultCacheStats) { s.Hits++ })
	c.recorder.ObserveCacheLookup(true)
	c.logger.WithField("key", key).Debug("Result cache hit")
	return true, nil
}

// Set stores value under key with the cache TTL.
func (c *ResultCache) Set(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value %s: %w", key, err)
	}
	now := time.Now()
	entry := ResultCacheEntry{Value: raw, CachedAt: now, ExpiresAt: now.Add(c.ttl)}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	if err := c.redis.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		c.count(func(s *ResultCacheStats) { s.Errors++ })
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	c.count(func(s *ResultCacheStats) { s.Sets++ })
	c.logger.WithFields(logrus.Fields{"key": key, "ttl": c.ttl.String()}).Debug("Cached result")
	return nil
}

// Delete removes one key.
func (c *ResultCache) Delete(ctx context.Context, key string) error {
	return c.redis.Del(ctx, c.prefix+key).Err()
}

// Clear removes every cached result and returns how many keys it deleted.
func (c *ResultCache) Clear(ctx context.Context) (int, error) {
	var keys []string
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("error scanning cache keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("error clearing cache: %w", err)
	}
	c.logger.WithField("keys", len(keys)).Info("Cleared result cache")
	return len(keys), nil
}

// GetStats returns a snapshot of the cache statistics.
func (c *ResultCache) GetStats() ResultCacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// LogStats logs the hit rate.
func (c *ResultCache) LogStats() {
	stats := c.GetStats()
	hitRate := 0.0
	if total := stats.Hits + stats.Misses; total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	c.logger.WithFields(logrus.Fields{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"sets":     stats.Sets,
		"errors":   stats.Errors,
		"hit_rate": fmt.Sprintf("%.2f%%", hitRate),
	}).Info("Result cache stats")
}

func (c *ResultCache) count(update func(*ResultCacheStats)) {
	c.mu.Lock()
	update(&c.stats)
	c.mu.Unlock()
}

// Fingerprint identifies a run request: the run kind, the JSON encoding of
// params and the series values, offset and target channels.
func Fingerprint(kind string, series models.Series, params interface{}) (string, error) {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})

	p, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}
	h.Write(p)
	h.Write([]byte{0})

	var buf [8]byte
	writeInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		h.Write(buf[:])
	}
	writeInt(series.Len())
	writeInt(series.Channels())
	writeInt(series.Offset())
	for _, idx := range series.TargetIdx() {
		writeInt(idx)
	}
	for t := 0; t < series.Len(); t++ {
		for _, v := range series.RawRow(t) {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write(buf[:])
		}
	}
	return kind + ":" + hex.EncodeToString(h.Sum(nil)), nil
}
