package services

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"workshop_server/structs"
	"workshop_server/structs/tables"

	"github.com/MonkyMars/gecho"
	"github.com/redis/go-redis/v9"
)

var redisCtx = context.Background()

// CacheService provides Redis caching with connection pooling and retry logic.
// A disabled cache has no client; reads then miss and writes are dropped.
type CacheService struct {
	logger *gecho.Logger
	config *structs.Config
	client *redis.Client
}

func NewCacheService(logger *gecho.Logger, cfg *structs.Config) *CacheService {
	cs := &CacheService{
		logger: logger,
		config: cfg,
	}
	if cfg.Cache != nil && cfg.Cache.Enabled {
		cs.client = newRedisClient(cfg.Cache)
	}
	return cs
}

func newRedisClient(cfg *structs.CacheConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,

		// Connection pool settings
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		PoolTimeout:     cfg.PoolTimeout,
		ConnMaxIdleTime: cfg.IdleTimeout,

		// Timeouts
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,

		// Retry settings
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: cfg.MinRetryBackoff,
		MaxRetryBackoff: cfg.MaxRetryBackoff,
	})
}

func (cs *CacheService) Enabled() bool {
	return cs != nil && cs.client != nil
}

// Close closes the Redis connection pool
func (cs *CacheService) Close() error {
	if cs.Enabled() {
		return cs.client.Close()
	}
	return nil
}

// withRetry executes a Redis operation with exponential backoff retry logic
func (cs *CacheService) withRetry(operation func() error, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		// Don't retry on the last attempt
		if attempt == maxRetries {
			break
		}

		// Only retry on network/connection errors, not on logical errors like key not found
		if !isRetryableCacheError(err) {
			return err
		}

		time.Sleep(cacheBackoff(attempt))
	}

	return fmt.Errorf("redis operation failed after %d retries: %w", maxRetries, lastErr)
}

// cacheBackoff is 100ms doubling per attempt, capped at 2s, with ±50% jitter
func cacheBackoff(attempt int) time.Duration {
	backoff := min(100*(1<<attempt), 2000)

	jitterBytes := make([]byte, 4)
	if _, err := rand.Read(jitterBytes); err != nil {
		return time.Duration(backoff) * time.Millisecond
	}
	jitter := int(uint32(jitterBytes[0])<<24|uint32(jitterBytes[1])<<16|uint32(jitterBytes[2])<<8|uint32(jitterBytes[3])) % (backoff/2 + 1)

	return time.Duration(backoff/2+jitter) * time.Millisecond
}

// isRetryableCacheError determines if an error is worth retrying
func isRetryableCacheError(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}

	errStr := err.Error()
	retryableErrors := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"broken pipe",
		"no such host",
		"network is unreachable",
	}

	for _, retryableErr := range retryableErrors {
		if strings.Contains(errStr, retryableErr) {
			return true
		}
	}

	return false
}

// Set sets a key with TTL and automatic retry logic
func (cs *CacheService) Set(key string, value any, ttl time.Duration) error {
	if !cs.Enabled() {
		return nil
	}
	return cs.withRetry(func() error {
		return cs.client.Set(redisCtx, key, value, ttl).Err()
	}, 3)
}

// Get retrieves a key with automatic retry logic; a miss returns ""
func (cs *CacheService) Get(key string) (string, error) {
	if !cs.Enabled() {
		return "", nil
	}

	var result string
	err := cs.withRetry(func() error {
		val, err := cs.client.Get(redisCtx, key).Result()
		if errors.Is(err, redis.Nil) {
			result = ""
			return nil // Don't retry on key not found
		}
		if err != nil {
			return err
		}
		result = val
		return nil
	}, 3)
	if err != nil {
		return "", err
	}

	return result, nil
}

// Delete removes a key with automatic retry logic
func (cs *CacheService) Delete(key string) error {
	if !cs.Enabled() {
		return nil
	}
	return cs.withRetry(func() error {
		return cs.client.Del(redisCtx, key).Err()
	}, 3)
}

// DeletePattern removes all keys matching a pattern using SCAN
func (cs *CacheService) DeletePattern(pattern string) error {
	if !cs.Enabled() {
		return nil
	}
	return cs.withRetry(func() error {
		var cursor uint64
		for {
			keys, nextCursor, err := cs.client.Scan(redisCtx, cursor, pattern, 100).Result()
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}

			if len(keys) > 0 {
				if err := cs.client.Del(redisCtx, keys...).Err(); err != nil {
					return fmt.Errorf("delete failed: %w", err)
				}
			}

			cursor = nextCursor
			if cursor == 0 {
				return nil
			}
		}
	}, 3)
}

func (cs *CacheService) ClearAll() error {
	if !cs.Enabled() {
		return nil
	}
	return cs.withRetry(func() error {
		return cs.client.FlushDB(redisCtx).Err()
	}, 3)
}

// IncrementRateLimit atomically increments a rate limit counter. With the
// cache disabled it always reports zero.
func (cs *CacheService) IncrementRateLimit(ip, endpoint string, ttl time.Duration) (int, error) {
	if !cs.Enabled() {
		return 0, nil
	}
	key := fmt.Sprintf("ratelimit:%s:%s", ip, endpoint)

	var result int64
	err := cs.withRetry(func() error {
		val, err := cs.client.Incr(redisCtx, key).Result()
		if err != nil {
			return err
		}
		result = val

		// Set expiration only on first increment
		if val == 1 {
			return cs.client.Expire(redisCtx, key, ttl).Err()
		}

		return nil
	}, 3)

	return int(result), err
}

// Ping tests the Redis connection
func (cs *CacheService) Ping() error {
	if !cs.Enabled() {
		return errors.New("cache is disabled")
	}
	return cs.withRetry(func() error {
		return cs.client.Ping(redisCtx).Err()
	}, 3)
}

// GetConnectionStats returns Redis connection pool statistics
func (cs *CacheService) GetConnectionStats() map[string]any {
	if !cs.Enabled() {
		return map[string]any{"enabled": false}
	}
	stats := cs.client.PoolStats()

	return map[string]any{
		"enabled":     true,
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"stale_conns": stats.StaleConns,
	}
}

// ============================================================================
// Image Caching Methods
// ============================================================================

func imageListKey(parent structs.ParentRef) string {
	return fmt.Sprintf("images:%s:%s", parent.Kind, parent.ID)
}

// GetImageList retrieves the cached image rows of a product or service
func (cs *CacheService) GetImageList(parent structs.ParentRef) ([]tables.Image, error) {
	key := imageListKey(parent)

	rows, err := getJSON[[]tables.Image](cs, key)
	if err != nil {
		cs.logger.Warn("Failed to get images from cache", gecho.Field("error", err), gecho.Field("key", key))
		return nil, err
	}

	if rows == nil {
		return nil, nil
	}

	return *rows, nil
}

// SetImageList caches the image rows of a product or service
func (cs *CacheService) SetImageList(parent structs.ParentRef, rows []tables.Image) error {
	return setJSON(cs, imageListKey(parent), rows, cs.getImageListTTL())
}

// InvalidateImageList drops the cached rows; called after every commit
func (cs *CacheService) InvalidateImageList(parent structs.ParentRef) error {
	return cs.Delete(imageListKey(parent))
}

// InvalidateAllImageLists removes every cached image list
func (cs *CacheService) InvalidateAllImageLists() error {
	cs.logger.Warn("Invalidating ALL image caches")
	return cs.DeletePattern("images:*")
}

// ============================================================================
// Helper Methods
// ============================================================================

// getImageListTTL returns the TTL for image lists from config
func (cs *CacheService) getImageListTTL() time.Duration {
	if cs.config != nil && cs.config.Cache != nil && cs.config.Cache.ImageListTTL > 0 {
		return cs.config.Cache.ImageListTTL
	}
	return 10 * time.Minute // fallback default
}

func setJSON[T any](cs *CacheService, key string, value T, ttl time.Duration) error {
	if !cs.Enabled() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return cs.Set(key, data, ttl)
}

func getJSON[T any](cs *CacheService, key string) (*T, error) {
	val, err := cs.Get(key)
	if err != nil {
		return nil, err
	}

	if val == "" {
		return nil, nil // not found in cache
	}

	var result T
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return nil, err
	}

	return &result, nil
}
