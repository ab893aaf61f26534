package redisstore

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/gemini-pool-gateway/internal/domain"
)

// ImageCache stores generated image bytes durably and hands back opaque ids.
// Entries expire after the configured TTL; the gateway never serves the bytes
// itself, a separate collaborator resolves ids when needed.
type ImageCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewImageCache constructs an ImageCache with the given retention.
func NewImageCache(rdb *redis.Client, ttl time.Duration) *ImageCache {
	return &ImageCache{rdb: rdb, ttl: ttl}
}

var cacheEntropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0) //nolint:gosec // Weak random is sufficient for ULID entropy.

// Save persists image bytes with metadata and returns the assigned id.
func (c *ImageCache) Save(ctx domain.Context, data []byte, mimeType, filename string) (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), cacheEntropy)
	if err != nil {
		return "", fmt.Errorf("op=imagecache.save id: %w", err)
	}
	key := "image:" + id.String()
	fields := map[string]any{
		"data":     data,
		"mime":     mimeType,
		"filename": filename,
	}
	if err := c.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return "", fmt.Errorf("op=imagecache.save: %w", err)
	}
	if c.ttl > 0 {
		if err := c.rdb.Expire(ctx, key, c.ttl).Err(); err != nil {
			return "", fmt.Errorf("op=imagecache.save expire: %w", err)
		}
	}
	return id.String(), nil
}
