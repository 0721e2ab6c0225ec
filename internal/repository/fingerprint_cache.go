// internal/repository/fingerprint_cache.go
package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"deal-engine/internal/models"

	"github.com/redis/go-redis/v9"
)

// FingerprintCache maps fingerprint hashes to the id of the stored deal that
// carries them.
type FingerprintCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewFingerprintCache(client *redis.Client, prefix string, ttl time.Duration) *FingerprintCache {
	return &FingerprintCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *FingerprintCache) key(hash string) string {
	return c.prefix + hash
}

// Lookup returns the cached deal id for each hash that has one. Misses are
// absent from the result.
func (c *FingerprintCache) Lookup(ctx context.Context, hashes []string) (map[string]string, error) {
	found := make(map[string]string)
	if len(hashes) == 0 {
		return found, nil
	}

	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = c.key(h)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fingerprint cache lookup: %w", err)
	}

	for i, v := range values {
		if id, ok := v.(string); ok && id != "" {
			found[hashes[i]] = id
		}
	}
	return found, nil
}

// Store records the fingerprint of every deal. Deals without a fingerprint or
// carrying the shared sentinel are skipped.
func (c *FingerprintCache) Store(ctx context.Context, deals []models.DealNormalized) (int, error) {
	entries := make(map[string]string)
	for _, d := range deals {
		if d.Fingerprint == nil || d.Fingerprint.Sentinel || d.Fingerprint.Hash == "" {
			continue
		}
		entries[d.Fingerprint.Hash] = d.ID
	}
	if len(entries) == 0 {
		return 0, nil
	}

	hashes := make([]string, 0, len(entries))
	for h := range entries {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, h := range hashes {
			pipe.Set(ctx, c.key(h), entries[h], c.ttl)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("fingerprint cache store: %w", err)
	}
	return len(hashes), nil
}
