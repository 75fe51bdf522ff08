package data

import (
	"context"
	"time"

	pkgredis "github.com/digitalarkcorp/filestorage/internal/pkg/redis"
)

const (
	claimKeyPrefix = "filestorage:write-claim:"

	// claimTTL bounds how long a crashed uploader can hold a claim. It only
	// delays a redundant write, never blocks a correct one.
	claimTTL = 2 * time.Minute
)

// RedisWriteClaimer implements biz.WriteClaimer with a SETNX entry keyed by
// content hash. Best effort: a Redis outage degrades deduplication of
// concurrent identical uploads to the blob store's own idempotent put,
// nothing else.
type RedisWriteClaimer struct {
	client *pkgredis.Client
}

// NewRedisWriteClaimer creates a write claimer over the given Redis client
func NewRedisWriteClaimer(client *pkgredis.Client) *RedisWriteClaimer {
	return &RedisWriteClaimer{client: client}
}

func (c *RedisWriteClaimer) Claim(ctx context.Context, contentHash string) (bool, error) {
	return c.client.SetNX(ctx, claimKeyPrefix+contentHash, "1", claimTTL)
}

func (c *RedisWriteClaimer) Release(ctx context.Context, contentHash string) {
	// Failure here just lets the claim expire by TTL.
	_, _ = c.client.Del(ctx, claimKeyPrefix+contentHash)
}
