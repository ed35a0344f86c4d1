package wallet

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	balanceCacheTTL = 30 * time.Second
	// Outlives any balance computation; an expired counter reads as 0, which
	// still differs from whatever a running computation saw.
	generationTTL = 24 * time.Hour
)

// BalanceCache is an advisory projection of the derived balance. It backs the
// display endpoint only and is never consulted for settlement or guardrail checks.
//
// Writers call Invalidate, which bumps a per-affiliate generation. A reader
// takes the generation before deriving the balance and stores its result only
// if the generation is unchanged, so a figure computed across a ledger write
// is never cached.
type BalanceCache interface {
	Get(ctx context.Context, affiliateEmail string) (decimal.Decimal, bool)
	// Generation returns ok=false when the cache cannot be trusted for a write.
	Generation(ctx context.Context, affiliateEmail string) (int64, bool)
	SetIfGeneration(ctx context.Context, affiliateEmail string, generation int64, available decimal.Decimal)
	Invalidate(ctx context.Context, affiliateEmail string)
}

// setIfGeneration writes KEYS[1] only while KEYS[2] still holds ARGV[1].
var setIfGeneration = redis.NewScript(`
local current = redis.call('GET', KEYS[2])
if (current or '0') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RedisBalanceCache stores the advisory balance as a decimal string.
type RedisBalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisBalanceCache returns nil when client is nil so callers can treat the cache as optional.
func NewRedisBalanceCache(client *redis.Client) *RedisBalanceCache {
	if client == nil {
		return nil
	}
	return &RedisBalanceCache{client: client, ttl: balanceCacheTTL}
}

// Both keys share a hash tag so the script runs on one cluster slot.
func balanceKey(email string) string    { return "wallet:{" + email + "}:balance" }
func generationKey(email string) string { return "wallet:{" + email + "}:gen" }

func (c *RedisBalanceCache) Get(ctx context.Context, affiliateEmail string) (decimal.Decimal, bool) {
	if c == nil {
		return decimal.Zero, false
	}
	raw, err := c.client.Get(ctx, balanceKey(affiliateEmail)).Result()
	if err != nil {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func (c *RedisBalanceCache) Generation(ctx context.Context, affiliateEmail string) (int64, bool) {
	if c == nil {
		return 0, false
	}
	gen, err := c.client.Get(ctx, generationKey(affiliateEmail)).Int64()
	if err == redis.Nil {
		return 0, true
	}
	if err != nil {
		return 0, false
	}
	return gen, true
}

func (c *RedisBalanceCache) SetIfGeneration(ctx context.Context, affiliateEmail string, generation int64, available decimal.Decimal) {
	if c == nil {
		return
	}
	keys := []string{balanceKey(affiliateEmail), generationKey(affiliateEmail)}
	_ = setIfGeneration.Run(ctx, c.client, keys,
		strconv.FormatInt(generation, 10), available.String(), c.ttl.Milliseconds()).Err()
}

func (c *RedisBalanceCache) Invalidate(ctx context.Context, affiliateEmail string) {
	if c == nil {
		return
	}
	_, _ = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(affiliateEmail))
		pipe.Expire(ctx, generationKey(affiliateEmail), generationTTL)
		pipe.Del(ctx, balanceKey(affiliateEmail))
		return nil
	})
}
