// Package cache implements the typed Redis-backed client (C2): connection
// pool, key constructors, and idempotent single-command read/write
// primitives over the keyspace described in §3/§6.
package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"turboflakes/internal/config"
)

// Commander is the subset of redis.Cmdable exercised by Client. Narrowing to
// an interface (rather than depending on *redis.Client directly) keeps the
// package testable with a hand-rolled fake, the way ethdb/redisdb's
// simpleClient/mockClient pair tests a Redis-backed store without a live
// server, and lets callers construct a Client over an injected double.
type Commander interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) *redis.ZSliceCmd
	ZRangeWithScores(ctx context.Context, key string, start, stop int64) *redis.ZSliceCmd
	ZRevRank(ctx context.Context, key, member string) *redis.IntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// Client is the typed cache client.
type Client struct {
	rdb Commander
}

// NewFromCommander builds a Client over an already-constructed Commander,
// bypassing the pool setup in NewClient. Used by tests and by callers that
// want to inject a redis.Client configured outside this package.
func NewFromCommander(rdb Commander) *Client {
	return &Client{rdb: rdb}
}

// NewClient builds a Client bound to cfg's Redis host/password/database,
// using the fixed pool bounds from config.DefaultRedisPoolConfig.
func NewClient(cfg *config.Config) *Client {
	pool := config.DefaultRedisPoolConfig()
	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.RedisHostname,
		Password:        cfg.RedisPassword,
		DB:              cfg.RedisDatabase,
		PoolSize:        pool.PoolSize,
		MinIdleConns:    pool.MinIdleConns,
		PoolTimeout:     pool.PoolTimeout,
		ConnMaxLifetime: pool.ConnMaxLifetime,
	})
	return &Client{rdb: rdb}
}

// WaitReady blocks, probing with PING every 6 seconds, until the cache
// answers PONG or ctx is cancelled.
func (c *Client) WaitReady(ctx context.Context) error {
	for {
		if err := c.Probe(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(6 * time.Second):
		}
	}
}

// Probe issues a single PING and requires a PONG reply.
func (c *Client) Probe(ctx context.Context) error {
	pong, err := c.rdb.Ping(ctx).Result()
	if err != nil {
		return ErrProbeFailed
	}
	if pong != "PONG" {
		return ErrProbeFailed
	}
	return nil
}

// --- generic hash primitives ---

// HSetFields overwrites the given fields of key in a single HSET command.
func (c *Client) HSetFields(ctx context.Context, key string, fields map[string]string) error {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := c.rdb.HSet(ctx, key, args...).Err(); err != nil {
		return ErrCommandFailed
	}
	return nil
}

// HGetAllFields reads every field of key. The returned bool is false if key
// does not exist.
func (c *Client) HGetAllFields(ctx context.Context, key string) (map[string]string, bool, error) {
	m, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, false, ErrCommandFailed
	}
	if len(m) == 0 {
		return nil, false, nil
	}
	return m, true, nil
}

// HGetField reads a single hash field, returning ("", false, nil) if absent.
func (c *Client) HGetField(ctx context.Context, key, field string) (string, bool, error) {
	v, err := c.rdb.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, ErrCommandFailed
	}
	return v, true, nil
}

// HIncrByField atomically increments a 64-bit-safe counter field. It must
// never be used for stake values (see internal/bignum for those).
func (c *Client) HIncrByField(ctx context.Context, key, field string, delta int64) error {
	if err := c.rdb.HIncrBy(ctx, key, field, delta).Err(); err != nil {
		return ErrCommandFailed
	}
	return nil
}

// --- generic string primitives ---

func (c *Client) SetString(ctx context.Context, key, value string) error {
	if err := c.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return ErrCommandFailed
	}
	return nil
}

func (c *Client) GetString(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, ErrCommandFailed
	}
	return v, true, nil
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, ErrCommandFailed
	}
	return n > 0, nil
}

// --- generic sorted-set (board) primitives ---

// ZAddOne adds or updates a single member's score in a sorted set.
func (c *Client) ZAddOne(ctx context.Context, key string, score float64, member string) error {
	if err := c.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return ErrCommandFailed
	}
	return nil
}

// Member is a (stash, score) pair returned by TopN.
type Member struct {
	Member string
	Score  float64
}

// TopN returns up to n members of key ordered by score descending.
func (c *Client) TopN(ctx context.Context, key string, n int64) ([]Member, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := c.rdb.ZRevRangeWithScores(ctx, key, 0, n-1).Result()
	if err != nil {
		return nil, ErrCommandFailed
	}
	out := make([]Member, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			return nil, ErrTypeMismatch
		}
		out = append(out, Member{Member: member, Score: z.Score})
	}
	return out, nil
}

// BottomN returns up to n members of key ordered by score ascending.
func (c *Client) BottomN(ctx context.Context, key string, n int64) ([]Member, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := c.rdb.ZRangeWithScores(ctx, key, 0, n-1).Result()
	if err != nil {
		return nil, ErrCommandFailed
	}
	out := make([]Member, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			return nil, ErrTypeMismatch
		}
		out = append(out, Member{Member: member, Score: z.Score})
	}
	return out, nil
}

// BoardMinMax returns the minimum and maximum scores stored in a board,
// used to derive leaderboard normalisation limits (§4.6). Returns
// (0, 0, nil) for an empty/missing board.
func (c *Client) BoardMinMax(ctx context.Context, era uint32, name string) (min, max float64, err error) {
	key := EraBoardKey(era, name)
	lo, err := c.BottomN(ctx, key, 1)
	if err != nil {
		return 0, 0, err
	}
	hi, err := c.TopN(ctx, key, 1)
	if err != nil {
		return 0, 0, err
	}
	if len(lo) == 0 || len(hi) == 0 {
		return 0, 0, nil
	}
	return lo[0].Score, hi[0].Score, nil
}

// Rank returns the 1-based rank of member within key by score descending.
// found is false if member is not present.
func (c *Client) Rank(ctx context.Context, key, member string) (rank int64, found bool, err error) {
	r, zErr := c.rdb.ZRevRank(ctx, key, member).Result()
	if zErr == redis.Nil {
		return 0, false, nil
	}
	if zErr != nil {
		return 0, false, ErrCommandFailed
	}
	return r + 1, true, nil
}

// ScanKeys returns every key matching pattern via repeated SCAN cursors.
func (c *Client) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, ErrCommandFailed
		}
		out = append(out, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

// FormatUint is a convenience for building hash-field values from integers,
// since every cache attribute is stored as a string.
func FormatUint(v uint64) string { return strconv.FormatUint(v, 10) }

// FormatBool mirrors the chain adapter/indexer's "true"/"false" string
// convention for boolean attributes.
func FormatBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// ParseBool parses FormatBool's convention, defaulting to false for any
// other value rather than erroring, since a missing attribute must read as
// false.
func ParseBool(v string) bool { return v == "true" }
