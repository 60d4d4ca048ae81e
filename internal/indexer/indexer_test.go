package indexer

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"turboflakes/internal/cache"
	"turboflakes/internal/chain"
)

// zsetCommander is a minimal cache.Commander fake backing only the sorted
// set used by ActiveErasInWindow, enough to exercise inclusionWindowStats
// without a live Redis server.
type zsetCommander struct {
	zsets map[string]map[string]float64
}

func newZsetCommander() *zsetCommander {
	return &zsetCommander{zsets: map[string]map[string]float64{}}
}

func (z *zsetCommander) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}
func (z *zsetCommander) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	cmd.SetErr(redis.Nil)
	return cmd
}
func (z *zsetCommander) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	return redis.NewStatusCmd(ctx)
}
func (z *zsetCommander) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	return redis.NewIntCmd(ctx)
}
func (z *zsetCommander) HGet(ctx context.Context, key, field string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	cmd.SetErr(redis.Nil)
	return cmd
}
func (z *zsetCommander) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	cmd := redis.NewMapStringStringCmd(ctx)
	cmd.SetVal(map[string]string{})
	return cmd
}
func (z *zsetCommander) HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd {
	return redis.NewIntCmd(ctx)
}
func (z *zsetCommander) ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	zs, ok := z.zsets[key]
	if !ok {
		zs = map[string]float64{}
		z.zsets[key] = zs
	}
	for _, m := range members {
		zs[m.Member.(string)] = m.Score
	}
	cmd.SetVal(int64(len(members)))
	return cmd
}
func (z *zsetCommander) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) *redis.ZSliceCmd {
	cmd := redis.NewZSliceCmd(ctx)
	var out []redis.Z
	for member, score := range z.zsets[key] {
		out = append(out, redis.Z{Member: member, Score: score})
	}
	cmd.SetVal(out)
	return cmd
}
func (z *zsetCommander) ZRangeWithScores(ctx context.Context, key string, start, stop int64) *redis.ZSliceCmd {
	cmd := redis.NewZSliceCmd(ctx)
	var out []redis.Z
	for member, score := range z.zsets[key] {
		out = append(out, redis.Z{Member: member, Score: score})
	}
	cmd.SetVal(out)
	return cmd
}
func (z *zsetCommander) ZRevRank(ctx context.Context, key, member string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	cmd.SetErr(redis.Nil)
	return cmd
}
func (z *zsetCommander) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	return redis.NewIntCmd(ctx)
}
func (z *zsetCommander) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	return redis.NewScanCmd(ctx, nil)
}

func TestInclusionWindowStats(t *testing.T) {
	fc := newZsetCommander()
	c := cache.NewFromCommander(fc)
	ix := &Indexer{Cache: c, HistoryDepth: 10}
	ctx := context.Background()

	stash := "5Fstash"
	for era, points := range map[uint32]uint32{8: 100, 9: 200, 12: 300} {
		if err := ix.Cache.AddActiveEra(ctx, stash, era, points); err != nil {
			t.Fatal(err)
		}
	}

	rate, avg, err := ix.inclusionWindowStats(ctx, stash, 5, 10)
	if err != nil {
		t.Fatal(err)
	}
	if rate != float32(2)/float32(5) {
		t.Fatalf("expected rate 2/5, got %v", rate)
	}
	if avg != 150 {
		t.Fatalf("expected avg 150, got %v", avg)
	}
}

func TestInclusionWindowStatsEmptyWindow(t *testing.T) {
	fc := newZsetCommander()
	c := cache.NewFromCommander(fc)
	ix := &Indexer{Cache: c, HistoryDepth: 10}

	rate, avg, err := ix.inclusionWindowStats(context.Background(), "nobody", 5, 5)
	if err != nil {
		t.Fatal(err)
	}
	if rate != 0 || avg != 0 {
		t.Fatalf("expected 0/0 for empty window, got rate=%v avg=%v", rate, avg)
	}
}

func TestSumExposures(t *testing.T) {
	others := []chain.IndividualExposure{
		{Stash: "a", Value: "10"},
		{Stash: "b", Value: "20"},
	}
	if got := sumExposures(others); got != "30" {
		t.Fatalf("expected 30, got %s", got)
	}
}

func TestBignumFloat(t *testing.T) {
	if got := bignumFloat("1000"); got != 1000 {
		t.Fatalf("expected 1000, got %v", got)
	}
	if got := bignumFloat(""); got != 0 {
		t.Fatalf("expected 0 for empty string, got %v", got)
	}
}
