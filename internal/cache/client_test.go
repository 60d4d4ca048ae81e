package cache

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeCommander is a minimal in-memory stand-in for Commander, grounded on
// the mockClient/simpleClient pattern used to test a Redis-backed store
// without a live server.
type fakeCommander struct {
	strings map[string]string
	hashes  map[string]map[string]string
	zsets   map[string]map[string]float64
}

func newFakeCommander() *fakeCommander {
	return &fakeCommander{
		strings: map[string]string{},
		hashes:  map[string]map[string]string{},
		zsets:   map[string]map[string]float64{},
	}
}

func (f *fakeCommander) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}

func (f *fakeCommander) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	v, ok := f.strings[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *fakeCommander) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	f.strings[key] = value.(string)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeCommander) HGet(ctx context.Context, key, field string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	h, ok := f.hashes[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	v, ok := h[field]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *fakeCommander) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	cmd := redis.NewMapStringStringCmd(ctx)
	h := f.hashes[key]
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	cmd.SetVal(out)
	return cmd
}

func (f *fakeCommander) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	h, ok := f.hashes[key]
	if !ok {
		h = map[string]string{}
		f.hashes[key] = h
	}
	added := 0
	for i := 0; i+1 < len(values); i += 2 {
		k := values[i].(string)
		v := values[i+1].(string)
		if _, exists := h[k]; !exists {
			added++
		}
		h[k] = v
	}
	cmd.SetVal(int64(added))
	return cmd
}

func (f *fakeCommander) HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	h, ok := f.hashes[key]
	if !ok {
		h = map[string]string{}
		f.hashes[key] = h
	}
	h[field] = addIntString(h[field], incr)
	cmd.SetVal(0)
	return cmd
}

func addIntString(s string, delta int64) string {
	n := int64(0)
	for _, r := range s {
		if r < '0' || r > '9' {
			n = 0
			break
		}
		n = n*10 + int64(r-'0')
	}
	n += delta
	return itoa(n)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{byte('0' + n%10)}, buf...)
		n /= 10
	}
	if neg {
		buf = append([]byte{'-'}, buf...)
	}
	return string(buf)
}

func (f *fakeCommander) ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	z, ok := f.zsets[key]
	if !ok {
		z = map[string]float64{}
		f.zsets[key] = z
	}
	for _, m := range members {
		z[m.Member.(string)] = m.Score
	}
	cmd.SetVal(int64(len(members)))
	return cmd
}

func (f *fakeCommander) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) *redis.ZSliceCmd {
	cmd := redis.NewZSliceCmd(ctx)
	z := f.zsets[key]
	type kv struct {
		k string
		v float64
	}
	all := make([]kv, 0, len(z))
	for k, v := range z {
		all = append(all, kv{k, v})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].v > all[j].v })
	if stop < 0 || stop >= int64(len(all)) {
		stop = int64(len(all)) - 1
	}
	var out []redis.Z
	for i := start; i <= stop && i < int64(len(all)); i++ {
		out = append(out, redis.Z{Member: all[i].k, Score: all[i].v})
	}
	cmd.SetVal(out)
	return cmd
}

func (f *fakeCommander) ZRangeWithScores(ctx context.Context, key string, start, stop int64) *redis.ZSliceCmd {
	cmd := redis.NewZSliceCmd(ctx)
	z := f.zsets[key]
	type kv struct {
		k string
		v float64
	}
	all := make([]kv, 0, len(z))
	for k, v := range z {
		all = append(all, kv{k, v})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].v < all[j].v })
	if stop < 0 || stop >= int64(len(all)) {
		stop = int64(len(all)) - 1
	}
	var out []redis.Z
	for i := start; i <= stop && i < int64(len(all)); i++ {
		out = append(out, redis.Z{Member: all[i].k, Score: all[i].v})
	}
	cmd.SetVal(out)
	return cmd
}

func (f *fakeCommander) ZRevRank(ctx context.Context, key, member string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	z := f.zsets[key]
	type kv struct {
		k string
		v float64
	}
	all := make([]kv, 0, len(z))
	for k, v := range z {
		all = append(all, kv{k, v})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].v > all[j].v })
	for i, e := range all {
		if e.k == member {
			cmd.SetVal(int64(i))
			return cmd
		}
	}
	cmd.SetErr(redis.Nil)
	return cmd
}

func (f *fakeCommander) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	var n int64
	for _, k := range keys {
		if _, ok := f.hashes[k]; ok {
			n++
			continue
		}
		if _, ok := f.strings[k]; ok {
			n++
			continue
		}
		if _, ok := f.zsets[k]; ok {
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func (f *fakeCommander) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	cmd := redis.NewScanCmd(ctx, nil)
	var keys []string
	for k := range f.hashes {
		if globMatch(match, k) {
			keys = append(keys, k)
		}
	}
	cmd.SetVal(keys, 0)
	return cmd
}

// globMatch supports the single "*" prefix/suffix form used by this
// package's scan patterns.
func globMatch(pattern, s string) bool {
	if pattern == "*" {
		return true
	}
	if len(pattern) > 0 && pattern[0] == '*' {
		suffix := pattern[1:]
		return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
	}
	return pattern == s
}

func newTestClient() (*Client, *fakeCommander) {
	fc := newFakeCommander()
	return NewFromCommander(fc), fc
}

func TestProbe(t *testing.T) {
	c, _ := newTestClient()
	if err := c.Probe(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHashRoundTrip(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()
	if err := c.HSetFields(ctx, "k", map[string]string{"a": "1", "b": "2"}); err != nil {
		t.Fatalf("HSetFields: %v", err)
	}
	m, ok, err := c.HGetAllFields(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("HGetAllFields: ok=%v err=%v", ok, err)
	}
	if m["a"] != "1" || m["b"] != "2" {
		t.Fatalf("unexpected fields: %+v", m)
	}
}

func TestHGetAllMissingKey(t *testing.T) {
	c, _ := newTestClient()
	_, ok, err := c.HGetAllFields(context.Background(), "missing")
	if err != nil || ok {
		t.Fatalf("expected ok=false err=nil, got ok=%v err=%v", ok, err)
	}
}

func TestBoardTopNAndRank(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()
	if err := c.AddToBoard(ctx, 100, "points:val", "stashA", 10); err != nil {
		t.Fatal(err)
	}
	if err := c.AddToBoard(ctx, 100, "points:val", "stashB", 30); err != nil {
		t.Fatal(err)
	}
	if err := c.AddToBoard(ctx, 100, "points:val", "stashC", 20); err != nil {
		t.Fatal(err)
	}

	top, err := c.BoardTopN(ctx, 100, "points:val", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 || top[0].Member != "stashB" || top[1].Member != "stashC" {
		t.Fatalf("unexpected top-n: %+v", top)
	}

	rank, found, err := c.BoardRank(ctx, 100, "points:val", "stashC")
	if err != nil || !found || rank != 2 {
		t.Fatalf("expected rank 2, got rank=%d found=%v err=%v", rank, found, err)
	}

	_, found, err = c.BoardRank(ctx, 100, "points:val", "stashZ")
	if err != nil || found {
		t.Fatalf("expected not found for unknown member")
	}
}

func TestResetNominatorCounters(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()
	_ = c.HSetFields(ctx, ValidatorKey("X"), map[string]string{"nominators": "5", "nominators_stake": "500"})
	if err := c.ResetNominatorCounters(ctx, "X"); err != nil {
		t.Fatal(err)
	}
	m, _, _ := c.HGetAllFields(ctx, ValidatorKey("X"))
	if m["nominators"] != "0" || m["nominators_stake"] != "0" {
		t.Fatalf("expected counters reset to 0, got %+v", m)
	}
}
