package config

import "testing"

func TestLoadWithLookupDefaults(t *testing.T) {
	cfg, err := LoadWithLookup(func(string) string { return "" })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.HistoryDepth != 84 {
		t.Fatalf("expected default history depth 84, got %d", cfg.HistoryDepth)
	}
}

func TestLoadWithLookupOverrides(t *testing.T) {
	env := map[string]string{
		envHost:            "127.0.0.1",
		envPort:            "9001",
		envRedisDatabase:   "3",
		envCORSAllowOrigin: "https://example.com",
		envHistoryDepth:    "100",
	}

	cfg, err := LoadWithLookup(func(key string) string { return env[key] })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := []struct {
		name string
		got  any
		want any
	}{
		{"host", cfg.Host, "127.0.0.1"},
		{"port", cfg.Port, "9001"},
		{"redis database", cfg.RedisDatabase, 3},
		{"cors origin", cfg.CORSAllowOrigin, "https://example.com"},
		{"history depth", cfg.HistoryDepth, uint32(100)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Fatalf("got %v, want %v", tc.got, tc.want)
			}
		})
	}

	if cfg.ListenAddress() != "127.0.0.1:9001" {
		t.Fatalf("unexpected listen address: %s", cfg.ListenAddress())
	}
}

func TestLoadWithLookupRejectsInvalidRedisDatabase(t *testing.T) {
	env := map[string]string{envRedisDatabase: "not-a-number"}
	if _, err := LoadWithLookup(func(key string) string { return env[key] }); err == nil {
		t.Fatal("expected error for invalid REDIS_DATABASE")
	}
}
