package cacheinfra

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Capacity != 5000 {
		t.Errorf("expected Capacity to be 5000, got %d", cfg.Capacity)
	}
	if cfg.NumShards != 256 {
		t.Errorf("expected NumShards to be 256, got %d", cfg.NumShards)
	}
	if cfg.TTL != time.Hour {
		t.Errorf("expected TTL to be one hour, got %v", cfg.TTL)
	}
	if cfg.EvictionPercentage != 10 {
		t.Errorf("expected EvictionPercentage to be 10, got %d", cfg.EvictionPercentage)
	}
	if cfg.EarlyRefresh != nil {
		t.Error("expected EarlyRefresh to be disabled")
	}
	if cfg.MissingRecordStorage {
		t.Error("expected MissingRecordStorage to be false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero capacity", func(c *Config) { c.Capacity = 0 }, "Capacity"},
		{"zero shards", func(c *Config) { c.NumShards = 0 }, "NumShards"},
		{"more shards than capacity", func(c *Config) { c.Capacity = 10; c.NumShards = 20 }, "NumShards"},
		{"zero ttl", func(c *Config) { c.TTL = 0 }, "TTL"},
		{"eviction too low", func(c *Config) { c.EvictionPercentage = 0 }, "EvictionPercentage"},
		{"eviction too high", func(c *Config) { c.EvictionPercentage = 101 }, "EvictionPercentage"},
		{"negative early refresh", func(c *Config) {
			c.EarlyRefresh = &EarlyRefreshConfig{RetryBaseDelay: -1}
		}, "EarlyRefresh"},
		{"inverted early refresh window", func(c *Config) {
			c.EarlyRefresh = &EarlyRefreshConfig{MinAsyncRefreshTime: time.Minute, MaxAsyncRefreshTime: time.Second}
		}, "EarlyRefresh.MinAsyncRefreshTime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			err := cfg.Validate()
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, cfgErr.Field)
			}
		})
	}
}

func TestConfig_ToSturdycOptions(t *testing.T) {
	cfg := DefaultConfig()
	if n := len(cfg.ToSturdycOptions()); n != 0 {
		t.Errorf("expected no options by default, got %d", n)
	}

	cfg.EarlyRefresh = &EarlyRefreshConfig{
		MinAsyncRefreshTime: time.Second,
		MaxAsyncRefreshTime: 2 * time.Second,
		SyncRefreshTime:     3 * time.Second,
		RetryBaseDelay:      10 * time.Millisecond,
	}
	cfg.MissingRecordStorage = true
	cfg.EvictionInterval = time.Minute
	if n := len(cfg.ToSturdycOptions()); n != 3 {
		t.Errorf("expected 3 options, got %d", n)
	}
}

func TestConfigError_Error(t *testing.T) {
	err := &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	if got, want := err.Error(), "config error in field TTL: must be greater than 0"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func newService(t *testing.T) *SturdycService {
	t.Helper()
	svc, err := NewSturdycService(DefaultConfig())
	if err != nil {
		t.Fatalf("NewSturdycService: %v", err)
	}
	return svc
}

func TestNewSturdycService_InvalidConfig(t *testing.T) {
	if _, err := NewSturdycService(Config{}); err == nil {
		t.Fatal("expected error for empty config")
	}
}

func TestSturdycService_GetOrFetch(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	var calls int32
	fetch := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return []string{"Housekeeping", "Kitchen"}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := svc.GetOrFetch(ctx, "departments::acme::list", fetch)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if names := got.([]string); len(names) != 2 {
			t.Fatalf("unexpected value %v", got)
		}
	}
	if calls != 1 {
		t.Errorf("expected one fetch, got %d", calls)
	}

	if _, err := svc.GetOrFetch(ctx, "k", nil); err == nil {
		t.Error("expected error for nil fetchFn")
	}
}

func TestSturdycService_ErrorsAreNotCached(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	boom := errors.New("backend down")
	calls := 0
	fetch := func(ctx context.Context) (any, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}
		return "ok", nil
	}

	if _, err := svc.GetOrFetch(ctx, "roles::acme::list", fetch); !errors.Is(err, boom) {
		t.Fatalf("expected backend error, got %v", err)
	}
	got, err := svc.GetOrFetch(ctx, "roles::acme::list", fetch)
	if err != nil || got != "ok" {
		t.Fatalf("expected recovery, got %v %v", got, err)
	}
}

func TestSturdycService_InFlightDeduplication(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	var calls int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 35, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, err := svc.GetOrFetch(ctx, "departments::acme::list::p2", fetch); err != nil || v != 35 {
				t.Errorf("got %v %v", v, err)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Errorf("expected a single shared fetch, got %d", calls)
	}
}

func TestSturdycService_DeleteByPrefix(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	keys := []string{
		"departments::acme::list::a",
		"departments::acme::record::b",
		"departments::acme2::list::a",
		"roles::acme::list::a",
	}
	for _, k := range keys {
		k := k
		if _, err := svc.GetOrFetch(ctx, k, func(ctx context.Context) (any, error) { return k, nil }); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := svc.DeleteByPrefix(ctx, "departments::acme::")
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removals, got %d", removed)
	}

	remaining := svc.Keys()
	sort.Strings(remaining)
	want := []string{"departments::acme2::list::a", "roles::acme::list::a"}
	if len(remaining) != len(want) || remaining[0] != want[0] || remaining[1] != want[1] {
		t.Errorf("remaining keys %v, want %v", remaining, want)
	}
	if svc.Size() != 2 {
		t.Errorf("expected size 2, got %d", svc.Size())
	}
}

func TestSturdycService_DeleteAndInvalidateKeys(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		k := k
		svc.GetOrFetch(ctx, k, func(ctx context.Context) (any, error) { return k, nil })
	}

	if err := svc.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if _, ok := svc.Peek("a"); ok {
		t.Error("a should be gone")
	}

	if err := svc.InvalidateKeys(ctx, []string{"b", "missing"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := svc.Peek("b"); ok {
		t.Error("b should be gone")
	}
	if v, ok := svc.Peek("c"); !ok || v != "c" {
		t.Errorf("c should remain, got %v %v", v, ok)
	}
}
