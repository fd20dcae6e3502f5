package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryProviderRoundTrip(t *testing.T) {
	ctx := context.Background()
	provider := NewMemoryProvider()

	if _, err := provider.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
	value := []byte("payload")
	if err := provider.Set(ctx, "k", value, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	value[0] = 'X'

	got, err := provider.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("expected stored copy, got %q", got)
	}

	if err := provider.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := provider.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestMemoryProviderExpiry(t *testing.T) {
	ctx := context.Background()
	provider := NewMemoryProvider()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	provider.now = func() time.Time { return now }

	if err := provider.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := provider.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired entry to miss, got %v", err)
	}

	ok, err := provider.SetNX(ctx, "k", []byte("fresh"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected SetNX to succeed on expired key: ok=%v err=%v", ok, err)
	}
	ok, err = provider.SetNX(ctx, "k", []byte("again"), time.Minute)
	if err != nil || ok {
		t.Fatalf("expected SetNX to refuse live key: ok=%v err=%v", ok, err)
	}
}

func TestNoopProvider(t *testing.T) {
	var provider Provider = NoopProvider{}
	if err := provider.Set(context.Background(), "k", []byte("v"), time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := provider.Get(context.Background(), "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected noop provider to always miss")
	}
}

func TestNewValkeyProviderRequiresAddr(t *testing.T) {
	if _, err := NewValkeyProvider(ValkeyConfig{}); err == nil {
		t.Fatalf("expected error without addr")
	}
}

func TestValkeyClientOptions(t *testing.T) {
	cfg := ValkeyConfig{Addr: "cache.internal:6380", TLS: true, DB: 2}
	normaliseDurations(&cfg)
	opts := clientOptions(cfg)
	if opts.TLSConfig == nil || opts.TLSConfig.ServerName != "cache.internal" {
		t.Fatalf("expected TLS server name derived from addr, got %+v", opts.TLSConfig)
	}
	if opts.DB != 2 || opts.MaxRetries != 1 || opts.ReadTimeout != 500*time.Millisecond {
		t.Fatalf("unexpected options %+v", opts)
	}
}
