package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/alert-triage/internal/cache"
	"github.com/miradorstack/alert-triage/internal/engine"
)

type countingCache struct {
	cache.Provider
	gets int
	sets int
}

func (c *countingCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.gets++
	return c.Provider.Get(ctx, key)
}

func (c *countingCache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	c.sets++
	return c.Provider.SetNX(ctx, key, value, ttl)
}

type failingCache struct {
	cache.NoopProvider
}

func (failingCache) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func scoreRequest(t *testing.T, config map[string]any) *structpb.Struct {
	t.Helper()
	if config == nil {
		config = map[string]any{
			"frequency_threshold": map[string]any{"time_window": "10m", "count": 2},
			"frequency_weight":    2,
			"severity_weight":     1,
			"role_weights":        map[string]any{"admin": 3, "user": 1},
			"role_weight":         2,
			"ip_blacklist":        []any{"192.168.1.1"},
		}
	}
	req, err := structpb.NewStruct(map[string]any{
		"config": config,
		"alerts": []any{
			map[string]any{"alert_id": "1", "source_ip": "192.168.1.1", "timestamp": "2025-01-01T12:00:00", "severity": 5, "user_role": "admin"},
			map[string]any{"alert_id": "2", "source_ip": "10.0.0.1", "timestamp": "bad", "severity": 1, "user_role": "guest"},
		},
	})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return req
}

func newService(provider cache.Provider) *ScoringService {
	return NewScoringService(nil, engine.NewCoordinator(nil, engine.Options{ChunkSize: 1, Workers: 2}), provider, time.Minute)
}

func TestScoreAlerts(t *testing.T) {
	service := newService(nil)

	resp, err := service.ScoreAlerts(context.Background(), scoreRequest(t, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	results := resp.Fields["results"].GetListValue().GetValues()
	if len(results) != 1 {
		t.Fatalf("expected 1 scored alert, got %d", len(results))
	}
	first := results[0].GetStructValue().GetFields()
	if first["risk_score"].GetNumberValue() != 21 || first["priority"].GetStringValue() != "High" {
		t.Fatalf("unexpected result %v", first)
	}
	if n := len(resp.Fields["malformed"].GetListValue().GetValues()); n != 1 {
		t.Fatalf("expected malformed row to be reported, got %d", n)
	}
	if resp.Fields["run_id"].GetStringValue() == "" {
		t.Fatalf("expected run id")
	}
}

func TestScoreAlertsUsesCache(t *testing.T) {
	provider := &countingCache{Provider: cache.NewMemoryProvider()}
	service := newService(provider)

	first, err := service.ScoreAlerts(context.Background(), scoreRequest(t, nil))
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := service.ScoreAlerts(context.Background(), scoreRequest(t, nil))
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if provider.sets != 1 || provider.gets != 2 {
		t.Fatalf("expected one store and two lookups, got sets=%d gets=%d", provider.sets, provider.gets)
	}
	if first.Fields["cached"].GetBoolValue() || !second.Fields["cached"].GetBoolValue() {
		t.Fatalf("expected only the second response to be marked cached")
	}
	firstID := first.Fields["run_id"].GetStringValue()
	secondID := second.Fields["run_id"].GetStringValue()
	if secondID == "" || firstID == secondID {
		t.Fatalf("expected a fresh run id on cache hit, got %q and %q", firstID, secondID)
	}
	if !proto.Equal(first.Fields["results"], second.Fields["results"]) {
		t.Fatalf("expected cached results to match the original run")
	}
}

func TestScoreAlertsReplacesUndecodableCacheEntry(t *testing.T) {
	provider := cache.NewMemoryProvider()
	service := newService(provider)
	req := scoreRequest(t, nil)
	key, err := cacheKey(req)
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if err := provider.Set(context.Background(), key, []byte{0xff, 0xff}, 0); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	resp, err := service.ScoreAlerts(context.Background(), req)
	if err != nil {
		t.Fatalf("score alerts: %v", err)
	}
	if resp.Fields["cached"].GetBoolValue() {
		t.Fatalf("undecodable entry must not be served")
	}
	stored, err := provider.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("expected fresh entry to be stored: %v", err)
	}
	var decoded structpb.Struct
	if err := proto.Unmarshal(stored, &decoded); err != nil {
		t.Fatalf("stored entry should decode: %v", err)
	}
}

func TestScoreAlertsCacheErrorFallsThrough(t *testing.T) {
	service := newService(failingCache{})
	if _, err := service.ScoreAlerts(context.Background(), scoreRequest(t, nil)); err != nil {
		t.Fatalf("cache errors must not fail the call: %v", err)
	}
}

func TestScoreAlertsInvalidArgument(t *testing.T) {
	service := newService(nil)

	if _, err := service.ScoreAlerts(context.Background(), nil); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument for nil request, got %v", err)
	}

	badConfig := scoreRequest(t, map[string]any{"frequency_weight": 3})
	if _, err := service.ScoreAlerts(context.Background(), badConfig); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument for incomplete config, got %v", err)
	}
}

func TestScoreAlertsCancelled(t *testing.T) {
	service := newService(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := service.ScoreAlerts(ctx, scoreRequest(t, nil)); status.Code(err) != codes.Canceled {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestScoreAlertsWithoutCoordinator(t *testing.T) {
	service := NewScoringService(nil, nil, nil, 0)
	if _, err := service.ScoreAlerts(context.Background(), scoreRequest(t, nil)); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed precondition, got %v", err)
	}
}

func TestCacheKeyIgnoresFieldOrder(t *testing.T) {
	a, _ := structpb.NewStruct(map[string]any{"x": 1, "y": "two"})
	b, _ := structpb.NewStruct(map[string]any{"y": "two", "x": 1})
	keyA, err := cacheKey(a)
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	keyB, _ := cacheKey(b)
	if keyA != keyB {
		t.Fatalf("expected equal keys, got %s and %s", keyA, keyB)
	}
}
