package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/alert-triage/internal/api"
	"github.com/miradorstack/alert-triage/internal/cache"
	"github.com/miradorstack/alert-triage/internal/engine"
	"github.com/miradorstack/alert-triage/internal/metrics"
	"github.com/miradorstack/alert-triage/internal/scoring"
	"github.com/miradorstack/alert-triage/internal/utils"
)

const (
	cacheKeyPrefix = "alert-triage:score:"

	fieldRunID  = "run_id"
	fieldCached = "cached"
)

// ScoringService implements the gRPC AlertTriage service.
type ScoringService struct {
	logger      *slog.Logger
	coordinator *engine.Coordinator
	cache       cache.Provider
	cacheTTL    time.Duration
	latencies   *utils.LatencyTracker
}

// NewScoringService constructs the scoring service facade. A nil provider
// disables response caching.
func NewScoringService(logger *slog.Logger, coordinator *engine.Coordinator, provider cache.Provider, cacheTTL time.Duration) *ScoringService {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	return &ScoringService{
		logger:      logger,
		coordinator: coordinator,
		cache:       provider,
		cacheTTL:    cacheTTL,
		latencies:   utils.NewLatencyTracker(1024),
	}
}

// ScoreAlerts scores the alerts carried by req against its embedded config.
// Identical requests are answered from the response cache when one is set; a
// cached answer carries the stored results under a fresh run_id and has
// "cached" set to true.
func (s *ScoringService) ScoreAlerts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if s.coordinator == nil {
		return nil, status.Error(codes.FailedPrecondition, "coordinator not configured")
	}

	key, err := cacheKey(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if cached, ok := s.lookup(ctx, key); ok {
		runID := uuid.NewString()
		cached.Fields[fieldRunID] = structpb.NewStringValue(runID)
		cached.Fields[fieldCached] = structpb.NewBoolValue(true)
		s.logger.Debug("served scoring response from cache", slog.String("run_id", runID), slog.String("key", key))
		return cached, nil
	}

	domainReq, err := api.FromProtoScoreRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	cfg, err := scoring.ParseConfig(domainReq.Config)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	start := time.Now()
	result, err := s.coordinator.Run(ctx, cfg, domainReq.Alerts)
	duration := time.Since(start)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, status.FromContextError(err).Err()
		}
		s.logger.Error("scoring run failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, fmt.Sprintf("scoring failed: %v", err))
	}
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("scoring latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}

	resp, err := api.ToProtoScoreResponse(result)
	if err != nil {
		s.logger.Error("encode response failed", slog.String("run_id", result.RunID), slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	s.store(ctx, key, resp)
	resp.Fields[fieldCached] = structpb.NewBoolValue(false)
	return resp, nil
}

// LatencyP95 returns the current p95 scoring latency.
func (s *ScoringService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func (s *ScoringService) lookup(ctx context.Context, key string) (*structpb.Struct, bool) {
	payload, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("cache get failed", slog.String("key", key), slog.Any("error", err))
		}
		metrics.ObserveCacheLookup(false)
		return nil, false
	}
	resp := new(structpb.Struct)
	if err := proto.Unmarshal(payload, resp); err != nil {
		s.logger.Warn("discarding undecodable cache entry", slog.String("key", key), slog.Any("error", err))
		if err := s.cache.Del(ctx, key); err != nil {
			s.logger.Warn("cache delete failed", slog.String("key", key), slog.Any("error", err))
		}
		metrics.ObserveCacheLookup(false)
		return nil, false
	}
	metrics.ObserveCacheLookup(true)
	return resp, true
}

func (s *ScoringService) store(ctx context.Context, key string, resp *structpb.Struct) {
	payload, err := proto.Marshal(resp)
	if err != nil {
		s.logger.Warn("cache encode failed", slog.Any("error", err))
		return
	}
	// A concurrent identical request may have stored first; keep its entry.
	stored, err := s.cache.SetNX(ctx, key, payload, s.cacheTTL)
	if err != nil {
		s.logger.Warn("cache set failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	if !stored {
		s.logger.Debug("cache entry already present", slog.String("key", key))
	}
}

// cacheKey hashes the deterministic wire form of req, so field order in the
// request document does not matter.
func cacheKey(req *structpb.Struct) (string, error) {
	payload, err := proto.MarshalOptions{Deterministic: true}.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	return fmt.Sprintf("%s%016x", cacheKeyPrefix, xxhash.Sum64(payload)), nil
}
