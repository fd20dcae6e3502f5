package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/miradorstack/alert-triage/internal/models"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register should tolerate duplicates: %v", err)
	}
}

func TestObserveSummary(t *testing.T) {
	high := testutil.ToFloat64(alertsScoredTotal.WithLabelValues("High"))
	skipped := testutil.ToFloat64(alertsSkippedTotal)

	ObserveSummary(models.Summary{High: 2, Medium: 1, Low: 4, Skipped: 3})

	if got := testutil.ToFloat64(alertsScoredTotal.WithLabelValues("High")) - high; got != 2 {
		t.Fatalf("expected 2 high alerts recorded, got %v", got)
	}
	if got := testutil.ToFloat64(alertsSkippedTotal) - skipped; got != 3 {
		t.Fatalf("expected 3 skipped alerts recorded, got %v", got)
	}
}

func TestObserveRunNormalisesOutcome(t *testing.T) {
	before := testutil.ToFloat64(runsTotal.WithLabelValues(OutcomeSuccess))
	ObserveRun(-time.Second, "anything")
	if got := testutil.ToFloat64(runsTotal.WithLabelValues(OutcomeSuccess)) - before; got != 1 {
		t.Fatalf("expected unknown outcome to count as success, got delta %v", got)
	}
}

func TestObserveChunkFailure(t *testing.T) {
	before := testutil.ToFloat64(chunkFailuresTotal)
	ObserveChunk(time.Millisecond, true)
	ObserveChunk(time.Millisecond, false)
	if got := testutil.ToFloat64(chunkFailuresTotal) - before; got != 1 {
		t.Fatalf("expected one chunk failure, got %v", got)
	}
}

func TestObserveCacheLookup(t *testing.T) {
	hits := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit"))
	misses := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("miss"))

	ObserveCacheLookup(true)
	ObserveCacheLookup(false)
	ObserveCacheLookup(false)

	if got := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit")) - hits; got != 1 {
		t.Fatalf("expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("miss")) - misses; got != 2 {
		t.Fatalf("expected 2 misses, got %v", got)
	}
}
