package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/alitto/pond"
	"github.com/google/uuid"

	"github.com/miradorstack/alert-triage/internal/metrics"
	"github.com/miradorstack/alert-triage/internal/models"
	"github.com/miradorstack/alert-triage/internal/scoring"
)

// DefaultChunkSize bounds the number of alerts handed to one worker task.
const DefaultChunkSize = 10000

// Options controls how a batch is partitioned and dispatched.
type Options struct {
	ChunkSize int
	Workers   int
}

// ChunkFailure reports an unexpected error while scoring one chunk. Every row
// of that chunk is skipped; sibling chunks are unaffected.
type ChunkFailure struct {
	Chunk int
	Err   error
}

func (e *ChunkFailure) Error() string {
	return fmt.Sprintf("chunk %d failed: %v", e.Chunk, e.Err)
}

func (e *ChunkFailure) Unwrap() error {
	return e.Err
}

// Result is the outcome of one scoring run.
type Result struct {
	RunID     string
	Scored    []models.ScoredAlert
	Malformed []models.MalformedAlert
	Summary   models.Summary
	Chunks    int
}

// entry is a validated alert with its precomputed frequency, ready for a chunk.
type entry struct {
	pos   int
	line  int
	alert models.Alert
	freq  scoring.Frequency
}

type skipped struct {
	pos int
	models.MalformedAlert
}

type chunkResult struct {
	scored []models.ScoredAlert
	err    error
}

type chunkFunc func(chunk []entry, risk *scoring.RiskScorer) ([]models.ScoredAlert, error)

// Coordinator splits a batch into chunks, scores them on a bounded worker
// pool and merges the results back into input order.
type Coordinator struct {
	logger     *slog.Logger
	chunkSize  int
	workers    int
	scoreChunk chunkFunc
}

// NewCoordinator constructs a Coordinator; zero options pick the defaults.
func NewCoordinator(logger *slog.Logger, opts Options) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Coordinator{
		logger:     logger,
		chunkSize:  opts.ChunkSize,
		workers:    opts.Workers,
		scoreChunk: scoreChunk,
	}
}

// Score is the library entry point: it scores typed alerts with default
// options and returns the scored alerts in input order.
func Score(alerts []models.Alert, cfg *scoring.Config) ([]models.ScoredAlert, error) {
	res, err := NewCoordinator(nil, Options{}).ScoreAlerts(context.Background(), cfg, alerts)
	if err != nil {
		return nil, err
	}
	return res.Scored, nil
}

// Run validates raw rows and scores the valid ones. Malformed rows are logged
// and reported in the result; they never abort the run.
func (c *Coordinator) Run(ctx context.Context, cfg *scoring.Config, raws []models.RawAlert) (Result, error) {
	alerts := make([]models.Alert, 0, len(raws))
	valid := make([]entry, 0, len(raws))
	var bad []skipped
	for pos, raw := range raws {
		alert, err := scoring.ParseAlert(raw)
		if err != nil {
			bad = append(bad, c.reject(pos, raw.Line, raw.AlertID, err))
			continue
		}
		alerts = append(alerts, alert)
		valid = append(valid, entry{pos: pos, line: raw.Line, alert: alert})
	}
	return c.run(ctx, cfg, alerts, valid, bad)
}

// ScoreAlerts scores already typed alerts. Alerts failing CheckAlert are
// skipped and reported like malformed rows.
func (c *Coordinator) ScoreAlerts(ctx context.Context, cfg *scoring.Config, in []models.Alert) (Result, error) {
	alerts := make([]models.Alert, 0, len(in))
	valid := make([]entry, 0, len(in))
	var bad []skipped
	for pos, alert := range in {
		if err := scoring.CheckAlert(alert); err != nil {
			bad = append(bad, c.reject(pos, 0, alert.AlertID, err))
			continue
		}
		alerts = append(alerts, alert)
		valid = append(valid, entry{pos: pos, alert: alert})
	}
	return c.run(ctx, cfg, alerts, valid, bad)
}

func (c *Coordinator) run(ctx context.Context, cfg *scoring.Config, alerts []models.Alert, valid []entry, bad []skipped) (Result, error) {
	start := time.Now()
	if cfg == nil {
		metrics.ObserveRun(time.Since(start), metrics.OutcomeError)
		return Result{}, errors.New("scoring config is required")
	}
	runID := uuid.NewString()

	// Counts come from the full valid set so chunk boundaries cannot change them.
	freqs := scoring.NewFrequencyScorer(cfg).Compute(alerts)
	for i := range valid {
		valid[i].freq = freqs[i]
	}

	chunks := partition(valid, c.chunkSize)
	results := c.dispatch(ctx, chunks, scoring.NewRiskScorer(cfg))
	if err := ctx.Err(); err != nil {
		metrics.ObserveRun(time.Since(start), metrics.OutcomeError)
		return Result{}, fmt.Errorf("scoring run %s: %w", runID, err)
	}

	res := Result{RunID: runID, Scored: make([]models.ScoredAlert, 0, len(valid)), Chunks: len(chunks)}
	for i, cr := range results {
		if cr.err != nil {
			c.logger.Error("chunk failed", slog.String("run_id", runID), slog.Int("chunk", i), slog.Int("alerts", len(chunks[i])), slog.Any("error", cr.err))
			for _, e := range chunks[i] {
				bad = append(bad, skipped{pos: e.pos, MalformedAlert: models.MalformedAlert{AlertID: e.alert.AlertID, Line: e.line, Reason: cr.err.Error()}})
			}
			continue
		}
		for _, scored := range cr.scored {
			res.Summary.Add(scored.Priority)
		}
		res.Scored = append(res.Scored, cr.scored...)
	}

	sort.SliceStable(bad, func(i, j int) bool { return bad[i].pos < bad[j].pos })
	res.Malformed = make([]models.MalformedAlert, 0, len(bad))
	for _, b := range bad {
		res.Malformed = append(res.Malformed, b.MalformedAlert)
	}
	res.Summary.Skipped = len(res.Malformed)

	duration := time.Since(start)
	metrics.ObserveRun(duration, metrics.OutcomeSuccess)
	metrics.ObserveSummary(res.Summary)
	c.logger.Info("scoring run complete",
		slog.String("run_id", runID),
		slog.Int("chunks", len(chunks)),
		slog.Int("high", res.Summary.High),
		slog.Int("medium", res.Summary.Medium),
		slog.Int("low", res.Summary.Low),
		slog.Int("skipped", res.Summary.Skipped),
		slog.Duration("duration", duration),
	)
	return res, nil
}

// dispatch fans chunks out to the pool and returns results indexed by chunk,
// independent of completion order.
func (c *Coordinator) dispatch(ctx context.Context, chunks [][]entry, risk *scoring.RiskScorer) []chunkResult {
	results := make([]chunkResult, len(chunks))
	if len(chunks) == 0 {
		return results
	}

	workers := c.workers
	if workers > len(chunks) {
		workers = len(chunks)
	}
	pool := pond.New(workers, len(chunks))
	for i, chunk := range chunks {
		pool.Submit(func() {
			if err := ctx.Err(); err != nil {
				results[i] = chunkResult{err: err}
				return
			}
			started := time.Now()
			scored, err := c.safeScore(i, chunk, risk)
			metrics.ObserveChunk(time.Since(started), err != nil)
			results[i] = chunkResult{scored: scored, err: err}
		})
	}
	pool.StopAndWait()
	return results
}

func (c *Coordinator) safeScore(index int, chunk []entry, risk *scoring.RiskScorer) (scored []models.ScoredAlert, err error) {
	defer func() {
		if r := recover(); r != nil {
			scored = nil
			err = &ChunkFailure{Chunk: index, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	scored, err = c.scoreChunk(chunk, risk)
	if err != nil {
		return nil, &ChunkFailure{Chunk: index, Err: err}
	}
	return scored, nil
}

func (c *Coordinator) reject(pos, line int, alertID string, err error) skipped {
	c.logger.Warn("skipping malformed alert", slog.String("alert_id", alertID), slog.Int("line", line), slog.Any("error", err))
	return skipped{pos: pos, MalformedAlert: models.MalformedAlert{AlertID: alertID, Line: line, Reason: err.Error()}}
}

func scoreChunk(chunk []entry, risk *scoring.RiskScorer) ([]models.ScoredAlert, error) {
	out := make([]models.ScoredAlert, 0, len(chunk))
	for _, e := range chunk {
		score := risk.Score(e.alert, e.freq.Score)
		out = append(out, models.ScoredAlert{
			Alert:          e.alert,
			FrequencyCount: e.freq.Count,
			FrequencyScore: e.freq.Score,
			RiskScore:      score,
			Priority:       scoring.Classify(score),
		})
	}
	return out, nil
}

// partition slices entries into contiguous chunks of at most size elements.
func partition(entries []entry, size int) [][]entry {
	if len(entries) == 0 {
		return nil
	}
	chunks := make([][]entry, 0, (len(entries)+size-1)/size)
	for start := 0; start < len(entries); start += size {
		end := start + size
		if end > len(entries) {
			end = len(entries)
		}
		chunks = append(chunks, entries[start:end])
	}
	return chunks
}
