package scoring

import (
	"sort"
	"time"

	"github.com/miradorstack/alert-triage/internal/models"
)

// Frequency is the windowed same-source count of one alert and the score it earns.
type Frequency struct {
	Count int
	Score float64
}

// FrequencyScorer counts alerts from the same source IP inside the configured
// time window. Counts are always taken over the whole slice it is given.
type FrequencyScorer struct {
	cfg *Config
}

// NewFrequencyScorer constructs a FrequencyScorer bound to cfg.
func NewFrequencyScorer(cfg *Config) *FrequencyScorer {
	return &FrequencyScorer{cfg: cfg}
}

// Compute returns one Frequency per alert, index-aligned with alerts.
func (f *FrequencyScorer) Compute(alerts []models.Alert) []Frequency {
	counts := f.Counts(alerts)
	out := make([]Frequency, len(counts))
	for i, count := range counts {
		out[i] = Frequency{Count: count, Score: f.Score(count)}
	}
	return out
}

// Counts groups alerts by source IP, sorts each group by timestamp and
// resolves every alert's window with two binary searches over its group.
func (f *FrequencyScorer) Counts(alerts []models.Alert) []int {
	counts := make([]int, len(alerts))
	groups := make(map[string][]int)
	for i, alert := range alerts {
		groups[alert.SourceIP] = append(groups[alert.SourceIP], i)
	}

	for _, members := range groups {
		sort.SliceStable(members, func(i, j int) bool {
			return alerts[members[i]].Timestamp.Before(alerts[members[j]].Timestamp)
		})
		stamps := make([]time.Time, len(members))
		for k, idx := range members {
			stamps[k] = alerts[idx].Timestamp
		}
		for _, idx := range members {
			counts[idx] = f.countInWindow(stamps, alerts[idx].Timestamp)
		}
	}
	return counts
}

// Score applies the step function: the full frequency weight once count
// reaches the threshold, otherwise nothing.
func (f *FrequencyScorer) Score(count int) float64 {
	if count >= f.cfg.countThreshold {
		return f.cfg.frequencyWeight
	}
	return 0
}

// countInWindow counts sorted stamps inside the window anchored at t. A zero
// trailing window degenerates to [t, t] so exact ties still count.
func (f *FrequencyScorer) countInWindow(stamps []time.Time, t time.Time) int {
	window := f.cfg.timeWindow
	start := t.Add(-window)
	end := t
	closedStart := window == 0
	if f.cfg.windowMode == WindowSymmetric {
		end = t.Add(window)
		closedStart = true
	}

	hi := sort.Search(len(stamps), func(k int) bool { return stamps[k].After(end) })
	var lo int
	if closedStart {
		lo = sort.Search(len(stamps), func(k int) bool { return !stamps[k].Before(start) })
	} else {
		lo = sort.Search(len(stamps), func(k int) bool { return stamps[k].After(start) })
	}
	return hi - lo
}
