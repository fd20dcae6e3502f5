package models

import "time"

// RawAlert is one input row before validation. Every field is kept as text so
// a bad value can be reported against the row it came from.
type RawAlert struct {
	Line      int
	AlertID   string
	SourceIP  string
	Timestamp string
	Severity  string
	UserRole  string
	AlertType string
}

// Alert is a validated security alert.
type Alert struct {
	AlertID   string
	SourceIP  string
	Timestamp time.Time
	Severity  float64
	UserRole  string
	AlertType string
}

// ScoredAlert is an Alert annotated with its risk score and priority tier.
type ScoredAlert struct {
	Alert
	FrequencyCount int
	FrequencyScore float64
	RiskScore      float64
	Priority       Priority
}

// MalformedAlert records a row that was excluded from scoring.
type MalformedAlert struct {
	AlertID string
	Line    int
	Reason  string
}

// Priority is the triage tier derived from a risk score.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Summary aggregates the outcome of one scoring run.
type Summary struct {
	High    int
	Medium  int
	Low     int
	Skipped int
}

// Add counts a scored alert in its tier.
func (s *Summary) Add(p Priority) {
	switch p {
	case PriorityHigh:
		s.High++
	case PriorityMedium:
		s.Medium++
	default:
		s.Low++
	}
}

// Total returns the number of alerts that were scored.
func (s Summary) Total() int {
	return s.High + s.Medium + s.Low
}
