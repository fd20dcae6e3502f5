package models

// ScoreRequest is a decoded remote scoring call: a scoring configuration
// document plus the alert rows to score against it.
type ScoreRequest struct {
	// Config holds the scoring configuration as a JSON document.
	Config []byte
	Alerts []RawAlert
}
