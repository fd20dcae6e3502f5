package scoring

import "github.com/miradorstack/alert-triage/internal/models"

// Priority thresholds. Both bounds are inclusive: a score equal to
// HighThreshold is High and a score equal to MediumThreshold is Medium.
const (
	HighThreshold   = 15.0
	MediumThreshold = 8.0
)

// Classify maps a risk score to its priority tier.
func Classify(riskScore float64) models.Priority {
	switch {
	case riskScore >= HighThreshold:
		return models.PriorityHigh
	case riskScore >= MediumThreshold:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}
