package scoring

import "github.com/miradorstack/alert-triage/internal/models"

// RiskScorer combines the per-alert signals into a single risk score.
type RiskScorer struct {
	cfg *Config
}

// NewRiskScorer constructs a RiskScorer bound to cfg.
func NewRiskScorer(cfg *Config) *RiskScorer {
	return &RiskScorer{cfg: cfg}
}

// Score returns severity*severity_weight + frequencyScore +
// role_weights[role]*role_weight + blacklist penalty + alert type weight.
// frequencyScore must already be weight-scaled. The result is not clamped.
func (r *RiskScorer) Score(alert models.Alert, frequencyScore float64) float64 {
	score := alert.Severity * r.cfg.severityWeight
	score += frequencyScore
	score += r.cfg.RoleWeightFor(alert.UserRole) * r.cfg.roleWeight
	if r.cfg.IsBlacklisted(alert.SourceIP) {
		score += r.cfg.blacklistPenalty
	}
	if alert.AlertType != "" {
		score += r.cfg.AlertTypeWeightFor(alert.AlertType)
	}
	return score
}
