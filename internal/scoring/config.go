package scoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultBlacklistPenalty is added to the risk score of alerts whose source IP
// is blacklisted when the configuration does not set blacklist_penalty.
const DefaultBlacklistPenalty = 10.0

// WindowMode selects how the frequency window is placed around an alert.
type WindowMode string

const (
	// WindowTrailing counts alerts in (t - window, t].
	WindowTrailing WindowMode = "trailing"
	// WindowSymmetric counts alerts in [t - window, t + window].
	WindowSymmetric WindowMode = "symmetric"
)

// Params carries scoring parameters before validation. Use DefaultParams as
// the starting point so optional fields get their documented defaults.
type Params struct {
	TimeWindow       time.Duration
	WindowMode       WindowMode
	CountThreshold   int
	FrequencyWeight  float64
	SeverityWeight   float64
	RoleWeights      map[string]float64
	RoleWeight       float64
	IPBlacklist      []string
	BlacklistPenalty float64
	AlertTypeWeights map[string]float64
}

// DefaultParams returns Params with the optional fields defaulted.
func DefaultParams() Params {
	return Params{
		WindowMode:       WindowTrailing,
		BlacklistPenalty: DefaultBlacklistPenalty,
	}
}

// Config is the validated, read-only scoring configuration. It is safe for
// concurrent use because nothing mutates it after construction.
type Config struct {
	timeWindow       time.Duration
	windowMode       WindowMode
	countThreshold   int
	frequencyWeight  float64
	severityWeight   float64
	roleWeights      map[string]float64
	roleWeight       float64
	blacklist        map[string]struct{}
	blacklistPenalty float64
	alertTypeWeights map[string]float64
}

// NewConfig validates p and returns an immutable Config.
func NewConfig(p Params) (*Config, error) {
	if p.TimeWindow < 0 {
		return nil, &ConfigError{Field: "frequency_threshold.time_window", Reason: "must not be negative"}
	}
	if p.CountThreshold < 0 {
		return nil, &ConfigError{Field: "frequency_threshold.count", Reason: "must not be negative"}
	}
	mode := p.WindowMode
	if mode == "" {
		mode = WindowTrailing
	}
	if mode != WindowTrailing && mode != WindowSymmetric {
		return nil, &ConfigError{Field: "frequency_threshold.mode", Reason: fmt.Sprintf("unknown window mode %q", mode)}
	}

	weights := []struct {
		field string
		value float64
	}{
		{"frequency_weight", p.FrequencyWeight},
		{"severity_weight", p.SeverityWeight},
		{"role_weight", p.RoleWeight},
		{"blacklist_penalty", p.BlacklistPenalty},
	}
	for _, w := range weights {
		if !finite(w.value) {
			return nil, &ConfigError{Field: w.field, Reason: "must be a finite number"}
		}
	}
	for role, v := range p.RoleWeights {
		if !finite(v) {
			return nil, &ConfigError{Field: "role_weights." + role, Reason: "must be a finite number"}
		}
	}
	for alertType, v := range p.AlertTypeWeights {
		if !finite(v) {
			return nil, &ConfigError{Field: "alert_type_weights." + alertType, Reason: "must be a finite number"}
		}
	}

	blacklist := make(map[string]struct{}, len(p.IPBlacklist))
	for _, ip := range p.IPBlacklist {
		blacklist[ip] = struct{}{}
	}

	return &Config{
		timeWindow:       p.TimeWindow,
		windowMode:       mode,
		countThreshold:   p.CountThreshold,
		frequencyWeight:  p.FrequencyWeight,
		severityWeight:   p.SeverityWeight,
		roleWeights:      copyWeights(p.RoleWeights),
		roleWeight:       p.RoleWeight,
		blacklist:        blacklist,
		blacklistPenalty: p.BlacklistPenalty,
		alertTypeWeights: copyWeights(p.AlertTypeWeights),
	}, nil
}

// LoadConfig reads and parses a JSON scoring configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scoring config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses a JSON scoring configuration document.
func ParseConfig(data []byte) (*Config, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, &ConfigError{Reason: "invalid JSON document", Err: err}
	}
	if root == nil {
		return nil, &ConfigError{Reason: "document must be a JSON object"}
	}

	p := DefaultParams()

	var threshold map[string]json.RawMessage
	if _, err := decodeField(root, "frequency_threshold", "", true, &threshold); err != nil {
		return nil, err
	}
	var window string
	if _, err := decodeField(threshold, "time_window", "frequency_threshold.", true, &window); err != nil {
		return nil, err
	}
	d, err := ParseWindow(window)
	if err != nil {
		return nil, &ConfigError{Field: "frequency_threshold.time_window", Reason: "invalid duration", Err: err}
	}
	p.TimeWindow = d

	var count float64
	if _, err := decodeField(threshold, "count", "frequency_threshold.", true, &count); err != nil {
		return nil, err
	}
	if count < 0 || count != math.Trunc(count) || count > math.MaxInt32 {
		return nil, &ConfigError{Field: "frequency_threshold.count", Reason: "must be a non-negative integer"}
	}
	p.CountThreshold = int(count)

	var mode string
	if ok, err := decodeField(threshold, "mode", "frequency_threshold.", false, &mode); err != nil {
		return nil, err
	} else if ok {
		p.WindowMode = WindowMode(strings.ToLower(strings.TrimSpace(mode)))
	}

	if _, err := decodeField(root, "frequency_weight", "", true, &p.FrequencyWeight); err != nil {
		return nil, err
	}
	if _, err := decodeField(root, "severity_weight", "", true, &p.SeverityWeight); err != nil {
		return nil, err
	}
	if _, err := decodeField(root, "role_weight", "", true, &p.RoleWeight); err != nil {
		return nil, err
	}
	if _, err := decodeField(root, "role_weights", "", true, &p.RoleWeights); err != nil {
		return nil, err
	}
	if _, err := decodeField(root, "ip_blacklist", "", true, &p.IPBlacklist); err != nil {
		return nil, err
	}
	if _, err := decodeField(root, "blacklist_penalty", "", false, &p.BlacklistPenalty); err != nil {
		return nil, err
	}
	if _, err := decodeField(root, "alert_type_weights", "", false, &p.AlertTypeWeights); err != nil {
		return nil, err
	}

	return NewConfig(p)
}

// ParseWindow parses the short time-window grammar: a non-negative integer
// followed by one unit character, s, m or h (for example "10m").
func ParseWindow(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if len(value) < 2 {
		return 0, fmt.Errorf("window %q: expected <integer><s|m|h>", value)
	}

	var unit time.Duration
	switch value[len(value)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	default:
		return 0, fmt.Errorf("window %q: unknown unit %q", value, value[len(value)-1])
	}

	n, err := strconv.ParseInt(value[:len(value)-1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("window %q: %w", value, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("window %q: must not be negative", value)
	}
	if n > int64(math.MaxInt64/unit) {
		return 0, fmt.Errorf("window %q: out of range", value)
	}
	return time.Duration(n) * unit, nil
}

// TimeWindow returns the frequency window length.
func (c *Config) TimeWindow() time.Duration { return c.timeWindow }

// WindowMode returns how the frequency window is placed around an alert.
func (c *Config) WindowMode() WindowMode { return c.windowMode }

// CountThreshold returns the minimum window count that triggers the frequency weight.
func (c *Config) CountThreshold() int { return c.countThreshold }

// FrequencyWeight returns the score added when the count threshold is met.
func (c *Config) FrequencyWeight() float64 { return c.frequencyWeight }

// SeverityWeight returns the severity multiplier.
func (c *Config) SeverityWeight() float64 { return c.severityWeight }

// RoleWeight returns the multiplier applied to the looked-up role weight.
func (c *Config) RoleWeight() float64 { return c.roleWeight }

// RoleWeights returns a copy of the role weight mapping.
func (c *Config) RoleWeights() map[string]float64 { return copyWeights(c.roleWeights) }

// RoleWeightFor returns the weight of role, or 0 for unlisted roles.
func (c *Config) RoleWeightFor(role string) float64 { return c.roleWeights[role] }

// AlertTypeWeights returns a copy of the alert type weight mapping.
func (c *Config) AlertTypeWeights() map[string]float64 { return copyWeights(c.alertTypeWeights) }

// AlertTypeWeightFor returns the weight of alertType, or 0 when unlisted.
func (c *Config) AlertTypeWeightFor(alertType string) float64 { return c.alertTypeWeights[alertType] }

// BlacklistPenalty returns the score added for blacklisted source IPs.
func (c *Config) BlacklistPenalty() float64 { return c.blacklistPenalty }

// IsBlacklisted reports whether ip is present in the blacklist verbatim.
func (c *Config) IsBlacklisted(ip string) bool {
	_, ok := c.blacklist[ip]
	return ok
}

// IPBlacklist returns the blacklisted IPs in sorted order.
func (c *Config) IPBlacklist() []string {
	out := make([]string, 0, len(c.blacklist))
	for ip := range c.blacklist {
		out = append(out, ip)
	}
	sort.Strings(out)
	return out
}

// decodeField unmarshals obj[key] into dst. A JSON null counts as absent.
func decodeField(obj map[string]json.RawMessage, key, prefix string, required bool, dst any) (bool, error) {
	raw, ok := obj[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		if required {
			return false, &ConfigError{Field: prefix + key, Reason: "required field is missing"}
		}
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return false, &ConfigError{Field: prefix + key, Reason: fmt.Sprintf("expected %s", typeErr.Type), Err: err}
		}
		return false, &ConfigError{Field: prefix + key, Reason: "malformed value", Err: err}
	}
	return true, nil
}

func copyWeights(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
