package scoring

import "fmt"

// ConfigError reports a missing or malformed scoring configuration field.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	field := e.Field
	if field == "" {
		field = "config"
	}
	if e.Err == nil {
		return fmt.Sprintf("scoring config %s: %s", field, e.Reason)
	}
	return fmt.Sprintf("scoring config %s: %s: %v", field, e.Reason, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// MalformedAlertError reports a single input row that cannot be scored.
type MalformedAlertError struct {
	AlertID string
	Line    int
	Field   string
	Err     error
}

func (e *MalformedAlertError) Error() string {
	id := e.AlertID
	if id == "" {
		id = "<missing>"
	}
	if e.Line > 0 {
		return fmt.Sprintf("alert %s (line %d): invalid %s: %v", id, e.Line, e.Field, e.Err)
	}
	return fmt.Sprintf("alert %s: invalid %s: %v", id, e.Field, e.Err)
}

func (e *MalformedAlertError) Unwrap() error {
	return e.Err
}
