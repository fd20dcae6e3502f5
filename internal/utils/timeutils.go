package utils

import (
	"fmt"
	"strings"
	"time"
)

// AlertTimestampLayout is the ISO-8601 local layout used by alert exports.
const AlertTimestampLayout = "2006-01-02T15:04:05"

// ParseAlertTimestamp parses an alert timestamp. Zone-less values are read as
// UTC so results never depend on the host's local zone; RFC 3339 values with
// an explicit offset are also accepted.
func ParseAlertTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	if t, err := time.Parse(AlertTimestampLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: expected %s or RFC 3339", value, AlertTimestampLayout)
	}
	return t, nil
}

// FormatAlertTimestamp renders t in the layout ParseAlertTimestamp reads first.
func FormatAlertTimestamp(t time.Time) string {
	return t.UTC().Format(AlertTimestampLayout)
}
