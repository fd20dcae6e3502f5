package scoring

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/miradorstack/alert-triage/internal/models"
	"github.com/miradorstack/alert-triage/internal/utils"
)

var errMissing = errors.New("required field is missing")

// ParseAlert validates a raw row and converts it into an Alert. Failures are
// returned as *MalformedAlertError naming the offending field. SourceIP is
// kept exactly as read since grouping and blacklist lookups match it verbatim.
func ParseAlert(raw models.RawAlert) (models.Alert, error) {
	alert := models.Alert{
		AlertID:   strings.TrimSpace(raw.AlertID),
		SourceIP:  raw.SourceIP,
		UserRole:  strings.TrimSpace(raw.UserRole),
		AlertType: strings.TrimSpace(raw.AlertType),
	}
	malformed := func(field string, err error) error {
		return &MalformedAlertError{AlertID: alert.AlertID, Line: raw.Line, Field: field, Err: err}
	}

	if alert.AlertID == "" {
		return models.Alert{}, malformed("alert_id", errMissing)
	}
	if strings.TrimSpace(alert.SourceIP) == "" {
		return models.Alert{}, malformed("source_ip", errMissing)
	}
	if alert.UserRole == "" {
		return models.Alert{}, malformed("user_role", errMissing)
	}

	ts, err := utils.ParseAlertTimestamp(raw.Timestamp)
	if err != nil {
		return models.Alert{}, malformed("timestamp", err)
	}
	alert.Timestamp = ts

	severity := strings.TrimSpace(raw.Severity)
	if severity == "" {
		return models.Alert{}, malformed("severity", errMissing)
	}
	alert.Severity, err = strconv.ParseFloat(severity, 64)
	if err != nil {
		return models.Alert{}, malformed("severity", fmt.Errorf("not a number: %q", severity))
	}
	if math.IsNaN(alert.Severity) || math.IsInf(alert.Severity, 0) {
		return models.Alert{}, malformed("severity", fmt.Errorf("not a finite number: %q", severity))
	}
	return alert, nil
}

// CheckAlert applies the ParseAlert rules to an already typed Alert.
func CheckAlert(alert models.Alert) error {
	malformed := func(field string, err error) error {
		return &MalformedAlertError{AlertID: alert.AlertID, Field: field, Err: err}
	}
	switch {
	case alert.AlertID == "":
		return malformed("alert_id", errMissing)
	case strings.TrimSpace(alert.SourceIP) == "":
		return malformed("source_ip", errMissing)
	case alert.UserRole == "":
		return malformed("user_role", errMissing)
	case alert.Timestamp.IsZero():
		return malformed("timestamp", errMissing)
	case math.IsNaN(alert.Severity) || math.IsInf(alert.Severity, 0):
		return malformed("severity", errors.New("not a finite number"))
	}
	return nil
}
