package api

import (
	"fmt"
	"math"
	"strconv"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/alert-triage/internal/engine"
	"github.com/miradorstack/alert-triage/internal/models"
)

// Request and response field names.
const (
	fieldConfig    = "config"
	fieldAlerts    = "alerts"
	fieldRunID     = "run_id"
	fieldResults   = "results"
	fieldMalformed = "malformed"
	fieldSummary   = "summary"
)

// FromProtoScoreRequest maps a ScoreAlerts request document into a domain
// ScoreRequest. The request carries a "config" object in the scoring config
// format and an "alerts" list of objects keyed by the input CSV column names.
// Alert rows are numbered from 1 in request order.
func FromProtoScoreRequest(req *structpb.Struct) (models.ScoreRequest, error) {
	if req == nil {
		return models.ScoreRequest{}, fmt.Errorf("request is nil")
	}
	fields := req.GetFields()

	cfgValue, ok := fields[fieldConfig]
	if !ok || cfgValue.GetStructValue() == nil {
		return models.ScoreRequest{}, fmt.Errorf("%s must be an object", fieldConfig)
	}
	cfgJSON, err := protojson.Marshal(cfgValue.GetStructValue())
	if err != nil {
		return models.ScoreRequest{}, fmt.Errorf("encode %s: %w", fieldConfig, err)
	}

	out := models.ScoreRequest{Config: cfgJSON}
	alertsValue, ok := fields[fieldAlerts]
	if !ok {
		return out, nil
	}
	list := alertsValue.GetListValue()
	if list == nil {
		return models.ScoreRequest{}, fmt.Errorf("%s must be a list", fieldAlerts)
	}
	out.Alerts = make([]models.RawAlert, 0, len(list.GetValues()))
	for i, value := range list.GetValues() {
		row := value.GetStructValue()
		if row == nil {
			return models.ScoreRequest{}, fmt.Errorf("%s[%d] must be an object", fieldAlerts, i)
		}
		raw, err := fromProtoAlert(row)
		if err != nil {
			return models.ScoreRequest{}, fmt.Errorf("%s[%d]: %w", fieldAlerts, i, err)
		}
		raw.Line = i + 1
		out.Alerts = append(out.Alerts, raw)
	}
	return out, nil
}

func fromProtoAlert(row *structpb.Struct) (models.RawAlert, error) {
	var raw models.RawAlert
	targets := []struct {
		key string
		dst *string
	}{
		{"alert_id", &raw.AlertID},
		{"source_ip", &raw.SourceIP},
		{"timestamp", &raw.Timestamp},
		{"severity", &raw.Severity},
		{"user_role", &raw.UserRole},
		{"alert_type", &raw.AlertType},
	}
	fields := row.GetFields()
	for _, target := range targets {
		text, err := scalarText(fields[target.key])
		if err != nil {
			return models.RawAlert{}, fmt.Errorf("%s: %w", target.key, err)
		}
		*target.dst = text
	}
	return raw, nil
}

// scalarText renders strings and numbers as row text; absent and null values
// become empty so validation reports them like blank CSV cells.
func scalarText(v *structpb.Value) (string, error) {
	if v == nil {
		return "", nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return "", nil
	case *structpb.Value_StringValue:
		return kind.StringValue, nil
	case *structpb.Value_NumberValue:
		if math.IsNaN(kind.NumberValue) || math.IsInf(kind.NumberValue, 0) {
			return "", fmt.Errorf("must be a finite number")
		}
		return strconv.FormatFloat(kind.NumberValue, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("must be a string or number")
	}
}

// ToProtoScoreResponse converts a scoring run into the response document.
func ToProtoScoreResponse(res engine.Result) (*structpb.Struct, error) {
	results := make([]any, 0, len(res.Scored))
	for _, scored := range res.Scored {
		results = append(results, map[string]any{
			"alert_id":        scored.AlertID,
			"risk_score":      scored.RiskScore,
			"priority":        string(scored.Priority),
			"frequency_count": scored.FrequencyCount,
			"frequency_score": scored.FrequencyScore,
		})
	}
	malformed := make([]any, 0, len(res.Malformed))
	for _, bad := range res.Malformed {
		malformed = append(malformed, map[string]any{
			"alert_id": bad.AlertID,
			"line":     bad.Line,
			"reason":   bad.Reason,
		})
	}
	return structpb.NewStruct(map[string]any{
		fieldRunID:     res.RunID,
		fieldResults:   results,
		fieldMalformed: malformed,
		fieldSummary: map[string]any{
			"high":    res.Summary.High,
			"medium":  res.Summary.Medium,
			"low":     res.Summary.Low,
			"skipped": res.Summary.Skipped,
		},
	})
}
