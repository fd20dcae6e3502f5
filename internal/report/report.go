package report

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"github.com/miradorstack/alert-triage/internal/models"
	"github.com/miradorstack/alert-triage/internal/utils"
)

// DefaultOutputPath is used when no output path is configured.
const DefaultOutputPath = "alerts_with_priority.csv"

var header = []string{"alert_id", "risk_score", "priority"}

// FormatScore renders a risk score as the shortest exact decimal string.
func FormatScore(score float64) string {
	return decimal.NewFromFloat(score).String()
}

// Write emits the output CSV for scored alerts in the order given.
func Write(w io.Writer, scored []models.ScoredAlert) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, alert := range scored {
		if err := cw.Write([]string{alert.AlertID, FormatScore(alert.RiskScore), string(alert.Priority)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes the output CSV to path atomically: rows go to a temporary
// file in the same directory which replaces path only after a clean flush.
func WriteFile(path string, scored []models.ScoredAlert) (err error) {
	if path == "" {
		path = DefaultOutputPath
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return utils.NewFileError("write results", path, "create temp file", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	buf := bufio.NewWriter(tmp)
	if err = Write(buf, scored); err != nil {
		return utils.NewFileError("write results", path, "encode rows", err)
	}
	if err = buf.Flush(); err != nil {
		return utils.NewFileError("write results", path, "flush", err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return utils.NewFileError("write results", path, "chmod", err)
	}
	if err = tmp.Close(); err != nil {
		return utils.NewFileError("write results", path, "close", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return utils.NewFileError("write results", path, "rename", err)
	}
	return nil
}

// WriteSummary prints per-tier counts followed by the skipped row count.
func WriteSummary(w io.Writer, summary models.Summary) error {
	_, err := fmt.Fprintf(w, "Priority Summary:\nHigh: %d\nMedium: %d\nLow: %d\nSkipped: %d\n",
		summary.High, summary.Medium, summary.Low, summary.Skipped)
	return err
}
