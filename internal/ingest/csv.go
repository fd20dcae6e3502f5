package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/miradorstack/alert-triage/internal/models"
	"github.com/miradorstack/alert-triage/internal/utils"
)

// Column names of the alert export.
const (
	ColumnAlertID   = "alert_id"
	ColumnSourceIP  = "source_ip"
	ColumnTimestamp = "timestamp"
	ColumnSeverity  = "severity"
	ColumnUserRole  = "user_role"
	ColumnAlertType = "alert_type"
)

var requiredColumns = []string{ColumnAlertID, ColumnSourceIP, ColumnTimestamp, ColumnSeverity, ColumnUserRole}

// ErrMissingColumn is wrapped when the header lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

// ReadFile opens path and reads every alert row from it.
func ReadFile(path string) ([]models.RawAlert, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, utils.NewFileError("read alerts", path, "open failed", err)
	}
	defer f.Close()

	raws, err := Read(f)
	if err != nil {
		return nil, utils.NewFileError("read alerts", path, "parse failed", err)
	}
	return raws, nil
}

// Read parses an alert CSV with a header row. Columns are located by name, so
// their order is free and unknown columns are ignored. Cells are returned
// untrimmed. Rows too short to hold
// every located column are kept with the missing cells empty; validation
// rejects them later with their line number.
func Read(r io.Reader) ([]models.RawAlert, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty input, header row required", ErrMissingColumn)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, col)
		}
	}

	cell := func(record []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var raws []models.RawAlert
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		raws = append(raws, models.RawAlert{
			Line:      line,
			AlertID:   cell(record, ColumnAlertID),
			SourceIP:  cell(record, ColumnSourceIP),
			Timestamp: cell(record, ColumnTimestamp),
			Severity:  cell(record, ColumnSeverity),
			UserRole:  cell(record, ColumnUserRole),
			AlertType: cell(record, ColumnAlertType),
		})
	}
	return raws, nil
}
