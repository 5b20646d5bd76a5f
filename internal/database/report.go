package database

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
)

// Report is the JSON summary written after a successful run.
type Report struct {
	Source      string        `json:"source"`
	Destination string        `json:"destination"`
	BatchSize   int           `json:"batch_size"`
	Missing     []string      `json:"missing_tables,omitempty"`
	Tables      []Stats       `json:"tables"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
}

// TotalRows sums the rows of every exported table.
func (r Report) TotalRows() int64 {
	var n int64
	for _, t := range r.Tables {
		n += t.Rows
	}
	return n
}

// WriteReport writes r as indented JSON to path.
func WriteReport(path string, r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (Report, error) {
	var r Report
	data, err := os.ReadFile(path)
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("failed to decode report %s: %w", path, err)
	}
	return r, nil
}
