// Package metrics records export counters through a pluggable backend.
//
// The default backend is a no-op, so callers may record unconditionally.
// Concrete backends live in subpackages (prompush, datadog) and are installed
// once at startup with SetBackend.
package metrics

import "time"

// Metric names shared by every backend.
const (
	RowsTotal     = "pg2sqlite_rows_total"
	CommitsTotal  = "pg2sqlite_commits_total"
	TablesTotal   = "pg2sqlite_tables_total"
	TableDuration = "pg2sqlite_table_duration_seconds"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a duration style value.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes buffered metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordRows adds delta exported rows for table.
func RecordRows(job, table string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{
		"job":   job,
		"table": table,
	})
}

// RecordCommits adds delta destination commits for table.
func RecordCommits(job, table string, delta int) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(CommitsTotal, float64(delta), Labels{
		"job":   job,
		"table": table,
	})
}

// RecordTable counts one finished table export and its duration.
func RecordTable(job, table string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"job":    job,
		"table":  table,
		"status": status,
	}

	backend.IncCounter(TablesTotal, 1, lbls)
	backend.ObserveHistogram(TableDuration, d.Seconds(), lbls)
}
