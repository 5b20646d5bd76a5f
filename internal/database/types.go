package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Config holds all configuration for the source connection
type Config struct {
	ConnectionString string
	Driver           string
	Schema           string
	SSHKey           string
	SSHUser          string
	SSHHost          string
	SSHPort          int
	SSHKnownHosts    string
}

// Options controls a single export run
type Options struct {
	BatchSize    int
	SQLiteDriver string
	TypeMode     TypeMode
	Indexes      bool
	Compress     bool
	Vacuum       bool
	ReportFile   string
}

// ColumnDef describes one retained source column.
// Nullability is the literal "NOT NULL" or "NULL" token used in generated DDL.
type ColumnDef struct {
	Name        string `db:"name" json:"name"`
	SourceType  string `db:"source_type" json:"source_type"`
	Nullability string `db:"nullability" json:"nullability"`
}

// TableDef describes a source table. Column order matches the order of
// values in the source query and of placeholders in the INSERT.
type TableDef struct {
	Schema  string      `json:"schema"`
	Name    string      `json:"name"`
	Columns []ColumnDef `json:"columns"`
}

// ColumnNames returns the column names in catalog order.
func (t TableDef) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Stats summarises the export of one table
type Stats struct {
	Table    string        `json:"table"`
	Rows     int64         `json:"rows"`
	Commits  int           `json:"commits"`
	Duration time.Duration `json:"duration_ns"`
}

// catalog runs the metadata queries. *sqlx.DB satisfies it.
type catalog interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

var _ catalog = (*sqlx.DB)(nil)

// Migrator handles the export from PostgreSQL to SQLite
type Migrator struct {
	sourceDB *sql.DB
	meta     catalog
	rows     RowSource
	source   string
	schema   string
	console  *Console
	cleanup  func()
}

// ErrTableNotFound is returned when a requested table is not in the source schema.
var ErrTableNotFound = errors.New("table not found")

// ConnectionError reports that the source or destination could not be opened.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DDLError reports a failed CREATE TABLE on the destination.
type DDLError struct {
	Table     string
	Statement string
	Err       error
}

func (e *DDLError) Error() string {
	return fmt.Sprintf("failed to create table %s: %v", e.Table, e.Err)
}

func (e *DDLError) Unwrap() error { return e.Err }

// UnsupportedColumnError reports a column for which no candidate kind could
// be used. Err carries the last decode failure when the column type was
// accepted but its value could not be decoded.
type UnsupportedColumnError struct {
	Table    string
	Column   string
	TypeName string
	Err      error
}

func (e *UnsupportedColumnError) Error() string {
	typeName := e.TypeName
	if typeName == "" {
		typeName = "unknown"
	}
	msg := fmt.Sprintf("unsupported column type %s for %s.%s", typeName, e.Table, e.Column)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnsupportedColumnError) Unwrap() error { return e.Err }
