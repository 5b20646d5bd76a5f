package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// DefaultSQLiteDriver is the cgo driver; "sqlite" selects the pure Go one.
const DefaultSQLiteDriver = "sqlite3"

// Migrate exports the named tables into a freshly created SQLite file
func (m *Migrator) Migrate(ctx context.Context, sqliteFile string, tableNames []string, opts Options) error {
	started := time.Now()
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}

	m.console.Step("Collecting metadata ... ")
	tables, missing, err := m.LoadTables(ctx, tableNames)
	if err != nil {
		m.console.Fail(err)
		return fmt.Errorf("failed to collect metadata: %w", err)
	}
	m.console.OK()

	removed, err := removeExisting(sqliteFile)
	if err != nil {
		return &ConnectionError{Target: "SQLite file " + sqliteFile, Err: err}
	}
	if removed {
		m.console.Warn("File %s is already exists. It will be re-created.", sqliteFile)
	}

	m.console.Step("Opening SQLite file ... ")
	destDB, err := openSQLite(ctx, opts.SQLiteDriver, sqliteFile)
	if err != nil {
		m.console.Fail(err)
		return err
	}
	defer destDB.Close()
	m.console.OK()

	m.console.Step("SQLite Schema Generation ... ")
	if err := GenerateSchema(ctx, destDB, tables, opts.TypeMode); err != nil {
		m.console.Fail(err)
		return err
	}
	m.console.Done()

	m.console.Step("Exporting Data ... \n")
	var rows RowSource = m
	if m.rows != nil {
		rows = m.rows
	}
	exporter, err := NewExporter(rows, destDB, opts.BatchSize, m.console)
	if err != nil {
		return err
	}
	stats, err := exporter.Export(ctx, tables)
	if err != nil {
		return err
	}

	if opts.Indexes {
		m.console.Step("Exporting Indexes ... ")
		ExportIndexes(ctx, destDB, tables)
		m.console.Done()
	}

	if opts.Compress {
		m.console.Step("Compressing ... ")
		Compress(sqliteFile)
		m.console.Done()
	}

	if opts.Vacuum {
		if _, err := destDB.ExecContext(ctx, "VACUUM"); err != nil {
			return fmt.Errorf("failed to vacuum database: %w", err)
		}
	}

	report := Report{
		Source:      m.source,
		Destination: sqliteFile,
		BatchSize:   opts.BatchSize,
		Missing:     missing,
		Tables:      stats,
		StartedAt:   started,
		Duration:    time.Since(started),
	}
	log.Printf("export: tables=%d rows=%d missing=%d elapsed=%s",
		len(report.Tables), report.TotalRows(), len(missing), report.Duration.Truncate(time.Millisecond))
	if opts.ReportFile != "" {
		if err := WriteReport(opts.ReportFile, report); err != nil {
			return err
		}
	}

	m.console.Done()
	return nil
}

// removeExisting deletes path if it exists and reports whether it did.
func removeExisting(path string) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, err
	}
	return true, nil
}

// OpenDestination deletes any existing file at path and opens a new SQLite
// database there. The pool holds a single connection.
func OpenDestination(ctx context.Context, driverName, path string) (*sql.DB, error) {
	if _, err := removeExisting(path); err != nil {
		return nil, &ConnectionError{Target: "SQLite file " + path, Err: err}
	}
	return openSQLite(ctx, driverName, path)
}

func openSQLite(ctx context.Context, driverName, path string) (*sql.DB, error) {
	if driverName == "" {
		driverName = DefaultSQLiteDriver
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, &ConnectionError{Target: "SQLite file " + path, Err: err}
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &ConnectionError{Target: "SQLite file " + path, Err: err}
	}
	return db, nil
}

// GenerateSchema creates one destination table per TableDef.
func GenerateSchema(ctx context.Context, db *sql.DB, tables []TableDef, mode TypeMode) error {
	for _, table := range tables {
		query := createTableSQL(table, mode)
		if _, err := db.ExecContext(ctx, query); err != nil {
			return &DDLError{Table: table.Name, Statement: query, Err: err}
		}
		log.Printf("schema: created table=%s columns=%d", table.Name, len(table.Columns))
	}
	return nil
}

func createTableSQL(table TableDef, mode TypeMode) string {
	columnDefs := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		columnDefs[i] = fmt.Sprintf("%s %s %s", quoteIdent(col.Name), ColumnType(col, mode), col.Nullability)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)",
		quoteIdent(table.Name),
		strings.Join(columnDefs, ",\n\t"),
	)
}

// quoteIdent quotes a SQLite identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ExportIndexes is not implemented; source indexes are never copied.
func ExportIndexes(ctx context.Context, db *sql.DB, tables []TableDef) {
	log.Printf("indexes: export not implemented, skipping %d tables", len(tables))
}

// Compress is not implemented; the destination file is left as written.
func Compress(path string) {
	log.Printf("compress: not implemented, leaving %s uncompressed", path)
}
