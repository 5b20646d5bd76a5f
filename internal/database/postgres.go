package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const defaultSchema = "public"

const tableExistsQuery = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = $1
	AND table_name = $2
`

// Internal identifier types (oid, cid, xid, tid) carry no data worth copying.
const columnsQuery = `
	SELECT
		a.attname AS name,
		pg_catalog.format_type(a.atttypid, a.atttypmod) AS source_type,
		CASE WHEN a.attnotnull THEN 'NOT NULL' ELSE 'NULL' END AS nullability
	FROM pg_catalog.pg_attribute a
	JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
	JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $1
	AND c.relname = $2
	AND a.attnum > 0
	AND NOT a.attisdropped
	AND pg_catalog.format_type(a.atttypid, a.atttypmod) NOT IN ('oid', 'cid', 'xid', 'tid')
	ORDER BY a.attnum
`

// NewMigrator opens and pings the source connection
func NewMigrator(ctx context.Context, config Config, console *Console) (*Migrator, error) {
	if console == nil {
		console = NewConsole(nil)
	}

	connStr := config.ConnectionString
	var cleanup func()
	var err error

	if config.SSHKey != "" {
		connStr, cleanup, err = SetupTunnel(config)
		if err != nil {
			return nil, &ConnectionError{Target: "SSH host", Err: err}
		}
	}

	driver := config.Driver
	if driver == "" {
		driver = "postgres"
	}

	db, err := sql.Open(driver, connStr)
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, &ConnectionError{Target: "PostgreSQL", Err: err}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		if cleanup != nil {
			cleanup()
		}
		return nil, &ConnectionError{Target: "PostgreSQL", Err: err}
	}

	schema := config.Schema
	if schema == "" {
		schema = defaultSchema
	}

	return &Migrator{
		sourceDB: db,
		meta:     sqlx.NewDb(db, driver),
		source:   RedactURL(config.ConnectionString),
		schema:   schema,
		console:  console,
		cleanup:  cleanup,
	}, nil
}

// Close closes the database connections and cleans up resources
func (m *Migrator) Close() {
	if m.sourceDB != nil {
		m.sourceDB.Close()
	}
	if m.cleanup != nil {
		m.cleanup()
	}
}

// LoadTables resolves the requested table names in order. Names that do not
// exist are reported as warnings and returned in missing. Tables left without
// columns once identifier types are excluded are skipped with a warning.
func (m *Migrator) LoadTables(ctx context.Context, names []string) (tables []TableDef, missing []string, err error) {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		table, err := m.ResolveTable(ctx, name)
		if errors.Is(err, ErrTableNotFound) {
			m.console.Warn("Table %s not found!", name)
			missing = append(missing, name)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if len(table.Columns) == 0 {
			m.console.Warn("Table %s has no exportable columns, skipping", name)
			continue
		}
		tables = append(tables, table)
	}
	return tables, missing, nil
}

// ResolveTable reads the column metadata of one table
func (m *Migrator) ResolveTable(ctx context.Context, name string) (TableDef, error) {
	var found string
	err := m.meta.GetContext(ctx, &found, tableExistsQuery, m.schema, name)
	if errors.Is(err, sql.ErrNoRows) {
		return TableDef{}, fmt.Errorf("%s.%s: %w", m.schema, name, ErrTableNotFound)
	}
	if err != nil {
		return TableDef{}, fmt.Errorf("failed to look up table %s: %w", name, err)
	}

	columns, err := m.getColumns(ctx, found)
	if err != nil {
		return TableDef{}, fmt.Errorf("failed to read columns of %s: %w", name, err)
	}

	return TableDef{
		Schema:  m.schema,
		Name:    found,
		Columns: columns,
	}, nil
}

func (m *Migrator) getColumns(ctx context.Context, tableName string) ([]ColumnDef, error) {
	var columns []ColumnDef
	if err := m.meta.SelectContext(ctx, &columns, columnsQuery, m.schema, tableName); err != nil {
		return nil, err
	}
	return columns, nil
}

// Query implements RowSource over the source connection.
func (m *Migrator) Query(ctx context.Context, table TableDef) (Cursor, error) {
	rows, err := m.sourceDB.QueryContext(ctx, selectSQL(table))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table.Name, err)
	}

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read result columns of %s: %w", table.Name, err)
	}

	typeNames := make([]string, len(colTypes))
	for i, ct := range colTypes {
		typeNames[i] = ct.DatabaseTypeName()
		if i < len(table.Columns) {
			typeNames[i] = resultTypeName(typeNames[i], table.Columns[i])
		}
	}

	values := make([]any, len(colTypes))
	ptrs := make([]any, len(colTypes))
	for i := range values {
		ptrs[i] = &values[i]
	}

	return &sqlCursor{rows: rows, typeNames: typeNames, values: values, ptrs: ptrs}, nil
}

// resultTypeName returns the driver's type name for a result column, or the
// catalog type when the driver has none. lib/pq reports "" and pgx reports the
// numeric OID for extension types such as citext.
func resultTypeName(driverName string, col ColumnDef) string {
	if driverName != "" && strings.Trim(driverName, "0123456789") != "" {
		return driverName
	}
	return normalizeType(col.SourceType)
}

// selectSQL lists the retained columns explicitly so the result order always
// matches the catalog order, even when an excluded column sits in between.
func selectSQL(table TableDef) string {
	cols := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		cols[i] = pq.QuoteIdentifier(c.Name)
	}

	from := pq.QuoteIdentifier(table.Name)
	if table.Schema != "" {
		from = pq.QuoteIdentifier(table.Schema) + "." + from
	}

	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), from)
}

// sqlCursor streams a *sql.Rows one row at a time.
type sqlCursor struct {
	rows      *sql.Rows
	typeNames []string
	values    []any
	ptrs      []any
}

func (c *sqlCursor) TypeNames() []string { return c.typeNames }

func (c *sqlCursor) Next() bool { return c.rows.Next() }

func (c *sqlCursor) Values() ([]any, error) {
	for i := range c.values {
		c.values[i] = nil
	}
	if err := c.rows.Scan(c.ptrs...); err != nil {
		return nil, err
	}
	return c.values, nil
}

func (c *sqlCursor) Err() error { return c.rows.Err() }

func (c *sqlCursor) Close() error { return c.rows.Close() }
