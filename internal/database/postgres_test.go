package database

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// fakeCatalog answers the metadata queries from memory.
type fakeCatalog struct {
	tables map[string][]ColumnDef
	err    error
}

func (c *fakeCatalog) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	if c.err != nil {
		return c.err
	}
	name := args[1].(string)
	if _, ok := c.tables[name]; !ok {
		return sql.ErrNoRows
	}
	*dest.(*string) = name
	return nil
}

func (c *fakeCatalog) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if c.err != nil {
		return c.err
	}
	*dest.(*[]ColumnDef) = append([]ColumnDef(nil), c.tables[args[1].(string)]...)
	return nil
}

func usersCatalog() *fakeCatalog {
	return &fakeCatalog{tables: map[string][]ColumnDef{
		"users": usersTable.Columns,
		"flags": nil,
	}}
}

func TestSelectSQL(t *testing.T) {
	table := TableDef{Schema: "public", Name: "Users", Columns: []ColumnDef{
		{Name: "id", SourceType: "integer", Nullability: "NOT NULL"},
		{Name: `odd"name`, SourceType: "text", Nullability: "NULL"},
	}}
	got := selectSQL(table)
	want := `SELECT "id", "odd""name" FROM "public"."Users"`
	if got != want {
		t.Fatalf("selectSQL() = %s, want %s", got, want)
	}

	table.Schema = ""
	if got := selectSQL(table); !strings.HasSuffix(got, `FROM "Users"`) {
		t.Fatalf("selectSQL() without schema = %s", got)
	}
}

func TestColumnsQueryExcludesIdentifierTypes(t *testing.T) {
	for _, typ := range []string{"'oid'", "'cid'", "'xid'", "'tid'"} {
		if !strings.Contains(columnsQuery, typ) {
			t.Errorf("columnsQuery does not exclude %s", typ)
		}
	}
	if !strings.Contains(columnsQuery, "ORDER BY a.attnum") {
		t.Error("columnsQuery is not ordered by attnum")
	}
}

func TestErrorTypes(t *testing.T) {
	cause := errors.New("boom")

	notFound := fmt.Errorf("public.ghost: %w", ErrTableNotFound)
	if !errors.Is(notFound, ErrTableNotFound) {
		t.Error("wrapped not-found is not ErrTableNotFound")
	}

	for _, err := range []error{
		&ConnectionError{Target: "PostgreSQL", Err: cause},
		&DDLError{Table: "t", Statement: "CREATE TABLE t ()", Err: cause},
		&UnsupportedColumnError{Table: "t", Column: "c", TypeName: "NUMERIC", Err: cause},
	} {
		if !errors.Is(err, cause) {
			t.Errorf("%T does not unwrap to its cause", err)
		}
	}

	msg := (&UnsupportedColumnError{Table: "t", Column: "c"}).Error()
	if msg != "unsupported column type unknown for t.c" {
		t.Errorf("UnsupportedColumnError.Error() = %q", msg)
	}
}

func TestConsoleWarn(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out)
	c.Warn("Table %s not found!", "ghost")
	c.Fail(errors.New("bad"))
	if !strings.Contains(out.String(), "Table ghost not found!") || !strings.Contains(out.String(), "bad") {
		t.Fatalf("console output = %q", out.String())
	}
}

func TestLoadTablesReportsMissing(t *testing.T) {
	var out bytes.Buffer
	m := &Migrator{meta: usersCatalog(), schema: "public", console: NewConsole(&out)}

	tables, missing, err := m.LoadTables(context.Background(), []string{"ghost", " users", "users", "", "flags"})
	if err != nil {
		t.Fatalf("LoadTables: %v", err)
	}
	if len(tables) != 1 || tables[0].Name != "users" || tables[0].Schema != "public" {
		t.Fatalf("tables = %+v, want users only", tables)
	}
	if len(tables[0].Columns) != len(usersTable.Columns) {
		t.Fatalf("users has %d columns, want %d", len(tables[0].Columns), len(usersTable.Columns))
	}
	if len(missing) != 1 || missing[0] != "ghost" {
		t.Fatalf("missing = %v, want [ghost]", missing)
	}

	got := out.String()
	for _, want := range []string{"Table ghost not found!", "Table flags has no exportable columns"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q missing %q", got, want)
		}
	}
}

func TestLoadTablesCatalogFailure(t *testing.T) {
	cause := errors.New("connection reset")
	m := &Migrator{meta: &fakeCatalog{err: cause}, schema: "public", console: NewConsole(&bytes.Buffer{})}

	_, _, err := m.LoadTables(context.Background(), []string{"users"})
	if !errors.Is(err, cause) {
		t.Fatalf("LoadTables() error = %v, want %v", err, cause)
	}
	if errors.Is(err, ErrTableNotFound) {
		t.Fatal("catalog failure reported as a missing table")
	}
}

func TestResultTypeName(t *testing.T) {
	citext := ColumnDef{Name: "email", SourceType: "citext", Nullability: "NULL"}
	tests := []struct {
		driverName string
		col        ColumnDef
		want       string
	}{
		{"INT4", usersTable.Columns[0], "INT4"},
		{"", citext, "citext"},
		{"16394", citext, "citext"},
		{"", ColumnDef{Name: "tag", SourceType: "character varying(12)"}, "character varying"},
	}
	for _, tt := range tests {
		if got := resultTypeName(tt.driverName, tt.col); got != tt.want {
			t.Errorf("resultTypeName(%q, %s) = %q, want %q", tt.driverName, tt.col.SourceType, got, tt.want)
		}
	}

	kind, ok := FirstCompatible(resultTypeName("16394", citext))
	if !ok || kind != KindText {
		t.Fatalf("citext column probes as %s, %v; want text", kind, ok)
	}
}
