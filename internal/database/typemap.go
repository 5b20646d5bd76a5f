package database

import (
	"fmt"
	"regexp"
	"strings"
)

// TypeMode selects how destination column types are derived.
type TypeMode string

const (
	// TypeModeMapped translates source types through sqliteTypes.
	TypeModeMapped TypeMode = "mapped"
	// TypeModeVerbatim copies the formatted source type into the DDL.
	TypeModeVerbatim TypeMode = "verbatim"
)

// ParseTypeMode validates a type mode name. The empty string means mapped.
func ParseTypeMode(s string) (TypeMode, error) {
	switch TypeMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", TypeModeMapped:
		return TypeModeMapped, nil
	case TypeModeVerbatim:
		return TypeModeVerbatim, nil
	}
	return "", fmt.Errorf("unknown type mode %q (want %q or %q)", s, TypeModeMapped, TypeModeVerbatim)
}

// fallbackType is used for every source type missing from sqliteTypes.
const fallbackType = "TEXT"

var sqliteTypes = map[string]string{
	// integers
	"smallint":    "INTEGER",
	"integer":     "INTEGER",
	"bigint":      "INTEGER",
	"int":         "INTEGER",
	"int2":        "INTEGER",
	"int4":        "INTEGER",
	"int8":        "INTEGER",
	"smallserial": "INTEGER",
	"serial":      "INTEGER",
	"bigserial":   "INTEGER",
	"oid":         "INTEGER",
	`"char"`:      "INTEGER",

	// floating point and exact numerics
	"real":             "REAL",
	"double precision": "REAL",
	"float4":           "REAL",
	"float8":           "REAL",
	"numeric":          "NUMERIC",
	"decimal":          "NUMERIC",

	"boolean": "BOOLEAN",
	"bool":    "BOOLEAN",

	// date and time
	"date":                        "DATE",
	"time":                        "TIME",
	"time without time zone":      "TIME",
	"timestamp":                   "DATETIME",
	"timestamp without time zone": "DATETIME",
	"timestamp with time zone":    "DATETIME",
	"timestamptz":                 "DATETIME",

	// character data
	"character varying": "TEXT",
	"varchar":           "TEXT",
	"character":         "TEXT",
	"char":              "TEXT",
	"bpchar":            "TEXT",
	"text":              "TEXT",
	"name":              "TEXT",
	"citext":            "TEXT",

	"bytea": "BLOB",
}

var typeModifier = regexp.MustCompile(`\([^)]*\)`)

// normalizeType lower-cases a formatted type and strips any "(n[,m])" modifier.
func normalizeType(sourceType string) string {
	t := typeModifier.ReplaceAllString(strings.ToLower(sourceType), "")
	return strings.Join(strings.Fields(t), " ")
}

// DestinationType returns the SQLite column type for a formatted PostgreSQL type.
func DestinationType(sourceType string) string {
	t := normalizeType(sourceType)
	if strings.HasSuffix(t, "[]") {
		return fallbackType
	}
	if dest, ok := sqliteTypes[t]; ok {
		return dest
	}
	return fallbackType
}

// ColumnType picks the DDL type token for a column under the given mode.
func ColumnType(col ColumnDef, mode TypeMode) string {
	if mode == TypeModeVerbatim {
		return col.SourceType
	}
	return DestinationType(col.SourceType)
}
