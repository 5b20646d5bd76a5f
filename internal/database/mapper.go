package database

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is a destination-representable value kind.
type Kind int

const (
	KindText Kind = iota
	KindInt8
	KindInt16
	KindInt32
	KindUint32
	KindInt64
	KindFloat32
	KindFloat64
	KindBool
	KindDate
	KindTime
	KindTimestamp
)

var kindNames = [...]string{
	KindText:      "text",
	KindInt8:      "int8",
	KindInt16:     "int16",
	KindInt32:     "int32",
	KindUint32:    "uint32",
	KindInt64:     "int64",
	KindFloat32:   "float32",
	KindFloat64:   "float64",
	KindBool:      "bool",
	KindDate:      "date",
	KindTime:      "time",
	KindTimestamp: "timestamp",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// IsInteger reports whether k is one of the integer kinds.
func (k Kind) IsInteger() bool {
	return k >= KindInt8 && k <= KindInt64
}

const (
	dateLayout      = "2006-01-02"
	timeLayout      = "15:04:05.999999999"
	timestampLayout = "2006-01-02 15:04:05.999999999"
)

// Value is one decoded cell ready to be bound. A Value with Valid false is a
// NULL of its kind.
type Value struct {
	Kind  Kind
	Valid bool
	V     any
}

// Value implements driver.Valuer.
func (v Value) Value() (driver.Value, error) {
	if !v.Valid {
		return nil, nil
	}
	switch x := v.V.(type) {
	case string, int64, float64, bool:
		return x, nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case time.Time:
		switch v.Kind {
		case KindDate:
			return x.Format(dateLayout), nil
		case KindTime:
			return x.Format(timeLayout), nil
		default:
			return x.Format(timestampLayout), nil
		}
	}
	return nil, fmt.Errorf("%s value has unexpected type %T", v.Kind, v.V)
}

// candidate is one entry of the probe list: a compatibility check on the
// source column type and a decoder for its values.
type candidate struct {
	kind    Kind
	accepts func(typeName string) bool
	extract func(src any) (any, error)
}

// candidates is tried in order; the first kind that accepts the column type
// and decodes the value wins.
var candidates = []candidate{
	{KindText, typeIn("VARCHAR", "TEXT", "BPCHAR", "NAME", "UNKNOWN", "CITEXT"), extractText},
	{KindInt8, typeIn("CHAR"), extractInt8},
	{KindInt16, typeIn("INT2"), extractInt16},
	{KindInt32, typeIn("INT4"), extractInt32},
	{KindUint32, typeIn("OID"), extractUint32},
	{KindInt64, typeIn("INT8"), extractInt64},
	{KindFloat32, typeIn("FLOAT4"), extractFloat32},
	{KindFloat64, typeIn("FLOAT8"), extractFloat64},
	{KindBool, typeIn("BOOL"), extractBool},
	{KindDate, typeIn("DATE"), extractDate},
	{KindTime, typeIn("TIME"), extractTime},
	{KindTimestamp, typeIn("TIMESTAMP", "TIMESTAMPTZ"), extractTimestamp},
}

// ProbeOrder returns the candidate kinds in the order they are tried.
func ProbeOrder() []Kind {
	kinds := make([]Kind, len(candidates))
	for i, c := range candidates {
		kinds[i] = c.kind
	}
	return kinds
}

func typeIn(names ...string) func(string) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(typeName string) bool {
		return set[strings.ToUpper(typeName)]
	}
}

// FirstCompatible returns the first candidate kind accepting typeName.
func FirstCompatible(typeName string) (Kind, bool) {
	for _, c := range candidates {
		if c.accepts(typeName) {
			return c.kind, true
		}
	}
	return 0, false
}

// Probe maps one source cell. A nil src yields a NULL of the first
// compatible kind. ok is false when no candidate matched; err then holds the
// last decode failure, if any.
func Probe(typeName string, src any) (v Value, ok bool, err error) {
	for _, c := range candidates {
		if !c.accepts(typeName) {
			continue
		}
		if src == nil {
			return Value{Kind: c.kind}, true, nil
		}
		decoded, derr := c.extract(src)
		if derr != nil {
			err = derr
			continue
		}
		return Value{Kind: c.kind, Valid: true, V: decoded}, true, nil
	}
	return Value{}, false, err
}

// Mapper converts source rows of one table into INSERT arguments.
type Mapper struct {
	table     string
	columns   []string
	typeNames []string
	args      []any
}

// NewMapper checks that every column has a compatible kind before any row
// is read.
func NewMapper(table TableDef, typeNames []string) (*Mapper, error) {
	if len(typeNames) != len(table.Columns) {
		return nil, fmt.Errorf("table %s: source returned %d columns, catalog has %d",
			table.Name, len(typeNames), len(table.Columns))
	}

	for i, typeName := range typeNames {
		if _, ok := FirstCompatible(typeName); !ok {
			return nil, &UnsupportedColumnError{
				Table:    table.Name,
				Column:   table.Columns[i].Name,
				TypeName: typeName,
			}
		}
	}

	return &Mapper{
		table:     table.Name,
		columns:   table.ColumnNames(),
		typeNames: typeNames,
		args:      make([]any, len(typeNames)),
	}, nil
}

// MapRow returns one argument per column, in column order. The returned
// slice is reused by the next call.
func (m *Mapper) MapRow(src []any) ([]any, error) {
	if len(src) != len(m.typeNames) {
		return nil, fmt.Errorf("table %s: row has %d values, want %d", m.table, len(src), len(m.typeNames))
	}
	for i, cell := range src {
		v, ok, err := Probe(m.typeNames[i], cell)
		if !ok {
			return nil, &UnsupportedColumnError{
				Table:    m.table,
				Column:   m.columns[i],
				TypeName: m.typeNames[i],
				Err:      err,
			}
		}
		m.args[i] = v
	}
	return m.args, nil
}

func unexpected(kind Kind, src any) error {
	return fmt.Errorf("cannot decode %T as %s", src, kind)
}

func extractText(src any) (any, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return nil, unexpected(KindText, src)
}

// extractInt8 decodes the single-byte "char" type.
func extractInt8(src any) (any, error) {
	switch v := src.(type) {
	case string:
		return charByte(v)
	case []byte:
		return charByte(string(v))
	}
	n, err := toInt64(KindInt8, src)
	if err != nil {
		return nil, err
	}
	if n < math.MinInt8 || n > math.MaxInt8 {
		return nil, fmt.Errorf("value %d out of range for %s", n, KindInt8)
	}
	return int8(n), nil
}

func charByte(s string) (any, error) {
	switch len(s) {
	case 0:
		return int8(0), nil
	case 1:
		return int8(s[0]), nil
	}
	return nil, fmt.Errorf("%q is not a single byte", s)
}

func extractInt16(src any) (any, error) {
	n, err := toInt64(KindInt16, src)
	if err != nil {
		return nil, err
	}
	if n < math.MinInt16 || n > math.MaxInt16 {
		return nil, fmt.Errorf("value %d out of range for %s", n, KindInt16)
	}
	return int16(n), nil
}

func extractInt32(src any) (any, error) {
	n, err := toInt64(KindInt32, src)
	if err != nil {
		return nil, err
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, fmt.Errorf("value %d out of range for %s", n, KindInt32)
	}
	return int32(n), nil
}

func extractUint32(src any) (any, error) {
	if v, ok := src.(uint32); ok {
		return v, nil
	}
	n, err := toInt64(KindUint32, src)
	if err != nil {
		return nil, err
	}
	if n < 0 || n > math.MaxUint32 {
		return nil, fmt.Errorf("value %d out of range for %s", n, KindUint32)
	}
	return uint32(n), nil
}

func extractInt64(src any) (any, error) {
	return toInt64(KindInt64, src)
}

func toInt64(kind Kind, src any) (int64, error) {
	switch v := src.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int:
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, unexpected(kind, src)
}

func extractFloat32(src any) (any, error) {
	f, err := toFloat64(KindFloat32, src)
	if err != nil {
		return nil, err
	}
	if math.Abs(f) > math.MaxFloat32 && !math.IsInf(f, 0) {
		return nil, fmt.Errorf("value %g out of range for %s", f, KindFloat32)
	}
	return float64(float32(f)), nil
}

func extractFloat64(src any) (any, error) {
	return toFloat64(KindFloat64, src)
}

func toFloat64(kind Kind, src any) (float64, error) {
	switch v := src.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case []byte:
		return strconv.ParseFloat(string(v), 64)
	case string:
		return strconv.ParseFloat(v, 64)
	}
	return 0, unexpected(kind, src)
}

func extractBool(src any) (any, error) {
	switch v := src.(type) {
	case bool:
		return v, nil
	case []byte:
		return strconv.ParseBool(string(v))
	case string:
		return strconv.ParseBool(v)
	}
	return nil, unexpected(KindBool, src)
}

func extractDate(src any) (any, error) {
	t, err := toTime(KindDate, src, dateLayout)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func extractTime(src any) (any, error) {
	t, err := toTime(KindTime, src, "15:04:05")
	if err != nil {
		return nil, err
	}
	return t, nil
}

func extractTimestamp(src any) (any, error) {
	t, err := toTime(KindTimestamp, src,
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05Z07",
		time.RFC3339Nano,
	)
	if err != nil {
		return nil, err
	}
	return t.UTC(), nil
}

// toTime accepts a time.Time or its textual form in one of layouts.
// Fractional seconds are accepted after the seconds field.
func toTime(kind Kind, src any, layouts ...string) (time.Time, error) {
	var s string
	switch v := src.(type) {
	case time.Time:
		return v, nil
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return time.Time{}, unexpected(kind, src)
	}

	var err error
	for _, layout := range layouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as %s: %w", s, kind, err)
}
