package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the fixed-width UTC timestamp format used for stored
// timestamps, so that text ordering equals time ordering
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in TimeLayout
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Op is a filter operator
type Op string

const (
	OpEq      Op = "eq"
	OpNeq     Op = "neq"
	OpGte     Op = "gte"
	OpLte     Op = "lte"
	OpIsNull  Op = "is_null"
	OpNotNull Op = "not_null"
	OpIn      Op = "in"
	OpAnd     Op = "and"
	OpOr      Op = "or"
)

// Filter is a boolean expression over columns. The zero Filter matches every row.
type Filter struct {
	Op     Op       `json:"op,omitempty"`
	Column string   `json:"column,omitempty"`
	Value  any      `json:"value,omitempty"`
	Values []any    `json:"values,omitempty"`
	Args   []Filter `json:"args,omitempty"`
}

func Eq(column string, v any) Filter  { return Filter{Op: OpEq, Column: column, Value: v} }
func Neq(column string, v any) Filter { return Filter{Op: OpNeq, Column: column, Value: v} }
func Gte(column string, v any) Filter { return Filter{Op: OpGte, Column: column, Value: v} }
func Lte(column string, v any) Filter { return Filter{Op: OpLte, Column: column, Value: v} }
func IsNull(column string) Filter     { return Filter{Op: OpIsNull, Column: column} }
func NotNull(column string) Filter    { return Filter{Op: OpNotNull, Column: column} }

// In matches rows whose column equals one of values
func In(column string, values ...any) Filter {
	return Filter{Op: OpIn, Column: column, Values: values}
}

// And matches rows matching every argument. Empty arguments are dropped.
func And(fs ...Filter) Filter {
	return combine(OpAnd, fs)
}

// Or matches rows matching any argument. Empty arguments are dropped.
func Or(fs ...Filter) Filter {
	return combine(OpOr, fs)
}

func combine(op Op, fs []Filter) Filter {
	var args []Filter
	for _, f := range fs {
		if f.IsEmpty() {
			continue
		}
		if f.Op == op {
			args = append(args, f.Args...)
			continue
		}
		args = append(args, f)
	}
	switch len(args) {
	case 0:
		return Filter{}
	case 1:
		return args[0]
	}
	return Filter{Op: op, Args: args}
}

// IsEmpty reports whether the filter matches everything
func (f Filter) IsEmpty() bool {
	return f.Op == ""
}

// Columns returns every column the filter references
func (f Filter) Columns() []string {
	var cols []string
	f.walk(func(g Filter) {
		if g.Column != "" {
			cols = append(cols, g.Column)
		}
	})
	return cols
}

func (f Filter) walk(fn func(Filter)) {
	fn(f)
	for _, a := range f.Args {
		a.walk(fn)
	}
}

// Validate checks operators and operand shapes
func (f Filter) Validate() error {
	switch f.Op {
	case "":
		return nil
	case OpEq, OpNeq, OpGte, OpLte:
		if f.Column == "" {
			return fmt.Errorf("filter %s: column required", f.Op)
		}
		if f.Value == nil {
			return fmt.Errorf("filter %s on %s: value required, use is_null", f.Op, f.Column)
		}
	case OpIsNull, OpNotNull:
		if f.Column == "" {
			return fmt.Errorf("filter %s: column required", f.Op)
		}
	case OpIn:
		if f.Column == "" || len(f.Values) == 0 {
			return fmt.Errorf("filter in: column and values required")
		}
	case OpAnd, OpOr:
		if len(f.Args) == 0 {
			return fmt.Errorf("filter %s: arguments required", f.Op)
		}
		for _, a := range f.Args {
			if err := a.Validate(); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown filter operator %q", f.Op)
	}
	return nil
}

// Match evaluates the filter against a row with SQL null semantics:
// comparisons against a missing or null column are false.
func (f Filter) Match(row Row) bool {
	switch f.Op {
	case "":
		return true
	case OpAnd:
		for _, a := range f.Args {
			if !a.Match(row) {
				return false
			}
		}
		return true
	case OpOr:
		for _, a := range f.Args {
			if a.Match(row) {
				return true
			}
		}
		return false
	}

	v := normalize(row[f.Column])
	switch f.Op {
	case OpIsNull:
		return v == nil
	case OpNotNull:
		return v != nil
	}
	if v == nil {
		return false
	}
	switch f.Op {
	case OpEq:
		c, ok := compare(v, normalize(f.Value))
		return ok && c == 0
	case OpNeq:
		c, ok := compare(v, normalize(f.Value))
		return ok && c != 0
	case OpGte:
		c, ok := compare(v, normalize(f.Value))
		return ok && c >= 0
	case OpLte:
		c, ok := compare(v, normalize(f.Value))
		return ok && c <= 0
	case OpIn:
		for _, want := range f.Values {
			if c, ok := compare(v, normalize(want)); ok && c == 0 {
				return true
			}
		}
	}
	return false
}

// Normalize reduces a value to nil, bool, float64 or string so values
// decoded from SQL, JSON and Go literals compare equal.
func Normalize(v any) any {
	return normalize(v)
}

func normalize(v any) any {
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	}
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		return FormatTime(x)
	case bool:
		return x
	case string:
		return x
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	case json.Number:
		if f, err := strconv.ParseFloat(string(x), 64); err == nil {
			return f
		}
		return string(x)
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return string(data)
	}
	if _, ok := out.(string); ok {
		return out
	}
	if _, ok := out.(bool); ok {
		return out
	}
	if _, ok := out.(float64); ok {
		return out
	}
	if out == nil {
		return nil
	}
	return string(data)
}

func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if x == y {
			return 0, true
		}
		if !x {
			return -1, true
		}
		return 1, true
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	}
	return 0, false
}

// Encode serializes the filter for transport
func (f Filter) Encode() (string, error) {
	if f.IsEmpty() {
		return "", nil
	}
	data, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("failed to encode filter: %w", err)
	}
	return string(data), nil
}

// DecodeFilter parses a filter produced by Encode
func DecodeFilter(s string) (Filter, error) {
	if strings.TrimSpace(s) == "" {
		return Filter{}, nil
	}
	var f Filter
	if err := json.Unmarshal([]byte(s), &f); err != nil {
		return Filter{}, fmt.Errorf("invalid filter: %w", err)
	}
	if err := f.Validate(); err != nil {
		return Filter{}, err
	}
	return f, nil
}
