package expr

import (
	"fmt"
	"strings"
	"time"

	"github.com/htql-dev/htql/internal/value"
)

// Filter transforms the left-hand value of a pipe application.
// Filters must be pure: same input, same output, no context mutation.
type Filter func(v value.Value, args ...value.Value) (value.Value, error)

// Filters is the registered filter table, consulted by name at pipe
// application time. Registration happens before the first evaluation;
// a lookup miss is an EvalError, not a panic.
type Filters map[string]Filter

// BuiltinFilters returns the reference filter table.
// Hosts extend or replace entries before mounting.
func BuiltinFilters() Filters {
	return Filters{
		"upper":    filterUpper,
		"lower":    filterLower,
		"default":  filterDefault,
		"currency": filterCurrency,
		"date":     filterDate,
	}
}

func filterUpper(v value.Value, _ ...value.Value) (value.Value, error) {
	return value.String(strings.ToUpper(value.Format(v))), nil
}

func filterLower(v value.Value, _ ...value.Value) (value.Value, error) {
	return value.String(strings.ToLower(value.Format(v))), nil
}

// filterDefault substitutes its argument when the input is falsy.
// Usage: title | default: "untitled"
func filterDefault(v value.Value, args ...value.Value) (value.Value, error) {
	if value.Truthy(v) {
		return v, nil
	}
	if len(args) == 0 {
		return value.String(""), nil
	}
	return args[0], nil
}

// filterCurrency formats a number as a currency amount.
// An optional argument overrides the symbol: price | currency: "€"
func filterCurrency(v value.Value, args ...value.Value) (value.Value, error) {
	n, ok := v.(value.Number)
	if !ok {
		return nil, fmt.Errorf("currency expects a number, got %T", v)
	}
	symbol := "$"
	if len(args) > 0 {
		symbol = value.Format(args[0])
	}
	return value.String(fmt.Sprintf("%s%.2f", symbol, float64(n))), nil
}

// filterDate formats an RFC 3339 timestamp or a Unix-seconds number.
// An optional argument supplies a Go reference layout:
// created | date: "2006-01-02"
func filterDate(v value.Value, args ...value.Value) (value.Value, error) {
	layout := "2006-01-02"
	if len(args) > 0 {
		layout = value.Format(args[0])
	}
	var t time.Time
	switch tv := v.(type) {
	case value.Number:
		t = time.Unix(int64(tv), 0).UTC()
	case value.String:
		parsed, err := time.Parse(time.RFC3339, string(tv))
		if err != nil {
			return nil, fmt.Errorf("date expects an RFC 3339 timestamp: %w", err)
		}
		t = parsed
	default:
		return nil, fmt.Errorf("date expects a timestamp, got %T", v)
	}
	return value.String(t.Format(layout)), nil
}
