package value

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Value is a sealed interface representing the result of evaluating an
// expression against a data context.
// Only Undefined, Null, Bool, Number, String, Sequence, and Mapping
// implement this.
//
// Undefined is distinct from Null: Null is data that is explicitly present
// and empty, Undefined is data that is absent. Member access on a missing
// path yields Undefined, and Undefined propagates through member chains and
// arithmetic so a template referencing not-yet-present data renders empty
// output instead of failing.
type Value interface {
	value() // Sealed - only these types implement it
}

// Undefined represents an absent value (missing member, unresolved path).
// Undefined is falsy and compares unequal to everything, including itself.
type Undefined struct{}

func (Undefined) value() {}

// Null represents an explicitly-present empty value.
type Null struct{}

func (Null) value() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// Number represents a numeric value. A single float64 kind covers template
// arithmetic, including division.
type Number float64

func (Number) value() {}

// String represents a string value.
type String string

func (String) value() {}

// Sequence represents an ordered list of values.
type Sequence []Value

func (Sequence) value() {}

// Mapping represents a map of string keys to values.
// Use SortedKeys() for deterministic iteration.
type Mapping map[string]Value

func (Mapping) value() {}

// SortedKeys returns the mapping's keys in lexical order.
// Iteration over a Mapping must go through this for deterministic output.
func (m Mapping) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Truthy reports whether v is considered true in a directive condition.
//
// Falsy values: Undefined, Null, false, 0, NaN, "", empty Sequence, empty
// Mapping. Everything else is truthy.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case nil, Undefined, Null:
		return false
	case Bool:
		return bool(val)
	case Number:
		return float64(val) != 0 && !math.IsNaN(float64(val))
	case String:
		return val != ""
	case Sequence:
		return len(val) > 0
	case Mapping:
		return len(val) > 0
	default:
		return false
	}
}

// Equal reports value equality between a and b.
//
// Undefined never equals anything, itself included - a comparison against
// missing data must stay false rather than accidentally matching another
// missing value. Null equals Null. Sequences and mappings compare
// structurally.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil, Undefined:
		return false
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Sequence:
		bv, ok := b.(Sequence)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Mapping:
		bv, ok := b.(Mapping)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bv2, present := bv[k]
			if !present || !Equal(v, bv2) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare orders a against b for the relational operators.
// Returns (-1|0|1, true) when the two values are comparable (both numbers
// or both strings), and (0, false) otherwise. A comparison involving an
// incomparable pair - Undefined included - evaluates to false at the
// operator level.
func Compare(a, b Value) (int, bool) {
	switch av := a.(type) {
	case Number:
		bv, ok := b.(Number)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		default:
			return 0, true
		}
	case String:
		bv, ok := b.(String)
		if !ok {
			return 0, false
		}
		return strings.Compare(string(av), string(bv)), true
	default:
		return 0, false
	}
}

// Member resolves a single member access on v.
// Missing members, indexing a non-sequence, and access through Undefined
// all yield Undefined - never an error.
func Member(v Value, name string) Value {
	m, ok := v.(Mapping)
	if !ok {
		return Undefined{}
	}
	res, present := m[name]
	if !present {
		return Undefined{}
	}
	return res
}

// Index resolves a positional access on v.
// Out-of-range indexes and non-sequence receivers yield Undefined.
func Index(v Value, i int) Value {
	seq, ok := v.(Sequence)
	if !ok || i < 0 || i >= len(seq) {
		return Undefined{}
	}
	return seq[i]
}

// Format renders v as output text. Undefined and Null render as the empty
// string so a binding on missing data degrades to empty content.
func Format(v Value) string {
	switch val := v.(type) {
	case nil, Undefined, Null:
		return ""
	case Bool:
		return strconv.FormatBool(bool(val))
	case Number:
		return strconv.FormatFloat(float64(val), 'f', -1, 64)
	case String:
		return string(val)
	case Sequence:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = Format(e)
		}
		return strings.Join(parts, ",")
	case Mapping:
		parts := make([]string, 0, len(val))
		for _, k := range val.SortedKeys() {
			parts = append(parts, fmt.Sprintf("%s:%s", k, Format(val[k])))
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}

// FromAny converts a decoded JSON/YAML value into a Value.
// nil becomes Null. Integer kinds widen to Number. Map keys must be
// strings (yaml.v3 with default settings and all JSON decoders satisfy
// this).
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Number(val), nil
	case int64:
		return Number(val), nil
	case float64:
		return Number(val), nil
	case []any:
		seq := make(Sequence, len(val))
		for i, e := range val {
			ev, err := FromAny(e)
			if err != nil {
				return nil, fmt.Errorf("sequence[%d]: %w", i, err)
			}
			seq[i] = ev
		}
		return seq, nil
	case map[string]any:
		m := make(Mapping, len(val))
		for k, e := range val {
			ev, err := FromAny(e)
			if err != nil {
				return nil, fmt.Errorf("mapping[%q]: %w", k, err)
			}
			m[k] = ev
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported data type: %T", v)
	}
}

// ToAny converts a Value back to plain Go data (for schema validation and
// diagnostics). Undefined converts to nil, same as Null.
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil, Undefined, Null:
		return nil
	case Bool:
		return bool(val)
	case Number:
		return float64(val)
	case String:
		return string(val)
	case Sequence:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = ToAny(e)
		}
		return out
	case Mapping:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = ToAny(e)
		}
		return out
	default:
		return nil
	}
}
