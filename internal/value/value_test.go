package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruthy(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"undefined is falsy", Undefined{}, false},
		{"null is falsy", Null{}, false},
		{"false is falsy", Bool(false), false},
		{"true is truthy", Bool(true), true},
		{"zero is falsy", Number(0), false},
		{"nonzero is truthy", Number(3.5), true},
		{"empty string is falsy", String(""), false},
		{"string is truthy", String("x"), true},
		{"empty sequence is falsy", Sequence{}, false},
		{"sequence is truthy", Sequence{Number(1)}, true},
		{"empty mapping is falsy", Mapping{}, false},
		{"mapping is truthy", Mapping{"a": Null{}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truthy(tt.v))
		})
	}
}

func TestEqual_UndefinedNeverEqual(t *testing.T) {
	// Undefined must not equal anything, including another Undefined.
	// Otherwise `a.missing == b.missing` would be true for absent data.
	assert.False(t, Equal(Undefined{}, Undefined{}))
	assert.False(t, Equal(Undefined{}, Null{}))
	assert.False(t, Equal(Undefined{}, Number(0)))
}

func TestEqual_Structural(t *testing.T) {
	a := Mapping{"xs": Sequence{Number(1), String("two")}}
	b := Mapping{"xs": Sequence{Number(1), String("two")}}
	c := Mapping{"xs": Sequence{Number(1), String("three")}}

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
	assert.True(t, Equal(Null{}, Null{}))
	assert.False(t, Equal(Number(1), String("1")))
}

func TestCompare(t *testing.T) {
	cmp, ok := Compare(Number(1), Number(2))
	require.True(t, ok)
	assert.Equal(t, -1, cmp)

	cmp, ok = Compare(String("b"), String("a"))
	require.True(t, ok)
	assert.Equal(t, 1, cmp)

	// Mixed kinds and Undefined are incomparable, not an error.
	_, ok = Compare(Number(1), String("1"))
	assert.False(t, ok)
	_, ok = Compare(Undefined{}, Number(1))
	assert.False(t, ok)
}

func TestMemberAndIndex(t *testing.T) {
	m := Mapping{"user": Mapping{"name": String("Ana")}}

	assert.Equal(t, String("Ana"), Member(Member(m, "user"), "name"))
	assert.Equal(t, Undefined{}, Member(m, "missing"))
	assert.Equal(t, Undefined{}, Member(Member(m, "missing"), "deeper"))

	seq := Sequence{String("a"), String("b")}
	assert.Equal(t, String("b"), Index(seq, 1))
	assert.Equal(t, Undefined{}, Index(seq, 2))
	assert.Equal(t, Undefined{}, Index(m, 0))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "", Format(Undefined{}))
	assert.Equal(t, "", Format(Null{}))
	assert.Equal(t, "3.5", Format(Number(3.5)))
	assert.Equal(t, "42", Format(Number(42)))
	assert.Equal(t, "true", Format(Bool(true)))
	assert.Equal(t, "a,b", Format(Sequence{String("a"), String("b")}))
}

func TestFromAny_RoundTrip(t *testing.T) {
	in := map[string]any{
		"name":   "Ana",
		"age":    30,
		"scores": []any{1.5, 2.5},
		"meta":   nil,
	}

	v, err := FromAny(in)
	require.NoError(t, err)

	m, ok := v.(Mapping)
	require.True(t, ok)
	assert.Equal(t, String("Ana"), m["name"])
	assert.Equal(t, Number(30), m["age"])
	assert.Equal(t, Sequence{Number(1.5), Number(2.5)}, m["scores"])
	assert.Equal(t, Null{}, m["meta"])

	out := ToAny(v)
	assert.Equal(t, map[string]any{
		"name":   "Ana",
		"age":    float64(30),
		"scores": []any{1.5, 2.5},
		"meta":   nil,
	}, out)
}

func TestFromAny_Unsupported(t *testing.T) {
	_, err := FromAny(struct{}{})
	require.Error(t, err)
}

func TestPathRelated(t *testing.T) {
	tests := []struct {
		p, q Path
		want bool
	}{
		{"user", "user", true},
		{"user", "user.name", true},
		{"user.name", "user", true},
		{"user.name", "user.email", false},
		{"user", "username", false},
		{"", "user.name", true},
		{"posts.2.title", "posts", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.p.Related(tt.q), "%q vs %q", tt.p, tt.q)
		assert.Equal(t, tt.want, tt.q.Related(tt.p), "%q vs %q (symmetric)", tt.q, tt.p)
	}
}

func TestPathJoinHead(t *testing.T) {
	assert.Equal(t, Path("user.name"), Path("user").Join("name"))
	assert.Equal(t, Path("user"), Path("").Join("user"))
	assert.Equal(t, "posts", Path("posts.2.title").Head())
	assert.Equal(t, "user", Path("user").Head())
}

func TestKey_NFCNormalization(t *testing.T) {
	// U+00E9 (composed) and U+0065 U+0301 (decomposed) render identically
	// and must produce the same reconciliation key.
	composed := String("café")
	decomposed := String("café")
	assert.Equal(t, Key(composed), Key(decomposed))
}
