package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = "http://localhost:8080/"

func TestCodec_RoundTrip(t *testing.T) {
	codec := NewCodec(testBase)

	values := []Value{
		StringValue("agra"),
		StringValue(""),
		StringValue("with spaces and\ttabs"),
		StringValue("looks like <a uri>"),
		StringValue("tricky^^Long"),
		LongValue(0),
		LongValue(-42),
		LongValue(math.MaxInt64),
		DoubleValue(3.14),
		DoubleValue(-0.0),
		DoubleValue(1e300),
		DoubleValue(math.Inf(-1)),
		DoubleValue(math.NaN()),
		URIValue{Prefix: "http://example.org/", Suffix: "hasName"},
		URIValue{Prefix: "http://example.org/ns#", Suffix: "embedding"},
		URIValue{Prefix: "", Suffix: "urn:isbn:123"},
		LocalURIValue{Suffix: "abc123/segment/1"},
		LocalURIValue{Suffix: ""},
		DoubleVectorValue{0.1, -2.5, 1e-9, 4},
		DoubleVectorValue{},
		LongVectorValue{1, -2, 3, math.MinInt64},
		LongVectorValue{},
	}

	for _, v := range values {
		t.Run(v.Type().String()+"/"+v.String(), func(t *testing.T) {
			rendered := codec.Render(v)
			parsed := codec.Parse(rendered)
			assert.True(t, v.Equals(parsed), "round trip of %q gave %q", rendered, codec.Render(parsed))
			assert.Equal(t, v.Key(), parsed.Key())
		})
	}
}

func TestCodec_Parse(t *testing.T) {
	codec := NewCodec(testBase)

	tests := []struct {
		name  string
		input string
		want  Value
	}{
		{"bare token", "agra", StringValue("agra")},
		{"typed string", "agra^^String", StringValue("agra")},
		{"long", "42^^Long", LongValue(42)},
		{"malformed long", "forty-two^^Long", LongValue(0)},
		{"double", "2.5^^Double", DoubleValue(2.5)},
		{"malformed double", "x^^Double", DoubleValue(0)},
		{"external uri", "<http://example.org/a/b>", URIValue{Prefix: "http://example.org/a/", Suffix: "b"}},
		{"fragment uri", "<http://example.org/ns#p>", URIValue{Prefix: "http://example.org/ns#", Suffix: "p"}},
		{"local uri", "<http://localhost:8080/abc/def>", LocalURIValue{Suffix: "abc/def"}},
		{"double vector", "[1,2.5,3]^^DoubleVector", DoubleVectorValue{1, 2.5, 3}},
		{"long vector", "[1, 2, 3]^^LongVector", LongVectorValue{1, 2, 3}},
		{"malformed vector", "[1,a]^^LongVector", LongVectorValue{}},
		{"unclosed bracket", "<http://example.org", StringValue("<http://example.org")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := codec.Parse(tt.input)
			require.NotNil(t, got)
			assert.Equal(t, tt.want.Type(), got.Type())
			assert.True(t, tt.want.Equals(got), "got %s", got)
		})
	}
}

func TestCodec_NoLocalBase(t *testing.T) {
	codec := NewCodec("")
	got := codec.Parse("<http://localhost:8080/abc>")
	assert.Equal(t, ValueTypeURI, got.Type())
}

func TestURIValue_EqualityByRenderedForm(t *testing.T) {
	a := URIValue{Prefix: "http://example.org/", Suffix: "a/b"}
	b := URIValue{Prefix: "http://example.org/a/", Suffix: "b"}
	assert.True(t, a.Equals(b))
	assert.Equal(t, a.Key(), b.Key())
	assert.False(t, a.Equals(LocalURIValue{Suffix: "a/b"}))
}

func TestNumberValue(t *testing.T) {
	v, ok := NumberValue(float32(1.5))
	require.True(t, ok)
	assert.Equal(t, DoubleValue(1.5), v)

	v, ok = NumberValue(int16(-7))
	require.True(t, ok)
	assert.Equal(t, LongValue(-7), v)

	v, ok = NumberValue(uint8(200))
	require.True(t, ok)
	assert.Equal(t, LongValue(200), v)

	_, ok = NumberValue("12")
	assert.False(t, ok)
}

func TestQuad_EqualsAndID(t *testing.T) {
	q1 := NewQuad(StringValue("ex:1"), StringValue("ex:hasName"), StringValue("agra"))
	q2 := NewQuad(StringValue("ex:1"), StringValue("ex:hasName"), StringValue("agra"))
	q3 := NewQuad(StringValue("ex:1"), StringValue("ex:hasName"), LongValue(1))

	assert.True(t, q1.Equals(q2))
	assert.Equal(t, q1.ID(), q2.ID())
	assert.False(t, q1.Equals(q3))
	assert.NotEqual(t, q1.ID(), q3.ID())
}

func TestQuad_KeyKeepsPartsApart(t *testing.T) {
	// parts that contain separator bytes must not shift into each other
	q1 := NewQuad(StringValue("a\x00Sb"), StringValue("c"), LongValue(1))
	q2 := NewQuad(StringValue("a"), StringValue("b\x00Sc"), LongValue(1))

	assert.False(t, q1.Equals(q2))
	assert.NotEqual(t, q1.Key(), q2.Key())
	assert.NotEqual(t, q1.ID(), q2.ID())

	set := map[string]Quad{q1.Key(): q1, q2.Key(): q2}
	assert.Len(t, set, 2)
}

func TestIsSearchable(t *testing.T) {
	assert.True(t, IsSearchable(StringValue("a")))
	assert.True(t, IsSearchable(DoubleVectorValue{1}))
	assert.True(t, IsSearchable(LongVectorValue{1}))
	assert.False(t, IsSearchable(LongValue(1)))
	assert.False(t, IsSearchable(URIValue{Suffix: "a"}))
}
