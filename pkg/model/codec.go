package model

import (
	"strconv"
	"strings"
)

const (
	suffixString       = "^^String"
	suffixLong         = "^^Long"
	suffixDouble       = "^^Double"
	suffixDoubleVector = "^^DoubleVector"
	suffixLongVector   = "^^LongVector"
)

// Codec converts values to and from the text format used by import and
// export tooling. LocalBase is the store's own base address; bracketed URIs
// below it become LocalURIValues.
type Codec struct {
	LocalBase string
}

// NewCodec creates a codec for the given local base address
func NewCodec(localBase string) *Codec {
	return &Codec{LocalBase: localBase}
}

// Parse reads a value from its wire form. It never fails: malformed numbers
// become 0 and anything unrecognised is a StringValue.
func (c *Codec) Parse(text string) Value {
	switch {
	case strings.HasSuffix(text, suffixString):
		return StringValue(strings.TrimSuffix(text, suffixString))

	case strings.HasSuffix(text, suffixLong):
		n, err := strconv.ParseInt(strings.TrimSuffix(text, suffixLong), 10, 64)
		if err != nil {
			return LongValue(0)
		}
		return LongValue(n)

	case strings.HasSuffix(text, suffixDouble):
		f, err := strconv.ParseFloat(strings.TrimSuffix(text, suffixDouble), 64)
		if err != nil {
			return DoubleValue(0)
		}
		return DoubleValue(f)

	case strings.HasSuffix(text, suffixDoubleVector):
		return parseDoubleVector(strings.TrimSuffix(text, suffixDoubleVector))

	case strings.HasSuffix(text, suffixLongVector):
		return parseLongVector(strings.TrimSuffix(text, suffixLongVector))

	case len(text) >= 2 && text[0] == '<' && text[len(text)-1] == '>':
		uri := text[1 : len(text)-1]
		if c.LocalBase != "" && strings.HasPrefix(uri, c.LocalBase) {
			return LocalURIValue{Suffix: uri[len(c.LocalBase):]}
		}
		return NewURIValue(uri)

	default:
		return StringValue(text)
	}
}

// Render writes v in its wire form. It is the inverse of Parse.
func (c *Codec) Render(v Value) string {
	if local, ok := v.(LocalURIValue); ok {
		return "<" + c.LocalBase + local.Suffix + ">"
	}
	return v.String()
}

// RenderQuad renders the three positions of q separated by spaces
func (c *Codec) RenderQuad(q Quad) string {
	return c.Render(q.Subject) + " " + c.Render(q.Predicate) + " " + c.Render(q.Object)
}

func parseDoubleVector(body string) Value {
	parts, ok := vectorParts(body)
	if !ok {
		return DoubleVectorValue{}
	}
	out := make(DoubleVectorValue, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return DoubleVectorValue{}
		}
		out[i] = f
	}
	return out
}

func parseLongVector(body string) Value {
	parts, ok := vectorParts(body)
	if !ok {
		return LongVectorValue{}
	}
	out := make(LongVectorValue, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return LongVectorValue{}
		}
		out[i] = n
	}
	return out
}

func vectorParts(body string) ([]string, bool) {
	if len(body) < 2 || body[0] != '[' || body[len(body)-1] != ']' {
		return nil, false
	}
	inner := body[1 : len(body)-1]
	if strings.TrimSpace(inner) == "" {
		return nil, true
	}
	return strings.Split(inner, ","), true
}

func formatDouble(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
