package store

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/aleksaelezovic/mediakg/pkg/model"
)

// CosineDistance returns 1 - cosine similarity of a and b. Vectors of
// different length or with zero magnitude have distance 1.
func CosineDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na2, nb2 float64
	for i := range a {
		dot += a[i] * b[i]
		na2 += a[i] * a[i]
		nb2 += b[i] * b[i]
	}
	if na2 == 0 || nb2 == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na2)*math.Sqrt(nb2))
}

// Tokenize lower-cases text and splits it into runs of letters and numbers
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// TextMatches reports whether every token of query occurs as a token of text
func TextMatches(text string, query []string) bool {
	if len(query) == 0 {
		return false
	}
	tokens := make(map[string]struct{})
	for _, t := range Tokenize(text) {
		tokens[t] = struct{}{}
	}
	for _, q := range query {
		if _, ok := tokens[q]; !ok {
			return false
		}
	}
	return true
}

// scanNearestNeighbors is the linear-scan kNN shared by the in-memory sets.
// candidates are quads already restricted to the query predicate.
func scanNearestNeighbors(candidates []model.Quad, query model.VectorValue, count int) *BasicQuadSet {
	type scored struct {
		subject  model.Value
		distance float64
	}
	q := query.Float64s()
	var scoreds []scored
	for _, quad := range candidates {
		v, ok := quad.Object.(model.VectorValue)
		if !ok || v.Kind() != query.Kind() || v.Len() != query.Len() {
			continue
		}
		scoreds = append(scoreds, scored{subject: quad.Subject, distance: CosineDistance(q, v.Float64s())})
	}
	sort.SliceStable(scoreds, func(a, b int) bool { return scoreds[a].distance < scoreds[b].distance })
	if count > len(scoreds) {
		count = len(scoreds)
	}
	result := NewBasicQuadSet()
	for _, s := range scoreds[:count] {
		result.add(model.NewQuad(s.subject, model.QueryDistance, model.DoubleValue(s.distance)))
	}
	return result
}

// scanText is the linear-scan text filter shared by the in-memory sets
func scanText(candidates []model.Quad, predicate model.Value, text string) *BasicQuadSet {
	query := Tokenize(text)
	result := NewBasicQuadSet()
	for _, quad := range candidates {
		if predicate != nil && !predicate.Equals(quad.Predicate) {
			continue
		}
		s, ok := quad.Object.(model.StringValue)
		if !ok {
			continue
		}
		if TextMatches(string(s), query) {
			result.add(quad)
		}
	}
	return result
}
