package store

import (
	"fmt"
	"strings"

	"github.com/aleksaelezovic/mediakg/pkg/model"
)

// QuadSet is a read-only collection of quads.
//
// Filter takes one slice per position. A nil slice leaves the position
// unconstrained, an empty non-nil slice can never match, so the result is
// empty without touching the store.
type QuadSet interface {
	// Len returns the number of quads in the set
	Len() (int, error)

	// Quads returns all quads of the set
	Quads() ([]model.Quad, error)

	// Contains reports whether q is in the set
	Contains(q model.Quad) (bool, error)

	// GetByID returns the quad stored under id
	GetByID(id int64) (model.Quad, bool, error)

	FilterSubject(subject model.Value) (QuadSet, error)
	FilterPredicate(predicate model.Value) (QuadSet, error)
	FilterObject(object model.Value) (QuadSet, error)
	Filter(subjects, predicates, objects []model.Value) (QuadSet, error)

	// NearestNeighbor returns up to count synthetic quads
	// (subject, model.QueryDistance, distance) for the subjects whose
	// object under predicate is closest to query, ordered by distance.
	NearestNeighbor(predicate model.Value, query model.VectorValue, count int, metric DistanceMetric) (QuadSet, error)

	// TextFilter returns the quads whose string object matches text. A nil
	// predicate searches all predicates.
	TextFilter(predicate model.Value, text string) (QuadSet, error)

	Union(other QuadSet) (QuadSet, error)
}

// MutableQuadSet is a QuadSet that can be changed. The boolean results
// report whether the set changed.
type MutableQuadSet interface {
	QuadSet

	Add(q model.Quad) (bool, error)
	AddAll(quads []model.Quad) (bool, error)
	Remove(q model.Quad) (bool, error)
	RemoveAll(quads []model.Quad) (bool, error)
	RetainAll(quads []model.Quad) (bool, error)
	ContainsAll(quads []model.Quad) (bool, error)
	Clear() error
}

// DistanceMetric is the distance function of a nearest neighbor query
type DistanceMetric int

const (
	Cosine DistanceMetric = iota
)

func (m DistanceMetric) String() string {
	switch m {
	case Cosine:
		return "COSINE"
	default:
		return fmt.Sprintf("DistanceMetric(%d)", int(m))
	}
}

// ParseDistanceMetric returns the metric with the given name
func ParseDistanceMetric(name string) (DistanceMetric, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "COSINE":
		return Cosine, nil
	default:
		return 0, fmt.Errorf("%w: unknown distance metric %q", ErrInvalidArgument, name)
	}
}

// CheckNeighborQuery validates the arguments of a nearest neighbor query
func CheckNeighborQuery(query model.VectorValue, count int, metric DistanceMetric) error {
	if query == nil {
		return fmt.Errorf("%w: query vector is nil", ErrInvalidArgument)
	}
	if count < 1 {
		return fmt.Errorf("%w: neighbor count must be at least 1, got %d", ErrInvalidArgument, count)
	}
	if metric != Cosine {
		return fmt.Errorf("%w: unsupported distance metric %s", ErrInvalidArgument, metric)
	}
	return nil
}

// ContainsAll reports whether every quad is in set
func ContainsAll(set QuadSet, quads []model.Quad) (bool, error) {
	for _, q := range quads {
		ok, err := set.Contains(q)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
