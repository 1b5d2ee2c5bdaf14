package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// Quad is a subject-predicate-object record. The name is kept from the
// domain's terminology even though there is no graph position.
type Quad struct {
	Subject   Value
	Predicate Value
	Object    Value
}

func NewQuad(subject, predicate, object Value) Quad {
	return Quad{
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
	}
}

func (q Quad) String() string {
	return fmt.Sprintf("%s %s %s .", q.Subject, q.Predicate, q.Object)
}

// Key is a collision-free map key for the quad. Each part is length
// prefixed, so value keys may contain any byte.
func (q Quad) Key() string {
	var b strings.Builder
	for _, v := range [...]Value{q.Subject, q.Predicate, q.Object} {
		k := v.Key()
		b.WriteString(strconv.Itoa(len(k)))
		b.WriteByte(':')
		b.WriteString(k)
	}
	return b.String()
}

func (q Quad) Equals(other Quad) bool {
	return Equal(q.Subject, other.Subject) &&
		Equal(q.Predicate, other.Predicate) &&
		Equal(q.Object, other.Object)
}

// ID is the content-derived identifier of the quad, a 64-bit xxh3 hash of
// its key. Ids of dictionary-encoded stores are sequence numbers instead and
// are never comparable with this one.
func (q Quad) ID() int64 {
	return int64(xxh3.HashString(q.Key())) // #nosec G115 - hash bits reinterpreted as signed id
}
