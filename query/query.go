package query

import (
	"github.com/tidemark/normstore/resource"
)

// Kind distinguishes single-resource lookups from collection lookups.
type Kind int

const (
	// KindUnset lets the registry derive the kind from the query shape.
	KindUnset Kind = iota
	// KindOne is a single-resource lookup. Matching more than one record
	// is a NonUniqueResult error.
	KindOne
	// KindMany is a collection lookup evaluated against Params.
	KindMany
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindOne:
		return "ONE"
	case KindMany:
		return "MANY"
	default:
		return "UNSET"
	}
}

// Params are the collection-query criteria. All fields are optional.
type Params struct {
	// Filter maps attribute names (or the special fields "id" and "type")
	// to expected values. All entries must match (conjunction).
	Filter map[string]any

	// Expr is an optional expr-lang predicate evaluated per record with
	// the environment {id, type, attributes}. Must yield a boolean.
	Expr string

	// Sort lists attribute names in priority order. A "-" prefix sorts
	// that key descending. The sort is stable: ties keep insertion order.
	Sort []string

	// Fields requests sparse fieldsets per resource type. Applied at the
	// remote-encoding boundary only; the local store always holds and
	// returns complete resources.
	Fields map[string][]string

	// Include lists dotted relationship paths to eagerly fetch remotely.
	Include []string

	// Offset and Limit slice the final filtered, sorted sequence.
	// Limit <= 0 means no limit.
	Offset int
	Limit  int
}

// Query is a caller-declared request for one or more resources.
// QueryID uniquely identifies a live registration; when empty, the
// registry generates one.
type Query struct {
	QueryID string
	Type    string
	ID      string // set for single-resource lookups
	Kind    Kind
	Params  *Params
}

// EffectiveKind resolves KindUnset: a query with an ID is a
// single-resource lookup, anything else is a collection lookup.
func (q Query) EffectiveKind() Kind {
	if q.Kind != KindUnset {
		return q.Kind
	}
	if q.ID != "" {
		return KindOne
	}
	return KindMany
}

// Identifier returns the identity pair of a single-resource query.
func (q Query) Identifier() resource.Identifier {
	return resource.Identifier{Type: q.Type, ID: q.ID}
}

// params returns the query params, never nil.
func (q Query) params() *Params {
	if q.Params == nil {
		return &Params{}
	}
	return q.Params
}
