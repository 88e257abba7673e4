// Package query implements the query registry and the pure projection
// layer over the normalized store.
//
// A Query declares a request for one resource (type+id, or criteria
// expected to match at most one record) or a collection (type plus
// optional filtering, sorting, and pagination). Live queries are tracked
// in a Registry entry that owns only identifier lists - weak references
// into the store, never copies of resource bodies. Registrations are
// reference-counted by active observers and removed when the last
// observer detaches; the underlying resources stay cached.
//
// Matching, filtering, sorting, and slicing are pure functions:
// evaluation never mutates the store or the registry. Filtering supports
// field equality and an optional expr-lang predicate evaluated against
// the resource's id, type, and attributes. Sorting is a stable multi-key
// sort; a "-" prefix marks a descending key, and string keys are
// NFC-normalized before comparison so visually identical values order
// identically.
package query
