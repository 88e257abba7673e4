// Package resource defines the core data model for the normalized cache:
// typed resource identifiers, resource bodies with attributes and
// relationship references, and the wire document format.
//
// Attributes use a sealed Value union (Null, String, Int, Float, Bool,
// Array, Object) instead of raw interface{} maps. This keeps the set of
// representable shapes closed at the type level: a decoded document can
// only contain values the rest of the system knows how to compare, sort,
// and copy.
//
// Relationships are stored as references (identifiers), never as embedded
// resource bodies. Expansion of references into nested objects is the job
// of package denorm.
package resource
