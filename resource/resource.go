package resource

import (
	"fmt"
	"reflect"

	"github.com/goccy/go-json"
	"github.com/tiendc/go-deepcopy"
)

// Identifier is a type+id pair identifying any resource. It is the cache
// key everywhere: two identifiers are equal iff both fields are equal,
// so the type is usable directly as a map key.
type Identifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// String returns "type/id" for logging and error messages.
func (i Identifier) String() string {
	return i.Type + "/" + i.ID
}

// Valid reports whether both fields are non-empty.
func (i Identifier) Valid() bool {
	return i.Type != "" && i.ID != ""
}

// Relationship is a reference from one resource to one or more others.
// It is a tagged union: either One is set (to-one), or Many holds the
// ordered references (to-many). ToMany distinguishes an empty to-many
// relationship from an unset to-one.
//
// Unresolved marks a reference that has not yet been resolved against
// the store (e.g. parsed from a document whose target was not included).
type Relationship struct {
	One        *Identifier
	Many       []Identifier
	ToMany     bool
	Unresolved bool
}

// relationshipWire is the JSON shape: {"data": {...}} or {"data": [...]}.
type relationshipWire struct {
	Data json.RawMessage `json:"data"`
}

// MarshalJSON implements json.Marshaler for Relationship.
func (r Relationship) MarshalJSON() ([]byte, error) {
	if r.ToMany {
		many := r.Many
		if many == nil {
			many = []Identifier{}
		}
		return json.Marshal(relationshipWire{Data: mustRaw(many)})
	}
	if r.One == nil {
		return []byte(`{"data":null}`), nil
	}
	return json.Marshal(relationshipWire{Data: mustRaw(*r.One)})
}

// UnmarshalJSON implements json.Unmarshaler for Relationship.
// A JSON array is a to-many reference, an object is to-one, and null is
// an empty to-one.
func (r *Relationship) UnmarshalJSON(data []byte) error {
	var wire relationshipWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = Relationship{Unresolved: true}
	trimmed := firstByte(wire.Data)
	switch trimmed {
	case 0, 'n':
		r.One = nil
	case '[':
		r.ToMany = true
		if err := json.Unmarshal(wire.Data, &r.Many); err != nil {
			return err
		}
	case '{':
		var id Identifier
		if err := json.Unmarshal(wire.Data, &id); err != nil {
			return err
		}
		r.One = &id
	default:
		return fmt.Errorf("relationship data must be null, object, or array")
	}
	return nil
}

// References returns the referenced identifiers in order. A to-one
// relationship yields zero or one entries.
func (r Relationship) References() []Identifier {
	if r.ToMany {
		return r.Many
	}
	if r.One != nil {
		return []Identifier{*r.One}
	}
	return nil
}

// ToOne builds a resolved to-one relationship.
func ToOne(id Identifier) Relationship {
	return Relationship{One: &id}
}

// ToManyOf builds a resolved to-many relationship.
func ToManyOf(ids ...Identifier) Relationship {
	return Relationship{Many: ids, ToMany: true}
}

// Resource is a typed, identified object with attributes and
// relationship references. Relationship targets are never embedded here;
// they resolve through the store.
type Resource struct {
	Type          string                  `json:"type"`
	ID            string                  `json:"id"`
	Attributes    Attributes              `json:"attributes,omitempty"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`
}

// Identifier returns the resource's identity pair.
func (r *Resource) Identifier() Identifier {
	return Identifier{Type: r.Type, ID: r.ID}
}

// Clone returns a deep copy. Mutating the copy never affects the
// original, which is what snapshot isolation in the store relies on.
func (r *Resource) Clone() *Resource {
	if r == nil {
		return nil
	}
	dst := &Resource{}
	if err := deepcopy.Copy(dst, r); err != nil {
		// All field types are plain data; a copy failure is a bug.
		panic(fmt.Sprintf("resource clone: %v", err))
	}
	return dst
}

// Equal reports deep structural equality of two resources.
func (r *Resource) Equal(other *Resource) bool {
	if r == nil || other == nil {
		return r == other
	}
	return reflect.DeepEqual(r, other)
}

func mustRaw(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}

// firstByte returns the first non-whitespace byte of a JSON fragment,
// or 0 if the fragment is empty.
func firstByte(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}
