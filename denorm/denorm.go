// Package denorm expands relationship references into nested resource
// objects for consumption. Expansion is best-effort and never fails:
// a reference whose target is absent from the store becomes an explicit
// unresolved marker, and a reference back onto the current expansion
// path becomes a reference-only placeholder instead of recursing
// unboundedly.
package denorm

import (
	"github.com/goccy/go-json"

	"github.com/tidemark/normstore/resource"
	"github.com/tidemark/normstore/store"
)

// Node is one resource in an expanded graph. Placeholder nodes (Cycle or
// Unresolved set) carry only the identity, no attributes or
// relationships.
type Node struct {
	Type          string              `json:"type"`
	ID            string              `json:"id"`
	Unresolved    bool                `json:"unresolved,omitempty"`
	Cycle         bool                `json:"cycle,omitempty"`
	Attributes    resource.Attributes `json:"attributes,omitempty"`
	Relationships map[string]Link     `json:"relationships,omitempty"`
}

// Link is an expanded relationship: either a single node (possibly nil
// for an empty to-one reference) or an ordered sequence.
type Link struct {
	One    *Node
	Many   []*Node
	ToMany bool
}

// MarshalJSON implements json.Marshaler for Link: to-many links render
// as arrays, to-one links as the node object or null.
func (l Link) MarshalJSON() ([]byte, error) {
	if l.ToMany {
		many := l.Many
		if many == nil {
			many = []*Node{}
		}
		return json.Marshal(many)
	}
	if l.One == nil {
		return []byte("null"), nil
	}
	return json.Marshal(l.One)
}

// Expand denormalizes the record for id against the store, recursively
// replacing relationship references with the referenced records' current
// local resources. An unknown root yields an unresolved marker node.
func Expand(s *store.Store, id resource.Identifier) *Node {
	return expand(s, id, map[resource.Identifier]bool{})
}

// ExpandResource denormalizes a resource body the caller already holds
// (e.g. a query result) without re-reading the root from the store.
func ExpandResource(s *store.Store, res *resource.Resource) *Node {
	path := map[resource.Identifier]bool{res.Identifier(): true}
	return buildNode(s, res, path)
}

func expand(s *store.Store, id resource.Identifier, path map[resource.Identifier]bool) *Node {
	if path[id] {
		return &Node{Type: id.Type, ID: id.ID, Cycle: true}
	}
	rec, ok := s.Snapshot(id)
	if !ok {
		return &Node{Type: id.Type, ID: id.ID, Unresolved: true}
	}
	path[id] = true
	node := buildNode(s, rec.Resource, path)
	// The visited set tracks the current expansion path, not all nodes
	// ever seen: siblings may legitimately reference the same resource.
	delete(path, id)
	return node
}

func buildNode(s *store.Store, res *resource.Resource, path map[resource.Identifier]bool) *Node {
	node := &Node{
		Type:       res.Type,
		ID:         res.ID,
		Attributes: res.Attributes,
	}
	if len(res.Relationships) == 0 {
		return node
	}
	node.Relationships = make(map[string]Link, len(res.Relationships))
	for name, rel := range res.Relationships {
		link := Link{ToMany: rel.ToMany}
		if rel.ToMany {
			link.Many = make([]*Node, 0, len(rel.Many))
			for _, ref := range rel.Many {
				link.Many = append(link.Many, expand(s, ref, path))
			}
		} else if rel.One != nil {
			link.One = expand(s, *rel.One, path)
		}
		node.Relationships[name] = link
	}
	return node
}
