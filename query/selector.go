package query

import (
	"github.com/tidemark/normstore/resource"
	"github.com/tidemark/normstore/store"
)

// Selector functions are pure, stateless projections over a store and a
// registry. Callers needing live results re-invoke them on every change
// notification; nothing here mutates either structure.

// ResultsFor returns the records a registration currently resolves to,
// in tracked order. If any tracked identifier no longer exists in the
// store the result is empty - a placeholder is never substituted.
// Unknown query IDs also yield an empty sequence.
func ResultsFor(s *store.Store, r *Registry, queryID string) []*store.Record {
	reg, ok := r.Get(queryID)
	if !ok {
		return nil
	}
	out := make([]*store.Record, 0, len(reg.ResultIdentifiers))
	for _, id := range reg.ResultIdentifiers {
		rec, ok := s.Snapshot(id)
		if !ok {
			return nil
		}
		out = append(out, rec)
	}
	return out
}

// ResourceSnapshot returns a point-in-time copy of the current local
// resource, or nil if the identifier is unknown.
func ResourceSnapshot(s *store.Store, id resource.Identifier) *resource.Resource {
	rec, ok := s.Snapshot(id)
	if !ok {
		return nil
	}
	return rec.Resource
}

// PersistedSnapshot returns a point-in-time copy of the last
// remote-confirmed resource, or nil if unknown or never persisted.
func PersistedSnapshot(s *store.Store, id resource.Identifier) *resource.Resource {
	res, ok := s.PersistedSnapshot(id)
	if !ok {
		return nil
	}
	return res
}
