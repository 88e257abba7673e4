// Package store implements the normalized store: a flat, identity-keyed
// cache holding exactly one record per resource.
//
// Each record tracks two resource bodies. Persisted is the last
// remote-confirmed state (absent if the resource was never persisted);
// Resource is the current local state, which may differ from Persisted
// while an optimistic edit is pending. The record state is derived from
// the relationship between the two:
//
//   - UNCHANGED: Resource deep-equals Persisted
//   - NEW:       Persisted absent, record awaits remote creation
//   - UPDATED:   Resource differs from Persisted, awaits remote update
//   - DELETED:   record awaits remote deletion; excluded from collection
//     matches but still addressable by identifier
//
// MUTATION DISCIPLINE:
//
// All mutations go through the store's single mutex; every mutation is
// atomic with respect to one identifier and no partial record state is
// externally observable. Snapshots returned to callers are deep copies -
// callers can never reach into live record memory.
//
// Background reads never clobber pending edits: UpsertRemote refreshes
// Persisted unconditionally but leaves Resource untouched while an edit
// is pending, so a later rollback has a correct baseline.
//
// Change notification is an explicit publish/subscribe channel:
// Subscribe registers a callback and returns a handle whose Cancel
// removes it. Callbacks run synchronously after the mutation commits,
// outside the store lock.
package store
