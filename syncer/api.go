package syncer

import (
	"context"

	"github.com/tidemark/normstore/query"
	"github.com/tidemark/normstore/resource"
	"github.com/tidemark/normstore/store"
)

// The caller-facing operations. Each fromRemote=false / toRemote=false
// variant touches only the normalized store; the remote variants go
// through the coordinator immediately instead of waiting for Apply.

// FindMany resolves a collection query. With fromRemote the query is
// fetched through the Remote and merged into the store first; otherwise
// it is answered from the cache. Results come back in the registration's
// tracked order.
func (c *Coordinator) FindMany(ctx context.Context, q query.Query, fromRemote bool) ([]*store.Record, error) {
	if q.Kind == query.KindUnset {
		q.Kind = query.KindMany
	}
	return c.find(ctx, q, fromRemote)
}

// FindOne resolves a single-resource query. Zero matches yield
// (nil, nil) - absence is not an error; more than one match is a
// NonUniqueResult surfaced synchronously to the caller.
func (c *Coordinator) FindOne(ctx context.Context, q query.Query, fromRemote bool) (*store.Record, error) {
	q.Kind = query.KindOne
	records, err := c.find(ctx, q, fromRemote)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// find registers the query for the duration of the lookup, resolves it,
// and releases the transient observer reference before returning.
func (c *Coordinator) find(ctx context.Context, q query.Query, fromRemote bool) ([]*store.Record, error) {
	reg := c.registry.Register(q, fromRemote)
	defer c.registry.Unregister(reg.Query.QueryID)

	if fromRemote {
		if err := c.Read(ctx, reg.Query); err != nil {
			return nil, err
		}
	} else {
		ids, err := query.Evaluate(reg.Query, c.store)
		if err != nil {
			c.registry.AppendError(reg.Query.QueryID, err)
			return nil, err
		}
		c.registry.SetResults(reg.Query.QueryID, ids, false)
	}
	return query.ResultsFor(c.store, c.registry, reg.Query.QueryID), nil
}

// PostResource stages a resource creation. With toRemote the create is
// pushed immediately; otherwise it waits for Apply.
func (c *Coordinator) PostResource(ctx context.Context, res *resource.Resource, toRemote bool) error {
	if err := c.store.ApplyLocalEdit(res, store.EditPost); err != nil {
		return err
	}
	if !toRemote {
		return nil
	}
	return c.pushCurrent(ctx, res.Identifier())
}

// PatchResource stages a resource update (creating the record locally if
// absent). With toRemote the write is pushed immediately.
func (c *Coordinator) PatchResource(ctx context.Context, res *resource.Resource, toRemote bool) error {
	if err := c.store.ApplyLocalEdit(res, store.EditPatch); err != nil {
		return err
	}
	if !toRemote {
		return nil
	}
	return c.pushCurrent(ctx, res.Identifier())
}

// DeleteResource stages a deletion. With toRemote the delete is pushed
// immediately; a record that was NEW simply vanishes with nothing to
// push.
func (c *Coordinator) DeleteResource(ctx context.Context, id resource.Identifier, toRemote bool) error {
	if err := c.store.MarkDeleted(id); err != nil {
		return err
	}
	if !toRemote {
		return nil
	}
	return c.pushCurrent(ctx, id)
}

// pushCurrent issues the remote operation matching the record's current
// state. A settled (UNCHANGED or absent) record needs no push.
func (c *Coordinator) pushCurrent(ctx context.Context, id resource.Identifier) error {
	snap, ok := c.store.Snapshot(id)
	if !ok {
		return nil
	}
	switch snap.State {
	case store.StateNew:
		return c.Create(ctx, id)
	case store.StateUpdated:
		return c.Update(ctx, id)
	case store.StateDeleted:
		return c.Delete(ctx, id)
	default:
		return nil
	}
}

// Apply pushes every pending local edit to the remote. See ApplyAll.
func (c *Coordinator) Apply(ctx context.Context) map[resource.Identifier]error {
	return c.ApplyAll(ctx)
}

// GetResourceSnapshot returns a point-in-time copy of the current local
// resource, or nil if unknown.
func (c *Coordinator) GetResourceSnapshot(id resource.Identifier) *resource.Resource {
	return query.ResourceSnapshot(c.store, id)
}

// GetPersistedResourceSnapshot returns a point-in-time copy of the last
// remote-confirmed resource, or nil if unknown or never persisted.
func (c *Coordinator) GetPersistedResourceSnapshot(id resource.Identifier) *resource.Resource {
	return query.PersistedSnapshot(c.store, id)
}

// Observe registers a live query and invokes fn with its current
// results now and after every store change that could affect the match.
// The returned subscription's Cancel synchronously releases the
// observer's registry reference; when the last observer detaches the
// registration is removed, while the resources stay cached.
func (c *Coordinator) Observe(q query.Query, fn func([]*store.Record)) (*store.Subscription, error) {
	reg := c.registry.Register(q, false)
	queryID := reg.Query.QueryID

	recompute := func() {
		ids, err := query.Evaluate(reg.Query, c.store)
		if err != nil {
			c.registry.AppendError(queryID, err)
			return
		}
		c.registry.SetResults(queryID, ids, false)
		fn(query.ResultsFor(c.store, c.registry, queryID))
	}

	sub := c.store.Subscribe(func(change store.Change) {
		if change.Identifier.Type != reg.Query.Type {
			return
		}
		recompute()
	}, func() {
		c.registry.Unregister(queryID)
	})

	recompute()
	return sub, nil
}
