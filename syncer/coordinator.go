package syncer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tidemark/normstore/query"
	"github.com/tidemark/normstore/resource"
	"github.com/tidemark/normstore/store"
)

// Coordinator drives remote reads and writes, applies optimistic local
// state, and reconciles or rolls back based on remote responses. It also
// carries the public caller-facing operations (FindOne, FindMany,
// PostResource, ...).
type Coordinator struct {
	store    *store.Store
	registry *query.Registry
	remote   Remote
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[resource.Identifier]*operation
	settled  map[resource.Identifier]*operation
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// New creates a Coordinator over an explicitly constructed store,
// registry, and remote. There is no ambient singleton: callers build the
// pieces and thread them through.
func New(s *store.Store, r *query.Registry, remote Remote, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    s,
		registry: r,
		remote:   remote,
		inflight: make(map[resource.Identifier]*operation),
		settled:  make(map[resource.Identifier]*operation),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Store returns the coordinator's store, for direct snapshot access.
func (c *Coordinator) Store() *store.Store {
	return c.store
}

// Registry returns the coordinator's query registry.
func (c *Coordinator) Registry() *query.Registry {
	return c.registry
}

// begin reserves the identifier's operation slot. At most one operation
// per identifier may be in flight. The identifier's previous settled
// status is discarded: LastOperation only ever reports the most recent
// write, so stale entries would just accumulate.
func (c *Coordinator) begin(kind OpKind, id resource.Identifier) (*operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[id]; busy {
		return nil, newInProgressError(id)
	}
	op := newOperation(kind, id)
	if err := op.dispatch(); err != nil {
		return nil, err
	}
	delete(c.settled, id)
	c.inflight[id] = op
	return op, nil
}

// finish settles the operation and releases the identifier's slot.
func (c *Coordinator) finish(op *operation, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	op.settle(err)
	delete(c.inflight, op.id)
	c.settled[op.id] = op
}

// LastOperation reports the most recently settled remote write for an
// identifier, or false if none settled yet.
func (c *Coordinator) LastOperation(id resource.Identifier) (OperationStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	op, ok := c.settled[id]
	if !ok {
		return OperationStatus{}, false
	}
	return op.status(), true
}

// Read issues a remote fetch for a registered query. On success the
// fetched document (primary and included data) is merged into the store
// and the registration's result identifiers are replaced; on failure the
// error lands on the registration and the store is left untouched.
//
// A not-found response to a single-resource query is absence, not
// failure: the registration's results go empty and Read returns nil.
func (c *Coordinator) Read(ctx context.Context, q query.Query) error {
	doc, err := c.remote.Fetch(ctx, q)
	if err != nil {
		if q.EffectiveKind() == query.KindOne && IsNotFound(err) {
			c.registry.SetResults(q.QueryID, nil, false)
			return nil
		}
		wrapped := remoteFailure(q.Identifier(), err)
		c.registry.AppendError(q.QueryID, wrapped)
		c.logger.Debug("remote fetch failed", "queryId", q.QueryID, "error", wrapped)
		return wrapped
	}

	if err := c.store.UpsertRemote(doc.Resources()...); err != nil {
		c.registry.AppendError(q.QueryID, err)
		return err
	}

	ids := doc.PrimaryIdentifiers()
	if q.EffectiveKind() == query.KindOne && len(ids) > 1 {
		err := &query.NonUniqueError{QueryID: q.QueryID, Matches: ids}
		c.registry.AppendError(q.QueryID, err)
		return err
	}
	c.registry.SetResults(q.QueryID, ids, false)
	return nil
}

// Create pushes a NEW record to the remote. On success the canonical
// remote body becomes the persisted baseline; on failure the record is
// rolled back (to absent, since it was never persisted) and the error is
// retained on the settled operation.
func (c *Coordinator) Create(ctx context.Context, id resource.Identifier) error {
	return c.push(ctx, OpCreate, id, store.StateNew)
}

// Update pushes an UPDATED record to the remote.
func (c *Coordinator) Update(ctx context.Context, id resource.Identifier) error {
	return c.push(ctx, OpUpdate, id, store.StateUpdated)
}

// Delete pushes a pending deletion to the remote. On success the record
// is removed entirely; on failure it rolls back to the persisted state.
func (c *Coordinator) Delete(ctx context.Context, id resource.Identifier) error {
	return c.push(ctx, OpDelete, id, store.StateDeleted)
}

func (c *Coordinator) push(ctx context.Context, kind OpKind, id resource.Identifier, want store.State) error {
	snap, ok := c.store.Snapshot(id)
	if !ok {
		return newStateMismatchError(id, want.String(), "absent")
	}
	if snap.State != want {
		return newStateMismatchError(id, want.String(), snap.State.String())
	}

	op, err := c.begin(kind, id)
	if err != nil {
		return err
	}
	if err := c.store.MarkInFlight(id); err != nil {
		c.finish(op, err)
		return err
	}

	// The remote call suspends without holding any lock; edits and
	// queries for other identifiers proceed meanwhile.
	var canonical *resource.Resource
	var remoteErr error
	switch kind {
	case OpCreate:
		canonical, remoteErr = c.remote.Create(ctx, snap.Resource)
	case OpUpdate:
		canonical, remoteErr = c.remote.Update(ctx, snap.Resource)
	case OpDelete:
		remoteErr = c.remote.Delete(ctx, id)
	}

	if remoteErr != nil {
		wrapped := remoteFailure(id, remoteErr)
		if err := c.store.Rollback(id, wrapped); err != nil {
			c.logger.Warn("rollback failed", "identifier", id.String(), "error", err)
		}
		c.finish(op, wrapped)
		c.logger.Debug("remote write failed", "op", kind.String(), "identifier", id.String(), "error", wrapped)
		return wrapped
	}

	if err := c.store.CommitPersisted(id, canonical); err != nil {
		c.finish(op, err)
		return err
	}
	c.finish(op, nil)
	return nil
}

// ApplyAll pushes every pending record (state NEW, UPDATED, or DELETED)
// to the remote. Operations for distinct identifiers run concurrently;
// each is independent - one failure never blocks or rolls back another's
// success. Identifiers already busy fail with OPERATION_IN_PROGRESS.
// The returned map holds the per-identifier failures; empty means all
// pending edits settled.
func (c *Coordinator) ApplyAll(ctx context.Context) map[resource.Identifier]error {
	pending := c.store.Pending()

	var (
		wg   sync.WaitGroup
		errs = make(map[resource.Identifier]error)
		emu  sync.Mutex
	)
	for _, rec := range pending {
		wg.Add(1)
		go func(rec *store.Record) {
			defer wg.Done()
			var err error
			switch rec.State {
			case store.StateNew:
				err = c.Create(ctx, rec.Identifier)
			case store.StateUpdated:
				err = c.Update(ctx, rec.Identifier)
			case store.StateDeleted:
				err = c.Delete(ctx, rec.Identifier)
			}
			if err != nil {
				emu.Lock()
				errs[rec.Identifier] = err
				emu.Unlock()
			}
		}(rec)
	}
	wg.Wait()
	return errs
}
