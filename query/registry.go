package query

import (
	"log/slog"
	"sync"

	"github.com/tidemark/normstore/resource"
)

// Registration is the externally visible snapshot of a tracked query.
type Registration struct {
	Query             Query
	ResultIdentifiers []resource.Identifier
	Loading           bool
	Errors            []error
}

// registration is the live entry. Only the registry mutates it, under
// the registry mutex.
type registration struct {
	query     Query
	resultIDs []resource.Identifier
	loading   bool
	errors    []error
	refs      int
}

func (r *registration) snapshot() *Registration {
	ids := make([]resource.Identifier, len(r.resultIDs))
	copy(ids, r.resultIDs)
	errs := make([]error, len(r.errors))
	copy(errs, r.errors)
	return &Registration{
		Query:             r.query,
		ResultIdentifiers: ids,
		Loading:           r.loading,
		Errors:            errs,
	}
}

// Registry tracks active queries and the identifiers they currently
// resolve to. Entries are reference-counted: Register increments,
// Unregister decrements, and the entry is deleted when the count reaches
// zero. The registry never holds resource bodies.
type Registry struct {
	mu     sync.Mutex
	regs   map[string]*registration
	gen    IDGenerator
	logger *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithIDGenerator sets the generator for caller-omitted query IDs.
// Defaults to UUIDv7Generator.
func WithIDGenerator(gen IDGenerator) RegistryOption {
	return func(r *Registry) {
		r.gen = gen
	}
}

// WithRegistryLogger sets the logger. Defaults to slog.Default().
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty query registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{regs: make(map[string]*registration)}
	for _, opt := range opts {
		opt(r)
	}
	if r.gen == nil {
		r.gen = UUIDv7Generator{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Register tracks a query. Re-registering an existing queryID is an
// idempotent re-subscription: the reference count goes up and the
// existing registration is returned unchanged. loading marks whether a
// remote fetch is outstanding for a fresh registration.
func (r *Registry) Register(q Query, loading bool) *Registration {
	r.mu.Lock()
	defer r.mu.Unlock()

	if q.QueryID == "" {
		q.QueryID = r.gen.Generate()
	}
	q.Kind = q.EffectiveKind()

	if reg, ok := r.regs[q.QueryID]; ok {
		reg.refs++
		return reg.snapshot()
	}

	reg := &registration{query: q, loading: loading, refs: 1}
	r.regs[q.QueryID] = reg
	r.logger.Debug("registered query", "queryId", q.QueryID, "type", q.Type, "kind", q.Kind.String())
	return reg.snapshot()
}

// Unregister releases one observer reference. When the last reference
// drops, the registration is deleted - its identifier reservation is
// released but the underlying resources remain cached. Safe to call for
// unknown IDs (no-op).
func (r *Registry) Unregister(queryID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.regs[queryID]
	if !ok {
		return
	}
	reg.refs--
	if reg.refs <= 0 {
		delete(r.regs, queryID)
		r.logger.Debug("released query", "queryId", queryID)
	}
}

// SetResults replaces the tracked identifier list and loading flag.
// No-op for unknown IDs: results arriving after the last observer
// detached have nowhere to land, which is fine - the store was already
// updated.
func (r *Registry) SetResults(queryID string, ids []resource.Identifier, loading bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.regs[queryID]
	if !ok {
		return
	}
	reg.resultIDs = make([]resource.Identifier, len(ids))
	copy(reg.resultIDs, ids)
	reg.loading = loading
}

// AppendError attaches a query-level error and clears the loading flag.
func (r *Registry) AppendError(queryID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.regs[queryID]
	if !ok {
		return
	}
	reg.errors = append(reg.errors, err)
	reg.loading = false
}

// Get returns a snapshot of the registration, or false if unknown.
func (r *Registry) Get(queryID string) (*Registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.regs[queryID]
	if !ok {
		return nil, false
	}
	return reg.snapshot(), true
}

// Len returns the number of live registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.regs)
}
