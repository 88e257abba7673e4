package store

import (
	"log/slog"
	"sync"

	"github.com/tidemark/normstore/resource"
)

// Store is the normalized store: the single owner of all fetched and
// locally edited resource data. See the package documentation for the
// record state model and mutation discipline.
type Store struct {
	mu       sync.Mutex
	records  map[resource.Identifier]*record
	order    []resource.Identifier // insertion order, drives stable iteration
	notifier *notifier
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates an empty normalized store.
func New(opts ...Option) *Store {
	s := &Store{
		records:  make(map[resource.Identifier]*record),
		notifier: newNotifier(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Subscribe registers a change callback and returns its handle.
// onCancel, if non-nil, runs exactly once when the handle is cancelled;
// the query layer uses it to tie unsubscription to ref-count release.
func (s *Store) Subscribe(fn func(Change), onCancel func()) *Subscription {
	return s.notifier.add(fn, onCancel)
}

// UpsertRemote merges resources received from the remote API.
//
// For an unknown identifier a record is created with persisted = local =
// incoming and state UNCHANGED. For a known identifier the persisted
// baseline is always refreshed; the local resource follows only when no
// edit is pending - local edits are never silently overwritten by
// background reads.
func (s *Store) UpsertRemote(resources ...*resource.Resource) error {
	for _, res := range resources {
		if !res.Identifier().Valid() {
			return newInvalidResourceError(res.Identifier())
		}
	}

	changes := make([]Change, 0, len(resources))
	s.mu.Lock()
	for _, res := range resources {
		id := res.Identifier()
		rec, ok := s.records[id]
		if !ok {
			s.records[id] = &record{
				id:        id,
				local:     res.Clone(),
				persisted: res.Clone(),
				state:     StateUnchanged,
			}
			s.order = append(s.order, id)
		} else {
			rec.persisted = res.Clone()
			if !rec.state.Pending() {
				rec.local = res.Clone()
				rec.state = StateUnchanged
			}
		}
		changes = append(changes, Change{Identifier: id, Kind: ChangeMerged})
	}
	s.mu.Unlock()

	s.notifier.publish(changes)
	return nil
}

// ApplyLocalEdit stages an optimistic edit. Pure local operation: no
// network, no side effects beyond the store's own change notification.
//
// EditPost requires the identifier to be absent (or pending deletion);
// posting over a live record is a DuplicateResource violation. EditPatch
// replaces the local resource, deriving the new state from the persisted
// baseline; patching an unknown identifier stages a NEW record.
func (s *Store) ApplyLocalEdit(res *resource.Resource, kind EditKind) error {
	id := res.Identifier()
	if !id.Valid() {
		return newInvalidResourceError(id)
	}

	s.mu.Lock()
	rec, ok := s.records[id]
	switch kind {
	case EditPost:
		if ok && rec.state != StateDeleted {
			s.mu.Unlock()
			return newDuplicateError(id)
		}
		if ok {
			// Re-posting over a pending delete revives the record against
			// its existing baseline.
			rec.local = res.Clone()
			rec.state = deriveEditState(rec.local, rec.persisted)
		} else {
			s.records[id] = &record{id: id, local: res.Clone(), state: StateNew}
			s.order = append(s.order, id)
		}
	case EditPatch:
		if !ok {
			s.records[id] = &record{id: id, local: res.Clone(), state: StateNew}
			s.order = append(s.order, id)
		} else {
			rec.local = res.Clone()
			if rec.state == StateNew {
				// Never persisted; further edits keep it NEW.
			} else {
				rec.state = deriveEditState(rec.local, rec.persisted)
			}
		}
	default:
		s.mu.Unlock()
		return &Error{Code: ErrCodeInvalidResource, Identifier: id, Message: "unknown edit kind"}
	}
	s.mu.Unlock()

	s.notifier.publish([]Change{{Identifier: id, Kind: ChangeEdited}})
	return nil
}

// MarkDeleted stages a deletion. A NEW record is removed outright -
// never persisted, nothing to roll back. Otherwise the record stays
// addressable (state DELETED) and is excluded from collection matches.
// Marking an unknown identifier stages a tombstone so the deletion can
// still be pushed remotely.
func (s *Store) MarkDeleted(id resource.Identifier) error {
	if !id.Valid() {
		return newInvalidResourceError(id)
	}

	var change Change
	s.mu.Lock()
	rec, ok := s.records[id]
	switch {
	case !ok:
		s.records[id] = &record{
			id:    id,
			local: &resource.Resource{Type: id.Type, ID: id.ID},
			state: StateDeleted,
		}
		s.order = append(s.order, id)
		change = Change{Identifier: id, Kind: ChangeEdited}
	case rec.state == StateNew:
		s.removeLocked(id)
		change = Change{Identifier: id, Kind: ChangeRemoved}
	default:
		rec.state = StateDeleted
		change = Change{Identifier: id, Kind: ChangeEdited}
	}
	s.mu.Unlock()

	s.notifier.publish([]Change{change})
	return nil
}

// CommitPersisted settles a successful remote write. For a pending
// deletion the record is removed entirely. Otherwise the local resource
// (or the canonical body returned by the remote, when given) becomes the
// new persisted baseline and the record returns to UNCHANGED/IDLE.
func (s *Store) CommitPersisted(id resource.Identifier, canonical *resource.Resource) error {
	var change Change
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return newNotFoundError(id)
	}
	if rec.state == StateDeleted {
		s.removeLocked(id)
		change = Change{Identifier: id, Kind: ChangeRemoved}
	} else {
		if canonical != nil {
			rec.local = canonical.Clone()
		}
		rec.persisted = rec.local.Clone()
		rec.state = StateUnchanged
		rec.status = LoadingIdle
		rec.lastError = nil
		change = Change{Identifier: id, Kind: ChangeMerged}
	}
	s.mu.Unlock()

	s.notifier.publish([]Change{change})
	return nil
}

// Rollback undoes the local state after a failed remote write. The local
// resource returns to the persisted baseline - literally the last
// remote-confirmed state, with no merge - or, when there is no baseline
// (the record was NEW), the record is removed. The failure is retained
// on the record until ClearError.
func (s *Store) Rollback(id resource.Identifier, cause error) error {
	var change Change
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return newNotFoundError(id)
	}
	if rec.persisted == nil {
		s.removeLocked(id)
		change = Change{Identifier: id, Kind: ChangeRemoved}
	} else {
		rec.local = rec.persisted.Clone()
		rec.state = StateUnchanged
		rec.status = LoadingError
		rec.lastError = cause
		change = Change{Identifier: id, Kind: ChangeStatus}
	}
	s.mu.Unlock()

	s.logger.Debug("rolled back record", "identifier", id.String(), "cause", cause)
	s.notifier.publish([]Change{change})
	return nil
}

// MarkInFlight transitions the record's loading status to IN_FLIGHT.
func (s *Store) MarkInFlight(id resource.Identifier) error {
	return s.setStatus(id, LoadingInFlight, nil)
}

// ClearError resets a sticky LoadingError back to IDLE.
func (s *Store) ClearError(id resource.Identifier) error {
	return s.setStatus(id, LoadingIdle, nil)
}

func (s *Store) setStatus(id resource.Identifier, status LoadingStatus, err error) error {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return newNotFoundError(id)
	}
	rec.status = status
	rec.lastError = err
	s.mu.Unlock()

	s.notifier.publish([]Change{{Identifier: id, Kind: ChangeStatus}})
	return nil
}

// Snapshot returns a point-in-time copy of the record, or false if the
// identifier is unknown.
func (s *Store) Snapshot(id resource.Identifier) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, false
	}
	return rec.snapshot(), true
}

// PersistedSnapshot returns a copy of the last remote-confirmed resource,
// or false if the identifier is unknown or was never persisted.
func (s *Store) PersistedSnapshot(id resource.Identifier) (*resource.Resource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.persisted == nil {
		return nil, false
	}
	return rec.persisted.Clone(), true
}

// ByType returns snapshots of all records of one type in insertion
// order, including records pending deletion - collection matching is
// the caller's concern.
func (s *Store) ByType(resourceType string) []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Record
	for _, id := range s.order {
		if id.Type != resourceType {
			continue
		}
		if rec, ok := s.records[id]; ok {
			out = append(out, rec.snapshot())
		}
	}
	return out
}

// Pending returns snapshots of all records whose state requires a remote
// write, in insertion order.
func (s *Store) Pending() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Record
	for _, id := range s.order {
		rec, ok := s.records[id]
		if !ok || !rec.state.Pending() {
			continue
		}
		out = append(out, rec.snapshot())
	}
	return out
}

// Len returns the number of records, including tombstones.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// removeLocked deletes a record and its order entry. Caller holds s.mu.
func (s *Store) removeLocked(id resource.Identifier) {
	delete(s.records, id)
	for i, ordered := range s.order {
		if ordered == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
