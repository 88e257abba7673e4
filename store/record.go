package store

import (
	"github.com/tidemark/normstore/resource"
)

// State describes how a record's local resource relates to its last
// remote-confirmed state.
type State int

const (
	// StateUnchanged means the local resource deep-equals the persisted one.
	StateUnchanged State = iota
	// StateNew means the record was created locally and never persisted.
	StateNew
	// StateUpdated means the record carries a pending local edit.
	StateUpdated
	// StateDeleted means the record is pending remote deletion.
	StateDeleted
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateUnchanged:
		return "UNCHANGED"
	case StateNew:
		return "NEW"
	case StateUpdated:
		return "UPDATED"
	case StateDeleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// Pending reports whether the state requires a remote write to settle.
func (s State) Pending() bool {
	return s == StateNew || s == StateUpdated || s == StateDeleted
}

// LoadingStatus tracks the per-record remote operation status.
type LoadingStatus int

const (
	// LoadingIdle means no remote operation is outstanding.
	LoadingIdle LoadingStatus = iota
	// LoadingInFlight means a remote operation for this record is outstanding.
	LoadingInFlight
	// LoadingError means the last remote operation failed. The status and
	// the recorded error stick until explicitly cleared.
	LoadingError
)

// String returns the status name for logging.
func (s LoadingStatus) String() string {
	switch s {
	case LoadingIdle:
		return "IDLE"
	case LoadingInFlight:
		return "IN_FLIGHT"
	case LoadingError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// EditKind distinguishes local edit operations.
type EditKind int

const (
	// EditPost creates a resource that must not already exist.
	EditPost EditKind = iota + 1
	// EditPatch updates a resource, creating it locally if absent.
	EditPatch
)

// Record is the externally visible snapshot of one store entry.
// Resource and Persisted are deep copies; mutating them has no effect
// on the store.
type Record struct {
	Identifier resource.Identifier
	Resource   *resource.Resource
	Persisted  *resource.Resource
	State      State
	Status     LoadingStatus
	LastError  error
}

// record is the live store entry. Only the store mutates it, under the
// store mutex.
type record struct {
	id        resource.Identifier
	local     *resource.Resource
	persisted *resource.Resource
	state     State
	status    LoadingStatus
	lastError error
}

func (r *record) snapshot() *Record {
	return &Record{
		Identifier: r.id,
		Resource:   r.local.Clone(),
		Persisted:  r.persisted.Clone(),
		State:      r.state,
		Status:     r.status,
		LastError:  r.lastError,
	}
}

// deriveEditState recomputes the state after a local edit against the
// persisted baseline. A record without a baseline is NEW; an edit that
// lands back on the persisted value is UNCHANGED.
func deriveEditState(local, persisted *resource.Resource) State {
	if persisted == nil {
		return StateNew
	}
	if local.Equal(persisted) {
		return StateUnchanged
	}
	return StateUpdated
}
