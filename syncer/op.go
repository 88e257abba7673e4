package syncer

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/tidemark/normstore/resource"
)

// OpKind distinguishes remote write operations.
type OpKind int

const (
	// OpCreate pushes a NEW record to the remote.
	OpCreate OpKind = iota + 1
	// OpUpdate pushes an UPDATED record to the remote.
	OpUpdate
	// OpDelete pushes a pending deletion to the remote.
	OpDelete
)

// String returns the kind name.
func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "CREATE"
	case OpUpdate:
		return "UPDATE"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Operation lifecycle states.
const (
	StateIdle      = "idle"
	StateInFlight  = "in_flight"
	StateCommitted = "committed"
	StateFailed    = "failed"
)

const (
	evDispatch = "dispatch"
	evCommit   = "commit"
	evFail     = "fail"
)

// operation tracks one remote write through its lifecycle machine.
// Transitions are driven only by the coordinator.
type operation struct {
	kind    OpKind
	id      resource.Identifier
	machine *fsm.FSM
	err     error
}

func newOperation(kind OpKind, id resource.Identifier) *operation {
	return &operation{
		kind: kind,
		id:   id,
		machine: fsm.NewFSM(
			StateIdle,
			fsm.Events{
				{Name: evDispatch, Src: []string{StateIdle}, Dst: StateInFlight},
				{Name: evCommit, Src: []string{StateInFlight}, Dst: StateCommitted},
				{Name: evFail, Src: []string{StateInFlight}, Dst: StateFailed},
			},
			fsm.Callbacks{},
		),
	}
}

func (o *operation) dispatch() error {
	return o.machine.Event(context.Background(), evDispatch)
}

func (o *operation) settle(err error) {
	if err != nil {
		o.err = err
		_ = o.machine.Event(context.Background(), evFail)
		return
	}
	_ = o.machine.Event(context.Background(), evCommit)
}

func (o *operation) status() OperationStatus {
	return OperationStatus{
		Kind:       o.kind,
		Identifier: o.id,
		State:      o.machine.Current(),
		Err:        o.err,
	}
}

// OperationStatus is the externally visible state of a (possibly
// settled) remote operation. Errors remain retrievable here even after
// a failed create removed its record from the store.
type OperationStatus struct {
	Kind       OpKind
	Identifier resource.Identifier
	State      string
	Err        error
}
