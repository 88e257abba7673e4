package store

import (
	"sync"

	"github.com/tidemark/normstore/resource"
)

// ChangeKind describes what happened to a record.
type ChangeKind int

const (
	// ChangeMerged means remote data was merged into the record.
	ChangeMerged ChangeKind = iota + 1
	// ChangeEdited means a local edit mutated the record.
	ChangeEdited
	// ChangeRemoved means the record left the store.
	ChangeRemoved
	// ChangeStatus means only the loading status or error changed.
	ChangeStatus
)

// Change is one store mutation event.
type Change struct {
	Identifier resource.Identifier
	Kind       ChangeKind
}

// Subscription is the handle returned by Subscribe. Cancel removes the
// callback; it is idempotent and safe to call from any goroutine.
type Subscription struct {
	once     sync.Once
	n        *notifier
	id       int
	onCancel func()
}

// Cancel detaches the subscription. Any cleanup hook attached at
// subscribe time (e.g. a query registry ref-count decrement) runs
// exactly once, synchronously.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.n.remove(s.id)
		if s.onCancel != nil {
			s.onCancel()
		}
	})
}

// notifier fans mutation events out to subscribers. Publish runs the
// callbacks synchronously in the mutating goroutine, outside the store
// lock, so callbacks may freely read the store.
type notifier struct {
	mu   sync.Mutex
	subs map[int]func(Change)
	next int
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[int]func(Change))}
}

func (n *notifier) add(fn func(Change), onCancel func()) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.next++
	id := n.next
	n.subs[id] = fn
	return &Subscription{n: n, id: id, onCancel: onCancel}
}

func (n *notifier) remove(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subs, id)
}

func (n *notifier) publish(changes []Change) {
	if len(changes) == 0 {
		return
	}
	n.mu.Lock()
	fns := make([]func(Change), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, change := range changes {
		for _, fn := range fns {
			fn(change)
		}
	}
}
