// Package loadstate tracks one asynchronous load per screen:
// Idle, Loading, then Success or Failed.
//
// Each Begin issues a Ticket. Results are accepted only for the latest
// ticket, so a slow response started for an earlier request never
// overwrites the state of a newer one.
package loadstate

import "sync"

// Status of a Machine.
type Status int

const (
	Idle Status = iota
	Loading
	Success
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Ticket identifies one load.
type Ticket struct {
	Tag string
	seq uint64
}

// Snapshot is the observable state of a Machine.
type Snapshot[T any] struct {
	Status Status
	Tag    string
	Value  T
	// Message is the user-facing error text when Status is Failed.
	Message string
}

// Machine is safe for concurrent use. The zero value is Idle.
type Machine[T any] struct {
	mu   sync.Mutex
	seq  uint64
	snap Snapshot[T]
}

// Begin starts a load for tag and returns its ticket. The previous value is
// kept until the load completes.
func (m *Machine[T]) Begin(tag string) Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.snap.Status = Loading
	m.snap.Tag = tag
	m.snap.Message = ""
	return Ticket{Tag: tag, seq: m.seq}
}

// Current reports whether t is the latest ticket.
func (m *Machine[T]) Current(t Ticket) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return t.seq == m.seq
}

// Succeed records v for t. It returns false and changes nothing when t is
// stale.
func (m *Machine[T]) Succeed(t Ticket, v T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.seq != m.seq {
		return false
	}
	m.snap = Snapshot[T]{Status: Success, Tag: t.Tag, Value: v}
	return true
}

// Fail records msg for t. It returns false and changes nothing when t is
// stale.
func (m *Machine[T]) Fail(t Ticket, msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.seq != m.seq {
		return false
	}
	var zero T
	m.snap = Snapshot[T]{Status: Failed, Tag: t.Tag, Value: zero, Message: msg}
	return true
}

// Reset returns to Idle and invalidates outstanding tickets.
func (m *Machine[T]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.snap = Snapshot[T]{}
}

// Snapshot returns the current state.
func (m *Machine[T]) Snapshot() Snapshot[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}
