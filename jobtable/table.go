// Package jobtable is the generation-tagged slab allocator for job slots
// (spec.md §3, §4.C). It owns no scheduling logic; the worker loop, the
// dependency engine, and the public API (all in package jobgraph) operate
// on slots purely through the handle-qualified accessors below.
//
// Grounded on the teacher's plain-struct-plus-constructor style
// (workerpool.Config / workerpool.Metrics) for the Table/Slot shape, and on
// the Treiber-stack CAS-loop pattern from the retrieved Chase-Lev deque
// (other_examples' wsdeque.go) for the lock-free free list.
package jobtable

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// State is a job slot's lifecycle state (spec.md §3).
type State int32

const (
	Free State = iota
	Pending
	Ready
	Running
	Completed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Free:
		return "Free"
	case Pending:
		return "Pending"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	case Cancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

const maxInlineChildren = 6

// noneRef marks an empty parent/group/arena back-reference slot.
const noneRef int32 = -1

// Handle names a job: (slot index, generation). The zero Handle is reserved
// as "none". A Handle is stale once the slot's generation has moved past
// the one it captured, which happens exactly when the slot is retired and
// reused.
type Handle struct {
	Index      uint32
	Generation uint32
}

// IsNone reports whether h is the reserved empty handle.
func (h Handle) IsNone() bool { return h == Handle{} }

type slot struct {
	fn   any
	data any
	name string

	state        atomic.Int32
	generation   atomic.Uint32
	incomingDeps atomic.Int32

	outgoing [maxInlineChildren]int32
	outCount atomic.Int32
	overflow []int32
	growMu   sync.Mutex

	group  atomic.Int32
	parent atomic.Int32
	arena  atomic.Pointer[any]

	stackHint atomic.Int32

	created   atomic.Int64
	started   atomic.Int64
	completed atomic.Int64
	worker    atomic.Int32
}

// Table is a pre-sized slab of job slots plus a lock-free free list.
type Table struct {
	slots []slot
	free  freeStack
}

// New allocates a Table with the given fixed capacity (spec's default range
// is 4,096-65,536 slots).
func New(capacity int) *Table {
	if capacity <= 0 {
		capacity = 65536
	}
	t := &Table{
		slots: make([]slot, capacity),
	}
	t.free.next = make([]uint32, capacity)
	t.free.head.Store(packHead(0, noneIdx))
	for i := capacity - 1; i >= 0; i-- {
		t.free.push(uint32(i))
	}
	return t
}

// Cap returns the table's fixed capacity.
func (t *Table) Cap() int { return len(t.slots) }

// Alloc claims a free slot and returns its handle. ok is false (Capacity
// failure, spec.md §4.C/§ failure table) when the table is exhausted.
func (t *Table) Alloc(fn any, data any, name string, created int64) (Handle, bool) {
	idx, ok := t.free.pop()
	if !ok {
		return Handle{}, false
	}
	s := &t.slots[idx]
	s.fn = fn
	s.data = data
	s.name = name
	s.outCount.Store(0)
	s.overflow = nil
	s.incomingDeps.Store(0)
	s.group.Store(noneRef)
	s.parent.Store(noneRef)
	s.arena.Store(nil)
	s.stackHint.Store(0)
	s.created.Store(created)
	s.started.Store(0)
	s.completed.Store(0)
	s.worker.Store(-1)
	s.state.Store(int32(Pending))

	gen := s.generation.Load()
	return Handle{Index: idx, Generation: gen}, true
}

// Retire publishes Completed (if not already), bumps the slot's generation,
// and returns the slot to the free list — the full retirement step of
// spec.md §4.C. After this call any handle referencing the slot's old
// generation is stale.
func (t *Table) Retire(idx uint32) {
	s := &t.slots[idx]
	s.state.Store(int32(Completed))
	s.generation.Add(1)
	t.free.push(idx)
}

func (t *Table) valid(idx uint32) bool {
	return idx < uint32(len(t.slots))
}

// HandleFor returns idx's current handle (its live generation). Used by the
// scheduler when it already has a raw slot index (from a deque pop or a
// steal) and needs a staleness-checkable Handle to hand a job body.
func (t *Table) HandleFor(idx uint32) Handle {
	return Handle{Index: idx, Generation: t.slots[idx].generation.Load()}
}

// IsStale reports whether h no longer names the slot's current occupant.
func (t *Table) IsStale(h Handle) bool {
	if h.IsNone() || !t.valid(h.Index) {
		return true
	}
	return t.slots[h.Index].generation.Load() != h.Generation
}

// State returns h's job state. A stale handle reads as Completed, per
// spec.md's staleness rule ("all operations no-op and return a
// success-equivalent (Completed)").
func (t *Table) State(h Handle) State {
	if t.IsStale(h) {
		return Completed
	}
	return State(t.slots[h.Index].state.Load())
}

// SetState publishes a new state for idx. Callers are responsible for
// upholding the spec's no-backwards-transition invariant.
func (t *Table) SetState(idx uint32, s State) {
	t.slots[idx].state.Store(int32(s))
}

// CAS attempts to move idx from old to new and reports success.
func (t *Table) CASState(idx uint32, old, new State) bool {
	return t.slots[idx].state.CompareAndSwap(int32(old), int32(new))
}

// Fn returns the job body bound to idx.
func (t *Table) Fn(idx uint32) any { return t.slots[idx].fn }

// Data returns the opaque data bound to idx.
func (t *Table) Data(idx uint32) any { return t.slots[idx].data }

// Name returns idx's trace label.
func (t *Table) Name(idx uint32) string { return t.slots[idx].name }

// IncomingDeps returns the current unmet-dependency count.
func (t *Table) IncomingDeps(idx uint32) int32 {
	return t.slots[idx].incomingDeps.Load()
}

// AddIncoming adds delta to idx's incoming-dependency counter and returns
// the new value.
func (t *Table) AddIncoming(idx uint32, delta int32) int32 {
	return t.slots[idx].incomingDeps.Add(delta)
}

// AppendDependent records that dependent must wait on prerequisite idx,
// growing into the overflow slice past the inline cap of 6 (spec.md §3).
// Appends are serialized by growMu — construction of the dependency graph is
// not the scheduler's hot path, unlike the read side below, which the
// completer must be able to acquire-load without blocking on a writer.
func (t *Table) AppendDependent(idx uint32, dependent uint32) {
	s := &t.slots[idx]
	s.growMu.Lock()
	n := int(s.outCount.Load())
	if n < maxInlineChildren {
		s.outgoing[n] = int32(dependent)
	} else {
		s.overflow = append(s.overflow, int32(dependent))
	}
	s.outCount.Store(int32(n + 1))
	s.growMu.Unlock()
}

// OutgoingLen returns the number of recorded dependents (acquire-load of the
// count, per spec.md §4.F step 2).
func (t *Table) OutgoingLen(idx uint32) int32 {
	return t.slots[idx].outCount.Load()
}

// OutgoingAt returns the i'th recorded dependent of idx.
func (t *Table) OutgoingAt(idx uint32, i int32) uint32 {
	s := &t.slots[idx]
	if i < maxInlineChildren {
		return uint32(s.outgoing[i])
	}
	s.growMu.Lock()
	defer s.growMu.Unlock()
	return uint32(s.overflow[i-maxInlineChildren])
}

// Group returns idx's group back-reference, or -1 if none.
func (t *Table) Group(idx uint32) int32 { return t.slots[idx].group.Load() }

// SetGroup sets idx's group back-reference.
func (t *Table) SetGroup(idx uint32, g int32) { t.slots[idx].group.Store(g) }

// Parent returns idx's hierarchical-spawn parent, or -1 if none.
func (t *Table) Parent(idx uint32) int32 { return t.slots[idx].parent.Load() }

// SetParent sets idx's hierarchical-spawn parent.
func (t *Table) SetParent(idx uint32, p int32) { t.slots[idx].parent.Store(p) }

// Arena returns idx's bound arena, or nil.
func (t *Table) Arena(idx uint32) any {
	p := t.slots[idx].arena.Load()
	if p == nil {
		return nil
	}
	return *p
}

// SetArena binds an arena to idx.
func (t *Table) SetArena(idx uint32, a any) {
	t.slots[idx].arena.Store(&a)
}

// SetStackHint records which of a worker's fiber sub-pools idx's job should
// be run on (spec.md §4.D's small/large stack-hint classes; 0 is small).
func (t *Table) SetStackHint(idx uint32, hint int32) { t.slots[idx].stackHint.Store(hint) }

// StackHint returns idx's stack-hint class.
func (t *Table) StackHint(idx uint32) int32 { return t.slots[idx].stackHint.Load() }

// SetCreated records the creation timestamp (nanoseconds).
func (t *Table) SetCreated(idx uint32, ts int64) { t.slots[idx].created.Store(ts) }

// SetStarted records the start timestamp and executing worker id.
func (t *Table) SetStarted(idx uint32, ts int64, worker int32) {
	t.slots[idx].started.Store(ts)
	t.slots[idx].worker.Store(worker)
}

// SetCompleted records the completion timestamp.
func (t *Table) SetCompleted(idx uint32, ts int64) { t.slots[idx].completed.Store(ts) }

// Timing returns created/started/completed nanosecond timestamps and the
// executing worker id (-1 if never started).
func (t *Table) Timing(idx uint32) (created, started, completed int64, worker int32) {
	s := &t.slots[idx]
	return s.created.Load(), s.started.Load(), s.completed.Load(), s.worker.Load()
}

// --- lock-free free list (Treiber stack, ABA-tagged) ---

const noneIdx = ^uint32(0)

type freeStack struct {
	next []uint32
	head atomic.Uint64
}

func packHead(tag, idx uint32) uint64 { return uint64(tag)<<32 | uint64(idx) }
func unpackHead(v uint64) (tag, idx uint32) {
	return uint32(v >> 32), uint32(v)
}

func (f *freeStack) push(idx uint32) {
	for {
		old := f.head.Load()
		tag, top := unpackHead(old)
		f.next[idx] = top
		if f.head.CompareAndSwap(old, packHead(tag+1, idx)) {
			return
		}
	}
}

func (f *freeStack) pop() (uint32, bool) {
	for {
		old := f.head.Load()
		tag, top := unpackHead(old)
		if top == noneIdx {
			return 0, false
		}
		next := f.next[top]
		if f.head.CompareAndSwap(old, packHead(tag+1, next)) {
			return top, true
		}
	}
}
