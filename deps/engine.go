// Package deps implements the dependency fan-in engine and job groups
// (spec.md §4.F). It knows nothing about workers, deques, or fibers — it
// mutates jobtable.Table counters and, when a job becomes Ready, hands it
// to an Enqueuer the scheduler supplies. That seam keeps deps free of any
// import on package jobgraph, avoiding a cycle between the two.
package deps

import (
	"sync"
	"sync/atomic"

	"github.com/go-foundations/jobgraph/jobtable"
)

// Enqueuer receives job-slot indices that just became Ready.
type Enqueuer interface {
	EnqueueReady(idx uint32)
}

// Engine wires dependents to prerequisites and drives completion fan-out.
type Engine struct {
	table         *jobtable.Table
	groups        *GroupTable
	enqueue       Enqueuer
	releaseArena  func(arena any)
}

// NewEngine builds an Engine over table, publishing newly-ready jobs through
// enqueue. releaseArena may be nil; when set, it is called with a job's own
// (non-group-owned) arena right after that job completes.
func NewEngine(table *jobtable.Table, groups *GroupTable, enqueue Enqueuer, releaseArena func(any)) *Engine {
	return &Engine{table: table, groups: groups, enqueue: enqueue, releaseArena: releaseArena}
}

// AddDependency records that dependent must not run until prerequisite
// completes. Precondition (spec.md §7): neither job may already be
// Completed; callers are expected to have checked this. jobgraph's Schedule,
// AddDependency and SpawnChild (through Engine.SpawnChild) call it, each
// after checking that the prerequisite is not Completed or Cancelled.
//
// Per spec.md §4.F this appends to the prerequisite's outgoing list and only
// then increments the dependent's incoming counter. Safety against the
// prerequisite completing in between relies on the caller (jobgraph.Schedule)
// holding the dependent's incoming counter at a reserved value of at least 1
// until its own setup finishes, exactly as spec.md §4.G's schedule algorithm
// describes.
func (e *Engine) AddDependency(dependent, prerequisite uint32) {
	e.table.AppendDependent(prerequisite, dependent)
	e.table.AddIncoming(dependent, 1)
}

// DecrementIncoming decrements idx's unmet-dependency counter by one and, if
// it reaches zero, transitions idx to Ready and enqueues it. This is the one
// ready-making primitive, shared by Complete's per-dependent fan-out and by
// Schedule's release of its own setup placeholder (spec.md §4.G).
func (e *Engine) DecrementIncoming(idx uint32) {
	r := e.table.AddIncoming(idx, -1)
	if r == 0 {
		e.table.SetState(idx, jobtable.Ready)
		e.enqueue.EnqueueReady(idx)
	}
}

// Complete runs the full completion protocol for a prerequisite P
// (spec.md §4.F): publish Completed, walk its recorded dependents releasing
// each one, fold into its group's fan-in if any, release any job-owned
// arena, and retire the slot.
func (e *Engine) Complete(idx uint32, completedAt int64) {
	e.table.SetCompleted(idx, completedAt)
	e.table.SetState(idx, jobtable.Completed)

	n := e.table.OutgoingLen(idx)
	for i := int32(0); i < n; i++ {
		dep := e.table.OutgoingAt(idx, i)
		e.DecrementIncoming(dep)
	}

	if g := e.table.Group(idx); g >= 0 {
		e.completeGroupMember(g)
	} else if e.releaseArena != nil {
		if a := e.table.Arena(idx); a != nil {
			e.releaseArena(a)
		}
	}

	e.table.Retire(idx)
}

func (e *Engine) completeGroupMember(g int32) {
	grp := e.groups.Get(g)
	if grp == nil {
		return
	}
	if grp.remaining.Add(-1) == 0 {
		grp.mu.Lock()
		cont := grp.continuation
		hasCont := grp.hasContinuation
		grp.hasContinuation = false
		grp.mu.Unlock()

		if hasCont && !e.table.IsStale(cont) {
			e.DecrementIncoming(cont.Index)
		}
	}
}

// SpawnChild links child to parent as a dependency and, if child has no
// arena of its own, inherits the parent's (spec.md §4.F hierarchical spawn).
func (e *Engine) SpawnChild(parent, child uint32) {
	e.table.SetParent(child, int32(parent))
	if e.table.Arena(child) == nil {
		if pa := e.table.Arena(parent); pa != nil {
			e.table.SetArena(child, pa)
		}
	}
	e.AddDependency(child, parent)
}

// Groups returns the engine's group table, for jobgraph's group API.
func (e *Engine) Groups() *GroupTable { return e.groups }

// --- groups ---

// Group is a barrier over a set of jobs with an optional continuation
// (spec.md §3, §4.F). Explicit destruction is required; completion never
// auto-destroys a group (Design Notes: "groups require explicit
// destruction").
type Group struct {
	remaining       atomic.Int32
	mu              sync.Mutex
	continuation    jobtable.Handle
	hasContinuation bool
	arena           any
	members         []jobtable.Handle
}

// Add registers a member job and bumps the group's fan-in counter.
func (g *Group) Add(h jobtable.Handle) {
	g.mu.Lock()
	g.members = append(g.members, h)
	g.mu.Unlock()
	g.remaining.Add(1)
}

// SetContinuation designates h (held pending, see jobgraph.GroupSetContinuation)
// as the job to release once the group's fan-in reaches zero.
func (g *Group) SetContinuation(h jobtable.Handle) {
	g.mu.Lock()
	g.continuation = h
	g.hasContinuation = true
	g.mu.Unlock()
}

// Remaining returns the current fan-in count.
func (g *Group) Remaining() int32 { return g.remaining.Load() }

// Complete reports whether every member has completed.
func (g *Group) Complete() bool { return g.Remaining() == 0 }

// Arena returns the group's owned arena, or nil.
func (g *Group) Arena() any { return g.arena }

// SetArena binds an arena the group owns for the lifetime of its members.
func (g *Group) SetArena(a any) { g.arena = a }

// Members returns a snapshot of the group's member handles.
func (g *Group) Members() []jobtable.Handle {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]jobtable.Handle, len(g.members))
	copy(out, g.members)
	return out
}

// GroupTable is a small slab for Group values. Group churn is orders of
// magnitude lower than job churn, so unlike jobtable it is guarded by a
// plain mutex rather than a lock-free free list.
type GroupTable struct {
	mu     sync.Mutex
	groups []*Group
	free   []int32
}

// NewGroupTable creates an empty GroupTable.
func NewGroupTable() *GroupTable { return &GroupTable{} }

// Create allocates a new, empty Group and returns its index.
func (gt *GroupTable) Create() int32 {
	gt.mu.Lock()
	defer gt.mu.Unlock()
	if n := len(gt.free); n > 0 {
		idx := gt.free[n-1]
		gt.free = gt.free[:n-1]
		gt.groups[idx] = &Group{}
		return idx
	}
	gt.groups = append(gt.groups, &Group{})
	return int32(len(gt.groups) - 1)
}

// Get returns the Group at idx, or nil if idx is out of range or destroyed.
func (gt *GroupTable) Get(idx int32) *Group {
	gt.mu.Lock()
	defer gt.mu.Unlock()
	if idx < 0 || int(idx) >= len(gt.groups) {
		return nil
	}
	return gt.groups[idx]
}

// Destroy releases the Group at idx for reuse. The caller is responsible for
// having waited on the group first; destroying a group with outstanding
// members is a caller error this package does not guard against, matching
// spec.md §7's "undefined-to-benign in release" treatment of preconditions.
func (gt *GroupTable) Destroy(idx int32) {
	gt.mu.Lock()
	defer gt.mu.Unlock()
	if idx < 0 || int(idx) >= len(gt.groups) {
		return
	}
	gt.groups[idx] = nil
	gt.free = append(gt.free, idx)
}
