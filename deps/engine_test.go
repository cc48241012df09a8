package deps

import (
	"sync"
	"testing"

	"github.com/go-foundations/jobgraph/jobtable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	mu    sync.Mutex
	ready []uint32
}

func (f *fakeEnqueuer) EnqueueReady(idx uint32) {
	f.mu.Lock()
	f.ready = append(f.ready, idx)
	f.mu.Unlock()
}

func (f *fakeEnqueuer) readySnapshot() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint32, len(f.ready))
	copy(out, f.ready)
	return out
}

func schedule(t *testing.T, tbl *jobtable.Table, name string) jobtable.Handle {
	t.Helper()
	h, ok := tbl.Alloc(func(any) {}, nil, name, 0)
	require.True(t, ok)
	tbl.AddIncoming(h.Index, 1) // reserved placeholder, spec.md §4.G
	return h
}

func TestEngine_DiamondDependencyOrder(t *testing.T) {
	tbl := jobtable.New(16)
	fe := &fakeEnqueuer{}
	e := NewEngine(tbl, NewGroupTable(), fe, nil)

	r := schedule(t, tbl, "R")
	a := schedule(t, tbl, "A")
	b := schedule(t, tbl, "B")
	j := schedule(t, tbl, "J")

	e.AddDependency(a.Index, r.Index)
	e.AddDependency(b.Index, r.Index)
	e.AddDependency(j.Index, a.Index)
	e.AddDependency(j.Index, b.Index)

	// Release each job's own setup placeholder.
	for _, h := range []jobtable.Handle{r, a, b, j} {
		e.DecrementIncoming(h.Index)
	}

	// Only R should be ready so far.
	assert.Equal(t, []uint32{r.Index}, fe.readySnapshot())

	e.Complete(r.Index, 1)
	ready := fe.readySnapshot()
	assert.ElementsMatch(t, []uint32{r.Index, a.Index, b.Index}, ready)

	e.Complete(a.Index, 2)
	assert.NotContains(t, fe.readySnapshot(), j.Index, "J needs both A and B")

	e.Complete(b.Index, 3)
	assert.Contains(t, fe.readySnapshot(), j.Index)
}

func TestEngine_GroupContinuationRunsOnce(t *testing.T) {
	tbl := jobtable.New(16)
	fe := &fakeEnqueuer{}
	e := NewEngine(tbl, NewGroupTable(), fe, nil)

	g := e.Groups().Create()
	grp := e.Groups().Get(g)

	members := make([]jobtable.Handle, 5)
	for i := range members {
		h := schedule(t, tbl, "member")
		tbl.SetGroup(h.Index, g)
		grp.Add(h)
		members[i] = h
		e.DecrementIncoming(h.Index) // release setup placeholder -> Ready immediately
	}

	cont := schedule(t, tbl, "continuation") // held: incoming stays at 1
	grp.SetContinuation(cont)

	assert.NotContains(t, fe.readySnapshot(), cont.Index)

	for _, h := range members {
		e.Complete(h.Index, 0)
	}

	assert.Contains(t, fe.readySnapshot(), cont.Index)
	assert.True(t, grp.Complete())

	// Completing has already cleared hasContinuation; nothing re-fires it.
	before := len(fe.readySnapshot())
	grp.hasContinuation = true // simulate an accidental extra signal source
	e.completeGroupMember(g)   // remaining is already 0; Add(-1) makes it -1, not 0
	assert.Equal(t, before, len(fe.readySnapshot()), "continuation must run exactly once")
}

func TestEngine_SpawnChildInheritsArena(t *testing.T) {
	tbl := jobtable.New(8)
	fe := &fakeEnqueuer{}
	e := NewEngine(tbl, NewGroupTable(), fe, nil)

	parent := schedule(t, tbl, "parent")
	tbl.SetArena(parent.Index, "parent-arena")
	child := schedule(t, tbl, "child")

	e.SpawnChild(parent.Index, child.Index)

	assert.Equal(t, "parent-arena", tbl.Arena(child.Index))
	assert.EqualValues(t, parent.Index, tbl.Parent(child.Index))
}

func TestEngine_ReleaseArenaCalledForStandaloneJob(t *testing.T) {
	tbl := jobtable.New(8)
	fe := &fakeEnqueuer{}
	var released []any
	e := NewEngine(tbl, NewGroupTable(), fe, func(a any) {
		released = append(released, a)
	})

	h := schedule(t, tbl, "solo")
	tbl.SetArena(h.Index, "solo-arena")
	e.DecrementIncoming(h.Index)

	e.Complete(h.Index, 0)

	require.Len(t, released, 1)
	assert.Equal(t, "solo-arena", released[0])
}
