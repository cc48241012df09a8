package jobgraph_test

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/go-foundations/jobgraph"
)

func newTestScheduler(t *testing.T, workers int) *jobgraph.Scheduler {
	t.Helper()
	cfg := jobgraph.DefaultConfig()
	cfg.WorkerCount = workers
	cfg.PinThreads = false
	cfg.JobTableCapacity = 1 << 14
	cfg.MaxIdleSpins = 50
	s := jobgraph.New(cfg)
	t.Cleanup(s.Shutdown)
	return s
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// automaxprocs and zerolog's default writer can leave short-lived
		// helper goroutines around at process scan time; they are not ours.
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// TestFanOutFanIn is scenario S1: a root producing data, 40 children each
// reducing a disjoint window, and a final reducer depending on all of them.
func TestFanOutFanIn(t *testing.T) {
	s := newTestScheduler(t, 8)

	const size = 10000
	const windows = 40
	const windowLen = size / windows

	data := make([]int, size)
	root, err := s.Schedule("root", func(ctx *jobgraph.Context) {
		for i := range data {
			data[i] = i + 1
		}
	}, nil)
	require.NoError(t, err)

	partials := make([]int64, windows)
	children := make([]jobgraph.Handle, windows)
	for i := 0; i < windows; i++ {
		i := i
		h, err := s.Schedule("window", func(ctx *jobgraph.Context) {
			var sum int64
			for j := i * windowLen; j < (i+1)*windowLen; j++ {
				sum += int64(data[j])
			}
			partials[i] = sum
		}, nil, root)
		require.NoError(t, err)
		children[i] = h
	}

	var total int64
	reducer, err := s.Schedule("reduce", func(ctx *jobgraph.Context) {
		for _, p := range partials {
			total += p
		}
	}, nil, children...)
	require.NoError(t, err)
	s.Wait(reducer)

	want := int64(size) * int64(size+1) / 2
	assert.Equal(t, want, total)
}

// TestDiamondDependencyOrder is scenario S2. Each body records its own
// start/end times: a completed job's slot is retired, and Scheduler.Timing
// reports zeros for such a stale handle.
func TestDiamondDependencyOrder(t *testing.T) {
	s := newTestScheduler(t, 4)

	base := time.Now()
	since := func() int64 { return time.Since(base).Nanoseconds() }
	var rEnd, aStarted, aEnd, bStarted, bEnd, jStarted int64

	r, err := s.Schedule("R", func(ctx *jobgraph.Context) {
		time.Sleep(time.Millisecond)
		rEnd = since()
	}, nil, jobgraph.Handle{})
	require.NoError(t, err)

	a, err := s.Schedule("A", func(ctx *jobgraph.Context) {
		aStarted = since()
		time.Sleep(time.Millisecond)
		aEnd = since()
	}, nil, r)
	require.NoError(t, err)
	b, err := s.Schedule("B", func(ctx *jobgraph.Context) {
		bStarted = since()
		time.Sleep(time.Millisecond)
		bEnd = since()
	}, nil, r)
	require.NoError(t, err)

	j, err := s.Schedule("J", func(ctx *jobgraph.Context) { jStarted = since() }, nil, a, b)
	require.NoError(t, err)

	s.Wait(j)

	assert.LessOrEqual(t, rEnd, aStarted)
	assert.LessOrEqual(t, rEnd, bStarted)
	assert.GreaterOrEqual(t, jStarted, aEnd)
	assert.GreaterOrEqual(t, jStarted, bEnd)
}

// TestLongChainOrdering is scenario S3.
func TestLongChainOrdering(t *testing.T) {
	s := newTestScheduler(t, 4)

	const depth = 1000
	var mu sync.Mutex
	var order []int

	var prev jobgraph.Handle
	for i := 0; i < depth; i++ {
		i := i
		h, err := s.Schedule("link", func(ctx *jobgraph.Context) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}, nil, prev)
		require.NoError(t, err)
		prev = h
	}
	s.Wait(prev)

	require.Len(t, order, depth)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

// TestCooperativeYieldDoesNotStarveOthers is scenario S4.
func TestCooperativeYieldDoesNotStarveOthers(t *testing.T) {
	s := newTestScheduler(t, 4)

	var observed []int
	var mu sync.Mutex
	counter := 0

	coop, err := s.ScheduleCooperative("cooperative", func(ctx *jobgraph.Context) jobgraph.CoopResult {
		counter++
		mu.Lock()
		observed = append(observed, counter)
		mu.Unlock()
		if counter >= 6 {
			return jobgraph.Complete
		}
		return jobgraph.Yield
	}, nil, jobgraph.Handle{})
	require.NoError(t, err)

	var completedCompute atomic.Int64
	handles := make([]jobgraph.Handle, 100)
	for i := range handles {
		h, err := s.Schedule("compute", func(ctx *jobgraph.Context) {
			completedCompute.Add(1)
		}, nil, jobgraph.Handle{})
		require.NoError(t, err)
		handles[i] = h
	}

	s.Wait(coop)
	s.WaitAll(handles...)

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, observed)
	assert.Equal(t, int64(100), completedCompute.Load())
}

// TestStealerStress is scenario S5.
func TestStealerStress(t *testing.T) {
	if testing.Short() {
		t.Skip("stealer stress is slow under -short")
	}
	s := newTestScheduler(t, 8)

	const n = 100000
	var completed atomic.Int64
	handles := make([]jobgraph.Handle, n)
	for i := 0; i < n; i++ {
		h, err := s.Schedule("noop", func(ctx *jobgraph.Context) {
			completed.Add(1)
		}, nil, jobgraph.Handle{})
		require.NoError(t, err)
		handles[i] = h
	}
	s.WaitAll(handles...)

	assert.Equal(t, int64(n), completed.Load())

	var totalSteals int64
	for _, w := range s.Stats().Workers[1:] {
		totalSteals += w.StealsSucceeded
	}
	assert.Positive(t, totalSteals)
}

// TestStaleHandleNeverAffectsNewOccupant is scenario S6 and property 4.
func TestStaleHandleNeverAffectsNewOccupant(t *testing.T) {
	s := newTestScheduler(t, 2)

	h, err := s.Schedule("J", func(ctx *jobgraph.Context) {}, nil, jobgraph.Handle{})
	require.NoError(t, err)
	s.Wait(h)

	// Cycle the slot's generation at least once by submitting enough jobs
	// that the table's free list recycles J's slot.
	for i := 0; i < 64; i++ {
		hh, err := s.Schedule("filler", func(ctx *jobgraph.Context) {}, nil, jobgraph.Handle{})
		require.NoError(t, err)
		s.Wait(hh)
	}

	assert.True(t, s.IsComplete(h))
	s.Wait(h) // must return immediately, not affect whatever now occupies the slot
}

// TestNoLostWorkRandomDAG is property 1.
func TestNoLostWorkRandomDAG(t *testing.T) {
	s := newTestScheduler(t, 6)

	const n = 500
	rng := rand.New(rand.NewSource(42))
	var executed atomic.Int64
	handles := make([]jobgraph.Handle, n)
	for i := 0; i < n; i++ {
		var after jobgraph.Handle
		if i > 0 && rng.Intn(3) != 0 {
			after = handles[rng.Intn(i)]
		}
		h, err := s.Schedule("dag", func(ctx *jobgraph.Context) {
			executed.Add(1)
		}, nil, after)
		require.NoError(t, err)
		handles[i] = h
	}
	s.WaitAll(handles...)
	assert.Equal(t, int64(n), executed.Load())
}

// TestWaitInsideJobDoesNotBlockWorker is property 7.
func TestWaitInsideJobDoesNotBlockWorker(t *testing.T) {
	s := newTestScheduler(t, 2)

	release := make(chan struct{})
	slow, err := s.Schedule("slow", func(ctx *jobgraph.Context) {
		<-release
	}, nil, jobgraph.Handle{})
	require.NoError(t, err)

	waiterDone := make(chan struct{})
	_, err = s.Schedule("waiter", func(ctx *jobgraph.Context) {
		ctx.Wait(slow)
		close(waiterDone)
	}, nil, jobgraph.Handle{})
	require.NoError(t, err)

	var otherCompleted atomic.Int64
	handles := make([]jobgraph.Handle, 200)
	for i := range handles {
		h, err := s.Schedule("other", func(ctx *jobgraph.Context) {
			otherCompleted.Add(1)
		}, nil, jobgraph.Handle{})
		require.NoError(t, err)
		handles[i] = h
	}
	s.WaitAll(handles...)
	assert.Equal(t, int64(200), otherCompleted.Load())

	close(release)
	<-waiterDone
}

// TestConcurrentExternalSubmittersNoRace exercises Schedule/Wait called
// concurrently from many ordinary goroutines outside of any job body or
// worker loop (the "external" path through waitExternal), using errgroup to
// fan out submitters and propagate the first error.
func TestConcurrentExternalSubmittersNoRace(t *testing.T) {
	s := newTestScheduler(t, 4)

	var g errgroup.Group
	var totalCompleted atomic.Int64
	for submitter := 0; submitter < 16; submitter++ {
		g.Go(func() error {
			handles := make([]jobgraph.Handle, 50)
			for i := range handles {
				h, err := s.Schedule("concurrent-submit", func(ctx *jobgraph.Context) {
					totalCompleted.Add(1)
				}, nil)
				if err != nil {
					return err
				}
				handles[i] = h
			}
			s.WaitAll(handles...)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int64(16*50), totalCompleted.Load())
}

// TestSpawnChildRunsAfterParent exercises the hierarchical-spawn primitive:
// a child scheduled from inside its parent's body must not run until the
// parent returns.
func TestSpawnChildRunsAfterParent(t *testing.T) {
	s := newTestScheduler(t, 4)

	var parentDone atomic.Bool
	var childSawParentDone atomic.Bool
	var child jobgraph.Handle

	parent, err := s.Schedule("parent", func(ctx *jobgraph.Context) {
		h, err := s.SpawnChild(ctx.Handle(), "child", func(ctx *jobgraph.Context) {
			childSawParentDone.Store(parentDone.Load())
		}, nil)
		require.NoError(t, err)
		child = h
		parentDone.Store(true)
	}, nil, jobgraph.Handle{})
	require.NoError(t, err)

	s.Wait(parent)
	require.NotEqual(t, jobgraph.Handle{}, child)
	s.Wait(child)

	assert.True(t, childSawParentDone.Load())
}

// TestSpawnChildAfterParentCompletedDoesNotCorruptSiblingSlot is property 4:
// spawning a child against a parent handle that has already completed (and
// whose slot may already have been recycled by unrelated churn) must not
// touch whatever job now occupies that slot, and the child must still run.
func TestSpawnChildAfterParentCompletedDoesNotCorruptSiblingSlot(t *testing.T) {
	s := newTestScheduler(t, 2)

	parent, err := s.Schedule("parent", func(ctx *jobgraph.Context) {}, nil, jobgraph.Handle{})
	require.NoError(t, err)
	s.Wait(parent)

	// Recycle enough slots that parent's old slot is reused by an unrelated
	// job. The spawn below must skip the link instead of attaching the child
	// to that occupant, so the child still runs.
	var reused jobgraph.Handle
	for i := 0; i < 64; i++ {
		h, err := s.Schedule("filler", func(ctx *jobgraph.Context) {}, nil, jobgraph.Handle{})
		require.NoError(t, err)
		reused = h
	}
	s.Wait(reused)

	var childRan atomic.Bool
	child, err := s.SpawnChild(parent, "child", func(ctx *jobgraph.Context) {
		childRan.Store(true)
	}, nil)
	require.NoError(t, err)
	s.Wait(child)

	assert.True(t, childRan.Load())
}

// TestLargeStackHintRuns exercises the large-stack-hint sub-pool end to end
// through Schedule/SpawnChild/GroupAdd's *Large variants.
func TestLargeStackHintRuns(t *testing.T) {
	s := newTestScheduler(t, 2)

	var ran atomic.Int32
	h, err := s.ScheduleLarge("deep", func(ctx *jobgraph.Context) {
		ran.Add(1)
	}, nil, jobgraph.Handle{})
	require.NoError(t, err)
	s.Wait(h)

	child, err := s.SpawnChildLarge(h, "deep-child", func(ctx *jobgraph.Context) {
		ran.Add(1)
	}, nil)
	require.NoError(t, err)
	s.Wait(child)

	g := s.GroupCreate()
	_, err = s.GroupAddLarge(g, "deep-member", func(ctx *jobgraph.Context) {
		ran.Add(1)
	}, nil)
	require.NoError(t, err)
	s.GroupWait(g)
	s.GroupDestroy(g)

	assert.Equal(t, int32(3), ran.Load())
}

// TestFrameStartEndScopesEntriesToOneFrame is the scheduler-level end of the
// per-frame profiling consumer (spec.md §6).
func TestFrameStartEndScopesEntriesToOneFrame(t *testing.T) {
	s := newTestScheduler(t, 2)

	// Warm-up work outside any frame should never show up in a FrameEnd.
	warm, err := s.Schedule("warmup", func(ctx *jobgraph.Context) {}, nil, jobgraph.Handle{})
	require.NoError(t, err)
	s.Wait(warm)

	s.FrameStart()
	h, err := s.Schedule("framed", func(ctx *jobgraph.Context) {}, nil, jobgraph.Handle{})
	require.NoError(t, err)
	s.Wait(h)
	entries := s.FrameEnd()

	require.Len(t, entries, 1)
	assert.Equal(t, "framed", entries[0].Name)
}

// TestGroupContinuationRunsExactlyOnce is property 5, end to end through the
// public API.
func TestGroupContinuationRunsExactlyOnce(t *testing.T) {
	s := newTestScheduler(t, 4)

	g := s.GroupCreate()
	var completedMembers atomic.Int32
	for i := 0; i < 50; i++ {
		_, err := s.GroupAdd(g, "member", func(ctx *jobgraph.Context) {
			completedMembers.Add(1)
		}, nil)
		require.NoError(t, err)
	}

	var contRuns atomic.Int32
	done := make(chan struct{})
	_, err := s.GroupSetContinuation(g, "join", func(ctx *jobgraph.Context) {
		contRuns.Add(1)
		close(done)
	}, nil)
	require.NoError(t, err)

	<-done
	s.GroupDestroy(g)

	assert.Equal(t, int32(1), contRuns.Load())
	assert.Equal(t, int32(50), completedMembers.Load())
}
