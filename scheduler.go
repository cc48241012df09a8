// Package jobgraph is a fiber-based, work-stealing task scheduler with
// DAG-style job dependencies and NUMA-aware victim selection — the core
// scheduling primitive of a game-engine-style runtime (spec.md §1-§9).
//
// The architecture is grounded directly on the teacher's WorkerPool: a fixed
// pool of long-lived worker goroutines (workerpool.go's worker loop) each
// owning private state, reading from a shared source of work, and reporting
// through the same kind of atomic counters the teacher uses for its Metrics.
// Where the teacher distributes jobs to workers up front, this scheduler
// lets workers pull and steal, per spec.md §4.A-§4.E; where the teacher
// returns a Result[R] down a channel per job, this scheduler runs
// fire-and-forget job graphs and exposes completion through Handles instead.
package jobgraph

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/go-foundations/jobgraph/deps"
	"github.com/go-foundations/jobgraph/deque"
	"github.com/go-foundations/jobgraph/fiberpool"
	"github.com/go-foundations/jobgraph/internal/cpupause"
	"github.com/go-foundations/jobgraph/internal/goroutineid"
	"github.com/go-foundations/jobgraph/internal/xorshift"
	"github.com/go-foundations/jobgraph/jobtable"
	"github.com/go-foundations/jobgraph/profiler"
	"github.com/go-foundations/jobgraph/topology"
)

// Handle names a scheduled job. The zero Handle names no job.
type Handle = jobtable.Handle

// StackHint selects which of a worker's fiber sub-pools a job's stack is
// drawn from (spec.md §4.D's ~16 KiB small / ~256 KiB large split).
type StackHint = fiberpool.Size

const (
	// SmallStack is the default every Schedule/ScheduleCooperative/SpawnChild/
	// GroupAdd call uses.
	SmallStack = fiberpool.Small
	// LargeStack routes a job to the large-stack-hint sub-pool, via the
	// corresponding *Large variant of each scheduling entry point.
	LargeStack = fiberpool.Large
)

// Scheduler owns the job table, dependency engine, worker pool, and NUMA
// topology for one running instance. Most programs only need the
// package-level convenience functions, which operate on a single shared
// default Scheduler (spec.md's free-function surface); programs embedding
// more than one runtime (e.g. tests) can construct their own with New.
type Scheduler struct {
	cfg     Config
	table   *jobtable.Table
	engine  *deps.Engine
	groups  *deps.GroupTable
	topo    *topology.Topology
	workers []*worker

	globalHigh   *deque.GlobalQueue
	globalNormal *deque.GlobalQueue
	profiler     *profiler.Ring

	// helperSem bounds how many external (non-worker) goroutines may run a
	// helped job inline at once, during Wait/GroupWait called from outside
	// any job body. Without this, a thundering herd of external waiters
	// could oversubscribe the machine with standalone helper fibers well
	// beyond the worker count.
	helperSem *semaphore.Weighted

	workerRegistry sync.Map // goroutine id (int64) -> *worker
	ctxRegistry    sync.Map // goroutine id (int64) -> *Context

	sleepMu   sync.Mutex
	sleepCond *sync.Cond
	sleeping  atomic.Int32

	quit    atomic.Bool
	started atomic.Bool
	wg      sync.WaitGroup

	startedAt time.Time
}

// New constructs a Scheduler and starts its worker pool. Shutdown must be
// called to stop it.
func New(cfg Config) *Scheduler {
	workerCount := cfg.resolvedWorkerCount()

	s := &Scheduler{
		cfg:          cfg,
		table:        jobtable.New(cfg.JobTableCapacity),
		groups:       deps.NewGroupTable(),
		topo:         topology.Discover(workerCount),
		globalHigh:   deque.NewGlobalQueue(cfg.GlobalQueueCapacity),
		globalNormal: deque.NewGlobalQueue(cfg.GlobalQueueCapacity),
		profiler:     profiler.New(cfg.ProfilerCapacity),
		helperSem:    semaphore.NewWeighted(int64(workerCount)),
		startedAt:    time.Now(),
	}
	s.sleepCond = sync.NewCond(&s.sleepMu)
	s.engine = deps.NewEngine(s.table, s.groups, s, s.releaseArena)

	s.workers = make([]*worker, workerCount)
	for i := 0; i < workerCount; i++ {
		w := &worker{
			id:     i,
			sched:  s,
			local:  deque.New(cfg.DequeCapacity),
			fibers: fiberpool.New(i, cfg.FibersPerWorkerSmall, cfg.FibersPerWorkerLarge),
			rng:    xorshift.New(uint32(0x9e3779b9 ^ (i*2654435761 + 1))),
			nodeID: s.topo.NodeOf(i),
		}
		s.workers[i] = w
	}

	s.started.Store(true)
	s.wg.Add(workerCount)
	for _, w := range s.workers {
		go func(w *worker) {
			defer s.wg.Done()
			w.run()
		}(w)
	}
	cfg.Logger.Info().Int("workers", workerCount).Msg("jobgraph scheduler started")
	return s
}

// Shutdown stops every worker, waits for their loops to exit, and tears
// down each worker's fiber pool. In-flight jobs run to their next
// suspension point or completion; queued-but-not-started jobs never run.
func (s *Scheduler) Shutdown() {
	if !s.started.CompareAndSwap(true, false) {
		return
	}
	s.quit.Store(true)
	s.wakeSleepers()
	s.wg.Wait()
	for _, w := range s.workers {
		w.fibers.Shutdown()
	}
	s.cfg.Logger.Info().Msg("jobgraph scheduler stopped")
}

func (s *Scheduler) now() int64 { return time.Since(s.startedAt).Nanoseconds() }

func (s *Scheduler) releaseArena(arena any) {
	if rel, ok := arena.(interface{ Release() }); ok {
		rel.Release()
	}
}

// --- scheduling ---

// Schedule allocates a job, optionally ordering it after zero or more other
// jobs, and returns its handle. A zero-value Handle in after is ignored
// (so passing a lone jobgraph.Handle{} means "no dependency", matching the
// single-dependency call sites this variadic form replaces). If every
// non-zero handle in after already names a Completed or Cancelled job
// (including a stale one), the new job is immediately runnable — scheduling
// "after" an already-finished job is not an error (this resolves spec.md's
// open question about ordering against an already-completed prerequisite).
//
// Implements spec.md §4.G's three-step protocol generalized to N
// prerequisites: the incoming-dependency counter is held at a reserved 1
// while every AddDependency call runs, then released; this closes the race
// window where a prerequisite could complete and fan out to a dependent
// counter that had not yet been incremented for every edge.
func (s *Scheduler) Schedule(name string, fn Func, data any, after ...Handle) (Handle, error) {
	return s.schedule(name, fn, data, SmallStack, after...)
}

// ScheduleLarge is Schedule, but acquires its fiber from a worker's
// large-stack-hint sub-pool (spec.md §4.D) — for job bodies expected to
// recurse deeply or otherwise need more headroom than the small hint gives.
func (s *Scheduler) ScheduleLarge(name string, fn Func, data any, after ...Handle) (Handle, error) {
	return s.schedule(name, fn, data, LargeStack, after...)
}

func (s *Scheduler) schedule(name string, fn Func, data any, hint StackHint, after ...Handle) (Handle, error) {
	if !s.started.Load() {
		return Handle{}, ErrNotRunning
	}
	h, ok := s.table.Alloc(fn, data, name, s.now())
	if !ok {
		return Handle{}, ErrJobTableFull
	}
	s.table.SetStackHint(h.Index, int32(hint))
	s.table.AddIncoming(h.Index, 1)

	for _, a := range after {
		if a.IsNone() {
			continue
		}
		if st := s.table.State(a); st != jobtable.Completed && st != jobtable.Cancelled {
			s.engine.AddDependency(h.Index, a.Index)
		}
	}

	if s.table.AddIncoming(h.Index, -1) == 0 {
		s.table.SetState(h.Index, jobtable.Ready)
		if !s.tryEnqueue(h.Index) {
			return h, ErrSubmissionFailed
		}
	}
	return h, nil
}

// AddDependency links an already-scheduled dependent to an already-scheduled
// prerequisite (spec.md §4.F's standalone add_dependency primitive). It is
// only valid to call this before dependent has had a chance to become Ready
// on its own — i.e. before the last AddIncoming release that could make it
// runnable — which in practice means calling it from within prerequisite's
// own job body or before dependent's initial incoming-dependency count has
// been fully released elsewhere. Calling it on a dependent that is already
// Ready, Running, or Completed breaks the precondition of spec.md §7 and is
// not detected: the dependent is not held back, and prerequisite's
// completion still decrements that slot's incoming counter later.
func (s *Scheduler) AddDependency(dependent, prerequisite Handle) {
	if dependent.IsNone() || prerequisite.IsNone() {
		assertPrecondition(false, "AddDependency called with a zero Handle")
		return
	}
	if st := s.table.State(prerequisite); st == jobtable.Completed || st == jobtable.Cancelled {
		return
	}
	s.engine.AddDependency(dependent.Index, prerequisite.Index)
}

// SpawnChild schedules fn as a dependency-linked child of parent, inheriting
// parent's arena if the child has none of its own (spec.md §4.F hierarchical
// spawn). If parent already names a Completed, Cancelled, or stale job, the
// link is skipped entirely and child is runnable immediately — exactly the
// same "after an already-finished job" treatment Schedule gives its after
// list — rather than risk calling into the engine with an index whose slot
// may already belong to an unrelated job.
func (s *Scheduler) SpawnChild(parent Handle, name string, fn Func, data any) (Handle, error) {
	return s.spawnChild(parent, name, fn, data, SmallStack)
}

// SpawnChildLarge is SpawnChild, but acquires its fiber from a worker's
// large-stack-hint sub-pool (spec.md §4.D).
func (s *Scheduler) SpawnChildLarge(parent Handle, name string, fn Func, data any) (Handle, error) {
	return s.spawnChild(parent, name, fn, data, LargeStack)
}

func (s *Scheduler) spawnChild(parent Handle, name string, fn Func, data any, hint StackHint) (Handle, error) {
	if !s.started.Load() {
		return Handle{}, ErrNotRunning
	}
	h, ok := s.table.Alloc(fn, data, name, s.now())
	if !ok {
		return Handle{}, ErrJobTableFull
	}
	s.table.SetStackHint(h.Index, int32(hint))
	s.table.AddIncoming(h.Index, 1)
	if st := s.table.State(parent); st != jobtable.Completed && st != jobtable.Cancelled {
		s.engine.SpawnChild(parent.Index, h.Index)
	}
	if s.table.AddIncoming(h.Index, -1) == 0 {
		s.table.SetState(h.Index, jobtable.Ready)
		if !s.tryEnqueue(h.Index) {
			return h, ErrSubmissionFailed
		}
	}
	return h, nil
}

// SubmitBatch schedules every (name, fn, data) triple with no ordering
// between them, returning their handles in the same order. This is the
// common "fan out N independent jobs" shape (scenario S1): each call still
// goes through Schedule, so failures are reported per-job rather than
// aborting the whole batch.
func (s *Scheduler) SubmitBatch(jobs []BatchJob) ([]Handle, []error) {
	handles := make([]Handle, len(jobs))
	errs := make([]error, len(jobs))
	for i, j := range jobs {
		handles[i], errs[i] = s.Schedule(j.Name, j.Fn, j.Data, Handle{})
	}
	return handles, errs
}

// BatchJob is one entry of a SubmitBatch call.
type BatchJob struct {
	Name string
	Fn   Func
	Data any
}

// ScheduleCooperative is Schedule for a CooperativeFunc (see CoopResult).
func (s *Scheduler) ScheduleCooperative(name string, fn CooperativeFunc, data any, after ...Handle) (Handle, error) {
	return s.schedule(name, wrapCooperative(fn), data, SmallStack, after...)
}

// ScheduleCooperativeLarge is ScheduleCooperative, but acquires its fiber
// from a worker's large-stack-hint sub-pool (spec.md §4.D).
func (s *Scheduler) ScheduleCooperativeLarge(name string, fn CooperativeFunc, data any, after ...Handle) (Handle, error) {
	return s.schedule(name, wrapCooperative(fn), data, LargeStack, after...)
}

// IsComplete reports whether h names a Completed or Cancelled job. A stale
// handle (including one for a slot that has since been reused) reads as
// complete, per spec.md's staleness rule.
func (s *Scheduler) IsComplete(h Handle) bool {
	st := s.table.State(h)
	return st == jobtable.Completed || st == jobtable.Cancelled
}

// Wait blocks the calling goroutine until h is complete, helping the
// scheduler make progress in the meantime rather than idling uselessly
// (spec.md §4.G). It is always safe to call, whether or not the caller is
// itself running inside a job body.
func (s *Scheduler) Wait(h Handle) {
	if ctx, ok := s.currentContext(); ok {
		ctx.Wait(h)
		return
	}
	s.waitExternal(h)
}

// WaitAll waits for every handle in hs.
func (s *Scheduler) WaitAll(hs ...Handle) {
	for _, h := range hs {
		s.Wait(h)
	}
}

// --- groups ---

// GroupID names a fan-in barrier created with GroupCreate.
type GroupID int32

// GroupCreate allocates a new, empty job group (spec.md §3/§4.F).
func (s *Scheduler) GroupCreate() GroupID { return GroupID(s.groups.Create()) }

// GroupAdd schedules fn as a member of group g. The group's fan-in counter
// tracks it until it completes.
func (s *Scheduler) GroupAdd(g GroupID, name string, fn Func, data any) (Handle, error) {
	return s.groupAdd(g, name, fn, data, SmallStack)
}

// GroupAddLarge is GroupAdd, but acquires its fiber from a worker's
// large-stack-hint sub-pool (spec.md §4.D).
func (s *Scheduler) GroupAddLarge(g GroupID, name string, fn Func, data any) (Handle, error) {
	return s.groupAdd(g, name, fn, data, LargeStack)
}

func (s *Scheduler) groupAdd(g GroupID, name string, fn Func, data any, hint StackHint) (Handle, error) {
	grp := s.groups.Get(int32(g))
	if grp == nil {
		return Handle{}, ErrUnknownGroup
	}
	h, ok := s.table.Alloc(fn, data, name, s.now())
	if !ok {
		return Handle{}, ErrJobTableFull
	}
	s.table.SetStackHint(h.Index, int32(hint))
	s.table.SetGroup(h.Index, int32(g))
	if a := grp.Arena(); a != nil {
		s.table.SetArena(h.Index, a)
	}
	grp.Add(h)
	s.table.AddIncoming(h.Index, 1)
	if s.table.AddIncoming(h.Index, -1) == 0 {
		s.table.SetState(h.Index, jobtable.Ready)
		if !s.tryEnqueue(h.Index) {
			return h, ErrSubmissionFailed
		}
	}
	return h, nil
}

// GroupSetContinuation schedules fn to run once every member of g has
// completed. Members added before the group's fan-in reaches zero are waited
// for; if g has no outstanding members when this is called, fn is made
// runnable at once, and members added after the continuation has been
// released do not hold it back. Internally, the continuation is scheduled with
// its incoming-dependency counter pinned at 1 (a "held" job, spec.md §4.F);
// the group's fan-in reaching zero is what releases that last count, reusing
// the same ready-making primitive ordinary dependency completion uses.
func (s *Scheduler) GroupSetContinuation(g GroupID, name string, fn Func, data any) (Handle, error) {
	grp := s.groups.Get(int32(g))
	if grp == nil {
		return Handle{}, ErrUnknownGroup
	}
	h, ok := s.table.Alloc(fn, data, name, s.now())
	if !ok {
		return Handle{}, ErrJobTableFull
	}
	s.table.AddIncoming(h.Index, 1)
	grp.SetContinuation(h)
	if grp.Complete() {
		if s.table.AddIncoming(h.Index, -1) == 0 {
			s.table.SetState(h.Index, jobtable.Ready)
			if !s.tryEnqueue(h.Index) {
				return h, ErrSubmissionFailed
			}
		}
	}
	return h, nil
}

// GroupWait blocks until every member of g has completed.
func (s *Scheduler) GroupWait(g GroupID) {
	grp := s.groups.Get(int32(g))
	if grp == nil {
		return
	}
	for grp.Remaining() > 0 {
		if ctx, ok := s.currentContext(); ok {
			ctx.Yield()
			continue
		}
		if idx, ok := s.globalNormal.StealTop(); ok {
			s.runExternalHelperBounded(uint32(idx))
			continue
		}
		if idx, ok := s.globalHigh.StealTop(); ok {
			s.runExternalHelperBounded(uint32(idx))
			continue
		}
		cpupause.Pause()
	}
}

// GroupSetArena binds an arena every future GroupAdd member inherits.
func (s *Scheduler) GroupSetArena(g GroupID, arena any) {
	if grp := s.groups.Get(int32(g)); grp != nil {
		grp.SetArena(arena)
	}
}

// GroupDestroy releases g. The caller must have waited on it first
// (spec.md Design Notes: "groups require explicit destruction").
func (s *Scheduler) GroupDestroy(g GroupID) { s.groups.Destroy(int32(g)) }

// --- enqueue / dequeue plumbing ---

// EnqueueReady implements deps.Enqueuer: it is how a job whose last
// dependency just completed gets back into circulation. A full-queue here
// has no synchronous caller left to report to, so when every queue is full
// the job is logged as dropped: it stays in the Ready state but sits in no
// queue, nothing pushes it again, and so it never runs.
func (s *Scheduler) EnqueueReady(idx uint32) {
	if !s.tryEnqueue(idx) {
		s.cfg.Logger.Warn().Uint32("job", idx).Msg("ready job dropped: all queues full")
	}
}

// tryEnqueue pushes idx onto the calling goroutine's own worker deque if it
// is running on one, else the normal global queue, else the high-priority
// global queue as a last-resort capacity valve. Reports whether any push
// succeeded (spec.md's deque-full-falls-back-to-global failure path).
func (s *Scheduler) tryEnqueue(idx uint32) bool {
	if v, ok := s.workerRegistry.Load(goroutineid.Current()); ok {
		if v.(*worker).local.PushBottom(int32(idx)) {
			return true
		}
	}
	if s.globalNormal.Push(int32(idx)) {
		s.wakeSleepers()
		return true
	}
	if s.globalHigh.Push(int32(idx)) {
		s.wakeSleepers()
		return true
	}
	return false
}

func (s *Scheduler) currentContext() (*Context, bool) {
	v, ok := s.ctxRegistry.Load(goroutineid.Current())
	if !ok {
		return nil, false
	}
	return v.(*Context), true
}

func (s *Scheduler) wakeSleepers() {
	s.sleepMu.Lock()
	s.sleepCond.Broadcast()
	s.sleepMu.Unlock()
}

func (s *Scheduler) sleep() {
	s.sleepMu.Lock()
	s.sleeping.Add(1)
	if !s.quit.Load() {
		s.sleepCond.Wait()
	}
	s.sleeping.Add(-1)
	s.sleepMu.Unlock()
}

// waitExternal is Wait's implementation for a goroutine with no worker and
// no fiber of its own (spec.md §4.G: wait is "callable anywhere"). It helps
// by pulling work from the global queues only, leaving per-worker deques
// (and their NUMA locality) undisturbed, and runs each helped job on a
// throwaway standalone fiber so that a job calling Yield/Wait recursively
// still gets real suspension.
func (s *Scheduler) waitExternal(h Handle) {
	for {
		st := s.table.State(h)
		if st == jobtable.Completed || st == jobtable.Cancelled {
			return
		}
		if idx, ok := s.globalNormal.StealTop(); ok {
			s.runExternalHelperBounded(uint32(idx))
			continue
		}
		if idx, ok := s.globalHigh.StealTop(); ok {
			s.runExternalHelperBounded(uint32(idx))
			continue
		}
		cpupause.Pause()
	}
}

// runExternalHelperBounded acquires helperSem before running a helped job
// inline, so a burst of concurrent external waiters cannot oversubscribe the
// machine beyond roughly one extra goroutine per worker.
func (s *Scheduler) runExternalHelperBounded(idx uint32) {
	_ = s.helperSem.Acquire(context.Background(), 1)
	defer s.helperSem.Release(1)
	s.runExternalHelper(idx)
}

func (s *Scheduler) runExternalHelper(idx uint32) {
	ctx := &Context{sched: s, handle: s.table.HandleFor(idx)}
	f := fiberpool.NewStandalone()
	defer f.Stop()

	s.table.SetStarted(idx, s.now(), -1)
	s.table.SetState(idx, jobtable.Running)

	task := func(c *fiberpool.Control) {
		ctx.ctrl = c
		gid := goroutineid.Current()
		s.ctxRegistry.Store(gid, ctx)
		defer s.ctxRegistry.Delete(gid)
		fn := s.table.Fn(idx).(Func)
		fn(ctx)
	}

	done := f.Run(task)
	for !done {
		done = f.Resume()
	}
	s.finishFiberJob(idx, ctx)
}

func (s *Scheduler) finishFiberJob(idx uint32, ctx *Context) {
	if ctx.cooperativeYielded {
		ctx.cooperativeYielded = false
		s.EnqueueReady(idx)
		return
	}
	end := s.now()
	_, started, _, workerID := s.table.Timing(idx)
	s.profiler.RecordJob(started, end, workerID, s.table.Name(idx))
	s.engine.Complete(idx, end)
}

// --- worker loop ---

type parkedFiber struct {
	fiber *fiberpool.Fiber
	ctx   *Context
}

type worker struct {
	id     int
	sched  *Scheduler
	local  *deque.Deque
	fibers *fiberpool.Pool
	rng    *xorshift.State
	nodeID int

	parked []parkedFiber

	tasksExecuted   atomic.Int64
	stealsSucceeded atomic.Int64
	stealsFailed    atomic.Int64
	idleSpins       atomic.Int64
}

// run is the worker's main loop: local deque, then a parked fiber of its
// own, then stealing from a sibling, then the two global queues, then an
// idle spin before parking (spec.md §4.A's four-step loop, extended with
// the parked-fiber step needed to resume a job that called Yield or Wait
// without migrating its suspended stack to another worker — spec.md's
// explicit non-goal).
func (w *worker) run() {
	s := w.sched
	s.workerRegistry.Store(goroutineid.Current(), w)
	defer s.workerRegistry.Delete(goroutineid.Current())

	if s.cfg.PinThreads {
		// LockOSThread is required before a meaningful affinity call: Go may
		// otherwise migrate this goroutine to a different OS thread between
		// the pin call and the work it was meant to localize.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if mask, ok := w.sched.topo.AffinityMask(w.id); ok {
			if err := topology.PinCurrentThread(mask); err != nil {
				s.cfg.Logger.Debug().Err(err).Int("worker", w.id).Msg("thread pin failed, continuing unpinned")
			}
		}
	}

	idle := 0
	for !s.quit.Load() {
		if idx, ok := w.local.PopBottom(); ok {
			w.runFresh(uint32(idx))
			idle = 0
			continue
		}
		if pf, ok := w.takeParked(); ok {
			w.resumeParked(pf)
			idle = 0
			continue
		}
		if idx, ok := w.steal(); ok {
			w.stealsSucceeded.Add(1)
			w.runFresh(uint32(idx))
			idle = 0
			continue
		}
		if idx, ok := s.globalHigh.StealTop(); ok {
			w.runFresh(uint32(idx))
			idle = 0
			continue
		}
		if idx, ok := s.globalNormal.StealTop(); ok {
			w.runFresh(uint32(idx))
			idle = 0
			continue
		}

		idle++
		w.idleSpins.Add(1)
		if idle < s.cfg.MaxIdleSpins {
			cpupause.Pause()
			continue
		}
		s.sleep()
		idle = 0
	}

	for _, pf := range w.parked {
		pf.fiber.Stop()
	}
}

func (w *worker) takeParked() (parkedFiber, bool) {
	if len(w.parked) == 0 {
		return parkedFiber{}, false
	}
	pf := w.parked[0]
	w.parked = w.parked[1:]
	return pf, true
}

func (w *worker) steal() (int32, bool) {
	s := w.sched
	for i := 0; i < s.cfg.StealAttemptsPerRound; i++ {
		victim, ok := s.topo.SelectVictim(w.id, w.rng)
		if !ok {
			continue
		}
		if v, ok := s.workers[victim].local.StealTop(); ok {
			return v, true
		}
		w.stealsFailed.Add(1)
	}
	return 0, false
}

func (w *worker) runFresh(idx uint32) {
	s := w.sched
	ctx := &Context{sched: s, handle: s.table.HandleFor(idx), worker: w}
	f, ok := w.fibers.Acquire(fiberpool.Size(s.table.StackHint(idx)))
	if !ok {
		// Every fiber is checked out (spec.md §4.C "Fiber pool exhausted" /
		// oversubscription backpressure): hand the job back to circulation
		// rather than block this worker waiting for one to free up.
		s.EnqueueReady(idx)
		return
	}

	s.table.SetStarted(idx, s.now(), int32(w.id))
	s.table.SetState(idx, jobtable.Running)

	task := func(c *fiberpool.Control) {
		ctx.ctrl = c
		gid := goroutineid.Current()
		s.ctxRegistry.Store(gid, ctx)
		defer s.ctxRegistry.Delete(gid)
		fn := s.table.Fn(idx).(Func)
		fn(ctx)
	}
	done := f.Run(task)
	w.handleFiberResult(idx, f, ctx, done)
}

func (w *worker) resumeParked(pf parkedFiber) {
	done := pf.fiber.Resume()
	w.handleFiberResult(pf.ctx.handle.Index, pf.fiber, pf.ctx, done)
}

func (w *worker) handleFiberResult(idx uint32, f *fiberpool.Fiber, ctx *Context, done bool) {
	if !done {
		w.parked = append(w.parked, parkedFiber{fiber: f, ctx: ctx})
		return
	}
	w.fibers.Release(f)
	w.sched.finishFiberJob(idx, ctx)
	w.tasksExecuted.Add(1)
}
