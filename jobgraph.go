package jobgraph

import "sync"

var (
	defaultMu  sync.Mutex
	defaultSch *Scheduler
)

// Init starts the package-level default Scheduler that every free function
// in this file operates on. Most programs call this once at startup;
// programs that need more than one independent runtime should use New
// directly instead.
func Init(cfg Config) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultSch != nil {
		defaultSch.Shutdown()
	}
	defaultSch = New(cfg)
}

// Shutdown stops the default Scheduler started by Init.
func Shutdown() {
	defaultMu.Lock()
	sch := defaultSch
	defaultSch = nil
	defaultMu.Unlock()
	if sch != nil {
		sch.Shutdown()
	}
}

func current() *Scheduler {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultSch
}

// Schedule submits fn to the default scheduler. See Scheduler.Schedule.
func Schedule(name string, fn Func, data any, after ...Handle) (Handle, error) {
	s := current()
	if s == nil {
		return Handle{}, ErrNotRunning
	}
	return s.Schedule(name, fn, data, after...)
}

// ScheduleLarge submits fn to the default scheduler's large-stack-hint fiber
// sub-pool. See Scheduler.ScheduleLarge.
func ScheduleLarge(name string, fn Func, data any, after ...Handle) (Handle, error) {
	s := current()
	if s == nil {
		return Handle{}, ErrNotRunning
	}
	return s.ScheduleLarge(name, fn, data, after...)
}

// ScheduleCooperative submits fn to the default scheduler. See
// Scheduler.ScheduleCooperative.
func ScheduleCooperative(name string, fn CooperativeFunc, data any, after ...Handle) (Handle, error) {
	s := current()
	if s == nil {
		return Handle{}, ErrNotRunning
	}
	return s.ScheduleCooperative(name, fn, data, after...)
}

// ScheduleCooperativeLarge submits fn to the default scheduler's
// large-stack-hint fiber sub-pool. See Scheduler.ScheduleCooperativeLarge.
func ScheduleCooperativeLarge(name string, fn CooperativeFunc, data any, after ...Handle) (Handle, error) {
	s := current()
	if s == nil {
		return Handle{}, ErrNotRunning
	}
	return s.ScheduleCooperativeLarge(name, fn, data, after...)
}

// AddDependency links an already-scheduled dependent to an already-scheduled
// prerequisite on the default scheduler. See Scheduler.AddDependency.
func AddDependency(dependent, prerequisite Handle) {
	if s := current(); s != nil {
		s.AddDependency(dependent, prerequisite)
	}
}

// SpawnChild schedules fn as a dependency-linked child of parent on the
// default scheduler. See Scheduler.SpawnChild.
func SpawnChild(parent Handle, name string, fn Func, data any) (Handle, error) {
	s := current()
	if s == nil {
		return Handle{}, ErrNotRunning
	}
	return s.SpawnChild(parent, name, fn, data)
}

// SpawnChildLarge is SpawnChild on the default scheduler's large-stack-hint
// fiber sub-pool. See Scheduler.SpawnChildLarge.
func SpawnChildLarge(parent Handle, name string, fn Func, data any) (Handle, error) {
	s := current()
	if s == nil {
		return Handle{}, ErrNotRunning
	}
	return s.SpawnChildLarge(parent, name, fn, data)
}

// SubmitBatch schedules every job in jobs with no ordering between them on
// the default scheduler. See Scheduler.SubmitBatch.
func SubmitBatch(jobs []BatchJob) ([]Handle, []error) {
	s := current()
	if s == nil {
		errs := make([]error, len(jobs))
		for i := range errs {
			errs[i] = ErrNotRunning
		}
		return make([]Handle, len(jobs)), errs
	}
	return s.SubmitBatch(jobs)
}

// Wait blocks until h is complete, helping the default scheduler along in
// the meantime. See Scheduler.Wait.
func Wait(h Handle) {
	if s := current(); s != nil {
		s.Wait(h)
	}
}

// WaitAll waits for every handle in hs on the default scheduler.
func WaitAll(hs ...Handle) {
	if s := current(); s != nil {
		s.WaitAll(hs...)
	}
}

// Yield cooperatively suspends the calling job on the default scheduler. It
// is a precondition violation to call this from outside a job body.
func Yield() {
	s := current()
	if s == nil {
		assertPrecondition(false, "Yield called with no running scheduler")
		return
	}
	ctx, ok := s.currentContext()
	if !ok {
		assertPrecondition(false, "Yield called outside a job body")
		return
	}
	ctx.Yield()
}

// IsComplete reports whether h names a Completed or Cancelled job on the
// default scheduler.
func IsComplete(h Handle) bool {
	s := current()
	if s == nil {
		return true
	}
	return s.IsComplete(h)
}

// CurrentWorkerID returns the id of the worker executing the calling job, or
// -1 if called from outside a job body (spec.md §4.I "current_worker_id").
func CurrentWorkerID() int {
	s := current()
	if s == nil {
		return -1
	}
	ctx, ok := s.currentContext()
	if !ok {
		return -1
	}
	return ctx.WorkerID()
}

// CurrentJobHandle returns the calling job's own handle, or the zero Handle
// if called from outside a job body.
func CurrentJobHandle() Handle {
	s := current()
	if s == nil {
		return Handle{}
	}
	ctx, ok := s.currentContext()
	if !ok {
		return Handle{}
	}
	return ctx.Handle()
}

// GroupCreate allocates a new job group on the default scheduler.
func GroupCreate() (GroupID, error) {
	s := current()
	if s == nil {
		return 0, ErrNotRunning
	}
	return s.GroupCreate(), nil
}

// GroupAdd schedules fn as a member of g on the default scheduler.
func GroupAdd(g GroupID, name string, fn Func, data any) (Handle, error) {
	s := current()
	if s == nil {
		return Handle{}, ErrNotRunning
	}
	return s.GroupAdd(g, name, fn, data)
}

// GroupAddLarge is GroupAdd on the default scheduler's large-stack-hint
// fiber sub-pool. See Scheduler.GroupAddLarge.
func GroupAddLarge(g GroupID, name string, fn Func, data any) (Handle, error) {
	s := current()
	if s == nil {
		return Handle{}, ErrNotRunning
	}
	return s.GroupAddLarge(g, name, fn, data)
}

// GroupSetContinuation schedules fn to run once every member of g has
// completed, on the default scheduler.
func GroupSetContinuation(g GroupID, name string, fn Func, data any) (Handle, error) {
	s := current()
	if s == nil {
		return Handle{}, ErrNotRunning
	}
	return s.GroupSetContinuation(g, name, fn, data)
}

// GroupWait blocks until every member of g has completed, on the default
// scheduler.
func GroupWait(g GroupID) {
	if s := current(); s != nil {
		s.GroupWait(g)
	}
}

// GroupDestroy releases g on the default scheduler.
func GroupDestroy(g GroupID) {
	if s := current(); s != nil {
		s.GroupDestroy(g)
	}
}

// CurrentStats returns a snapshot of the default scheduler's per-worker
// counters.
func CurrentStats() Stats {
	if s := current(); s != nil {
		return s.Stats()
	}
	return Stats{}
}

// FrameStart marks the beginning of a new profiling frame on the default
// scheduler. See Scheduler.FrameStart.
func FrameStart() {
	if s := current(); s != nil {
		s.FrameStart()
	}
}

// FrameEnd marks the end of the current profiling frame on the default
// scheduler and returns the entries recorded during it. See
// Scheduler.FrameEnd.
func FrameEnd() []ProfileEntry {
	if s := current(); s != nil {
		return s.FrameEnd()
	}
	return nil
}
