package jobgraph

import (
	"github.com/go-foundations/jobgraph/fiberpool"
	"github.com/go-foundations/jobgraph/jobtable"
)

// Func is a job body. data is whatever opaque value Schedule was given;
// ctx gives access to this job's handle, its owning worker, and the
// yield/wait primitives (spec.md §4.G).
type Func func(ctx *Context)

// Context is handed to every running job body. It must not be retained or
// used after the body returns.
type Context struct {
	sched  *Scheduler
	handle jobtable.Handle
	worker *worker
	ctrl   *fiberpool.Control // set when the body starts on a fiber (worker or external-waiter helper)

	cooperativeYielded bool
}

// Handle returns this job's own handle, e.g. to pass to SpawnChild or to log.
func (c *Context) Handle() Handle { return c.handle }

// Data returns the opaque value this job was scheduled with.
func (c *Context) Data() any { return c.sched.table.Data(c.handle.Index) }

// WorkerID returns the id of the worker currently executing this job, or -1
// if it is running on the external-waiter helper path.
func (c *Context) WorkerID() int {
	if c.worker == nil {
		return -1
	}
	return c.worker.id
}

// Yield cooperatively suspends this job, handing the worker back to its
// loop to pick up other ready work; the job's state is set to Ready, its
// suspended fiber stays with whoever runs it (a worker keeps it on its own
// parked list, never in a stealable queue), and that same fiber resumes it
// later with its Go call stack fully intact
// (spec.md §4.D/§4.G). It is a precondition violation to call this from
// anywhere but a job body.
func (c *Context) Yield() {
	if c.ctrl == nil {
		assertPrecondition(false, "Yield called outside a job body")
		return
	}
	c.sched.table.SetState(c.handle.Index, jobtable.Ready)
	c.ctrl.Yield()
	c.sched.table.SetState(c.handle.Index, jobtable.Running)
}

// Wait blocks this job body until h is Completed or Cancelled (or is simply
// stale, which reads as already-complete). Unlike Yield, Wait is callable
// from outside a job body too (e.g. the goroutine that called Schedule),
// in which case it helps the scheduler along by running ready work itself
// rather than suspending a fiber that does not exist (spec.md §4.G).
func (c *Context) Wait(h Handle) {
	if c.ctrl == nil {
		c.sched.waitExternal(h)
		return
	}
	for {
		st := c.sched.table.State(h)
		if st == jobtable.Completed || st == jobtable.Cancelled {
			return
		}
		c.Yield()
	}
}

// CoopResult is returned by a CooperativeFunc to tell the scheduler what to
// do next (spec.md Design Notes, "cooperative wrapper").
type CoopResult int

const (
	// Continue re-invokes the function immediately, on the same fiber, with
	// no suspension at all.
	Continue CoopResult = iota
	// Yield re-enqueues the job (state Ready) and releases its fiber back to
	// the pool; the function is invoked again from the top the next time
	// the job is picked up, possibly by a different worker. Any progress
	// across resumptions must live in state the function closes over
	// externally, since the fiber's own stack is discarded.
	Yield
	// Complete ends the job successfully.
	Complete
)

// CooperativeFunc is the explicit "manual re-invocation" alternative to a
// raw Func: instead of a true stack-preserving Context.Yield, the function
// reports its own progress and is simply called again later. Grounded on
// spec.md's note that embedders preferring to avoid the fiber-goroutine cost
// can opt into this style per job.
type CooperativeFunc func(ctx *Context) CoopResult

// wrapCooperative adapts a CooperativeFunc into a Func. Continue loops
// in-process; Yield marks cooperativeYielded so the worker re-enqueues the
// job instead of treating the fiber's return as real completion; Complete
// (or any unrecognized result) lets the fiber return normally.
func wrapCooperative(fn CooperativeFunc) Func {
	return func(ctx *Context) {
		for {
			switch fn(ctx) {
			case Continue:
				continue
			case Yield:
				ctx.sched.table.SetState(ctx.handle.Index, jobtable.Ready)
				ctx.cooperativeYielded = true
				return
			default:
				return
			}
		}
	}
}
