package jobgraph

import "errors"

// Sentinel errors for the public API's synchronous failure paths
// (spec.md's failure-mode table). Asynchronous failures — a dependent that
// becomes ready after its prerequisite completes but finds every queue
// full — have no caller left to report to and are logged instead.
var (
	// ErrJobTableFull is returned by Schedule/SpawnChild/GroupAdd when the
	// job table has no free slot (spec.md §4.C "Capacity": table exhausted).
	ErrJobTableFull = errors.New("jobgraph: job table at capacity")

	// ErrSubmissionFailed is returned by Schedule when a job is immediately
	// Ready but both the caller's deque and every global queue are full.
	ErrSubmissionFailed = errors.New("jobgraph: submission failed: all queues full")

	// ErrUnknownGroup is returned by the Group* functions when passed a
	// group id that was never created, or was already destroyed.
	ErrUnknownGroup = errors.New("jobgraph: unknown or destroyed group")

	// ErrNotRunning is returned by the package-level functions that have an
	// error result (Schedule, SpawnChild, GroupCreate, GroupAdd, ...) when
	// called before Init or after Shutdown, and by the Scheduler's Schedule
	// and SpawnChild variants after Shutdown. Functions with no error
	// result, such as Wait, do nothing in that case.
	ErrNotRunning = errors.New("jobgraph: scheduler is not running")
)
