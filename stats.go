package jobgraph

import "github.com/go-foundations/jobgraph/profiler"

// WorkerStats is a snapshot of one worker's counters (spec.md §4.I: "surface
// per-worker: tasks executed, steals attempted/succeeded, idle time").
type WorkerStats struct {
	WorkerID        int
	TasksExecuted   int64
	StealsSucceeded int64
	StealsFailed    int64
	IdleSpins       int64
	NodeID          int
}

// Stats is a snapshot across the whole scheduler.
type Stats struct {
	Workers    []WorkerStats
	ProfilerLen int
	ProfilerCap int
}

// Stats returns a point-in-time snapshot of every worker's counters. It is
// safe to call concurrently with a running scheduler; the individual
// counters are atomics but the snapshot as a whole is not transactionally
// consistent across workers, which matches spec.md's framing of these as
// diagnostic, not control-flow, signals.
func (s *Scheduler) Stats() Stats {
	out := Stats{
		Workers:     make([]WorkerStats, len(s.workers)),
		ProfilerLen: s.profiler.Len(),
		ProfilerCap: s.profiler.Cap(),
	}
	for i, w := range s.workers {
		out.Workers[i] = WorkerStats{
			WorkerID:        w.id,
			TasksExecuted:   w.tasksExecuted.Load(),
			StealsSucceeded: w.stealsSucceeded.Load(),
			StealsFailed:    w.stealsFailed.Load(),
			IdleSpins:       w.idleSpins.Load(),
			NodeID:          w.nodeID,
		}
	}
	return out
}

// DrainProfile returns the most recent job-timing entries still held in the
// profiling ring, oldest first, up to its capacity (spec.md §4.I / §6's
// per-frame profiling consumer). Draining does not clear the ring, so a later
// call returns these entries again alongside any newer ones.
func (s *Scheduler) DrainProfile() []ProfileEntry {
	return toProfileEntries(s.profiler.Drain())
}

// FrameStart marks the beginning of a new profiling frame. Call once per
// frame, paired with FrameEnd (spec.md §6's per-frame profiling consumer).
func (s *Scheduler) FrameStart() {
	s.profiler.FrameStart()
}

// FrameEnd marks the end of the current profiling frame and returns exactly
// the job-timing entries recorded during it.
func (s *Scheduler) FrameEnd() []ProfileEntry {
	return toProfileEntries(s.profiler.FrameEnd())
}

func toProfileEntries(entries []profiler.Entry) []ProfileEntry {
	out := make([]ProfileEntry, len(entries))
	for i, e := range entries {
		out[i] = ProfileEntry{
			StartNanos: e.StartTick,
			EndNanos:   e.EndTick,
			WorkerID:   e.WorkerID,
			Name:       e.Name,
		}
	}
	return out
}

// ProfileEntry is one recorded job execution, in nanoseconds since the
// scheduler started.
type ProfileEntry struct {
	StartNanos int64
	EndNanos   int64
	WorkerID   int32
	Name       string
}

// WorkerCount returns the number of worker goroutines this scheduler runs.
func (s *Scheduler) WorkerCount() int { return len(s.workers) }

// Timing returns h's created/started/completed timestamps (nanoseconds
// since the scheduler started) and the id of the worker that ran it. A
// stale handle reads as all-zero / worker -1, since the slot may already
// belong to an unrelated job.
func (s *Scheduler) Timing(h Handle) (created, started, completed int64, workerID int32) {
	if s.table.IsStale(h) {
		return 0, 0, 0, -1
	}
	return s.table.Timing(h.Index)
}
