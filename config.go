package jobgraph

import (
	"runtime"

	"github.com/rs/zerolog"
	"go.uber.org/automaxprocs/maxprocs"
)

// Config holds the scheduler's tunables (spec.md §9 Configuration knobs).
type Config struct {
	WorkerCount           int           // 0 => LogicalCPUs()-1, one thread reserved for the caller
	JobTableCapacity      int           // fixed slab size, spec default range 4,096-65,536
	DequeCapacity         int           // per-worker local deque capacity hint
	GlobalQueueCapacity   int           // overflow/injector queue capacity hint
	StealAttemptsPerRound int           // victims tried before falling back to the global queues
	MaxIdleSpins          int           // cpupause rounds before a worker parks on the sleep condvar
	FibersPerWorkerSmall  int           // small-stack-hint fiber sub-pool size, capped at 64
	FibersPerWorkerLarge  int           // large-stack-hint fiber sub-pool size, capped at 64
	ProfilerCapacity      int           // per-process profiling ring buffer capacity
	PinThreads            bool          // attempt NUMA-aware OS thread affinity (spec.md §4.E)
	Logger                zerolog.Logger // structured logger; zerolog.Nop() by default
}

// DefaultConfig returns sensible defaults, mirroring spec.md §9's suggested
// range for each knob.
func DefaultConfig() Config {
	return Config{
		WorkerCount:           0,
		JobTableCapacity:      65536,
		DequeCapacity:         1024,
		GlobalQueueCapacity:   4096,
		StealAttemptsPerRound: 4,
		MaxIdleSpins:          1000,
		FibersPerWorkerSmall:  32,
		FibersPerWorkerLarge:  8,
		ProfilerCapacity:      4096,
		PinThreads:            true,
		Logger:                zerolog.Nop(),
	}
}

// LogicalCPUs returns the number of logical CPUs this process should plan
// around, honoring container CPU quotas via automaxprocs (the same
// adjustment the teacher's ecosystem makes at process startup) rather than
// the host's raw core count.
func LogicalCPUs() int {
	_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...any) {}))
	if n := runtime.GOMAXPROCS(0); n > 0 {
		return n
	}
	return runtime.NumCPU()
}

func (c Config) resolvedWorkerCount() int {
	if c.WorkerCount > 0 {
		return c.WorkerCount
	}
	n := LogicalCPUs() - 1
	if n < 1 {
		n = 1
	}
	return n
}
