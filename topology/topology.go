// Package topology discovers NUMA nodes (or falls back to one synthetic
// node), maps workers onto them, and implements the three-tier victim
// selection policy (spec.md §4.H). Platform probing is best-effort and
// degrades silently, per spec.md §6's "Environment" clause — there are no
// environment variables to consult, only OS interfaces that may or may not
// be present.
package topology

import (
	"runtime"

	"github.com/pbnjay/memory"
)

// Node is one NUMA domain (or the single synthetic node used when detection
// fails).
type Node struct {
	ID               int
	Workers          []int
	AffinityMask     uint64 // bit i set => logical CPU i is in this node's mask
	AvailMemoryBytes uint64
	BandwidthScore   float64
}

// Topology is the process-wide, read-only-after-init map from workers to
// NUMA nodes (spec.md §5: "Topology tables: written once at init;
// read-only thereafter").
type Topology struct {
	Nodes      []Node
	workerNode []int
}

// Discover builds a Topology for workerCount workers, trying the platform
// probe first and falling back to a single synthetic node covering all of
// them.
func Discover(workerCount int) *Topology {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if t := discoverPlatform(workerCount); t != nil {
		return t
	}
	return singleNode(workerCount)
}

func singleNode(workerCount int) *Topology {
	workers := make([]int, workerCount)
	for i := range workers {
		workers[i] = i
	}
	t := &Topology{
		Nodes: []Node{{
			ID:               0,
			Workers:          workers,
			AvailMemoryBytes: memory.TotalMemory(),
			BandwidthScore:   1.0,
		}},
	}
	t.indexWorkers()
	return t
}

func (t *Topology) indexWorkers() {
	maxWorker := -1
	for _, n := range t.Nodes {
		for _, w := range n.Workers {
			if w > maxWorker {
				maxWorker = w
			}
		}
	}
	t.workerNode = make([]int, maxWorker+1)
	for ni, n := range t.Nodes {
		for _, w := range n.Workers {
			t.workerNode[w] = ni
		}
	}
}

// NodeOf returns the index into Nodes that worker belongs to.
func (t *Topology) NodeOf(worker int) int {
	if worker < 0 || worker >= len(t.workerNode) {
		return 0
	}
	return t.workerNode[worker]
}

// AffinityMask returns the CPU mask of the node worker belongs to, and
// whether that node actually carries platform-derived affinity data (the
// single-synthetic-node fallback has none worth pinning to).
func (t *Topology) AffinityMask(worker int) (uint64, bool) {
	n := t.NodeOf(worker)
	if n < 0 || n >= len(t.Nodes) {
		return 0, false
	}
	mask := t.Nodes[n].AffinityMask
	return mask, mask != 0
}

// WorkerCount returns the total number of workers mapped across all nodes.
func (t *Topology) WorkerCount() int {
	n := 0
	for _, node := range t.Nodes {
		n += len(node.Workers)
	}
	return n
}
