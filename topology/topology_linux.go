//go:build linux

package topology

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pbnjay/memory"
	"golang.org/x/sys/unix"
)

const sysNodePath = "/sys/devices/system/node"

// discoverPlatform parses /sys/devices/system/node on Linux. Returns nil
// (triggering the single-synthetic-node fallback) when sysfs is missing,
// unreadable, or reports no nodes.
func discoverPlatform(workerCount int) *Topology {
	entries, err := os.ReadDir(sysNodePath)
	if err != nil {
		return nil
	}

	var nodeIDs []int
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "node") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "node"))
		if err != nil {
			continue
		}
		nodeIDs = append(nodeIDs, id)
	}
	if len(nodeIDs) == 0 {
		return nil
	}
	sort.Ints(nodeIDs)

	totalMem := memory.TotalMemory()
	// A true per-node free-memory figure needs numactl/libnuma bindings the
	// corpus doesn't carry; split evenly as a documented simplification
	// (DESIGN.md).
	perNodeMem := totalMem / uint64(len(nodeIDs))

	nodes := make([]Node, 0, len(nodeIDs))
	worker := 0
	for _, id := range nodeIDs {
		cpus := readNodeCPUList(id)
		if len(cpus) == 0 {
			continue
		}
		n := Node{
			ID:               id,
			AvailMemoryBytes: perNodeMem,
			BandwidthScore:   1.0,
			AffinityMask:     cpuListMask(cpus),
		}
		assign := len(cpus)
		if worker+assign > workerCount {
			assign = workerCount - worker
		}
		for i := 0; i < assign && worker < workerCount; i++ {
			n.Workers = append(n.Workers, worker)
			worker++
		}
		nodes = append(nodes, n)
		if worker >= workerCount {
			break
		}
	}
	if len(nodes) == 0 {
		return nil
	}

	// If the caller asked for more workers than detected logical CPUs,
	// distribute the remainder round-robin so every worker still lands on
	// some node.
	for worker < workerCount {
		nodes[worker%len(nodes)].Workers = append(nodes[worker%len(nodes)].Workers, worker)
		worker++
	}

	t := &Topology{Nodes: nodes}
	t.indexWorkers()
	return t
}

func readNodeCPUList(nodeID int) []int {
	path := filepath.Join(sysNodePath, "node"+strconv.Itoa(nodeID), "cpulist")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return parseCPUList(strings.TrimSpace(string(data)))
}

func parseCPUList(s string) []int {
	var out []int
	if s == "" {
		return out
	}
	for _, part := range strings.Split(s, ",") {
		if part == "" {
			continue
		}
		if i := strings.IndexByte(part, '-'); i >= 0 {
			lo, err1 := strconv.Atoi(part[:i])
			hi, err2 := strconv.Atoi(part[i+1:])
			if err1 != nil || err2 != nil {
				continue
			}
			for c := lo; c <= hi; c++ {
				out = append(out, c)
			}
		} else if c, err := strconv.Atoi(part); err == nil {
			out = append(out, c)
		}
	}
	return out
}

func cpuListMask(cpus []int) uint64 {
	var mask uint64
	for _, c := range cpus {
		if c >= 0 && c < 64 {
			mask |= 1 << uint(c)
		}
	}
	return mask
}

// PinCurrentThread sets the calling OS thread's affinity mask and raises its
// scheduling priority, best-effort per spec.md §5/§6: failures here must
// never fail scheduler_init, only degrade locality.
func PinCurrentThread(mask uint64) error {
	var set unix.CPUSet
	for i := 0; i < 64; i++ {
		if mask&(1<<uint(i)) != 0 {
			set.Set(i)
		}
	}
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return err
	}
	// "Time-critical" priority is a Windows concept; the closest POSIX
	// analogue available without CAP_SYS_NICE escalation games is a modest
	// negative nice value.
	_ = unix.Setpriority(unix.PRIO_PROCESS, 0, -10)
	return nil
}
