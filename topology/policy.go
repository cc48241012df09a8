package topology

import "github.com/go-foundations/jobgraph/internal/xorshift"

// SelectVictim picks a worker for thief to try to steal from, following the
// three-tier rule of spec.md §4.H:
//   - 0.70 probability: a random worker on thief's own node.
//   - 0.25 probability: a random worker on the remote node with the
//     highest estimated bandwidth.
//   - 0.05 probability: a random worker on any other node.
//
// When thief's node has only one worker, the local tier's probability mass
// is redistributed to the other two (kept at their relative 25:5 = 5:1
// ratio). SelectVictim never returns thief itself.
func (t *Topology) SelectVictim(thief int, rng *xorshift.State) (int, bool) {
	node := t.NodeOf(thief)
	local := t.Nodes[node]

	localP, remoteP := 0.70, 0.25
	if len(local.Workers) <= 1 {
		localP, remoteP = 0.0, 25.0/30.0
	}

	roll := rng.Float64()
	switch {
	case roll < localP:
		if w, ok := randomOtherWorker(local, thief, rng); ok {
			return w, true
		}
	case roll < localP+remoteP:
		if rn := t.bestRemoteNode(node); rn >= 0 {
			if w, ok := randomOtherWorker(t.Nodes[rn], thief, rng); ok {
				return w, true
			}
		}
	}
	return t.randomAnyOtherNodeWorker(node, thief, rng)
}

func (t *Topology) bestRemoteNode(exclude int) int {
	best := -1
	var bestScore float64
	for i, n := range t.Nodes {
		if i == exclude || len(n.Workers) == 0 {
			continue
		}
		if best == -1 || n.BandwidthScore > bestScore {
			best, bestScore = i, n.BandwidthScore
		}
	}
	return best
}

func randomOtherWorker(n Node, exclude int, rng *xorshift.State) (int, bool) {
	candidates := make([]int, 0, len(n.Workers))
	for _, w := range n.Workers {
		if w != exclude {
			candidates = append(candidates, w)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}
	return candidates[rng.Intn(len(candidates))], true
}

func (t *Topology) randomAnyOtherNodeWorker(excludeNode, excludeWorker int, rng *xorshift.State) (int, bool) {
	candidates := make([]int, 0)
	for i, n := range t.Nodes {
		if i == excludeNode {
			continue
		}
		candidates = append(candidates, n.Workers...)
	}
	if len(candidates) == 0 {
		// Single-node topology: nothing remote exists, so fall back to any
		// other worker on the same node rather than returning none.
		return randomOtherWorker(t.Nodes[excludeNode], excludeWorker, rng)
	}
	return candidates[rng.Intn(len(candidates))], true
}
