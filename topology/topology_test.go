package topology

import (
	"testing"

	"github.com/go-foundations/jobgraph/internal/xorshift"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoNodeTopology() *Topology {
	t := &Topology{
		Nodes: []Node{
			{ID: 0, Workers: []int{0, 1, 2, 3}, BandwidthScore: 1.0, AvailMemoryBytes: 1 << 30},
			{ID: 1, Workers: []int{4, 5, 6, 7}, BandwidthScore: 1.0, AvailMemoryBytes: 1 << 30},
		},
	}
	t.indexWorkers()
	return t
}

func TestSelectVictim_NeverReturnsSelf(t *testing.T) {
	topo := twoNodeTopology()
	rng := xorshift.New(12345)
	for i := 0; i < 10000; i++ {
		v, ok := topo.SelectVictim(3, rng)
		require.True(t, ok)
		assert.NotEqual(t, 3, v)
	}
}

// TestSelectVictim_NUMALocality is property 6 from spec.md §8: over a
// million steal attempts on a balanced 2-node system, at least 60% of
// successful steals must target a worker on the thief's own node.
func TestSelectVictim_NUMALocality(t *testing.T) {
	topo := twoNodeTopology()
	rng := xorshift.New(98765)

	const trials = 1_000_000
	thief := 0
	thiefNode := topo.NodeOf(thief)

	sameNode := 0
	for i := 0; i < trials; i++ {
		v, ok := topo.SelectVictim(thief, rng)
		require.True(t, ok)
		if topo.NodeOf(v) == thiefNode {
			sameNode++
		}
	}

	ratio := float64(sameNode) / float64(trials)
	assert.GreaterOrEqual(t, ratio, 0.60, "expected >=60%% same-node steals, got %.4f", ratio)
}

func TestSelectVictim_SingleWorkerNodeRedistributesLocalTier(t *testing.T) {
	topo := &Topology{
		Nodes: []Node{
			{ID: 0, Workers: []int{0}, BandwidthScore: 1.0},
			{ID: 1, Workers: []int{1, 2, 3}, BandwidthScore: 1.0},
		},
	}
	topo.indexWorkers()

	rng := xorshift.New(555)
	for i := 0; i < 1000; i++ {
		v, ok := topo.SelectVictim(0, rng)
		require.True(t, ok)
		assert.NotEqual(t, 0, v, "thief's own node has no peer, so it must never be returned")
	}
}

func TestSingleNodeFallback(t *testing.T) {
	topo := singleNode(4)
	require.Len(t, topo.Nodes, 1)
	assert.Equal(t, 4, topo.WorkerCount())

	rng := xorshift.New(1)
	for i := 0; i < 100; i++ {
		v, ok := topo.SelectVictim(0, rng)
		require.True(t, ok)
		assert.NotEqual(t, 0, v)
	}
}
