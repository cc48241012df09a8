package profiler

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_RecordAndDrain(t *testing.T) {
	r := New(8)
	r.RecordJob(1, 2, 0, "a")
	r.RecordJob(3, 4, 1, "b")

	entries := r.Drain()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Name)
	assert.Equal(t, "b", entries[1].Name)
}

func TestRing_DropsOnOverflow(t *testing.T) {
	r := New(4)
	for i := 0; i < 10; i++ {
		r.RecordJob(int64(i), int64(i)+1, 0, "job")
	}
	entries := r.Drain()
	assert.LessOrEqual(t, len(entries), 4)
	assert.Equal(t, 4, r.Cap())
}

func TestRing_ConcurrentRecordersDoNotPanic(t *testing.T) {
	r := New(1024)
	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(worker int32) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				r.RecordJob(int64(i), int64(i)+1, worker, "job")
			}
		}(int32(w))
	}
	wg.Wait()
	assert.Equal(t, 1024, r.Len())
}

func TestRing_FrameStartEnd(t *testing.T) {
	r := New(8)
	r.FrameStart()
	r.RecordJob(0, 1, 0, "x")
	entries := r.FrameEnd()
	assert.Len(t, entries, 1)
}
