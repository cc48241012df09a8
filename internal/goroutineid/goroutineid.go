// Package goroutineid extracts the calling goroutine's runtime-assigned ID
// by parsing the header line of runtime.Stack — the standard technique
// libraries reach for since the runtime exposes no supported API for it.
// It backs the scheduler's thin "current worker" / "current job" convenience
// layer (spec.md Design Notes: "a thin convenience layer that consults
// thread-local storage to locate the current worker"). The explicit
// *Context passed to every job body is the primary path: Context.Yield and
// Context.Wait never call this. Besides the package-level free functions
// (Yield, Wait, CurrentWorkerID, CurrentJobHandle), the scheduler calls
// Current on every enqueue (to find the calling worker's deque), when a
// worker starts, when a job body starts on a fiber, and in Scheduler.Wait
// and GroupWait.
package goroutineid

import (
	"bytes"
	"runtime"
	"strconv"
)

var goroutinePrefix = []byte("goroutine ")

// Current returns the calling goroutine's runtime ID.
func Current() int64 {
	buf := make([]byte, 64)
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) {
			buf = buf[:n]
			break
		}
		buf = make([]byte, len(buf)*2)
	}
	buf = bytes.TrimPrefix(buf, goroutinePrefix)
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	id, err := strconv.ParseInt(string(buf), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
