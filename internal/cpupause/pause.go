// Package cpupause provides the scheduler's cooperative spin hint.
//
// Go gives no portable CPU PAUSE/YIELD intrinsic without per-arch assembly,
// and nothing in the retrieved corpus embeds one, so the idle-spin loop in
// the worker (see jobgraph's scheduler.go) falls back to runtime.Gosched,
// which lets the Go scheduler run another goroutine on the same P without
// the calling worker goroutine leaving its OS thread.
package cpupause

import "runtime"

// Pause yields the processor for one scheduling quantum. Call it from a busy
// idle-spin loop; never from a lock or from code holding a mutex.
func Pause() {
	runtime.Gosched()
}
