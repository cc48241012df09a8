//go:build jobgraph_production

package jobgraph

// assertPrecondition is a no-op under the jobgraph_production build tag,
// per spec.md §7's "undefined-to-benign in release" treatment.
func assertPrecondition(cond bool, msg string) {}
