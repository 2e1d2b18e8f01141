// Package rcfvisitor implements the query-time visitors and ensemble
// accumulators of spec.md §4.D: per-tree folds over one traverse (anomaly
// score, attribution, density, impute, near-neighbor) and the three modes
// that combine per-tree results into a forest-level answer.
package rcfvisitor

import "git.lukeshu.com/go/typedsync"

// Pool hands out reusable visitor instances, the same generic object-pool
// wrapper lib/containers/slicepool.go builds around typedsync.Pool, sized
// here to a per-tree-query "visitor" rather than a byte slice, so a forest
// query doesn't allocate one visitor struct per tree per call.
type Pool[V any] struct {
	inner typedsync.Pool[V]
}

// NewPool builds a Pool whose Get calls newV when empty.
func NewPool[V any](newV func() V) *Pool[V] {
	return &Pool[V]{inner: typedsync.Pool[V]{New: newV}}
}

// Get returns a pooled instance, or a freshly constructed one if the pool
// is empty.
func (p *Pool[V]) Get() V {
	v, _ := p.inner.Get()
	return v
}

// Put returns v to the pool for reuse by a later Get.
func (p *Pool[V]) Put(v V) {
	p.inner.Put(v)
}
