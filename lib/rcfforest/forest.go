// Package rcfforest is the forest executor of spec.md §4.E: it owns a list
// of (sampler, tree, point-store) components, routes each stream update
// through them, and aggregates per-tree visitor results into the public
// query surface of spec.md §6.
package rcfforest

import (
	"context"
	"sort"
	"sync"

	"github.com/aws/random-cut-forest-go/lib/rcferrors"
	"github.com/aws/random-cut-forest-go/lib/rcfpoint"
	"github.com/aws/random-cut-forest-go/lib/rcfrand"
	"github.com/aws/random-cut-forest-go/lib/rcfstore"
	"github.com/aws/random-cut-forest-go/lib/rcftree"
	"github.com/aws/random-cut-forest-go/lib/rcfvisitor"
)

// Forest is a streaming Random Cut Forest over points of dimension
// cfg.Dimensions and element type P (spec.md §6 "precision"). Every
// component shares the one Point Store (spec.md §3 "Forest", §5
// "Shared-resource policy") — the Forest owns it and is the only thing
// that ever calls its Add/Release.
type Forest[P rcfpoint.Precision] struct {
	cfg        Config
	store      *rcfstore.PointStore[P]
	components []*component[P]
	exec       executor[P]

	// mu serializes every call into the forest. A tree's bounding-box
	// cache and arena are not safe under a concurrent insert/delete and
	// traversal (spec.md §9 open question 2), so Update and every query
	// method take mu for their whole body rather than leaving that
	// invariant to the caller.
	mu           sync.Mutex
	totalUpdates uint64

	scorePool *rcfvisitor.Pool[*rcfvisitor.AnomalyScoreVisitor[P]]
}

// New validates cfg and builds a Forest with cfg.NumberOfTrees freshly
// seeded components. Every RNG draw the forest ever makes descends from
// cfg.RandomSeed, so (config, seed, input sequence) fully determines
// forest state (spec.md §6).
func New[P rcfpoint.Precision](cfg Config) (*Forest[P], error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// One slot beyond a full set of samples holds the provisional index of
	// an update while every sampler is full.
	store, err := rcfstore.New[P](cfg.NumberOfTrees*cfg.SampleSize+1, cfg.Dimensions, cfg.ShingleSize)
	if err != nil {
		return nil, err
	}

	master := rcfrand.New(cfg.RandomSeed)
	components := make([]*component[P], cfg.NumberOfTrees)
	for i := range components {
		c, err := newComponent[P](cfg, master, store)
		if err != nil {
			return nil, err
		}
		components[i] = c
	}

	var exec executor[P]
	if cfg.ParallelExecutionEnabled {
		exec = parallelExecutor[P]{threadPoolSize: cfg.ThreadPoolSize}
	} else {
		exec = sequentialExecutor[P]{}
	}

	scorePool := rcfvisitor.NewPool(func() *rcfvisitor.AnomalyScoreVisitor[P] {
		return rcfvisitor.NewAnomalyScoreVisitor[P](nil, 0)
	})

	return &Forest[P]{cfg: cfg, store: store, components: components, exec: exec, scorePool: scorePool}, nil
}

// TotalUpdates returns the number of points consumed by Update so far.
func (f *Forest[P]) TotalUpdates() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totalUpdates
}

// ready reports whether more than cfg.OutputAfter updates have been seen;
// query methods return their zero value until then (spec.md §6
// "outputAfter", §8 invariant 9: "before outputAfter updates, anomalyScore
// returns 0" — the outputAfter-th update itself is still "before").
func (f *Forest[P]) ready() bool {
	return f.totalUpdates > uint64(f.cfg.OutputAfter)
}

// Update consumes one stream point, running the update protocol of
// spec.md §4.E: add it once to the shared Point Store to obtain a
// provisional index q, run every component's (propose, insert, delete,
// refcount) step against that same q via the forest's executor, then
// release q back to the store if no component ended up referencing it
// (spec.md §4.E update protocol steps 1-3).
func (f *Forest[P]) Update(ctx context.Context, point rcfpoint.Point[P]) error {
	if point.Dims() != f.cfg.Dimensions {
		return rcferrors.NewBadArgument("rcfforest.Update", "point dimension mismatch")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	q, err := f.store.Add(point)
	if err != nil {
		return err
	}

	seq := f.totalUpdates
	f.exec.updateAll(ctx, f.components, q, seq)
	f.totalUpdates++

	if refs, err := f.store.RefCount(q); err == nil && refs == 0 {
		_ = f.store.Release(q)
	}
	return nil
}

// AnomalyScore returns the ensemble's anomaly score for point: always >= 0,
// 0 until more than cfg.OutputAfter updates have been seen (spec.md §6).
func (f *Forest[P]) AnomalyScore(ctx context.Context, point rcfpoint.Point[P]) (float64, error) {
	if point.Dims() != f.cfg.Dimensions {
		return 0, rcferrors.NewBadArgument("rcfforest.AnomalyScore", "point dimension mismatch")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ready() {
		return 0, nil
	}
	scores := make([]float64, len(f.components))
	f.exec.queryAll(ctx, f.components, func(i int, c *component[P]) error {
		v := f.scorePool.Get()
		v.Reset(point, c.sampler.Capacity())
		scores[i] = rcftree.Traverse[P, float64](c.tree, point, v)
		f.scorePool.Put(v)
		return nil
	})
	acc := rcfvisitor.NewBinaryAccumulator(0.0,
		func(acc, next float64) float64 { return acc + next },
		func(acc float64, n int) float64 {
			if n == 0 {
				return 0
			}
			return acc / float64(n)
		},
	)
	for _, s := range scores {
		acc.Add(s)
	}
	return acc.Result(), nil
}

// AnomalyScoreConverging is the ensemble-mode-3 twin of AnomalyScore
// (spec.md §4.D "Converging accumulator"): it traverses components in
// batches of cfg.ThreadPoolSize (the "workerCount" the spec bases batch
// size on) and, once ccfg's witness test signals convergence, stops
// traversing the remaining trees rather than visiting all
// cfg.NumberOfTrees of them. Useful when NumberOfTrees is large and a
// statistically-confident early estimate is preferable to a full sweep.
func (f *Forest[P]) AnomalyScoreConverging(ctx context.Context, point rcfpoint.Point[P], ccfg rcfvisitor.ConvergingConfig) (float64, error) {
	if point.Dims() != f.cfg.Dimensions {
		return 0, rcferrors.NewBadArgument("rcfforest.AnomalyScoreConverging", "point dimension mismatch")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ready() {
		return 0, nil
	}

	acc := rcfvisitor.NewConvergingAccumulator(ccfg, 0.0,
		func(acc float64) float64 { return acc },
		func(acc, next float64, n int) float64 { return acc + (next-acc)/float64(n) },
	)

	batchSize := f.cfg.ThreadPoolSize
	if batchSize < 1 {
		batchSize = 1
	}
	for start := 0; start < len(f.components) && !acc.Converged(); start += batchSize {
		end := start + batchSize
		if end > len(f.components) {
			end = len(f.components)
		}
		sub := f.components[start:end]
		batch := make([]float64, len(sub))
		f.exec.queryAll(ctx, sub, func(i int, c *component[P]) error {
			v := rcfvisitor.NewAnomalyScoreVisitor[P](point, c.sampler.Capacity())
			batch[i] = rcftree.Traverse[P, float64](c.tree, point, v)
			return nil
		})
		acc.AddBatch(batch)
	}
	return acc.Result(), nil
}

// AnomalyAttribution returns the ensemble's per-dimension directional
// decomposition of AnomalyScore, whose Sum equals AnomalyScore's result
// (spec.md §6, testable property 8).
func (f *Forest[P]) AnomalyAttribution(ctx context.Context, point rcfpoint.Point[P]) (rcfpoint.DirectionalVector, error) {
	if point.Dims() != f.cfg.Dimensions {
		return rcfpoint.DirectionalVector{}, rcferrors.NewBadArgument("rcfforest.AnomalyAttribution", "point dimension mismatch")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ready() {
		return rcfpoint.NewDirectionalVector(f.cfg.Dimensions), nil
	}
	vectors := make([]rcfpoint.DirectionalVector, len(f.components))
	f.exec.queryAll(ctx, f.components, func(i int, c *component[P]) error {
		v := rcfvisitor.NewAttributionVisitor(point, c.sampler.Capacity())
		vectors[i] = rcftree.Traverse[P, rcfpoint.DirectionalVector](c.tree, point, v)
		return nil
	})
	out := rcfpoint.NewDirectionalVector(f.cfg.Dimensions)
	for _, v := range vectors {
		out.Add(v)
	}
	out.Scale(1 / float64(len(f.components)))
	return out, nil
}

// SimpleDensity returns the ensemble's density estimate at point (spec.md
// §6 simpleDensity).
func (f *Forest[P]) SimpleDensity(ctx context.Context, point rcfpoint.Point[P]) (rcfvisitor.DensityResult, error) {
	if point.Dims() != f.cfg.Dimensions {
		return rcfvisitor.DensityResult{}, rcferrors.NewBadArgument("rcfforest.SimpleDensity", "point dimension mismatch")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ready() {
		return rcfvisitor.DensityResult{}, nil
	}
	results := make([]rcfvisitor.DensityResult, len(f.components))
	f.exec.queryAll(ctx, f.components, func(i int, c *component[P]) error {
		v := rcfvisitor.NewDensityVisitor(point)
		results[i] = rcftree.Traverse[P, rcfvisitor.DensityResult](c.tree, point, v)
		return nil
	})
	directional := rcfpoint.NewDirectionalVector(f.cfg.Dimensions)
	var density float64
	for _, r := range results {
		density += r.GetDensity()
		directional.Add(r.GetDirectionalDensity())
	}
	n := float64(len(f.components))
	directional.Scale(1 / n)
	return rcfvisitor.NewDensityResult(density/n, directional), nil
}

// NearNeighborsInSample returns up to k sampled points nearest point,
// ascending by distance, merging sequence indices across any duplicate
// coordinates surfaced by more than one tree (spec.md §6
// nearNeighborsInSample).
func (f *Forest[P]) NearNeighborsInSample(ctx context.Context, point rcfpoint.Point[P], k int) ([]rcfvisitor.Neighbor, error) {
	if point.Dims() != f.cfg.Dimensions {
		return nil, rcferrors.NewBadArgument("rcfforest.NearNeighborsInSample", "point dimension mismatch")
	}
	if k < 0 {
		return nil, rcferrors.NewBadArgument("rcfforest.NearNeighborsInSample", "k must be >= 0")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ready() || k == 0 {
		return nil, nil
	}
	candidates := make([]rcfvisitor.Neighbor, len(f.components))
	f.exec.queryAll(ctx, f.components, func(i int, c *component[P]) error {
		v := rcfvisitor.NewNearNeighborVisitor(point)
		candidates[i] = rcftree.Traverse[P, rcfvisitor.Neighbor](c.tree, point, v)
		return nil
	})

	byPoint := make(map[string]*rcfvisitor.Neighbor, len(candidates))
	order := make([]string, 0, len(candidates))
	for _, cand := range candidates {
		if cand.Point == nil {
			continue // this tree was empty; it contributed no candidate
		}
		key := fmtFloats(cand.Point)
		if existing, ok := byPoint[key]; ok {
			existing.SeqIndexes = mergeSeqIndexes(existing.SeqIndexes, cand.SeqIndexes)
			continue
		}
		c := cand
		byPoint[key] = &c
		order = append(order, key)
	}
	merged := make([]rcfvisitor.Neighbor, 0, len(order))
	for _, key := range order {
		merged = append(merged, *byPoint[key])
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Distance < merged[j].Distance })
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}
