package rcfforest

import (
	"github.com/aws/random-cut-forest-go/lib/rcfpoint"
	"github.com/aws/random-cut-forest-go/lib/rcfrand"
	"github.com/aws/random-cut-forest-go/lib/rcfsampler"
	"github.com/aws/random-cut-forest-go/lib/rcfstore"
	"github.com/aws/random-cut-forest-go/lib/rcftree"
)

// component is one (sampler, tree, point-store) triple of spec.md §4.E.
// Everything hanging off a single component is only ever touched by one
// goroutine at a time, sequential or parallel executor alike; the point
// store's own locking exists for its general contract (spec.md §5), not
// because this package needs it.
type component[P rcfpoint.Precision] struct {
	store   *rcfstore.PointStore[P]
	sampler *rcfsampler.Sampler
	tree    *rcftree.Tree[P]
}

func newComponent[P rcfpoint.Precision](cfg Config, rng *rcfrand.Source, store *rcfstore.PointStore[P]) (*component[P], error) {
	sampler, err := rcfsampler.New(rcfsampler.Config{
		Capacity:              cfg.SampleSize,
		TimeDecay:             cfg.TimeDecay,
		InitialAcceptFraction: cfg.InitialAcceptFraction,
		Rand:                  rng.Derive(),
	})
	if err != nil {
		return nil, err
	}
	tree, err := rcftree.New(store, rcftree.Config{
		Dimensions:               cfg.Dimensions,
		SampleSize:               cfg.SampleSize,
		BoundingBoxCacheFraction: *cfg.BoundingBoxCacheFraction,
		StoreSequenceIndexes:     cfg.StoreSequenceIndexes,
		CenterOfMassEnabled:      cfg.CenterOfMassEnabled,
		Rand:                     rng.Derive(),
	})
	if err != nil {
		return nil, err
	}
	return &component[P]{store: store, sampler: sampler, tree: tree}, nil
}

// update runs the per-component half of the update protocol of spec.md
// §4.E against the provisional index q the Forest already added to the
// shared Point Store: propose to the sampler, and on acceptance insert
// into the tree (evicting and deleting the displaced entry, if any). Any
// failure rolls back this component only — it never bumps q's refcount
// (or undoes q's insert and bump if a later step fails) and never calls Commit —
// leaving the rest of the forest unaffected (spec.md §4.E "Failure
// semantics"). Releasing q back to the store if no component ends up
// referencing it is the Forest's responsibility, once, after every
// component has run (spec.md §4.E update protocol step 3).
func (c *component[P]) update(q rcfstore.PointIndex, seq uint64) error {
	decision, err := c.sampler.Propose(seq)
	if err != nil {
		return err
	}
	if !decision.Accept {
		return nil
	}

	if err := c.store.IncrementRefCount(q); err != nil {
		return err
	}
	if err := c.tree.Insert(q, seq); err != nil {
		_, _ = c.store.DecrementRefCount(q)
		return err
	}

	if decision.Evicted != nil {
		if err := c.tree.Delete(decision.Evicted.PointIndex); err != nil {
			_ = c.tree.Delete(q)
			_, _ = c.store.DecrementRefCount(q)
			return err
		}
		if _, err := c.store.DecrementRefCount(decision.Evicted.PointIndex); err != nil {
			_ = c.tree.Delete(q)
			_, _ = c.store.DecrementRefCount(q)
			return err
		}
	}

	if _, err := c.sampler.Commit(q); err != nil {
		return err
	}
	return nil
}
