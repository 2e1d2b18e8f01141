package rcfforest

import (
	"context"
	"fmt"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"github.com/aws/random-cut-forest-go/lib/rcfpoint"
	"github.com/aws/random-cut-forest-go/lib/rcfstore"
)

// executor runs the per-component update and query steps of spec.md §4.E,
// sequentially or across a bounded worker pool. Either way, within one
// component the (propose, insert, delete, refcount) order always runs on a
// single goroutine in isolation from every other component. updateAll
// takes the provisional index q the Forest already added to the one
// shared Point Store (spec.md §4.E update protocol step 1) — every
// component proposes against that same q, never adding a point of its
// own.
type executor[P rcfpoint.Precision] interface {
	updateAll(ctx context.Context, components []*component[P], q rcfstore.PointIndex, seq uint64)
	queryAll(ctx context.Context, components []*component[P], fn func(i int, c *component[P]) error)
}

// sequentialExecutor runs every component's step in a plain loop on the
// calling goroutine (spec.md §5 "fully sequential").
type sequentialExecutor[P rcfpoint.Precision] struct{}

func (sequentialExecutor[P]) updateAll(ctx context.Context, components []*component[P], q rcfstore.PointIndex, seq uint64) {
	for i, c := range components {
		if err := c.update(q, seq); err != nil {
			dlog.WithField(ctx, "rcfforest.component", i).Debugf("update rolled back: %v", err)
		}
	}
}

func (sequentialExecutor[P]) queryAll(ctx context.Context, components []*component[P], fn func(i int, c *component[P]) error) {
	for i, c := range components {
		if err := fn(i, c); err != nil {
			dlog.WithField(ctx, "rcfforest.component", i).Debugf("query skipped: %v", err)
		}
	}
}

// parallelExecutor fans each component's step out across a dgroup-managed
// worker pool bounded to threadPoolSize, the same fan-out-and-join shape
// lib/btrfsutil/scan.go's ScanDevices uses for per-device work, and joins
// before returning (spec.md §5's one blocking point, the parallel
// executor's join).
type parallelExecutor[P rcfpoint.Precision] struct {
	threadPoolSize int
}

func (e parallelExecutor[P]) updateAll(ctx context.Context, components []*component[P], q rcfstore.PointIndex, seq uint64) {
	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{})
	sem := make(chan struct{}, e.threadPoolSize)
	for i, c := range components {
		i, c := i, c
		grp.Go(fmt.Sprintf("update-%d", i), func(ctx context.Context) error {
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := c.update(q, seq); err != nil {
				dlog.WithField(ctx, "rcfforest.component", i).Debugf("update rolled back: %v", err)
			}
			return nil
		})
	}
	_ = grp.Wait()
}

func (e parallelExecutor[P]) queryAll(ctx context.Context, components []*component[P], fn func(i int, c *component[P]) error) {
	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{})
	sem := make(chan struct{}, e.threadPoolSize)
	for i, c := range components {
		i, c := i, c
		grp.Go(fmt.Sprintf("query-%d", i), func(ctx context.Context) error {
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := fn(i, c); err != nil {
				dlog.WithField(ctx, "rcfforest.component", i).Debugf("query skipped: %v", err)
			}
			return nil
		})
	}
	_ = grp.Wait()
}
