package rcfvisitor

import (
	"github.com/aws/random-cut-forest-go/lib/rcfpoint"
	"github.com/aws/random-cut-forest-go/lib/rcftree"
)

// DensityResult is one tree's density estimate at a query point: a scalar
// density plus its per-dimension, directional split (spec.md §6
// simpleDensity / getDensity / getDirectionalDensity).
type DensityResult struct {
	density     float64
	directional rcfpoint.DirectionalVector
}

// GetDensity returns the scalar density estimate.
func (r DensityResult) GetDensity() float64 { return r.density }

// GetDirectionalDensity returns the per-dimension, directional split of the
// density estimate.
func (r DensityResult) GetDirectionalDensity() rcfpoint.DirectionalVector { return r.directional }

// NewDensityResult builds a DensityResult from an already-combined density
// and directional vector, for the forest executor's ensemble average.
func NewDensityResult(density float64, directional rcfpoint.DirectionalVector) DensityResult {
	return DensityResult{density: density, directional: directional}
}

// DensityVisitor estimates the sample density around a query point using
// the "shadow box" spec.md §4.D describes: the leaf's immediate parent box
// stands in for the local neighborhood, and the leaf's mass divided by one
// plus the sum of that box's side lengths gives a mass-per-size estimate. Only the first ancestor
// above the leaf is used; deeper ancestors describe increasingly distant
// neighborhoods and don't sharpen a local estimate.
type DensityVisitor[P rcfpoint.Precision] struct {
	point    rcfpoint.Point[P]
	dims     int
	leafMass int
	captured bool
	result   DensityResult
}

var _ rcftree.Visitor[float64, DensityResult] = (*DensityVisitor[float64])(nil)

// NewDensityVisitor returns a visitor for one query against one tree.
func NewDensityVisitor[P rcfpoint.Precision](point rcfpoint.Point[P]) *DensityVisitor[P] {
	dims := point.Dims()
	return &DensityVisitor[P]{point: point, dims: dims, result: DensityResult{directional: rcfpoint.NewDirectionalVector(dims)}}
}

func (v *DensityVisitor[P]) AcceptLeaf(leaf rcftree.NodeView[P], depth int) {
	v.leafMass = leaf.Mass
}

func (v *DensityVisitor[P]) Accept(node rcftree.NodeView[P], depth int) {
	if v.captured {
		return
	}
	v.captured = true

	volume := node.Box.SumRanges()
	density := float64(v.leafMass) / (1 + volume)
	v.result.density = density

	for d := 0; d < v.dims; d++ {
		mid := (float64(node.Box.Min[d]) + float64(node.Box.Max[d])) / 2
		if float64(v.point[d]) <= mid {
			v.result.directional.Low[d] = density
		} else {
			v.result.directional.High[d] = density
		}
	}
}

func (v *DensityVisitor[P]) Result() DensityResult {
	return v.result
}
