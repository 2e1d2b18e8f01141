package rcfvisitor

import (
	"math"

	"github.com/aws/random-cut-forest-go/lib/rcfpoint"
	"github.com/aws/random-cut-forest-go/lib/rcftree"
)

// AttributionVisitor decomposes one tree's anomaly score into a per-
// dimension rcfpoint.DirectionalVector (spec.md §4.D, testable property 8:
// the vector's Sum must equal AnomalyScoreVisitor's Result for the same
// tree and query). It accumulates raw, unscaled depth contributions per
// dimension during the same unwind AnomalyScoreVisitor performs, then
// rescales the whole vector in Result so its sum lands exactly on the
// path-length score rather than on raw depth units.
type AttributionVisitor[P rcfpoint.Precision] struct {
	point      rcfpoint.Point[P]
	sampleSize int

	raw              rcfpoint.DirectionalVector
	probNotSeparated float64
	leafDepth        float64
	dims             int
}

var _ rcftree.Visitor[float64, rcfpoint.DirectionalVector] = (*AttributionVisitor[float64])(nil)

// NewAttributionVisitor returns a visitor for one query against one tree
// holding sampleSize points, with as many dimensions as point has.
func NewAttributionVisitor[P rcfpoint.Precision](point rcfpoint.Point[P], sampleSize int) *AttributionVisitor[P] {
	dims := point.Dims()
	return &AttributionVisitor[P]{
		point:            point,
		sampleSize:       sampleSize,
		raw:              rcfpoint.NewDirectionalVector(dims),
		probNotSeparated: 1,
		dims:             dims,
	}
}

func (v *AttributionVisitor[P]) AcceptLeaf(leaf rcftree.NodeView[P], depth int) {
	v.leafDepth = float64(depth)
	if leaf.Mass > 1 {
		v.leafDepth += math.Log2(float64(leaf.Mass))
	}
}

func (v *AttributionVisitor[P]) Accept(node rcftree.NodeView[P], depth int) {
	merged := node.Box.Merge(v.point)
	outside := merged.SumRanges() - node.Box.SumRanges()
	if outside <= 0 {
		return
	}
	p := outside / merged.SumRanges()
	weight := v.probNotSeparated * p * float64(depth)
	for d := 0; d < v.dims; d++ {
		var added float64
		switch {
		case v.point[d] > node.Box.Max[d]:
			added = float64(v.point[d] - node.Box.Max[d])
		case v.point[d] < node.Box.Min[d]:
			added = float64(node.Box.Min[d] - v.point[d])
		default:
			continue
		}
		share := added / outside
		if v.point[d] > node.Box.Max[d] {
			v.raw.High[d] += weight * share
		} else {
			v.raw.Low[d] += weight * share
		}
	}
	v.probNotSeparated *= 1 - p
}

// Result returns the score-scaled directional vector: the residual
// leaf-depth term (probNotSeparated times the leaf depth) carries no
// directional information and is split evenly across every dimension and
// side so the Sum identity still holds exactly.
func (v *AttributionVisitor[P]) Result() rcfpoint.DirectionalVector {
	residual := v.probNotSeparated * v.leafDepth
	rawTotal := v.raw.Sum() + residual
	score := math.Pow(2, -rawTotal/averagePathLength(v.sampleSize))

	out := rcfpoint.NewDirectionalVector(v.dims)
	if rawTotal > 0 {
		for d := 0; d < v.dims; d++ {
			out.Low[d] = v.raw.Low[d]
			out.High[d] = v.raw.High[d]
		}
		if residual > 0 {
			share := residual / float64(2*v.dims)
			for d := 0; d < v.dims; d++ {
				out.Low[d] += share
				out.High[d] += share
			}
		}
		out.Scale(score / rawTotal)
		return out
	}

	// No directional information at all: the tree is empty, the query's
	// leaf sits at the root with mass 1 (depth and damping both vanish),
	// or all separation happens at the root, whose depth is 0. The score
	// is still nonzero (score == 1), so
	// it is spread evenly across every dimension and side to keep the
	// Sum identity exact.
	share := score / float64(2*v.dims)
	for d := 0; d < v.dims; d++ {
		out.Low[d] = share
		out.High[d] = share
	}
	return out
}
