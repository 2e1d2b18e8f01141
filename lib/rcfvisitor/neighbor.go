package rcfvisitor

import (
	"math"

	"github.com/aws/random-cut-forest-go/lib/rcfpoint"
	"github.com/aws/random-cut-forest-go/lib/rcftree"
)

// Neighbor is one candidate result of a near-neighbor query: the sampled
// point, its Euclidean distance to the query, and (when
// storeSequenceIndexes is enabled) the sequence indexes that landed on its
// leaf, merged across duplicates at the forest level (spec.md §6
// nearNeighborsInSample).
type Neighbor struct {
	Point      []float64
	Distance   float64
	SeqIndexes []uint64
}

// NearNeighborVisitor collects the single leaf reached by one traversal as
// a candidate near neighbor (spec.md §4.D "Near-Neighbor"). The forest
// executor merges candidates gathered this way across every tree, sorts by
// distance, and returns the closest k.
type NearNeighborVisitor[P rcfpoint.Precision] struct {
	point  rcfpoint.Point[P]
	result Neighbor
}

var _ rcftree.Visitor[float64, Neighbor] = (*NearNeighborVisitor[float64])(nil)

// NewNearNeighborVisitor returns a visitor for one query against one tree.
func NewNearNeighborVisitor[P rcfpoint.Precision](point rcfpoint.Point[P]) *NearNeighborVisitor[P] {
	return &NearNeighborVisitor[P]{point: point}
}

func (v *NearNeighborVisitor[P]) AcceptLeaf(leaf rcftree.NodeView[P], depth int) {
	var sumSq float64
	for d := range v.point {
		diff := float64(v.point[d]) - float64(leaf.Box.Min[d])
		sumSq += diff * diff
	}
	v.result = Neighbor{
		Point:      rcfpoint.Point[P](leaf.Box.Min).ToFloat64(),
		Distance:   math.Sqrt(sumSq),
		SeqIndexes: leaf.SeqIndexes,
	}
}

func (v *NearNeighborVisitor[P]) Accept(node rcftree.NodeView[P], depth int) {}

func (v *NearNeighborVisitor[P]) Result() Neighbor { return v.result }
