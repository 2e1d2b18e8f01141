package rcfvisitor

import (
	"math"

	"github.com/aws/random-cut-forest-go/lib/rcfpoint"
	"github.com/aws/random-cut-forest-go/lib/rcftree"
)

// eulerGamma is the Euler-Mascheroni constant used by averagePathLength's
// harmonic-number approximation.
const eulerGamma = 0.5772156649015329

// averagePathLength is the expected depth at which a point is isolated in a
// tree built over n points, the normalizing constant c(n) standard to
// path-length anomaly scoring (spec.md §4.D "scoring functions").
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 1
	}
	nf := float64(n)
	return 2*(math.Log(nf-1)+eulerGamma) - 2*(nf-1)/nf
}

// separationProbability is the geometric analogue of the tree's Random Cut
// draw (rcftree's randomCut): the probability that a single random cut over
// box merged with point would separate point from everything already in
// box. It is 0 when point falls inside box on every dimension.
func separationProbability[P rcfpoint.Precision](box rcfpoint.BoundingBox[P], point rcfpoint.Point[P]) float64 {
	merged := box.Merge(point)
	total := merged.SumRanges()
	if total <= 0 {
		return 0
	}
	return (total - box.SumRanges()) / total
}

// AnomalyScoreVisitor computes one tree's contribution to spec.md §4.D's
// anomaly score: the expected depth at which point would have been
// separated from the sample, folded through averagePathLength into a score
// where larger means more anomalous.
//
// The expectation is taken over where, walking from the leaf back to the
// root, the point would first have separated: at each ancestor, Accept
// weighs that ancestor's depth by the probability the point separates
// there, conditioned on not having separated at any deeper ancestor
// already visited. Mass-duplicated leaves are damped per spec.md's
// point-equals-leaf handling by treating a leaf of mass m as if log2(m)
// extra levels stood between it and its parent.
type AnomalyScoreVisitor[P rcfpoint.Precision] struct {
	point      rcfpoint.Point[P]
	sampleSize int

	expectedDepth    float64
	probNotSeparated float64
	leafDepth        float64
}

var _ rcftree.Visitor[float64, float64] = (*AnomalyScoreVisitor[float64])(nil)

// NewAnomalyScoreVisitor returns a visitor for one query against one tree
// holding sampleSize points.
func NewAnomalyScoreVisitor[P rcfpoint.Precision](point rcfpoint.Point[P], sampleSize int) *AnomalyScoreVisitor[P] {
	return &AnomalyScoreVisitor[P]{point: point, sampleSize: sampleSize, probNotSeparated: 1}
}

// Reset reinitializes v for reuse against a new query point, as done by a
// pooled visitor between forest queries.
func (v *AnomalyScoreVisitor[P]) Reset(point rcfpoint.Point[P], sampleSize int) {
	v.point = point
	v.sampleSize = sampleSize
	v.expectedDepth = 0
	v.probNotSeparated = 1
	v.leafDepth = 0
}

func (v *AnomalyScoreVisitor[P]) AcceptLeaf(leaf rcftree.NodeView[P], depth int) {
	v.leafDepth = float64(depth)
	if leaf.Mass > 1 {
		v.leafDepth += math.Log2(float64(leaf.Mass))
	}
}

func (v *AnomalyScoreVisitor[P]) Accept(node rcftree.NodeView[P], depth int) {
	p := separationProbability(node.Box, v.point)
	v.expectedDepth += v.probNotSeparated * p * float64(depth)
	v.probNotSeparated *= 1 - p
}

// Result returns 2^(-E[depth]/c(n)): close to 0.5 for an in-distribution
// point, growing above it the shallower the point would separate.
func (v *AnomalyScoreVisitor[P]) Result() float64 {
	total := v.expectedDepth + v.probNotSeparated*v.leafDepth
	return math.Pow(2, -total/averagePathLength(v.sampleSize))
}
