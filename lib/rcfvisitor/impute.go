package rcfvisitor

import (
	"github.com/aws/random-cut-forest-go/lib/rcfpoint"
	"github.com/aws/random-cut-forest-go/lib/rcftree"
)

// ImputeCandidate is one fully-filled-in candidate point produced by
// ImputeVisitor, together with the plausibility score used to pick a
// winner when two candidate branches are merged.
type ImputeCandidate[P rcfpoint.Precision] struct {
	Point rcfpoint.Point[P]
	Score float64
	valid bool
}

// ImputeVisitor is spec.md §4.D's multi-visitor: it fills the dimensions
// named by missing from the leaf it reaches, splitting at any internal
// node whose cut dimension is one of them (since the canonical left/right
// choice there is undefined without that coordinate), and keeping the
// lower-scoring of the two resulting branches on merge.
//
// Score is the depth at which a candidate's leaf was reached, negated: a
// deeper leaf was reached only by surviving more real (non-missing-
// dimension) cuts, so it sits in a more specific, better-supported region
// of the sample than a shallow one, and is preferred by Combine's
// lower-score-wins rule.
type ImputeVisitor[P rcfpoint.Precision] struct {
	point   rcfpoint.Point[P]
	missing []bool
	best    ImputeCandidate[P]
}

var _ rcftree.Splitter[float64, ImputeCandidate[float64]] = (*ImputeVisitor[float64])(nil)

// NewImputeVisitor returns a visitor that fills in the dimensions flagged
// true in missing, starting from point (whose values at missing
// dimensions are ignored).
func NewImputeVisitor[P rcfpoint.Precision](point rcfpoint.Point[P], missing []bool) *ImputeVisitor[P] {
	return &ImputeVisitor[P]{point: point, missing: missing}
}

func (v *ImputeVisitor[P]) AcceptLeaf(leaf rcftree.NodeView[P], depth int) {
	candidate := v.point.Clone()
	for d, miss := range v.missing {
		if miss {
			candidate[d] = leaf.Box.Min[d]
		}
	}
	v.best = ImputeCandidate[P]{Point: candidate, Score: -float64(depth), valid: true}
}

func (v *ImputeVisitor[P]) Accept(node rcftree.NodeView[P], depth int) {}

func (v *ImputeVisitor[P]) Result() ImputeCandidate[P] { return v.best }

func (v *ImputeVisitor[P]) ShouldSplit(node rcftree.NodeView[P]) bool {
	return v.missing[node.CutDim]
}

func (v *ImputeVisitor[P]) NewCopy() rcftree.Splitter[P, ImputeCandidate[P]] {
	missing := make([]bool, len(v.missing))
	copy(missing, v.missing)
	return &ImputeVisitor[P]{point: v.point.Clone(), missing: missing}
}

func (v *ImputeVisitor[P]) Combine(other ImputeCandidate[P]) ImputeCandidate[P] {
	if !v.best.valid || (other.valid && other.Score < v.best.Score) {
		v.best = other
	}
	return v.best
}
