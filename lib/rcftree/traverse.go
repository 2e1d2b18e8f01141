package rcftree

import (
	"github.com/aws/random-cut-forest-go/lib/containers"
	"github.com/aws/random-cut-forest-go/lib/rcfpoint"
	"github.com/aws/random-cut-forest-go/lib/rcfstore"
)

// newBoxMemo builds a traversal-scoped memo for the bounding box of nodes
// outside the cached fraction, the same read-through-cache shape
// lib/containers/lru.go wraps around github.com/hashicorp/golang-lru: a
// node's box is recomputed from its children at most once per traversal
// instead of once per ancestor that needs it.
func newBoxMemo[P Precision](internalCap int) *containers.LRUCache[NodeRef, rcfpoint.BoundingBox[P]] {
	return containers.NewLRUCache[NodeRef, rcfpoint.BoundingBox[P]](internalCap)
}

// NodeView is the read-only view of a tree node exposed to visitors during
// Traverse: mass, bounding box (cached or recomputed), cut, and (if
// enabled) center of mass (spec.md §4.C "Traversal").
type NodeView[P Precision] struct {
	IsLeaf bool
	Mass   int
	Box    rcfpoint.BoundingBox[P]
	CutDim int
	CutVal P

	CenterOfMass []float64 // nil unless centerOfMassEnabled

	PointIndex rcfstore.PointIndex // meaningful only when IsLeaf
	SeqIndexes []uint64           // meaningful only when IsLeaf and storeSequenceIndexes
}

// Visitor is a stateful fold carried along one root-to-leaf traversal
// (spec.md §4.D).
type Visitor[P Precision, R any] interface {
	AcceptLeaf(leaf NodeView[P], depth int)
	Accept(node NodeView[P], depth int)
	Result() R
}

// Splitter is a Visitor that can additionally fan out across both children
// of a node, for queries like imputation that need more than one
// root-to-leaf path (spec.md §4.D).
type Splitter[P Precision, R any] interface {
	Visitor[P, R]
	ShouldSplit(node NodeView[P]) bool
	NewCopy() Splitter[P, R]
	Combine(other R) R
}

// Traverse descends the canonical root-to-leaf path for point (left iff
// point[d] <= cutVal), calling v.AcceptLeaf at the bottom and then
// v.Accept on each ancestor while unwinding, depth 0 at the root. On an
// empty tree, v.Result() is returned without any calls (spec.md §4.C
// "Failure semantics").
func Traverse[P Precision, R any](t *Tree[P], point rcfpoint.Point[P], v Visitor[P, R]) R {
	if t.root.isNull() {
		return v.Result()
	}
	memo := newBoxMemo[P](t.internals.cap)
	traverseNode(t, t.root, point, v, 0, memo)
	return v.Result()
}

func traverseNode[P Precision, R any](t *Tree[P], ref NodeRef, point rcfpoint.Point[P], v Visitor[P, R], depth int, memo *containers.LRUCache[NodeRef, rcfpoint.BoundingBox[P]]) {
	if ref.isLeaf() {
		v.AcceptLeaf(t.leafView(ref), depth)
		return
	}
	node := t.internals.get(ref.index())
	var child NodeRef
	if point[node.cutDim] <= node.cutVal {
		child = node.left
	} else {
		child = node.right
	}
	traverseNode(t, child, point, v, depth+1, memo)
	v.Accept(t.internalView(ref, memo), depth)
}

// TraverseMulti is Traverse's split-capable counterpart: at any internal
// node where v.ShouldSplit holds, it runs independent copies of v down
// both children and merges their results via v.Combine on the way back up
// (spec.md §4.D, the impute visitor).
func TraverseMulti[P Precision, R any](t *Tree[P], point rcfpoint.Point[P], v Splitter[P, R]) R {
	if t.root.isNull() {
		return v.Result()
	}
	memo := newBoxMemo[P](t.internals.cap)
	traverseMultiNode(t, t.root, point, v, 0, memo)
	return v.Result()
}

func traverseMultiNode[P Precision, R any](t *Tree[P], ref NodeRef, point rcfpoint.Point[P], v Splitter[P, R], depth int, memo *containers.LRUCache[NodeRef, rcfpoint.BoundingBox[P]]) {
	if ref.isLeaf() {
		v.AcceptLeaf(t.leafView(ref), depth)
		return
	}
	view := t.internalView(ref, memo)
	node := t.internals.get(ref.index())

	if v.ShouldSplit(view) {
		left := v.NewCopy()
		right := v.NewCopy()
		traverseMultiNode(t, node.left, point, left, depth+1, memo)
		traverseMultiNode(t, node.right, point, right, depth+1, memo)
		v.Combine(left.Result())
		v.Combine(right.Result())
		v.Accept(view, depth)
		return
	}

	var child NodeRef
	if point[node.cutDim] <= node.cutVal {
		child = node.left
	} else {
		child = node.right
	}
	traverseMultiNode(t, child, point, v, depth+1, memo)
	v.Accept(view, depth)
}

func (t *Tree[P]) leafView(ref NodeRef) NodeView[P] {
	leaf := t.leaves.get(ref.index())
	p, _ := t.store.Get(leaf.point)
	view := NodeView[P]{
		IsLeaf:     true,
		Mass:       leaf.mass,
		Box:        rcfpoint.NewBoundingBox(p),
		PointIndex: leaf.point,
	}
	if t.storeSequenceIndexes {
		view.SeqIndexes = leaf.seqIndexes
	}
	return view
}

func (t *Tree[P]) internalView(ref NodeRef, memo *containers.LRUCache[NodeRef, rcfpoint.BoundingBox[P]]) NodeView[P] {
	node := t.internals.get(ref.index())
	view := NodeView[P]{
		Mass:   node.mass,
		Box:    t.boxOfMemo(ref, memo),
		CutDim: node.cutDim,
		CutVal: node.cutVal,
	}
	if t.centerOfMassEnabled {
		view.CenterOfMass = node.comSum
	}
	return view
}

// boxOfMemo is boxOf's memoized counterpart, used by Traverse/TraverseMulti
// so an uncached node's box is recomputed from its children at most once
// per traversal rather than once per ancestor that asks for it.
func (t *Tree[P]) boxOfMemo(ref NodeRef, memo *containers.LRUCache[NodeRef, rcfpoint.BoundingBox[P]]) rcfpoint.BoundingBox[P] {
	if ref.isLeaf() {
		return t.boxOf(ref)
	}
	node := t.internals.get(ref.index())
	if node.boxCached {
		return node.box
	}
	if b, ok := memo.Get(ref); ok {
		return b
	}
	b := t.boxOfMemo(node.left, memo).Union(t.boxOfMemo(node.right, memo))
	memo.Add(ref, b)
	return b
}
