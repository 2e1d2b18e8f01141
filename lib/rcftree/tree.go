// Package rcftree implements the Random Cut Tree (spec.md §4.C): a random
// binary space partition over the point indices currently held by one
// sampler, supporting Insert, Delete, and a visitor-driven Traverse.
//
// Nodes live in two parallel arenas, leaves and internals, addressed by
// small integers the same way lib/containers/rbtree.go addresses nodes by
// pointer but flattened to arena slots (see DESIGN.md); a NodeRef packs the
// arena selector into its top bit so the tree never holds a Go pointer into
// its own node storage, which keeps the whole structure relocatable and
// serializable as plain integer arrays.
package rcftree

import (
	"github.com/aws/random-cut-forest-go/lib/rcferrors"
	"github.com/aws/random-cut-forest-go/lib/rcfpoint"
	"github.com/aws/random-cut-forest-go/lib/rcfrand"
	"github.com/aws/random-cut-forest-go/lib/rcfstore"
)

// Precision is the tree's point element type.
type Precision = rcfpoint.Precision

// NodeRef addresses either a leaf or an internal node. Its top bit selects
// the arena; the remaining bits are an index into that arena's slice.
type NodeRef uint32

const (
	leafBit NodeRef = 1 << 31
	nullRef NodeRef = ^NodeRef(0)
)

func leafRef(i uint32) NodeRef     { return leafBit | NodeRef(i) }
func internalRef(i uint32) NodeRef { return NodeRef(i) }

func (r NodeRef) isLeaf() bool  { return r != nullRef && r&leafBit != 0 }
func (r NodeRef) isNull() bool  { return r == nullRef }
func (r NodeRef) index() uint32 { return uint32(r &^ leafBit) }

type leafNode struct {
	parent NodeRef
	point  rcfstore.PointIndex
	mass   int
	// seqIndexes is the multiset of sequence indices that landed on this
	// leaf, oldest first; only populated when storeSequenceIndexes is set.
	seqIndexes []uint64
}

type internalNode[P Precision] struct {
	parent      NodeRef
	left, right NodeRef
	cutDim      int
	cutVal      P
	mass        int
	box         rcfpoint.BoundingBox[P]
	boxCached   bool
	comSum      []float64 // running Σ point, only when centerOfMassEnabled
}

// arena is a small freelist-backed slice, the same shape rcfstore.PointStore
// uses for its slot table, specialized here to tree nodes rather than point
// storage.
type arena[T any] struct {
	slots []T
	free  []uint32
	cap   int
}

func newArena[T any](capacity int) arena[T] {
	return arena[T]{slots: make([]T, 0, capacity), cap: capacity}
}

func (a *arena[T]) alloc(v T) (uint32, error) {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[idx] = v
		return idx, nil
	}
	if len(a.slots) >= a.cap {
		return 0, &rcferrors.CapacityExceeded{Op: "rcftree.arena.alloc"}
	}
	a.slots = append(a.slots, v)
	return uint32(len(a.slots) - 1), nil
}

func (a *arena[T]) release(i uint32) {
	var zero T
	a.slots[i] = zero
	a.free = append(a.free, i)
}

func (a *arena[T]) get(i uint32) *T { return &a.slots[i] }

// Config bundles a Tree's construction parameters.
type Config struct {
	Dimensions               int
	SampleSize               int
	BoundingBoxCacheFraction float64
	StoreSequenceIndexes     bool
	CenterOfMassEnabled      bool
	Rand                     *rcfrand.Source
}

// Tree is a single component tree, sharing a Point Store with its sibling
// trees in a forest.
type Tree[P Precision] struct {
	dims                     int
	boundingBoxCacheFraction float64
	storeSequenceIndexes     bool
	centerOfMassEnabled      bool

	store *rcfstore.PointStore[P]
	rng   *rcfrand.Source

	leaves    arena[leafNode]
	internals arena[internalNode[P]]

	root NodeRef
	mass int
}

// New builds an empty Tree whose arenas are sized for up to SampleSize+1
// leaves and SampleSize internal nodes: a full sample (spec.md §3 "Tree
// Node" invariant) plus the point an update inserts before it deletes the
// evicted one.
func New[P Precision](store *rcfstore.PointStore[P], cfg Config) (*Tree[P], error) {
	if cfg.Dimensions <= 0 {
		return nil, rcferrors.NewBadArgument("rcftree.New", "dimensions must be >= 1")
	}
	if cfg.SampleSize <= 0 {
		return nil, rcferrors.NewBadArgument("rcftree.New", "sampleSize must be >= 1")
	}
	if cfg.BoundingBoxCacheFraction < 0 || cfg.BoundingBoxCacheFraction > 1 {
		return nil, rcferrors.NewBadArgument("rcftree.New", "boundingBoxCacheFraction must be in [0,1]")
	}
	if cfg.Rand == nil {
		return nil, rcferrors.NewBadArgument("rcftree.New", "Rand must not be nil")
	}
	if store == nil {
		return nil, rcferrors.NewBadArgument("rcftree.New", "store must not be nil")
	}
	internalCap := cfg.SampleSize
	if internalCap < 1 {
		internalCap = 1
	}
	return &Tree[P]{
		dims:                     cfg.Dimensions,
		boundingBoxCacheFraction: cfg.BoundingBoxCacheFraction,
		storeSequenceIndexes:     cfg.StoreSequenceIndexes,
		centerOfMassEnabled:      cfg.CenterOfMassEnabled,
		store:                    store,
		rng:                      cfg.Rand,
		leaves:                   newArena[leafNode](cfg.SampleSize + 1),
		internals:                newArena[internalNode[P]](internalCap),
		root:                     nullRef,
	}, nil
}

// Mass returns mass(root), equal to the size of the corresponding sampler
// (spec.md testable property 1).
func (t *Tree[P]) Mass() int { return t.mass }

// IsEmpty reports whether the tree holds no points.
func (t *Tree[P]) IsEmpty() bool { return t.root.isNull() }

// randomCut draws a cut over box using the weighted-dimension, uniform-value
// method of spec.md §4.C "Random Cut": a dimension is chosen with
// probability proportional to its range, then a value uniform within that
// dimension's range.
func randomCut[P Precision](rng *rcfrand.Source, box rcfpoint.BoundingBox[P]) (dim int, val P) {
	total := box.SumRanges()
	if total <= 0 {
		// Degenerate (single-point) box: every range is zero; fall back to
		// dimension 0, value equal to the (shared) coordinate.
		return 0, box.Min[0]
	}
	u := rng.Uniform(0, total)
	var prefix float64
	d := box.Dims() - 1
	for i := 0; i < box.Dims(); i++ {
		r := float64(box.Range(i))
		if r <= 0 {
			continue
		}
		prefix += r
		if prefix >= u {
			d = i
			break
		}
	}
	v := rng.Uniform(float64(box.Min[d]), float64(box.Max[d]))
	return d, P(v)
}

// Insert adds PointIndex q (whose coordinates come from the shared Point
// Store) to the tree, recording seq in the leaf's sequence-index multiset
// when storeSequenceIndexes is enabled (spec.md §4.C "Insertion", §6).
func (t *Tree[P]) Insert(q rcfstore.PointIndex, seq uint64) error {
	p, err := t.store.Get(q)
	if err != nil {
		return err
	}

	if t.root.isNull() {
		ref, err := t.newLeaf(q, seq)
		if err != nil {
			return err
		}
		t.root = ref
		t.mass = 1
		return nil
	}

	newRoot, err := t.insertAt(t.root, nullRef, p, q, seq)
	if err != nil {
		return err
	}
	t.root = newRoot
	t.mass++
	return nil
}

// insertAt descends from ref looking for where q separates from the
// existing structure, returning the (possibly new) subtree that should
// replace ref in its parent.
func (t *Tree[P]) insertAt(ref, parent NodeRef, p rcfpoint.Point[P], q rcfstore.PointIndex, seq uint64) (NodeRef, error) {
	if ref.isLeaf() {
		return t.insertAtLeaf(ref, parent, p, q, seq)
	}

	node := t.internals.get(ref.index())
	box := t.boxOf(ref)
	merged := box.Merge(p)
	cutDim, cutVal := randomCut(t.rng, merged)

	if float64(cutVal) < float64(box.Min[cutDim]) || float64(cutVal) > float64(box.Max[cutDim]) {
		// The candidate cut falls strictly outside the node's existing box:
		// separate here, replacing ref with a new internal node.
		return t.separate(ref, box, p, q, seq, cutDim, cutVal)
	}

	// No separation: descend along the node's own existing cut, not the
	// freshly-drawn candidate above (that candidate was only a separation
	// test; p's side of this node was already decided when the node was
	// created, spec.md §4.C "Insertion").
	var childRef NodeRef
	if p[node.cutDim] <= node.cutVal {
		childRef = node.left
	} else {
		childRef = node.right
	}
	newChild, err := t.insertAt(childRef, ref, p, q, seq)
	if err != nil {
		return ref, err
	}
	if p[node.cutDim] <= node.cutVal {
		node.left = newChild
	} else {
		node.right = newChild
	}
	node.mass++
	if node.boxCached {
		node.box = node.box.Merge(p)
	}
	if t.centerOfMassEnabled {
		addInto(node.comSum, p)
	}
	return ref, nil
}

func (t *Tree[P]) insertAtLeaf(ref, parent NodeRef, p rcfpoint.Point[P], q rcfstore.PointIndex, seq uint64) (NodeRef, error) {
	leaf := t.leaves.get(ref.index())
	equal, err := t.store.PointEquals(leaf.point, p)
	if err != nil {
		return ref, err
	}
	if equal {
		leaf.mass++
		if t.storeSequenceIndexes {
			leaf.seqIndexes = append(leaf.seqIndexes, seq)
		}
		return ref, nil
	}

	existing, err := t.store.Get(leaf.point)
	if err != nil {
		return ref, err
	}
	box := rcfpoint.NewBoundingBox(existing)
	return t.separate(ref, box, p, q, seq, -1, 0)
}

// separate creates a new internal node replacing existingRef, whose two
// children are the existing subtree (with known box existingBox) and a
// fresh leaf for q. If cutDim < 0, a fresh cut is drawn from the union box
// of the two points (the leaf-vs-leaf case); otherwise (cutDim, cutVal) is
// the candidate cut already drawn against the merged box, known to fall
// outside existingBox.
func (t *Tree[P]) separate(existingRef NodeRef, existingBox rcfpoint.BoundingBox[P], p rcfpoint.Point[P], q rcfstore.PointIndex, seq uint64, cutDim int, cutVal P) (NodeRef, error) {
	newLeafRef, err := t.newLeaf(q, seq)
	if err != nil {
		return existingRef, err
	}

	pointBox := rcfpoint.NewBoundingBox(p)

	if cutDim < 0 {
		cutDim, cutVal = randomCut(t.rng, existingBox.Union(pointBox))
	}

	var left, right NodeRef
	var leftBox, rightBox rcfpoint.BoundingBox[P]
	if p[cutDim] <= cutVal {
		left, leftBox = newLeafRef, pointBox
		right, rightBox = existingRef, existingBox
	} else {
		left, leftBox = existingRef, existingBox
		right, rightBox = newLeafRef, pointBox
	}

	existingMass := t.massOf(existingRef)
	// The new node takes existingRef's place, so it inherits existingRef's
	// parent; setParent below then repoints existingRef at the new node.
	var parent NodeRef
	if existingRef.isLeaf() {
		parent = t.leaves.get(existingRef.index()).parent
	} else {
		parent = t.internals.get(existingRef.index()).parent
	}
	node := internalNode[P]{
		parent: parent,
		left:   left,
		right:  right,
		cutDim: cutDim,
		cutVal: cutVal,
		mass:   existingMass + 1,
	}
	if t.shouldCacheBox() {
		node.box = leftBox.Union(rightBox)
		node.boxCached = true
	}
	if t.centerOfMassEnabled {
		node.comSum = make([]float64, t.dims)
		addSlice(node.comSum, t.comSumOf(existingRef))
		addInto(node.comSum, p)
	}

	idx, err := t.internals.alloc(node)
	if err != nil {
		return existingRef, err
	}
	newRef := internalRef(idx)

	t.setParent(left, newRef)
	t.setParent(right, newRef)
	return newRef, nil
}

func (t *Tree[P]) newLeaf(q rcfstore.PointIndex, seq uint64) (NodeRef, error) {
	leaf := leafNode{point: q, mass: 1, parent: nullRef}
	if t.storeSequenceIndexes {
		leaf.seqIndexes = []uint64{seq}
	}
	idx, err := t.leaves.alloc(leaf)
	if err != nil {
		return nullRef, err
	}
	return leafRef(idx), nil
}

func (t *Tree[P]) setParent(ref, parent NodeRef) {
	if ref.isLeaf() {
		t.leaves.get(ref.index()).parent = parent
	} else {
		t.internals.get(ref.index()).parent = parent
	}
}

func (t *Tree[P]) massOf(ref NodeRef) int {
	if ref.isLeaf() {
		return t.leaves.get(ref.index()).mass
	}
	return t.internals.get(ref.index()).mass
}

// shouldCacheBox decides, once per internal-node creation, whether this
// node starts with a cached box that Insert keeps up to date: a
// deterministic draw from the tree's own RNG against
// boundingBoxCacheFraction (spec.md §4.C). A Delete below the node drops
// the cache for good; boxOf recomputes it from the children from then on.
func (t *Tree[P]) shouldCacheBox() bool {
	if t.boundingBoxCacheFraction >= 1 {
		return true
	}
	if t.boundingBoxCacheFraction <= 0 {
		return false
	}
	return t.rng.Float64() < t.boundingBoxCacheFraction
}

// boxOf returns ref's bounding box, from the cache if present and otherwise
// by recomputing bottom-up from its children. Used both by Insert's descent
// and by Traverse.
func (t *Tree[P]) boxOf(ref NodeRef) rcfpoint.BoundingBox[P] {
	if ref.isLeaf() {
		leaf := t.leaves.get(ref.index())
		p, err := t.store.Get(leaf.point)
		if err != nil {
			return rcfpoint.BoundingBox[P]{}
		}
		return rcfpoint.NewBoundingBox(p)
	}
	node := t.internals.get(ref.index())
	if node.boxCached {
		return node.box
	}
	return t.boxOf(node.left).Union(t.boxOf(node.right))
}

// addInto widens p to float64 and accumulates it into sum in place.
func addInto[P Precision](sum []float64, p rcfpoint.Point[P]) {
	for d := range sum {
		sum[d] += float64(p[d])
	}
}

// addSlice accumulates src into dst in place.
func addSlice(dst, src []float64) {
	for d := range dst {
		dst[d] += src[d]
	}
}

// comSumOf returns ref's running point-sum: for a leaf, its coordinates
// scaled by mass (so collapsed duplicates still weigh correctly); for an
// internal node, its maintained running sum.
func (t *Tree[P]) comSumOf(ref NodeRef) []float64 {
	if ref.isLeaf() {
		leaf := t.leaves.get(ref.index())
		p, err := t.store.Get(leaf.point)
		sum := make([]float64, t.dims)
		if err != nil {
			return sum
		}
		for d := range sum {
			sum[d] = float64(p[d]) * float64(leaf.mass)
		}
		return sum
	}
	return t.internals.get(ref.index()).comSum
}

// Delete removes one occurrence of PointIndex q (descended to purely by its
// coordinates, so any index whose point-store value matches the leaf it
// reaches is accepted; spec.md §4.C "Deletion"). Fails with NotFound if the
// geometric descent does not reach a leaf whose value equals q's.
func (t *Tree[P]) Delete(q rcfstore.PointIndex) error {
	p, err := t.store.Get(q)
	if err != nil {
		return err
	}
	if t.root.isNull() {
		return &rcferrors.NotFound{Op: "rcftree.Delete", Index: uint32(q)}
	}

	leafRefFound, err := t.descendToLeaf(t.root, p)
	if err != nil {
		return err
	}
	leaf := t.leaves.get(leafRefFound.index())
	equal, err := t.store.PointEquals(leaf.point, p)
	if err != nil {
		return err
	}
	if !equal {
		return &rcferrors.NotFound{Op: "rcftree.Delete", Index: uint32(q)}
	}

	leaf.mass--
	if t.storeSequenceIndexes && len(leaf.seqIndexes) > 0 {
		// Remove exactly the oldest recorded sequence index, not the whole
		// multiset (open question, resolved in DESIGN.md).
		leaf.seqIndexes = leaf.seqIndexes[1:]
	}
	t.mass--
	if leaf.mass > 0 {
		t.decrementAncestorMass(leaf.parent, p)
		return nil
	}

	t.spliceOut(leafRefFound, leaf.parent, p)
	return nil
}

func (t *Tree[P]) descendToLeaf(ref NodeRef, p rcfpoint.Point[P]) (NodeRef, error) {
	for !ref.isLeaf() {
		node := t.internals.get(ref.index())
		if p[node.cutDim] <= node.cutVal {
			ref = node.left
		} else {
			ref = node.right
		}
		if ref.isNull() {
			return nullRef, &rcferrors.NotFound{Op: "rcftree.Delete"}
		}
	}
	return ref, nil
}

// decrementAncestorMass walks from parent to root decrementing mass and
// invalidating any cached box, used when a duplicate leaf collapses without
// being spliced out.
func (t *Tree[P]) decrementAncestorMass(ref NodeRef, p rcfpoint.Point[P]) {
	for !ref.isNull() {
		node := t.internals.get(ref.index())
		node.mass--
		node.boxCached = false
		if t.centerOfMassEnabled {
			subInto(node.comSum, p)
		}
		ref = node.parent
	}
}

// subInto is the inverse of addInto, used when unwinding a deletion.
func subInto[P Precision](sum []float64, p rcfpoint.Point[P]) {
	for d := range sum {
		sum[d] -= float64(p[d])
	}
}

// spliceOut removes a zero-mass leaf from the tree, promoting its sibling
// into the grandparent's slot and releasing the leaf and its former parent
// back to their arenas (spec.md §4.C "Deletion" step 3-4).
func (t *Tree[P]) spliceOut(leaf, parent NodeRef, p rcfpoint.Point[P]) {
	if parent.isNull() {
		// The deleted leaf was the whole tree.
		t.leaves.release(leaf.index())
		t.root = nullRef
		return
	}

	parentNode := t.internals.get(parent.index())
	var sibling NodeRef
	if parentNode.left == leaf {
		sibling = parentNode.right
	} else {
		sibling = parentNode.left
	}

	grandparent := parentNode.parent
	t.setParent(sibling, grandparent)

	if grandparent.isNull() {
		t.root = sibling
	} else {
		gp := t.internals.get(grandparent.index())
		if gp.left == parent {
			gp.left = sibling
		} else {
			gp.right = sibling
		}
	}

	t.leaves.release(leaf.index())
	t.internals.release(parent.index())

	// Invalidate cached boxes and decrement mass up from the grandparent;
	// the spliced-out leaf's own contribution is already gone because
	// sibling's mass already excludes it.
	ref := grandparent
	for !ref.isNull() {
		node := t.internals.get(ref.index())
		node.mass = t.massOf(node.left) + t.massOf(node.right)
		node.boxCached = false
		if t.centerOfMassEnabled {
			subInto(node.comSum, p)
		}
		ref = node.parent
	}
}
