package rcftree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws/random-cut-forest-go/lib/rcfpoint"
	"github.com/aws/random-cut-forest-go/lib/rcfrand"
	"github.com/aws/random-cut-forest-go/lib/rcfstore"
)

// checkMassAndCut walks every internal node reachable from ref, asserting
// spec.md §8 universal invariants 2 and 3: a node's mass is the sum of its
// children's, and every point under the left child is <= the node's cut on
// the cut dimension while every point under the right child is >.
func checkMassAndCut[P Precision](t *testing.T, tree *Tree[P], ref NodeRef) int {
	t.Helper()
	if ref.isLeaf() {
		return tree.leaves.get(ref.index()).mass
	}
	node := tree.internals.get(ref.index())
	leftMass := checkMassAndCut(t, tree, node.left)
	rightMass := checkMassAndCut(t, tree, node.right)
	assert.Equal(t, node.mass, leftMass+rightMass, "mass must equal sum of children's mass")

	checkCutSide(t, tree, node.left, node.cutDim, node.cutVal, true)
	checkCutSide(t, tree, node.right, node.cutDim, node.cutVal, false)

	if node.boxCached {
		want := tree.boxOf(node.left).Union(tree.boxOf(node.right))
		assert.Equal(t, want, node.box, "a cached box must equal the union of its children's boxes")
	}
	return node.mass
}

func checkCutSide[P Precision](t *testing.T, tree *Tree[P], ref NodeRef, cutDim int, cutVal P, wantLeftOf bool) {
	t.Helper()
	if ref.isLeaf() {
		leaf := tree.leaves.get(ref.index())
		p, err := tree.store.Get(leaf.point)
		require.NoError(t, err)
		if wantLeftOf {
			assert.LessOrEqual(t, p[cutDim], cutVal)
		} else {
			assert.Greater(t, p[cutDim], cutVal)
		}
		return
	}
	node := tree.internals.get(ref.index())
	checkCutSide(t, tree, node.left, cutDim, cutVal, wantLeftOf)
	checkCutSide(t, tree, node.right, cutDim, cutVal, wantLeftOf)
}

func TestInvariantMassAndCutDirectionHoldAfterRandomInserts(t *testing.T) {
	store, err := rcfstore.New[float64](256, 3, 1)
	require.NoError(t, err)
	tree, err := New(store, Config{
		Dimensions:               3,
		SampleSize:               256,
		BoundingBoxCacheFraction: 0.5,
		Rand:                     rcfrand.New(21),
	})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(21))
	for i := 0; i < 200; i++ {
		p := rcfpoint.Point[float64]{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
		idx, err := store.Add(p)
		require.NoError(t, err)
		require.NoError(t, store.IncrementRefCount(idx))
		require.NoError(t, tree.Insert(idx, uint64(i)))

		if !tree.root.isNull() {
			mass := checkMassAndCut(t, tree, tree.root)
			assert.Equal(t, tree.Mass(), mass)
		}
	}
}
