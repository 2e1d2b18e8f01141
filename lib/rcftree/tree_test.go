package rcftree_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws/random-cut-forest-go/lib/rcferrors"
	"github.com/aws/random-cut-forest-go/lib/rcfpoint"
	"github.com/aws/random-cut-forest-go/lib/rcfrand"
	"github.com/aws/random-cut-forest-go/lib/rcfstore"
	"github.com/aws/random-cut-forest-go/lib/rcftree"
)

type sumVisitor struct {
	total int
}

func (v *sumVisitor) AcceptLeaf(leaf rcftree.NodeView[float64], depth int) { v.total += leaf.Mass }
func (v *sumVisitor) Accept(node rcftree.NodeView[float64], depth int)    {}
func (v *sumVisitor) Result() int                                        { return v.total }

func newTestTree(t *testing.T, sampleSize int, boundingBoxCacheFraction float64) (*rcftree.Tree[float64], *rcfstore.PointStore[float64]) {
	t.Helper()
	store, err := rcfstore.New[float64](sampleSize, 2, 1)
	require.NoError(t, err)
	tree, err := rcftree.New(store, rcftree.Config{
		Dimensions:               2,
		SampleSize:               sampleSize,
		BoundingBoxCacheFraction: boundingBoxCacheFraction,
		Rand:                     rcfrand.New(7),
	})
	require.NoError(t, err)
	return tree, store
}

func addPoint(t *testing.T, store *rcfstore.PointStore[float64], x, y float64) rcfstore.PointIndex {
	t.Helper()
	idx, err := store.Add(rcfpoint.Point[float64]{x, y})
	require.NoError(t, err)
	require.NoError(t, store.IncrementRefCount(idx))
	return idx
}

func TestInsertSingleMakesRootLeaf(t *testing.T) {
	tree, store := newTestTree(t, 4, 1.0)
	idx := addPoint(t, store, 1, 2)

	require.NoError(t, tree.Insert(idx, 0))
	assert.Equal(t, 1, tree.Mass())
}

func TestMassEqualsSumOfInserts(t *testing.T) {
	tree, store := newTestTree(t, 16, 1.0)
	pts := [][2]float64{{0, 0}, {1, 1}, {2, 2}, {-1, 3}, {5, 5}}
	for i, p := range pts {
		idx := addPoint(t, store, p[0], p[1])
		require.NoError(t, tree.Insert(idx, uint64(i)))
	}
	assert.Equal(t, len(pts), tree.Mass())
}

func TestDuplicateInsertIncrementsMassWithoutNewNode(t *testing.T) {
	tree, store := newTestTree(t, 16, 1.0)
	idx1 := addPoint(t, store, 3, 3)
	idx2 := addPoint(t, store, 3, 3)

	require.NoError(t, tree.Insert(idx1, 0))
	require.NoError(t, tree.Insert(idx2, 1))

	assert.Equal(t, 2, tree.Mass())
}

func TestDeleteReducesMass(t *testing.T) {
	tree, store := newTestTree(t, 16, 1.0)
	a := addPoint(t, store, 0, 0)
	b := addPoint(t, store, 10, 10)

	require.NoError(t, tree.Insert(a, 0))
	require.NoError(t, tree.Insert(b, 1))
	require.Equal(t, 2, tree.Mass())

	require.NoError(t, tree.Delete(a))
	assert.Equal(t, 1, tree.Mass())
}

func TestDeleteMissingPointFailsNotFound(t *testing.T) {
	tree, store := newTestTree(t, 16, 1.0)
	a := addPoint(t, store, 0, 0)
	require.NoError(t, tree.Insert(a, 0))

	missing := addPoint(t, store, 99, 99)
	err := tree.Delete(missing)
	require.Error(t, err)
	var notFound *rcferrors.NotFound
	require.ErrorAs(t, err, &notFound)
}

func TestDeleteOnEmptyTreeFails(t *testing.T) {
	tree, store := newTestTree(t, 16, 1.0)
	a := addPoint(t, store, 0, 0)
	err := tree.Delete(a)
	require.Error(t, err)
}

func TestTraverseEmptyTreeReturnsInitialResult(t *testing.T) {
	tree, _ := newTestTree(t, 4, 1.0)
	v := &sumVisitor{}
	result := rcftree.Traverse(tree, rcfpoint.Point[float64]{0, 0}, v)
	assert.Equal(t, 0, result)
}

func TestTraverseVisitsEveryAncestor(t *testing.T) {
	tree, store := newTestTree(t, 16, 1.0)
	pts := [][2]float64{{0, 0}, {1, 1}, {2, 2}, {-5, 8}}
	for i, p := range pts {
		idx := addPoint(t, store, p[0], p[1])
		require.NoError(t, tree.Insert(idx, uint64(i)))
	}
	v := &sumVisitor{}
	result := rcftree.Traverse(tree, rcfpoint.Point[float64]{0, 0}, v)
	assert.Greater(t, result, 0)
}

func TestInsertDeleteRoundTripEmptiesTree(t *testing.T) {
	tree, store := newTestTree(t, 16, 0.5)
	idxs := make([]rcfstore.PointIndex, 0, 8)
	for i := 0; i < 8; i++ {
		idx := addPoint(t, store, float64(i), float64(i*i))
		require.NoError(t, tree.Insert(idx, uint64(i)))
		idxs = append(idxs, idx)
	}
	for _, idx := range idxs {
		require.NoError(t, tree.Delete(idx))
	}
	assert.Equal(t, 0, tree.Mass())
	assert.True(t, tree.IsEmpty())
}

