package rcfpoint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws/random-cut-forest-go/lib/rcfpoint"
)

func TestBoundingBoxUnion(t *testing.T) {
	a := rcfpoint.NewBoundingBox(rcfpoint.Point[float64]{0, 0})
	b := rcfpoint.NewBoundingBox(rcfpoint.Point[float64]{1, -1})
	u := a.Union(b)
	assert.Equal(t, []float64{0, -1}, u.Min)
	assert.Equal(t, []float64{1, 0}, u.Max)
	assert.InDelta(t, 2.0, u.SumRanges(), 1e-9)
}

func TestBoundingBoxMerge(t *testing.T) {
	box := rcfpoint.NewBoundingBox(rcfpoint.Point[float32]{1, 1})
	merged := box.Merge(rcfpoint.Point[float32]{-1, 3})
	require.True(t, merged.Contains(rcfpoint.Point[float32]{1, 1}))
	require.True(t, merged.Contains(rcfpoint.Point[float32]{-1, 3}))
	assert.False(t, merged.Contains(rcfpoint.Point[float32]{-2, 0}))
}

func TestDirectionalVectorSum(t *testing.T) {
	v := rcfpoint.NewDirectionalVector(3)
	v.Low[0] = 0.5
	v.High[1] = 1.25
	v.Add(rcfpoint.DirectionalVector{Low: []float64{0, 0, 0.25}, High: []float64{0, 0, 0}})
	assert.InDelta(t, 2.0, v.Sum(), 1e-9)
}

func TestPointEqual(t *testing.T) {
	p := rcfpoint.Point[float64]{1, 2, 3}
	q := p.Clone()
	assert.True(t, p.Equal(q))
	q[0] = 9
	assert.False(t, p.Equal(q))
}
