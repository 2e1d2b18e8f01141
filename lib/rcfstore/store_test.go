package rcfstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws/random-cut-forest-go/lib/rcferrors"
	"github.com/aws/random-cut-forest-go/lib/rcfpoint"
	"github.com/aws/random-cut-forest-go/lib/rcfstore"
)

func TestNewRejectsBadArguments(t *testing.T) {
	_, err := rcfstore.New[float64](4, 0, 1)
	require.Error(t, err)
	var bad *rcferrors.BadArgument
	require.ErrorAs(t, err, &bad)

	_, err = rcfstore.New[float64](0, 4, 1)
	require.Error(t, err)

	_, err = rcfstore.New[float64](4, 5, 2)
	require.Error(t, err)
}

func TestAddGetRoundTrip(t *testing.T) {
	s, err := rcfstore.New[float64](4, 3, 1)
	require.NoError(t, err)

	idx, err := s.Add(rcfpoint.Point[float64]{1, 2, 3})
	require.NoError(t, err)

	got, err := s.Get(idx)
	require.NoError(t, err)
	assert.True(t, got.Equal(rcfpoint.Point[float64]{1, 2, 3}))
}

func TestAddRejectsDimensionMismatch(t *testing.T) {
	s, err := rcfstore.New[float64](4, 3, 1)
	require.NoError(t, err)

	_, err = s.Add(rcfpoint.Point[float64]{1, 2})
	require.Error(t, err)
	var bad *rcferrors.BadArgument
	require.ErrorAs(t, err, &bad)
}

func TestRefCountLifecycle(t *testing.T) {
	s, err := rcfstore.New[float64](4, 2, 1)
	require.NoError(t, err)

	idx, err := s.Add(rcfpoint.Point[float64]{1, 1})
	require.NoError(t, err)

	require.NoError(t, s.IncrementRefCount(idx))
	require.NoError(t, s.IncrementRefCount(idx))

	count, err := s.RefCount(idx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	count, err = s.DecrementRefCount(idx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	count, err = s.DecrementRefCount(idx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	_, err = s.Get(idx)
	require.Error(t, err)
	var invalid *rcferrors.InvalidIndex
	require.ErrorAs(t, err, &invalid)
}

func TestDecrementBelowZeroFails(t *testing.T) {
	s, err := rcfstore.New[float64](4, 2, 1)
	require.NoError(t, err)

	idx, err := s.Add(rcfpoint.Point[float64]{1, 1})
	require.NoError(t, err)

	_, err = s.DecrementRefCount(idx)
	require.Error(t, err)
}

func TestReleaseRequiresZeroRefCount(t *testing.T) {
	s, err := rcfstore.New[float64](4, 2, 1)
	require.NoError(t, err)

	idx, err := s.Add(rcfpoint.Point[float64]{1, 1})
	require.NoError(t, err)
	require.NoError(t, s.IncrementRefCount(idx))

	err = s.Release(idx)
	require.Error(t, err)

	_, err = s.DecrementRefCount(idx)
	require.NoError(t, err)
	require.NoError(t, s.Release(idx))

	_, err = s.Get(idx)
	require.Error(t, err)
	var invalid *rcferrors.InvalidIndex
	require.ErrorAs(t, err, &invalid)
}

func TestFreelistReusesReleasedSlots(t *testing.T) {
	s, err := rcfstore.New[float64](2, 2, 1)
	require.NoError(t, err)

	first, err := s.Add(rcfpoint.Point[float64]{1, 1})
	require.NoError(t, err)
	_, err = s.Add(rcfpoint.Point[float64]{2, 2})
	require.NoError(t, err)

	// Store is at capacity; a third Add must fail until a slot frees up.
	_, err = s.Add(rcfpoint.Point[float64]{3, 3})
	require.Error(t, err)
	var capErr *rcferrors.CapacityExceeded
	require.ErrorAs(t, err, &capErr)

	require.NoError(t, s.IncrementRefCount(first))
	_, err = s.DecrementRefCount(first)
	require.NoError(t, err)

	third, err := s.Add(rcfpoint.Point[float64]{3, 3})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Size())

	got, err := s.Get(third)
	require.NoError(t, err)
	assert.True(t, got.Equal(rcfpoint.Point[float64]{3, 3}))
}

func TestTotalRefCountSumsLiveSlots(t *testing.T) {
	s, err := rcfstore.New[float64](4, 2, 1)
	require.NoError(t, err)

	a, err := s.Add(rcfpoint.Point[float64]{1, 1})
	require.NoError(t, err)
	b, err := s.Add(rcfpoint.Point[float64]{2, 2})
	require.NoError(t, err)

	require.NoError(t, s.IncrementRefCount(a))
	require.NoError(t, s.IncrementRefCount(a))
	require.NoError(t, s.IncrementRefCount(b))

	assert.EqualValues(t, 3, s.TotalRefCount())
}

func TestShingleOverlapSharesStorage(t *testing.T) {
	// dims=4, shingleSize=2 -> baseDims=2; second Add shares its leading
	// two elements with the first Add's trailing two.
	s, err := rcfstore.New[float64](4, 4, 2)
	require.NoError(t, err)

	first, err := s.Add(rcfpoint.Point[float64]{1, 2, 3, 4})
	require.NoError(t, err)
	second, err := s.Add(rcfpoint.Point[float64]{3, 4, 5, 6})
	require.NoError(t, err)

	g1, err := s.Get(first)
	require.NoError(t, err)
	assert.True(t, g1.Equal(rcfpoint.Point[float64]{1, 2, 3, 4}))

	g2, err := s.Get(second)
	require.NoError(t, err)
	assert.True(t, g2.Equal(rcfpoint.Point[float64]{3, 4, 5, 6}))
}

func TestCompactRemapsLiveIndexes(t *testing.T) {
	s, err := rcfstore.New[float64](4, 2, 1)
	require.NoError(t, err)

	a, err := s.Add(rcfpoint.Point[float64]{1, 1})
	require.NoError(t, err)
	b, err := s.Add(rcfpoint.Point[float64]{2, 2})
	require.NoError(t, err)

	require.NoError(t, s.IncrementRefCount(a))
	require.NoError(t, s.IncrementRefCount(b))

	_, err = s.DecrementRefCount(a)
	require.NoError(t, err)

	remap := s.Compact()
	newB, ok := remap[b]
	require.True(t, ok)
	_, ok = remap[a]
	assert.False(t, ok, "released index must not appear in the remap")

	got, err := s.Get(newB)
	require.NoError(t, err)
	assert.True(t, got.Equal(rcfpoint.Point[float64]{2, 2}))
	assert.Equal(t, 1, s.Size())
}
