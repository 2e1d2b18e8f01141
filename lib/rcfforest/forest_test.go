package rcfforest_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws/random-cut-forest-go/lib/rcfforest"
	"github.com/aws/random-cut-forest-go/lib/rcfpoint"
	"github.com/aws/random-cut-forest-go/lib/rcfvisitor"
)

func TestNewRejectsBadArguments(t *testing.T) {
	_, err := rcfforest.New[float64](rcfforest.Config{Dimensions: 0})
	require.Error(t, err)

	_, err = rcfforest.New[float64](rcfforest.Config{Dimensions: 2, ShingleSize: 3})
	require.Error(t, err)

	_, err = rcfforest.New[float64](rcfforest.Config{Dimensions: 2, BoundingBoxCacheFraction: rcfforest.Frac(2)})
	require.Error(t, err)
}

func TestNewAcceptsExplicitZeroBoundingBoxCacheFraction(t *testing.T) {
	_, err := rcfforest.New[float64](rcfforest.Config{Dimensions: 2, BoundingBoxCacheFraction: rcfforest.Frac(0)})
	require.NoError(t, err)
}

func newTestForest(t *testing.T, dims, sampleSize, numberOfTrees int, parallel bool) *rcfforest.Forest[float64] {
	t.Helper()
	f, err := rcfforest.New[float64](rcfforest.Config{
		Dimensions:               dims,
		SampleSize:               sampleSize,
		NumberOfTrees:            numberOfTrees,
		OutputAfter:              sampleSize,
		BoundingBoxCacheFraction: rcfforest.Frac(1.0),
		ParallelExecutionEnabled: parallel,
		ThreadPoolSize:           4,
		RandomSeed:               3,
	})
	require.NoError(t, err)
	return f
}

func feedCluster(t *testing.T, f *rcfforest.Forest[float64], ctx context.Context, rng *rand.Rand, n int, cx, cy float64) {
	t.Helper()
	for i := 0; i < n; i++ {
		p := rcfpoint.Point[float64]{cx + rng.NormFloat64()*0.1, cy + rng.NormFloat64()*0.1}
		require.NoError(t, f.Update(ctx, p))
	}
}

func TestAnomalyScoreIsZeroBeforeOutputAfter(t *testing.T) {
	ctx := context.Background()
	f := newTestForest(t, 2, 64, 8, false)
	require.NoError(t, f.Update(ctx, rcfpoint.Point[float64]{0, 0}))
	score, err := f.AnomalyScore(ctx, rcfpoint.Point[float64]{0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestAnomalyScoreHigherForOutlierAfterWarmup(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(1))
	f := newTestForest(t, 2, 64, 16, false)
	feedCluster(t, f, ctx, rng, 200, 0, 0)

	inlier, err := f.AnomalyScore(ctx, rcfpoint.Point[float64]{0, 0})
	require.NoError(t, err)
	outlier, err := f.AnomalyScore(ctx, rcfpoint.Point[float64]{500, -500})
	require.NoError(t, err)

	assert.Greater(t, outlier, inlier)
}

func TestAnomalyAttributionSumMatchesScore(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(2))
	f := newTestForest(t, 2, 64, 16, false)
	feedCluster(t, f, ctx, rng, 200, 1, 1)

	query := rcfpoint.Point[float64]{30, -30}
	score, err := f.AnomalyScore(ctx, query)
	require.NoError(t, err)
	vector, err := f.AnomalyAttribution(ctx, query)
	require.NoError(t, err)

	assert.InDelta(t, score, vector.Sum(), 1e-6)
}

func TestParallelAndSequentialAgreeOnScoreDistribution(t *testing.T) {
	ctx := context.Background()
	seqForest := newTestForest(t, 2, 64, 16, false)
	parForest := newTestForest(t, 2, 64, 16, true)

	rng := rand.New(rand.NewSource(5))
	points := make([]rcfpoint.Point[float64], 0, 200)
	for i := 0; i < 200; i++ {
		points = append(points, rcfpoint.Point[float64]{rng.NormFloat64(), rng.NormFloat64()})
	}
	for _, p := range points {
		require.NoError(t, seqForest.Update(ctx, p))
		require.NoError(t, parForest.Update(ctx, p))
	}

	seqScore, err := seqForest.AnomalyScore(ctx, rcfpoint.Point[float64]{0, 0})
	require.NoError(t, err)
	parScore, err := parForest.AnomalyScore(ctx, rcfpoint.Point[float64]{0, 0})
	require.NoError(t, err)

	assert.Greater(t, seqScore, 0.0)
	assert.Greater(t, parScore, 0.0)
	assert.Equal(t, seqScore, parScore)
}

func TestNearNeighborsInSampleReturnsClosestFirst(t *testing.T) {
	ctx := context.Background()
	f := newTestForest(t, 2, 16, 8, false)
	require.NoError(t, f.Update(ctx, rcfpoint.Point[float64]{0, 0}))
	require.NoError(t, f.Update(ctx, rcfpoint.Point[float64]{100, 100}))
	for i := 0; i < 16; i++ {
		require.NoError(t, f.Update(ctx, rcfpoint.Point[float64]{1, 1}))
	}

	neighbors, err := f.NearNeighborsInSample(ctx, rcfpoint.Point[float64]{0.5, 0.5}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, neighbors)
	for i := 1; i < len(neighbors); i++ {
		assert.LessOrEqual(t, neighbors[i-1].Distance, neighbors[i].Distance)
	}
}

func TestSimpleDensityIsNonNegative(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(9))
	f := newTestForest(t, 2, 64, 8, false)
	feedCluster(t, f, ctx, rng, 128, 0, 0)

	result, err := f.SimpleDensity(ctx, rcfpoint.Point[float64]{0, 0})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.GetDensity(), 0.0)
}

func TestAnomalyScoreConvergingAgreesWithFullSweep(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(12))
	f := newTestForest(t, 2, 64, 64, false)
	feedCluster(t, f, ctx, rng, 400, 0, 0)

	query := rcfpoint.Point[float64]{0, 0}
	full, err := f.AnomalyScore(ctx, query)
	require.NoError(t, err)

	converging, err := f.AnomalyScoreConverging(ctx, query, rcfvisitor.ConvergingConfig{
		Precision:         0.2,
		MinValuesAccepted: 8,
		MaxValuesAccepted: 64,
	})
	require.NoError(t, err)

	assert.InDelta(t, full, converging, 0.5)
}

func TestUpdateRejectsDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	f := newTestForest(t, 3, 16, 4, false)
	err := f.Update(ctx, rcfpoint.Point[float64]{1, 2})
	require.Error(t, err)
}
