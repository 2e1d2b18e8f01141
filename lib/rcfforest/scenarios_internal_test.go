package rcfforest

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws/random-cut-forest-go/lib/rcfpoint"
)

// totalRefCount and totalSamplerSize give the white-box tests below access
// to component internals the public API deliberately doesn't expose.
// totalRefCount reads the one shared Point Store directly: every
// component's tree references the same store, so summing per-component
// would overcount by a factor of len(f.components).
func (f *Forest[P]) totalRefCount() int64 {
	return f.store.TotalRefCount()
}

func (f *Forest[P]) totalSamplerSize() int {
	var sum int
	for _, c := range f.components {
		sum += c.sampler.Size()
	}
	return sum
}

func (f *Forest[P]) massEqualsSamplerSizeForEveryTree() bool {
	for _, c := range f.components {
		if c.tree.Mass() != c.sampler.Size() {
			return false
		}
	}
	return true
}

// TestConfigPreservesExplicitZeroBoundingBoxCacheFraction covers spec.md
// §9 open question 2: an explicit Frac(0) must survive withDefaults
// unchanged, distinct from the "unset" nil that defaults to Frac(1).
func TestConfigPreservesExplicitZeroBoundingBoxCacheFraction(t *testing.T) {
	f, err := New[float64](Config{Dimensions: 2, BoundingBoxCacheFraction: Frac(0)})
	require.NoError(t, err)
	require.NotNil(t, f.cfg.BoundingBoxCacheFraction)
	assert.Equal(t, 0.0, *f.cfg.BoundingBoxCacheFraction)

	unset, err := New[float64](Config{Dimensions: 2})
	require.NoError(t, err)
	require.NotNil(t, unset.cfg.BoundingBoxCacheFraction)
	assert.Equal(t, 1.0, *unset.cfg.BoundingBoxCacheFraction)
}

// TestScenarioS1EmptyForest covers spec.md §8 scenario S1.
func TestScenarioS1EmptyForest(t *testing.T) {
	ctx := context.Background()
	f, err := New[float64](Config{Dimensions: 2, NumberOfTrees: 1, SampleSize: 4, RandomSeed: 42})
	require.NoError(t, err)

	score, err := f.AnomalyScore(ctx, rcfpoint.Point[float64]{0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)

	require.NoError(t, f.Update(ctx, rcfpoint.Point[float64]{0, 0}))
	score, err = f.AnomalyScore(ctx, rcfpoint.Point[float64]{0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score, "outputAfter defaults to sampleSize/4 (1 here) and scores need more than outputAfter updates, so one update must not be enough")

	assert.EqualValues(t, 1, f.totalRefCount())
}

// TestScenarioS2SingleRepeatedPoint covers spec.md §8 scenario S2.
func TestScenarioS2SingleRepeatedPoint(t *testing.T) {
	ctx := context.Background()
	f, err := New[float64](Config{Dimensions: 2, NumberOfTrees: 1, SampleSize: 4, RandomSeed: 42})
	require.NoError(t, err)

	for i := 0; i < 1024; i++ {
		require.NoError(t, f.Update(ctx, rcfpoint.Point[float64]{1, 1}))
	}

	inlier, err := f.AnomalyScore(ctx, rcfpoint.Point[float64]{1, 1})
	require.NoError(t, err)
	near, err := f.AnomalyScore(ctx, rcfpoint.Point[float64]{1.01, 1.01})
	require.NoError(t, err)
	mid, err := f.AnomalyScore(ctx, rcfpoint.Point[float64]{2, 2})
	require.NoError(t, err)
	far, err := f.AnomalyScore(ctx, rcfpoint.Point[float64]{100, 100})
	require.NoError(t, err)

	assert.Less(t, inlier, near)
	assert.Less(t, near, mid)
	assert.Less(t, mid, far)
}

// TestScenarioS3TwoClusters covers spec.md §8 scenario S3.
func TestScenarioS3TwoClusters(t *testing.T) {
	ctx := context.Background()
	f, err := New[float64](Config{Dimensions: 2, SampleSize: 256, NumberOfTrees: 50, RandomSeed: 7})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10000; i++ {
		var cx, cy float64
		if i%2 == 0 {
			cx, cy = 0, 0
		} else {
			cx, cy = 10, 10
		}
		p := rcfpoint.Point[float64]{cx + rng.NormFloat64()*0.1, cy + rng.NormFloat64()*0.1}
		require.NoError(t, f.Update(ctx, p))
	}

	near0, err := f.AnomalyScore(ctx, rcfpoint.Point[float64]{0, 0})
	require.NoError(t, err)
	near10, err := f.AnomalyScore(ctx, rcfpoint.Point[float64]{10, 10})
	require.NoError(t, err)
	between, err := f.AnomalyScore(ctx, rcfpoint.Point[float64]{5, 5})
	require.NoError(t, err)

	assert.Less(t, near0, 1.0)
	assert.Less(t, near10, 1.0)
	assert.GreaterOrEqual(t, between, 2.0)
}

// TestInvariantReplayFromSeedIsBitwiseIdentical covers spec.md §8 universal
// invariant 5: replaying the same update sequence against an independently
// built forest with the same seed produces bitwise-identical serialized
// state.
func TestInvariantReplayFromSeedIsBitwiseIdentical(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Dimensions: 2, NumberOfTrees: 8, SampleSize: 32, RandomSeed: 13}

	f1, err := New[float64](cfg)
	require.NoError(t, err)
	f2, err := New[float64](cfg)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(13))
	for i := 0; i < 500; i++ {
		p := rcfpoint.Point[float64]{rng.NormFloat64(), rng.NormFloat64()}
		require.NoError(t, f1.Update(ctx, p))
		require.NoError(t, f2.Update(ctx, p))
	}

	dat1, err := f1.MarshalBinary()
	require.NoError(t, err)
	dat2, err := f2.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, dat1, dat2)

	for _, q := range []rcfpoint.Point[float64]{{0, 0}, {4, -1}, {-3, 3}} {
		s1, err := f1.AnomalyScore(ctx, q)
		require.NoError(t, err)
		s2, err := f2.AnomalyScore(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, s1, s2)
	}
}

// TestScenarioS5ParallelDeterminism covers spec.md §8 scenario S5.
func TestScenarioS5ParallelDeterminism(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Dimensions: 2, SampleSize: 64, NumberOfTrees: 16, RandomSeed: 9}
	seqCfg, parCfg := cfg, cfg
	parCfg.ParallelExecutionEnabled = true
	parCfg.ThreadPoolSize = 4

	seqForest, err := New[float64](seqCfg)
	require.NoError(t, err)
	parForest, err := New[float64](parCfg)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(123))
	points := make([]rcfpoint.Point[float64], 0, 10000)
	for i := 0; i < 10000; i++ {
		points = append(points, rcfpoint.Point[float64]{rng.NormFloat64(), rng.NormFloat64()})
	}
	for _, p := range points {
		require.NoError(t, seqForest.Update(ctx, p))
		require.NoError(t, parForest.Update(ctx, p))
	}

	queries := []rcfpoint.Point[float64]{{0, 0}, {3, -2}, {-5, 5}, {50, 50}}
	for _, q := range queries {
		seqScore, err := seqForest.AnomalyScore(ctx, q)
		require.NoError(t, err)
		parScore, err := parForest.AnomalyScore(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, seqScore, parScore)
	}
}

// TestScenarioS6CapacityPressure covers spec.md §8 scenario S6.
func TestScenarioS6CapacityPressure(t *testing.T) {
	ctx := context.Background()
	const numberOfTrees, sampleSize = 4, 16
	f, err := New[float64](Config{
		Dimensions:    2,
		NumberOfTrees: numberOfTrees,
		SampleSize:    sampleSize,
		RandomSeed:    11,
	})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 11*sampleSize; i++ {
		p := rcfpoint.Point[float64]{rng.NormFloat64(), rng.NormFloat64()}
		require.NoError(t, f.Update(ctx, p))
		assert.LessOrEqual(t, f.totalRefCount(), int64(numberOfTrees*sampleSize))
	}
}

// TestInvariantMassEqualsSamplerSize covers spec.md §8 universal invariant 1.
func TestInvariantMassEqualsSamplerSize(t *testing.T) {
	ctx := context.Background()
	f, err := New[float64](Config{Dimensions: 2, NumberOfTrees: 8, SampleSize: 32, RandomSeed: 4})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(4))
	for i := 0; i < 2000; i++ {
		p := rcfpoint.Point[float64]{rng.NormFloat64(), rng.NormFloat64()}
		require.NoError(t, f.Update(ctx, p))
		require.True(t, f.massEqualsSamplerSizeForEveryTree())
	}
}

// TestInvariantRefCountSumEqualsSamplerSizeSum covers spec.md §8 universal
// invariant 4.
func TestInvariantRefCountSumEqualsSamplerSizeSum(t *testing.T) {
	ctx := context.Background()
	f, err := New[float64](Config{Dimensions: 2, NumberOfTrees: 8, SampleSize: 32, RandomSeed: 4})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(4))
	for i := 0; i < 2000; i++ {
		p := rcfpoint.Point[float64]{rng.NormFloat64(), rng.NormFloat64()}
		require.NoError(t, f.Update(ctx, p))
		assert.EqualValues(t, f.totalSamplerSize(), f.totalRefCount())
	}
}

// TestBoundaryRepeatedSubmissionScoreNonIncreasing covers spec.md §8
// boundary behavior 10: submitting the same point k<=sampleSize/numberOfTrees
// times in a row yields a monotonically non-increasing score sequence.
func TestBoundaryRepeatedSubmissionScoreNonIncreasing(t *testing.T) {
	ctx := context.Background()
	const numberOfTrees, sampleSize = 4, 64
	f, err := New[float64](Config{
		Dimensions:    2,
		NumberOfTrees: numberOfTrees,
		SampleSize:    sampleSize,
		OutputAfter:   1,
		RandomSeed:    6,
	})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(6))
	for i := 0; i < sampleSize*numberOfTrees; i++ {
		p := rcfpoint.Point[float64]{rng.NormFloat64() * 10, rng.NormFloat64() * 10}
		require.NoError(t, f.Update(ctx, p))
	}

	repeat := rcfpoint.Point[float64]{3, 3}
	k := sampleSize / numberOfTrees
	var prev float64 = -1
	for i := 0; i < k; i++ {
		require.NoError(t, f.Update(ctx, repeat))
		score, err := f.AnomalyScore(ctx, repeat)
		require.NoError(t, err)
		if i > 0 {
			assert.LessOrEqual(t, score, prev)
		}
		prev = score
	}
}
