package rcfio_test

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws/random-cut-forest-go/lib/rcfforest"
	"github.com/aws/random-cut-forest-go/lib/rcfio"
	"github.com/aws/random-cut-forest-go/lib/rcfpoint"
)

func testConfig() rcfforest.Config {
	return rcfforest.Config{
		Dimensions:               2,
		SampleSize:               64,
		NumberOfTrees:            8,
		OutputAfter:              64,
		BoundingBoxCacheFraction: rcfforest.Frac(1.0),
		RandomSeed:               3,
	}
}

// TestSaveLoadRoundTrip covers spec.md §8 properties 5-7 and scenario S4: a
// forest's query surface is unchanged by a save/load round trip.
func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	f, err := rcfforest.New[float64](testConfig())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(17))
	for i := 0; i < 300; i++ {
		p := rcfpoint.Point[float64]{rng.NormFloat64(), rng.NormFloat64()}
		require.NoError(t, f.Update(ctx, p))
	}

	query := rcfpoint.Point[float64]{25, -25}
	wantScore, err := f.AnomalyScore(ctx, query)
	require.NoError(t, err)
	wantAttribution, err := f.AnomalyAttribution(ctx, query)
	require.NoError(t, err)
	wantNeighbors, err := f.NearNeighborsInSample(ctx, query, 3)
	require.NoError(t, err)
	wantUpdates := f.TotalUpdates()

	var buf bytes.Buffer
	require.NoError(t, rcfio.SaveForest(&buf, f))

	restored, err := rcfio.LoadForest[float64](&buf, testConfig())
	require.NoError(t, err)

	assert.Equal(t, wantUpdates, restored.TotalUpdates())

	gotScore, err := restored.AnomalyScore(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, wantScore, gotScore)

	gotAttribution, err := restored.AnomalyAttribution(ctx, query)
	require.NoError(t, err)
	assert.InDelta(t, wantAttribution.Sum(), gotAttribution.Sum(), 1e-9)

	gotNeighbors, err := restored.NearNeighborsInSample(ctx, query, 3)
	require.NoError(t, err)
	require.Equal(t, len(wantNeighbors), len(gotNeighbors))
	for i := range wantNeighbors {
		assert.Equal(t, wantNeighbors[i].Distance, gotNeighbors[i].Distance)
	}
}

func TestLoadForestRejectsBadMagic(t *testing.T) {
	_, err := rcfio.LoadForest[float64](bytes.NewReader([]byte("short")), testConfig())
	require.Error(t, err)

	garbage := make([]byte, 16)
	_, err = rcfio.LoadForest[float64](bytes.NewReader(garbage), testConfig())
	require.Error(t, err)
}
