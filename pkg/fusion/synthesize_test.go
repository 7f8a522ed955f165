package fusion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dreg3d/pkg/geometry"
	"dreg3d/pkg/transform"
)

func TestSynthesizeUniformTranslation(t *testing.T) {
	ref := geometry.Metadata{
		Spacing: [3]float64{1, 1, 1},
		Region:  geometry.ImageRegion{Size: [3]int{10, 10, 10}},
	}
	c, err := NewCollection(nil, Entry{
		Transform: transform.NewTranslation([3]float64{1, 2, 3}),
	})
	require.NoError(t, err)

	field, err := SynthesizeDisplacementField(
		context.Background(), c, ref, nil, [3]float64{1, 1, 1}, 2, nil)
	require.NoError(t, err)

	grid := field.Grid()
	assert.Equal(t, [3]int{10, 10, 10}, grid.Region.Size)
	assert.Equal(t, [3]float64{1, 2, 3}, field.At([3]int{0, 0, 0}))
	assert.Equal(t, [3]float64{1, 2, 3}, field.At([3]int{9, 9, 9}))

	got := field.TransformPoint(geometry.Point{4.5, 4.5, 4.5})
	assert.InDeltaSlice(t, []float64{5.5, 6.5, 7.5}, got[:], 1e-9)
}

func TestSynthesizeScaledGrid(t *testing.T) {
	ref := geometry.Metadata{
		Spacing: [3]float64{1, 1, 1},
		Region:  geometry.ImageRegion{Size: [3]int{10, 10, 10}},
	}
	c, err := NewCollection(nil, Entry{Transform: transform.Identity{}})
	require.NoError(t, err)

	field, err := SynthesizeDisplacementField(
		context.Background(), c, ref, nil, [3]float64{2, 2, 2}, 0, nil)
	require.NoError(t, err)

	// Doubling the spacing halves the grid while covering the same volume.
	grid := field.Grid()
	assert.Equal(t, [3]int{5, 5, 5}, grid.Region.Size)
	assert.Equal(t, [3]float64{2, 2, 2}, grid.Spacing)

	bounds, err := geometry.SampleBounds(grid, nil)
	require.NoError(t, err)
	refBounds, err := geometry.SampleBounds(ref, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, refBounds[0][:], bounds[0][:], 1e-9)
	assert.InDeltaSlice(t, refBounds[1][:], bounds[1][:], 1e-9)
}

func TestSynthesizeInitialTransformShiftsGrid(t *testing.T) {
	ref := geometry.Metadata{
		Spacing: [3]float64{1, 1, 1},
		Region:  geometry.ImageRegion{Size: [3]int{10, 10, 10}},
	}
	c, err := NewCollection(nil, Entry{Transform: transform.Identity{}})
	require.NoError(t, err)

	field, err := SynthesizeDisplacementField(
		context.Background(), c, ref,
		transform.NewTranslation([3]float64{100, 0, 0}),
		[3]float64{1, 1, 1}, 1, nil)
	require.NoError(t, err)

	// The output grid covers the reference extent mapped through the
	// initial alignment.
	mid, err := geometry.PhysicalMidpoint(field.Grid(), nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{104.5, 4.5, 4.5}, mid[:], 1e-9)
}

func TestSynthesizeCoverageGapsKeepZero(t *testing.T) {
	ref := geometry.Metadata{
		Spacing: [3]float64{1, 1, 1},
		Region:  geometry.ImageRegion{Size: [3]int{10, 10, 10}},
	}
	// The lone domain covers only voxels 0..3 of the reference grid.
	c, err := NewCollection(nil, Entry{
		Transform: transform.NewTranslation([3]float64{1, 1, 1}),
		Domain: &geometry.Metadata{
			Spacing: [3]float64{1, 1, 1},
			Region:  geometry.ImageRegion{Size: [3]int{4, 4, 4}},
		},
	})
	require.NoError(t, err)

	field, err := SynthesizeDisplacementField(
		context.Background(), c, ref, nil, [3]float64{1, 1, 1}, 1, nil)
	require.NoError(t, err)

	assert.Equal(t, [3]float64{1, 1, 1}, field.At([3]int{1, 1, 1}))
	assert.Equal(t, [3]float64{0, 0, 0}, field.At([3]int{8, 8, 8}))
}

func TestSynthesizeCanceledContext(t *testing.T) {
	ref := geometry.Metadata{
		Spacing: [3]float64{1, 1, 1},
		Region:  geometry.ImageRegion{Size: [3]int{16, 16, 16}},
	}
	c, err := NewCollection(nil, Entry{Transform: transform.Identity{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = SynthesizeDisplacementField(ctx, c, ref, nil, [3]float64{1, 1, 1}, 1, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
