package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestMetadataValidate(t *testing.T) {
	valid := Metadata{
		Spacing: [3]float64{1, 2, 3},
		Region:  ImageRegion{Size: [3]int{4, 4, 4}},
	}
	require.NoError(t, valid.Validate())

	zeroSpacing := valid
	zeroSpacing.Spacing[1] = 0
	assert.ErrorIs(t, zeroSpacing.Validate(), ErrDegenerateSpacing)

	wrongShape := valid
	wrongShape.Direction = mat.NewDense(2, 2, nil)
	assert.ErrorIs(t, wrongShape.Validate(), ErrInvalidDirection)

	singular := valid
	singular.Direction = mat.NewDense(3, 3, nil)
	assert.ErrorIs(t, singular.Validate(), ErrInvalidDirection)
}

func TestIndexToPhysicalRoundTrip(t *testing.T) {
	// Flip the K axis to exercise a non-identity direction.
	dir := IdentityDirection()
	dir.Set(2, 2, -1)
	meta := Metadata{
		Origin:    Point{10, 20, 30},
		Spacing:   [3]float64{1, 2, 3},
		Direction: dir,
		Region:    ImageRegion{Size: [3]int{8, 8, 8}},
	}

	pt := meta.IndexToPhysical([3]float64{1, 1, 1})
	assert.InDeltaSlice(t, []float64{11, 22, 27}, pt[:], 1e-12)

	idx, err := meta.PhysicalToIndex(pt)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 1, 1}, idx[:], 1e-12)
}

func TestPhysicalStep(t *testing.T) {
	dir := IdentityDirection()
	dir.Set(2, 2, -1)
	meta := Metadata{
		Spacing:   [3]float64{1, 2, 3},
		Direction: dir,
		Region:    ImageRegion{Size: [3]int{4, 4, 4}},
	}
	step, err := meta.PhysicalStep()
	require.NoError(t, err)
	assert.Equal(t, [3]float64{1, 2, -3}, step)
}

func TestVoxelDistanceFromEdge(t *testing.T) {
	meta := Metadata{
		Spacing: [3]float64{1, 1, 1},
		Region:  ImageRegion{Size: [3]int{4, 4, 4}},
	}

	// Volume faces sit half a voxel beyond the boundary voxel centers, so
	// the sampled bounds are [-0.5, 3.5] per axis.
	dist, err := meta.VoxelDistanceFromEdge(Point{1, 1, 1})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1.5, 1.5, 1.5}, dist[:], 1e-12)

	// Points past the upper face get negative distances.
	dist, err = meta.VoxelDistanceFromEdge(Point{4, 4, 4})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-0.5, -0.5, -0.5}, dist[:], 1e-12)
}

func TestPhysicalDistanceFromEdge(t *testing.T) {
	meta := Metadata{
		Spacing: [3]float64{1, 1, 5},
		Region:  ImageRegion{Size: [3]int{10, 10, 10}},
	}

	// Axis I is 0.5 voxels (0.5 physical units) from the lower face; axis K
	// is 0.5 voxels but 2.5 physical units. The nearest face is on axis I.
	dist, axis, err := meta.PhysicalDistanceFromEdge(Point{0, 4.5, 25})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, dist, 1e-12)
	assert.Equal(t, 0, axis)
}
