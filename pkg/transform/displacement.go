package transform

import (
	"fmt"
	"math"

	"dreg3d/pkg/geometry"
)

// DisplacementField is a dense sampled transform: each voxel of its grid
// stores the physical offset to add to points sampled at that voxel.
// Displacements between voxel centers are interpolated trilinearly, and
// queries outside the grid clamp to the border voxels.
type DisplacementField struct {
	grid    geometry.Metadata
	vectors [][3]float64
}

// NewDisplacementField wraps a displacement vector buffer laid out over the
// given sampling grid, with the I axis fastest.
func NewDisplacementField(grid geometry.Metadata, vectors [][3]float64) (*DisplacementField, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if want := grid.Region.NumVoxels(); len(vectors) != want {
		return nil, fmt.Errorf("%w: displacement buffer has %d vectors, grid needs %d",
			ErrInvalidTransform, len(vectors), want)
	}
	return &DisplacementField{grid: grid, vectors: vectors}, nil
}

// Grid returns the sampling grid metadata of the field.
func (f *DisplacementField) Grid() geometry.Metadata { return f.grid }

// At returns the displacement vector stored at a voxel index.
func (f *DisplacementField) At(idx [3]int) [3]float64 {
	return f.vectors[f.grid.Region.Offset(idx)]
}

// TransformPoint adds the interpolated displacement at the point's grid
// position to the point.
func (f *DisplacementField) TransformPoint(pt geometry.Point) geometry.Point {
	idx, err := f.grid.PhysicalToIndex(pt)
	if err != nil {
		// Grid validity is checked at construction.
		return pt
	}
	disp := f.interpolate(idx)
	return geometry.Point{pt[0] + disp[0], pt[1] + disp[1], pt[2] + disp[2]}
}

// interpolate samples the field trilinearly at a continuous voxel index,
// clamping to the grid border.
func (f *DisplacementField) interpolate(idx [3]float64) [3]float64 {
	var lo [3]int
	var frac [3]float64
	for axis := 0; axis < 3; axis++ {
		minIdx := float64(f.grid.Region.Index[axis])
		maxIdx := float64(f.grid.Region.Index[axis] + f.grid.Region.Size[axis] - 1)
		v := math.Min(math.Max(idx[axis], minIdx), maxIdx)
		base := math.Floor(v)
		if base > maxIdx-1 {
			base = maxIdx - 1
		}
		if base < minIdx {
			base = minIdx
		}
		lo[axis] = int(base)
		frac[axis] = v - base
		if f.grid.Region.Size[axis] == 1 {
			lo[axis] = f.grid.Region.Index[axis]
			frac[axis] = 0
		}
	}

	var out [3]float64
	for corner := 0; corner < 8; corner++ {
		var voxel [3]int
		weight := 1.0
		for axis := 0; axis < 3; axis++ {
			if corner>>axis&1 == 1 {
				voxel[axis] = lo[axis] + 1
				weight *= frac[axis]
			} else {
				voxel[axis] = lo[axis]
				weight *= 1 - frac[axis]
			}
		}
		if weight == 0 {
			continue
		}
		if voxel[0] > f.grid.Region.UpperIndex()[0] ||
			voxel[1] > f.grid.Region.UpperIndex()[1] ||
			voxel[2] > f.grid.Region.UpperIndex()[2] {
			continue
		}
		v := f.vectors[f.grid.Region.Offset(voxel)]
		for axis := 0; axis < 3; axis++ {
			out[axis] += weight * v[axis]
		}
	}
	return out
}
