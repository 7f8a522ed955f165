package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// GridFromPhysicalRegion constructs image metadata whose voxel grid
// subdivides the given physical region at the requested spacing and
// orientation. The returned metadata is an unbuffered sampling-grid
// description; callers allocate voxel storage separately.
//
// The grid is centered on the region so that any over- or under-coverage is
// symmetric at opposite edges. When the region does not divide evenly into
// voxels along an axis, extendBeyond selects whether the grid extends up to
// one voxel width beyond the region at each edge (true) or falls short of
// covering it by up to one voxel width (false).
//
// The direction matrix must describe a 90-degree orientation: every entry
// must be -1, 0, or 1.
func GridFromPhysicalRegion(phys PhysicalRegion, spacing [3]float64, direction *mat.Dense, extendBeyond bool) (Metadata, error) {
	meta := Metadata{Spacing: spacing, Direction: direction}
	if err := meta.Validate(); err != nil {
		return Metadata{}, err
	}
	d := meta.direction()
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			v := d.At(row, col)
			if v != 0 && v != 1 && v != -1 {
				return Metadata{}, fmt.Errorf("%w: entry (%d,%d)=%v is not in {-1,0,1}",
					ErrInvalidDirection, row, col, v)
			}
		}
	}

	step, err := meta.PhysicalStep()
	if err != nil {
		return Metadata{}, err
	}

	n := phys.normalized()
	var gridSize [3]float64
	for axis := 0; axis < 3; axis++ {
		f := (n[1][axis] - n[0][axis]) / math.Abs(step[axis])
		if extendBeyond {
			gridSize[axis] = math.Ceil(f)
		} else {
			gridSize[axis] = math.Floor(f)
		}
	}

	// Align the grid to the region center, then place the origin at the
	// center of voxel 0 accounting for step direction.
	center := n.Midpoint()
	var regionLo, regionHi [3]float64
	for axis := 0; axis < 3; axis++ {
		regionLo[axis] = center[axis] - gridSize[axis]/2*step[axis]
		regionHi[axis] = center[axis] + gridSize[axis]/2*step[axis]
	}
	var corner [3]float64
	for axis := 0; axis < 3; axis++ {
		if step[axis] > 0 {
			corner[axis] = math.Min(regionLo[axis], regionHi[axis])
		} else {
			corner[axis] = math.Max(regionLo[axis], regionHi[axis])
		}
	}
	var origin Point
	for axis := 0; axis < 3; axis++ {
		origin[axis] = corner[axis] + halfVoxelStep*step[axis]
	}

	steps := meta.StepVectors()
	var inv mat.Dense
	if err := inv.Inverse(steps); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrInvalidDirection, err)
	}
	var size [3]int
	for row := 0; row < 3; row++ {
		v := 0.0
		for col := 0; col < 3; col++ {
			v += inv.At(row, col) * (regionHi[col] - corner[col])
		}
		size[row] = int(math.Round(v))
	}

	meta.Origin = origin
	meta.Region = ImageRegion{Size: size}
	return meta, nil
}
