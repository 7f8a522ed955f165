package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDegenerateSpacing is returned when an image reports a zero spacing
	// component, which makes voxel-to-physical conversion ill-defined.
	ErrDegenerateSpacing = errors.New("degenerate image spacing")

	// ErrInvalidDirection is returned when an image direction matrix is
	// missing, has the wrong shape, or is singular.
	ErrInvalidDirection = errors.New("invalid image direction matrix")
)

// Metadata describes the spatial sampling of a volume: where its voxel grid
// sits in physical space and how large it is. It carries no voxel data and
// doubles as the oriented bounding-box representation used for transform
// domains.
type Metadata struct {
	// Origin is the physical location of the center of the voxel at index
	// (0,0,0), independent of where the region start index sits.
	Origin Point

	// Spacing is the physical distance between adjacent voxel centers along
	// each voxel axis.
	Spacing [3]float64

	// Direction is the 3x3 matrix mapping voxel axes onto physical axes.
	// A nil direction is treated as the identity.
	Direction *mat.Dense

	// Region is the largest possible voxel region of the volume.
	Region ImageRegion
}

// IdentityDirection returns a new 3x3 identity direction matrix.
func IdentityDirection() *mat.Dense {
	d := mat.NewDense(3, 3, nil)
	d.Set(0, 0, 1)
	d.Set(1, 1, 1)
	d.Set(2, 2, 1)
	return d
}

// Validate checks that the metadata describes a usable sampling grid.
func (m Metadata) Validate() error {
	for axis := 0; axis < 3; axis++ {
		if m.Spacing[axis] == 0 {
			return fmt.Errorf("%w: spacing %v has zero component on axis %d",
				ErrDegenerateSpacing, m.Spacing, axis)
		}
	}
	if m.Direction != nil {
		rows, cols := m.Direction.Dims()
		if rows != 3 || cols != 3 {
			return fmt.Errorf("%w: expected 3x3, got %dx%d", ErrInvalidDirection, rows, cols)
		}
		var inv mat.Dense
		if err := inv.Inverse(m.Direction); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDirection, err)
		}
	}
	return nil
}

// direction returns the direction matrix, substituting the identity when
// none is set.
func (m Metadata) direction() *mat.Dense {
	if m.Direction == nil {
		return IdentityDirection()
	}
	return m.Direction
}

// StepVectors returns the 3x3 matrix whose column j is the physical step
// taken when incrementing voxel axis j by one, i.e. Direction * diag(Spacing).
func (m Metadata) StepVectors() *mat.Dense {
	d := m.direction()
	steps := mat.NewDense(3, 3, nil)
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			steps.Set(row, col, d.At(row, col)*m.Spacing[col])
		}
	}
	return steps
}

// IndexToPhysical maps a continuous voxel index to its physical sample point.
func (m Metadata) IndexToPhysical(idx [3]float64) Point {
	steps := m.StepVectors()
	var pt Point
	for row := 0; row < 3; row++ {
		v := m.Origin[row]
		for col := 0; col < 3; col++ {
			v += steps.At(row, col) * idx[col]
		}
		pt[row] = v
	}
	return pt
}

// PhysicalToIndex maps a physical point to the continuous voxel index that
// samples it. The metadata must describe an invertible sampling grid.
func (m Metadata) PhysicalToIndex(pt Point) ([3]float64, error) {
	if err := m.Validate(); err != nil {
		return [3]float64{}, err
	}
	steps := m.StepVectors()
	var inv mat.Dense
	if err := inv.Inverse(steps); err != nil {
		return [3]float64{}, fmt.Errorf("%w: %v", ErrInvalidDirection, err)
	}
	var idx [3]float64
	for row := 0; row < 3; row++ {
		v := 0.0
		for col := 0; col < 3; col++ {
			v += inv.At(row, col) * (pt[col] - m.Origin[col])
		}
		idx[row] = v
	}
	return idx, nil
}

// PhysicalStep returns, for each physical axis, the dominant signed step
// taken in that axis when moving one voxel along the grid. Assumes the
// direction matrix represents an axis-aligned orientation; sheared grids are
// not supported by this projection.
func (m Metadata) PhysicalStep() ([3]float64, error) {
	if err := m.Validate(); err != nil {
		return [3]float64{}, err
	}
	steps := m.StepVectors()
	var out [3]float64
	for row := 0; row < 3; row++ {
		dominant := 0.0
		for col := 0; col < 3; col++ {
			if v := steps.At(row, col); math.Abs(v) > math.Abs(dominant) {
				dominant = v
			}
		}
		if dominant == 0 {
			return [3]float64{}, fmt.Errorf("%w: no step along physical axis %d",
				ErrInvalidDirection, row)
		}
		out[row] = dominant
	}
	return out, nil
}

// VoxelDistanceFromEdge returns, per voxel axis, the signed distance in
// voxel units from the point to the nearest face of the metadata region.
// Faces sit half a voxel beyond the boundary voxel centers. Negative values
// indicate the point lies outside the region along that axis.
func (m Metadata) VoxelDistanceFromEdge(pt Point) ([3]float64, error) {
	idx, err := m.PhysicalToIndex(pt)
	if err != nil {
		return [3]float64{}, err
	}
	var out [3]float64
	for axis := 0; axis < 3; axis++ {
		toLower := idx[axis] - (float64(m.Region.Index[axis]) - 0.5)
		toUpper := float64(m.Region.Size[axis]) - toLower
		if math.Abs(toLower) <= math.Abs(toUpper) {
			out[axis] = toLower
		} else {
			out[axis] = toUpper
		}
	}
	return out, nil
}

// PhysicalDistanceFromEdge estimates the signed minimum physical distance
// from the point to the nearest face of the metadata region, along with the
// voxel axis traveled to reach that face. The sign is negative when the
// point lies outside the region along the nearest axis.
func (m Metadata) PhysicalDistanceFromEdge(pt Point) (float64, int, error) {
	voxelDists, err := m.VoxelDistanceFromEdge(pt)
	if err != nil {
		return 0, 0, err
	}
	step, err := m.PhysicalStep()
	if err != nil {
		return 0, 0, err
	}
	best, bestAxis := math.Inf(1), 0
	for axis := 0; axis < 3; axis++ {
		d := voxelDists[axis] * math.Abs(step[axis])
		if math.Abs(d) < math.Abs(best) {
			best, bestAxis = d, axis
		}
	}
	return best, bestAxis, nil
}
