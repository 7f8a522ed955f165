// Package geometry provides pure conversion helpers for mapping between
// voxel-index regions, continuous-index regions, and physical regions of a
// sampled volume. It implements the coordinate arithmetic needed to locate
// corresponding blocks across two images with different voxel grids.
//
// Three interchangeable region representations are used throughout:
//
//   - "block region": axis-aligned [lower,upper) continuous voxel bounds.
//     Bounds are floating point so that a region mapped out of physical space
//     can be carried without premature rounding.
//   - "image region": an integer voxel region expressed as a start index and
//     a per-axis size, with an inclusive upper index. Mirrors the region
//     representation used by streaming image readers.
//   - "physical region": axis-aligned inclusive real-valued bounds in
//     physical space.
//
// All index tuples are ordered (I,J,K) with I the fastest-varying buffer axis.
package geometry

// Point is a location in physical space.
type Point [3]float64

// BlockRegion holds axis-aligned [lower,upper) voxel bounds.
// Row 0 is the lower bound and row 1 is the exclusive upper bound.
// Bounds are continuous: fractional values arise when a region has been
// mapped through physical space and back.
type BlockRegion [2][3]float64

// PhysicalRegion holds axis-aligned inclusive lower and upper bounds in
// physical space. Row 0 is the lower bound and row 1 is the upper bound.
type PhysicalRegion [2][3]float64

// normalized returns the region with per-axis min bounds in row 0 and
// max bounds in row 1.
func (r BlockRegion) normalized() BlockRegion {
	var out BlockRegion
	for axis := 0; axis < 3; axis++ {
		lo, hi := r[0][axis], r[1][axis]
		if lo > hi {
			lo, hi = hi, lo
		}
		out[0][axis] = lo
		out[1][axis] = hi
	}
	return out
}

// normalized returns the region with per-axis min bounds in row 0 and
// max bounds in row 1.
func (r PhysicalRegion) normalized() PhysicalRegion {
	var out PhysicalRegion
	for axis := 0; axis < 3; axis++ {
		lo, hi := r[0][axis], r[1][axis]
		if lo > hi {
			lo, hi = hi, lo
		}
		out[0][axis] = lo
		out[1][axis] = hi
	}
	return out
}

// Contains reports whether the point falls within the inclusive bounds of
// the region.
func (r PhysicalRegion) Contains(pt Point) bool {
	n := r.normalized()
	for axis := 0; axis < 3; axis++ {
		if pt[axis] < n[0][axis] || pt[axis] > n[1][axis] {
			return false
		}
	}
	return true
}

// Extent returns the per-axis physical length of the region.
func (r PhysicalRegion) Extent() [3]float64 {
	n := r.normalized()
	var out [3]float64
	for axis := 0; axis < 3; axis++ {
		out[axis] = n[1][axis] - n[0][axis]
	}
	return out
}

// Midpoint returns the center of the region in physical space.
func (r PhysicalRegion) Midpoint() Point {
	var out Point
	for axis := 0; axis < 3; axis++ {
		out[axis] = (r[0][axis] + r[1][axis]) / 2
	}
	return out
}

// ImageRegion is an integer voxel region identified by its start index and
// per-axis size. The upper index is inclusive: a region with index 0 and
// size 10 covers voxel indices 0 through 9.
type ImageRegion struct {
	Index [3]int
	Size  [3]int
}

// UpperIndex returns the inclusive upper voxel index along each axis.
func (r ImageRegion) UpperIndex() [3]int {
	var out [3]int
	for axis := 0; axis < 3; axis++ {
		out[axis] = r.Index[axis] + r.Size[axis] - 1
	}
	return out
}

// IsEmpty reports whether the region covers no voxels.
func (r ImageRegion) IsEmpty() bool {
	for axis := 0; axis < 3; axis++ {
		if r.Size[axis] <= 0 {
			return true
		}
	}
	return false
}

// NumVoxels returns the total voxel count of the region.
func (r ImageRegion) NumVoxels() int {
	if r.IsEmpty() {
		return 0
	}
	return r.Size[0] * r.Size[1] * r.Size[2]
}

// Contains reports whether other lies entirely within the region.
// An empty other region is never contained.
func (r ImageRegion) Contains(other ImageRegion) bool {
	if r.IsEmpty() || other.IsEmpty() {
		return false
	}
	upper := r.UpperIndex()
	otherUpper := other.UpperIndex()
	for axis := 0; axis < 3; axis++ {
		if other.Index[axis] < r.Index[axis] || otherUpper[axis] > upper[axis] {
			return false
		}
	}
	return true
}

// ContainsIndex reports whether the voxel index lies within the region.
func (r ImageRegion) ContainsIndex(idx [3]int) bool {
	upper := r.UpperIndex()
	for axis := 0; axis < 3; axis++ {
		if idx[axis] < r.Index[axis] || idx[axis] > upper[axis] {
			return false
		}
	}
	return true
}

// Crop intersects the region with bound. The boolean result is false when
// the regions do not overlap, in which case the returned region is empty.
func (r ImageRegion) Crop(bound ImageRegion) (ImageRegion, bool) {
	var out ImageRegion
	for axis := 0; axis < 3; axis++ {
		lo := max(r.Index[axis], bound.Index[axis])
		hi := min(r.Index[axis]+r.Size[axis], bound.Index[axis]+bound.Size[axis])
		out.Index[axis] = lo
		out.Size[axis] = hi - lo
		if hi <= lo {
			return out, false
		}
	}
	return out, true
}

// Offset returns the linear buffer offset of a voxel index within the
// region, with the I axis fastest.
func (r ImageRegion) Offset(idx [3]int) int {
	i := idx[0] - r.Index[0]
	j := idx[1] - r.Index[1]
	k := idx[2] - r.Index[2]
	return (k*r.Size[1]+j)*r.Size[0] + i
}
