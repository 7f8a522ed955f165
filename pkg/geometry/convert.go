package geometry

import (
	"math"
)

// halfVoxelStep is the offset between a voxel center sample point and the
// edge of the physical volume that voxel samples. Region conversions shift
// by this amount so that physical regions describe sampled volume rather
// than voxel centers only.
const halfVoxelStep = 0.5

// PointMapper is the capability of transforming one physical point into
// another. All spatial transforms used by the registration engine satisfy
// this interface.
type PointMapper interface {
	TransformPoint(Point) Point
}

// EstimateBoundingBox maps the 8 corners of a physical region through the
// transform and returns the axis-aligned bounding box of the results.
//
// The returned box may not fully contain all transformed interior points
// when a deformable transform is applied, and an axis-aligned box is a poor
// fit for a heavily rotated region. It is an approximation; use with care.
func EstimateBoundingBox(region PhysicalRegion, t PointMapper) PhysicalRegion {
	n := region.normalized()
	var out PhysicalRegion
	first := true
	for _, x := range []float64{n[0][0], n[1][0]} {
		for _, y := range []float64{n[0][1], n[1][1]} {
			for _, z := range []float64{n[0][2], n[1][2]} {
				pt := t.TransformPoint(Point{x, y, z})
				if first {
					out[0], out[1] = [3]float64(pt), [3]float64(pt)
					first = false
					continue
				}
				for axis := 0; axis < 3; axis++ {
					out[0][axis] = math.Min(out[0][axis], pt[axis])
					out[1][axis] = math.Max(out[1][axis], pt[axis])
				}
			}
		}
	}
	return out
}

// BlockToPhysicalRegion converts a voxel region into the corresponding
// axis-aligned physical region of the reference grid. Bounds are shifted by
// half a voxel before mapping so the result covers the sampled volume.
// When a transform is supplied the result is the estimated bounding box of
// the transformed region corners.
func BlockToPhysicalRegion(block BlockRegion, ref Metadata, t PointMapper) (PhysicalRegion, error) {
	if err := ref.Validate(); err != nil {
		return PhysicalRegion{}, err
	}
	n := block.normalized()
	var adjusted [2][3]float64
	for row := 0; row < 2; row++ {
		for axis := 0; axis < 3; axis++ {
			adjusted[row][axis] = n[row][axis] - halfVoxelStep
		}
	}
	lower := ref.IndexToPhysical(adjusted[0])
	upper := ref.IndexToPhysical(adjusted[1])
	region := PhysicalRegion{[3]float64(lower), [3]float64(upper)}.normalized()
	if t == nil {
		return region, nil
	}
	return EstimateBoundingBox(region, t), nil
}

// PhysicalToBlockRegion converts a physical region into the continuous
// voxel region of the reference grid that samples it, un-shifting the half
// voxel applied by BlockToPhysicalRegion. The result carries fractional
// bounds; callers needing an integer voxel region must round explicitly,
// e.g. via BlockToImageRegion.
func PhysicalToBlockRegion(phys PhysicalRegion, ref Metadata) (BlockRegion, error) {
	if err := ref.Validate(); err != nil {
		return BlockRegion{}, err
	}
	lowerIdx, err := ref.PhysicalToIndex(Point(phys[0]))
	if err != nil {
		return BlockRegion{}, err
	}
	upperIdx, err := ref.PhysicalToIndex(Point(phys[1]))
	if err != nil {
		return BlockRegion{}, err
	}
	block := BlockRegion{lowerIdx, upperIdx}.normalized()
	for row := 0; row < 2; row++ {
		for axis := 0; axis < 3; axis++ {
			block[row][axis] += halfVoxelStep
		}
	}
	return block, nil
}

// BlockToImageRegion rounds a continuous voxel region down to the integer
// image region representation. Exact integer bounds round trip losslessly
// with ImageToBlockRegion.
func BlockToImageRegion(block BlockRegion) ImageRegion {
	n := block.normalized()
	var out ImageRegion
	for axis := 0; axis < 3; axis++ {
		lower := int(math.Floor(n[0][axis]))
		upper := int(math.Floor(n[1][axis]))
		out.Index[axis] = lower
		out.Size[axis] = upper - lower
	}
	return out
}

// ImageToBlockRegion widens an integer image region into the half-open
// continuous voxel-bounds representation.
func ImageToBlockRegion(region ImageRegion) BlockRegion {
	var out BlockRegion
	for axis := 0; axis < 3; axis++ {
		out[0][axis] = float64(region.Index[axis])
		out[1][axis] = float64(region.Index[axis] + region.Size[axis])
	}
	return out
}

// ImageToPhysicalRegion converts an integer image region into the physical
// region it samples on the reference grid, optionally mapped through a
// transform.
func ImageToPhysicalRegion(region ImageRegion, ref Metadata, t PointMapper) (PhysicalRegion, error) {
	return BlockToPhysicalRegion(ImageToBlockRegion(region), ref, t)
}

// PhysicalToImageRegion converts a physical region into the integer image
// region of the reference grid that samples it.
func PhysicalToImageRegion(phys PhysicalRegion, ref Metadata) (ImageRegion, error) {
	block, err := PhysicalToBlockRegion(phys, ref)
	if err != nil {
		return ImageRegion{}, err
	}
	return BlockToImageRegion(block), nil
}

// SampleBounds returns the axis-aligned physical bounds of the full space
// sampled by the image described by meta, optionally mapped through a
// transform. Voxels are treated as samples taken at the spatial center of
// the volume they occupy, so bounds extend half a voxel beyond the boundary
// voxel centers.
func SampleBounds(meta Metadata, t PointMapper) (PhysicalRegion, error) {
	return ImageToPhysicalRegion(meta.Region, meta, t)
}

// PhysicalMidpoint estimates the physical center of the sampled volume,
// optionally after applying a transform.
func PhysicalMidpoint(meta Metadata, t PointMapper) (Point, error) {
	bounds, err := SampleBounds(meta, t)
	if err != nil {
		return Point{}, err
	}
	return bounds.Midpoint(), nil
}

// TargetBlockRegion finds the voxel region in the target grid corresponding
// to a voxel region in the source grid, passing through physical space and
// optionally through a transform mapping source physical space into target
// physical space.
//
// With cropToTarget set, the result is clipped against the target's full
// extent so it is guaranteed to lie either fully inside or fully outside
// the target volume, never partially overlapping at a ragged edge. Cropping
// is required before requesting a buffered read of the region.
func TargetBlockRegion(block BlockRegion, src, target Metadata, t PointMapper, cropToTarget bool) (BlockRegion, error) {
	phys, err := BlockToPhysicalRegion(block, src, t)
	if err != nil {
		return BlockRegion{}, err
	}
	targetBlock, err := PhysicalToBlockRegion(phys, target)
	if err != nil {
		return BlockRegion{}, err
	}
	if cropToTarget {
		region := BlockToImageRegion(targetBlock)
		cropped, _ := region.Crop(target.Region)
		targetBlock = ImageToBlockRegion(cropped)
	}
	return targetBlock, nil
}
