package blockreg

import (
	"fmt"

	"dreg3d/pkg/geometry"
)

// BlockDescriptor identifies one block of a partitioned volume: its chunk
// position among blocks and its half-open [start,stop) voxel bounds within
// the parent volume. Descriptors are created once by the partitioner and
// never modified.
type BlockDescriptor struct {
	// ChunkIndex is the block's position in the partition in units of
	// blocks per axis. Traversing a 2x2x2 partition along the fastest
	// (last) axis first, the 0th block has chunk index (0,0,0), the 1st
	// has (0,0,1), and the 7th has (1,1,1).
	ChunkIndex [3]int

	// Start is the inclusive lower voxel index of the block per axis.
	Start [3]int

	// Stop is the exclusive upper voxel index of the block per axis.
	Stop [3]int
}

// Shape returns the per-axis voxel extent of the block.
func (d BlockDescriptor) Shape() [3]int {
	var out [3]int
	for axis := 0; axis < 3; axis++ {
		out[axis] = d.Stop[axis] - d.Start[axis]
	}
	return out
}

// Region returns the block bounds as an image region.
func (d BlockDescriptor) Region() geometry.ImageRegion {
	return geometry.ImageRegion{Index: d.Start, Size: d.Shape()}
}

// Partition subdivides a voxel extent into blocks of a target shape. Edge
// blocks shrink where the extent does not divide evenly. The enumeration is
// deterministic and restartable: Blocks always regenerates the same
// descriptors in row-major order over chunk indices, last axis fastest.
type Partition struct {
	extent     geometry.ImageRegion
	blockShape [3]int
	numBlocks  [3]int
}

// NewPartition validates the extent and target block shape and returns the
// partition covering the extent.
func NewPartition(extent geometry.ImageRegion, blockShape [3]int) (*Partition, error) {
	if extent.IsEmpty() {
		return nil, fmt.Errorf("cannot partition empty extent %+v", extent)
	}
	var numBlocks [3]int
	for axis := 0; axis < 3; axis++ {
		if blockShape[axis] <= 0 {
			return nil, fmt.Errorf("invalid block shape %v: non-positive size on axis %d",
				blockShape, axis)
		}
		numBlocks[axis] = (extent.Size[axis] + blockShape[axis] - 1) / blockShape[axis]
	}
	return &Partition{extent: extent, blockShape: blockShape, numBlocks: numBlocks}, nil
}

// Shape returns the number of blocks along each axis.
func (p *Partition) Shape() [3]int { return p.numBlocks }

// Count returns the total number of blocks.
func (p *Partition) Count() int {
	return p.numBlocks[0] * p.numBlocks[1] * p.numBlocks[2]
}

// Extent returns the voxel extent covered by the partition.
func (p *Partition) Extent() geometry.ImageRegion { return p.extent }

// Blocks enumerates the block descriptors covering the extent in row-major
// chunk order with the last axis fastest.
func (p *Partition) Blocks() []BlockDescriptor {
	out := make([]BlockDescriptor, 0, p.Count())
	for c0 := 0; c0 < p.numBlocks[0]; c0++ {
		for c1 := 0; c1 < p.numBlocks[1]; c1++ {
			for c2 := 0; c2 < p.numBlocks[2]; c2++ {
				chunk := [3]int{c0, c1, c2}
				var desc BlockDescriptor
				desc.ChunkIndex = chunk
				for axis := 0; axis < 3; axis++ {
					start := p.extent.Index[axis] + chunk[axis]*p.blockShape[axis]
					stop := start + p.blockShape[axis]
					if limit := p.extent.Index[axis] + p.extent.Size[axis]; stop > limit {
						stop = limit
					}
					desc.Start[axis] = start
					desc.Stop[axis] = stop
				}
				out = append(out, desc)
			}
		}
	}
	return out
}
