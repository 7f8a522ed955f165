package fusion

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"dreg3d/pkg/geometry"
	"dreg3d/pkg/transform"
)

// SynthesizeDisplacementField rasterizes a transform collection into a
// dense displacement field for consumers that need a simple, boundable
// discretized transform rather than the live blended representation.
//
// The output grid covers the reference volume's physical extent after
// applying the initial transform, sampled at the reference spacing scaled
// elementwise by scaleFactors. Each output voxel stores the offset between
// its physical position and that position mapped through the collection.
// Voxels outside all transform domains keep a zero displacement; per-voxel
// coverage misses are counted and logged, never propagated.
//
// Voxels are independent, so the fill loop runs on up to workers goroutines
// (default NumCPU) with each goroutine writing a disjoint slab.
func SynthesizeDisplacementField(
	ctx context.Context,
	c *Collection,
	ref geometry.Metadata,
	initial transform.Transform,
	scaleFactors [3]float64,
	workers int,
	logger *log.Logger,
) (*transform.DisplacementField, error) {
	physRegion, err := geometry.ImageToPhysicalRegion(ref.Region, ref, initial)
	if err != nil {
		return nil, err
	}
	var spacing [3]float64
	for axis := 0; axis < 3; axis++ {
		spacing[axis] = ref.Spacing[axis] * scaleFactors[axis]
	}
	grid, err := geometry.GridFromPhysicalRegion(physRegion, spacing, ref.Direction, true)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("synthesizing displacement field",
			"gridSize", grid.Region.Size, "spacing", spacing)
	}

	vectors := make([][3]float64, grid.Region.NumVoxels())
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var missed atomic.Int64
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	upper := grid.Region.UpperIndex()
	for k := grid.Region.Index[2]; k <= upper[2]; k++ {
		k := k
		group.Go(func() error {
			for j := grid.Region.Index[1]; j <= upper[1]; j++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				for i := grid.Region.Index[0]; i <= upper[0]; i++ {
					idx := [3]int{i, j, k}
					pt := grid.IndexToPhysical([3]float64{float64(i), float64(j), float64(k)})
					mapped, err := c.TransformPoint(pt)
					if errors.Is(err, ErrNoCoverage) {
						missed.Add(1)
						continue
					}
					if err != nil {
						return err
					}
					vectors[grid.Region.Offset(idx)] = [3]float64{
						mapped[0] - pt[0],
						mapped[1] - pt[1],
						mapped[2] - pt[2],
					}
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if n := missed.Load(); n > 0 && logger != nil {
		logger.Debug("voxels outside all transform domains kept zero displacement",
			"count", n, "total", grid.Region.NumVoxels())
	}
	return transform.NewDisplacementField(grid, vectors)
}
