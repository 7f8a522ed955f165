// Package blockreg coordinates large-scale image-to-image registration by
// subdividing a fixed volume into independently registered blocks and
// fusing the per-block results into one spatially consistent transform.
//
// The package owns the scheduling layer: it partitions the fixed domain,
// derives padded and cropped regions for each block, drives one
// registration task per block while isolating per-block failures, and
// assembles per-block statuses alongside the fused transform. The actual
// voxel-level registration algorithm is an external collaborator supplied
// through the PairRegistrationMethod interface.
package blockreg

import (
	"errors"
	"fmt"

	"dreg3d/pkg/geometry"
	"dreg3d/pkg/transform"
)

// Status is the outcome code of registering a single block pair.
type Status uint8

const (
	// StatusSuccess indicates registration yielded at least a forward
	// transform result.
	StatusSuccess Status = 0

	// StatusFailure indicates registration encountered an unspecified error.
	StatusFailure Status = 1
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// ErrInvalidResult is returned when a block pair result violates its
// construction invariants.
var ErrInvalidResult = errors.New("invalid block pair result")

// BlockPairResult is the outcome of fixed-to-moving registration over one
// block pair. Results are immutable after construction.
//
// The forward transform maps a moving-to-fixed delta to be composed after
// the initial alignment, not a full replacement of it. Each transform
// domain is an oriented physical bounding region, carried as unbuffered
// image metadata.
type BlockPairResult struct {
	Status             Status
	Transform          transform.Transform
	TransformDomain    *geometry.Metadata
	InvTransform       transform.Transform
	InvTransformDomain *geometry.Metadata
}

// NewBlockPairResult validates and constructs a block pair result.
// Invariants, fatal at construction:
//
//   - a success status requires a forward transform;
//   - a transform domain is present iff the forward transform is present;
//   - an inverse transform requires the forward transform;
//   - an inverse transform domain is present iff the inverse transform is
//     present;
//   - any present domain must describe a non-degenerate region.
func NewBlockPairResult(
	status Status,
	fwd transform.Transform, fwdDomain *geometry.Metadata,
	inv transform.Transform, invDomain *geometry.Metadata,
) (*BlockPairResult, error) {
	r := &BlockPairResult{
		Status:             status,
		Transform:          fwd,
		TransformDomain:    fwdDomain,
		InvTransform:       inv,
		InvTransformDomain: invDomain,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewFailureResult returns the uniform failure placeholder produced when a
// block cannot be registered.
func NewFailureResult() *BlockPairResult {
	return &BlockPairResult{Status: StatusFailure}
}

// Validate checks the construction invariants of the result.
func (r *BlockPairResult) Validate() error {
	if r.Status == StatusSuccess && r.Transform == nil {
		return fmt.Errorf("%w: success status requires a forward transform", ErrInvalidResult)
	}
	if (r.Transform != nil) != (r.TransformDomain != nil) {
		return fmt.Errorf("%w: transform domain must be present iff transform is present", ErrInvalidResult)
	}
	if r.InvTransform != nil && r.Transform == nil {
		return fmt.Errorf("%w: inverse transform requires a forward transform", ErrInvalidResult)
	}
	if (r.InvTransform != nil) != (r.InvTransformDomain != nil) {
		return fmt.Errorf("%w: inverse transform domain must be present iff inverse transform is present", ErrInvalidResult)
	}
	for _, domain := range []*geometry.Metadata{r.TransformDomain, r.InvTransformDomain} {
		if domain == nil {
			continue
		}
		if err := domain.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResult, err)
		}
		if domain.Region.NumVoxels() == 0 {
			return fmt.Errorf("%w: degenerate transform domain %+v", ErrInvalidResult, domain.Region)
		}
	}
	return nil
}

// LocatedBlockResult pairs a block pair result with the descriptor of the
// fixed block it came from. Results are always associated back to their
// originating descriptor explicitly, never by arrival order.
type LocatedBlockResult struct {
	Descriptor BlockDescriptor
	Result     *BlockPairResult
}

// RegistrationTransformResult is the fused output of reducing all block
// pair results: the forward transform covering the fixed domain, plus an
// optional inverse.
type RegistrationTransformResult struct {
	Transform    transform.Transform
	InvTransform transform.Transform
}

// RegistrationResult is the terminal output of a registration run: the
// fused transforms plus a dense status grid matching the block partition
// shape, letting a caller localize which blocks failed even when the
// overall reduction succeeded.
type RegistrationResult struct {
	Transforms *RegistrationTransformResult
	Status     *StatusGrid
}

// StatusGrid is a dense grid of per-block status codes with the same shape
// as the block partition.
type StatusGrid struct {
	shape [3]int
	codes []Status
}

// NewStatusGrid allocates a grid of the given partition shape. All cells
// start as StatusFailure so unreported blocks read as failed.
func NewStatusGrid(shape [3]int) (*StatusGrid, error) {
	n := 1
	for axis := 0; axis < 3; axis++ {
		if shape[axis] <= 0 {
			return nil, fmt.Errorf("invalid status grid shape %v", shape)
		}
		n *= shape[axis]
	}
	codes := make([]Status, n)
	for i := range codes {
		codes[i] = StatusFailure
	}
	return &StatusGrid{shape: shape, codes: codes}, nil
}

// Shape returns the partition shape of the grid.
func (g *StatusGrid) Shape() [3]int { return g.shape }

// Len returns the total number of blocks in the grid.
func (g *StatusGrid) Len() int { return len(g.codes) }

func (g *StatusGrid) offset(chunk [3]int) (int, error) {
	for axis := 0; axis < 3; axis++ {
		if chunk[axis] < 0 || chunk[axis] >= g.shape[axis] {
			return 0, fmt.Errorf("chunk index %v outside grid shape %v", chunk, g.shape)
		}
	}
	return (chunk[0]*g.shape[1]+chunk[1])*g.shape[2] + chunk[2], nil
}

// At returns the status stored for a chunk index.
func (g *StatusGrid) At(chunk [3]int) (Status, error) {
	off, err := g.offset(chunk)
	if err != nil {
		return StatusFailure, err
	}
	return g.codes[off], nil
}

// Set stores the status for a chunk index.
func (g *StatusGrid) Set(chunk [3]int, status Status) error {
	off, err := g.offset(chunk)
	if err != nil {
		return err
	}
	g.codes[off] = status
	return nil
}

// CountSuccess returns the number of blocks that registered successfully.
func (g *StatusGrid) CountSuccess() int {
	n := 0
	for _, s := range g.codes {
		if s == StatusSuccess {
			n++
		}
	}
	return n
}
