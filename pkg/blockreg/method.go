package blockreg

import (
	"context"

	"dreg3d/pkg/image"
	"dreg3d/pkg/transform"
)

// PairRequest carries everything a registration backend needs to register
// one fixed/moving block pair. The backend must not mutate the request's
// images or metadata in a way observed by the caller after return.
type PairRequest struct {
	// Fixed is the reference subimage. Its requested region is the
	// unpadded block; its buffered region includes the overlap padding.
	Fixed *image.Image

	// Moving is the subimage to register onto fixed space. Its requested
	// region approximates the physical bounds of the fixed requested
	// region after the initial alignment; its buffered region includes
	// padding.
	Moving *image.Image

	// InitialTransform maps fixed physical space into moving physical
	// space. The result transform is a delta composed after it.
	InitialTransform transform.Transform

	// Descriptor locates the fixed block within the partition.
	Descriptor BlockDescriptor
}

// PairRegistrationMethod registers two spatially located image blocks.
// Implementations plug an actual registration algorithm into the scheduling
// layer; the engine treats any returned error, panic, or invariant-
// violating result as a recoverable per-block failure.
type PairRegistrationMethod interface {
	RegisterPair(ctx context.Context, req PairRequest) (*BlockPairResult, error)
}

// ReduceRequest carries the complete set of located block results plus the
// shared immutable inputs a reduction needs to fuse them.
type ReduceRequest struct {
	// Results holds one entry per partition block, in partition order,
	// including uniform failure placeholders for failed blocks.
	Results []LocatedBlockResult

	// FixedSource constructs readers over the fixed volume, for reductions
	// that need the fixed grid metadata.
	FixedSource image.Source

	// InitialTransform is the initial alignment used during registration.
	InitialTransform transform.Transform
}

// ReduceMethod fuses per-block registration results into a single transform
// valid across the fixed domain. Implementations must treat an all-failure
// input as fatal rather than guessing a silent default transform.
type ReduceMethod interface {
	Reduce(ctx context.Context, req ReduceRequest) (*RegistrationTransformResult, error)
}
