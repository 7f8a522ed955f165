package blockreg

import (
	"context"
	"math"

	"github.com/charmbracelet/log"

	"dreg3d/pkg/geometry"
	"dreg3d/pkg/image"
	"dreg3d/pkg/transform"
)

// taskInputs bundles the immutable inputs of one block pair task.
type taskInputs struct {
	descriptor     BlockDescriptor
	initial        transform.Transform
	overlapFactors [3]float64
	fixedSource    image.Source
	movingSource   image.Source
	method         PairRegistrationMethod
	logger         *log.Logger
}

// runBlockPair fetches physically aligned fixed and moving subimages for
// one block and invokes the registration backend on them.
//
// Every recoverable failure (a region falling outside either volume, an
// empty moving signal, a reader error, a backend error or panic, or a
// backend result violating the block pair invariants) is logged and
// converted into the uniform failure result. No single block failure ever
// aborts the batch or its sibling tasks.
func runBlockPair(ctx context.Context, in taskInputs) (result *BlockPairResult) {
	logger := in.logger.With("block", in.descriptor.ChunkIndex)
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("registration backend panicked", "panic", r)
			result = NewFailureResult()
		}
	}()

	// Pad the block symmetrically: the overlap factor is the total extra
	// length per axis, so each side gains half of it.
	shape := in.descriptor.Shape()
	blockRegion := in.descriptor.Region()
	padded := blockRegion
	for axis := 0; axis < 3; axis++ {
		pad := int(math.Ceil(float64(shape[axis]) * in.overlapFactors[axis] / 2))
		padded.Index[axis] -= pad
		padded.Size[axis] += 2 * pad
	}

	fixedReader, err := in.fixedSource()
	if err != nil {
		logger.Warn("failed to construct fixed reader", "err", err)
		return NewFailureResult()
	}
	fixedMeta, err := fixedReader.Metadata()
	if err != nil {
		logger.Warn("failed to read fixed metadata", "err", err)
		return NewFailureResult()
	}
	cropped, ok := padded.Crop(fixedMeta.Region)
	if !ok || cropped.IsEmpty() || !fixedMeta.Region.Contains(cropped) {
		logger.Warn("fixed padded region lies outside volume extent",
			"padded", padded, "extent", fixedMeta.Region)
		return NewFailureResult()
	}
	logger.Debug("fixed block regions", "unpadded", blockRegion, "padded", cropped)

	fixedImage, err := fixedReader.Read(cropped)
	if err != nil {
		logger.Warn("failed to fetch fixed subregion", "region", cropped, "err", err)
		return NewFailureResult()
	}
	fixedImage.Requested = blockRegion

	movingReader, err := in.movingSource()
	if err != nil {
		logger.Warn("failed to construct moving reader", "err", err)
		return NewFailureResult()
	}
	movingMeta, err := movingReader.Metadata()
	if err != nil {
		logger.Warn("failed to read moving metadata", "err", err)
		return NewFailureResult()
	}

	// Map the fixed unpadded and padded regions through the initial
	// alignment into moving voxel coordinates, clipped so each lies fully
	// inside or fully outside the moving volume.
	movingBlock, err := geometry.TargetBlockRegion(
		geometry.ImageToBlockRegion(fixedImage.Requested),
		fixedMeta, movingMeta, in.initial, true)
	if err != nil {
		logger.Warn("failed to map block into moving space", "err", err)
		return NewFailureResult()
	}
	movingPaddedBlock, err := geometry.TargetBlockRegion(
		geometry.ImageToBlockRegion(fixedImage.Buffered),
		fixedMeta, movingMeta, in.initial, true)
	if err != nil {
		logger.Warn("failed to map padded block into moving space", "err", err)
		return NewFailureResult()
	}
	movingPadded := geometry.BlockToImageRegion(movingPaddedBlock)
	if movingPadded.IsEmpty() || !movingMeta.Region.Contains(movingPadded) {
		logger.Warn("moving region lies outside volume extent",
			"region", movingPadded, "extent", movingMeta.Region)
		return NewFailureResult()
	}
	logger.Debug("moving block regions",
		"unpadded", geometry.BlockToImageRegion(movingBlock), "padded", movingPadded)

	movingImage, err := movingReader.Read(movingPadded)
	if err != nil {
		logger.Warn("failed to fetch moving subregion", "region", movingPadded, "err", err)
		return NewFailureResult()
	}
	// The forward/backward region mapping round trip can leave the unpadded
	// moving bounds one voxel past the padded fetch at a cropped edge; clip
	// the requested region back inside the buffer.
	movingUnpadded := geometry.BlockToImageRegion(movingBlock)
	if clipped, ok := movingUnpadded.Crop(movingPadded); ok {
		movingUnpadded = clipped
	}
	movingImage.Requested = movingUnpadded

	if !movingImage.HasSignal() {
		logger.Warn("no signal observed in moving block")
		return NewFailureResult()
	}

	res, err := in.method.RegisterPair(ctx, PairRequest{
		Fixed:            fixedImage,
		Moving:           movingImage,
		InitialTransform: in.initial,
		Descriptor:       in.descriptor,
	})
	if err != nil {
		logger.Warn("registration backend failed", "err", err)
		return NewFailureResult()
	}
	if res == nil {
		logger.Warn("registration backend returned no result")
		return NewFailureResult()
	}
	if err := res.Validate(); err != nil {
		logger.Warn("registration backend returned invalid result", "err", err)
		return NewFailureResult()
	}
	logger.Info("block registration completed", "status", res.Status)
	return res
}
