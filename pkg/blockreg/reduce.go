package blockreg

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/stat"

	"dreg3d/pkg/fusion"
	"dreg3d/pkg/transform"
)

// ErrNoSuccessfulBlocks is returned by reducers when every block failed:
// no valid fused transform can be produced, and guessing a default would
// hide the failure.
var ErrNoSuccessfulBlocks = errors.New("no successful block results to fuse")

// DisplacementFieldReducer fuses block results by collecting the successful
// forward transforms with their domains into a transform collection and
// rasterizing it into a dense displacement field over the fixed grid.
type DisplacementFieldReducer struct {
	// ScaleFactors scale the fixed spacing elementwise to set the output
	// field resolution. Axes left at zero default to 1.
	ScaleFactors [3]float64

	// Blend selects the blending policy for overlapping block domains.
	// Nil defaults to the distance-weighted mean.
	Blend fusion.BlendFunc

	// Workers bounds the parallelism of the rasterization loop.
	Workers int

	// Logger receives fusion progress; nil is silent.
	Logger *log.Logger
}

// Reduce builds the blended collection from successful results and samples
// it into a displacement field transform covering the fixed domain.
func (r *DisplacementFieldReducer) Reduce(ctx context.Context, req ReduceRequest) (*RegistrationTransformResult, error) {
	blend := r.Blend
	if blend == nil {
		blend = fusion.NewDistanceWeightedMean(r.Logger)
	}
	collection, err := fusion.NewCollection(blend)
	if err != nil {
		return nil, err
	}
	for _, located := range req.Results {
		if located.Result == nil || located.Result.Status != StatusSuccess {
			continue
		}
		entry := fusion.Entry{
			Transform: located.Result.Transform,
			Domain:    located.Result.TransformDomain,
		}
		if err := collection.Push(entry); err != nil {
			return nil, fmt.Errorf("block %v produced an unusable transform entry: %w",
				located.Descriptor.ChunkIndex, err)
		}
	}
	if collection.Len() == 0 {
		return nil, ErrNoSuccessfulBlocks
	}

	reader, err := req.FixedSource()
	if err != nil {
		return nil, fmt.Errorf("failed to construct fixed reader: %w", err)
	}
	meta, err := reader.Metadata()
	if err != nil {
		return nil, fmt.Errorf("failed to read fixed metadata: %w", err)
	}

	scale := r.ScaleFactors
	for axis := 0; axis < 3; axis++ {
		if scale[axis] == 0 {
			scale[axis] = 1
		}
	}
	field, err := fusion.SynthesizeDisplacementField(
		ctx, collection, meta, req.InitialTransform, scale, r.Workers, r.Logger)
	if err != nil {
		return nil, err
	}
	return &RegistrationTransformResult{Transform: field}, nil
}

// TranslationConsensusReducer fuses block results by averaging the
// translation offsets of all successful blocks into a single global
// translation. It only accepts translation results (possibly nested inside
// composites) and fails loudly on any other transform type.
type TranslationConsensusReducer struct {
	// Logger receives consensus progress; nil is silent.
	Logger *log.Logger
}

// Reduce averages the successful blocks' translation offsets per axis.
func (r *TranslationConsensusReducer) Reduce(_ context.Context, req ReduceRequest) (*RegistrationTransformResult, error) {
	var samples [3][]float64
	for _, located := range req.Results {
		if located.Result == nil || located.Result.Status != StatusSuccess {
			continue
		}
		leaves := transform.Flatten(located.Result.Transform)
		if len(leaves) != 1 {
			return nil, fmt.Errorf("block %v: cannot take translation consensus over %d chained transforms",
				located.Descriptor.ChunkIndex, len(leaves))
		}
		translation, ok := leaves[0].(*transform.Translation)
		if !ok {
			return nil, fmt.Errorf("block %v: cannot take translation consensus over %T",
				located.Descriptor.ChunkIndex, leaves[0])
		}
		for axis := 0; axis < 3; axis++ {
			samples[axis] = append(samples[axis], translation.Offset[axis])
		}
	}
	if len(samples[0]) == 0 {
		return nil, ErrNoSuccessfulBlocks
	}
	var offset [3]float64
	for axis := 0; axis < 3; axis++ {
		offset[axis] = stat.Mean(samples[axis], nil)
	}
	if r.Logger != nil {
		r.Logger.Info("translation consensus",
			"samples", len(samples[0]), "offset", offset)
	}
	return &RegistrationTransformResult{Transform: transform.NewTranslation(offset)}, nil
}
