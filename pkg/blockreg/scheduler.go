package blockreg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"dreg3d/pkg/image"
	"dreg3d/pkg/transform"
)

// defaultBlockEdge is the per-axis block size used when options leave the
// block shape unset.
const defaultBlockEdge = 256

// ErrMissingCollaborator is returned by Schedule when a required external
// collaborator (image source, registration backend, reducer) is absent.
var ErrMissingCollaborator = errors.New("missing registration collaborator")

// Options configures the scheduling layer.
type Options struct {
	// BlockShape is the target voxel shape of each fixed block. Axes left
	// at zero default to 256.
	BlockShape [3]int

	// OverlapFactors give, per axis, the fraction of a block's edge length
	// added as symmetric padding before registration.
	OverlapFactors [3]float64

	// Workers bounds how many block tasks execute concurrently.
	// Non-positive means one worker per CPU.
	Workers int

	// Logger receives per-run and per-block progress. Nil discards logs.
	Logger *log.Logger
}

// Graph is the unexecuted registration task graph: one mutually
// independent task per fixed block, a status-composition node depending
// only on task outputs, and a reduction node depending on all task outputs
// plus the shared immutable inputs. Nothing is fetched or computed until
// Run is called.
type Graph struct {
	partition   *Partition
	descriptors []BlockDescriptor
	initial     transform.Transform
	fixedSrc    image.Source
	movingSrc   image.Source
	method      PairRegistrationMethod
	reducer     ReduceMethod
	opts        Options
}

// Schedule partitions the fixed volume and builds the registration task
// graph. The fixed source is consulted once for full-extent metadata; no
// voxel data is fetched.
func Schedule(
	fixedSrc, movingSrc image.Source,
	method PairRegistrationMethod,
	reducer ReduceMethod,
	initial transform.Transform,
	opts Options,
) (*Graph, error) {
	switch {
	case fixedSrc == nil:
		return nil, fmt.Errorf("%w: fixed image source", ErrMissingCollaborator)
	case movingSrc == nil:
		return nil, fmt.Errorf("%w: moving image source", ErrMissingCollaborator)
	case method == nil:
		return nil, fmt.Errorf("%w: pair registration method", ErrMissingCollaborator)
	case reducer == nil:
		return nil, fmt.Errorf("%w: reduce method", ErrMissingCollaborator)
	}
	if initial == nil {
		initial = transform.Identity{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	for axis := 0; axis < 3; axis++ {
		if opts.BlockShape[axis] == 0 {
			opts.BlockShape[axis] = defaultBlockEdge
		}
	}

	reader, err := fixedSrc()
	if err != nil {
		return nil, fmt.Errorf("failed to construct fixed reader: %w", err)
	}
	meta, err := reader.Metadata()
	if err != nil {
		return nil, fmt.Errorf("failed to read fixed metadata: %w", err)
	}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fixed metadata: %w", err)
	}
	partition, err := NewPartition(meta.Region, opts.BlockShape)
	if err != nil {
		return nil, err
	}
	opts.Logger.Info("scheduled registration graph",
		"extent", meta.Region, "blockShape", opts.BlockShape, "partition", partition.Shape())

	return &Graph{
		partition:   partition,
		descriptors: partition.Blocks(),
		initial:     initial,
		fixedSrc:    fixedSrc,
		movingSrc:   movingSrc,
		method:      method,
		reducer:     reducer,
		opts:        opts,
	}, nil
}

// PartitionShape returns the number of blocks along each axis, which is
// also the shape of the final status grid.
func (g *Graph) PartitionShape() [3]int { return g.partition.Shape() }

// Descriptors returns the block descriptors the graph schedules, in
// partition order.
func (g *Graph) Descriptors() []BlockDescriptor {
	out := make([]BlockDescriptor, len(g.descriptors))
	copy(out, g.descriptors)
	return out
}

// Run executes the graph: block tasks fan out across the worker pool, and
// once all have completed, status composition and reduction run as
// independent nodes. Per-block failures are absorbed into the status grid;
// a reduction failure (including the all-blocks-failed case) is fatal and
// surfaces as an error.
func (g *Graph) Run(ctx context.Context) (*RegistrationResult, error) {
	results := make([]*BlockPairResult, len(g.descriptors))

	tasks, taskCtx := errgroup.WithContext(ctx)
	tasks.SetLimit(g.opts.Workers)
	for i, desc := range g.descriptors {
		i, desc := i, desc
		tasks.Go(func() error {
			if err := taskCtx.Err(); err != nil {
				return err
			}
			results[i] = runBlockPair(taskCtx, taskInputs{
				descriptor:     desc,
				initial:        g.initial,
				overlapFactors: g.opts.OverlapFactors,
				fixedSource:    g.fixedSrc,
				movingSource:   g.movingSrc,
				method:         g.method,
				logger:         g.opts.Logger,
			})
			return nil
		})
	}
	if err := tasks.Wait(); err != nil {
		return nil, err
	}

	located := make([]LocatedBlockResult, len(results))
	for i, res := range results {
		located[i] = LocatedBlockResult{Descriptor: g.descriptors[i], Result: res}
	}

	// Status reporting neither blocks on nor is blocked by the fusion
	// outcome; the two nodes only share the completed task results.
	var grid *StatusGrid
	var transforms *RegistrationTransformResult
	join, joinCtx := errgroup.WithContext(ctx)
	join.Go(func() error {
		var err error
		grid, err = ComposeStatus(g.partition.Shape(), g.descriptors, results)
		return err
	})
	join.Go(func() error {
		var err error
		transforms, err = g.reducer.Reduce(joinCtx, ReduceRequest{
			Results:          located,
			FixedSource:      g.fixedSrc,
			InitialTransform: g.initial,
		})
		if err != nil {
			return fmt.Errorf("reduction failed: %w", err)
		}
		return nil
	})
	if err := join.Wait(); err != nil {
		return nil, err
	}

	g.opts.Logger.Info("registration run completed",
		"blocks", len(results), "succeeded", grid.CountSuccess())
	return ComposeResult(transforms, grid), nil
}
