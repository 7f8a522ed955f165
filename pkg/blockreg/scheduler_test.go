package blockreg_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dreg3d/internal/mock"
	"dreg3d/pkg/blockreg"
	"dreg3d/pkg/geometry"
	"dreg3d/pkg/transform"
)

func TestScheduleRequiresCollaborators(t *testing.T) {
	fixed := mock.UniformVolume([3]int{10, 10, 10}, 1)
	method := mock.NewConstantPairRegistration()
	reducer := mock.NewConstantReduce()

	_, err := blockreg.Schedule(nil, fixed.Source(), method, reducer, nil, blockreg.Options{})
	assert.ErrorIs(t, err, blockreg.ErrMissingCollaborator)
	_, err = blockreg.Schedule(fixed.Source(), nil, method, reducer, nil, blockreg.Options{})
	assert.ErrorIs(t, err, blockreg.ErrMissingCollaborator)
	_, err = blockreg.Schedule(fixed.Source(), fixed.Source(), nil, reducer, nil, blockreg.Options{})
	assert.ErrorIs(t, err, blockreg.ErrMissingCollaborator)
	_, err = blockreg.Schedule(fixed.Source(), fixed.Source(), method, nil, nil, blockreg.Options{})
	assert.ErrorIs(t, err, blockreg.ErrMissingCollaborator)
}

func TestSchedulePartitionsFixedExtent(t *testing.T) {
	fixed := mock.UniformVolume([3]int{20, 30, 45}, 1)
	graph, err := blockreg.Schedule(
		fixed.Source(), fixed.Source(),
		mock.NewConstantPairRegistration(), mock.NewConstantReduce(), nil,
		blockreg.Options{BlockShape: [3]int{10, 10, 10}},
	)
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 3, 5}, graph.PartitionShape())
	assert.Len(t, graph.Descriptors(), 30)
}

func TestRunAllBlocksSucceed(t *testing.T) {
	fixed := mock.UniformVolume([3]int{20, 20, 20}, 1)
	moving := mock.UniformVolume([3]int{20, 20, 20}, 1)
	method := mock.NewConstantPairRegistration()
	reducer := mock.NewConstantReduce()

	graph, err := blockreg.Schedule(
		fixed.Source(), moving.Source(), method, reducer, nil,
		blockreg.Options{BlockShape: [3]int{10, 10, 10}, Workers: 4},
	)
	require.NoError(t, err)

	result, err := graph.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, [3]int{2, 2, 2}, result.Status.Shape())
	assert.Equal(t, 8, result.Status.CountSuccess())
	assert.Equal(t, 8, method.Calls())
	// Reduction runs exactly once over all block results.
	assert.Equal(t, 1, reducer.Calls())
	assert.Len(t, reducer.LastRequest.Results, 8)
	assert.Same(t, reducer.Result, result.Transforms)
}

func TestRunIsolatesOutOfExtentBlocks(t *testing.T) {
	// The moving volume covers only the lower octant of the fixed extent, so
	// every block except (0,0,0) maps outside it and must fail without
	// aborting the run.
	fixed := mock.UniformVolume([3]int{20, 20, 20}, 1)
	moving := mock.UniformVolume([3]int{10, 10, 10}, 1)
	method := mock.NewConstantPairRegistration()
	reducer := mock.NewConstantReduce()

	graph, err := blockreg.Schedule(
		fixed.Source(), moving.Source(), method, reducer, nil,
		blockreg.Options{BlockShape: [3]int{10, 10, 10}},
	)
	require.NoError(t, err)

	result, err := graph.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Status.CountSuccess())
	got, err := result.Status.At([3]int{0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, blockreg.StatusSuccess, got)
	got, err = result.Status.At([3]int{1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, blockreg.StatusFailure, got)

	// Only the surviving block reached the backend.
	assert.Equal(t, 1, method.Calls())
	// The reducer still sees all blocks, failures included.
	assert.Len(t, reducer.LastRequest.Results, 8)
}

func TestRunIsolatesEmptyMovingSignal(t *testing.T) {
	fixed := mock.UniformVolume([3]int{10, 10, 10}, 1)
	moving := mock.UniformVolume([3]int{10, 10, 10}, 0)
	method := mock.NewConstantPairRegistration()
	reducer := mock.NewConstantReduce()

	graph, err := blockreg.Schedule(
		fixed.Source(), moving.Source(), method, reducer, nil,
		blockreg.Options{BlockShape: [3]int{10, 10, 10}},
	)
	require.NoError(t, err)

	result, err := graph.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Status.CountSuccess())
	assert.Equal(t, 0, method.Calls())
}

func TestRunIsolatesBackendFailures(t *testing.T) {
	fixed := mock.UniformVolume([3]int{20, 10, 10}, 1)
	moving := mock.UniformVolume([3]int{20, 10, 10}, 1)

	// The backend panics on one block, errors on another, and returns an
	// invariant-violating result on a third. None of it escapes the run.
	var mu sync.Mutex
	outcomes := map[[3]int]string{
		{0, 0, 0}: "panic",
		{1, 0, 0}: "error",
	}
	method := mock.FuncPairRegistration(func(_ context.Context, req blockreg.PairRequest) (*blockreg.BlockPairResult, error) {
		mu.Lock()
		outcome := outcomes[req.Descriptor.ChunkIndex]
		mu.Unlock()
		switch outcome {
		case "panic":
			panic("backend exploded")
		case "error":
			return nil, assert.AnError
		}
		return mock.SuccessResult(transform.NewTranslation([3]float64{1, 0, 0}), mock.DefaultDomain()), nil
	})
	reducer := mock.NewConstantReduce()

	graph, err := blockreg.Schedule(
		fixed.Source(), moving.Source(), method, reducer, nil,
		blockreg.Options{BlockShape: [3]int{5, 10, 10}},
	)
	require.NoError(t, err)
	require.Equal(t, [3]int{4, 1, 1}, graph.PartitionShape())

	result, err := graph.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Status.CountSuccess())

	for chunk, want := range map[[3]int]blockreg.Status{
		{0, 0, 0}: blockreg.StatusFailure,
		{1, 0, 0}: blockreg.StatusFailure,
		{2, 0, 0}: blockreg.StatusSuccess,
		{3, 0, 0}: blockreg.StatusSuccess,
	} {
		got, err := result.Status.At(chunk)
		require.NoError(t, err)
		assert.Equal(t, want, got, "chunk %v", chunk)
	}
}

func TestRunPadsAndCropsBlocks(t *testing.T) {
	fixed := mock.UniformVolume([3]int{20, 20, 20}, 1)
	moving := mock.UniformVolume([3]int{20, 20, 20}, 1)

	var mu sync.Mutex
	requests := make(map[[3]int]blockreg.PairRequest)
	method := mock.FuncPairRegistration(func(_ context.Context, req blockreg.PairRequest) (*blockreg.BlockPairResult, error) {
		mu.Lock()
		requests[req.Descriptor.ChunkIndex] = req
		mu.Unlock()
		return mock.SuccessResult(transform.NewTranslation([3]float64{}), mock.DefaultDomain()), nil
	})

	graph, err := blockreg.Schedule(
		fixed.Source(), moving.Source(), method, mock.NewConstantReduce(), nil,
		blockreg.Options{
			BlockShape:     [3]int{10, 10, 10},
			OverlapFactors: [3]float64{0.2, 0.2, 0.2},
		},
	)
	require.NoError(t, err)

	_, err = graph.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, requests, 8)

	// An overlap factor of 0.2 over a 10-voxel block pads one voxel per
	// side, clipped at the volume boundary.
	corner := requests[[3]int{0, 0, 0}]
	assert.Equal(t, geometry.ImageRegion{Index: [3]int{0, 0, 0}, Size: [3]int{10, 10, 10}},
		corner.Fixed.Requested)
	assert.Equal(t, geometry.ImageRegion{Index: [3]int{0, 0, 0}, Size: [3]int{11, 11, 11}},
		corner.Fixed.Buffered)

	opposite := requests[[3]int{1, 1, 1}]
	assert.Equal(t, geometry.ImageRegion{Index: [3]int{10, 10, 10}, Size: [3]int{10, 10, 10}},
		opposite.Fixed.Requested)
	assert.Equal(t, geometry.ImageRegion{Index: [3]int{9, 9, 9}, Size: [3]int{11, 11, 11}},
		opposite.Fixed.Buffered)

	for _, req := range requests {
		assert.True(t, req.Fixed.Buffered.Contains(req.Fixed.Requested))
		assert.True(t, req.Moving.Buffered.Contains(req.Moving.Requested))
		assert.Len(t, req.Fixed.Data, req.Fixed.Buffered.NumVoxels())
	}
}

func TestRunReductionFailureIsFatal(t *testing.T) {
	fixed := mock.UniformVolume([3]int{10, 10, 10}, 1)

	// Every block fails, so the consensus reducer has nothing to fuse.
	method := mock.FuncPairRegistration(func(context.Context, blockreg.PairRequest) (*blockreg.BlockPairResult, error) {
		return nil, assert.AnError
	})
	graph, err := blockreg.Schedule(
		fixed.Source(), fixed.Source(), method,
		&blockreg.TranslationConsensusReducer{}, nil,
		blockreg.Options{BlockShape: [3]int{10, 10, 10}},
	)
	require.NoError(t, err)

	_, err = graph.Run(context.Background())
	assert.ErrorIs(t, err, blockreg.ErrNoSuccessfulBlocks)
}

func TestRunEndToEndTranslationRecovery(t *testing.T) {
	// The moving volume is the fixed volume with its origin displaced, so a
	// backend reporting the constant known offset fuses into a field mapping
	// fixed points onto their moving counterparts.
	offset := [3]float64{2, 2, 2}
	fixed := mock.UniformVolume([3]int{16, 16, 16}, 1)
	moving := mock.UniformVolume([3]int{16, 16, 16}, 1)

	method := mock.FuncPairRegistration(func(_ context.Context, req blockreg.PairRequest) (*blockreg.BlockPairResult, error) {
		domain := req.Fixed.Meta
		domain.Region = req.Fixed.Buffered
		return blockreg.NewBlockPairResult(
			blockreg.StatusSuccess,
			transform.NewTranslation(offset), &domain,
			nil, nil,
		)
	})

	graph, err := blockreg.Schedule(
		fixed.Source(), moving.Source(), method,
		&blockreg.DisplacementFieldReducer{}, nil,
		blockreg.Options{BlockShape: [3]int{8, 8, 8}},
	)
	require.NoError(t, err)

	result, err := graph.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 8, result.Status.CountSuccess())

	field := result.Transforms.Transform
	for _, pt := range []geometry.Point{
		{4, 4, 4},
		{7.5, 7.5, 7.5},
		{12, 3, 9},
	} {
		got := field.TransformPoint(pt)
		assert.InDeltaSlice(t, []float64{pt[0] + 2, pt[1] + 2, pt[2] + 2}, got[:], 1e-9)
	}
}
