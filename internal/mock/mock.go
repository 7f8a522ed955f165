// Package mock provides stand-in registration collaborators for tests and
// demos: constant and counting backends, a constant reducer, and helpers
// for building small in-memory volumes.
package mock

import (
	"context"
	"sync/atomic"

	"dreg3d/pkg/blockreg"
	"dreg3d/pkg/geometry"
	"dreg3d/pkg/image"
	"dreg3d/pkg/transform"
)

// DefaultDomain returns a small non-degenerate transform domain usable in
// constructed block pair results.
func DefaultDomain() *geometry.Metadata {
	return &geometry.Metadata{
		Spacing: [3]float64{1, 1, 1},
		Region:  geometry.ImageRegion{Size: [3]int{10, 10, 10}},
	}
}

// SuccessResult builds a valid success result carrying the given forward
// transform over the given domain.
func SuccessResult(fwd transform.Transform, domain *geometry.Metadata) *blockreg.BlockPairResult {
	res, err := blockreg.NewBlockPairResult(blockreg.StatusSuccess, fwd, domain, nil, nil)
	if err != nil {
		panic(err)
	}
	return res
}

// ConstantPairRegistration returns the same result for every block.
type ConstantPairRegistration struct {
	Result *blockreg.BlockPairResult
	calls  atomic.Int64
}

// NewConstantPairRegistration builds a backend returning a success result
// with an identity-like translation over a default domain.
func NewConstantPairRegistration() *ConstantPairRegistration {
	return &ConstantPairRegistration{
		Result: SuccessResult(transform.NewTranslation([3]float64{}), DefaultDomain()),
	}
}

// RegisterPair returns the configured constant result.
func (m *ConstantPairRegistration) RegisterPair(context.Context, blockreg.PairRequest) (*blockreg.BlockPairResult, error) {
	m.calls.Add(1)
	return m.Result, nil
}

// Calls reports how many times the backend was invoked.
func (m *ConstantPairRegistration) Calls() int { return int(m.calls.Load()) }

// FuncPairRegistration adapts a function into a registration backend.
type FuncPairRegistration func(ctx context.Context, req blockreg.PairRequest) (*blockreg.BlockPairResult, error)

// RegisterPair calls the wrapped function.
func (f FuncPairRegistration) RegisterPair(ctx context.Context, req blockreg.PairRequest) (*blockreg.BlockPairResult, error) {
	return f(ctx, req)
}

// ConstantReduce returns the same transform result for every reduction and
// counts invocations.
type ConstantReduce struct {
	Result *blockreg.RegistrationTransformResult
	calls  atomic.Int64

	// LastRequest records the most recent reduce request for inspection.
	LastRequest blockreg.ReduceRequest
}

// NewConstantReduce builds a reducer returning a zero translation.
func NewConstantReduce() *ConstantReduce {
	return &ConstantReduce{
		Result: &blockreg.RegistrationTransformResult{
			Transform: transform.NewTranslation([3]float64{}),
		},
	}
}

// Reduce returns the configured constant result.
func (m *ConstantReduce) Reduce(_ context.Context, req blockreg.ReduceRequest) (*blockreg.RegistrationTransformResult, error) {
	m.calls.Add(1)
	m.LastRequest = req
	return m.Result, nil
}

// Calls reports how many times the reducer was invoked.
func (m *ConstantReduce) Calls() int { return int(m.calls.Load()) }

// UniformVolume builds an in-memory volume of the given size with unit
// spacing, identity direction, and every voxel set to value.
func UniformVolume(size [3]int, value float64) *image.Volume {
	meta := geometry.Metadata{
		Spacing: [3]float64{1, 1, 1},
		Region:  geometry.ImageRegion{Size: size},
	}
	data := make([]float64, meta.Region.NumVoxels())
	for i := range data {
		data[i] = value
	}
	vol, err := image.NewVolume(meta, data)
	if err != nil {
		panic(err)
	}
	return vol
}
