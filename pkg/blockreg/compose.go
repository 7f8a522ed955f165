package blockreg

import (
	"fmt"
)

// ComposeStatus assembles per-block status codes into a dense grid of the
// partition shape. Each result is stored at its descriptor's chunk index,
// so the association never depends on completion order. Descriptor and
// result slices must correspond element-wise.
func ComposeStatus(shape [3]int, descriptors []BlockDescriptor, results []*BlockPairResult) (*StatusGrid, error) {
	if len(descriptors) != len(results) {
		return nil, fmt.Errorf("descriptor count %d does not match result count %d",
			len(descriptors), len(results))
	}
	grid, err := NewStatusGrid(shape)
	if err != nil {
		return nil, err
	}
	for i, desc := range descriptors {
		status := StatusFailure
		if results[i] != nil {
			status = results[i].Status
		}
		if err := grid.Set(desc.ChunkIndex, status); err != nil {
			return nil, err
		}
	}
	return grid, nil
}

// ComposeResult packages the fused transforms and the status grid into the
// terminal registration result. Pure packaging, no computation.
func ComposeResult(transforms *RegistrationTransformResult, status *StatusGrid) *RegistrationResult {
	return &RegistrationResult{Transforms: transforms, Status: status}
}
