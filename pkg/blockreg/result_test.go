package blockreg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dreg3d/pkg/geometry"
	"dreg3d/pkg/transform"
)

func validDomain() *geometry.Metadata {
	return &geometry.Metadata{
		Spacing: [3]float64{1, 1, 1},
		Region:  geometry.ImageRegion{Size: [3]int{10, 10, 10}},
	}
}

func TestNewBlockPairResultInvariants(t *testing.T) {
	fwd := transform.NewTranslation([3]float64{1, 0, 0})
	inv := transform.NewTranslation([3]float64{-1, 0, 0})

	cases := []struct {
		name      string
		status    Status
		fwd, inv  transform.Transform
		fwdDomain *geometry.Metadata
		invDomain *geometry.Metadata
		wantErr   bool
	}{
		{"success with forward", StatusSuccess, fwd, nil, validDomain(), nil, false},
		{"success with both", StatusSuccess, fwd, inv, validDomain(), validDomain(), false},
		{"failure bare", StatusFailure, nil, nil, nil, nil, false},
		{"failure with forward", StatusFailure, fwd, nil, validDomain(), nil, false},
		{"success without forward", StatusSuccess, nil, nil, nil, nil, true},
		{"forward without domain", StatusSuccess, fwd, nil, nil, nil, true},
		{"domain without forward", StatusFailure, nil, nil, validDomain(), nil, true},
		{"inverse without forward", StatusFailure, nil, inv, nil, validDomain(), true},
		{"inverse without domain", StatusSuccess, fwd, inv, validDomain(), nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewBlockPairResult(tc.status, tc.fwd, tc.fwdDomain, tc.inv, tc.invDomain)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidResult)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewBlockPairResultRejectsDegenerateDomain(t *testing.T) {
	fwd := transform.NewTranslation([3]float64{1, 0, 0})

	empty := validDomain()
	empty.Region.Size = [3]int{0, 10, 10}
	_, err := NewBlockPairResult(StatusSuccess, fwd, empty, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidResult)

	zeroSpacing := validDomain()
	zeroSpacing.Spacing[2] = 0
	_, err = NewBlockPairResult(StatusSuccess, fwd, zeroSpacing, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidResult)
}

func TestNewFailureResult(t *testing.T) {
	res := NewFailureResult()
	assert.Equal(t, StatusFailure, res.Status)
	assert.NoError(t, res.Validate())
	assert.Nil(t, res.Transform)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "success", StatusSuccess.String())
	assert.Equal(t, "failure", StatusFailure.String())
	assert.Equal(t, "status(7)", Status(7).String())
}

func TestStatusGrid(t *testing.T) {
	grid, err := NewStatusGrid([3]int{2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, [3]int{2, 3, 4}, grid.Shape())
	assert.Equal(t, 24, grid.Len())

	// Cells default to failure until a result is reported.
	got, err := grid.At([3]int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, StatusFailure, got)
	assert.Equal(t, 0, grid.CountSuccess())

	require.NoError(t, grid.Set([3]int{1, 2, 3}, StatusSuccess))
	require.NoError(t, grid.Set([3]int{0, 0, 0}, StatusSuccess))
	got, err = grid.At([3]int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, got)
	assert.Equal(t, 2, grid.CountSuccess())

	_, err = grid.At([3]int{2, 0, 0})
	assert.Error(t, err)
	assert.Error(t, grid.Set([3]int{0, 3, 0}, StatusSuccess))

	_, err = NewStatusGrid([3]int{2, 0, 4})
	assert.Error(t, err)
}

func TestComposeStatus(t *testing.T) {
	descriptors := []BlockDescriptor{
		{ChunkIndex: [3]int{0, 0, 0}},
		{ChunkIndex: [3]int{0, 0, 1}},
		{ChunkIndex: [3]int{0, 1, 0}},
		{ChunkIndex: [3]int{0, 1, 1}},
	}
	results := []*BlockPairResult{
		{Status: StatusSuccess},
		NewFailureResult(),
		nil, // a missing result reads as failed
		{Status: StatusSuccess},
	}

	grid, err := ComposeStatus([3]int{1, 2, 2}, descriptors, results)
	require.NoError(t, err)
	assert.Equal(t, 2, grid.CountSuccess())

	got, err := grid.At([3]int{0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, got)
	got, err = grid.At([3]int{0, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, StatusFailure, got)

	_, err = ComposeStatus([3]int{1, 2, 2}, descriptors, results[:2])
	assert.Error(t, err)
}
