package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"dreg3d/pkg/geometry"
)

func TestIdentity(t *testing.T) {
	pt := geometry.Point{1, 2, 3}
	assert.Equal(t, pt, Identity{}.TransformPoint(pt))
}

func TestTranslation(t *testing.T) {
	tr := NewTranslation([3]float64{1, -2, 3})
	assert.Equal(t, geometry.Point{11, 8, 13}, tr.TransformPoint(geometry.Point{10, 10, 10}))
}

func TestAffine(t *testing.T) {
	scale := mat.NewDense(3, 3, []float64{
		2, 0, 0,
		0, 3, 0,
		0, 0, 4,
	})
	a, err := NewAffine(scale, [3]float64{1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, geometry.Point{3, 4, 5}, a.TransformPoint(geometry.Point{1, 1, 1}))
}

func TestAffineCopiesMatrix(t *testing.T) {
	m := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	a, err := NewAffine(m, [3]float64{})
	require.NoError(t, err)

	// Mutating the caller's matrix must not change the transform.
	m.Set(0, 0, 100)
	assert.Equal(t, geometry.Point{1, 1, 1}, a.TransformPoint(geometry.Point{1, 1, 1}))
}

func TestNewAffineRejectsBadMatrix(t *testing.T) {
	_, err := NewAffine(nil, [3]float64{})
	assert.ErrorIs(t, err, ErrInvalidTransform)

	_, err = NewAffine(mat.NewDense(2, 3, nil), [3]float64{})
	assert.ErrorIs(t, err, ErrInvalidTransform)
}

func TestCompositeAppliesInOrder(t *testing.T) {
	double, err := NewAffine(mat.NewDense(3, 3, []float64{2, 0, 0, 0, 2, 0, 0, 0, 2}), [3]float64{})
	require.NoError(t, err)
	shift := NewTranslation([3]float64{1, 1, 1})

	// Scale then shift differs from shift then scale.
	scaleFirst := NewComposite(double, shift)
	assert.Equal(t, geometry.Point{3, 3, 3}, scaleFirst.TransformPoint(geometry.Point{1, 1, 1}))

	shiftFirst := NewComposite(shift, double)
	assert.Equal(t, geometry.Point{4, 4, 4}, shiftFirst.TransformPoint(geometry.Point{1, 1, 1}))
}

func TestFlatten(t *testing.T) {
	a := NewTranslation([3]float64{1, 0, 0})
	b := NewTranslation([3]float64{2, 0, 0})
	c := NewTranslation([3]float64{3, 0, 0})
	d := NewTranslation([3]float64{4, 0, 0})

	nested := NewComposite(a, NewComposite(b, NewComposite(c), d))
	leaves := Flatten(nested)
	require.Len(t, leaves, 4)
	assert.Equal(t, []Transform{a, b, c, d}, leaves)
}

func TestFlattenLeaf(t *testing.T) {
	tr := NewTranslation([3]float64{1, 1, 1})
	assert.Equal(t, []Transform{tr}, Flatten(tr))
}

func TestFlattenDeeplyNested(t *testing.T) {
	// A pathologically deep chain must not exhaust the call stack.
	leaf := NewTranslation([3]float64{1, 0, 0})
	var cur Transform = leaf
	for i := 0; i < 100000; i++ {
		cur = NewComposite(cur)
	}
	leaves := Flatten(cur)
	require.Len(t, leaves, 1)
	assert.Equal(t, leaf, leaves[0])
}
