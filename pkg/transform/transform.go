// Package transform defines the point-transform capability used throughout
// the registration engine together with a small set of concrete spatial
// transforms: translation, affine, composite, and dense displacement field.
package transform

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"dreg3d/pkg/geometry"
)

// Transform maps a point in one physical coordinate space to another.
// Implementations must be safe for concurrent use once constructed.
type Transform interface {
	TransformPoint(geometry.Point) geometry.Point
}

// ErrInvalidTransform is returned when a transform cannot be constructed
// from its inputs.
var ErrInvalidTransform = errors.New("invalid transform")

// Identity is the no-op transform.
type Identity struct{}

// TransformPoint returns the point unchanged.
func (Identity) TransformPoint(pt geometry.Point) geometry.Point { return pt }

// Translation shifts every point by a fixed offset.
type Translation struct {
	Offset [3]float64
}

// NewTranslation returns a transform shifting points by the given offset.
func NewTranslation(offset [3]float64) *Translation {
	return &Translation{Offset: offset}
}

// TransformPoint shifts the point by the translation offset.
func (t *Translation) TransformPoint(pt geometry.Point) geometry.Point {
	return geometry.Point{pt[0] + t.Offset[0], pt[1] + t.Offset[1], pt[2] + t.Offset[2]}
}

// Affine applies a 3x3 linear map followed by a translation.
type Affine struct {
	matrix *mat.Dense
	offset [3]float64
}

// NewAffine constructs an affine transform from a 3x3 matrix and an offset.
func NewAffine(matrix *mat.Dense, offset [3]float64) (*Affine, error) {
	if matrix == nil {
		return nil, fmt.Errorf("%w: nil affine matrix", ErrInvalidTransform)
	}
	rows, cols := matrix.Dims()
	if rows != 3 || cols != 3 {
		return nil, fmt.Errorf("%w: expected 3x3 affine matrix, got %dx%d",
			ErrInvalidTransform, rows, cols)
	}
	m := mat.NewDense(3, 3, nil)
	m.Copy(matrix)
	return &Affine{matrix: m, offset: offset}, nil
}

// Matrix returns a copy of the 3x3 linear component.
func (a *Affine) Matrix() *mat.Dense {
	m := mat.NewDense(3, 3, nil)
	m.Copy(a.matrix)
	return m
}

// Offset returns the translation component.
func (a *Affine) Offset() [3]float64 { return a.offset }

// TransformPoint applies the linear map and offset to the point.
func (a *Affine) TransformPoint(pt geometry.Point) geometry.Point {
	var out geometry.Point
	for row := 0; row < 3; row++ {
		v := a.offset[row]
		for col := 0; col < 3; col++ {
			v += a.matrix.At(row, col) * pt[col]
		}
		out[row] = v
	}
	return out
}

// Composite chains transforms, applying them in slice order: the first
// transform is applied to the input point first.
type Composite struct {
	Transforms []Transform
}

// NewComposite builds a composite from the given transforms.
func NewComposite(transforms ...Transform) *Composite {
	return &Composite{Transforms: transforms}
}

// TransformPoint applies each child transform in order.
func (c *Composite) TransformPoint(pt geometry.Point) geometry.Point {
	for _, t := range c.Transforms {
		pt = t.TransformPoint(pt)
	}
	return pt
}

// Flatten expands nested composite transforms into a flat, ordered list of
// leaf transforms. Traversal is iterative with an explicit stack so deeply
// nested inputs cannot exhaust the call stack.
func Flatten(t Transform) []Transform {
	var out []Transform
	stack := []Transform{t}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		composite, ok := cur.(*Composite)
		if !ok {
			out = append(out, cur)
			continue
		}
		// Push children in reverse so they pop in application order.
		for i := len(composite.Transforms) - 1; i >= 0; i-- {
			stack = append(stack, composite.Transforms[i])
		}
	}
	return out
}
