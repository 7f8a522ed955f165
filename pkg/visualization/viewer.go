// Package visualization renders cross-sections of a displacement field as
// grayscale images so registration output can be inspected visually. The
// brightness of each pixel encodes the displacement magnitude at that voxel
// relative to the largest magnitude in the field.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"dreg3d/pkg/transform"
)

// Viewer renders 2D cross-sections of a 3D displacement field.
type Viewer struct {
	field *transform.DisplacementField

	// size of the field grid per axis
	size [3]int

	// maxMagnitude normalizes pixel brightness across slices
	maxMagnitude float64
}

// NewViewer creates a viewer over the given displacement field. The maximum
// displacement magnitude is precomputed once so every slice shares the same
// brightness scale.
func NewViewer(field *transform.DisplacementField) *Viewer {
	grid := field.Grid()
	v := &Viewer{field: field, size: grid.Region.Size}

	upper := grid.Region.UpperIndex()
	for k := grid.Region.Index[2]; k <= upper[2]; k++ {
		for j := grid.Region.Index[1]; j <= upper[1]; j++ {
			for i := grid.Region.Index[0]; i <= upper[0]; i++ {
				d := field.At([3]int{i, j, k})
				if m := floats.Norm(d[:], 2); m > v.maxMagnitude {
					v.maxMagnitude = m
				}
			}
		}
	}
	return v
}

// MaxMagnitude returns the largest displacement magnitude in the field.
func (v *Viewer) MaxMagnitude() float64 { return v.maxMagnitude }

func (v *Viewer) magnitudeAt(idx [3]int) uint16 {
	if v.maxMagnitude == 0 {
		return 0
	}
	grid := v.field.Grid().Region
	d := v.field.At([3]int{
		idx[0] + grid.Index[0],
		idx[1] + grid.Index[1],
		idx[2] + grid.Index[2],
	})
	scaled := floats.Norm(d[:], 2) / v.maxMagnitude * 65535
	if scaled > 65535 {
		scaled = 65535
	}
	return uint16(scaled)
}

// ExtractSlice renders a 2D cross-section of the field perpendicular to the
// specified axis at the given grid position.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	var img *image.Gray16

	switch axis {
	case "x", "X":
		// Slice along the JK plane
		if position >= v.size[0] {
			return nil, fmt.Errorf("position %d exceeds grid size %d", position, v.size[0])
		}
		img = image.NewGray16(image.Rect(0, 0, v.size[1], v.size[2]))
		for k := 0; k < v.size[2]; k++ {
			for j := 0; j < v.size[1]; j++ {
				img.SetGray16(j, k, color.Gray16{Y: v.magnitudeAt([3]int{position, j, k})})
			}
		}

	case "y", "Y":
		// Slice along the IK plane
		if position >= v.size[1] {
			return nil, fmt.Errorf("position %d exceeds grid size %d", position, v.size[1])
		}
		img = image.NewGray16(image.Rect(0, 0, v.size[0], v.size[2]))
		for k := 0; k < v.size[2]; k++ {
			for i := 0; i < v.size[0]; i++ {
				img.SetGray16(i, k, color.Gray16{Y: v.magnitudeAt([3]int{i, position, k})})
			}
		}

	case "z", "Z":
		// Slice along the IJ plane
		if position >= v.size[2] {
			return nil, fmt.Errorf("position %d exceeds grid size %d", position, v.size[2])
		}
		img = image.NewGray16(image.Rect(0, 0, v.size[0], v.size[1]))
		for j := 0; j < v.size[1]; j++ {
			for i := 0; i < v.size[0]; i++ {
				img.SetGray16(i, j, color.Gray16{Y: v.magnitudeAt([3]int{i, j, position})})
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveSlice saves an extracted slice as a JPEG image.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves every slice along the specified axis.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.size[0]
	case "y", "Y":
		maxPos = v.size[1]
	case "z", "Z":
		maxPos = v.size[2]
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
