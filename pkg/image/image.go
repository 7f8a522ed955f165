// Package image provides the buffered sub-volume value type exchanged with
// registration callbacks and the reader contract through which the
// scheduling layer streams sub-regions of volumes too large to hold in
// memory at once.
package image

import (
	"errors"
	"fmt"

	"dreg3d/pkg/geometry"
)

var (
	// ErrRegionOutsideExtent is returned when a read requests voxels beyond
	// the full extent of the underlying volume.
	ErrRegionOutsideExtent = errors.New("requested region outside volume extent")

	// ErrEmptyRegion is returned when a read requests a region covering no
	// voxels.
	ErrEmptyRegion = errors.New("requested region is empty")
)

// Image is a sub-volume of a larger image. Meta describes the full parent
// volume; Buffered identifies which voxels of it Data actually holds, and
// Requested marks the region of interest within the buffer, which may be
// smaller when padding was added around it.
//
// An Image with nil Data is a metadata-only representation: it locates a
// sampling region in space without having fetched any voxels.
type Image struct {
	Meta      geometry.Metadata
	Buffered  geometry.ImageRegion
	Requested geometry.ImageRegion
	Data      []float64
}

// At returns the voxel value at an absolute voxel index, which must lie
// within the buffered region.
func (im *Image) At(idx [3]int) float64 {
	return im.Data[im.Buffered.Offset(idx)]
}

// HasSignal reports whether any buffered voxel is non-zero.
func (im *Image) HasSignal() bool {
	for _, v := range im.Data {
		if v != 0 {
			return true
		}
	}
	return false
}

// Reader streams sub-regions of a volume. Metadata is available without
// fetching voxel data; Read materializes only the requested sub-region.
//
// A Reader instance is not safe for concurrent use. Concurrent tasks must
// each construct their own reader via a Source.
type Reader interface {
	// Metadata returns the full-extent metadata of the volume: origin,
	// spacing, direction, and largest possible voxel region.
	Metadata() (geometry.Metadata, error)

	// Read fetches the voxel buffer for a sub-region of the volume. The
	// region must lie within the volume's full extent.
	Read(region geometry.ImageRegion) (*Image, error)
}

// Source constructs a fresh, independent Reader. The scheduling layer calls
// a Source once per block task so no reader state is shared across
// concurrently executing tasks.
type Source func() (Reader, error)

// Volume is an in-memory volume exposing the Reader contract. It backs
// tests and demos where a streaming reader is not available; Read copies
// out the requested sub-region like a buffered reader would.
type Volume struct {
	meta geometry.Metadata
	data []float64
}

// NewVolume wraps a voxel buffer, laid out with the I axis fastest, in a
// volume described by meta.
func NewVolume(meta geometry.Metadata, data []float64) (*Volume, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if want := meta.Region.NumVoxels(); len(data) != want {
		return nil, fmt.Errorf("volume buffer has %d voxels, extent needs %d", len(data), want)
	}
	return &Volume{meta: meta, data: data}, nil
}

// Source returns an image source producing readers over this volume.
// The volume buffer is shared read-only between readers.
func (v *Volume) Source() Source {
	return func() (Reader, error) {
		return &volumeReader{volume: v}, nil
	}
}

// Set writes a voxel value at an absolute voxel index. Intended for test
// and demo volume construction, not for concurrent use.
func (v *Volume) Set(idx [3]int, value float64) {
	v.data[v.meta.Region.Offset(idx)] = value
}

type volumeReader struct {
	volume *Volume
}

func (r *volumeReader) Metadata() (geometry.Metadata, error) {
	return r.volume.meta, nil
}

func (r *volumeReader) Read(region geometry.ImageRegion) (*Image, error) {
	if region.IsEmpty() {
		return nil, fmt.Errorf("%w: %+v", ErrEmptyRegion, region)
	}
	extent := r.volume.meta.Region
	if !extent.Contains(region) {
		return nil, fmt.Errorf("%w: requested %+v of %+v", ErrRegionOutsideExtent, region, extent)
	}
	data := make([]float64, region.NumVoxels())
	upper := region.UpperIndex()
	n := 0
	for k := region.Index[2]; k <= upper[2]; k++ {
		for j := region.Index[1]; j <= upper[1]; j++ {
			for i := region.Index[0]; i <= upper[0]; i++ {
				data[n] = r.volume.data[extent.Offset([3]int{i, j, k})]
				n++
			}
		}
	}
	return &Image{
		Meta:      r.volume.meta,
		Buffered:  region,
		Requested: region,
		Data:      data,
	}, nil
}
