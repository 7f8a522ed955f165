// Package fusion composes possibly-overlapping, possibly-bounded per-block
// transforms into one continuous transform over the whole registration
// domain, and rasterizes that composite into a dense displacement field.
package fusion

import (
	"errors"
	"fmt"

	"dreg3d/pkg/geometry"
	"dreg3d/pkg/transform"
)

var (
	// ErrNoCoverage is returned by Collection.TransformPoint when the query
	// point lies outside every entry's domain.
	ErrNoCoverage = errors.New("point lies outside all transform domains")

	// ErrInvalidEntry is returned when an entry fails validation on insertion.
	ErrInvalidEntry = errors.New("invalid transform entry")
)

// Entry pairs a transform with the physical domain over which it is valid.
// A nil domain marks the transform as globally valid: any point may be
// mapped through it.
type Entry struct {
	Transform transform.Transform

	// Domain is an oriented axis-aligned bounding region in physical space,
	// described by unbuffered image metadata. The voxel subdivision of the
	// metadata is ignored; only its sample bounds matter.
	Domain *geometry.Metadata
}

// validate checks that an entry carries a transform and, if bounded, a
// well-formed non-degenerate domain.
func (e Entry) validate() error {
	if e.Transform == nil {
		return fmt.Errorf("%w: nil transform", ErrInvalidEntry)
	}
	if e.Domain != nil {
		if err := e.Domain.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
		}
		if e.Domain.Region.NumVoxels() == 0 {
			return fmt.Errorf("%w: degenerate domain %+v", ErrInvalidEntry, e.Domain.Region)
		}
	}
	return nil
}

// BlendFunc combines the outputs of several transforms whose domains all
// contain the query point into a single transformed point. Implementations
// must be deterministic.
type BlendFunc func(pt geometry.Point, contributors []Entry) (geometry.Point, error)

// Collection is an append-only list of bounded and unbounded transforms
// with a pluggable blending policy. A point query blends the outputs of
// every entry whose domain contains the point.
//
// Entries only grow; nothing is ever removed. A finished collection is safe
// for concurrent read-only queries, but appends are not synchronized:
// callers sharing a collection across goroutines must finish pushing before
// querying concurrently.
type Collection struct {
	entries []Entry
	blend   BlendFunc
}

// NewCollection builds a collection with the given blending policy and
// initial entries. A nil blend defaults to BlendSimpleMean.
func NewCollection(blend BlendFunc, entries ...Entry) (*Collection, error) {
	if blend == nil {
		blend = BlendSimpleMean
	}
	c := &Collection{blend: blend}
	for _, e := range entries {
		if err := c.Push(e); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Push validates and appends an entry.
func (c *Collection) Push(e Entry) error {
	if err := e.validate(); err != nil {
		return err
	}
	c.entries = append(c.entries, e)
	return nil
}

// Len returns the number of entries.
func (c *Collection) Len() int { return len(c.entries) }

// Entries returns a copy of the entry list in insertion order.
func (c *Collection) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// TransformPoint maps a physical point through the piecewise transform
// relationship formed by the collection's entries. Every entry whose domain
// is absent or whose inclusive sample bounds contain the point contributes;
// their outputs are combined by the blending policy.
//
// Returns an error wrapping ErrNoCoverage when no entry covers the point.
func (c *Collection) TransformPoint(pt geometry.Point) (geometry.Point, error) {
	var contributors []Entry
	for _, e := range c.entries {
		if e.Domain == nil {
			contributors = append(contributors, e)
			continue
		}
		bounds, err := geometry.SampleBounds(*e.Domain, nil)
		if err != nil {
			return geometry.Point{}, err
		}
		if bounds.Contains(pt) {
			contributors = append(contributors, e)
		}
	}
	if len(contributors) == 0 {
		return geometry.Point{}, fmt.Errorf("%w: %v", ErrNoCoverage, pt)
	}
	return c.blend(pt, contributors)
}
