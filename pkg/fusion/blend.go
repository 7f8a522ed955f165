package fusion

import (
	"fmt"
	"math"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/floats"

	"dreg3d/pkg/geometry"
)

// minBlendWeight is the weight assigned to unbounded entries and to bounded
// entries whose query point sits exactly on a domain boundary. Domains are
// inclusive at their bounds, so a boundary point is still a valid candidate
// and must not be dropped with a zero weight.
const minBlendWeight = 1e-9

// BlendSimpleMean combines transformed-point candidates by unweighted
// averaging. Every contributor counts equally, which can produce visible
// discontinuities where a point crosses into or out of a domain.
func BlendSimpleMean(pt geometry.Point, contributors []Entry) (geometry.Point, error) {
	if len(contributors) == 0 {
		return geometry.Point{}, fmt.Errorf("%w: %v", ErrNoCoverage, pt)
	}
	accum := make([]float64, 3)
	for _, e := range contributors {
		out := e.Transform.TransformPoint(pt)
		floats.Add(accum, out[:])
	}
	floats.Scale(1/float64(len(contributors)), accum)
	return geometry.Point{accum[0], accum[1], accum[2]}, nil
}

// NewDistanceWeightedMean returns a blending policy that weights each
// bounded contributor by the physical distance from the query point to the
// nearest face of its domain, so a transform's influence fades to near zero
// at its domain edge instead of cutting off abruptly. Unbounded entries get
// the minimal weight and contribute negligibly unless they are the sole
// candidate.
//
// The containment filter should guarantee non-negative distances; a
// negative weight therefore indicates a correctness problem upstream and is
// logged as a warning, but the blend proceeds rather than aborting.
func NewDistanceWeightedMean(logger *log.Logger) BlendFunc {
	return func(pt geometry.Point, contributors []Entry) (geometry.Point, error) {
		if len(contributors) == 0 {
			return geometry.Point{}, fmt.Errorf("%w: %v", ErrNoCoverage, pt)
		}
		candidates := make([]geometry.Point, len(contributors))
		weights := make([]float64, len(contributors))
		for i, e := range contributors {
			candidates[i] = e.Transform.TransformPoint(pt)
			if e.Domain == nil {
				weights[i] = minBlendWeight
				continue
			}
			dist, _, err := e.Domain.PhysicalDistanceFromEdge(pt)
			if err != nil {
				return geometry.Point{}, err
			}
			weights[i] = dist
		}

		for _, w := range weights {
			if w < 0 && !closeToZero(w) {
				if logger != nil {
					logger.Warn(
						"negative blend weight: point unexpectedly lies outside a contributing domain",
						"point", pt, "weight", w)
				}
				break
			}
		}

		total := 0.0
		accum := make([]float64, 3)
		for i, w := range weights {
			if closeToZero(w) {
				w = minBlendWeight
			}
			floats.AddScaled(accum, w, candidates[i][:])
			total += w
		}
		floats.Scale(1/total, accum)
		return geometry.Point{accum[0], accum[1], accum[2]}, nil
	}
}

func closeToZero(v float64) bool {
	return math.Abs(v) < 1e-8
}
