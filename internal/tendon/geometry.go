package tendon

import (
	"fmt"
	"sort"
)

// DefaultSplineSubdivisions is the number of interpolated points per
// spline segment used for the arc-length polyline.
const DefaultSplineSubdivisions = 30

// SplineLength fits a Catmull–Rom spline through 2–4 user-placed points
// and returns its arc length in pixels. Points are sorted by ascending x
// before fitting, so the measurement is invariant to the order they were
// clicked in. Boundary segments reuse the nearest real point as a virtual
// control point instead of extrapolating, keeping the curve from
// overshooting past the first and last anchor. Coincident points degenerate
// to zero-length segments.
//
// subdivisions ≤ 0 selects DefaultSplineSubdivisions.
func SplineLength(points []Position, subdivisions int) (float64, error) {
	if len(points) < 2 {
		return 0, fmt.Errorf("%w: got %d, need at least 2", ErrInsufficientPoints, len(points))
	}
	if subdivisions <= 0 {
		subdivisions = DefaultSplineSubdivisions
	}

	curve := SplineInterpolate(points, subdivisions)

	var length float64
	for i := 1; i < len(curve); i++ {
		length += curve[i].Dist(curve[i-1])
	}
	return length, nil
}

// SplineInterpolate returns the interpolated polyline through the sorted
// point set, subdivisions points per segment. Exposed for the debug chart
// handlers; SplineLength is the measurement entry point.
func SplineInterpolate(points []Position, subdivisions int) []Position {
	sorted := make([]Position, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	n := len(sorted)
	curve := make([]Position, 0, (n-1)*subdivisions+1)
	curve = append(curve, sorted[0])

	for i := 0; i < n-1; i++ {
		// Virtual boundary controls: clamp to the nearest real point.
		p0 := sorted[maxInt(i-1, 0)]
		p1 := sorted[i]
		p2 := sorted[i+1]
		p3 := sorted[minInt(i+2, n-1)]

		for s := 1; s <= subdivisions; s++ {
			t := float64(s) / float64(subdivisions)
			curve = append(curve, catmullRom(p0, p1, p2, p3, t))
		}
	}
	return curve
}

// catmullRom evaluates the uniform Catmull–Rom basis between p1 and p2 at
// parameter t in [0, 1].
func catmullRom(p0, p1, p2, p3 Position, t float64) Position {
	t2 := t * t
	t3 := t2 * t
	return Position{
		X: 0.5 * ((2 * p1.X) +
			(-p0.X+p2.X)*t +
			(2*p0.X-5*p1.X+4*p2.X-p3.X)*t2 +
			(-p0.X+3*p1.X-3*p2.X+p3.X)*t3),
		Y: 0.5 * ((2 * p1.Y) +
			(-p0.Y+p2.Y)*t +
			(2*p0.Y-5*p1.Y+4*p2.Y-p3.Y)*t2 +
			(-p0.Y+3*p1.Y-3*p2.Y+p3.Y)*t3),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
