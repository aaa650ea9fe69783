package geo

import (
	"math"
	"sort"
)

// direction returns the cross product of (b-a) and (c-a). Positive
// when c lies left of a->b, negative when right, near zero when
// collinear.
func direction(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// onSegment reports whether c lies within the bounding box of segment
// a-b. Only meaningful when c is collinear with a-b.
func onSegment(a, b, c Point) bool {
	return c.X >= math.Min(a.X, b.X)-eps && c.X <= math.Max(a.X, b.X)+eps &&
		c.Y >= math.Min(a.Y, b.Y)-eps && c.Y <= math.Max(a.Y, b.Y)+eps
}

// SegmentsIntersect reports whether segments a1-a2 and b1-b2 share any
// point, including endpoint touches and collinear overlap.
func SegmentsIntersect(a1, a2, b1, b2 Point) bool {
	d1 := direction(b1, b2, a1)
	d2 := direction(b1, b2, a2)
	d3 := direction(a1, a2, b1)
	d4 := direction(a1, a2, b2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	if math.Abs(d1) < eps && onSegment(b1, b2, a1) {
		return true
	}
	if math.Abs(d2) < eps && onSegment(b1, b2, a2) {
		return true
	}
	if math.Abs(d3) < eps && onSegment(a1, a2, b1) {
		return true
	}
	if math.Abs(d4) < eps && onSegment(a1, a2, b2) {
		return true
	}
	return false
}

// SegmentIntersectsPolygon reports whether segment a-b crosses any
// polygon edge or has an endpoint inside the polygon.
func SegmentIntersectsPolygon(a, b Point, p Polygon) bool {
	n := len(p)
	if n < 3 {
		return false
	}
	for i := 0; i < n; i++ {
		if SegmentsIntersect(a, b, p[i], p[(i+1)%n]) {
			return true
		}
	}
	return Contains(p, a) || Contains(p, b)
}

// CrossingParams returns the sorted parametric positions t in [0,1]
// where segment a-b crosses the polygon's edges. Collinear edges
// contribute nothing; interval midpoints decide containment for those.
func CrossingParams(a, b Point, p Polygon) []float64 {
	n := len(p)
	if n < 3 {
		return nil
	}
	rx, ry := b.X-a.X, b.Y-a.Y
	var ts []float64
	for i := 0; i < n; i++ {
		c, d := p[i], p[(i+1)%n]
		sx, sy := d.X-c.X, d.Y-c.Y
		denom := rx*sy - ry*sx
		if math.Abs(denom) < eps {
			continue
		}
		acx, acy := c.X-a.X, c.Y-a.Y
		t := (acx*sy - acy*sx) / denom
		u := (acx*ry - acy*rx) / denom
		if t < -eps || t > 1+eps || u < -eps || u > 1+eps {
			continue
		}
		ts = append(ts, math.Min(1, math.Max(0, t)))
	}
	sort.Float64s(ts)
	out := ts[:0]
	for _, t := range ts {
		if len(out) == 0 || t-out[len(out)-1] > eps {
			out = append(out, t)
		}
	}
	return out
}
