package geo

import (
	"errors"
	"math"
	"testing"
)

func square(side float64) Polygon {
	return Polygon{{0, 0}, {side, 0}, {side, side}, {0, side}}
}

func TestArea_Square(t *testing.T) {
	got := Area(square(10))
	if math.Abs(got-100) > 1e-9 {
		t.Errorf("area = %v, want 100", got)
	}
}

func TestArea_Triangle(t *testing.T) {
	tri := Polygon{{0, 0}, {4, 0}, {0, 3}}
	got := Area(tri)
	if math.Abs(got-6) > 1e-9 {
		t.Errorf("area = %v, want 6", got)
	}
}

func TestArea_WindingIndependent(t *testing.T) {
	cw := Polygon{{0, 0}, {0, 10}, {10, 10}, {10, 0}}
	if got := Area(cw); math.Abs(got-100) > 1e-9 {
		t.Errorf("clockwise area = %v, want 100", got)
	}
}

func TestCentroid_Square(t *testing.T) {
	c := Centroid(square(10))
	if math.Abs(c.X-5) > 1e-9 || math.Abs(c.Y-5) > 1e-9 {
		t.Errorf("centroid = %+v, want (5,5)", c)
	}
}

func TestBounds(t *testing.T) {
	p := Polygon{{-2, 1}, {3, -4}, {7, 9}}
	r := Bounds(p)
	if r.MinX != -2 || r.MinY != -4 || r.MaxX != 7 || r.MaxY != 9 {
		t.Errorf("bounds = %+v", r)
	}
	if r.Width() != 9 || r.Height() != 13 {
		t.Errorf("width=%v height=%v, want 9, 13", r.Width(), r.Height())
	}
}

func TestContains_Interior(t *testing.T) {
	p := square(10)
	if !Contains(p, Point{5, 5}) {
		t.Error("center should be inside")
	}
	if Contains(p, Point{15, 5}) {
		t.Error("(15,5) should be outside")
	}
	if Contains(p, Point{-0.001, 5}) {
		t.Error("(-0.001,5) should be outside")
	}
}

func TestContains_EdgeInclusive(t *testing.T) {
	p := square(10)
	onEdge := []Point{{0, 5}, {10, 5}, {5, 0}, {5, 10}, {0, 0}, {10, 10}}
	for _, pt := range onEdge {
		if !Contains(p, pt) {
			t.Errorf("edge point %+v should count as inside", pt)
		}
	}
}

func TestContains_Concave(t *testing.T) {
	// U-shape: notch cut from the top
	u := Polygon{{0, 0}, {10, 0}, {10, 10}, {7, 10}, {7, 3}, {3, 3}, {3, 10}, {0, 10}}
	if !Contains(u, Point{1, 5}) {
		t.Error("left arm interior should be inside")
	}
	if Contains(u, Point{5, 8}) {
		t.Error("notch interior should be outside")
	}
	if !Contains(u, Point{5, 1}) {
		t.Error("base interior should be inside")
	}
}

func TestSegmentsIntersect(t *testing.T) {
	if !SegmentsIntersect(Point{0, 0}, Point{10, 10}, Point{0, 10}, Point{10, 0}) {
		t.Error("crossing diagonals should intersect")
	}
	if SegmentsIntersect(Point{0, 0}, Point{1, 0}, Point{0, 5}, Point{1, 5}) {
		t.Error("parallel segments should not intersect")
	}
	if !SegmentsIntersect(Point{0, 0}, Point{5, 0}, Point{5, 0}, Point{5, 5}) {
		t.Error("shared endpoint should intersect")
	}
	if !SegmentsIntersect(Point{0, 0}, Point{10, 0}, Point{3, 0}, Point{7, 0}) {
		t.Error("collinear overlap should intersect")
	}
}

func TestSegmentIntersectsPolygon(t *testing.T) {
	p := square(10)
	if !SegmentIntersectsPolygon(Point{-5, 5}, Point{15, 5}, p) {
		t.Error("segment through the square should intersect")
	}
	if SegmentIntersectsPolygon(Point{-5, 20}, Point{15, 20}, p) {
		t.Error("segment above the square should not intersect")
	}
	if !SegmentIntersectsPolygon(Point{2, 2}, Point{8, 8}, p) {
		t.Error("fully interior segment should count as intersecting")
	}
}

func TestCrossingParams_Square(t *testing.T) {
	p := square(10)
	ts := CrossingParams(Point{-5, 5}, Point{15, 5}, p)
	if len(ts) != 2 {
		t.Fatalf("crossings = %v, want 2 entries", ts)
	}
	// Segment spans x in [-5,15]; edges at x=0 and x=10 sit at t=0.25, 0.75.
	if math.Abs(ts[0]-0.25) > 1e-9 || math.Abs(ts[1]-0.75) > 1e-9 {
		t.Errorf("crossings = %v, want [0.25 0.75]", ts)
	}
}

func TestCrossingParams_Concave(t *testing.T) {
	u := Polygon{{0, 0}, {10, 0}, {10, 10}, {7, 10}, {7, 3}, {3, 3}, {3, 10}, {0, 10}}
	// Horizontal line at y=5 crosses both arms: x = 0, 3, 7, 10.
	ts := CrossingParams(Point{0, 5}, Point{10, 5}, u)
	if len(ts) != 4 {
		t.Fatalf("crossings = %v, want 4 entries", ts)
	}
}

func TestCrossingParams_Deduped(t *testing.T) {
	// Line through the square's corner touches two edges at one point.
	p := square(10)
	ts := CrossingParams(Point{-5, -5}, Point{15, 15}, p)
	for i := 1; i < len(ts); i++ {
		if ts[i]-ts[i-1] <= 1e-9 {
			t.Errorf("crossings not deduplicated: %v", ts)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(square(10)); err != nil {
		t.Errorf("valid square rejected: %v", err)
	}
	if err := Validate(Polygon{{0, 0}, {1, 1}}); err == nil {
		t.Error("two-vertex polygon should be rejected")
	}
	if err := Validate(Polygon{{0, 0}, {1, 1}, {0, 0}, {1, 1}}); err == nil {
		t.Error("duplicate-vertex polygon should be rejected")
	}
	if err := Validate(Polygon{{0, 0}, {5, 0}, {10, 0}}); err == nil {
		t.Error("collinear polygon should be rejected")
	}
	err := Validate(Polygon{{0, 0}, {1, 0}, {2, 0}})
	var dg *DegenerateGeometryError
	if !errors.As(err, &dg) {
		t.Errorf("error = %v (%T), want *DegenerateGeometryError", err, err)
	}
}

func TestClipToRect_FullyInside(t *testing.T) {
	p := square(10)
	got := ClipToRect(p, Rect{MinX: -5, MinY: -5, MaxX: 15, MaxY: 15})
	if math.Abs(Area(got)-100) > 1e-9 {
		t.Errorf("clipped area = %v, want 100", Area(got))
	}
}

func TestClipToRect_Half(t *testing.T) {
	p := square(10)
	got := ClipToRect(p, Rect{MinX: 0, MinY: 0, MaxX: 5, MaxY: 10})
	if math.Abs(Area(got)-50) > 1e-9 {
		t.Errorf("clipped area = %v, want 50", Area(got))
	}
}

func TestClipToRect_Disjoint(t *testing.T) {
	p := square(10)
	got := ClipToRect(p, Rect{MinX: 20, MinY: 20, MaxX: 30, MaxY: 30})
	if Area(got) > 1e-9 {
		t.Errorf("disjoint clip area = %v, want 0", Area(got))
	}
}

func TestMaxDistanceFrom(t *testing.T) {
	p := square(10)
	got := MaxDistanceFrom(Point{0, 0}, p)
	want := math.Hypot(10, 10)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("max distance = %v, want %v", got, want)
	}
}

func TestDistance(t *testing.T) {
	if got := Distance(Point{0, 0}, Point{3, 4}); math.Abs(got-5) > 1e-9 {
		t.Errorf("distance = %v, want 5", got)
	}
}
