package geo

import "math"

const eps = 1e-9

// Point is a position in the local tangent plane, in meters.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polygon is an implicitly closed ring of vertices. The last vertex
// connects back to the first.
type Polygon []Point

// Rect is an axis-aligned bounding box.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// Width returns the horizontal extent of the box.
func (r Rect) Width() float64 { return r.MaxX - r.MinX }

// Height returns the vertical extent of the box.
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// DegenerateGeometryError reports a polygon unusable for planning.
type DegenerateGeometryError struct {
	Reason string
}

func (e *DegenerateGeometryError) Error() string {
	return "degenerate geometry: " + e.Reason
}

// Validate rejects polygons with fewer than 3 distinct vertices or
// near-zero enclosed area.
func Validate(p Polygon) error {
	distinct := 0
	for i, v := range p {
		dup := false
		for j := 0; j < i; j++ {
			if math.Abs(v.X-p[j].X) < eps && math.Abs(v.Y-p[j].Y) < eps {
				dup = true
				break
			}
		}
		if !dup {
			distinct++
		}
	}
	if distinct < 3 {
		return &DegenerateGeometryError{Reason: "fewer than 3 distinct vertices"}
	}
	if Area(p) < eps {
		return &DegenerateGeometryError{Reason: "near-zero area"}
	}
	return nil
}

// Area returns the enclosed area in square meters (shoelace formula).
func Area(p Polygon) float64 {
	n := len(p)
	if n < 3 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += p[i].X*p[j].Y - p[j].X*p[i].Y
	}
	return math.Abs(sum) / 2
}

// Centroid returns the area-weighted centroid, falling back to the
// vertex mean for degenerate rings.
func Centroid(p Polygon) Point {
	n := len(p)
	if n == 0 {
		return Point{}
	}
	var cx, cy, a float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		f := p[i].X*p[j].Y - p[j].X*p[i].Y
		cx += (p[i].X + p[j].X) * f
		cy += (p[i].Y + p[j].Y) * f
		a += f
	}
	if math.Abs(a) < eps {
		var mx, my float64
		for _, v := range p {
			mx += v.X
			my += v.Y
		}
		return Point{mx / float64(n), my / float64(n)}
	}
	a /= 2
	return Point{cx / (6 * a), cy / (6 * a)}
}

// Bounds returns the axis-aligned bounding box of the polygon.
func Bounds(p Polygon) Rect {
	if len(p) == 0 {
		return Rect{}
	}
	r := Rect{MinX: p[0].X, MinY: p[0].Y, MaxX: p[0].X, MaxY: p[0].Y}
	for _, v := range p[1:] {
		r.MinX = math.Min(r.MinX, v.X)
		r.MinY = math.Min(r.MinY, v.Y)
		r.MaxX = math.Max(r.MaxX, v.X)
		r.MaxY = math.Max(r.MaxY, v.Y)
	}
	return r
}

// Contains reports whether pt lies inside the polygon. Points on an
// edge count as inside.
func Contains(p Polygon, pt Point) bool {
	n := len(p)
	if n < 3 {
		return false
	}
	for i := 0; i < n; i++ {
		a, b := p[i], p[(i+1)%n]
		segLen := math.Hypot(b.X-a.X, b.Y-a.Y)
		if segLen < eps {
			continue
		}
		if math.Abs(direction(a, b, pt))/segLen < eps && onSegment(a, b, pt) {
			return true
		}
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		if (p[i].Y > pt.Y) != (p[j].Y > pt.Y) {
			x := p[i].X + (pt.Y-p[i].Y)/(p[j].Y-p[i].Y)*(p[j].X-p[i].X)
			if pt.X < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// MaxDistanceFrom returns the distance from pt to the farthest polygon
// vertex.
func MaxDistanceFrom(pt Point, p Polygon) float64 {
	max := 0.0
	for _, v := range p {
		if d := math.Hypot(v.X-pt.X, v.Y-pt.Y); d > max {
			max = d
		}
	}
	return max
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
