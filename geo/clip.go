package geo

// ClipToRect clips a polygon against an axis-aligned rectangle using
// Sutherland-Hodgman, one half-plane at a time. The result may be
// empty when the polygon lies fully outside the rectangle.
func ClipToRect(p Polygon, r Rect) Polygon {
	out := append(Polygon(nil), p...)
	out = clipHalfPlane(out,
		func(pt Point) bool { return pt.X >= r.MinX-eps },
		func(a, b Point) Point { return atX(a, b, r.MinX) })
	out = clipHalfPlane(out,
		func(pt Point) bool { return pt.X <= r.MaxX+eps },
		func(a, b Point) Point { return atX(a, b, r.MaxX) })
	out = clipHalfPlane(out,
		func(pt Point) bool { return pt.Y >= r.MinY-eps },
		func(a, b Point) Point { return atY(a, b, r.MinY) })
	out = clipHalfPlane(out,
		func(pt Point) bool { return pt.Y <= r.MaxY+eps },
		func(a, b Point) Point { return atY(a, b, r.MaxY) })
	return out
}

func clipHalfPlane(p Polygon, inside func(Point) bool, cross func(a, b Point) Point) Polygon {
	if len(p) == 0 {
		return nil
	}
	var out Polygon
	prev := p[len(p)-1]
	prevIn := inside(prev)
	for _, cur := range p {
		curIn := inside(cur)
		switch {
		case curIn && prevIn:
			out = append(out, cur)
		case curIn && !prevIn:
			out = append(out, cross(prev, cur), cur)
		case !curIn && prevIn:
			out = append(out, cross(prev, cur))
		}
		prev, prevIn = cur, curIn
	}
	return out
}

func atX(a, b Point, x float64) Point {
	t := (x - a.X) / (b.X - a.X)
	return Point{x, a.Y + t*(b.Y-a.Y)}
}

func atY(a, b Point, y float64) Point {
	t := (y - a.Y) / (b.Y - a.Y)
	return Point{a.X + t*(b.X-a.X), y}
}
