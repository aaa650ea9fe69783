package planner

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"cropterd/geo"
)

const (
	PatternBoustrophedon = "boustrophedon"

	maxOverlap          = 0.9
	duplicateThresholdM = 0.30
	eps                 = 1e-9
)

// UnplannableFieldError reports a field that cannot produce a coverage
// plan with the requested parameters.
type UnplannableFieldError struct {
	Reason string
}

func (e *UnplannableFieldError) Error() string {
	return "unplannable field: " + e.Reason
}

// Params are the per-request planning knobs. Overlap is a fraction in
// [0, 0.9]. A zero Profile selects the Tello profile.
type Params struct {
	AltitudeM          float64
	Overlap            float64
	SafetyMarginM      float64
	OptimizeForBattery bool
	Profile            Profile
}

func (p Params) profile() Profile {
	if p.Profile.UsableFlightTimeSec == 0 {
		return TelloProfile()
	}
	return p.Profile
}

// Waypoint is one plan vertex in local meters. All waypoints of a plan
// share the plan's altitude.
type Waypoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FlightPlan is a complete coverage plan for one field.
type FlightPlan struct {
	ID         string
	FieldID    string
	Pattern    string
	AltitudeCM int
	OverlapPct float64
	Waypoints  []Waypoint
	Budget     Budget
	Feasible   bool
	Warnings   []string
	CreatedAt  time.Time
}

// Generate plans boustrophedon coverage of the field. Lanes run along
// the longer side of the boundary's bounding box and are stacked along
// the shorter side at the camera footprint spacing. The waypoint
// sequence is fully determined by the inputs.
func Generate(field FieldMap, params Params) (*FlightPlan, error) {
	prof := params.profile()

	if err := geo.Validate(field.Boundary); err != nil {
		return nil, err
	}
	if params.AltitudeM < prof.MinAltitudeM || params.AltitudeM > prof.MaxAltitudeM {
		return nil, &UnplannableFieldError{Reason: fmt.Sprintf(
			"altitude %.2fm outside [%.2f, %.2f]", params.AltitudeM, prof.MinAltitudeM, prof.MaxAltitudeM)}
	}
	if params.Overlap < 0 || params.Overlap > maxOverlap {
		return nil, &UnplannableFieldError{Reason: fmt.Sprintf(
			"overlap %.2f outside [0, %.1f]", params.Overlap, maxOverlap)}
	}

	spacing := prof.FootprintWidth(params.AltitudeM) * (1 - params.Overlap)
	bounds := geo.Bounds(field.Boundary)
	sweepX := bounds.Width() >= bounds.Height()

	across := bounds.Height()
	acrossMin := bounds.MinY
	if !sweepX {
		across = bounds.Width()
		acrossMin = bounds.MinX
	}

	laneCount := int(across/spacing) + 1
	offsets := make([]float64, laneCount)
	if laneCount == 1 {
		offsets[0] = acrossMin + across/2
	} else {
		for i := range offsets {
			offsets[i] = acrossMin + float64(i)*spacing
		}
	}

	keepouts := make([]geo.Polygon, 0, len(field.Obstacles)+len(field.NoFlyZones))
	keepouts = append(keepouts, field.Obstacles...)
	keepouts = append(keepouts, field.NoFlyZones...)

	var wps []Waypoint
	for i, off := range offsets {
		var a, b geo.Point
		if sweepX {
			a = geo.Point{X: bounds.MinX, Y: off}
			b = geo.Point{X: bounds.MaxX, Y: off}
		} else {
			a = geo.Point{X: off, Y: bounds.MinY}
			b = geo.Point{X: off, Y: bounds.MaxY}
		}
		segs := laneSegments(a, b, field.Boundary, keepouts, params.SafetyMarginM)
		if i%2 == 1 {
			reverseSegments(segs)
		}
		for _, s := range segs {
			wps = append(wps,
				Waypoint{X: s.a.X, Y: s.a.Y},
				Waypoint{X: s.b.X, Y: s.b.Y})
		}
	}

	wps = dedupeWaypoints(wps, duplicateThresholdM)
	if params.OptimizeForBattery {
		wps = subsample(wps, prof.MaxWaypointsPerBattery())
	}
	if len(wps) == 0 {
		return nil, &UnplannableFieldError{Reason: "no traversable coverage lanes"}
	}

	budget := Estimate(wps, prof)
	budget.CoverageAreaSqm = geo.Area(field.Boundary)

	plan := &FlightPlan{
		ID:         uuid.New().String(),
		FieldID:    field.FieldID,
		Pattern:    PatternBoustrophedon,
		AltitudeCM: int(math.Round(params.AltitudeM * 100)),
		OverlapPct: params.Overlap * 100,
		Waypoints:  wps,
		Budget:     budget,
		Feasible:   budget.BatteryPct <= 100,
		Warnings:   ValidateField(field, prof, budget),
		CreatedAt:  time.Now().UTC(),
	}
	return plan, nil
}

type segment struct {
	a, b geo.Point
}

type interval struct {
	lo, hi float64
}

// laneSegments clips one full-width lane to the boundary and subtracts
// every keep-out crossing, widened along the lane by the safety margin.
func laneSegments(a, b geo.Point, boundary geo.Polygon, keepouts []geo.Polygon, marginM float64) []segment {
	length := geo.Distance(a, b)
	if length < eps {
		return nil
	}
	keep := insideIntervals(a, b, boundary)
	if len(keep) == 0 {
		return nil
	}
	marginT := marginM / length
	for _, ko := range keepouts {
		if len(ko) < 3 {
			continue
		}
		blocked := insideIntervals(a, b, ko)
		if len(blocked) == 0 {
			continue
		}
		for i := range blocked {
			blocked[i].lo = math.Max(0, blocked[i].lo-marginT)
			blocked[i].hi = math.Min(1, blocked[i].hi+marginT)
		}
		keep = subtractIntervals(keep, blocked)
		if len(keep) == 0 {
			return nil
		}
	}
	segs := make([]segment, 0, len(keep))
	for _, iv := range keep {
		if iv.hi-iv.lo <= eps {
			continue
		}
		segs = append(segs, segment{a: lerp(a, b, iv.lo), b: lerp(a, b, iv.hi)})
	}
	return segs
}

// insideIntervals returns the parametric runs of segment a-b that lie
// inside the polygon, decided by the midpoint of each run between
// consecutive edge crossings.
func insideIntervals(a, b geo.Point, p geo.Polygon) []interval {
	cuts := geo.CrossingParams(a, b, p)
	bounds := make([]float64, 0, len(cuts)+2)
	bounds = append(bounds, 0)
	bounds = append(bounds, cuts...)
	bounds = append(bounds, 1)

	var out []interval
	for i := 1; i < len(bounds); i++ {
		lo, hi := bounds[i-1], bounds[i]
		if hi-lo < eps {
			continue
		}
		mid := lerp(a, b, (lo+hi)/2)
		if !geo.Contains(p, mid) {
			continue
		}
		if len(out) > 0 && lo-out[len(out)-1].hi < eps {
			out[len(out)-1].hi = hi
			continue
		}
		out = append(out, interval{lo: lo, hi: hi})
	}
	return out
}

func subtractIntervals(keep, blocked []interval) []interval {
	var out []interval
	for _, k := range keep {
		parts := []interval{k}
		for _, bl := range blocked {
			var next []interval
			for _, p := range parts {
				if bl.hi <= p.lo || bl.lo >= p.hi {
					next = append(next, p)
					continue
				}
				if bl.lo > p.lo {
					next = append(next, interval{lo: p.lo, hi: bl.lo})
				}
				if bl.hi < p.hi {
					next = append(next, interval{lo: bl.hi, hi: p.hi})
				}
			}
			parts = next
		}
		out = append(out, parts...)
	}
	return out
}

func reverseSegments(segs []segment) {
	for l, r := 0, len(segs)-1; l < r; l, r = l+1, r-1 {
		segs[l], segs[r] = segs[r], segs[l]
	}
	for i := range segs {
		segs[i].a, segs[i].b = segs[i].b, segs[i].a
	}
}

// dedupeWaypoints drops consecutive waypoints closer than minSepM.
func dedupeWaypoints(wps []Waypoint, minSepM float64) []Waypoint {
	if len(wps) == 0 {
		return wps
	}
	out := []Waypoint{wps[0]}
	for _, w := range wps[1:] {
		last := out[len(out)-1]
		if math.Hypot(w.X-last.X, w.Y-last.Y) >= minSepM {
			out = append(out, w)
		}
	}
	return out
}

// subsample thins an over-long plan down to max waypoints, spaced
// evenly, always keeping the first and last.
func subsample(wps []Waypoint, max int) []Waypoint {
	if max < 2 || len(wps) <= max {
		return wps
	}
	out := make([]Waypoint, 0, max)
	step := float64(len(wps)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		out = append(out, wps[int(math.Round(float64(i)*step))])
	}
	return out
}

func lerp(a, b geo.Point, t float64) geo.Point {
	return geo.Point{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y)}
}
