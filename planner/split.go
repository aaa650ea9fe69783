package planner

import "cropterd/geo"

// GenerateStrips plans a field that exceeds one battery by splitting
// its bounding box into equal strips across the lane-stacking axis and
// planning each strip as its own flight. A field feasible in one
// flight returns a single plan. Strips left fully occluded by
// keep-outs are skipped.
func GenerateStrips(field FieldMap, params Params) ([]*FlightPlan, error) {
	plan, err := Generate(field, params)
	if err != nil {
		return nil, err
	}
	if plan.Feasible {
		return []*FlightPlan{plan}, nil
	}

	n := plan.Budget.BatteriesNeeded
	bounds := geo.Bounds(field.Boundary)
	sweepX := bounds.Width() >= bounds.Height()

	plans := make([]*FlightPlan, 0, n)
	for i := 0; i < n; i++ {
		r := bounds
		if sweepX {
			h := bounds.Height() / float64(n)
			r.MinY = bounds.MinY + float64(i)*h
			r.MaxY = r.MinY + h
		} else {
			w := bounds.Width() / float64(n)
			r.MinX = bounds.MinX + float64(i)*w
			r.MaxX = r.MinX + w
		}
		clipped := geo.ClipToRect(field.Boundary, r)
		if geo.Validate(clipped) != nil {
			continue
		}
		sub := field
		sub.Boundary = clipped
		p, err := Generate(sub, params)
		if err != nil {
			continue
		}
		plans = append(plans, p)
	}
	if len(plans) == 0 {
		return nil, &UnplannableFieldError{Reason: "no plannable strips"}
	}
	return plans, nil
}
