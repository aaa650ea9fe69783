package planner

import (
	"fmt"

	"cropterd/geo"
)

// ValidateField returns advisory warnings for a field against the
// airframe profile. Warnings never fail planning.
func ValidateField(field FieldMap, prof Profile, b Budget) []string {
	var warnings []string
	c := geo.Centroid(field.Boundary)
	if d := geo.MaxDistanceFrom(c, field.Boundary); d > prof.MaxRangeM {
		warnings = append(warnings, fmt.Sprintf(
			"field extends %.0fm from its center, beyond the %.0fm control range", d, prof.MaxRangeM))
	}
	if b.BatteriesNeeded > 1 {
		warnings = append(warnings, fmt.Sprintf(
			"coverage requires %d batteries (%.0f%% of one charge)", b.BatteriesNeeded, b.BatteryPct))
	}
	return warnings
}
