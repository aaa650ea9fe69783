package planner

import (
	"encoding/json"
	"fmt"

	"cropterd/geo"
)

// FieldMap is a field boundary with its keep-out regions, all in local
// meters. Obstacles are physical (trees, buildings); no-fly zones are
// regulatory. The planner treats both as keep-outs but they stay
// distinct in the data model. RefLat/RefLon anchor the local origin for
// display only; no planning math touches them.
type FieldMap struct {
	FieldID    string
	Name       string
	Boundary   geo.Polygon
	Obstacles  []geo.Polygon
	NoFlyZones []geo.Polygon
	RefLat     float64
	RefLon     float64
}

// fieldMapJSON is the stable export format: rings as [x,y] pair arrays.
type fieldMapJSON struct {
	FieldID    string         `json:"field_id"`
	Name       string         `json:"name,omitempty"`
	Boundary   [][]float64    `json:"boundary"`
	Obstacles  [][][]float64  `json:"obstacles,omitempty"`
	NoFlyZones [][][]float64  `json:"no_fly_zones,omitempty"`
	Reference  *referenceJSON `json:"reference,omitempty"`
}

type referenceJSON struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (f FieldMap) MarshalJSON() ([]byte, error) {
	out := fieldMapJSON{
		FieldID:    f.FieldID,
		Name:       f.Name,
		Boundary:   ringToPairs(f.Boundary),
		Obstacles:  ringsToPairs(f.Obstacles),
		NoFlyZones: ringsToPairs(f.NoFlyZones),
	}
	if f.RefLat != 0 || f.RefLon != 0 {
		out.Reference = &referenceJSON{Lat: f.RefLat, Lon: f.RefLon}
	}
	return json.Marshal(out)
}

func (f *FieldMap) UnmarshalJSON(data []byte) error {
	var in fieldMapJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	boundary, err := pairsToRing(in.Boundary)
	if err != nil {
		return fmt.Errorf("boundary: %w", err)
	}
	obstacles, err := pairsToRings(in.Obstacles)
	if err != nil {
		return fmt.Errorf("obstacles: %w", err)
	}
	noFly, err := pairsToRings(in.NoFlyZones)
	if err != nil {
		return fmt.Errorf("no_fly_zones: %w", err)
	}
	f.FieldID = in.FieldID
	f.Name = in.Name
	f.Boundary = boundary
	f.Obstacles = obstacles
	f.NoFlyZones = noFly
	if in.Reference != nil {
		f.RefLat = in.Reference.Lat
		f.RefLon = in.Reference.Lon
	} else {
		f.RefLat, f.RefLon = 0, 0
	}
	return nil
}

func ringToPairs(p geo.Polygon) [][]float64 {
	out := make([][]float64, len(p))
	for i, v := range p {
		out[i] = []float64{v.X, v.Y}
	}
	return out
}

func ringsToPairs(ps []geo.Polygon) [][][]float64 {
	if len(ps) == 0 {
		return nil
	}
	out := make([][][]float64, len(ps))
	for i, p := range ps {
		out[i] = ringToPairs(p)
	}
	return out
}

func pairsToRing(pairs [][]float64) (geo.Polygon, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(geo.Polygon, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("vertex %d has %d coordinates, want 2", i, len(pair))
		}
		out[i] = geo.Point{X: pair[0], Y: pair[1]}
	}
	return out, nil
}

func pairsToRings(rings [][][]float64) ([]geo.Polygon, error) {
	if len(rings) == 0 {
		return nil, nil
	}
	out := make([]geo.Polygon, len(rings))
	for i, ring := range rings {
		p, err := pairsToRing(ring)
		if err != nil {
			return nil, fmt.Errorf("ring %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}
