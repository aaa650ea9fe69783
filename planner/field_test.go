package planner

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestFieldMap_JSONFormat(t *testing.T) {
	raw := `{
		"field_id": "north-paddock",
		"name": "North Paddock",
		"boundary": [[0,0],[100,0],[100,50],[0,50]],
		"obstacles": [[[20,20],[30,20],[30,30],[20,30]]],
		"no_fly_zones": [[[45,0],[55,0],[55,50],[45,50]]],
		"reference": {"lat": 52.52, "lon": 13.405}
	}`

	var f FieldMap
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.FieldID != "north-paddock" {
		t.Errorf("field_id = %q", f.FieldID)
	}
	if len(f.Boundary) != 4 || f.Boundary[2].X != 100 || f.Boundary[2].Y != 50 {
		t.Errorf("boundary = %v", f.Boundary)
	}
	if len(f.Obstacles) != 1 || len(f.NoFlyZones) != 1 {
		t.Errorf("obstacles = %d, no-fly = %d, want 1 each", len(f.Obstacles), len(f.NoFlyZones))
	}
	if f.RefLat != 52.52 || f.RefLon != 13.405 {
		t.Errorf("reference = %v, %v", f.RefLat, f.RefLon)
	}

	out, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// Rings export as [x,y] pair arrays, not point objects.
	if !strings.Contains(string(out), `"boundary":[[0,0],[100,0],[100,50],[0,50]]`) {
		t.Errorf("boundary not in pair-array form: %s", out)
	}

	var back FieldMap
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("re-unmarshal: %v", err)
	}
	if back.FieldID != f.FieldID || len(back.Boundary) != len(f.Boundary) {
		t.Errorf("round trip changed the field: %+v", back)
	}
}

func TestFieldMap_RejectsBadVertex(t *testing.T) {
	raw := `{"field_id": "bad", "boundary": [[0,0],[1],[2,2]]}`
	var f FieldMap
	if err := json.Unmarshal([]byte(raw), &f); err == nil {
		t.Error("one-coordinate vertex should be rejected")
	}
}
