package www

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"cropterd/config"
	"cropterd/dispatch"
	"cropterd/drone"
	"cropterd/engine"
	"cropterd/geo"
	"cropterd/mission"
	"cropterd/planner"
	"cropterd/store"
	"cropterd/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writePlanFailure is the structured failure shape of the planning
// endpoint.
func writePlanFailure(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":       false,
		"error_code":    code,
		"error_message": msg,
	})
}

// errorCode maps a domain error to its wire code.
func errorCode(err error) string {
	var (
		degenerate  *geo.DegenerateGeometryError
		unplannable *planner.UnplannableFieldError
		transition  *mission.InvalidStateTransitionError
		conflict    *mission.ModeConflictError
		param       *dispatch.InvalidCommandParameterError
		reading     *telemetry.ValidationError
		lost        *drone.LinkLostError
	)
	switch {
	case errors.As(err, &degenerate):
		return "degenerate_geometry"
	case errors.As(err, &unplannable):
		return "unplannable_field"
	case errors.As(err, &transition):
		return "invalid_state_transition"
	case errors.As(err, &conflict):
		return "mode_conflict"
	case errors.As(err, &param):
		return "invalid_command_parameter"
	case errors.As(err, &reading):
		return "telemetry_validation"
	case errors.As(err, &lost):
		return "drone_link_lost"
	default:
		return "internal_error"
	}
}

// planStatus maps a wire code to the HTTP status of the planning
// endpoint. Domain rejections are 422, malformed input 400.
func planStatus(code string) int {
	switch code {
	case "degenerate_geometry", "unplannable_field":
		return http.StatusUnprocessableEntity
	case "invalid_request":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) apiHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":     "ok",
		"version":    h.version,
		"node_id":    h.engine.AppConfig().NodeID(),
		"uptime_sec": int64(time.Since(h.started).Seconds()),
	})
}

// --- Config ---

func (h *Handlers) apiGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.AppConfig())
}

func (h *Handlers) apiUpdateDroneConfig(w http.ResponseWriter, r *http.Request) {
	var req config.DroneConfig
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch req.Mode {
	case "sim", "tello":
	default:
		writeError(w, http.StatusBadRequest, "drone mode must be \"sim\" or \"tello\"")
		return
	}

	cfg := h.engine.AppConfig()
	cfg.Lock()
	cfg.Drone = req
	cfg.Unlock()

	if err := cfg.Save(h.engine.ConfigPath()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// The link is constructed at startup; a mode change needs a restart.
	writeJSON(w, map[string]string{"status": "ok", "note": "drone link changes apply after restart"})
}

func (h *Handlers) apiChangePassword(w http.ResponseWriter, r *http.Request) {
	username, ok := h.sessions.getUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.engine.DB().GetAdminUser(username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "user not found")
		return
	}
	if !checkPassword(req.OldPassword, user.PasswordHash) {
		writeError(w, http.StatusBadRequest, "current password is incorrect")
		return
	}

	hash, err := hashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}
	if err := h.engine.DB().UpdateAdminPassword(username, hash); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// --- Fields ---

// fieldJSON flattens a field row with its geometry document inlined
// instead of double-encoded.
func fieldJSON(f store.Field) map[string]interface{} {
	return map[string]interface{}{
		"field_id":   f.FieldID,
		"name":       f.Name,
		"geometry":   json.RawMessage(f.Geometry),
		"created_at": f.CreatedAt,
		"updated_at": f.UpdatedAt,
	}
}

func (h *Handlers) apiListFields(w http.ResponseWriter, r *http.Request) {
	fields, err := h.engine.DB().ListFields()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]map[string]interface{}, len(fields))
	for i, f := range fields {
		out[i] = fieldJSON(f)
	}
	writeJSON(w, map[string]interface{}{"fields": out})
}

func (h *Handlers) apiSaveField(w http.ResponseWriter, r *http.Request) {
	var field planner.FieldMap
	if err := json.NewDecoder(r.Body).Decode(&field); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if field.FieldID == "" {
		writeError(w, http.StatusBadRequest, "field_id is required")
		return
	}
	if err := geo.Validate(field.Boundary); err != nil {
		writePlanFailure(w, http.StatusUnprocessableEntity, errorCode(err), err.Error())
		return
	}

	geom, err := json.Marshal(field)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.engine.DB().UpsertField(field.FieldID, field.Name, string(geom)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok", "field_id": field.FieldID})
}

func (h *Handlers) apiGetField(w http.ResponseWriter, r *http.Request) {
	f, err := h.engine.DB().GetField(chi.URLParam(r, "fieldID"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "field not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, fieldJSON(*f))
}

func (h *Handlers) apiDeleteField(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DB().DeleteField(chi.URLParam(r, "fieldID")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// --- Flight planning ---

// planJSON is the wire shape of a generated plan.
func planJSON(p *planner.FlightPlan) map[string]interface{} {
	warnings := p.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return map[string]interface{}{
		"id":                     p.ID,
		"field_id":               p.FieldID,
		"pattern":                p.Pattern,
		"altitude_cm":            p.AltitudeCM,
		"overlap_pct":            p.OverlapPct,
		"waypoints":              p.Waypoints,
		"total_waypoints":        len(p.Waypoints),
		"total_distance_m":       p.Budget.TotalDistanceM,
		"estimated_duration_sec": p.Budget.DurationSec,
		"estimated_battery_pct":  p.Budget.BatteryPct,
		"batteries_needed":       p.Budget.BatteriesNeeded,
		"coverage_area_sqm":      p.Budget.CoverageAreaSqm,
		"feasible":               p.Feasible,
		"warnings":               warnings,
	}
}

func (h *Handlers) apiGenerateFlightPath(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Field     planner.FieldMap `json:"field"`
		AltitudeM float64          `json:"altitude_m"`
		Overlap   float64          `json:"overlap_pct"`
		Save      bool             `json:"save"`
		Adaptive  bool             `json:"adaptive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writePlanFailure(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	// Percent and fraction are both accepted on the wire; the planner
	// wants a fraction.
	overlap := req.Overlap
	if overlap > 1 {
		overlap /= 100
	}

	cfg := h.engine.AppConfig()
	params := planner.Params{
		AltitudeM:          req.AltitudeM,
		Overlap:            overlap,
		SafetyMarginM:      cfg.Planner.SafetyMarginM,
		OptimizeForBattery: cfg.Planner.OptimizeForBattery,
	}

	var plans []*planner.FlightPlan
	var err error
	if req.Adaptive {
		plans, err = planner.GenerateStrips(req.Field, params)
	} else {
		var p *planner.FlightPlan
		p, err = planner.Generate(req.Field, params)
		if p != nil {
			plans = []*planner.FlightPlan{p}
		}
	}
	if err != nil {
		code := errorCode(err)
		writePlanFailure(w, planStatus(code), code, err.Error())
		return
	}

	if req.Save {
		if err := h.savePlans(req.Field, plans); err != nil {
			writePlanFailure(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
	}

	for _, p := range plans {
		h.engine.Events.Emit(engine.Event{Type: engine.EventPlanGenerated, Payload: engine.PlanGeneratedEvent{
			PlanUUID:  p.ID,
			FieldID:   p.FieldID,
			Waypoints: len(p.Waypoints),
			Feasible:  p.Feasible,
		}})
	}

	if len(plans) > 1 {
		out := make([]map[string]interface{}, len(plans))
		for i, p := range plans {
			out[i] = planJSON(p)
		}
		writeJSON(w, map[string]interface{}{"success": true, "multi_flight": true, "plans": out})
		return
	}
	writeJSON(w, map[string]interface{}{"success": true, "plan": planJSON(plans[0])})
}

// savePlans persists the field and every plan against it. An ad hoc
// boundary without a field id gets one minted so the plan rows have
// something to reference.
func (h *Handlers) savePlans(field planner.FieldMap, plans []*planner.FlightPlan) error {
	db := h.engine.DB()
	if field.FieldID == "" {
		field.FieldID = uuid.New().String()
		for _, p := range plans {
			p.FieldID = field.FieldID
		}
	}
	geom, err := json.Marshal(field)
	if err != nil {
		return err
	}
	if err := db.UpsertField(field.FieldID, field.Name, string(geom)); err != nil {
		return err
	}
	for _, p := range plans {
		wps, err := json.Marshal(p.Waypoints)
		if err != nil {
			return err
		}
		warns := []byte("[]")
		if len(p.Warnings) > 0 {
			warns, _ = json.Marshal(p.Warnings)
		}
		if _, err := db.SaveFlightPlan(store.FlightPlanRecord{
			UUID:            p.ID,
			FieldID:         p.FieldID,
			Pattern:         p.Pattern,
			AltitudeCM:      p.AltitudeCM,
			OverlapPct:      p.OverlapPct,
			WaypointCount:   len(p.Waypoints),
			TotalDistanceM:  p.Budget.TotalDistanceM,
			DurationSec:     float64(p.Budget.DurationSec),
			BatteryPct:      p.Budget.BatteryPct,
			BatteriesNeeded: p.Budget.BatteriesNeeded,
			CoverageSqm:     p.Budget.CoverageAreaSqm,
			Feasible:        p.Feasible,
			Waypoints:       string(wps),
			Warnings:        string(warns),
		}); err != nil {
			return err
		}
	}
	return nil
}

// recordJSON rebuilds the generation wire shape from a stored plan row.
func recordJSON(rec *store.FlightPlanRecord) map[string]interface{} {
	wps := []planner.Waypoint{}
	if rec.Waypoints != "" {
		json.Unmarshal([]byte(rec.Waypoints), &wps)
	}
	warnings := []string{}
	if rec.Warnings != "" {
		json.Unmarshal([]byte(rec.Warnings), &warnings)
	}
	if warnings == nil {
		warnings = []string{}
	}
	return map[string]interface{}{
		"id":                     rec.UUID,
		"field_id":               rec.FieldID,
		"pattern":                rec.Pattern,
		"altitude_cm":            rec.AltitudeCM,
		"overlap_pct":            rec.OverlapPct,
		"waypoints":              wps,
		"total_waypoints":        rec.WaypointCount,
		"total_distance_m":       rec.TotalDistanceM,
		"estimated_duration_sec": rec.DurationSec,
		"estimated_battery_pct":  rec.BatteryPct,
		"batteries_needed":       rec.BatteriesNeeded,
		"coverage_area_sqm":      rec.CoverageSqm,
		"feasible":               rec.Feasible,
		"warnings":               warnings,
		"created_at":             rec.CreatedAt,
	}
}

func (h *Handlers) apiGetPlan(w http.ResponseWriter, r *http.Request) {
	rec, err := h.engine.DB().GetFlightPlan(chi.URLParam(r, "uuid"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "plan not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"success": true, "plan": recordJSON(rec)})
}

// --- Missions ---

func (h *Handlers) apiListMissions(w http.ResponseWriter, r *http.Request) {
	missions, err := h.engine.DB().ListMissions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"missions": missions})
}

func (h *Handlers) apiGetMission(w http.ResponseWriter, r *http.Request) {
	m, err := h.engine.DB().GetMissionByUUID(chi.URLParam(r, "uuid"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "mission not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	events, err := h.engine.DB().ListMissionEvents(m.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"mission": m, "events": events})
}

func (h *Handlers) apiListRecordings(w http.ResponseWriter, r *http.Request) {
	recs, err := h.engine.DB().ListRecordings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"recordings": recs})
}

// --- Drone status ---

func (h *Handlers) apiDroneStatus(w http.ResponseWriter, r *http.Request) {
	state := h.engine.Session().State()
	resp := map[string]interface{}{
		"state":     state,
		"mode":      mission.Mode(state),
		"link_mode": h.engine.LinkMode(),
		"recording": h.engine.Recording(),
	}
	if snap, ok := h.engine.Relay().Latest(); ok {
		resp["telemetry"] = wireTelemetry(snap)
	} else {
		resp["telemetry"] = nil
	}
	writeJSON(w, resp)
}
