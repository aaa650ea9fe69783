package www

import (
	"net/http"
	"time"

	"cropterd/engine"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	engine   *engine.Engine
	version  string
	started  time.Time
	sessions *sessionStore
	eventHub *EventHub
	control  *ControlHub
}

// NewRouter creates the chi router and returns it along with a stop function.
func NewRouter(eng *engine.Engine, version string) (http.Handler, func()) {
	h := &Handlers{
		engine:   eng,
		version:  version,
		started:  time.Now(),
		sessions: newSessionStore(eng.AppConfig().Web.SessionSecret),
		eventHub: NewEventHub(),
		control:  NewControlHub(),
	}

	h.eventHub.Start()
	h.eventHub.SetupEngineListeners(eng)
	h.control.SetupEngineListeners(eng)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// SSE is unauthenticated; farm dashboards read it without a login.
	r.Get("/events", h.eventHub.HandleSSE)

	// Control channel
	r.Get("/ws", h.handleControlSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.apiHealth)
		r.Post("/login", h.apiLogin)
		r.Post("/logout", h.apiLogout)

		// Fields and planning need no auth; the pilot console runs on
		// the same trusted network as the drone.
		r.Get("/fields", h.apiListFields)
		r.Post("/fields", h.apiSaveField)
		r.Get("/fields/{fieldID}", h.apiGetField)
		r.Post("/generate-flight-path", h.apiGenerateFlightPath)
		r.Get("/plans/{uuid}", h.apiGetPlan)
		r.Get("/missions", h.apiListMissions)
		r.Get("/missions/{uuid}", h.apiGetMission)
		r.Get("/recordings", h.apiListRecordings)
		r.Get("/drone/status", h.apiDroneStatus)

		// Admin API (config mutations)
		r.Group(func(r chi.Router) {
			r.Use(h.adminMiddleware)

			r.Get("/config", h.apiGetConfig)
			r.Put("/config/drone", h.apiUpdateDroneConfig)
			r.Post("/config/password", h.apiChangePassword)
			r.Delete("/fields/{fieldID}", h.apiDeleteField)
		})
	})

	return r, func() {
		h.eventHub.Stop()
		h.control.Stop()
	}
}

func (h *Handlers) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, ok := h.sessions.getUser(r)
		if !ok || username == "" {
			writeError(w, http.StatusUnauthorized, "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
