package admin

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/asgard/gvcam/internal/gvcp"
	"github.com/asgard/gvcam/internal/observability"
)

// NewRouter builds the read-only admin HTTP surface: device status,
// register peeks, live statistics, discovery configuration, and a
// WebSocket event feed, adapted from the platform's chi+cors API router.
func NewRouter(eng *gvcp.Engine, broadcaster *Broadcaster, corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.HTTPMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := &handler{eng: eng, broadcaster: broadcaster}

	r.Get("/healthz", h.health)
	r.Get("/metrics", observability.Handler().ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Get("/stats", h.stats)
		r.Get("/discovery", h.discovery)
		r.Get("/registers/{addr}", h.readRegister)
	})

	r.Get("/events", h.events)

	return r
}

type handler struct {
	eng         *gvcp.Engine
	broadcaster *Broadcaster
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ccp_privilege":     h.eng.Store().CCP.Privilege(),
		"should_recreate":   h.eng.ShouldRecreateSocket(),
		"connection_status": h.eng.Statistics().ConnectionStatus(),
	})
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	snap := h.eng.Statistics().Snapshot()
	writeJSON(w, http.StatusOK, snap)
	h.broadcaster.Broadcast(EventStatsPolled, snap)
}

func (h *handler) discovery(w http.ResponseWriter, r *http.Request) {
	disc := h.eng.Discovery()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"config": disc.Config(),
		"stats":  disc.Stats(),
	})
}

func (h *handler) readRegister(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "addr")
	addr, err := strconv.ParseUint(raw, 0, 32)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "address must be a decimal or 0x-prefixed hex value"})
		return
	}
	v, err := h.eng.Store().ReadU32(uint32(addr))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"address": addr, "value": v})
}

func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	h.broadcaster.handleWebSocket(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
