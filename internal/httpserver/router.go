// Package httpserver wires the Control API router (spec §6) and the
// event-channel websocket handler on top of go-chi/chi, grounded on the
// teacher's RouterDeps/chi.Route wiring style (internal/httpserver/router.go).
package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradingsim/internal/broadcast"
	"tradingsim/internal/candle"
	"tradingsim/internal/pool"
	"tradingsim/internal/simengine"
	"tradingsim/internal/txqueue"
)

// Deps bundles every collaborator the Control API and event channel
// depend on.
type Deps struct {
	Registry *simengine.Registry
	Hub      *broadcast.Hub
	Candles  *candle.Coordinator
	TxQueue  *txqueue.Queue
	Pools    *pool.Monitor
}

// NewRouter builds the chi router for both the Control API (spec §6's
// endpoint table) and the event-channel upgrade endpoint.
func NewRouter(deps Deps) http.Handler {
	h := &handlers{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(simengine.ControlTimeout))

	r.Route("/api", func(r chi.Router) {
		r.Post("/simulation", h.createSimulation)
		r.Get("/simulations", h.listSimulations)

		r.Route("/simulation/{id}", func(r chi.Router) {
			r.Get("/", h.getSimulation)
			r.Get("/ready", h.readiness)
			r.Post("/start", h.start)
			r.Post("/pause", h.pause)
			r.Post("/reset", h.reset)
			r.Post("/speed", h.setSpeed)
			r.Get("/tps-mode", h.getTPSMode)
			r.Post("/tps-mode", h.setTPSMode)
			r.Post("/stress-test/liquidation-cascade", h.liquidationCascade)
			r.Post("/external-trade", h.externalTrade)
			r.Get("/candles", h.getCandles)
		})

		r.Get("/health", h.health)
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
		r.Get("/object-pools/status", h.poolStatus)
	})

	r.Get("/ws", h.events)
	return r
}
