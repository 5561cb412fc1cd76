package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradingsim/internal/httputil"
	"tradingsim/internal/simengine"
	"tradingsim/internal/simmodel"
)

type handlers struct {
	deps Deps
}

// createSimulationRequest mirrors POST /api/simulation's body (spec §6).
type createSimulationRequest struct {
	PriceRange            simmodel.PriceRange `json:"priceRange"`
	CustomPrice            float64             `json:"customPrice"`
	UseCustomPrice         bool                `json:"useCustomPrice"`
	InitialPrice           float64             `json:"initialPrice"`
	InitialLiquidity       float64             `json:"initialLiquidity"`
	Duration               int64               `json:"duration"`
	VolatilityFactor       float64             `json:"volatilityFactor"`
	TimeCompressionFactor  float64             `json:"timeCompressionFactor"`
	ScenarioType           simmodel.ScenarioType `json:"scenarioType"`
}

func (h *handlers) createSimulation(w http.ResponseWriter, r *http.Request) {
	var req createSimulationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorResponse(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Duration != 0 && (req.Duration < 60 || req.Duration > 86400) {
		httputil.ErrorResponse(w, http.StatusBadRequest, "duration must be in [60,86400] seconds", nil)
		return
	}
	if req.VolatilityFactor != 0 && (req.VolatilityFactor < 0.1 || req.VolatilityFactor > 10) {
		httputil.ErrorResponse(w, http.StatusBadRequest, "volatilityFactor must be in [0.1,10]", nil)
		return
	}
	if req.TimeCompressionFactor != 0 && (req.TimeCompressionFactor < 1 || req.TimeCompressionFactor > 1000) {
		httputil.ErrorResponse(w, http.StatusBadRequest, "timeCompressionFactor must be in [1,1000]", nil)
		return
	}

	id := uuid.NewString()
	sim, err := h.deps.Registry.Create(id, simengine.CreateOptions{
		PriceRange:            req.PriceRange,
		CustomPrice:           req.CustomPrice,
		UseCustomPrice:        req.UseCustomPrice,
		InitialPrice:          req.InitialPrice,
		InitialLiquidity:      req.InitialLiquidity,
		DurationSec:           req.Duration,
		VolatilityFactor:      req.VolatilityFactor,
		TimeCompressionFactor: req.TimeCompressionFactor,
		ScenarioType:          req.ScenarioType,
	})
	if err != nil {
		httputil.ErrorResponse(w, http.StatusInternalServerError, "failed to create simulation", err.Error())
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"simulationId": id,
		"state":        sim.Snapshot(),
	})
}

func (h *handlers) listSimulations(w http.ResponseWriter, r *http.Request) {
	sims := h.deps.Registry.List()
	summaries := make([]map[string]interface{}, 0, len(sims))
	for _, s := range sims {
		snap := s.Snapshot()
		summaries = append(summaries, map[string]interface{}{
			"id":           snap.ID,
			"isRunning":    snap.IsRunning,
			"isPaused":     snap.IsPaused,
			"currentPrice": snap.CurrentPrice,
			"traderCount":  snap.TraderCount,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, summaries)
}

func (h *handlers) simOrNotFound(w http.ResponseWriter, r *http.Request) (*simengine.Simulation, bool) {
	id := chi.URLParam(r, "id")
	sim, ok := h.deps.Registry.Get(id)
	if !ok {
		httputil.ErrorResponse(w, http.StatusNotFound, "unknown simulation id", nil)
		return nil, false
	}
	return sim, true
}

func (h *handlers) getSimulation(w http.ResponseWriter, r *http.Request) {
	sim, ok := h.simOrNotFound(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sim.Snapshot())
}

func (h *handlers) readiness(w http.ResponseWriter, r *http.Request) {
	sim, ok := h.simOrNotFound(w, r)
	if !ok {
		return
	}
	snap := sim.Snapshot()
	status := "initialized"
	if snap.IsRunning {
		status = "running"
	} else if snap.IsPaused {
		status = "paused"
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"ready": true, "status": status})
}

func (h *handlers) start(w http.ResponseWriter, r *http.Request) {
	sim, ok := h.simOrNotFound(w, r)
	if !ok {
		return
	}
	if err := sim.Start(); err != nil {
		httputil.ErrorResponse(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, nil)
}

func (h *handlers) pause(w http.ResponseWriter, r *http.Request) {
	sim, ok := h.simOrNotFound(w, r)
	if !ok {
		return
	}
	if err := sim.Pause(); err != nil {
		httputil.ErrorResponse(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, nil)
}

type resetRequest struct {
	ClearAllData bool `json:"clearAllData"`
	ResetPrice   bool `json:"resetPrice"`
	ResetState   bool `json:"resetState"`
}

func (h *handlers) reset(w http.ResponseWriter, r *http.Request) {
	sim, ok := h.simOrNotFound(w, r)
	if !ok {
		return
	}
	var req resetRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorResponse(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := sim.Reset(simengine.ResetOptions(req)); err != nil {
		httputil.ErrorResponse(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sim.Snapshot())
}

type speedRequest struct {
	Speed float64 `json:"speed"`
}

func (h *handlers) setSpeed(w http.ResponseWriter, r *http.Request) {
	sim, ok := h.simOrNotFound(w, r)
	if !ok {
		return
	}
	var req speedRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorResponse(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := sim.SetSpeed(req.Speed); err != nil {
		httputil.ErrorResponse(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, nil)
}

func (h *handlers) getTPSMode(w http.ResponseWriter, r *http.Request) {
	sim, ok := h.simOrNotFound(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"mode": sim.TPSMode()})
}

type tpsModeRequest struct {
	Mode simmodel.TPSMode `json:"mode"`
}

func (h *handlers) setTPSMode(w http.ResponseWriter, r *http.Request) {
	sim, ok := h.simOrNotFound(w, r)
	if !ok {
		return
	}
	var req tpsModeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorResponse(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := sim.SetTPSMode(req.Mode); err != nil {
		httputil.ErrorResponse(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"mode": req.Mode})
}

func (h *handlers) liquidationCascade(w http.ResponseWriter, r *http.Request) {
	sim, ok := h.simOrNotFound(w, r)
	if !ok {
		return
	}
	res, err := sim.LiquidationCascade()
	if err == simengine.ErrInvalidMode {
		httputil.ErrorResponse(w, http.StatusBadRequest, "invalid_mode", "liquidation cascade requires STRESS or HFT mode")
		return
	}
	if err != nil {
		httputil.ErrorResponse(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ordersGenerated": res.OrdersGenerated,
		"estimatedImpact": res.EstimatedImpact,
		"cascadeSize":     res.CascadeSize,
	})
}

// externalTradeRequest carries price/quantity as decimal strings so the
// boundary parse is exact before conversion to the engine's float64
// representation (mirrors the teacher's orders/handler.go decimal parsing).
type externalTradeRequest struct {
	ID       string               `json:"id"`
	TraderID string               `json:"traderId"`
	Action   simmodel.TradeAction `json:"action"`
	Price    string               `json:"price"`
	Quantity string               `json:"quantity"`
}

func (h *handlers) externalTrade(w http.ResponseWriter, r *http.Request) {
	sim, ok := h.simOrNotFound(w, r)
	if !ok {
		return
	}
	var req externalTradeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorResponse(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	var price decimal.Decimal
	if req.Price != "" {
		p, err := decimal.NewFromString(req.Price)
		if err != nil {
			httputil.ErrorResponse(w, http.StatusBadRequest, "price must be a decimal string", nil)
			return
		}
		price = p
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil || quantity.Sign() <= 0 {
		httputil.ErrorResponse(w, http.StatusBadRequest, "quantity must be a positive decimal string", nil)
		return
	}

	res, err := sim.ExternalTrade(simengine.ExternalTradeRequest{
		ID:       req.ID,
		TraderID: req.TraderID,
		Action:   req.Action,
		Price:    price.InexactFloat64(),
		Quantity: quantity.InexactFloat64(),
	})
	if err != nil {
		httputil.ErrorResponse(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"trade":    res.Trade,
		"newPrice": res.NewPrice,
		"impact":   res.Impact,
	})
}

func (h *handlers) getCandles(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.deps.Registry.Get(id); !ok {
		httputil.ErrorResponse(w, http.StatusNotFound, "unknown simulation id", nil)
		return
	}
	candles := h.deps.Candles.Candles(id, 250)
	httputil.WriteJSON(w, http.StatusOK, candles)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"hub":       h.deps.Hub.HealthCheck(),
		"txqueue":   h.deps.TxQueue.GetQueueStats(),
	})
}

func (h *handlers) poolStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.deps.Pools.Snapshot())
}
