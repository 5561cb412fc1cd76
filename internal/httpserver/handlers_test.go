package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tradingsim/internal/broadcast"
	"tradingsim/internal/candle"
	"tradingsim/internal/pool"
	"tradingsim/internal/simengine"
	"tradingsim/internal/simmodel"
	"tradingsim/internal/txqueue"
)

func newTestRouter() http.Handler {
	deps := simengine.Deps{
		Candles:      candle.NewCoordinator(),
		Hub:          broadcast.New(),
		TxQueue:      txqueue.New(4),
		TradePool:    pool.New[*simmodel.Trade]("trade", 2000, 0, func() *simmodel.Trade { return &simmodel.Trade{} }),
		PositionPool: pool.New[*simmodel.Position]("position", 1000, 0, func() *simmodel.Position { return &simmodel.Position{} }),
	}
	registry := simengine.NewRegistry(deps)
	monitor := pool.NewMonitor()
	monitor.Register(deps.TradePool)
	monitor.Register(deps.PositionPool)

	return NewRouter(Deps{
		Registry: registry,
		Hub:      deps.Hub,
		Candles:  deps.Candles,
		TxQueue:  deps.TxQueue,
		Pools:    monitor,
	})
}

func TestCreateAndFetchSimulation(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/simulation", strings.NewReader(`{"priceRange":"mid","duration":3600}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	data := body["data"].(map[string]interface{})
	simID := data["simulationId"].(string)

	req2 := httptest.NewRequest(http.MethodGet, "/api/simulation/"+simID, nil)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec2.Code)
	}
}

func TestGetUnknownSimulationReturns404(t *testing.T) {
	router := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/simulation/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCreateRejectsOutOfRangeDuration(t *testing.T) {
	router := newTestRouter()
	req := httptest.NewRequest(http.MethodPost, "/api/simulation", strings.NewReader(`{"duration":10}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range duration, got %d", rec.Code)
	}
}

func TestLiquidationCascadeRejectsInNormalMode(t *testing.T) {
	router := newTestRouter()
	req := httptest.NewRequest(http.MethodPost, "/api/simulation", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	simID := body["data"].(map[string]interface{})["simulationId"].(string)

	req2 := httptest.NewRequest(http.MethodPost, "/api/simulation/"+simID+"/stress-test/liquidation-cascade", nil)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 invalid_mode, got %d", rec2.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
