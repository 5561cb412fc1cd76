package simengine

import (
	"testing"
	"time"

	"tradingsim/internal/broadcast"
	"tradingsim/internal/candle"
	"tradingsim/internal/pool"
	"tradingsim/internal/simmodel"
	"tradingsim/internal/txqueue"
)

func newTestDeps() Deps {
	return Deps{
		Candles:      candle.NewCoordinator(),
		Hub:          broadcast.New(),
		TxQueue:      txqueue.New(4),
		TradePool:    pool.New[*simmodel.Trade]("trade", 2000, 0, func() *simmodel.Trade { return &simmodel.Trade{} }),
		PositionPool: pool.New[*simmodel.Position]("position", 1000, 0, func() *simmodel.Position { return &simmodel.Position{} }),
	}
}

func TestCreateColdStart(t *testing.T) {
	r := NewRegistry(newTestDeps())
	sim, err := r.Create("sim-1", CreateOptions{PriceRange: simmodel.PriceRangeMid, DurationSec: 3600, VolatilityFactor: 1.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := sim.Snapshot()
	if snap.CurrentPrice < 1 || snap.CurrentPrice > 10 {
		t.Fatalf("expected price in [1,10] for mid range, got %v", snap.CurrentPrice)
	}
	if len(snap.PriceHistory) != 0 {
		t.Fatalf("expected empty price history at cold start, got %d", len(snap.PriceHistory))
	}
	if snap.TraderCount < 100 {
		t.Fatalf("expected at least 100 traders, got %d", snap.TraderCount)
	}
	if snap.IsRunning {
		t.Fatalf("expected isRunning false at cold start")
	}
}

func TestPauseInvariantAfterStart(t *testing.T) {
	r := NewRegistry(newTestDeps())
	sim, _ := r.Create("sim-1", CreateOptions{PriceRange: simmodel.PriceRangeMid, DurationSec: 3600})
	if err := sim.Start(); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if err := sim.Pause(); err != nil {
		t.Fatalf("unexpected pause error: %v", err)
	}
	snap := sim.Snapshot()
	if snap.IsRunning || !snap.IsPaused {
		t.Fatalf("expected (running,paused) == (false,true), got (%v,%v)", snap.IsRunning, snap.IsPaused)
	}
}

func TestStartTwiceRejected(t *testing.T) {
	r := NewRegistry(newTestDeps())
	sim, _ := r.Create("sim-1", CreateOptions{DurationSec: 3600})
	if err := sim.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sim.Start(); err == nil {
		t.Fatalf("expected error starting an already-running simulation")
	}
	sim.Pause()
}

func TestResetClearsCandlesAndHistory(t *testing.T) {
	r := NewRegistry(newTestDeps())
	sim, _ := r.Create("sim-1", CreateOptions{DurationSec: 3600})
	sim.Start()
	time.Sleep(50 * time.Millisecond)
	sim.Pause()

	if err := sim.Reset(ResetOptions{ClearAllData: true}); err != nil {
		t.Fatalf("unexpected reset error: %v", err)
	}
	snap := sim.Snapshot()
	if len(snap.PriceHistory) != 0 {
		t.Fatalf("expected cleared price history after reset, got %d", len(snap.PriceHistory))
	}
	if snap.IsRunning || snap.IsPaused {
		t.Fatalf("expected (false,false) after reset, got (%v,%v)", snap.IsRunning, snap.IsPaused)
	}
}

func TestLiquidationCascadeRejectsOutsideStressMode(t *testing.T) {
	r := NewRegistry(newTestDeps())
	sim, _ := r.Create("sim-1", CreateOptions{DurationSec: 3600})
	_, err := sim.LiquidationCascade()
	if err != ErrInvalidMode {
		t.Fatalf("expected ErrInvalidMode in NORMAL, got %v", err)
	}
	sim.SetTPSMode(simmodel.TPSStress)
	res, err := sim.LiquidationCascade()
	if err != nil {
		t.Fatalf("unexpected error in STRESS mode: %v", err)
	}
	if res.OrdersGenerated <= 0 || res.EstimatedImpact >= 0 {
		t.Fatalf("expected positive orders and negative impact, got %+v", res)
	}
}

func TestExternalTradeAppliesImpactAndMetrics(t *testing.T) {
	r := NewRegistry(newTestDeps())
	sim, _ := r.Create("sim-1", CreateOptions{DurationSec: 3600, PriceRange: simmodel.PriceRangeMid})
	before := sim.Snapshot().CurrentPrice
	res, err := sim.ExternalTrade(ExternalTradeRequest{Action: simmodel.ActionBuy, Quantity: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NewPrice == before {
		t.Fatalf("expected price to move after external trade")
	}
	snap := sim.Snapshot()
	if snap.ExternalMarketMetrics.ProcessedOrders != 1 {
		t.Fatalf("expected processedOrders incremented, got %d", snap.ExternalMarketMetrics.ProcessedOrders)
	}
}

func TestDeleteStopsAndRemovesSimulation(t *testing.T) {
	r := NewRegistry(newTestDeps())
	sim, _ := r.Create("sim-1", CreateOptions{DurationSec: 3600})
	sim.Start()
	if err := r.Delete("sim-1"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if _, ok := r.Get("sim-1"); ok {
		t.Fatalf("expected simulation removed from registry")
	}
}

func TestTickAtOneXProducesCandleAndTrades(t *testing.T) {
	r := NewRegistry(newTestDeps())
	sim, _ := r.Create("sim-1", CreateOptions{DurationSec: 3600, PriceRange: simmodel.PriceRangeMid})
	if err := sim.Start(); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	time.Sleep(1200 * time.Millisecond)
	sim.Pause()

	snap := sim.Snapshot()
	if snap.CurrentPrice <= 0 {
		t.Fatalf("expected positive price after ticking")
	}
	if len(snap.RecentTrades) == 0 {
		t.Fatalf("expected at least one trade after forced bootstrap")
	}
	if len(snap.PriceHistory) == 0 {
		t.Fatalf("expected at least one candle in price history after ticking")
	}
}
