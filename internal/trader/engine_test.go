package trader

import (
	"math/rand"
	"testing"

	"tradingsim/internal/simmodel"
)

func profile(strategy simmodel.Strategy, wallet string) *simmodel.TraderProfile {
	return &simmodel.TraderProfile{
		Trader:           simmodel.Trader{WalletAddress: wallet},
		Strategy:         strategy,
		TradingFrequency: 1.0,
		PositionSizing:   simmodel.SizingModerate,
	}
}

func TestForcedBootstrapWhenNoDecisions(t *testing.T) {
	e := New(rand.New(rand.NewSource(1)))
	profiles := []*simmodel.TraderProfile{
		profile(simmodel.StrategyScalper, "w1"),
		profile(simmodel.StrategyScalper, "w2"),
		profile(simmodel.StrategyScalper, "w3"),
		profile(simmodel.StrategyScalper, "w4"),
	}
	for i := range profiles {
		profiles[i].TradingFrequency = 0 // force zero natural-action probability
	}
	ind := Indicators{CurrentPrice: 100, Volatility: 0.001}
	decisions := e.Tick(profiles, map[string]*simmodel.Position{}, ind, 0, 1)
	if len(decisions) != 3 {
		t.Fatalf("expected forced bootstrap of 3 decisions, got %d", len(decisions))
	}
}

func TestEvaluateExitTakeProfit(t *testing.T) {
	e := New(rand.New(rand.NewSource(1)))
	p := profile(simmodel.StrategyScalper, "w1")
	pos := &simmodel.Position{TraderWallet: "w1", EntryPrice: 100, Quantity: 10, EntryTime: 0}
	d, ok := e.evaluateExit(p, pos, Indicators{CurrentPrice: 100.6}, 1000)
	if !ok {
		t.Fatalf("expected exit on take-profit breach")
	}
	if d.Quantity != -10 {
		t.Fatalf("expected closing quantity -10, got %v", d.Quantity)
	}
}

func TestEvaluateExitStopLoss(t *testing.T) {
	e := New(rand.New(rand.NewSource(1)))
	p := profile(simmodel.StrategyScalper, "w1")
	pos := &simmodel.Position{TraderWallet: "w1", EntryPrice: 100, Quantity: 10, EntryTime: 0}
	_, ok := e.evaluateExit(p, pos, Indicators{CurrentPrice: 99.5}, 1000)
	if !ok {
		t.Fatalf("expected exit on stop-loss breach")
	}
}

func TestRiskProfileForDefaultsUnknownStrategy(t *testing.T) {
	rp := RiskProfileFor(simmodel.Strategy("unknown"))
	if rp != defaultRisk {
		t.Fatalf("expected default risk profile for unknown strategy, got %+v", rp)
	}
}

func TestPositionQuantityScalesWithSizing(t *testing.T) {
	cons := positionQuantity(simmodel.SizingConservative, 100, 0.5)
	aggr := positionQuantity(simmodel.SizingAggressive, 100, 0.5)
	if aggr <= cons {
		t.Fatalf("expected aggressive sizing to produce larger quantity: cons=%v aggr=%v", cons, aggr)
	}
}
