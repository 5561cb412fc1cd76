package priceevolver

import (
	"math/rand"
	"testing"

	"tradingsim/internal/simmodel"
)

func TestStepProducesPositivePrice(t *testing.T) {
	e := New(rand.New(rand.NewSource(1)))
	mc := simmodel.MarketConditions{Volatility: 0.02, Trend: simmodel.TrendBullish}
	res := e.Step(100.0, mc, []float64{99, 99.5, 100}, nil, 1.0)
	if res.NewPrice <= 0 {
		t.Fatalf("expected positive price, got %v", res.NewPrice)
	}
	if res.NewVolatility < 0.01 || res.NewVolatility > 0.05 {
		t.Fatalf("expected clamped volatility, got %v", res.NewVolatility)
	}
}

func TestScenarioCrashForcesNegativeDrift(t *testing.T) {
	e := New(rand.New(rand.NewSource(2)))
	mc := simmodel.MarketConditions{Volatility: 0.01, Trend: simmodel.TrendSideways}
	var totalChange float64
	price := 100.0
	for i := 0; i < 50; i++ {
		res := e.Step(price, mc, []float64{price}, &Scenario{Type: simmodel.ScenarioCrash, Intensity: 1.0}, 1.0)
		totalChange += res.PriceChange
		price = res.NewPrice
	}
	if totalChange >= 0 {
		t.Fatalf("expected net negative drift under crash scenario, got %v", totalChange)
	}
}

func TestRecomputeTrendThresholds(t *testing.T) {
	if got := recomputeTrend([]float64{100}, 103); got != simmodel.TrendBullish {
		t.Fatalf("expected bullish trend, got %v", got)
	}
	if got := recomputeTrend([]float64{100}, 98); got != simmodel.TrendBearish {
		t.Fatalf("expected bearish trend, got %v", got)
	}
	if got := recomputeTrend([]float64{100}, 100.5); got != simmodel.TrendSideways {
		t.Fatalf("expected sideways trend, got %v", got)
	}
}

// TestRecomputeTrendUsesRolling10CandleWindow pins recomputeTrend against
// more than 10 retained closes, where the base must be recentCloses[len-10]
// rather than recentCloses[0] — a stale, ever-further-back base would keep
// reporting bullish here long after the rolling 10-candle return has
// flattened out.
func TestRecomputeTrendUsesRolling10CandleWindow(t *testing.T) {
	closes := []float64{50, 60, 70, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100}
	// recentCloses[0]=50 vs latest=101 would read +102% (bullish, stale).
	// recentCloses[len-10]=100 vs latest=101 reads +1% (sideways) — only the
	// correctly-windowed base produces the sideways/bearish calls below.
	if got := recomputeTrend(closes, 101); got != simmodel.TrendSideways {
		t.Fatalf("expected sideways trend from the rolling 10-candle window, got %v", got)
	}
	if got := recomputeTrend(closes, 50); got != simmodel.TrendBearish {
		t.Fatalf("expected bearish trend from the rolling 10-candle window, got %v", got)
	}
}

func TestSMAWindow(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	if got := SMA(closes, 5); got != 3 {
		t.Fatalf("expected SMA 3, got %v", got)
	}
}

func TestRSINeutralWithInsufficientHistory(t *testing.T) {
	if got := RSI([]float64{1, 2, 3}, 14); got != 50 {
		t.Fatalf("expected neutral RSI with short history, got %v", got)
	}
}
