// Package priceevolver implements PriceEvolver (spec §4.F): the per-tick
// price-update model with trend, noise, and scenario forcing. It is
// grounded on the teacher's autoTrendState/trendDynamics momentum model
// (internal/marketdata/publisher.go's calculatePriceChange).
package priceevolver

import (
	"math"
	"math/rand"

	"tradingsim/internal/simmodel"
)

// Scenario is a temporary forcing function layered over the base drift
// model (spec §4.F scenario table).
type Scenario struct {
	Type      simmodel.ScenarioType
	Intensity float64 // 0..1
}

var scenarioTrend = map[simmodel.ScenarioType]float64{
	simmodel.ScenarioCrash:         -0.01,
	simmodel.ScenarioPump:          0.01,
	simmodel.ScenarioTrend:         0.002,
	simmodel.ScenarioAccumulation:  0.0005,
	simmodel.ScenarioDistribution:  -0.0005,
}

var scenarioVolMultiplier = map[simmodel.ScenarioType]float64{
	simmodel.ScenarioCrash:         1.0,
	simmodel.ScenarioPump:          1.0,
	simmodel.ScenarioBreakout:      1.0,
	simmodel.ScenarioTrend:         0.5,
	simmodel.ScenarioConsolidation: 0.2,
	simmodel.ScenarioAccumulation:  0.3,
	simmodel.ScenarioDistribution:  0.3,
}

// Evolver is the stateless per-tick price-update function; all mutable
// state it needs lives in simmodel.State, which the caller holds the
// write lock on while invoking Step.
type Evolver struct {
	rng *rand.Rand
}

func New(rng *rand.Rand) *Evolver {
	return &Evolver{rng: rng}
}

// Result carries the computed values a caller applies to state plus the
// candle sample to forward to the CandleCoordinator (spec §4.F: "Emit
// candle sample (currentTime, currentPrice, incrementalVolume)").
type Result struct {
	NewPrice      float64
	PriceChange   float64
	NewVolatility float64
	NewTrend      simmodel.Trend
	Volume        float64
}

// Step advances price by one tick. speed is the active time-compression
// factor; above 50x (the engine's batched path) the random component is
// scaled by 1/sqrt(speed) for numerical stability (spec §4.F).
func (e *Evolver) Step(currentPrice float64, mc simmodel.MarketConditions, recentCloses []float64, scenario *Scenario, speed float64) Result {
	baseVolatility := mc.Volatility * 0.3
	if speed > 50 {
		baseVolatility /= math.Sqrt(speed)
	}

	trendFactor := baseTrendFactor(mc.Trend)
	volMultiplier := 1.0

	if scenario != nil {
		if tf, ok := scenarioTrend[scenario.Type]; ok {
			trendFactor = tf * scenario.Intensity
		} else if scenario.Type == simmodel.ScenarioBreakout {
			dir := 1.0
			if e.rng.Float64() < 0.5 {
				dir = -1
			}
			trendFactor = 0.005 * scenario.Intensity * dir
		}
		if vm, ok := scenarioVolMultiplier[scenario.Type]; ok {
			volMultiplier = vm
		}
	}

	randomFactor := (e.rng.Float64() - 0.5) * baseVolatility * volMultiplier
	priceChange := currentPrice * (trendFactor + randomFactor)
	newPrice := currentPrice + priceChange
	if newPrice <= 0 {
		newPrice = currentPrice
	}

	newVol := ewmaVolatility(mc.Volatility, priceChange, currentPrice)
	newTrend := recomputeTrend(recentCloses, newPrice)

	volume := math.Abs(priceChange) * (1 + e.rng.Float64())

	return Result{
		NewPrice:      newPrice,
		PriceChange:   priceChange,
		NewVolatility: newVol,
		NewTrend:      newTrend,
		Volume:        volume,
	}
}

func baseTrendFactor(t simmodel.Trend) float64 {
	switch t {
	case simmodel.TrendBullish:
		return 1e-4
	case simmodel.TrendBearish:
		return -1e-4
	default:
		return 0
	}
}

const volatilityAlpha = 0.1

// ewmaVolatility recomputes marketConditions.volatility as an EWMA of
// |priceChange|/oldPrice, clamped to [0.01, 0.05] (spec §4.F).
func ewmaVolatility(oldVol, priceChange, oldPrice float64) float64 {
	if oldPrice <= 0 {
		return oldVol
	}
	sample := math.Abs(priceChange) / oldPrice
	v := volatilityAlpha*sample + (1-volatilityAlpha)*oldVol
	if v < 0.01 {
		v = 0.01
	}
	if v > 0.05 {
		v = 0.05
	}
	return v
}

// recomputeTrend derives trend from the 10-candle return (spec §4.F):
// >+2% bullish, <-1.5% bearish, else sideways.
func recomputeTrend(recentCloses []float64, latest float64) simmodel.Trend {
	if len(recentCloses) == 0 {
		return simmodel.TrendSideways
	}
	window := 10
	if len(recentCloses) < window {
		window = len(recentCloses)
	}
	base := recentCloses[len(recentCloses)-window]
	if base <= 0 {
		return simmodel.TrendSideways
	}
	ret := (latest - base) / base
	switch {
	case ret > 0.02:
		return simmodel.TrendBullish
	case ret < -0.015:
		return simmodel.TrendBearish
	default:
		return simmodel.TrendSideways
	}
}

// SMA computes the simple moving average over the last n closes
// (oldest-first slice), or over all of them when fewer than n exist or
// n <= 0; it returns 0 for an empty slice.
func SMA(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		if len(closes) == 0 {
			return 0
		}
		n = len(closes)
	}
	window := closes[len(closes)-n:]
	var sum float64
	for _, c := range window {
		sum += c
	}
	return sum / float64(len(window))
}

// RSI computes the standard 14-period relative strength index over
// closes (oldest-first); returns 50 (neutral) when insufficient history.
func RSI(closes []float64, period int) float64 {
	if period <= 0 {
		period = 14
	}
	if len(closes) <= period {
		return 50
	}
	window := closes[len(closes)-period-1:]
	var gainSum, lossSum float64
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum += -delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}
