// Package trader implements the TraderDecisionEngine (spec §4.E): the
// per-tick entry/exit logic for a simulation's synthetic trader
// population. It is grounded on the teacher's strategy-table and
// probability-gated decision style (internal/marketdata's trend
// dynamics) and on StratWarsAI's per-tick worker-batch fan-out shape for
// applying decisions.
package trader

import (
	"math/rand"

	"tradingsim/internal/simmodel"
)

// baselineActionMultiplier scales tradingFrequency into a per-tick probability.
// Spec §4.E: "0.05 baseline; 0.05 × batchSize in batched mode, capped at
// 10x baseline."
const baselineActionMultiplier = 0.05

// Decision is one trader's action for the tick, to be applied by the
// caller against SimulationState under its write lock.
type Decision struct {
	WalletAddress string
	Kind          DecisionKind
	Quantity      float64 // signed: +long/buy, -short/sell
}

type DecisionKind string

const (
	DecisionEnter DecisionKind = "enter"
	DecisionExit  DecisionKind = "exit"
)

// Indicators is the minimal per-tick market-statistics bundle the
// decision engine consults; SimulationEngine computes these from
// priceHistory before calling Tick.
type Indicators struct {
	CurrentPrice float64
	SMA5         float64
	SMA20        float64
	RSI          float64
	Trend        simmodel.Trend
	Volatility   float64
}

// riskTable is the strategy-specific exit-threshold table from spec
// §4.E.
var riskTable = map[simmodel.Strategy]simmodel.RiskProfile{
	simmodel.StrategyScalper:    {TakeProfit: 0.005, StopLoss: -0.003, MaxMinutesInPosition: 30, TimeoutExitProbability: 1.0},
	simmodel.StrategySwing:      {TakeProfit: 0.02, StopLoss: -0.01, MaxMinutesInPosition: 180, TimeoutExitProbability: 0.3},
	simmodel.StrategyMomentum:   {TakeProfit: 0.03, StopLoss: -0.015, MaxMinutesInPosition: 120, TimeoutExitProbability: 0.2},
	simmodel.StrategyContrarian: {TakeProfit: 0.015, StopLoss: -0.02, MaxMinutesInPosition: 90, TimeoutExitProbability: 0.4},
}

var defaultRisk = simmodel.RiskProfile{TakeProfit: 0.01, StopLoss: -0.005, MaxMinutesInPosition: 60, TimeoutExitProbability: 0.5}

// RiskProfileFor returns the strategy's exit thresholds, or the default
// table row when the strategy is unrecognised.
func RiskProfileFor(s simmodel.Strategy) simmodel.RiskProfile {
	if rp, ok := riskTable[s]; ok {
		return rp
	}
	return defaultRisk
}

// sizeMultiplier maps positionSizing to the base-quantity multiplier
// from spec §4.E.
var sizeMultiplier = map[simmodel.PositionSizing]float64{
	simmodel.SizingConservative: 1.0,
	simmodel.SizingModerate:     1.5,
	simmodel.SizingAggressive:   3.0,
}

const basePositionValue = 10000.0

// Engine is the stateless TraderDecisionEngine: all state it consults
// (positions, prices, rng) is passed in per call, matching the spec's
// "tick(state) → decisions" contract while keeping SimulationState's
// mutation exclusively in its owner's hands (spec §5).
type Engine struct {
	rng *rand.Rand
}

// New builds a decision engine backed by the given rng. Pass a
// deterministic source under test; SimulationEngine passes the
// simulation's own *rand.Rand, or on its parallel path a per-worker
// *rand.Rand seeded from it.
func New(rng *rand.Rand) *Engine {
	return &Engine{rng: rng}
}

// Tick evaluates every trader profile against the open-position set and
// returns the decisions to apply. batchSize is 1 in the sequential tick
// path and the worker-batch size in the parallel path (spec §4.E, §5).
func (e *Engine) Tick(profiles []*simmodel.TraderProfile, positions map[string]*simmodel.Position, ind Indicators, now int64, batchSize int) []Decision {
	multiplier := baselineActionMultiplier * float64(batchSize)
	if multiplier > baselineActionMultiplier*10 {
		multiplier = baselineActionMultiplier * 10
	}

	var decisions []Decision
	for _, p := range profiles {
		prob := p.TradingFrequency * multiplier
		if e.rng.Float64() >= prob {
			continue
		}

		pos, active := positions[p.Trader.WalletAddress]
		if active {
			if d, ok := e.evaluateExit(p, pos, ind, now); ok {
				decisions = append(decisions, d)
			}
			continue
		}
		if d, ok := e.evaluateEntry(p, ind); ok {
			decisions = append(decisions, d)
		}
	}

	if len(decisions) == 0 && len(profiles) > 0 {
		decisions = append(decisions, e.forcedBootstrap(profiles, ind)...)
	}
	return decisions
}

// evaluateEntry applies the strategy table from spec §4.E.
func (e *Engine) evaluateEntry(p *simmodel.TraderProfile, ind Indicators) (Decision, bool) {
	var enter bool
	var direction float64

	switch p.Strategy {
	case simmodel.StrategyScalper:
		if ind.Volatility > 0.015 && e.rng.Float64() < 0.3 {
			enter = true
			direction = e.randomSign()
		}
	case simmodel.StrategySwing:
		crossed := (ind.CurrentPrice > ind.SMA5) != (ind.Trend == simmodel.TrendBearish)
		if crossed && e.rng.Float64() < 0.4 {
			enter = true
			direction = trendDirection(ind.Trend)
		}
	case simmodel.StrategyMomentum:
		onTrendSide := (ind.Trend == simmodel.TrendBullish && ind.CurrentPrice > ind.SMA20) ||
			(ind.Trend == simmodel.TrendBearish && ind.CurrentPrice < ind.SMA20)
		notExtreme := ind.RSI > 30 && ind.RSI < 70
		if onTrendSide && notExtreme && e.rng.Float64() < 0.5 {
			enter = true
			direction = trendDirection(ind.Trend)
		}
	case simmodel.StrategyContrarian:
		if (ind.RSI > 70 || ind.RSI < 30) && e.rng.Float64() < 0.6 {
			enter = true
			direction = -trendDirection(ind.Trend)
			if ind.RSI > 70 {
				direction = -1
			} else {
				direction = 1
			}
		}
	default:
		if e.rng.Float64() < 0.2 {
			enter = true
			direction = e.randomSign()
		}
	}

	if !enter || direction == 0 {
		return Decision{}, false
	}

	qty := positionQuantity(p.PositionSizing, ind.CurrentPrice, e.rng.Float64()) * direction
	return Decision{WalletAddress: p.Trader.WalletAddress, Kind: DecisionEnter, Quantity: qty}, true
}

// evaluateExit checks PnL and elapsed-time thresholds from the
// strategy's risk table (spec §4.E).
func (e *Engine) evaluateExit(p *simmodel.TraderProfile, pos *simmodel.Position, ind Indicators, now int64) (Decision, bool) {
	risk := RiskProfileFor(p.Strategy)
	pnlPct := pnlPercent(pos, ind.CurrentPrice)
	elapsedMin := float64(now-pos.EntryTime) / 60000.0

	exit := false
	switch {
	case pnlPct >= risk.TakeProfit:
		exit = true
	case pnlPct <= risk.StopLoss:
		exit = true
	case elapsedMin >= risk.MaxMinutesInPosition:
		if p.Strategy == simmodel.StrategyMomentum {
			if pnlPct > 0 {
				exit = true
			}
		} else if e.rng.Float64() < risk.TimeoutExitProbability {
			exit = true
		}
	}
	if !exit {
		return Decision{}, false
	}
	return Decision{WalletAddress: p.Trader.WalletAddress, Kind: DecisionExit, Quantity: -pos.Quantity}, true
}

// forcedBootstrap picks 3 random traders and forces one decision each,
// guaranteeing recentTrades is non-empty after a tick (spec §4.E cold
// start fairness).
func (e *Engine) forcedBootstrap(profiles []*simmodel.TraderProfile, ind Indicators) []Decision {
	n := 3
	if n > len(profiles) {
		n = len(profiles)
	}
	picked := e.rng.Perm(len(profiles))[:n]
	out := make([]Decision, 0, n)
	for _, idx := range picked {
		p := profiles[idx]
		qty := positionQuantity(p.PositionSizing, ind.CurrentPrice, e.rng.Float64()) * e.randomSign()
		out = append(out, Decision{WalletAddress: p.Trader.WalletAddress, Kind: DecisionEnter, Quantity: qty})
	}
	return out
}

func (e *Engine) randomSign() float64 {
	if e.rng.Float64() < 0.5 {
		return -1
	}
	return 1
}

func trendDirection(t simmodel.Trend) float64 {
	switch t {
	case simmodel.TrendBullish:
		return 1
	case simmodel.TrendBearish:
		return -1
	default:
		return 0
	}
}

func positionQuantity(sizing simmodel.PositionSizing, price, rand01 float64) float64 {
	mult, ok := sizeMultiplier[sizing]
	if !ok {
		mult = 1.0
	}
	value := basePositionValue * mult * (0.5 + rand01)
	if price <= 0 {
		return 0
	}
	return value / price
}

func pnlPercent(pos *simmodel.Position, currentPrice float64) float64 {
	if pos.EntryPrice <= 0 {
		return 0
	}
	if pos.Quantity >= 0 {
		return (currentPrice - pos.EntryPrice) / pos.EntryPrice
	}
	return (pos.EntryPrice - currentPrice) / pos.EntryPrice
}
