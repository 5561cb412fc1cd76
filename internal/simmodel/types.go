// Package simmodel holds the data types shared by every simulation
// component: the authoritative per-simulation state, trader population,
// trades, positions and candles.
package simmodel

import "github.com/google/uuid"

type Trend string

const (
	TrendBullish  Trend = "bullish"
	TrendBearish  Trend = "bearish"
	TrendSideways Trend = "sideways"
)

type Strategy string

const (
	StrategyScalper    Strategy = "scalper"
	StrategySwing      Strategy = "swing"
	StrategyMomentum   Strategy = "momentum"
	StrategyContrarian Strategy = "contrarian"
)

type PositionSizing string

const (
	SizingConservative PositionSizing = "conservative"
	SizingModerate     PositionSizing = "moderate"
	SizingAggressive   PositionSizing = "aggressive"
)

type TradeAction string

const (
	ActionBuy  TradeAction = "buy"
	ActionSell TradeAction = "sell"
)

type PriceRange string

const (
	PriceRangeMicro  PriceRange = "micro"
	PriceRangeSmall  PriceRange = "small"
	PriceRangeMid    PriceRange = "mid"
	PriceRangeLarge  PriceRange = "large"
	PriceRangeMega   PriceRange = "mega"
	PriceRangeRandom PriceRange = "random"
)

type ScenarioType string

const (
	ScenarioCrash         ScenarioType = "crash"
	ScenarioPump          ScenarioType = "pump"
	ScenarioBreakout      ScenarioType = "breakout"
	ScenarioTrend         ScenarioType = "trend"
	ScenarioConsolidation ScenarioType = "consolidation"
	ScenarioAccumulation  ScenarioType = "accumulation"
	ScenarioDistribution  ScenarioType = "distribution"
)

type TPSMode string

const (
	TPSNormal TPSMode = "NORMAL"
	TPSBurst  TPSMode = "BURST"
	TPSStress TPSMode = "STRESS"
	TPSHFT    TPSMode = "HFT"
)

// TPSTarget is the authoritative target-throughput table from spec §6.
var TPSTarget = map[TPSMode]int{
	TPSNormal: 25,
	TPSBurst:  150,
	TPSStress: 1500,
	TPSHFT:    15000,
}

// TPSImpactMultiplier scales trader action probability and external-trade
// price impact per spec §4.G.
var TPSImpactMultiplier = map[TPSMode]float64{
	TPSNormal: 1.0,
	TPSBurst:  1.2,
	TPSStress: 2.0,
	TPSHFT:    1.8,
}

// PriceCategoryImpact scales external-trade impact by the simulation's
// nominal price range, per spec §4.G.
var PriceCategoryImpact = map[PriceRange]float64{
	PriceRangeMicro: 1.8,
	PriceRangeSmall: 1.4,
	PriceRangeMid:   1.0,
	PriceRangeLarge: 0.8,
	PriceRangeMega:  0.6,
}

// PriceCategoryMaxImpact is the maximum absolute fractional impact a single
// external trade may apply, per price range, per spec §4.G.
var PriceCategoryMaxImpact = map[PriceRange]float64{
	PriceRangeMicro: 0.05,
	PriceRangeSmall: 0.03,
	PriceRangeMid:   0.02,
	PriceRangeLarge: 0.015,
	PriceRangeMega:  0.01,
}

// Parameters is the immutable-at-creation configuration of a simulation,
// with timeCompressionFactor mutable via the speed API (spec §3).
type Parameters struct {
	InitialPrice          float64
	InitialLiquidity      float64
	VolatilityFactor      float64
	DurationSec           int64
	TimeCompressionFactor float64
	ScenarioType          ScenarioType
	PriceRange            PriceRange
	CustomPrice           float64
	UseCustomPrice        bool
}

// MarketConditions tracks the adaptive volatility/trend/volume state that
// PriceEvolver recomputes every tick (spec §3, §4.F).
type MarketConditions struct {
	Volatility float64 `json:"volatility"`
	Trend      Trend   `json:"trend"`
	Volume     float64 `json:"volume"`
}

// PriceLevel is a single bid or ask rung in the order book.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBookSnapshot is the read-only view of the book SimulationEngine
// rebuilds once per tick (spec §4.B).
type OrderBookSnapshot struct {
	Bids           []PriceLevel `json:"bids"`
	Asks           []PriceLevel `json:"asks"`
	LastUpdateTime int64        `json:"lastUpdateTime"`
}

// Candle is an OHLCV bar aligned to the aggregator's interval (spec §3).
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Valid reports whether the candle satisfies the OHLC integrity invariant
// from spec §8: low <= min(open,close) <= max(open,close) <= high, all
// positive, volume >= 0.
func (c Candle) Valid() bool {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return false
	}
	if c.Volume < 0 {
		return false
	}
	lo := min2(c.Open, c.Close)
	hi := max2(c.Open, c.Close)
	return c.Low <= lo && lo <= hi && hi <= c.High
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max2(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Trader identifies a synthetic market participant.
type Trader struct {
	WalletAddress string
	PreferredName string
	NetPnl        float64
}

// RiskProfile carries the strategy-specific exit thresholds from spec §4.E.
type RiskProfile struct {
	TakeProfit             float64
	StopLoss               float64
	MaxMinutesInPosition   float64
	TimeoutExitProbability float64
}

// TraderProfile is a synthetic trader's static strategy configuration plus
// its mutable net PnL (spec §3).
type TraderProfile struct {
	Trader           Trader
	Strategy         Strategy
	TradingFrequency float64
	PositionSizing   PositionSizing
	Risk             RiskProfile
}

// NewWalletAddress generates a unique synthetic wallet identifier.
func NewWalletAddress() string {
	return "0x" + uuid.NewString()
}

// Trade is a pool-allocated record of a committed trade (spec §3, §4.A).
// Fields are scrubbed by Reset before the object returns to its pool.
type Trade struct {
	ID           string      `json:"id"`
	Timestamp    int64       `json:"timestamp"`
	TraderWallet string      `json:"traderWallet"`
	Action       TradeAction `json:"action"`
	Price        float64     `json:"price"`
	Quantity     float64     `json:"quantity"`
	Value        float64     `json:"value"`
	Impact       float64     `json:"impact"`
	SimulationID string      `json:"simulationId"`
}

// Reset scrubs a Trade for reuse; it is the pool's caller-supplied reset
// function (spec §4.A).
func (t *Trade) Reset() {
	*t = Trade{}
}

// Position is a pool-allocated open position; Quantity is signed (+long,
// -short) per spec §3.
type Position struct {
	TraderWallet          string
	EntryPrice            float64
	Quantity              float64
	EntryTime             int64
	CurrentPnl            float64
	CurrentPnlPercentage  float64
}

// Reset scrubs a Position for reuse (spec §4.A).
func (p *Position) Reset() {
	*p = Position{}
}

// ClosedPosition is the append-only realised-position log entry (spec §3).
type ClosedPosition struct {
	Position
	ExitPrice float64
	ExitTime  int64
	CurrentPnl float64
}

// ExternalMarketMetrics holds the simulation's TPS/throughput counters.
// Counters are monotone for the lifetime of the simulation (spec §3).
type ExternalMarketMetrics struct {
	CurrentTPS      int     `json:"currentTps"`
	ActualTPS       float64 `json:"actualTps"`
	QueueDepth      int     `json:"queueDepth"`
	ProcessedOrders int64   `json:"processedOrders"`
	RejectedOrders  int64   `json:"rejectedOrders"`
}

// NewTradeID generates a unique trade identifier.
func NewTradeID() string {
	return uuid.NewString()
}
