// Package orderbook maintains the synthetic bid/ask ladder SimulationEngine
// rebuilds around the current mid price once per tick (spec §4.B).
package orderbook

import (
	"math"

	"tradingsim/internal/simmodel"
)

// Levels is the fixed depth per side spec §4.B requires.
const Levels = 20

// stepFraction is the per-level geometric spacing, expressed as a
// fraction of the mid price (spec §4.B: "bid/ask step ≈ 0.05% of mid per
// level").
const stepFraction = 0.0005

// Book owns the bid/ask ladder for one simulation. It has no internal
// mutex: per spec §5, it is rebuilt only from the owning simulation's tick
// goroutine.
type Book struct {
	Bids           []simmodel.PriceLevel
	Asks           []simmodel.PriceLevel
	LastUpdateTime int64
}

// New returns an empty book; call RebuildAround before first use.
func New() *Book {
	return &Book{}
}

// RebuildAround regenerates both sides from scratch around mid, spacing
// levels geometrically and sizing each level's quantity proportional to
// exp(-level/5), scaled so the side sums to liquidity/2 (spec §4.B).
// Volatility widens the per-level step, since a more volatile market
// should show thinner, wider-spaced resting liquidity.
func (b *Book) RebuildAround(mid, liquidity, volatility float64, now int64) {
	if mid <= 0 {
		mid = 1
	}
	if liquidity < 0 {
		liquidity = 0
	}
	step := mid * stepFraction * (1 + volatility*10)

	weights := make([]float64, Levels)
	var weightSum float64
	for i := 0; i < Levels; i++ {
		w := math.Exp(-float64(i) / 5.0)
		weights[i] = w
		weightSum += w
	}

	sideLiquidity := liquidity / 2
	bids := make([]simmodel.PriceLevel, Levels)
	asks := make([]simmodel.PriceLevel, Levels)
	for i := 0; i < Levels; i++ {
		qty := sideLiquidity * weights[i] / weightSum
		bidPrice := mid - step*float64(i+1)
		askPrice := mid + step*float64(i+1)
		if bidPrice <= 0 {
			bidPrice = mid * 0.0001
		}
		bids[i] = simmodel.PriceLevel{Price: bidPrice, Quantity: qty}
		asks[i] = simmodel.PriceLevel{Price: askPrice, Quantity: qty}
	}

	b.Bids = bids
	b.Asks = asks
	b.LastUpdateTime = now
}

// Snapshot copies the book into a simmodel.OrderBookSnapshot for state
// ownership (spec §3's orderBook field).
func (b *Book) Snapshot() simmodel.OrderBookSnapshot {
	bids := make([]simmodel.PriceLevel, len(b.Bids))
	copy(bids, b.Bids)
	asks := make([]simmodel.PriceLevel, len(b.Asks))
	copy(asks, b.Asks)
	return simmodel.OrderBookSnapshot{Bids: bids, Asks: asks, LastUpdateTime: b.LastUpdateTime}
}
