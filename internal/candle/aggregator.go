// Package candle implements the per-simulation OHLCV aggregator (spec
// §4.C) and the coordinator that routes price samples to it (spec §4.D).
// The bucketing arithmetic is grounded on the teacher's
// internal/marketdata/candles.go updateCandle-equivalent and
// internal/marketdata/aggregate.go bucket-merge loop.
package candle

import (
	"sync"

	"tradingsim/internal/simmodel"
)

// DefaultInterval is the candle bucket width, 15 minutes, per spec §4.C.
const DefaultInterval int64 = 15 * 60 * 1000

// MaxRetained caps the number of candles a single aggregator keeps.
const MaxRetained = 250

// Aggregator is a single-owner OHLCV builder for one simulation. It has no
// internal mutex: the coordinator's flush goroutine is its only caller.
type Aggregator struct {
	interval int64
	closed   []simmodel.Candle // oldest first, retained up to MaxRetained
	current  *simmodel.Candle
	period   int64
}

// NewAggregator builds an aggregator with the default 15-minute interval.
func NewAggregator() *Aggregator {
	return &Aggregator{interval: DefaultInterval}
}

// Initialize seeds the aggregator's first open candle at startTime with
// all four OHLC fields equal to initialPrice (spec §4.C).
func (a *Aggregator) Initialize(startTime int64, initialPrice float64) {
	a.period = floorDiv(startTime, a.interval)
	a.current = &simmodel.Candle{
		Timestamp: a.period * a.interval,
		Open:      initialPrice,
		High:      initialPrice,
		Low:       initialPrice,
		Close:     initialPrice,
	}
	a.closed = nil
}

func floorDiv(t, interval int64) int64 {
	if interval <= 0 {
		return 0
	}
	q := t / interval
	if t%interval != 0 && (t < 0) != (interval < 0) {
		q--
	}
	return q
}

// UpdateCandle advances the aggregator with one price sample. If the
// sample's period is newer than the current candle's, the current candle
// is closed (pushed to history, trimmed to MaxRetained) and a fresh one
// opened with open=high=low=close=price. Otherwise the current candle is
// updated in place (spec §4.C).
func (a *Aggregator) UpdateCandle(timestamp int64, price, volume float64) {
	period := floorDiv(timestamp, a.interval)

	if a.current == nil {
		a.period = period
		a.current = &simmodel.Candle{
			Timestamp: period * a.interval,
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    volume,
		}
		return
	}

	if period > a.period {
		a.closed = append(a.closed, *a.current)
		if len(a.closed) > MaxRetained {
			a.closed = a.closed[len(a.closed)-MaxRetained:]
		}
		a.period = period
		a.current = &simmodel.Candle{
			Timestamp: period * a.interval,
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    volume,
		}
		return
	}

	a.current.Close = price
	if price > a.current.High {
		a.current.High = price
	}
	if price < a.current.Low {
		a.current.Low = price
	}
	a.current.Volume += volume
}

// GetCandles returns the closed candles plus the in-progress current
// candle, oldest first, optionally limited to the most recent limit
// entries (limit<=0 means no limit).
func (a *Aggregator) GetCandles(limit int) []simmodel.Candle {
	out := make([]simmodel.Candle, 0, len(a.closed)+1)
	out = append(out, a.closed...)
	if a.current != nil {
		out = append(out, *a.current)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Clear drops all candle history but keeps the aggregator wired (spec
// §4.D clearCandles: "clears aggregator but retains it").
func (a *Aggregator) Clear() {
	a.closed = nil
	a.current = nil
	a.period = 0
}

// Reset is an alias for Clear used by the coordinator's ensureCleanStart.
func (a *Aggregator) Reset() { a.Clear() }

// Shutdown releases the aggregator's internal state; callers should drop
// their reference afterward.
func (a *Aggregator) Shutdown() { a.Clear() }

// registry is the per-simulation singleton table spec §4.C/§9 requires:
// at most one live Aggregator per simulation id, looked up or inserted
// under a single mutex (never relying on package-level singleton state
// per simulation, per spec §9).
type registry struct {
	mu   sync.Mutex
	byID map[string]*Aggregator
}

func newRegistry() *registry {
	return &registry{byID: make(map[string]*Aggregator)}
}

// getOrCreate is the registry's getInstance(id) lookup-or-insert.
func (r *registry) getOrCreate(id string) *Aggregator {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		a = NewAggregator()
		r.byID[id] = a
	}
	return a
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
