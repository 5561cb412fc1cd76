package simmodel

import "sync"

// Retention ceilings from spec §3.
const (
	MaxPriceHistory  = 250
	MaxRecentTrades  = 1000
	MinPrice         = 0.000001
	MaxPrice         = 1000000.0
)

// State is the authoritative in-memory record for one simulation. It is
// mutated under its write lock by the owning Simulation: by the tick
// goroutine and by the control operations (start, pause, reset, speed, TPS
// mode, external trade, liquidation cascade), which run on the caller's
// goroutine. Other readers call Snapshot rather than reach into the
// fields directly.
type State struct {
	mu sync.RWMutex

	ID          string
	StartTime   int64
	CurrentTime int64
	EndTime     int64

	IsRunning bool
	IsPaused  bool

	Parameters Parameters

	CurrentPrice     float64
	MarketConditions MarketConditions

	PriceHistory []Candle
	OrderBook    OrderBookSnapshot

	Traders         map[string]*TraderProfile
	ActivePositions map[string]*Position
	ClosedPositions []ClosedPosition
	RecentTrades    []*Trade

	TraderRankings []string // wallet addresses, netPnl desc

	CurrentTPSMode        TPSMode
	ExternalMarketMetrics ExternalMarketMetrics

	seq int64 // count of trades pushed by PushTrade; recentTrades order comes from prepending
}

// New creates a freshly initialized simulation state in the "created"
// lifecycle stage (isRunning=false, isPaused=false).
func New(id string, now int64, params Parameters, startPrice float64) *State {
	return &State{
		ID:          id,
		StartTime:   now,
		CurrentTime: now,
		EndTime:     now + params.DurationSec*1000,
		Parameters:  params,
		CurrentPrice: clampPrice(startPrice, params.InitialPrice),
		MarketConditions: MarketConditions{
			Volatility: clampVolatility(0.02 * params.VolatilityFactor),
			Trend:      TrendSideways,
			Volume:     0,
		},
		Traders:               make(map[string]*TraderProfile),
		ActivePositions:       make(map[string]*Position),
		CurrentTPSMode:        TPSNormal,
		ExternalMarketMetrics: ExternalMarketMetrics{CurrentTPS: TPSTarget[TPSNormal]},
	}
}

func clampPrice(price, initial float64) float64 {
	lo := initial * 0.01
	hi := initial * 100
	if lo < MinPrice {
		lo = MinPrice
	}
	if hi > MaxPrice {
		hi = MaxPrice
	}
	if price < lo {
		return lo
	}
	if price > hi {
		return hi
	}
	if price < MinPrice {
		return MinPrice
	}
	if price > MaxPrice {
		return MaxPrice
	}
	return price
}

func clampVolatility(v float64) float64 {
	if v < 0.01 {
		return 0.01
	}
	if v > 0.05 {
		return 0.05
	}
	return v
}

// ClampPrice exposes clampPrice for callers outside the package
// (simengine's reset, external-trade and liquidation-cascade paths).
func ClampPrice(price, initial float64) float64 { return clampPrice(price, initial) }

// ClampVolatility exposes clampVolatility for simengine's reset path.
func ClampVolatility(v float64) float64 { return clampVolatility(v) }

// Lock/Unlock/RLock/RUnlock expose the state's mutex to the owning
// Simulation. The write lock is taken by its tick goroutine and by its
// control operations; read-only access uses RLock.
func (s *State) Lock()    { s.mu.Lock() }
func (s *State) Unlock()  { s.mu.Unlock() }
func (s *State) RLock()   { s.mu.RLock() }
func (s *State) RUnlock() { s.mu.RUnlock() }

// AppendCandle pushes a validated candle onto priceHistory, evicting the
// oldest entry once the retention ceiling is exceeded (spec §4.C, §8).
// Caller must hold the write lock.
func (s *State) AppendCandle(c Candle) {
	s.PriceHistory = append(s.PriceHistory, c)
	if len(s.PriceHistory) > MaxPriceHistory {
		s.PriceHistory = s.PriceHistory[len(s.PriceHistory)-MaxPriceHistory:]
	}
}

// PushTrade prepends a trade to recentTrades (newest first), evicting the
// oldest once the retention ceiling is exceeded. The evicted trade is
// returned so the caller can release it back to the object pool. Caller
// must hold the write lock.
func (s *State) PushTrade(t *Trade) (evicted *Trade) {
	s.seq++
	s.RecentTrades = append([]*Trade{t}, s.RecentTrades...)
	if len(s.RecentTrades) > MaxRecentTrades {
		evicted = s.RecentTrades[len(s.RecentTrades)-1]
		s.RecentTrades = s.RecentTrades[:len(s.RecentTrades)-1]
	}
	return evicted
}

// RecomputeRankings sorts trader wallet addresses by netPnl desc. Caller
// must hold the write lock.
func (s *State) RecomputeRankings() {
	addrs := make([]string, 0, len(s.Traders))
	for addr := range s.Traders {
		addrs = append(addrs, addr)
	}
	sortByNetPnlDesc(addrs, s.Traders)
	s.TraderRankings = addrs
}

func sortByNetPnlDesc(addrs []string, traders map[string]*TraderProfile) {
	for i := 1; i < len(addrs); i++ {
		j := i
		for j > 0 && traders[addrs[j-1]].Trader.NetPnl < traders[addrs[j]].Trader.NetPnl {
			addrs[j-1], addrs[j] = addrs[j], addrs[j-1]
			j--
		}
	}
}

// Snapshot is an immutable, independently-owned copy of the fields
// BroadcastHub needs to serialise. It never aliases State's internal
// slices/maps (spec §3 Ownership, §5 shared-resource discipline).
type Snapshot struct {
	ID                    string                `json:"id"`
	StartTime             int64                 `json:"startTime"`
	CurrentTime           int64                 `json:"currentTime"`
	EndTime               int64                 `json:"endTime"`
	IsRunning             bool                  `json:"isRunning"`
	IsPaused              bool                  `json:"isPaused"`
	CurrentPrice          float64               `json:"currentPrice"`
	MarketConditions      MarketConditions      `json:"marketConditions"`
	PriceHistory          []Candle              `json:"priceHistory"`
	OrderBook             OrderBookSnapshot     `json:"orderBook"`
	RecentTrades          []Trade               `json:"recentTrades"`
	TraderCount           int                   `json:"traderCount"`
	ActivePositionCount   int                   `json:"activePositionCount"`
	TraderRankings        []string              `json:"traderRankings"`
	CurrentTPSMode        TPSMode               `json:"currentTpsMode"`
	ExternalMarketMetrics ExternalMarketMetrics `json:"externalMarketMetrics"`
}

// Snapshot copies out a read-only view under the read lock.
func (s *State) Snapshot() Snapshot {
	s.RLock()
	defer s.RUnlock()

	history := make([]Candle, len(s.PriceHistory))
	copy(history, s.PriceHistory)

	trades := make([]Trade, len(s.RecentTrades))
	for i, t := range s.RecentTrades {
		trades[i] = *t
	}

	bids := make([]PriceLevel, len(s.OrderBook.Bids))
	copy(bids, s.OrderBook.Bids)
	asks := make([]PriceLevel, len(s.OrderBook.Asks))
	copy(asks, s.OrderBook.Asks)

	rankings := make([]string, len(s.TraderRankings))
	copy(rankings, s.TraderRankings)

	return Snapshot{
		ID:               s.ID,
		StartTime:        s.StartTime,
		CurrentTime:      s.CurrentTime,
		EndTime:          s.EndTime,
		IsRunning:        s.IsRunning,
		IsPaused:         s.IsPaused,
		CurrentPrice:     s.CurrentPrice,
		MarketConditions: s.MarketConditions,
		PriceHistory:     history,
		OrderBook: OrderBookSnapshot{
			Bids:           bids,
			Asks:           asks,
			LastUpdateTime: s.OrderBook.LastUpdateTime,
		},
		RecentTrades:          trades,
		TraderCount:           len(s.Traders),
		ActivePositionCount:   len(s.ActivePositions),
		TraderRankings:        rankings,
		CurrentTPSMode:        s.CurrentTPSMode,
		ExternalMarketMetrics: s.ExternalMarketMetrics,
	}
}
