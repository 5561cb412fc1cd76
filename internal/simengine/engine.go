// Package simengine implements SimulationEngine (spec §4.G): the tick
// loop that composes OrderBook, CandleCoordinator, TraderDecisionEngine
// and PriceEvolver, and owns SimulationState. The per-id registry and
// worker-pool tick dispatch are grounded on StratWarsAI's
// SimulationService/SimulationContext (other_examples).
package simengine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"tradingsim/internal/broadcast"
	"tradingsim/internal/candle"
	"tradingsim/internal/orderbook"
	"tradingsim/internal/pool"
	"tradingsim/internal/priceevolver"
	"tradingsim/internal/simmodel"
	"tradingsim/internal/trader"
	"tradingsim/internal/txqueue"
)

var (
	ErrNotFound      = errors.New("simengine: simulation not found")
	ErrInvalidState  = errors.New("simengine: operation invalid in current lifecycle state")
	ErrInvalidMode   = errors.New("simengine: operation requires STRESS or HFT mode")
)

// ControlTimeout bounds API handlers awaiting a control operation (spec
// §5: "API handlers await engine control operations with a 2s timeout").
const ControlTimeout = 2 * time.Second

// startDelay is the pause spec §5 requires between ensureCleanStart and
// flipping isRunning on the start path.
const startDelay = 500 * time.Millisecond

// maxTraderWorkers bounds the parallel trader-decision path (spec §5:
// "a worker pool of <= 8 workers").
const maxTraderWorkers = 8

// Deps bundles the collaborators every Simulation needs. They are
// injected rather than looked up through package-level state, per spec
// §9's guidance on breaking SimulationEngine/BroadcastHub/
// CandleCoordinator cyclic references with interfaces.
type Deps struct {
	Candles      *candle.Coordinator
	Hub          *broadcast.Hub
	TxQueue      *txqueue.Queue
	TradePool    *pool.Pool[*simmodel.Trade]
	PositionPool *pool.Pool[*simmodel.Position]
}

// Registry is the per-process table of live simulations, keyed by id
// (spec §9 "singletons by id": lookup-or-insert under one mutex, never
// module-level state).
type Registry struct {
	mu   sync.RWMutex
	sims map[string]*Simulation
	deps Deps
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{sims: make(map[string]*Simulation), deps: deps}
}

// CreateOptions mirrors the POST /api/simulation body (spec §6).
type CreateOptions struct {
	PriceRange            simmodel.PriceRange
	CustomPrice           float64
	UseCustomPrice        bool
	InitialPrice          float64
	InitialLiquidity      float64
	DurationSec           int64
	VolatilityFactor      float64
	TimeCompressionFactor float64
	ScenarioType          simmodel.ScenarioType
	PopulationSize        int
}

// Create allocates a new simulation in the "created" lifecycle stage.
func (r *Registry) Create(id string, opts CreateOptions) (*Simulation, error) {
	if opts.DurationSec <= 0 {
		opts.DurationSec = 3600
	}
	if opts.VolatilityFactor <= 0 {
		opts.VolatilityFactor = 1.0
	}
	if opts.TimeCompressionFactor < 1 {
		opts.TimeCompressionFactor = 1
	}
	if opts.TimeCompressionFactor > 1000 {
		opts.TimeCompressionFactor = 1000
	}
	if opts.InitialLiquidity <= 0 {
		opts.InitialLiquidity = 1_000_000
	}

	params := simmodel.Parameters{
		InitialLiquidity:      opts.InitialLiquidity,
		VolatilityFactor:      opts.VolatilityFactor,
		DurationSec:           opts.DurationSec,
		TimeCompressionFactor: opts.TimeCompressionFactor,
		ScenarioType:          opts.ScenarioType,
		PriceRange:            opts.PriceRange,
		CustomPrice:           opts.CustomPrice,
		UseCustomPrice:        opts.UseCustomPrice,
	}

	rng := rand.New(rand.NewSource(seedFor(id)))
	startPrice := resolveInitialPrice(params, rng)
	params.InitialPrice = startPrice
	if opts.InitialPrice > 0 {
		params.InitialPrice = opts.InitialPrice
	}

	now := nowMillis()
	state := simmodel.New(id, now, params, startPrice)

	sim := &Simulation{
		id:      id,
		deps:    r.deps,
		state:   state,
		book:    orderbook.New(),
		evolver: priceevolver.New(rng),
		rng:     rng,
		speed:   1.0,
		tpsMode: simmodel.TPSNormal,
	}

	population := trader.GeneratePopulation(opts.PopulationSize, rng)
	state.Lock()
	for _, p := range population {
		state.Traders[p.Trader.WalletAddress] = p
	}
	state.RecomputeRankings()
	state.Unlock()

	r.deps.Candles.EnsureCleanStart(id, now, startPrice)

	r.mu.Lock()
	r.sims[id] = sim
	r.mu.Unlock()
	return sim, nil
}

func seedFor(id string) int64 {
	var h int64 = 1469598103934665603
	for _, c := range id {
		h ^= int64(c)
		h *= 1099511628211
	}
	if h < 0 {
		h = -h
	}
	return h
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// Get looks up a simulation by id.
func (r *Registry) Get(id string) (*Simulation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sims[id]
	return s, ok
}

// List returns every registered simulation.
func (r *Registry) List() []*Simulation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Simulation, 0, len(r.sims))
	for _, s := range r.sims {
		out = append(out, s)
	}
	return out
}

// Delete stops and removes a simulation.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	sim, ok := r.sims[id]
	if ok {
		delete(r.sims, id)
	}
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	sim.stopTick()
	r.deps.Candles.Remove(id)
	r.deps.TxQueue.RemoveSimulation(id)
	sim.releaseAll()
	return nil
}

// Simulation owns one SimulationState and its tick loop. Per spec §5, it
// is the only goroutine permitted to mutate state.
type Simulation struct {
	id   string
	deps Deps

	state   *simmodel.State
	book    *orderbook.Book
	evolver *priceevolver.Evolver
	rng     *rand.Rand

	ctrl sync.Mutex // guards lifecycle transitions (start/pause/reset) only

	paramMu  sync.RWMutex // guards speed/tpsMode independent of ctrl, so the
	                      // tick loop never contends with a Pause/Reset that
	                      // is blocked waiting for the tick loop to exit
	speed    float64
	tpsMode  simmodel.TPSMode
	scenario *priceevolver.Scenario

	cancel   context.CancelFunc
	tickDone chan struct{}
}

func (s *Simulation) ID() string { return s.id }

// Snapshot returns a read-only copy of the simulation's current state.
func (s *Simulation) Snapshot() simmodel.Snapshot { return s.state.Snapshot() }

// Start transitions created/initialized/paused -> running (spec §4.G).
func (s *Simulation) Start() error {
	s.ctrl.Lock()
	defer s.ctrl.Unlock()

	s.state.RLock()
	running := s.state.IsRunning
	s.state.RUnlock()
	if running {
		return ErrInvalidState
	}

	s.deps.Candles.EnsureCleanStart(s.id, s.currentTime(), s.currentPrice())
	time.Sleep(startDelay)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.tickDone = make(chan struct{})

	s.state.Lock()
	s.state.IsRunning = true
	s.state.IsPaused = false
	s.enforceLifecycleInvariantLocked()
	s.state.Unlock()

	go s.runTickLoop(ctx)
	return nil
}

// Pause transitions running -> paused.
func (s *Simulation) Pause() error {
	s.ctrl.Lock()
	defer s.ctrl.Unlock()

	s.state.RLock()
	running := s.state.IsRunning
	s.state.RUnlock()
	if !running {
		return ErrInvalidState
	}

	s.stopTickLocked()

	s.state.Lock()
	s.state.IsRunning = false
	s.state.IsPaused = true
	s.enforceLifecycleInvariantLocked()
	s.state.Unlock()
	return nil
}

// ResetOptions mirrors POST /api/simulation/:id/reset's body (spec §6).
type ResetOptions struct {
	ClearAllData bool
	ResetPrice   bool
	ResetState   bool
}

// Reset cancels any active tick, reinitializes state, and returns to
// "initialized" (spec §4.G: valid from any lifecycle state).
func (s *Simulation) Reset(opts ResetOptions) error {
	s.ctrl.Lock()
	defer s.ctrl.Unlock()

	s.stopTickLocked()

	s.state.Lock()
	params := s.state.Parameters
	now := nowMillis()
	newPrice := s.state.CurrentPrice
	if opts.ResetPrice || opts.ResetState || opts.ClearAllData {
		newPrice = resolveInitialPrice(params, s.rng)
	}
	s.state.StartTime = now
	s.state.CurrentTime = now
	s.state.EndTime = now + params.DurationSec*1000
	s.state.IsRunning = false
	s.state.IsPaused = false
	s.state.CurrentPrice = simmodel.ClampPrice(newPrice, params.InitialPrice)
	s.state.MarketConditions = simmodel.MarketConditions{
		Volatility: simmodel.ClampVolatility(0.02 * params.VolatilityFactor),
		Trend:      simmodel.TrendSideways,
	}
	s.state.PriceHistory = nil
	s.state.OrderBook = simmodel.OrderBookSnapshot{}
	if opts.ClearAllData {
		s.state.ActivePositions = make(map[string]*simmodel.Position)
		s.state.ClosedPositions = nil
	}
	s.state.RecentTrades = nil
	s.enforceLifecycleInvariantLocked()
	s.state.Unlock()

	s.book = orderbook.New()
	s.deps.Candles.EnsureCleanStart(s.id, now, s.state.CurrentPrice)
	s.deps.Hub.QueueUpdate(s.id, broadcast.Event{Type: "simulation_reset", Timestamp: now, Data: map[string]interface{}{"simulationId": s.id}})
	return nil
}

// SetSpeed updates timeCompressionFactor; idempotent (spec §8:
// "setSpeed(x) then setSpeed(y) equivalent to setSpeed(y)").
func (s *Simulation) SetSpeed(speed float64) error {
	if speed < 1 || speed > 1000 {
		return fmt.Errorf("simengine: speed must be in [1,1000], got %v", speed)
	}
	s.paramMu.Lock()
	s.speed = speed
	s.paramMu.Unlock()

	s.state.Lock()
	s.state.Parameters.TimeCompressionFactor = speed
	s.state.Unlock()
	return nil
}

// SetTPSMode updates the active TPS mode, emitting tps_mode_changed.
func (s *Simulation) SetTPSMode(mode simmodel.TPSMode) error {
	if _, ok := simmodel.TPSTarget[mode]; !ok {
		return fmt.Errorf("simengine: unknown TPS mode %q", mode)
	}
	s.paramMu.Lock()
	s.tpsMode = mode
	s.paramMu.Unlock()

	s.state.Lock()
	s.state.CurrentTPSMode = mode
	s.state.ExternalMarketMetrics.CurrentTPS = simmodel.TPSTarget[mode]
	s.state.Unlock()

	s.deps.Hub.QueueUpdate(s.id, broadcast.Event{Type: "tps_mode_changed", Timestamp: nowMillis(), Data: map[string]interface{}{"mode": string(mode)}})
	return nil
}

func (s *Simulation) TPSMode() simmodel.TPSMode {
	s.paramMu.RLock()
	defer s.paramMu.RUnlock()
	return s.tpsMode
}

// LiquidationCascade generates a burst of synthetic sell pressure; only
// valid in STRESS/HFT mode (spec §4.G).
type CascadeResult struct {
	OrdersGenerated int
	EstimatedImpact float64
	CascadeSize     float64
}

func (s *Simulation) LiquidationCascade() (CascadeResult, error) {
	mode := s.TPSMode()
	if mode != simmodel.TPSStress && mode != simmodel.TPSHFT {
		return CascadeResult{}, ErrInvalidMode
	}

	s.state.Lock()
	defer s.state.Unlock()

	cascadeSize := s.state.MarketConditions.Volume*0.1 + s.state.Parameters.InitialLiquidity*0.02
	if cascadeSize <= 0 {
		cascadeSize = s.state.Parameters.InitialLiquidity * 0.02
	}
	ordersGenerated := 10 + s.rng.Intn(20)
	category := priceCategoryFor(s.state.CurrentPrice)
	impact := -simmodel.PriceCategoryImpact[category] * simmodel.PriceCategoryMaxImpact[category]

	newPrice := simmodel.ClampPrice(s.state.CurrentPrice*(1+impact), s.state.Parameters.InitialPrice)
	s.state.CurrentPrice = newPrice

	res := CascadeResult{OrdersGenerated: ordersGenerated, EstimatedImpact: impact, CascadeSize: cascadeSize}
	s.deps.Hub.QueueUpdate(s.id, broadcast.Event{Type: "liquidation_cascade_triggered", Timestamp: s.state.CurrentTime, Data: map[string]interface{}{
		"ordersGenerated": ordersGenerated,
		"estimatedImpact": impact,
		"cascadeSize":     cascadeSize,
	}})
	return res, nil
}

// ExternalTradeRequest mirrors POST /api/simulation/:id/external-trade's
// body (spec §6).
type ExternalTradeRequest struct {
	ID       string
	TraderID string
	Action   simmodel.TradeAction
	Price    float64
	Quantity float64
}

type ExternalTradeResult struct {
	Trade    simmodel.Trade
	NewPrice float64
	Impact   float64
}

// ExternalTrade applies one externally-injected trade and its
// price-category-adjusted impact (spec §4.G, §6).
func (s *Simulation) ExternalTrade(req ExternalTradeRequest) (ExternalTradeResult, error) {
	if req.Quantity <= 0 {
		return ExternalTradeResult{}, fmt.Errorf("simengine: quantity must be positive")
	}

	s.state.Lock()
	defer s.state.Unlock()

	price := req.Price
	if price <= 0 {
		price = s.state.CurrentPrice
	}
	category := priceCategoryFor(s.state.CurrentPrice)
	tpsMult := simmodel.TPSImpactMultiplier[s.tpsModeLocked()]
	impact := (req.Quantity * price / s.state.Parameters.InitialLiquidity) * simmodel.PriceCategoryImpact[category] * tpsMult
	maxImpact := simmodel.PriceCategoryMaxImpact[category]
	if impact > maxImpact {
		impact = maxImpact
	}
	if impact < -maxImpact {
		impact = -maxImpact
	}
	if req.Action == simmodel.ActionSell {
		impact = -impact
	}

	newPrice := simmodel.ClampPrice(s.state.CurrentPrice*(1+impact), s.state.Parameters.InitialPrice)
	s.state.CurrentPrice = newPrice

	tr := s.deps.TradePool.Acquire()
	tr.ID = req.ID
	if tr.ID == "" {
		tr.ID = simmodel.NewTradeID()
	}
	tr.Timestamp = s.state.CurrentTime
	tr.TraderWallet = req.TraderID
	tr.Action = req.Action
	tr.Price = price
	tr.Quantity = req.Quantity
	tr.Value = price * req.Quantity
	tr.Impact = impact
	tr.SimulationID = s.id

	if evicted := s.state.PushTrade(tr); evicted != nil {
		s.deps.TradePool.Release(evicted)
	}
	s.state.ExternalMarketMetrics.ProcessedOrders++

	out := *tr
	s.deps.TxQueue.AddTrade(out, s.id)
	s.deps.Hub.QueueUpdate(s.id, broadcast.Event{Type: "trade", Timestamp: tr.Timestamp, Data: map[string]interface{}{
		"id": tr.ID, "price": tr.Price, "quantity": tr.Quantity, "action": string(tr.Action), "impact": tr.Impact,
	}})
	s.deps.Hub.QueueUpdate(s.id, broadcast.Event{Type: "external_market_pressure", Timestamp: tr.Timestamp, Data: map[string]interface{}{
		"impact": impact, "newPrice": newPrice,
	}})

	return ExternalTradeResult{Trade: *tr, NewPrice: newPrice, Impact: impact}, nil
}

func (s *Simulation) tpsModeLocked() simmodel.TPSMode {
	s.paramMu.RLock()
	defer s.paramMu.RUnlock()
	return s.tpsMode
}

func (s *Simulation) currentTime() int64 {
	s.state.RLock()
	defer s.state.RUnlock()
	return s.state.CurrentTime
}

func (s *Simulation) currentPrice() float64 {
	s.state.RLock()
	defer s.state.RUnlock()
	return s.state.CurrentPrice
}

// enforceLifecycleInvariantLocked re-reads the flags and force-corrects
// the (true,true) violation spec §4.G forbids. Caller holds the write
// lock.
func (s *Simulation) enforceLifecycleInvariantLocked() {
	if s.state.IsRunning && s.state.IsPaused {
		log.Printf("simengine: simulation %s violated running/paused invariant, forcing paused", s.id)
		s.state.IsRunning = false
	}
}

func (s *Simulation) stopTick() {
	s.ctrl.Lock()
	defer s.ctrl.Unlock()
	s.stopTickLocked()
}

func (s *Simulation) stopTickLocked() {
	if s.cancel != nil {
		s.cancel()
		<-s.tickDone
		s.cancel = nil
	}
}

func (s *Simulation) releaseAll() {
	s.state.Lock()
	defer s.state.Unlock()
	for _, t := range s.state.RecentTrades {
		s.deps.TradePool.Release(t)
	}
	for _, p := range s.state.ActivePositions {
		s.deps.PositionPool.Release(p)
	}
}

// tickInterval and trader-batch size follow the §4.G table: <=10x runs
// every 1000/speed ms with a batch of 1; above 10x and up to 50x it runs
// every 50ms with a batch of int(speed/10); above 50x it runs every 10ms
// with a batch of int(speed/50) (at least 1), which is smaller than the
// 50x batch of 5 for speeds below 250x.
func tickInterval(speed float64) (time.Duration, int) {
	switch {
	case speed <= 10:
		return time.Duration(1000/speed) * time.Millisecond, 1
	case speed <= 50:
		return 50 * time.Millisecond, int(speed / 10)
	default:
		batch := int(speed / 50)
		if batch < 1 {
			batch = 1
		}
		return 10 * time.Millisecond, batch
	}
}

func (s *Simulation) runTickLoop(ctx context.Context) {
	defer close(s.tickDone)
	for {
		s.paramMu.RLock()
		speed := s.speed
		s.paramMu.RUnlock()
		interval, batchSize := tickInterval(speed)

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			s.tick(speed, batchSize)
			if s.autoPauseIfEnded() {
				return
			}
		}
	}
}

func (s *Simulation) autoPauseIfEnded() bool {
	s.state.Lock()
	ended := s.state.CurrentTime >= s.state.EndTime
	if ended {
		s.state.IsRunning = false
		s.state.IsPaused = true
	}
	s.state.Unlock()
	if ended {
		s.deps.Hub.QueueUpdate(s.id, broadcast.Event{Type: "simulation_status", Timestamp: nowMillis(), Data: map[string]interface{}{"status": "ended"}})
	}
	return ended
}

// tick advances virtual time by dt=60000*speed ms and runs one full pass
// of PriceEvolver -> CandleCoordinator -> TraderDecisionEngine ->
// OrderBook.rebuildAround (spec §4.G tick body).
func (s *Simulation) tick(speed float64, batchSize int) {
	dt := int64(60000 * speed)

	s.state.Lock()
	now := s.state.CurrentTime + dt
	s.state.CurrentTime = now
	mc := s.state.MarketConditions
	price := s.state.CurrentPrice
	closes := closesFromHistory(s.state.PriceHistory)
	params := s.state.Parameters
	tpsMode := s.state.CurrentTPSMode
	s.state.Unlock()

	scenario := s.activeScenario(params)
	res := s.evolver.Step(price, mc, closes, scenario, speed)

	s.deps.Candles.Submit(s.id, now, res.NewPrice, res.Volume)
	candles := s.deps.Candles.Candles(s.id, simmodel.MaxPriceHistory)

	profiles, positions := s.snapshotTraderInputs()
	ind := trader.Indicators{
		CurrentPrice: res.NewPrice,
		SMA5:         priceevolver.SMA(closes, 5),
		SMA20:        priceevolver.SMA(closes, 20),
		RSI:          priceevolver.RSI(closes, 14),
		Trend:        res.NewTrend,
		Volatility:   res.NewVolatility,
	}
	decisions := s.runTraderTick(profiles, positions, ind, now, batchSize, speed > 10)

	s.book.RebuildAround(res.NewPrice, params.InitialLiquidity, res.NewVolatility, now)
	bookSnapshot := s.book.Snapshot()

	s.state.Lock()
	s.state.CurrentPrice = res.NewPrice
	s.state.MarketConditions = simmodel.MarketConditions{Volatility: res.NewVolatility, Trend: res.NewTrend, Volume: res.Volume}
	s.state.PriceHistory = validCandles(candles)
	s.state.OrderBook = bookSnapshot
	s.state.ExternalMarketMetrics.CurrentTPS = simmodel.TPSTarget[tpsMode]
	var committed []simmodel.Trade
	s.applyDecisions(decisions, res.NewPrice, now, tpsMode, &committed)
	s.state.RecomputeRankings()
	s.state.Unlock()

	s.deps.Hub.QueueUpdate(s.id, broadcast.Event{Type: "price_update", Timestamp: now, Data: map[string]interface{}{
		"price":      res.NewPrice,
		"volatility": res.NewVolatility,
		"trend":      string(res.NewTrend),
	}})
	s.deps.Hub.QueueUpdate(s.id, broadcast.Event{Type: "order_book", Timestamp: now, Data: map[string]interface{}{
		"lastUpdateTime": bookSnapshot.LastUpdateTime,
	}})

	for _, tr := range committed {
		s.deps.TxQueue.AddTrade(tr, s.id)
		s.deps.Hub.QueueUpdate(s.id, broadcast.Event{Type: "trade", Timestamp: tr.Timestamp, Data: map[string]interface{}{
			"id": tr.ID, "price": tr.Price, "quantity": tr.Quantity, "action": string(tr.Action),
		}})
	}
}

func closesFromHistory(history []simmodel.Candle) []float64 {
	out := make([]float64, len(history))
	for i, c := range history {
		out[i] = c.Close
	}
	return out
}

func validCandles(candles []simmodel.Candle) []simmodel.Candle {
	out := make([]simmodel.Candle, 0, len(candles))
	for _, c := range candles {
		if c.Valid() {
			out = append(out, c)
		}
	}
	return out
}

func (s *Simulation) activeScenario(params simmodel.Parameters) *priceevolver.Scenario {
	if params.ScenarioType == "" {
		return nil
	}
	return &priceevolver.Scenario{Type: params.ScenarioType, Intensity: 1.0}
}

func (s *Simulation) snapshotTraderInputs() ([]*simmodel.TraderProfile, map[string]*simmodel.Position) {
	s.state.RLock()
	defer s.state.RUnlock()
	profiles := make([]*simmodel.TraderProfile, 0, len(s.state.Traders))
	for _, p := range s.state.Traders {
		profiles = append(profiles, p)
	}
	positions := make(map[string]*simmodel.Position, len(s.state.ActivePositions))
	for k, v := range s.state.ActivePositions {
		positions[k] = v
	}
	return profiles, positions
}

// runTraderTick dispatches the decision pass sequentially at low speed
// and across up to maxTraderWorkers goroutines at speed>10x (spec §5).
// Each worker gets its own rng derived from the simulation's seed so the
// shared *rand.Rand is never accessed concurrently.
func (s *Simulation) runTraderTick(profiles []*simmodel.TraderProfile, positions map[string]*simmodel.Position, ind trader.Indicators, now int64, batchSize int, parallel bool) []trader.Decision {
	if !parallel || len(profiles) == 0 {
		eng := trader.New(s.rng)
		return eng.Tick(profiles, positions, ind, now, batchSize)
	}

	workers := batchSize
	if workers < 2 {
		workers = 2
	}
	if workers > maxTraderWorkers {
		workers = maxTraderWorkers
	}
	if workers > len(profiles) {
		workers = len(profiles)
	}
	chunks := splitProfiles(profiles, workers)

	results := make([][]trader.Decision, len(chunks))
	var wg sync.WaitGroup
	for i, chunk := range chunks {
		seed := s.rng.Int63()
		wg.Add(1)
		go func(i int, chunk []*simmodel.TraderProfile, seed int64) {
			defer wg.Done()
			eng := trader.New(rand.New(rand.NewSource(seed)))
			results[i] = eng.Tick(chunk, positions, ind, now, batchSize)
		}(i, chunk, seed)
	}
	wg.Wait()

	var all []trader.Decision
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

func splitProfiles(profiles []*simmodel.TraderProfile, workers int) [][]*simmodel.TraderProfile {
	chunks := make([][]*simmodel.TraderProfile, workers)
	for i, p := range profiles {
		w := i % workers
		chunks[w] = append(chunks[w], p)
	}
	return chunks
}

// applyDecisions commits trader decisions against state, acquiring
// Trade/Position objects from the pool and appending the resulting
// trades to committed for downstream publication (spec §4.E/§5: publish
// the Trade event only after the Position has been appended to state).
// Caller holds the write lock.
func (s *Simulation) applyDecisions(decisions []trader.Decision, price float64, now int64, tpsMode simmodel.TPSMode, committed *[]simmodel.Trade) {
	impactMult := simmodel.TPSImpactMultiplier[tpsMode]
	for _, d := range decisions {
		profile, ok := s.state.Traders[d.WalletAddress]
		if !ok {
			continue
		}
		switch d.Kind {
		case trader.DecisionEnter:
			pos := s.deps.PositionPool.Acquire()
			pos.TraderWallet = d.WalletAddress
			pos.EntryPrice = price
			pos.Quantity = d.Quantity
			pos.EntryTime = now
			s.state.ActivePositions[d.WalletAddress] = pos
		case trader.DecisionExit:
			pos, has := s.state.ActivePositions[d.WalletAddress]
			if !has {
				continue
			}
			delete(s.state.ActivePositions, d.WalletAddress)
			pnl := closePnl(pos, price)
			profile.Trader.NetPnl += pnl
			s.state.ClosedPositions = append(s.state.ClosedPositions, simmodel.ClosedPosition{
				Position: *pos, ExitPrice: price, ExitTime: now, CurrentPnl: pnl,
			})
			s.deps.PositionPool.Release(pos)
		}

		tr := s.deps.TradePool.Acquire()
		tr.ID = simmodel.NewTradeID()
		tr.Timestamp = now
		tr.TraderWallet = d.WalletAddress
		if d.Quantity >= 0 {
			tr.Action = simmodel.ActionBuy
		} else {
			tr.Action = simmodel.ActionSell
		}
		tr.Price = price
		tr.Quantity = absFloat(d.Quantity)
		tr.Value = price * tr.Quantity
		tr.Impact = impactMult * 0.0001
		tr.SimulationID = s.id

		if evicted := s.state.PushTrade(tr); evicted != nil {
			s.deps.TradePool.Release(evicted)
		}
		*committed = append(*committed, *tr)
	}
}

func closePnl(pos *simmodel.Position, exitPrice float64) float64 {
	if pos.Quantity >= 0 {
		return (exitPrice - pos.EntryPrice) * pos.Quantity
	}
	return (pos.EntryPrice - exitPrice) * -pos.Quantity
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
