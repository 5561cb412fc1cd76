package candle

import (
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"tradingsim/internal/broadcast"
	"tradingsim/internal/simmodel"
)

// FlushInterval is the coordinator's background flush cadence (spec §4.D).
const FlushInterval = 25 * time.Millisecond

// ConsecutiveFailureWarn and ConsecutiveFailureDisable are the error-counter
// thresholds spec §4.D/§7 define for a single simulation's sample queue:
// a simulation that keeps submitting invalid samples gets logged at 3
// consecutive failures and has further submissions rejected from 5 on,
// until EnsureCleanStart or Remove clears the counter. Samples already
// queued are still flushed.
const (
	ConsecutiveFailureWarn    = 3
	ConsecutiveFailureDisable = 5
)

var (
	// ErrInvalidPrice is returned when a submitted sample's price is
	// non-finite, non-positive, or outside [1e-6, 1e6] (spec §4.D).
	ErrInvalidPrice = errors.New("candle: price out of bounds")
	// ErrInvalidVolume is returned when a submitted sample's volume is
	// negative or non-finite.
	ErrInvalidVolume = errors.New("candle: volume out of bounds")
)

type sample struct {
	id        string
	timestamp int64
	price     float64
	volume    float64
}

// Coordinator routes price samples to the per-simulation Aggregator
// registry and flushes them on a fixed ticker, rather than synchronously
// on every sample, so a burst of HFT-mode samples batches into one
// bucket-update pass (spec §4.D, grounded on the teacher's runPublisher
// ticker-driven update loop).
type Coordinator struct {
	reg *registry
	hub *broadcast.Hub

	mu       sync.Mutex
	queue    []sample
	failures map[string]int
	disabled map[string]bool

	stop    chan struct{}
	stopped bool
}

// NewCoordinator builds a coordinator with an empty registry and queue.
// Call SetHub before Start to have flushes signal candle_update events;
// a coordinator with no hub still aggregates candles, it just has no one
// to notify.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		reg:      newRegistry(),
		failures: make(map[string]int),
		disabled: make(map[string]bool),
		stop:     make(chan struct{}),
	}
}

// SetHub wires the BroadcastHub that flush() signals with candle_update
// events (spec §4.D: "signal BroadcastHub with a candle_update event
// containing the last 250").
func (c *Coordinator) SetHub(hub *broadcast.Hub) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hub = hub
}

// Start launches the background flush ticker.
func (c *Coordinator) Start() {
	go c.run()
}

func (c *Coordinator) run() {
	ticker := time.NewTicker(FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.stop:
			return
		}
	}
}

// Shutdown stops the flush loop. It is idempotent.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.stop)
}

// EnsureCleanStart creates (or re-initializes) the aggregator for id so a
// freshly created or reset simulation starts with no closed candles and a
// single open candle seeded at initialPrice (spec §4.D ensureCleanStart).
func (c *Coordinator) EnsureCleanStart(id string, startTime int64, initialPrice float64) {
	a := c.reg.getOrCreate(id)
	a.Initialize(startTime, initialPrice)
	c.mu.Lock()
	delete(c.failures, id)
	delete(c.disabled, id)
	c.mu.Unlock()
}

// ClearCandles drops a simulation's candle history while keeping its
// aggregator registered (spec §4.D clearCandles).
func (c *Coordinator) ClearCandles(id string) {
	c.reg.getOrCreate(id).Clear()
}

// Remove deregisters a simulation's aggregator entirely, e.g. once it has
// been deleted (spec §4.D teardown).
func (c *Coordinator) Remove(id string) {
	c.reg.remove(id)
	c.mu.Lock()
	delete(c.failures, id)
	delete(c.disabled, id)
	c.mu.Unlock()
}

// Submit validates and enqueues one price sample for simulation id. No
// timestamp rewriting and no minimum-interval suppression is applied:
// every accepted sample reaches UpdateCandle on the next flush (spec
// §4.D). Invalid samples are rejected and counted against the
// simulation's consecutive-failure counter.
func (c *Coordinator) Submit(id string, timestamp int64, price, volume float64) error {
	if err := validateSample(price, volume); err != nil {
		c.recordFailure(id)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disabled[id] {
		return errors.New("candle: simulation candle queue disabled after repeated invalid samples")
	}
	delete(c.failures, id)
	c.queue = append(c.queue, sample{id: id, timestamp: timestamp, price: price, volume: volume})
	return nil
}

func validateSample(price, volume float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 1e-6 || price > 1e6 {
		return ErrInvalidPrice
	}
	if math.IsNaN(volume) || math.IsInf(volume, 0) || volume < 0 {
		return ErrInvalidVolume
	}
	return nil
}

func (c *Coordinator) recordFailure(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[id]++
	n := c.failures[id]
	if n >= ConsecutiveFailureWarn {
		log.Printf("candle: simulation %s has %d consecutive invalid samples", id, n)
	}
	if n >= ConsecutiveFailureDisable {
		c.disabled[id] = true
		log.Printf("candle: simulation %s candle queue disabled after %d consecutive invalid samples", id, n)
	}
}

// flush drains the queue, applies every sample to its aggregator, and
// signals the hub with one candle_update event per simulation touched
// this round, each carrying that simulation's last 250 candles (spec
// §4.D).
func (c *Coordinator) flush() {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return
	}
	pending := c.queue
	c.queue = nil
	hub := c.hub
	c.mu.Unlock()

	touched := make(map[string]bool)
	for _, s := range pending {
		c.reg.getOrCreate(s.id).UpdateCandle(s.timestamp, s.price, s.volume)
		touched[s.id] = true
	}

	if hub == nil {
		return
	}
	for id := range touched {
		candles := c.reg.getOrCreate(id).GetCandles(simmodel.MaxPriceHistory)
		hub.QueueUpdate(id, broadcast.Event{
			Type:      "candle_update",
			Timestamp: nowMillis(),
			Data:      map[string]interface{}{"candles": candles},
		})
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// Candles returns the candle history for a simulation, optionally limited
// to the most recent limit entries (limit<=0 means no limit).
func (c *Coordinator) Candles(id string, limit int) []simmodel.Candle {
	return c.reg.getOrCreate(id).GetCandles(limit)
}
