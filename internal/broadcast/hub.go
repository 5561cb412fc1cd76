// Package broadcast implements BroadcastHub (spec §4.I): the
// subscription registry and per-simulation event fan-out, with immediate
// and batched delivery paths. Grounded on the teacher's
// internal/marketdata/bus.go pub/sub primitive (non-blocking channel
// send) generalised to a per-simulation subscription index, and its
// ws.go ticker-driven write-loop shape for the batch flusher.
package broadcast

import (
	"bytes"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"tradingsim/internal/metrics"
)

// Client is anything the hub can deliver a serialised event to. The
// concrete websocket connection lives in internal/httpserver; the hub
// only depends on this interface, per spec §9's "depend on interfaces
// injected at construction, not concrete types."
type Client interface {
	Send(payload []byte) error
	ID() string
}

// Event is one server-originated message, pre-marshal. Data must contain
// only JSON-serialisable values; Sanitize scrubs anything that is not.
type Event struct {
	Type      string
	Timestamp int64
	Data      map[string]interface{}
}

// immediateTypes are dispatched per-event rather than batched (spec
// §4.I).
var immediateTypes = map[string]bool{
	"price_update":       true,
	"trade":              true,
	"processed_trade":    true,
	"simulation_status":  true,
	"simulation_reset":   true,
	"simulation_state":   true,
}

// idempotentBatchTypes retain only the most recent entry within a batch;
// additive types retain all entries (spec §4.I).
var idempotentBatchTypes = map[string]bool{
	"price_update":            true,
	"order_book":              true,
	"external_market_metrics": true,
	"candle_update":           true,
}

const (
	// BatchFlushInterval is the batched-path flusher cadence.
	BatchFlushInterval = 25 * time.Millisecond
	// RingBufferMultiplier sizes the per-simulation ring buffer to 2x a
	// nominal batch size, newest retained on overflow (spec §4.I).
	RingBufferMultiplier = 2
	nominalBatchSize     = 100
	maxBatchBytes        = 1 << 20 // 1 MB
	gzipMagicByte        = 0x1F
)

type clientMeta struct {
	simID        string
	lastUpdate   time.Time
	messageCount int64
}

// Hub is the process-wide BroadcastHub: one instance serves every
// simulation.
type Hub struct {
	mu            sync.Mutex
	bySimulation  map[string]map[Client]struct{}
	byClient      map[Client]*clientMeta
	ring          map[string][]Event // per-sim pending batch, ring-buffered
	connectionErrors int64

	stop    chan struct{}
	stopped bool
}

// New builds an empty hub. Call Start to launch the batch flusher.
func New() *Hub {
	return &Hub{
		bySimulation: make(map[string]map[Client]struct{}),
		byClient:     make(map[Client]*clientMeta),
		ring:         make(map[string][]Event),
		stop:         make(chan struct{}),
	}
}

// Start launches the 25ms batch flusher.
func (h *Hub) Start() {
	go h.run()
}

func (h *Hub) run() {
	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.flushAll()
		case <-h.stop:
			return
		}
	}
}

// Shutdown stops the flusher; it does not disconnect existing clients.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	close(h.stop)
}

// AddClient registers client as a subscriber of simId. Removing a stale
// subscription for the same client first keeps the two maps consistent
// (spec §9 "client disconnect races": both maps updated atomically under
// the same critical section).
func (h *Hub) AddClient(simID string, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeClientLocked(client)
	if h.bySimulation[simID] == nil {
		h.bySimulation[simID] = make(map[Client]struct{})
	}
	h.bySimulation[simID][client] = struct{}{}
	h.byClient[client] = &clientMeta{simID: simID, lastUpdate: time.Now()}
}

// RemoveClient unsubscribes client from simId (and from any stale
// subscription it still held).
func (h *Hub) RemoveClient(simID string, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeClientLocked(client)
}

func (h *Hub) removeClientLocked(client Client) {
	if meta, ok := h.byClient[client]; ok {
		if set, ok := h.bySimulation[meta.simID]; ok {
			delete(set, client)
			if len(set) == 0 {
				delete(h.bySimulation, meta.simID)
			}
		}
	}
	delete(h.byClient, client)
}

// QueueUpdate routes event to its delivery path: immediate types go out
// now; everything else accumulates into the per-simulation ring buffer
// for the next flush (spec §4.I).
func (h *Hub) QueueUpdate(simID string, ev Event) {
	ev.Data = Sanitize(ev.Data)
	if immediateTypes[ev.Type] {
		h.dispatchImmediate(simID, ev)
		return
	}
	h.mu.Lock()
	buf := append(h.ring[simID], ev)
	cap := RingBufferMultiplier * nominalBatchSize
	if len(buf) > cap {
		buf = buf[len(buf)-cap:]
	}
	h.ring[simID] = buf
	h.mu.Unlock()
}

// SendDirectMessage delivers event to every subscriber of simID
// immediately, bypassing the idempotent/additive batching rules
// entirely — used for control-plane acks.
func (h *Hub) SendDirectMessage(simID string, ev Event) {
	h.dispatchImmediate(simID, ev)
}

// BroadcastToAll delivers event to every subscriber of every simulation.
func (h *Hub) BroadcastToAll(ev Event) {
	h.mu.Lock()
	sims := make([]string, 0, len(h.bySimulation))
	for simID := range h.bySimulation {
		sims = append(sims, simID)
	}
	h.mu.Unlock()
	for _, simID := range sims {
		h.dispatchImmediate(simID, ev)
	}
}

func (h *Hub) dispatchImmediate(simID string, ev Event) {
	payload, err := json.Marshal(map[string]interface{}{
		"simulationId": simID,
		"event": map[string]interface{}{
			"type":      ev.Type,
			"timestamp": ev.Timestamp,
			"data":      ev.Data,
		},
	})
	if err != nil {
		log.Printf("broadcast: failed to marshal event type %s for sim %s: %v", ev.Type, simID, err)
		return
	}
	if rejectPayload(payload) {
		return
	}
	h.deliver(simID, payload)
}

func rejectPayload(payload []byte) bool {
	return len(payload) > 0 && payload[0] == gzipMagicByte
}

func (h *Hub) deliver(simID string, payload []byte) {
	h.mu.Lock()
	clients := make([]Client, 0, len(h.bySimulation[simID]))
	for c := range h.bySimulation[simID] {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.Send(payload); err != nil {
			h.mu.Lock()
			h.removeClientLocked(c)
			h.connectionErrors++
			h.mu.Unlock()
			continue
		}
		h.mu.Lock()
		if meta, ok := h.byClient[c]; ok {
			meta.lastUpdate = time.Now()
			meta.messageCount++
		}
		h.mu.Unlock()
	}
}

// flushAll builds and dispatches one batch envelope per simulation with
// pending updates.
func (h *Hub) flushAll() {
	h.mu.Lock()
	sims := make([]string, 0, len(h.ring))
	for simID, events := range h.ring {
		if len(events) > 0 {
			sims = append(sims, simID)
		}
	}
	h.mu.Unlock()

	for _, simID := range sims {
		h.flushOne(simID)
	}

	health := h.HealthCheck()
	metrics.SetHubHealth(health.Simulations, health.Clients, health.ConnectionErrors)
}

func (h *Hub) flushOne(simID string) {
	h.mu.Lock()
	events := h.ring[simID]
	delete(h.ring, simID)
	h.mu.Unlock()

	if len(events) == 0 {
		return
	}

	updates, count := collapseBatch(events)
	now := time.Now().UnixMilli()
	envelope := map[string]interface{}{
		"simulationId": simID,
		"event": map[string]interface{}{
			"type":      "batch_update",
			"timestamp": now,
			"data": map[string]interface{}{
				"updates":        updates,
				"updateCount":    count,
				"batchTimestamp": now,
			},
		},
	}

	if err := validateBatchEnvelope(envelope); err != nil {
		log.Printf("broadcast: dropping invalid batch for sim %s: %v", simID, err)
		return
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("broadcast: failed to marshal batch for sim %s: %v", simID, err)
		return
	}
	if rejectPayload(payload) {
		return
	}
	if len(payload) > maxBatchBytes {
		log.Printf("broadcast: batch for sim %s exceeds 1MB (%d bytes), dropping", simID, len(payload))
		return
	}
	h.deliver(simID, payload)
}

// collapseBatch groups events by type: idempotent types retain only the
// most recent; additive types retain every entry in insertion order
// (spec §4.I).
func collapseBatch(events []Event) (map[string]interface{}, int) {
	grouped := make(map[string][]Event)
	order := make([]string, 0)
	for _, ev := range events {
		if _, seen := grouped[ev.Type]; !seen {
			order = append(order, ev.Type)
		}
		grouped[ev.Type] = append(grouped[ev.Type], ev)
	}
	sort.Strings(order)

	updates := make(map[string]interface{})
	count := 0
	for _, t := range order {
		evs := grouped[t]
		if idempotentBatchTypes[t] {
			updates[t] = evs[len(evs)-1].Data
			count++
			continue
		}
		datas := make([]map[string]interface{}, len(evs))
		for i, e := range evs {
			datas[i] = e.Data
		}
		updates[t] = datas
		count += len(datas)
	}
	return updates, count
}

// validateBatchEnvelope enforces spec §4.I's pre-send validation: object
// with simulationId, event.type=="batch_update", event.data.updates an
// object, event.data.updateCount a number, and no "type" key inside
// data.updates.
func validateBatchEnvelope(envelope map[string]interface{}) error {
	event, ok := envelope["event"].(map[string]interface{})
	if !ok {
		return errBadEnvelope
	}
	if t, ok := event["type"].(string); !ok || t != "batch_update" {
		return errBadEnvelope
	}
	data, ok := event["data"].(map[string]interface{})
	if !ok {
		return errBadEnvelope
	}
	updates, ok := data["updates"].(map[string]interface{})
	if !ok {
		return errBadEnvelope
	}
	if _, hasType := updates["type"]; hasType {
		return errForbiddenTypeKey
	}
	if _, ok := data["updateCount"].(int); !ok {
		return errBadEnvelope
	}
	return nil
}

var (
	errBadEnvelope      = batchErr("malformed batch envelope")
	errForbiddenTypeKey = batchErr("batch data.updates must not contain a type key")
)

type batchErr string

func (e batchErr) Error() string { return string(e) }

// Sanitize drops values JSON cannot serialise (func/chan) and replaces
// them with the literal string "[Non-serializable]", matching spec
// §4.I/§7's sanitisation path.
func Sanitize(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return Sanitize(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = sanitizeValue(e)
		}
		return out
	case nil, bool, string, int, int64, float64, float32:
		return val
	default:
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(val); err != nil {
			return "[Non-serializable]"
		}
		return val
	}
}

// ConnectionErrors returns the running count of clients dropped due to a
// failed send (spec §4.I back-pressure).
func (h *Hub) ConnectionErrors() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connectionErrors
}

// HealthCheck reports the hub's aggregate subscription counts.
type Health struct {
	Simulations      int   `json:"simulations"`
	Clients          int   `json:"clients"`
	ConnectionErrors int64 `json:"connectionErrors"`
}

func (h *Hub) HealthCheck() Health {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Health{
		Simulations:      len(h.bySimulation),
		Clients:          len(h.byClient),
		ConnectionErrors: h.connectionErrors,
	}
}
